package models

import (
	"log"

	"github.com/mmdatafocus/distillery_backend/config"
)

// AllModels lists every persisted table in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&BalanceUser{}, &BalanceHistory{},
		&RawMaterialStock{},
		&Expedition{},
		&Distillation{},
		&ProducedStock{},
		&Transport{},
		&SalesReception{},
	}
}

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(AllModels()...)
	if err != nil {
		log.Fatal(err)
	}
}
