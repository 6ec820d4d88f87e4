package config

import (
	"os"
	"strings"
)

// ReserveRawStockOnDistillationStart makes Distillation.Start reserve the processed quantity
// from the distiller's raw material stock in the same transaction as the cost debit.
//
// Set via env (default on):
// - DISTILLATION_RESERVE_RAW_STOCK=false reproduces the legacy behaviour where start never touched raw stock.
func ReserveRawStockOnDistillationStart() bool {
	return boolFromEnv("DISTILLATION_RESERVE_RAW_STOCK", true)
}

// UseStockKeyLock serializes stock mutations per (distiller, material) and per lot across
// instances with a Redis lock, on top of the row locks taken inside the transaction.
//
// Set via env:
// - STOCK_KEY_LOCK=true
func UseStockKeyLock() bool {
	return boolFromEnv("STOCK_KEY_LOCK", false)
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}
