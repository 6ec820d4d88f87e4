package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/workflow"
)

func main() {
	distillerID := flag.Int("distiller-id", 0, "Optional: distiller id (default all distillers)")
	materialType := flag.String("material-type", "", "Optional: material type, requires --distiller-id")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing keys and continue rebuilding others")
	flag.Parse()

	*materialType = strings.TrimSpace(*materialType)
	if *materialType != "" && *distillerID <= 0 {
		fmt.Fprintln(os.Stderr, "--material-type needs --distiller-id")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	ctx := context.Background()
	svc := workflow.NewDefaultService()

	type key struct {
		DistillerId  int
		MaterialType string
	}
	var keys []key
	if *materialType != "" {
		keys = append(keys, key{*distillerID, *materialType})
	} else {
		stocks, err := svc.ListRawMaterialStocks(ctx, *distillerID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list raw material stocks: %v\n", err)
			os.Exit(1)
		}
		for _, s := range stocks {
			keys = append(keys, key{s.DistillerId, s.MaterialType})
		}
	}

	failed := 0
	for _, k := range keys {
		stock, err := svc.RebuildRawMaterialStock(ctx, k.DistillerId, k.MaterialType)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "rebuild distiller=%d material=%s: %v\n", k.DistillerId, k.MaterialType, err)
			if !*continueOnError {
				os.Exit(1)
			}
			continue
		}
		fmt.Printf("rebuilt distiller=%d material=%s initial=%s used=%s humidity=%s desiccation=%s\n",
			k.DistillerId, k.MaterialType, stock.QuantityInitial, stock.QuantityUsed, stock.HumidityAvg, stock.DesiccationAvg)
	}
	fmt.Printf("done: %d keys, %d failed\n", len(keys), failed)
	if failed > 0 {
		os.Exit(1)
	}
}
