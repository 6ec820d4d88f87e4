// stock-reconcile reports raw material and lot rows that break the stock rules.
// Exits 1 when anything is found; it never repairs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/workflow"
)

func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	issues, err := workflow.NewDefaultService().ReconcileStocks(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(1)
	}
	for _, issue := range issues {
		fmt.Printf("%s #%d: %s\n", issue.Entity, issue.EntityId, issue.Problem)
	}
	if len(issues) > 0 {
		fmt.Printf("%d issues found\n", len(issues))
		os.Exit(1)
	}
	fmt.Println("no issues found")
}
