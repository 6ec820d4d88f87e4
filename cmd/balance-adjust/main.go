// balance-adjust posts a manual credit or debit on an owner's balance, with its audit row.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/mmdatafocus/distillery_backend/workflow"
	"github.com/shopspring/decimal"
)

func main() {
	ownerID := flag.Int("owner-id", 0, "Required: owner id")
	amountStr := flag.String("amount", "", "Required: positive amount")
	kind := flag.String("kind", "credit", "credit or debit")
	reason := flag.String("reason", "manual adjustment", "Reason stored on the audit row")
	userID := flag.Int("user-id", 0, "Optional: user recorded on the audit row")
	flag.Parse()

	if *ownerID <= 0 {
		fmt.Fprintln(os.Stderr, "--owner-id is required")
		os.Exit(1)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(*amountStr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid amount: %v\n", err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	ctx := context.Background()
	if *userID > 0 {
		ctx = utils.SetUserIdInContext(ctx, *userID)
	}
	svc := workflow.NewDefaultService()

	m := models.BalanceMovement{
		OwnerId:       *ownerID,
		Amount:        amount,
		Reason:        *reason,
		ReferenceType: models.BalanceReferenceManual,
	}
	var history *models.BalanceHistory
	switch *kind {
	case "credit":
		history, err = svc.Credit(ctx, m)
	case "debit":
		history, err = svc.Debit(ctx, m)
	default:
		fmt.Fprintf(os.Stderr, "unknown --kind %q\n", *kind)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *kind, err)
		os.Exit(1)
	}
	fmt.Printf("%s %s on owner %d: %s -> %s (ref %s)\n", history.Kind, history.Amount, history.OwnerId, history.Before, history.After, history.Reference)
}
