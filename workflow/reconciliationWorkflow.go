package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ReconciliationIssue is one row found in an impossible state.
type ReconciliationIssue struct {
	Entity   string `json:"entity"`
	EntityId int    `json:"entity_id"`
	Problem  string `json:"problem"`
}

// ReconcileStocks scans raw material stocks, lots and finished distillations and reports every
// broken invariant. It only reads; fixing is left to raw-stock-rebuild or an operator.
func (s *Service) ReconcileStocks(ctx context.Context) (issues []ReconciliationIssue, err error) {
	ctx, span := s.startSpan(ctx, "reconciliation.Stocks")
	defer func() { endSpan(span, err) }()

	stocks, err := s.store.ListRawMaterialStocks(ctx, 0)
	if err != nil {
		config.LogError(s.logger, "reconciliationWorkflow.go", "ReconcileStocks", "ListRawMaterialStocks", nil, err)
		return nil, err
	}
	for _, stock := range stocks {
		if err := stock.CheckInvariants(); err != nil {
			issues = append(issues, ReconciliationIssue{Entity: "raw_material_stock", EntityId: stock.ID, Problem: err.Error()})
		}
		expeditions, err := s.store.ListReceivedExpeditions(ctx, stock.DistillerId, stock.MaterialType)
		if err != nil {
			config.LogError(s.logger, "reconciliationWorkflow.go", "ReconcileStocks", "ListReceivedExpeditions", stock.ID, err)
			return nil, err
		}
		received := decimal.Zero
		for _, e := range expeditions {
			received = received.Add(e.ReceivedQty)
		}
		if !received.Equal(stock.QuantityInitial) {
			issues = append(issues, ReconciliationIssue{
				Entity:   "raw_material_stock",
				EntityId: stock.ID,
				Problem:  fmt.Sprintf("quantity_initial %s differs from received expeditions %s", stock.QuantityInitial, received),
			})
		}
	}

	lots, err := s.store.ListProducedStocks(ctx, store.LotFilter{}, false)
	if err != nil {
		config.LogError(s.logger, "reconciliationWorkflow.go", "ReconcileStocks", "ListProducedStocks", nil, err)
		return nil, err
	}
	for _, lot := range lots {
		if err := lot.CheckInvariants(); err != nil {
			issues = append(issues, ReconciliationIssue{Entity: "produced_stock", EntityId: lot.ID, Problem: err.Error()})
		}
	}

	done, err := s.store.ListDistillations(ctx, 0, models.DistillationStatusDone)
	if err != nil {
		config.LogError(s.logger, "reconciliationWorkflow.go", "ReconcileStocks", "ListDistillations", nil, err)
		return nil, err
	}
	for _, d := range done {
		_, err := s.store.GetProducedStockByDistillation(ctx, d.ID, false)
		if models.IsNotFound(err) {
			issues = append(issues, ReconciliationIssue{Entity: "distillation", EntityId: d.ID, Problem: "done without produced lot"})
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	for _, issue := range issues {
		s.logger.WithFields(logrus.Fields{
			"module":    "reconciliationWorkflow.go",
			"entity":    issue.Entity,
			"entity_id": issue.EntityId,
		}).Warn(issue.Problem)
	}
	return issues, nil
}
