package workflow

import (
	"context"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/store"
	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type lotMove func(lot *models.ProducedStock, qty decimal.Decimal) error

func (s *Service) ReserveLot(ctx context.Context, lotId int, qty decimal.Decimal) (*models.ProducedStock, error) {
	return s.moveLot(ctx, "producedStock.Reserve", "ReserveLot", lotId, qty, (*models.ProducedStock).Reserve)
}

func (s *Service) ReleaseLot(ctx context.Context, lotId int, qty decimal.Decimal) (*models.ProducedStock, error) {
	return s.moveLot(ctx, "producedStock.Release", "ReleaseLot", lotId, qty, (*models.ProducedStock).Release)
}

func (s *Service) WithdrawLot(ctx context.Context, lotId int, qty decimal.Decimal) (*models.ProducedStock, error) {
	return s.moveLot(ctx, "producedStock.Withdraw", "WithdrawLot", lotId, qty, (*models.ProducedStock).Withdraw)
}

func (s *Service) moveLot(ctx context.Context, spanName string, funcName string, lotId int, qty decimal.Decimal, move lotMove) (lot *models.ProducedStock, err error) {
	ctx, span := s.startSpan(ctx, spanName, attribute.Int("lot_id", lotId), attribute.String("qty", qty.String()))
	defer func() { endSpan(span, err) }()

	err = s.inTransaction(ctx, []string{utils.LotLockKey(lotId)}, func(tx store.Store) error {
		l, err := s.applyLotMove(ctx, tx, lotId, qty, move)
		lot = l
		return err
	})
	if err != nil {
		config.LogError(s.logger, "producedStockWorkflow.go", funcName, "move", qty.String(), err)
		return nil, err
	}
	return lot, nil
}

func (s *Service) applyLotMove(ctx context.Context, tx store.Store, lotId int, qty decimal.Decimal, move lotMove) (*models.ProducedStock, error) {
	lot, err := tx.GetProducedStock(ctx, lotId, true)
	if err != nil {
		return nil, err
	}
	if err := move(lot, qty); err != nil {
		return nil, err
	}
	if err := tx.SaveProducedStock(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

// AllocateFIFO plans which lots would cover qty, oldest entry first. Nothing is reserved.
func (s *Service) AllocateFIFO(ctx context.Context, ownerId int, productType string, qty decimal.Decimal) ([]models.LotAllocation, error) {
	lots, err := s.store.ListProducedStocks(ctx, store.LotFilter{OwnerId: ownerId, ProductType: productType, AvailableOnly: true}, false)
	if err != nil {
		config.LogError(s.logger, "producedStockWorkflow.go", "AllocateFIFO", "ListProducedStocks", productType, err)
		return nil, err
	}
	return models.PlanFIFO(lots, qty)
}

// ReserveFIFO reserves qty across lots oldest entry first, in one transaction.
func (s *Service) ReserveFIFO(ctx context.Context, ownerId int, productType string, qty decimal.Decimal) (allocations []models.LotAllocation, err error) {
	ctx, span := s.startSpan(ctx, "producedStock.ReserveFIFO",
		attribute.Int("owner_id", ownerId), attribute.String("product_type", productType))
	defer func() { endSpan(span, err) }()

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		lots, err := tx.ListProducedStocks(ctx, store.LotFilter{OwnerId: ownerId, ProductType: productType, AvailableOnly: true}, true)
		if err != nil {
			return err
		}
		plan, err := models.PlanFIFO(lots, qty)
		if err != nil {
			return err
		}
		byId := make(map[int]*models.ProducedStock, len(lots))
		for _, lot := range lots {
			byId[lot.ID] = lot
		}
		for _, a := range plan {
			lot := byId[a.LotId]
			if err := lot.Reserve(a.Quantity); err != nil {
				return err
			}
			if err := tx.SaveProducedStock(ctx, lot); err != nil {
				return err
			}
		}
		allocations = plan
		return nil
	})
	if err != nil {
		config.LogError(s.logger, "producedStockWorkflow.go", "ReserveFIFO", "reserve", qty.String(), err)
		return nil, err
	}
	return allocations, nil
}

func (s *Service) GetLot(ctx context.Context, lotId int) (*models.ProducedStock, error) {
	return s.store.GetProducedStock(ctx, lotId, false)
}

// ListLots returns the lots of an owner and product type, oldest entry first.
func (s *Service) ListLots(ctx context.Context, ownerId int, productType string) ([]*models.ProducedStock, error) {
	return s.store.ListProducedStocks(ctx, store.LotFilter{OwnerId: ownerId, ProductType: productType}, false)
}
