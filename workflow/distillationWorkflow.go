package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/store"
	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// StartDistillation moves a pending distillation to in_progress. The cost is debited from the
// owner's balance and, unless disabled, the processed raw quantity is reserved. All or nothing.
func (s *Service) StartDistillation(ctx context.Context, id int, p models.StartDistillationParams) (distillation *models.Distillation, err error) {
	ctx, span := s.startSpan(ctx, "distillation.Start", attribute.Int("distillation_id", id))
	defer func() { endSpan(span, err) }()

	if err = p.Validate(); err != nil {
		config.LogError(s.logger, "distillationWorkflow.go", "StartDistillation", "Validate", p, err)
		return nil, err
	}
	keys, err := s.distillationLockKeys(ctx, id)
	if err != nil {
		config.LogError(s.logger, "distillationWorkflow.go", "StartDistillation", "GetDistillation", id, err)
		return nil, err
	}

	err = s.inTransaction(ctx, keys, func(tx store.Store) error {
		d, err := tx.GetDistillation(ctx, id, true)
		if err != nil {
			return err
		}
		if d.Status != models.DistillationStatusPending {
			return models.NewInvalidState("distillation", d.ID, string(d.Status), "start")
		}

		cost := p.TotalCost()
		if cost.IsPositive() {
			_, err := s.debit(ctx, tx, models.BalanceMovement{
				OwnerId:       d.OwnerId,
				Amount:        cost,
				Reason:        fmt.Sprintf("distillation #%d start", d.ID),
				ReferenceType: models.BalanceReferenceDistillation,
				ReferenceId:   d.ID,
			})
			if err != nil {
				return err
			}
		}

		reserved := decimal.Zero
		if s.reserveRawStockOnStart {
			reserved = p.ProcessedQty
			if reserved.IsZero() {
				reserved = d.QuantityReceived
			}
			if reserved.GreaterThan(d.QuantityReceived) {
				return &models.OperationError{Kind: models.ErrQuantityExceeded, Entity: "distillation", EntityId: d.ID,
					Current: &d.QuantityReceived, Requested: &reserved}
			}
			if reserved.IsPositive() {
				if _, err := s.reserveRawMaterial(ctx, tx, d.DistillerId, d.MaterialType, reserved); err != nil {
					return err
				}
			}
		}

		if err := d.Start(p, reserved); err != nil {
			return err
		}
		if err := tx.SaveDistillation(ctx, d); err != nil {
			return err
		}
		distillation = d
		return nil
	})
	if err != nil {
		config.LogError(s.logger, "distillationWorkflow.go", "StartDistillation", "start", id, err)
		return nil, err
	}
	config.LogInfo(s.logger, "distillationWorkflow.go", "StartDistillation", "distillation started", logrus.Fields{
		"distillation_id": distillation.ID,
		"total_cost":      distillation.TotalCost.String(),
		"reserved_qty":    distillation.ReservedQty.String(),
	})
	s.publish(ctx, EventDistillationStarted, distillation.OwnerId, "distillation", distillation.ID, distillation)
	return distillation, nil
}

// FinishDistillation moves in_progress to done and creates the produced lot in the same
// transaction. Reserved raw material not processed goes back to the stock.
func (s *Service) FinishDistillation(ctx context.Context, id int, p models.FinishDistillationParams) (distillation *models.Distillation, lot *models.ProducedStock, err error) {
	ctx, span := s.startSpan(ctx, "distillation.Finish", attribute.Int("distillation_id", id))
	defer func() { endSpan(span, err) }()

	if err = p.Validate(); err != nil {
		config.LogError(s.logger, "distillationWorkflow.go", "FinishDistillation", "Validate", p, err)
		return nil, nil, err
	}
	keys, err := s.distillationLockKeys(ctx, id)
	if err != nil {
		config.LogError(s.logger, "distillationWorkflow.go", "FinishDistillation", "GetDistillation", id, err)
		return nil, nil, err
	}

	err = s.inTransaction(ctx, keys, func(tx store.Store) error {
		d, err := tx.GetDistillation(ctx, id, true)
		if err != nil {
			return err
		}
		if d.Status != models.DistillationStatusInProgress {
			return models.NewInvalidState("distillation", d.ID, string(d.Status), "finish")
		}

		if d.ReservedQty.IsPositive() {
			if p.ProcessedQty.IsZero() {
				p.ProcessedQty = d.ReservedQty
			}
			if p.ProcessedQty.GreaterThan(d.ReservedQty) {
				return &models.OperationError{Kind: models.ErrQuantityExceeded, Entity: "distillation", EntityId: d.ID,
					Current: &d.ReservedQty, Requested: &p.ProcessedQty}
			}
			if unused := d.ReservedQty.Sub(p.ProcessedQty); unused.IsPositive() {
				if _, err := s.releaseRawMaterial(ctx, tx, d.DistillerId, d.MaterialType, unused); err != nil {
					return err
				}
				d.ReservedQty = p.ProcessedQty
			}
		}

		if err := d.Finish(p); err != nil {
			return err
		}
		if err := tx.SaveDistillation(ctx, d); err != nil {
			return err
		}

		newLot := models.NewLotFromDistillation(d, p.SiteOfProduction, s.now())
		if err := tx.CreateProducedStock(ctx, newLot); err != nil {
			return err
		}
		distillation = d
		lot = newLot
		return nil
	})
	if err != nil {
		config.LogError(s.logger, "distillationWorkflow.go", "FinishDistillation", "finish", id, err)
		return nil, nil, err
	}
	config.LogInfo(s.logger, "distillationWorkflow.go", "FinishDistillation", "distillation done", logrus.Fields{
		"distillation_id": distillation.ID,
		"lot_id":          lot.ID,
		"yield":           distillation.Yield.String(),
	})
	s.publish(ctx, EventDistillationDone, distillation.OwnerId, "distillation", distillation.ID, lot)
	return distillation, lot, nil
}

// CancelDistillation undoes a start made in error: in_progress back to pending, the raw
// reservation released and the cost credited back.
func (s *Service) CancelDistillation(ctx context.Context, id int) (distillation *models.Distillation, err error) {
	ctx, span := s.startSpan(ctx, "distillation.Cancel", attribute.Int("distillation_id", id))
	defer func() { endSpan(span, err) }()

	keys, err := s.distillationLockKeys(ctx, id)
	if err != nil {
		config.LogError(s.logger, "distillationWorkflow.go", "CancelDistillation", "GetDistillation", id, err)
		return nil, err
	}

	err = s.inTransaction(ctx, keys, func(tx store.Store) error {
		d, err := tx.GetDistillation(ctx, id, true)
		if err != nil {
			return err
		}
		if d.Status != models.DistillationStatusInProgress {
			return models.NewInvalidState("distillation", d.ID, string(d.Status), "cancel")
		}
		if d.ReservedQty.IsPositive() {
			if _, err := s.releaseRawMaterial(ctx, tx, d.DistillerId, d.MaterialType, d.ReservedQty); err != nil {
				return err
			}
		}
		if d.TotalCost.IsPositive() {
			_, err := s.credit(ctx, tx, models.BalanceMovement{
				OwnerId:       d.OwnerId,
				Amount:        d.TotalCost,
				Reason:        fmt.Sprintf("distillation #%d cancelled", d.ID),
				ReferenceType: models.BalanceReferenceDistillationCancel,
				ReferenceId:   d.ID,
			})
			if err != nil {
				return err
			}
		}
		if err := d.ResetToPending(); err != nil {
			return err
		}
		if err := tx.SaveDistillation(ctx, d); err != nil {
			return err
		}
		distillation = d
		return nil
	})
	if err != nil {
		config.LogError(s.logger, "distillationWorkflow.go", "CancelDistillation", "cancel", id, err)
		return nil, err
	}
	s.publish(ctx, EventDistillationCancelled, distillation.OwnerId, "distillation", distillation.ID, distillation)
	return distillation, nil
}

func (s *Service) GetDistillation(ctx context.Context, id int) (*models.Distillation, error) {
	return s.store.GetDistillation(ctx, id, false)
}

// ListDistillations filters by owner and status; zero values match all.
func (s *Service) ListDistillations(ctx context.Context, ownerId int, status models.DistillationStatus) ([]*models.Distillation, error) {
	return s.store.ListDistillations(ctx, ownerId, status)
}

// distillationLockKeys reads the distillation outside the transaction to learn which keys to lock.
func (s *Service) distillationLockKeys(ctx context.Context, id int) ([]string, error) {
	if s.locker == nil {
		return nil, nil
	}
	d, err := s.store.GetDistillation(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return []string{utils.BalanceLockKey(d.OwnerId), utils.RawStockLockKey(d.DistillerId, d.MaterialType)}, nil
}
