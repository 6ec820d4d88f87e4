package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/store"
	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

func (s *Service) CreateExpedition(ctx context.Context, input models.NewExpedition) (expedition *models.Expedition, err error) {
	ctx, span := s.startSpan(ctx, "expedition.Create", attribute.Int("distiller_id", input.DistillerId))
	defer func() { endSpan(span, err) }()

	if err = input.Validate(); err != nil {
		config.LogError(s.logger, "expeditionWorkflow.go", "CreateExpedition", "Validate", input, err)
		return nil, err
	}
	e := input.ToExpedition()
	if err = s.store.CreateExpedition(ctx, e); err != nil {
		config.LogError(s.logger, "expeditionWorkflow.go", "CreateExpedition", "CreateExpedition", input, err)
		return nil, err
	}
	return e, nil
}

func (s *Service) GetExpedition(ctx context.Context, id int) (*models.Expedition, error) {
	return s.store.GetExpedition(ctx, id, false)
}

// MarkExpeditionReceived records the reception, aggregates it into the raw material stock and
// opens the pending distillation, in one transaction. An aggregation failure rolls everything back.
func (s *Service) MarkExpeditionReceived(ctx context.Context, id int, receivedQty decimal.Decimal, date time.Time) (expedition *models.Expedition, distillation *models.Distillation, err error) {
	ctx, span := s.startSpan(ctx, "expedition.MarkReceived", attribute.Int("expedition_id", id))
	defer func() { endSpan(span, err) }()

	keys, err := s.expeditionLockKeys(ctx, id)
	if err != nil {
		config.LogError(s.logger, "expeditionWorkflow.go", "MarkExpeditionReceived", "GetExpedition", id, err)
		return nil, nil, err
	}

	err = s.inTransaction(ctx, keys, func(tx store.Store) error {
		e, err := tx.GetExpedition(ctx, id, true)
		if err != nil {
			return err
		}
		if err := e.MarkReceived(receivedQty, date); err != nil {
			return err
		}
		if err := tx.SaveExpedition(ctx, e); err != nil {
			return err
		}
		if _, err := s.AddFromExpedition(ctx, tx, e); err != nil {
			return models.NewAggregationFailure(e.ID, err)
		}
		d := e.NewDistillationSlot()
		if err := tx.CreateDistillation(ctx, d); err != nil {
			return err
		}
		expedition = e
		distillation = d
		return nil
	})
	if err != nil {
		config.LogError(s.logger, "expeditionWorkflow.go", "MarkExpeditionReceived", "receive", receivedQty.String(), err)
		return nil, nil, err
	}
	config.LogInfo(s.logger, "expeditionWorkflow.go", "MarkExpeditionReceived", "expedition received", logrus.Fields{
		"expedition_id":   expedition.ID,
		"distillation_id": distillation.ID,
		"received_qty":    expedition.ReceivedQty.String(),
	})
	s.publish(ctx, EventExpeditionReceived, expedition.OwnerId, "expedition", expedition.ID, expedition)
	return expedition, distillation, nil
}

// CancelExpeditionReception is a compensating action, not an undo: the contribution is
// subtracted from the aggregate (clamped at zero) and the pending distillation slot removed.
// It refuses once the distillation has started.
func (s *Service) CancelExpeditionReception(ctx context.Context, id int) (expedition *models.Expedition, err error) {
	ctx, span := s.startSpan(ctx, "expedition.CancelReception", attribute.Int("expedition_id", id))
	defer func() { endSpan(span, err) }()

	keys, err := s.expeditionLockKeys(ctx, id)
	if err != nil {
		config.LogError(s.logger, "expeditionWorkflow.go", "CancelExpeditionReception", "GetExpedition", id, err)
		return nil, err
	}

	err = s.inTransaction(ctx, keys, func(tx store.Store) error {
		e, err := tx.GetExpedition(ctx, id, true)
		if err != nil {
			return err
		}
		if e.Status != models.ExpeditionStatusReceived {
			return models.NewInvalidState("expedition", e.ID, string(e.Status), "cancel reception")
		}
		d, err := tx.GetDistillationByExpedition(ctx, e.ID, true)
		if err != nil && !models.IsNotFound(err) {
			return err
		}
		if d != nil {
			if d.Status != models.DistillationStatusPending {
				return models.NewInvalidState("distillation", d.ID, string(d.Status), "cancel expedition reception")
			}
			if err := tx.DeleteDistillation(ctx, d.ID); err != nil {
				return err
			}
		}
		if _, err := s.SubtractContribution(ctx, tx, e); err != nil {
			return err
		}
		if err := e.RevertReception(); err != nil {
			return err
		}
		if err := tx.SaveExpedition(ctx, e); err != nil {
			return err
		}
		expedition = e
		return nil
	})
	if err != nil {
		config.LogError(s.logger, "expeditionWorkflow.go", "CancelExpeditionReception", "cancel", id, err)
		return nil, err
	}
	s.publish(ctx, EventExpeditionReceptionCancelled, expedition.OwnerId, "expedition", expedition.ID, expedition)
	return expedition, nil
}

func (s *Service) expeditionLockKeys(ctx context.Context, id int) ([]string, error) {
	if s.locker == nil {
		return nil, nil
	}
	e, err := s.store.GetExpedition(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return []string{utils.RawStockLockKey(e.DistillerId, e.MaterialType)}, nil
}
