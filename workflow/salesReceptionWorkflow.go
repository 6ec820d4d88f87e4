package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/store"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

func (s *Service) OpenSalesReception(ctx context.Context, input models.NewSalesReception) (reception *models.SalesReception, err error) {
	ctx, span := s.startSpan(ctx, "salesReception.Open",
		attribute.String("source_type", string(input.SourceType)), attribute.Int("source_id", input.SourceId))
	defer func() { endSpan(span, err) }()

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		r, err := s.openSalesReception(ctx, tx, input)
		reception = r
		return err
	})
	if err != nil {
		config.LogError(s.logger, "salesReceptionWorkflow.go", "OpenSalesReception", "open", input, err)
		return nil, err
	}
	return reception, nil
}

// openSalesReception creates the pending reception of a source; one per (source type, source id).
func (s *Service) openSalesReception(ctx context.Context, tx store.Store, input models.NewSalesReception) (*models.SalesReception, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	switch input.SourceType {
	case models.SalesReceptionSourceExpedition:
		if _, err := tx.GetExpedition(ctx, input.SourceId, false); err != nil {
			return nil, err
		}
	case models.SalesReceptionSourceTransport:
		if _, err := tx.GetTransport(ctx, input.SourceId, false); err != nil {
			return nil, err
		}
	}
	existing, err := tx.GetSalesReceptionBySource(ctx, input.SourceType, input.SourceId, false)
	if err != nil && !models.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s #%d has reception #%d", models.ErrDuplicateReception, input.SourceType, input.SourceId, existing.ID)
	}
	r := input.ToSalesReception()
	if err := tx.CreateSalesReception(ctx, r); err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: %s #%d", models.ErrDuplicateReception, input.SourceType, input.SourceId)
		}
		return nil, err
	}
	return r, nil
}

func (s *Service) ConfirmSalesReception(ctx context.Context, id int, receivedQty decimal.Decimal) (*models.SalesReception, error) {
	return s.updateSalesReception(ctx, "salesReception.Confirm", "ConfirmSalesReception", id, func(r *models.SalesReception) error {
		return r.Confirm(receivedQty, s.now())
	})
}

// ForceConfirmSalesReception is the manual override for a pending or cancelled reception.
func (s *Service) ForceConfirmSalesReception(ctx context.Context, id int, receivedQty decimal.Decimal) (*models.SalesReception, error) {
	return s.updateSalesReception(ctx, "salesReception.ForceConfirm", "ForceConfirmSalesReception", id, func(r *models.SalesReception) error {
		return r.ForceConfirm(receivedQty, s.now())
	})
}

func (s *Service) CancelSalesReception(ctx context.Context, id int) (*models.SalesReception, error) {
	return s.updateSalesReception(ctx, "salesReception.Cancel", "CancelSalesReception", id, func(r *models.SalesReception) error {
		return r.Cancel()
	})
}

func (s *Service) updateSalesReception(ctx context.Context, spanName string, funcName string, id int, apply func(r *models.SalesReception) error) (reception *models.SalesReception, err error) {
	ctx, span := s.startSpan(ctx, spanName, attribute.Int("sales_reception_id", id))
	defer func() { endSpan(span, err) }()

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		r, err := tx.GetSalesReception(ctx, id, true)
		if err != nil {
			return err
		}
		if err := apply(r); err != nil {
			return err
		}
		if err := tx.SaveSalesReception(ctx, r); err != nil {
			return err
		}
		reception = r
		return nil
	})
	if err != nil {
		config.LogError(s.logger, "salesReceptionWorkflow.go", funcName, "update", id, err)
		return nil, err
	}
	s.publish(ctx, EventSalesReceptionUpdated, 0, "sales_reception", reception.ID, reception)
	return reception, nil
}

func (s *Service) GetSalesReception(ctx context.Context, id int) (*models.SalesReception, error) {
	return s.store.GetSalesReception(ctx, id, false)
}

func (s *Service) GetSalesReceptionBySource(ctx context.Context, sourceType models.SalesReceptionSourceType, sourceId int) (*models.SalesReception, error) {
	return s.store.GetSalesReceptionBySource(ctx, sourceType, sourceId, false)
}
