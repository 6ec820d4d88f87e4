package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/store"
	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// CreateTransport reserves the quantity on the lot, registers the transport in_transit and opens
// its pending sales reception, atomically.
func (s *Service) CreateTransport(ctx context.Context, input models.NewTransport) (transport *models.Transport, reception *models.SalesReception, err error) {
	ctx, span := s.startSpan(ctx, "transport.Create",
		attribute.Int("distillation_id", input.DistillationId), attribute.Int("lot_id", input.LotId))
	defer func() { endSpan(span, err) }()

	if err = input.Validate(); err != nil {
		config.LogError(s.logger, "transportWorkflow.go", "CreateTransport", "Validate", input, err)
		return nil, nil, err
	}
	var keys []string
	if input.LotId > 0 {
		keys = append(keys, utils.LotLockKey(input.LotId))
	} else if s.locker != nil {
		// a missing lot is reported inside the transaction
		if lot, err := s.store.GetProducedStockByDistillation(ctx, input.DistillationId, false); err == nil {
			keys = append(keys, utils.LotLockKey(lot.ID))
		}
	}
	var ownerId int

	err = s.inTransaction(ctx, keys, func(tx store.Store) error {
		d, lot, err := s.resolveTransportSource(ctx, tx, input)
		if err != nil {
			return err
		}
		existing, err := tx.GetTransportByDistillation(ctx, d.ID, false)
		if err != nil && !models.IsNotFound(err) {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: distillation #%d has transport #%d", models.ErrDuplicateTransport, d.ID, existing.ID)
		}

		if err := lot.Reserve(input.Quantity); err != nil {
			return err
		}
		if err := tx.SaveProducedStock(ctx, lot); err != nil {
			return err
		}

		t := &models.Transport{
			DistillationId:    d.ID,
			LotId:             lot.ID,
			CarrierId:         input.CarrierId,
			SellerId:          input.SellerId,
			Status:            models.TransportStatusInTransit,
			QuantityToDeliver: input.Quantity,
			OriginSite:        input.OriginSite,
			DestinationSite:   input.DestinationSite,
			DepartureDate:     input.DepartureDate,
		}
		if t.OriginSite == "" {
			t.OriginSite = lot.SiteOfProduction
		}
		if err := tx.CreateTransport(ctx, t); err != nil {
			return err
		}

		r, err := s.openSalesReception(ctx, tx, models.NewSalesReception{
			SourceType:    models.SalesReceptionSourceTransport,
			SourceId:      t.ID,
			SellerId:      t.SellerId,
			Quantity:      t.QuantityToDeliver,
			ReceptionSite: t.DestinationSite,
			ProductType:   lot.ProductType,
		})
		if err != nil {
			return err
		}
		transport = t
		reception = r
		ownerId = lot.OwnerId
		return nil
	})
	if err != nil {
		config.LogError(s.logger, "transportWorkflow.go", "CreateTransport", "create", input, err)
		return nil, nil, err
	}
	config.LogInfo(s.logger, "transportWorkflow.go", "CreateTransport", "transport created", logrus.Fields{
		"transport_id": transport.ID,
		"lot_id":       transport.LotId,
		"qty":          transport.QuantityToDeliver.String(),
	})
	s.publish(ctx, EventTransportCreated, ownerId, "transport", transport.ID, transport)
	return transport, reception, nil
}

// resolveTransportSource locks the done distillation and its lot, found either way round.
func (s *Service) resolveTransportSource(ctx context.Context, tx store.Store, input models.NewTransport) (*models.Distillation, *models.ProducedStock, error) {
	var d *models.Distillation
	var lot *models.ProducedStock
	var err error

	if input.DistillationId > 0 {
		d, err = tx.GetDistillation(ctx, input.DistillationId, true)
		if err != nil {
			return nil, nil, err
		}
		if d.Status != models.DistillationStatusDone {
			return nil, nil, notTerminal(d)
		}
		lot, err = tx.GetProducedStockByDistillation(ctx, d.ID, true)
		if err != nil {
			return nil, nil, err
		}
		if input.LotId > 0 && input.LotId != lot.ID {
			return nil, nil, models.NewInvalidInput("transport", fmt.Sprintf("lot #%d does not belong to distillation #%d", input.LotId, d.ID))
		}
		return d, lot, nil
	}

	lot, err = tx.GetProducedStock(ctx, input.LotId, true)
	if err != nil {
		return nil, nil, err
	}
	d, err = tx.GetDistillation(ctx, lot.DistillationId, true)
	if err != nil {
		return nil, nil, err
	}
	if d.Status != models.DistillationStatusDone {
		return nil, nil, notTerminal(d)
	}
	return d, lot, nil
}

func notTerminal(d *models.Distillation) error {
	return &models.OperationError{Kind: models.ErrNotTerminal, Entity: "distillation", EntityId: d.ID,
		Message: fmt.Sprintf("status %q", d.Status)}
}

// MarkTransportDelivered withdraws the reserved quantity from the lot and closes the sales
// reception as received (creating it if it went missing).
func (s *Service) MarkTransportDelivered(ctx context.Context, id int, notes string) (transport *models.Transport, reception *models.SalesReception, err error) {
	ctx, span := s.startSpan(ctx, "transport.MarkDelivered", attribute.Int("transport_id", id))
	defer func() { endSpan(span, err) }()

	var keys []string
	if s.locker != nil {
		t, err := s.store.GetTransport(ctx, id, false)
		if err != nil {
			config.LogError(s.logger, "transportWorkflow.go", "MarkTransportDelivered", "GetTransport", id, err)
			return nil, nil, err
		}
		keys = append(keys, utils.LotLockKey(t.LotId))
	}

	var ownerId int
	err = s.inTransaction(ctx, keys, func(tx store.Store) error {
		t, err := tx.GetTransport(ctx, id, true)
		if err != nil {
			return err
		}
		now := s.now()
		if err := t.MarkDelivered(notes, now); err != nil {
			return err
		}
		lot, err := s.applyLotMove(ctx, tx, t.LotId, t.QuantityToDeliver, (*models.ProducedStock).Withdraw)
		if err != nil {
			return err
		}
		ownerId = lot.OwnerId
		if err := tx.SaveTransport(ctx, t); err != nil {
			return err
		}

		r, err := tx.GetSalesReceptionBySource(ctx, models.SalesReceptionSourceTransport, t.ID, true)
		if err != nil && !models.IsNotFound(err) {
			return err
		}
		if r == nil {
			r, err = s.openSalesReception(ctx, tx, models.NewSalesReception{
				SourceType:    models.SalesReceptionSourceTransport,
				SourceId:      t.ID,
				SellerId:      t.SellerId,
				Quantity:      t.QuantityToDeliver,
				ReceptionSite: t.DestinationSite,
				ProductType:   lot.ProductType,
			})
			if err != nil {
				return err
			}
		}
		switch r.Status {
		case models.SalesReceptionStatusPending:
			if err := r.Confirm(t.QuantityToDeliver, now); err != nil {
				return err
			}
		case models.SalesReceptionStatusCancelled:
			if err := r.ForceConfirm(t.QuantityToDeliver, now); err != nil {
				return err
			}
		}
		if err := tx.SaveSalesReception(ctx, r); err != nil {
			return err
		}
		transport = t
		reception = r
		return nil
	})
	if err != nil {
		config.LogError(s.logger, "transportWorkflow.go", "MarkTransportDelivered", "deliver", id, err)
		return nil, nil, err
	}
	s.publish(ctx, EventTransportDelivered, ownerId, "transport", transport.ID, transport)
	return transport, reception, nil
}

func (s *Service) GetTransport(ctx context.Context, id int) (*models.Transport, error) {
	return s.store.GetTransport(ctx, id, false)
}
