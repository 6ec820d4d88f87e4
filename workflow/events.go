package workflow

import (
	"context"
	"encoding/json"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/utils"
)

const (
	EventExpeditionReceived           = "expedition.received"
	EventExpeditionReceptionCancelled = "expedition.reception_cancelled"
	EventDistillationStarted          = "distillation.started"
	EventDistillationDone             = "distillation.done"
	EventDistillationCancelled        = "distillation.cancelled"
	EventTransportCreated             = "transport.created"
	EventTransportDelivered           = "transport.delivered"
	EventSalesReceptionUpdated        = "sales_reception.updated"
)

// EventPublisher receives committed changes. A failed publish never undoes the change.
type EventPublisher interface {
	Publish(ctx context.Context, msg config.StockEventMessage) error
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// publish is called after the transaction committed; errors are only logged.
func (s *Service) publish(ctx context.Context, eventType string, ownerId int, referenceType string, referenceId int, payload any) {
	if s.events == nil {
		return
	}
	msg := config.StockEventMessage{
		EventType:     eventType,
		OwnerId:       ownerId,
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		OccurredAt:    s.now(),
	}
	msg.CorrelationId, _ = utils.GetCorrelationIdFromContext(ctx)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			config.LogError(s.logger, "events.go", "publish", "Marshal", eventType, err)
			return
		}
		msg.Payload = data
	}
	if err := s.events.Publish(ctx, msg); err != nil {
		config.LogError(s.logger, "events.go", "publish", "Publish", msg, err)
	}
}
