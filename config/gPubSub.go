package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// StockEventMessage is published after a stock or workflow change has committed.
type StockEventMessage struct {
	EventType     string          `json:"event_type"`
	OwnerId       int             `json:"owner_id"`
	ReferenceType string          `json:"reference_type"`
	ReferenceId   int             `json:"reference_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationId string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}

// StockEventsTopic is empty when stock events are disabled.
func StockEventsTopic() string {
	return os.Getenv("STOCK_EVENTS_TOPIC")
}

// GetPubSubClient returns the shared client, creating it on first use.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	c, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}
	pubsubClient = c
	log.Printf("pubsub client ready (project_id=%s)", projectID)
	return pubsubClient, nil
}

// PubSubStockEventPublisher sends StockEventMessage values to one topic and waits for the
// server id, bounded by timeout.
type PubSubStockEventPublisher struct {
	topic   *pubsub.Topic
	timeout time.Duration
}

func NewPubSubStockEventPublisher(ctx context.Context, topicName string) (*PubSubStockEventPublisher, error) {
	if topicName == "" {
		return nil, errors.New("topic is required")
	}
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return nil, err
	}
	return &PubSubStockEventPublisher{topic: client.Topic(topicName), timeout: 10 * time.Second}, nil
}

func (p *PubSubStockEventPublisher) Publish(ctx context.Context, msg StockEventMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type":     msg.EventType,
			"correlation_id": msg.CorrelationId,
		},
	})
	_, err = result.Get(ctx)
	return err
}
