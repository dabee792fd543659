package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// LedgerEventMessage is the wire shape of an outbox event, shared by every publisher.
type LedgerEventMessage struct {
	ID            int       `json:"id"`
	BusinessId    string    `json:"business_id"`
	EventType     string    `json:"event_type"`
	ReferenceType string    `json:"reference_type"`
	ReferenceId   int       `json:"reference_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	Payload       []byte    `json:"payload"`
	CorrelationId string    `json:"correlation_id"`
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

// getPubSubClient initializes the shared client with retries until ctx is done.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var shared *pubsub.Client
	err := retryUntil(ctx, "pubsub project "+projectID, func() error {
		var opts []option.ClientOption
		if credJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
		}
		c, err := pubsub.NewClient(ctx, projectID, opts...)
		if err != nil {
			return err
		}
		pubsubClientMu.Lock()
		defer pubsubClientMu.Unlock()
		if pubsubClient == nil {
			pubsubClient = c
		} else {
			// Lost the race to another publisher.
			_ = c.Close()
		}
		shared = pubsubClient
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shared, nil
}

// PublishLedgerEvent publishes to PUBSUB_TOPIC and returns the server-assigned message id.
// The business id is sent as an ordering-friendly attribute so subscribers can filter per tenant.
func PublishLedgerEvent(ctx context.Context, msg LedgerEventMessage) (string, error) {
	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	topicName := os.Getenv("PUBSUB_TOPIC")
	if topicName == "" {
		return "", errors.New("PUBSUB_TOPIC is required")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := client.Topic(topicName).Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"business_id": msg.BusinessId,
			"event_type":  msg.EventType,
		},
	})
	return result.Get(ctx)
}

// ClosePubSub releases the shared client (best-effort, on shutdown).
func ClosePubSub() {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		_ = pubsubClient.Close()
		pubsubClient = nil
	}
}
