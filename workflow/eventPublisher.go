package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/mmdatafocus/erp_core/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// EventPublisher delivers one outbox event and returns the broker's id for it.
type EventPublisher interface {
	Publish(ctx context.Context, msg config.LedgerEventMessage) (string, error)
}

type PubSubPublisher struct{}

func (PubSubPublisher) Publish(ctx context.Context, msg config.LedgerEventMessage) (string, error) {
	return config.PublishLedgerEvent(ctx, msg)
}

type KafkaPublisher struct{}

func (KafkaPublisher) Publish(_ context.Context, msg config.LedgerEventMessage) (string, error) {
	return config.PublishLedgerEventKafka(msg)
}

// RedisStreamPublisher appends events to a Redis stream (REDIS_EVENT_STREAM, default ledger-events).
type RedisStreamPublisher struct {
	Client *redis.Client
	Stream string
}

func (p RedisStreamPublisher) Publish(ctx context.Context, msg config.LedgerEventMessage) (string, error) {
	if p.Client == nil {
		return "", errors.New("redis is not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return p.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.Stream,
		Values: map[string]interface{}{
			"business_id": msg.BusinessId,
			"event_type":  msg.EventType,
			"data":        data,
		},
	}).Result()
}

// LogPublisher only logs events. It is the default, so the outbox drains without a broker.
type LogPublisher struct {
	Logger *logrus.Logger
}

func (p LogPublisher) Publish(_ context.Context, msg config.LedgerEventMessage) (string, error) {
	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"field":          "LogPublisher",
			"business_id":    msg.BusinessId,
			"event_type":     msg.EventType,
			"reference_type": msg.ReferenceType,
			"reference_id":   msg.ReferenceId,
			"correlation_id": msg.CorrelationId,
		}).Info("ledger event")
	}
	return "log-" + strconv.Itoa(msg.ID), nil
}

// NewEventPublisherFromEnv picks the publisher named by EVENT_PUBLISHER (pubsub|kafka|redis|log).
func NewEventPublisherFromEnv() EventPublisher {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("EVENT_PUBLISHER"))) {
	case "pubsub":
		return PubSubPublisher{}
	case "kafka":
		return KafkaPublisher{}
	case "redis":
		stream := os.Getenv("REDIS_EVENT_STREAM")
		if stream == "" {
			stream = "ledger-events"
		}
		return RedisStreamPublisher{Client: config.GetRedisDB(), Stream: stream}
	default:
		return LogPublisher{Logger: config.GetLogger()}
	}
}
