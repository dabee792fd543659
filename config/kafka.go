package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/IBM/sarama"
)

var (
	kafkaProducer   sarama.SyncProducer
	kafkaProducerMu sync.Mutex
)

func getKafkaProducer() (sarama.SyncProducer, error) {
	kafkaProducerMu.Lock()
	defer kafkaProducerMu.Unlock()
	if kafkaProducer != nil {
		return kafkaProducer, nil
	}
	brokers := splitList(os.Getenv("KAFKA_BROKERS"))
	if len(brokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	kafkaProducer = p
	return p, nil
}

// PublishLedgerEventKafka sends the event keyed by business id, so one tenant's events stay ordered
// within a partition. Returns "partition/offset" as the message id.
func PublishLedgerEventKafka(msg LedgerEventMessage) (string, error) {
	producer, err := getKafkaProducer()
	if err != nil {
		return "", err
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		return "", errors.New("KAFKA_TOPIC is required")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	partition, offset, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(msg.BusinessId),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(msg.EventType)},
		},
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d", partition, offset), nil
}

func CloseKafka() {
	kafkaProducerMu.Lock()
	defer kafkaProducerMu.Unlock()
	if kafkaProducer != nil {
		_ = kafkaProducer.Close()
		kafkaProducer = nil
	}
}
