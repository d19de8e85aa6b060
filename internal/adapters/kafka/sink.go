// Package kafka publishes request events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/IBM/sarama"

	"mediagate/internal/core/domain"
)

// Config holds producer settings.
type Config struct {
	Brokers []string
	Topic   string
}

// Sink implements ports.EventSink with a synchronous producer. Events are
// keyed by client so one client's history stays ordered within a partition.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *log.Logger
}

// NewSink connects a producer to the brokers.
func NewSink(cfg Config, logger *log.Logger) (*Sink, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting to kafka: %w", err)
	}
	return NewSinkWithProducer(producer, cfg.Topic, logger), nil
}

// NewSinkWithProducer wraps an existing producer.
func NewSinkWithProducer(producer sarama.SyncProducer, topic string, logger *log.Logger) *Sink {
	return &Sink{producer: producer, topic: topic, logger: logger}
}

// Record publishes event as JSON.
func (s *Sink) Record(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(event.Client),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(event.Type)},
			{Key: []byte("status"), Value: []byte(event.Status)},
		},
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publishing event %s: %w", event.ID, err)
	}
	s.logger.Printf("Event %s published to %s [%d@%d]", event.ID, s.topic, partition, offset)
	return nil
}

// Close flushes and closes the producer.
func (s *Sink) Close() error {
	return s.producer.Close()
}
