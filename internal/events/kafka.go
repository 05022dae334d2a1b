package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mrlokans/mlssync/internal/metrics"
)

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ParseBrokers splits a comma-separated broker list, dropping empty entries
func ParseBrokers(brokers string) []string {
	var result []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			result = append(result, b)
		}
	}
	return result
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes listing events to a Kafka topic, keyed by external
// id so every change of one listing lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a synchronous Kafka publisher
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Lets the first publish succeed against a dev broker without a pre-created topic.
		AllowAutoTopicCreation: true,
	}

	return &KafkaPublisher{writer: writer, topic: cfg.Topic}
}

// Publish sends all events in one batch
func (p *KafkaPublisher) Publish(ctx context.Context, events []ListingEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		if evt.OccurredAt.IsZero() {
			evt.OccurredAt = time.Now().UTC()
		}
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal listing event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.ExternalID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(evt.Type)},
				{Key: "run_id", Value: []byte(evt.RunID)},
			},
		})
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		log.Printf("Events: failed to publish %d listing events to Kafka topic %s: %v", len(msgs), p.topic, err)
		return fmt.Errorf("failed to publish listing events: %w", err)
	}
	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())
	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
