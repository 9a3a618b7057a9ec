// internal/publisher/kafka_publisher.go
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"shutter-service/internal/config"
	"shutter-service/internal/model"
)

// messageWriter is the part of kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by event type
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher creates a writer for the configured brokers. Brokers are
// contacted lazily on the first write.
func NewKafkaPublisher(cfg config.PublisherConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Kafka.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	batchTimeout := cfg.Kafka.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: batchTimeout,
		WriteTimeout: cfg.Kafka.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	if cfg.Kafka.ClientID != "" {
		writer.Transport = &kafka.Transport{ClientID: cfg.Kafka.ClientID}
	}

	return newKafkaPublisher(writer, cfg.Kafka.Topic, logger), nil
}

func newKafkaPublisher(writer messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger.With(zap.String("publisher", config.PublisherKafka), zap.String("topic", topic)),
	}
}

// Publish writes the event as a JSON message
func (p *KafkaPublisher) Publish(ctx context.Context, event *model.DeviceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.EventType),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "device", Value: []byte(event.Device)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to kafka topic %s: %w", p.topic, err)
	}

	p.logger.Debug("Event published", zap.String("event_type", string(event.EventType)))
	return nil
}

// Name returns "kafka"
func (p *KafkaPublisher) Name() string {
	return config.PublisherKafka
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	p.logger.Info("Kafka publisher closed")
	return nil
}
