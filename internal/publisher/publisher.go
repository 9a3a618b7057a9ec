// internal/publisher/publisher.go
package publisher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"shutter-service/internal/config"
	"shutter-service/internal/model"
)

// Publisher sends device events to an external broker
type Publisher interface {
	Publish(ctx context.Context, event *model.DeviceEvent) error
	Name() string
	Close() error
}

// New creates the publisher selected by cfg.Type
func New(cfg config.PublisherConfig, logger *zap.Logger) (Publisher, error) {
	switch strings.ToLower(cfg.Type) {
	case "", config.PublisherNone:
		return NewNoopPublisher(logger), nil
	case config.PublisherMQTT:
		return NewMQTTPublisher(cfg, logger)
	case config.PublisherKafka:
		return NewKafkaPublisher(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported publisher type: %s", cfg.Type)
	}
}

// Topic joins the prefix and the event type, e.g. shutter/measurement.completed
func Topic(prefix string, eventType model.EventType) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return string(eventType)
	}
	return prefix + "/" + string(eventType)
}

// NoopPublisher drops every event
type NoopPublisher struct {
	logger *zap.Logger
}

// NewNoopPublisher creates a publisher that only logs at debug level
func NewNoopPublisher(logger *zap.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger.With(zap.String("publisher", config.PublisherNone))}
}

// Publish logs the event and returns nil
func (p *NoopPublisher) Publish(ctx context.Context, event *model.DeviceEvent) error {
	p.logger.Debug("Event not published", zap.String("event_type", string(event.EventType)))
	return nil
}

// Name returns "none"
func (p *NoopPublisher) Name() string {
	return config.PublisherNone
}

// Close is a no-op
func (p *NoopPublisher) Close() error {
	return nil
}
