// internal/publisher/mqtt_publisher.go
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"shutter-service/internal/config"
	"shutter-service/internal/model"
)

const mqttDisconnectQuiesce = 250 // milliseconds

// MQTTPublisher publishes events as JSON messages, one topic per event type
type MQTTPublisher struct {
	client   mqtt.Client
	prefix   string
	qos      byte
	retained bool
	timeout  time.Duration
	logger   *zap.Logger
}

// NewMQTTPublisher connects to the configured broker
func NewMQTTPublisher(cfg config.PublisherConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	if cfg.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}

	timeout := cfg.MQTT.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	log := logger.With(
		zap.String("publisher", config.PublisherMQTT),
		zap.String("broker", cfg.MQTT.Broker),
	)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("MQTT connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			log.Info("MQTT connected")
		})
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: timed out after %s", cfg.MQTT.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", cfg.MQTT.Broker, err)
	}

	return &MQTTPublisher{
		client:   client,
		prefix:   cfg.TopicPrefix,
		qos:      cfg.MQTT.QoS,
		retained: cfg.MQTT.Retained,
		timeout:  timeout,
		logger:   log,
	}, nil
}

// Publish sends the event and waits for the broker acknowledgement
func (p *MQTTPublisher) Publish(ctx context.Context, event *model.DeviceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := Topic(p.prefix, event.EventType)
	token := p.client.Publish(topic, p.qos, p.retained, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("failed to publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.logger.Debug("Event published", zap.String("topic", topic), zap.String("event_id", event.ID.String()))
	return nil
}

// Name returns "mqtt"
func (p *MQTTPublisher) Name() string {
	return config.PublisherMQTT
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(mqttDisconnectQuiesce)
	p.logger.Info("MQTT publisher closed")
	return nil
}
