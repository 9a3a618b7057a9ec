package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shutter-service/internal/config"
	"shutter-service/internal/model"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "shutter/measurement.completed", Topic("shutter", model.EventMeasurementCompleted))
	assert.Equal(t, "shutter/telemetry.frame", Topic("shutter/", model.EventTelemetryFrame))
	assert.Equal(t, "device.connected", Topic("", model.EventDeviceConnected))
}

func TestNewSelectsPublisher(t *testing.T) {
	logger := zaptest.NewLogger(t)

	p, err := New(config.PublisherConfig{Type: ""}, logger)
	require.NoError(t, err)
	assert.Equal(t, config.PublisherNone, p.Name())
	assert.NoError(t, p.Publish(context.Background(), model.NewDeviceEvent(model.EventDeviceConnected, "STM32", nil)))
	assert.NoError(t, p.Close())

	p, err = New(config.PublisherConfig{
		Type:  "Kafka",
		Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "shutter.measurements", ClientID: "test"},
	}, logger)
	require.NoError(t, err)
	assert.Equal(t, config.PublisherKafka, p.Name())

	_, err = New(config.PublisherConfig{Type: config.PublisherKafka}, logger)
	assert.Error(t, err)

	_, err = New(config.PublisherConfig{Type: config.PublisherMQTT}, logger)
	assert.Error(t, err, "mqtt requires a broker")

	_, err = New(config.PublisherConfig{Type: "amqp"}, logger)
	assert.Error(t, err)
}

func TestKafkaPublisherWritesKeyedJSON(t *testing.T) {
	writer := &recordingWriter{}
	p := newKafkaPublisher(writer, "shutter.measurements", zaptest.NewLogger(t))

	event := model.NewDeviceEvent(model.EventMeasurementCompleted, "STM32 (0483:5740)", map[string]int{"camera_id": 7})
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "measurement.completed", string(msg.Key))

	var decoded model.DeviceEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "STM32 (0483:5740)", decoded.Device)

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	down := errors.New("broker down")
	p := newKafkaPublisher(&recordingWriter{err: down}, "t", zaptest.NewLogger(t))

	err := p.Publish(context.Background(), model.NewDeviceEvent(model.EventTelemetryFrame, "STM32", nil))
	assert.ErrorIs(t, err, down)
}
