// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDeviceConnected      EventType = "device.connected"
	EventDeviceDisconnected   EventType = "device.disconnected"
	EventMeasurementCompleted EventType = "measurement.completed"
	EventMeasurementFailed    EventType = "measurement.failed"
	EventTelemetryFrame       EventType = "telemetry.frame"
)

// DeviceEvent is published to the configured broker
type DeviceEvent struct {
	ID        uuid.UUID   `json:"id"`
	EventType EventType   `json:"event_type"`
	Device    string      `json:"device"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
}

// NewDeviceEvent creates an event stamped with a fresh ID and the current time
func NewDeviceEvent(eventType EventType, device string, data interface{}) *DeviceEvent {
	return &DeviceEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Device:    device,
		Data:      data,
		Timestamp: time.Now(),
		Source:    "shutter-service",
	}
}
