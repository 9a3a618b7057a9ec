// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"shutter-service/internal/model"
	"shutter-service/internal/service"
)

// Event types broadcast to websocket clients
const (
	EventConnectionState = "connection_state"
	EventProtocolState   = "protocol_state"
	EventThresholds      = "thresholds"
)

const subscriberBuffer = 64

// EventBus fans session state changes out to subscribers
type EventBus struct {
	subscribers map[int]chan Event
	nextID      int
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// Event is a single state change
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[int]chan Event),
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// Publish delivers event to every subscriber. Slow subscribers miss it.
func (eb *EventBus) Publish(event Event) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for id, subscriber := range eb.subscribers {
		select {
		case subscriber <- event:
		default:
			eb.logger.Warn("Subscriber is slow, dropping event",
				zap.Int("subscriber", id),
				zap.String("event_type", event.Type),
			)
		}
	}
}

// Subscribe returns a channel of events and a cancel function that closes it
func (eb *EventBus) Subscribe() (<-chan Event, func()) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	id := eb.nextID
	eb.nextID++
	subscriber := make(chan Event, subscriberBuffer)
	eb.subscribers[id] = subscriber

	var once sync.Once
	return subscriber, func() {
		once.Do(func() {
			eb.mutex.Lock()
			delete(eb.subscribers, id)
			eb.mutex.Unlock()
			close(subscriber)
		})
	}
}

// ThresholdSource streams the deviation thresholds, current value first
type ThresholdSource interface {
	SubscribeThresholds() (<-chan model.DeviationThresholds, func())
}

// Follow publishes every connection and protocol state change of session and
// every threshold change until ctx is done
func (eb *EventBus) Follow(ctx context.Context, session *service.SessionController, settings ThresholdSource) {
	connections, cancelConnections := session.SubscribeConnection()
	defer cancelConnections()
	protocols, cancelProtocols := session.SubscribeProtocol()
	defer cancelProtocols()
	thresholds, cancelThresholds := settings.SubscribeThresholds()
	defer cancelThresholds()

	for {
		select {
		case <-ctx.Done():
			return

		case state, ok := <-connections:
			if !ok {
				return
			}
			eb.Publish(Event{Type: EventConnectionState, Data: state, Timestamp: time.Now()})

		case state, ok := <-protocols:
			if !ok {
				return
			}
			eb.Publish(Event{
				Type:      EventProtocolState,
				Data:      newProtocolStateView(state, session.Status().Thresholds),
				Timestamp: time.Now(),
			})

		case current, ok := <-thresholds:
			if !ok {
				return
			}
			eb.Publish(Event{Type: EventThresholds, Data: current, Timestamp: time.Now()})
		}
	}
}
