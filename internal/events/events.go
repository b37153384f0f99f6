package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reservation event types consumed by notification and payment collaborators.
const (
	ReservationCreated       = "reservation.created"
	ReservationRescheduled   = "reservation.rescheduled"
	ReservationStatusChanged = "reservation.status_changed"
	CalendarUpdated          = "resource.calendar_updated"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handler failures are logged
// and do not stop delivery to the remaining handlers.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Error().Err(err).Str("event", event.Type).Msg("Event handler failed")
		}
	}
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	b.Publish(Event{Type: eventType, Payload: data})
	return nil
}
