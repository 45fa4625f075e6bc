// Package events is an in-process pub/sub bus for appointment lifecycle
// notifications.
package events

import (
	"sync"
	"time"

	"slotline/internal/models"
)

// Event types published by the booking service.
const (
	AppointmentCreated     = "appointment.created"
	AppointmentRescheduled = "appointment.rescheduled"
	AppointmentCanceled    = "appointment.canceled"
)

// Event carries one appointment lifecycle notification.
type Event struct {
	Type        string
	Appointment models.Appointment
	OccurredAt  time.Time
}

// Handler reacts to an event.
type Handler func(event Event)

// Bus provides in-process pub/sub. Handlers run synchronously on the
// publisher's goroutine; subscribers decide their own concurrency.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	for _, handler := range handlers {
		handler(event)
	}
}
