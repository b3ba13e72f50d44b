package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"berserk/internal/models"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingConfirmed     = "booking_confirmed"
	EventBookingPaymentFailed = "booking_payment_failed"
)

// BookingEventPayload is the booking snapshot handed to subscribers.
type BookingEventPayload struct {
	BookingID         string               `json:"booking_id"`
	Artist            string               `json:"artist"`
	CustomerName      string               `json:"customer_name"`
	AppointmentDate   string               `json:"appointment_date"`
	AppointmentTime   string               `json:"appointment_time"`
	Status            models.BookingStatus `json:"status"`
	CheckoutSessionID string               `json:"checkout_session_id,omitempty"`
	PaymentIntentID   string               `json:"payment_intent_id,omitempty"`
	StripeEventID     string               `json:"stripe_event_id,omitempty"`
}

// NewBookingPayload snapshots b.
func NewBookingPayload(b *models.Booking) BookingEventPayload {
	return BookingEventPayload{
		BookingID:         b.ID,
		Artist:            b.DisplayArtist(),
		CustomerName:      b.CustomerName(),
		AppointmentDate:   b.AppointmentDate,
		AppointmentTime:   b.AppointmentTime,
		Status:            b.Status,
		CheckoutSessionID: b.CheckoutSessionID,
		PaymentIntentID:   b.PaymentIntentID,
	}
}

// Event is a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

type EventHandler func(event *Event) error

// EventBus is an in-process synchronous pub/sub.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every subscriber of the event type, even when an earlier one fails.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for i, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler %d: %w", event.Type, i, err))
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes it. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
