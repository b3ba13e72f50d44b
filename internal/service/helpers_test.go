package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"berserk/internal/clock"
	"berserk/internal/config"
	"berserk/internal/database"
	"berserk/internal/events"
	"berserk/internal/logging"
	"berserk/internal/models"
	"berserk/internal/payment"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 11, 20, 9, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "service.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		BaseURL:       "https://berserktattoos.com",
		DepositAmount: 5000,
		Currency:      "aud",
		ProductName:   "Tattoo Consultation",
		ProductImage:  "https://berserktattoos.com/og-image.jpg",
	}
}

func validRequest() *models.BookingRequest {
	return &models.BookingRequest{
		Artist:          "amelia",
		FirstName:       "Jane",
		LastName:        "Doe",
		Email:           "jane@example.com",
		Phone:           "0412 345 678",
		AppointmentDate: "2025-12-01",
		AppointmentTime: "14:00",
		Placement:       "forearm",
		Size:            "medium",
		Description:     "Norse raven",
		Source:          models.WizardSource,
	}
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []payment.CheckoutRequest
	err      error
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &payment.CheckoutSession{ID: "cs_test_" + req.BookingID, URL: "https://checkout.stripe.com/c/pay/" + req.BookingID}, nil
}

func (g *fakeGateway) calls() []payment.CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payment.CheckoutRequest(nil), g.requests...)
}

type queuedJob struct {
	Kind      models.JobKind
	BookingID string
	Payload   interface{}
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queuedJob
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, kind models.JobKind, bookingID string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, queuedJob{Kind: kind, BookingID: bookingID, Payload: payload})
	return nil
}

func (q *fakeQueue) setErr(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
}

func (q *fakeQueue) kinds() []models.JobKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.JobKind
	for _, j := range q.jobs {
		out = append(out, j.Kind)
	}
	return out
}

func (q *fakeQueue) all() []queuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queuedJob(nil), q.jobs...)
}

type recordedEvent struct {
	Type    string
	Payload events.BookingEventPayload
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func recordEvents(bus *events.EventBus) *eventRecorder {
	r := &eventRecorder{}
	for _, typ := range []string{events.EventBookingCreated, events.EventBookingConfirmed, events.EventBookingPaymentFailed} {
		bus.Subscribe(typ, func(ev *events.Event) error {
			var p events.BookingEventPayload
			if err := ev.Decode(&p); err != nil {
				return err
			}
			r.mu.Lock()
			r.events = append(r.events, recordedEvent{Type: ev.Type, Payload: p})
			r.mu.Unlock()
			return nil
		})
	}
	return r
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type failingDedup struct{}

func (failingDedup) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (failingDedup) Release(context.Context, string) error { return nil }

func newBookingService(t *testing.T, db *database.DB, gw CheckoutGateway, bus *events.EventBus) *BookingService {
	t.Helper()
	clk := clock.NewFixed(testNow)
	artists := []models.Artist{{ID: "amelia", Name: "Amelia", Active: true}, {ID: "rhys", Name: "", Active: true}}
	return NewBookingService(db, gw, bus, NewIDGenerator(clk, nil), clk, testBookingConfig(), artists, logging.Nop())
}
