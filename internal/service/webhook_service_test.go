package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"berserk/internal/database"
	"berserk/internal/events"
	"berserk/internal/logging"
	"berserk/internal/models"
	"berserk/internal/payment"
	"berserk/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

const webhookBookingID = "BT-1763631000000-RAVEN0001"

type fakeParser struct {
	mu  sync.Mutex
	ev  payment.Event
	err error
}

func (p *fakeParser) Parse([]byte, string) (payment.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ev, p.err
}

func (p *fakeParser) next(ev payment.Event) {
	p.mu.Lock()
	p.ev = ev
	p.mu.Unlock()
}

type webhookFixture struct {
	db     *database.DB
	dedup  *repository.MemoryDedupStore
	queue  *fakeQueue
	parser *fakeParser
	events *eventRecorder
	svc    *WebhookService
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{
		db:     newTestDB(t),
		dedup:  repository.NewMemoryDedupStore(),
		queue:  &fakeQueue{},
		parser: &fakeParser{},
	}
	bus := events.NewEventBus()
	f.events = recordEvents(bus)
	f.svc = NewWebhookService(f.parser, f.db, f.dedup, f.queue, bus, 0, logging.Nop())
	return f
}

func (f *webhookFixture) seed(t *testing.T) {
	t.Helper()
	require.NoError(t, f.db.CreateBooking(context.Background(), &models.Booking{
		ID:                webhookBookingID,
		Artist:            "amelia",
		ArtistName:        "Amelia",
		FirstName:         "Jane",
		LastName:          "Doe",
		Email:             "jane@example.com",
		Phone:             "0412 345 678",
		AppointmentDate:   "2025-12-01",
		AppointmentTime:   "14:00",
		Deposit:           models.NewMoney(5000, "aud"),
		Status:            models.StatusCreated,
		CheckoutSessionID: "cs_test_1",
	}))
}

func (f *webhookFixture) deliver(t *testing.T, ev payment.Event) {
	t.Helper()
	f.parser.next(ev)
	require.NoError(t, f.svc.Handle(context.Background(), []byte(`{}`), "t=1,v1=x"))
}

func (f *webhookFixture) status(t *testing.T) models.BookingStatus {
	t.Helper()
	b, err := f.db.GetBooking(context.Background(), webhookBookingID)
	require.NoError(t, err)
	return b.Status
}

func checkoutEvent(id string) payment.CheckoutCompleted {
	return payment.CheckoutCompleted{
		Envelope:        payment.Envelope{ID: id, Type: payment.TypeCheckoutCompleted},
		SessionID:       "cs_test_1",
		BookingID:       webhookBookingID,
		CustomerEmail:   "jane@example.com",
		PaymentIntentID: "pi_1",
		PaymentStatus:   "paid",
		AmountTotal:     5000,
		Currency:        "aud",
		Metadata: map[string]string{
			"bookingId":       webhookBookingID,
			"artist":          "amelia",
			"artistName":      "Amelia",
			"firstName":       "Jane",
			"lastName":        "Doe",
			"email":           "jane@example.com",
			"phone":           "0412 345 678",
			"appointmentDate": "2025-12-01",
			"appointmentTime": "14:00",
		},
	}
}

func succeededEvent(id string) payment.PaymentSucceeded {
	return payment.PaymentSucceeded{
		Envelope:        payment.Envelope{ID: id, Type: payment.TypePaymentSucceeded},
		PaymentIntentID: "pi_1",
		BookingID:       webhookBookingID,
		Amount:          5000,
		Currency:        "aud",
	}
}

func failedEvent(id, intent string) payment.PaymentFailed {
	return payment.PaymentFailed{
		Envelope:        payment.Envelope{ID: id, Type: payment.TypePaymentFailed},
		PaymentIntentID: intent,
		BookingID:       webhookBookingID,
		Reason:          "Your card was declined.",
	}
}

var confirmationKinds = []models.JobKind{models.JobCustomerConfirmation, models.JobStudioNewBooking}

func TestWebhookCheckoutCompletedConfirms(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(t)

	f.deliver(t, checkoutEvent("evt_1"))

	b, err := f.db.GetBooking(context.Background(), webhookBookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.Equal(t, "pi_1", b.PaymentIntentID)

	assert.Equal(t, confirmationKinds, f.queue.kinds())
	for _, j := range f.queue.all() {
		assert.Equal(t, webhookBookingID, j.BookingID)
	}

	require.Equal(t, []string{events.EventBookingConfirmed}, f.events.types())
	assert.Equal(t, "evt_1", f.events.events[0].Payload.StripeEventID)
}

func TestWebhookRedeliveryIsIgnored(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(t)

	for i := 0; i < 3; i++ {
		f.deliver(t, checkoutEvent("evt_1"))
	}

	assert.Equal(t, confirmationKinds, f.queue.kinds())
	assert.Len(t, f.events.types(), 1)
}

func TestWebhookConfirmsOnceAcrossEventTypes(t *testing.T) {
	t.Run("CheckoutFirst", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.seed(t)
		f.deliver(t, checkoutEvent("evt_1"))
		f.deliver(t, succeededEvent("evt_2"))

		assert.Equal(t, confirmationKinds, f.queue.kinds())
		assert.Equal(t, models.StatusConfirmed, f.status(t))
		assert.Len(t, f.events.types(), 1)
	})

	t.Run("PaymentIntentFirst", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.seed(t)
		f.deliver(t, succeededEvent("evt_2"))
		f.deliver(t, checkoutEvent("evt_1"))

		assert.Equal(t, confirmationKinds, f.queue.kinds())
		assert.Equal(t, models.StatusConfirmed, f.status(t))
	})

	t.Run("Concurrent", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.seed(t)
		deliveries := []payment.Event{checkoutEvent("evt_1"), succeededEvent("evt_2")}

		var wg sync.WaitGroup
		for _, ev := range deliveries {
			parser := &fakeParser{ev: ev}
			svc := NewWebhookService(parser, f.db, f.dedup, f.queue, nil, time.Hour, logging.Nop())
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, svc.Handle(context.Background(), nil, ""))
			}()
		}
		wg.Wait()

		assert.ElementsMatch(t, confirmationKinds, f.queue.kinds())
		assert.Equal(t, models.StatusConfirmed, f.status(t))
	})
}

func TestWebhookCheckoutForUnknownBookingRebuildsIt(t *testing.T) {
	f := newWebhookFixture(t)

	f.deliver(t, checkoutEvent("evt_1"))

	b, err := f.db.GetBooking(context.Background(), webhookBookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.Equal(t, "Jane", b.FirstName)
	assert.Equal(t, "2025-12-01", b.AppointmentDate)
	assert.Equal(t, "cs_test_1", b.CheckoutSessionID)
	assert.Equal(t, int64(5000), b.Deposit.Amount)
	assert.Equal(t, confirmationKinds, f.queue.kinds())
}

func TestWebhookPaymentFailed(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(t)

	f.deliver(t, failedEvent("evt_3", "pi_1"))

	assert.Equal(t, models.StatusPaymentFailed, f.status(t))
	assert.Equal(t, []models.JobKind{models.JobCustomerPaymentFailed, models.JobStudioPaymentFailed}, f.queue.kinds())
	for _, j := range f.queue.all() {
		assert.Equal(t, models.PaymentFailure{PaymentIntentID: "pi_1", Reason: "Your card was declined."}, j.Payload)
	}
	assert.Equal(t, []string{events.EventBookingPaymentFailed}, f.events.types())

	// Same intent under a new event id does not notify twice.
	f.deliver(t, failedEvent("evt_4", "pi_1"))
	assert.Len(t, f.queue.kinds(), 2)

	// A second attempt with a new intent does.
	f.deliver(t, failedEvent("evt_5", "pi_2"))
	assert.Len(t, f.queue.kinds(), 4)
}

func TestWebhookFailureAfterConfirmationIsNotNotified(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(t)

	f.deliver(t, checkoutEvent("evt_1"))
	f.deliver(t, failedEvent("evt_3", "pi_0"))

	assert.Equal(t, models.StatusConfirmed, f.status(t))
	assert.Equal(t, confirmationKinds, f.queue.kinds())
	assert.Equal(t, []string{events.EventBookingConfirmed}, f.events.types())
}

func TestWebhookRetryAfterFailureConfirms(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(t)

	f.deliver(t, failedEvent("evt_3", "pi_0"))
	f.deliver(t, succeededEvent("evt_4"))

	assert.Equal(t, models.StatusConfirmed, f.status(t))
	assert.Equal(t, []models.JobKind{
		models.JobCustomerPaymentFailed, models.JobStudioPaymentFailed,
		models.JobCustomerConfirmation, models.JobStudioNewBooking,
	}, f.queue.kinds())
}

func TestWebhookSignatureFailureHasNoSideEffects(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(t)
	f.parser.err = fmt.Errorf("%w: no signatures found", payment.ErrInvalidSignature)

	err := f.svc.Handle(context.Background(), []byte(`{}`), "")

	var serr *SignatureError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	assert.Equal(t, models.StatusCreated, f.status(t))
	assert.Empty(t, f.queue.kinds())
	assert.Zero(t, f.dedup.Len())
}

func TestWebhookClaimFailureIsReported(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeQueue{}
	svc := NewWebhookService(&fakeParser{ev: checkoutEvent("evt_1")}, db, failingDedup{}, queue, nil, 0, logging.Nop())

	err := svc.Handle(context.Background(), nil, "")
	require.Error(t, err)
	var serr *SignatureError
	assert.False(t, errors.As(err, &serr))
	assert.Empty(t, queue.kinds())
}

func TestWebhookEnqueueFailureReleasesClaims(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(t)
	f.queue.setErr(errors.New("outbox unavailable"))

	f.deliver(t, checkoutEvent("evt_1"))
	assert.Empty(t, f.queue.kinds())
	assert.Equal(t, models.StatusConfirmed, f.status(t))

	// The provider resends the same event once the outbox is back.
	f.queue.setErr(nil)
	f.deliver(t, checkoutEvent("evt_1"))
	assert.Equal(t, confirmationKinds, f.queue.kinds())
}

func TestWebhookUnhandledEvent(t *testing.T) {
	f := newWebhookFixture(t)
	f.deliver(t, payment.Unhandled{Envelope: payment.Envelope{ID: "evt_9", Type: "customer.created"}})

	assert.Empty(t, f.queue.kinds())
	assert.Empty(t, f.events.types())
}

func TestWebhookMissingBookingReference(t *testing.T) {
	f := newWebhookFixture(t)

	ev := succeededEvent("evt_2")
	ev.BookingID = ""
	f.deliver(t, ev)

	failed := failedEvent("evt_3", "pi_1")
	failed.BookingID = ""
	f.deliver(t, failed)

	// Unknown booking ids are acknowledged and skipped.
	f.deliver(t, succeededEvent("evt_4"))

	assert.Empty(t, f.queue.kinds())
}

func TestWebhookWithSignedPayload(t *testing.T) {
	const secret = "whsec_test_secret"
	db := newTestDB(t)
	queue := &fakeQueue{}
	svc := NewWebhookService(payment.NewVerifier(secret, 0), db, repository.NewMemoryDedupStore(), queue, nil, 0, logging.Nop())
	require.NoError(t, db.CreateBooking(context.Background(), &models.Booking{
		ID: webhookBookingID, Artist: "amelia", FirstName: "Jane", LastName: "Doe",
		Email: "jane@example.com", Phone: "0412", AppointmentDate: "2025-12-01", AppointmentTime: "14:00",
		Deposit: models.NewMoney(5000, "aud"), Status: models.StatusCreated,
	}))

	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_signed",
		"object":      "event",
		"type":        payment.TypePaymentSucceeded,
		"created":     time.Now().Unix(),
		"api_version": stripe.APIVersion,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       "pi_signed",
				"object":   "payment_intent",
				"amount":   5000,
				"currency": "aud",
				"metadata": map[string]string{"bookingId": webhookBookingID},
			},
		},
	})
	require.NoError(t, err)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	require.NoError(t, svc.Handle(context.Background(), payload, header))
	assert.Equal(t, confirmationKinds, queue.kinds())

	b, err := db.GetBooking(context.Background(), webhookBookingID)
	require.NoError(t, err)
	assert.Equal(t, "pi_signed", b.PaymentIntentID)

	err = svc.Handle(context.Background(), payload, fmt.Sprintf("t=%d,v1=%064x", ts, 0))
	var serr *SignatureError
	assert.ErrorAs(t, err, &serr)
}

func TestWebhookUnpaidCheckoutWaitsForPayment(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(t)

	unpaid := checkoutEvent("evt_unpaid")
	unpaid.PaymentStatus = "unpaid"
	f.deliver(t, unpaid)

	assert.Equal(t, models.StatusCreated, f.status(t))
	assert.Empty(t, f.queue.kinds())

	f.deliver(t, succeededEvent("evt_paid"))
	assert.Equal(t, models.StatusConfirmed, f.status(t))
	assert.Equal(t, confirmationKinds, f.queue.kinds())
}

func TestWebhookNoPaymentRequiredConfirms(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(t)

	free := checkoutEvent("evt_free")
	free.PaymentStatus = "no_payment_required"
	f.deliver(t, free)

	assert.Equal(t, models.StatusConfirmed, f.status(t))
}

func TestWebhookMalformedAuthenticEventIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(t)
	f.parser.err = fmt.Errorf("%w: unexpected end of JSON input", payment.ErrMalformedEvent)

	err := f.svc.Handle(context.Background(), []byte(`{}`), "t=1,v1=x")

	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, f.status(t))
	assert.Empty(t, f.queue.kinds())
	assert.Zero(t, f.dedup.Len())
}

func TestWebhookAcceptsOtherAPIVersion(t *testing.T) {
	const secret = "whsec_test_secret"
	f := newWebhookFixture(t)
	f.seed(t)
	svc := NewWebhookService(payment.NewVerifier(secret, 0), f.db, f.dedup, f.queue, nil, 0, logging.Nop())

	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_newer_api",
		"object":      "event",
		"type":        payment.TypeCheckoutCompleted,
		"created":     time.Now().Unix(),
		"api_version": "2024-06-20",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":                  "cs_test_1",
				"object":              "checkout.session",
				"client_reference_id": webhookBookingID,
				"payment_status":      "paid",
				"amount_total":        5000,
				"currency":            "aud",
			},
		},
	})
	require.NoError(t, err)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	require.NoError(t, svc.Handle(context.Background(), payload, header))
	assert.Equal(t, models.StatusConfirmed, f.status(t))
	assert.Equal(t, confirmationKinds, f.queue.kinds())
}
