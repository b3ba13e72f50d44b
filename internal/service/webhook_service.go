package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"berserk/internal/database"
	"berserk/internal/domain"
	"berserk/internal/events"
	"berserk/internal/metrics"
	"berserk/internal/models"
	"berserk/internal/payment"

	"github.com/rs/zerolog"
)

// EventParser authenticates and decodes a webhook delivery.
type EventParser interface {
	Parse(payload []byte, signatureHeader string) (payment.Event, error)
}

// WebhookService applies payment events to bookings. Every side effect is
// guarded by a dedup claim so provider redeliveries are harmless.
type WebhookService struct {
	parser   EventParser
	repo     domain.BookingRepository
	dedup    domain.DedupStore
	queue    domain.JobQueue
	eventBus domain.EventPublisher
	ttl      time.Duration
	logger   *zerolog.Logger
}

func NewWebhookService(
	parser EventParser,
	repo domain.BookingRepository,
	dedup domain.DedupStore,
	queue domain.JobQueue,
	eventBus domain.EventPublisher,
	ttl time.Duration,
	logger *zerolog.Logger,
) *WebhookService {
	if ttl <= 0 {
		ttl = models.DefaultDedupTTLHours * time.Hour
	}
	return &WebhookService{
		parser:   parser,
		repo:     repo,
		dedup:    dedup,
		queue:    queue,
		eventBus: eventBus,
		ttl:      ttl,
		logger:   logger,
	}
}

func eventKey(id string) string { return "event:" + id }

func confirmedKey(bookingID string) string { return "booking:" + bookingID + ":confirmed" }

func failedKey(bookingID, intent string) string {
	return "booking:" + bookingID + ":payment_failed:" + intent
}

// Handle verifies and dispatches one delivery. It returns *SignatureError for
// unauthenticated payloads and a plain error only when the event could not be
// claimed; authentic events that fail to decode, and everything after the
// claim, are logged and acknowledged.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signatureHeader string) error {
	ev, err := s.parser.Parse(payload, signatureHeader)
	if errors.Is(err, payment.ErrMalformedEvent) {
		// Authentic but undecodable; a redelivery carries the same bytes.
		metrics.IncWebhook("unknown", "malformed")
		s.logger.Error().Err(err).Msg("Webhook event could not be decoded")
		return nil
	}
	if err != nil {
		metrics.IncWebhook("unknown", "rejected")
		s.logger.Warn().Err(err).Msg("Webhook signature verification failed")
		return &SignatureError{Err: err}
	}

	meta := ev.Meta()
	log := s.logger.With().Str("event_id", meta.ID).Str("event_type", meta.Type).Logger()
	if meta.VersionMismatch() {
		log.Warn().Str("api_version", meta.APIVersion).Msg("Webhook endpoint API version differs from the SDK")
	}

	claimed, err := s.dedup.Claim(ctx, eventKey(meta.ID), s.ttl)
	if err != nil {
		metrics.IncWebhook(meta.Type, "error")
		log.Error().Err(err).Msg("Claim webhook event failed")
		return fmt.Errorf("claim event %s: %w", meta.ID, err)
	}
	if !claimed {
		metrics.IncWebhook(meta.Type, "duplicate")
		log.Info().Msg("Duplicate webhook delivery ignored")
		return nil
	}

	var dispatchErr error
	switch e := ev.(type) {
	case payment.CheckoutCompleted:
		dispatchErr = s.onCheckoutCompleted(ctx, e, &log)
	case payment.PaymentSucceeded:
		dispatchErr = s.onPaymentSucceeded(ctx, e, &log)
	case payment.PaymentFailed:
		dispatchErr = s.onPaymentFailed(ctx, e, &log)
	case payment.Unhandled:
		log.Info().Msg("Unhandled event type")
		metrics.IncWebhook(meta.Type, "ignored")
		return nil
	default:
		dispatchErr = fmt.Errorf("unexpected payment event %T", ev)
	}

	if dispatchErr != nil {
		metrics.IncWebhook(meta.Type, "error")
		log.Error().Err(dispatchErr).Msg("Webhook handling error")
		// Let a manual resend from the provider dashboard run the event again.
		if err := s.dedup.Release(ctx, eventKey(meta.ID)); err != nil {
			log.Warn().Err(err).Msg("Release event claim failed")
		}
		return nil
	}
	metrics.IncWebhook(meta.Type, "processed")
	return nil
}

func (s *WebhookService) onCheckoutCompleted(ctx context.Context, e payment.CheckoutCompleted, log *zerolog.Logger) error {
	if e.BookingID == "" {
		return errors.New("checkout session has no booking reference")
	}
	log.Info().Str("booking_id", e.BookingID).Str("session_id", e.SessionID).Msg("Checkout completed")

	var errs []error
	if err := s.repo.UpsertBooking(ctx, bookingFromCheckout(e)); err != nil {
		errs = append(errs, fmt.Errorf("upsert booking: %w", err))
	}
	if !e.Paid() {
		log.Info().Str("booking_id", e.BookingID).Str("payment_status", e.PaymentStatus).
			Msg("Checkout completed unpaid, waiting for payment_intent.succeeded")
		return errors.Join(errs...)
	}

	changed, err := s.repo.UpdateBookingStatus(ctx, e.BookingID, models.StatusConfirmed, e.PaymentIntentID)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("confirm booking: %w", err))...)
	}
	if changed {
		s.publish(ctx, events.EventBookingConfirmed, e.BookingID, e.Meta().ID)
	}

	if err := s.notifyConfirmed(ctx, e.BookingID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// onPaymentSucceeded reconciles bookings whose checkout event is late or lost.
func (s *WebhookService) onPaymentSucceeded(ctx context.Context, e payment.PaymentSucceeded, log *zerolog.Logger) error {
	if e.BookingID == "" {
		log.Info().Str("payment_intent", e.PaymentIntentID).Msg("Payment succeeded without booking reference")
		return nil
	}
	log.Info().Str("booking_id", e.BookingID).Msg("Payment succeeded")

	changed, err := s.repo.UpdateBookingStatus(ctx, e.BookingID, models.StatusConfirmed, e.PaymentIntentID)
	if errors.Is(err, database.ErrBookingNotFound) {
		log.Warn().Str("booking_id", e.BookingID).Msg("Payment succeeded for unknown booking")
		return nil
	}
	if err != nil {
		return fmt.Errorf("confirm booking: %w", err)
	}
	if changed {
		s.publish(ctx, events.EventBookingConfirmed, e.BookingID, e.Meta().ID)
	}
	return s.notifyConfirmed(ctx, e.BookingID)
}

func (s *WebhookService) onPaymentFailed(ctx context.Context, e payment.PaymentFailed, log *zerolog.Logger) error {
	if e.BookingID == "" {
		log.Warn().Str("payment_intent", e.PaymentIntentID).Msg("Payment failed without booking reference")
		return nil
	}
	log.Warn().Str("booking_id", e.BookingID).Str("reason", e.Reason).Msg("Payment failed")

	changed, err := s.repo.UpdateBookingStatus(ctx, e.BookingID, models.StatusPaymentFailed, e.PaymentIntentID)
	if errors.Is(err, database.ErrBookingNotFound) {
		log.Warn().Str("booking_id", e.BookingID).Msg("Payment failed for unknown booking")
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	if !changed {
		// Only a confirmed booking refuses the move; a stale failure must not alarm the customer.
		log.Info().Str("booking_id", e.BookingID).Msg("Booking already confirmed, failure not notified")
		return nil
	}
	s.publish(ctx, events.EventBookingPaymentFailed, e.BookingID, e.Meta().ID)

	failure := models.PaymentFailure{PaymentIntentID: e.PaymentIntentID, Reason: e.Reason}
	return s.enqueueOnce(ctx, failedKey(e.BookingID, e.PaymentIntentID), e.BookingID, failure,
		models.JobCustomerPaymentFailed, models.JobStudioPaymentFailed)
}

func (s *WebhookService) notifyConfirmed(ctx context.Context, bookingID string) error {
	return s.enqueueOnce(ctx, confirmedKey(bookingID), bookingID, nil,
		models.JobCustomerConfirmation, models.JobStudioNewBooking)
}

// enqueueOnce claims key and enqueues each kind as its own job. The claim is
// released when nothing could be enqueued so a later event can try again.
func (s *WebhookService) enqueueOnce(ctx context.Context, key, bookingID string, payload interface{}, kinds ...models.JobKind) error {
	claimed, err := s.dedup.Claim(ctx, key, s.ttl)
	if err != nil {
		return fmt.Errorf("claim %s: %w", key, err)
	}
	if !claimed {
		s.logger.Debug().Str("key", key).Msg("Notifications already scheduled")
		return nil
	}

	var errs []error
	for _, kind := range kinds {
		if err := s.queue.Enqueue(ctx, kind, bookingID, payload); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", kind, err))
		}
	}
	if len(errs) == len(kinds) {
		if err := s.dedup.Release(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *WebhookService) publish(ctx context.Context, eventType, bookingID, stripeEventID string) {
	if s.eventBus == nil {
		return
	}
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		s.logger.Warn().Err(err).Str("booking_id", bookingID).Msg("Load booking for event failed")
		return
	}
	payload := events.NewBookingPayload(b)
	payload.StripeEventID = stripeEventID
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", bookingID).Msg("publish event error")
	}
}

// bookingFromCheckout rebuilds a booking from session metadata for the case
// where the creation request never reached the ledger.
func bookingFromCheckout(e payment.CheckoutCompleted) *models.Booking {
	md := e.Metadata
	b := &models.Booking{
		ID:                e.BookingID,
		Artist:            md["artist"],
		ArtistName:        md["artistName"],
		FirstName:         md["firstName"],
		LastName:          md["lastName"],
		Email:             md["email"],
		Phone:             md["phone"],
		AppointmentDate:   md["appointmentDate"],
		AppointmentTime:   md["appointmentTime"],
		Placement:         md["placement"],
		Size:              md["size"],
		Description:       md["description"],
		ConsultationType:  md["consultation"],
		CheckoutSessionID: e.SessionID,
		PaymentIntentID:   e.PaymentIntentID,
		Status:            models.StatusCreated,
	}
	if b.Email == "" {
		b.Email = e.CustomerEmail
	}
	currency := e.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}
	b.Deposit = models.NewMoney(e.AmountTotal, currency)
	return b
}
