package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"berserk/internal/clock"
	"berserk/internal/config"
	"berserk/internal/domain"
	"berserk/internal/events"
	"berserk/internal/metrics"
	"berserk/internal/models"
	"berserk/internal/payment"

	"github.com/rs/zerolog"
)

// Stripe caps metadata values at 500 characters.
const maxMetadataValue = 500

// CheckoutGateway opens a hosted payment page.
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error)
}

type BookingService struct {
	repo     domain.BookingRepository
	gateway  CheckoutGateway
	eventBus domain.EventPublisher
	ids      *IDGenerator
	clock    clock.Clock
	cfg      config.BookingConfig
	artists  map[string]models.Artist
	logger   *zerolog.Logger
}

func NewBookingService(
	repo domain.BookingRepository,
	gateway CheckoutGateway,
	eventBus domain.EventPublisher,
	ids *IDGenerator,
	clk clock.Clock,
	cfg config.BookingConfig,
	artists []models.Artist,
	logger *zerolog.Logger,
) *BookingService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if ids == nil {
		ids = NewIDGenerator(clk, nil)
	}
	roster := make(map[string]models.Artist, len(artists))
	for _, a := range artists {
		roster[a.ID] = a
	}
	return &BookingService{
		repo:     repo,
		gateway:  gateway,
		eventBus: eventBus,
		ids:      ids,
		clock:    clk,
		cfg:      cfg,
		artists:  roster,
		logger:   logger,
	}
}

// ValidateRequest names the first missing required field.
func ValidateRequest(req *models.BookingRequest) error {
	if req == nil {
		return validationf("Invalid request body")
	}
	for _, field := range models.RequiredBookingFields {
		if strings.TrimSpace(req.Field(field)) == "" {
			return validationf("Missing required field: %s", field)
		}
	}
	return nil
}

// CreateBooking records the booking and opens its checkout session.
func (s *BookingService) CreateBooking(ctx context.Context, req *models.BookingRequest) (*models.BookingResponse, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	id, err := s.ids.NewBookingID()
	if err != nil {
		return nil, &UpstreamError{Op: "generate booking id", Err: err}
	}
	log := s.logger.With().Str("booking_id", id).Logger()

	booking := s.newBooking(id, req)
	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		log.Error().Err(err).Msg("Persist booking failed")
		return nil, &UpstreamError{Op: "persist booking", Err: err}
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, s.checkoutRequest(booking, req))
	if err != nil {
		metrics.IncCheckoutFailure()
		log.Error().Err(err).Str("provider", payment.ProviderMessage(err)).Msg("Create checkout session failed")
		return nil, &UpstreamError{Op: "create checkout session", Err: err}
	}

	booking.CheckoutSessionID = sess.ID
	if err := s.repo.AttachCheckoutSession(ctx, id, sess.ID); err != nil {
		// The webhook carries the session id again, so this only delays correlation.
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("Attach checkout session failed")
	}

	metrics.IncBookingCreated()
	log.Info().Str("artist", booking.Artist).Str("session_id", sess.ID).Msg("Booking created")
	s.publish(events.EventBookingCreated, booking)

	return &models.BookingResponse{
		Success:   true,
		BookingID: id,
		StripeURL: sess.URL,
		SessionID: sess.ID,
	}, nil
}

func (s *BookingService) newBooking(id string, req *models.BookingRequest) *models.Booking {
	return &models.Booking{
		ID:               id,
		Artist:           strings.TrimSpace(req.Artist),
		ArtistName:       s.artistName(req),
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		Email:            strings.TrimSpace(req.Email),
		Phone:            strings.TrimSpace(req.Phone),
		AppointmentDate:  req.AppointmentDate,
		AppointmentTime:  req.AppointmentTime,
		Placement:        req.Placement,
		Size:             req.Size,
		Description:      req.Description,
		ConsultationType: req.ConsultationType,
		Source:           req.Source,
		Deposit:          models.NewMoney(s.cfg.DepositAmount, s.cfg.Currency),
		Status:           models.StatusCreated,
	}
}

// artistName prefers the name the client sent, then the roster, then the id.
func (s *BookingService) artistName(req *models.BookingRequest) string {
	if name := strings.TrimSpace(req.ArtistName); name != "" {
		return name
	}
	if a, ok := s.artists[strings.TrimSpace(req.Artist)]; ok && a.Name != "" {
		return a.Name
	}
	return strings.TrimSpace(req.Artist)
}

func (s *BookingService) checkoutRequest(b *models.Booking, req *models.BookingRequest) payment.CheckoutRequest {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	return payment.CheckoutRequest{
		BookingID:     b.ID,
		CustomerEmail: b.Email,
		ProductName:   s.cfg.ProductName,
		Description:   "Consultation with " + b.DisplayArtist(),
		ImageURL:      s.cfg.ProductImage,
		Amount:        b.Deposit,
		SuccessURL:    base + "/payment-success.html?session_id={CHECKOUT_SESSION_ID}&booking_id=" + b.ID,
		CancelURL:     base + "/book.html?cancelled=true",
		Metadata: metadata(map[string]string{
			"bookingId":       b.ID,
			"artist":          b.Artist,
			"artistName":      b.ArtistName,
			"firstName":       b.FirstName,
			"lastName":        b.LastName,
			"email":           b.Email,
			"phone":           b.Phone,
			"appointmentDate": b.AppointmentDate,
			"appointmentTime": b.AppointmentTime,
			"placement":       b.Placement,
			"size":            b.Size,
			"description":     b.Description,
			"consultation":    b.ConsultationType,
			"timestamp":       s.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}),
		PaymentIntentMetadata: metadata(map[string]string{
			"bookingId":       b.ID,
			"artist":          b.Artist,
			"appointmentDate": b.AppointmentDate,
			"appointmentTime": b.AppointmentTime,
		}),
	}
}

func metadata(m map[string]string) map[string]string {
	for k, v := range m {
		m[k] = truncate(v, maxMetadataValue)
	}
	return m
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}

func (s *BookingService) publish(eventType string, b *models.Booking) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewBookingPayload(b)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", b.ID).Msg("publish event error")
	}
}
