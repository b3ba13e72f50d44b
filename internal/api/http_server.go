package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"berserk/internal/config"
	"berserk/internal/domain"
	"berserk/internal/models"

	"github.com/rs/zerolog"
)

// BookingCreator turns a wizard submission into a checkout session.
type BookingCreator interface {
	CreateBooking(ctx context.Context, req *models.BookingRequest) (*models.BookingResponse, error)
}

// WebhookHandler verifies and applies one payment provider delivery.
type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) error
}

type AvailabilityProvider interface {
	Month(artist, month string) (*models.Availability, error)
	CacheControl() string
}

// Ledger is the read side of the booking store used by admin endpoints.
type Ledger interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
}

// SheetSyncer rewrites the studio sheet from the ledger.
type SheetSyncer interface {
	ReplaceBookings(ctx context.Context, bookings []*models.Booking) error
}

// Check reports whether a dependency is ready to serve.
type Check func(ctx context.Context) error

type Deps struct {
	Bookings     BookingCreator
	Webhooks     WebhookHandler
	Availability AvailabilityProvider
	Ledger       Ledger
	Drafts       domain.DraftStore
	Sheets       SheetSyncer
	Checks       map[string]Check
}

// HTTPServer exposes the public booking API and the studio admin API.
type HTTPServer struct {
	cfg     config.HTTPConfig
	deps    Deps
	auth    *AdminAuth
	limiter *rateLimiter
	proxies trustedProxies
	logger  *zerolog.Logger
	server  *http.Server
}

func NewHTTPServer(cfg config.HTTPConfig, admin config.AdminConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 10
	}
	if cfg.MaxWebhookBytes <= 0 {
		cfg.MaxWebhookBytes = 64 << 10
	}
	proxies, invalid := parseTrustedProxies(cfg.TrustedProxies)
	if len(invalid) > 0 {
		logger.Warn().Strs("entries", invalid).Msg("Ignoring unparsable trusted proxies")
	}
	srv := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		auth:    NewAdminAuth(admin),
		limiter: newRateLimiter(cfg.RateLimit),
		proxies: proxies,
		logger:  logger,
	}

	mux := http.NewServeMux()
	srv.route(mux, "/api/create-booking", srv.limitByIP(http.HandlerFunc(srv.handleCreateBooking)))
	srv.route(mux, "/.netlify/functions/create-booking", srv.limitByIP(http.HandlerFunc(srv.handleCreateBooking)))
	srv.route(mux, "/api/availability", http.HandlerFunc(srv.handleAvailability))
	srv.route(mux, "/.netlify/functions/get-availability", http.HandlerFunc(srv.handleAvailability))
	srv.route(mux, "/api/stripe-webhook", http.HandlerFunc(srv.handleWebhook))
	srv.route(mux, "/.netlify/functions/stripe-webhook", http.HandlerFunc(srv.handleWebhook))
	srv.route(mux, "/api/booking-draft/", http.HandlerFunc(srv.handleDraft))

	srv.route(mux, "/api/v1/admin/bookings/export", srv.auth.Wrap(http.HandlerFunc(srv.handleExport)))
	srv.route(mux, "/api/v1/admin/bookings/", srv.auth.Wrap(http.HandlerFunc(srv.handleGetBooking)))
	srv.route(mux, "/api/v1/admin/sheets/resync", srv.auth.Wrap(http.HandlerFunc(srv.handleSheetsResync)))

	srv.route(mux, "/healthz", http.HandlerFunc(srv.handleHealth))
	srv.route(mux, "/readyz", http.HandlerFunc(srv.handleReady))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	handler := requestID(logger, recovery(cors(cfg.AllowedOrigins, mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return srv
}

// route registers pattern with access logging labelled by the pattern.
func (s *HTTPServer) route(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, accessLog(s.logger, s.proxies.clientIP, pattern, h))
}

func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
