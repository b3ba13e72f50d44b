package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"berserk/internal/models"
	"berserk/internal/payment"
	"berserk/internal/service"

	"github.com/rs/zerolog"
)

const genericUpstreamMessage = "An unexpected error occurred. Please try again later."

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req models.BookingRequest
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := s.deps.Bookings.CreateBooking(r.Context(), &req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Create booking failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to create booking",
			"message": genericUpstreamMessage,
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	q := r.URL.Query()
	av, err := s.deps.Availability.Month(strings.TrimSpace(q.Get("artist")), q.Get("month"))
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Availability failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch availability")
		return
	}
	w.Header().Set("Cache-Control", s.deps.Availability.CacheControl())
	writeJSON(w, http.StatusOK, av)
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Webhook Error: payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Webhook Error: "+err.Error())
		return
	}

	err = s.deps.Webhooks.Handle(r.Context(), payload, r.Header.Get(payment.SignatureHeader))
	var serr *service.SignatureError
	switch {
	case errors.As(err, &serr):
		writeError(w, http.StatusBadRequest, "Webhook Error: "+serr.Error())
	case err != nil:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Webhook failed")
		writeError(w, http.StatusInternalServerError, "Webhook handler failed")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

// handleDraft stores wizard progress for /api/booking-draft/{sessionID}.
func (s *HTTPServer) handleDraft(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/booking-draft/"))
	if id == "" || strings.Contains(id, "/") || len(id) > 128 {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	if s.deps.Drafts == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	log := zerolog.Ctx(r.Context()).With().Str("session_id", id).Logger()

	switch r.Method {
	case http.MethodGet:
		data, err := s.deps.Drafts.LoadDraft(r.Context(), id)
		if err != nil {
			log.Warn().Err(err).Msg("Load draft failed")
			writeError(w, http.StatusServiceUnavailable, "Draft storage unavailable")
			return
		}
		if data == nil {
			writeError(w, http.StatusNotFound, "No saved draft")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(data)
	case http.MethodPut:
		var draft models.BookingDraft
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)).Decode(&draft); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid draft")
			return
		}
		data, _ := json.Marshal(draft)
		if err := s.deps.Drafts.SaveDraft(r.Context(), id, data); err != nil {
			log.Warn().Err(err).Msg("Save draft failed")
			writeError(w, http.StatusServiceUnavailable, "Draft storage unavailable")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := s.deps.Drafts.ClearDraft(r.Context(), id); err != nil {
			log.Warn().Err(err).Msg("Clear draft failed")
			writeError(w, http.StatusServiceUnavailable, "Draft storage unavailable")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	for name, check := range s.deps.Checks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		zerolog.Ctx(r.Context()).Warn().Interface("failures", failures).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
