package api

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"berserk/internal/database"
	"berserk/internal/export"

	"github.com/rs/zerolog"
)

const (
	permReadBookings   = "read:bookings"
	permExportBookings = "export:bookings"
	permSyncSheets     = "sync:sheets"
)

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/v1/admin/bookings/"))
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "booking id is required")
		return
	}

	b, err := s.deps.Ledger.GetBooking(r.Context(), id)
	if errors.Is(err, database.ErrBookingNotFound) {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("booking_id", id).Msg("Get booking failed")
		writeError(w, http.StatusInternalServerError, "failed to load booking")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleExport streams bookings with appointments in [from, to] as XLSX.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bookings, err := s.deps.Ledger.ListBookings(r.Context(), from, to)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("List bookings failed")
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}

	// Build in memory first so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, bookings, from, to); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Build export failed")
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(from, to)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleSheetsResync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.deps.Sheets == nil {
		writeError(w, http.StatusServiceUnavailable, "google sheets is not configured")
		return
	}

	bookings, err := s.deps.Ledger.ListBookings(r.Context(), time.Time{}, time.Time{})
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("List bookings failed")
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}
	if err := s.deps.Sheets.ReplaceBookings(r.Context(), bookings); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Sheets resync failed")
		writeError(w, http.StatusBadGateway, "sheets resync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rows": len(bookings)})
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, errors.New("invalid from date; expected YYYY-MM-DD")
		}
		from = t
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, errors.New("invalid to date; expected YYYY-MM-DD")
		}
		to = t
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, errors.New("to date is before from date")
	}
	return from, to, nil
}
