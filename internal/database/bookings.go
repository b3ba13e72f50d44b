package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"berserk/internal/models"
)

var ErrBookingNotFound = errors.New("booking not found")

const bookingColumns = `booking_id, artist, artist_name, first_name, last_name, email, phone,
        appointment_date, appointment_time, placement, size, description, consultation_type, source,
        deposit_amount, deposit_currency, status, checkout_session_id, payment_intent_id, created_at, updated_at`

// CreateBooking inserts a booking keyed by its id. Inserting an existing id is a no-op.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	if booking.Status == "" {
		booking.Status = models.StatusCreated
	}

	query := `INSERT OR IGNORE INTO bookings (` + bookingColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, query, bookingArgs(booking)...); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// GetBookingBySession resolves a booking from its checkout session id.
func (db *DB) GetBookingBySession(ctx context.Context, sessionID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE checkout_session_id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by session: %w", err)
	}
	return b, nil
}

func (db *DB) AttachCheckoutSession(ctx context.Context, id, sessionID string) error {
	query := `UPDATE bookings SET checkout_session_id = ?, updated_at = ? WHERE booking_id = ?`
	res, err := db.ExecContext(ctx, query, sessionID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to attach checkout session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// UpdateBookingStatus moves a booking to status when the transition is allowed
// and reports whether the row changed. A confirmed booking is never downgraded.
func (db *DB) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus, paymentIntentID string) (bool, error) {
	from := allowedFrom(status)
	if len(from) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	query := `UPDATE bookings
              SET status = ?,
                  payment_intent_id = CASE WHEN ? = '' THEN payment_intent_id ELSE ? END,
                  updated_at = ?
              WHERE booking_id = ? AND status IN (` + placeholders + `)`

	args := []interface{}{status, paymentIntentID, paymentIntentID, time.Now().UTC(), id}
	for _, s := range from {
		args = append(args, s)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE booking_id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrBookingNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check booking: %w", err)
	}
	return false, nil
}

func allowedFrom(next models.BookingStatus) []models.BookingStatus {
	var out []models.BookingStatus
	for _, s := range []models.BookingStatus{models.StatusCreated, models.StatusConfirmed, models.StatusPaymentFailed} {
		if s.CanTransition(next) {
			out = append(out, s)
		}
	}
	return out
}

// UpsertBooking inserts a booking rebuilt from payment metadata, or fills the
// blanks of an existing row. It never changes status.
func (db *DB) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	if booking.Status == "" {
		booking.Status = models.StatusCreated
	}

	query := `INSERT INTO bookings (` + bookingColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(booking_id) DO UPDATE SET
                artist_name = CASE WHEN bookings.artist_name = '' THEN excluded.artist_name ELSE bookings.artist_name END,
                placement = CASE WHEN bookings.placement = '' THEN excluded.placement ELSE bookings.placement END,
                size = CASE WHEN bookings.size = '' THEN excluded.size ELSE bookings.size END,
                description = CASE WHEN bookings.description = '' THEN excluded.description ELSE bookings.description END,
                checkout_session_id = CASE WHEN bookings.checkout_session_id = '' THEN excluded.checkout_session_id ELSE bookings.checkout_session_id END,
                payment_intent_id = CASE WHEN bookings.payment_intent_id = '' THEN excluded.payment_intent_id ELSE bookings.payment_intent_id END,
                updated_at = excluded.updated_at`
	if _, err := db.ExecContext(ctx, query, bookingArgs(booking)...); err != nil {
		return fmt.Errorf("failed to upsert booking: %w", err)
	}
	return nil
}

// ListBookings returns bookings whose appointment date falls in [from, to].
// A zero bound is open.
func (db *DB) ListBookings(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1 = 1`
	var args []interface{}
	if !from.IsZero() {
		query += ` AND appointment_date >= ?`
		args = append(args, from.Format("2006-01-02"))
	}
	if !to.IsZero() {
		query += ` AND appointment_date <= ?`
		args = append(args, to.Format("2006-01-02"))
	}
	query += ` ORDER BY appointment_date ASC, appointment_time ASC, created_at ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func bookingArgs(b *models.Booking) []interface{} {
	return []interface{}{
		b.ID,
		b.Artist,
		b.ArtistName,
		b.FirstName,
		b.LastName,
		b.Email,
		b.Phone,
		b.AppointmentDate,
		b.AppointmentTime,
		b.Placement,
		b.Size,
		b.Description,
		b.ConsultationType,
		b.Source,
		b.Deposit.Amount,
		b.Deposit.Currency,
		b.Status,
		b.CheckoutSessionID,
		b.PaymentIntentID,
		b.CreatedAt,
		b.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID,
		&b.Artist,
		&b.ArtistName,
		&b.FirstName,
		&b.LastName,
		&b.Email,
		&b.Phone,
		&b.AppointmentDate,
		&b.AppointmentTime,
		&b.Placement,
		&b.Size,
		&b.Description,
		&b.ConsultationType,
		&b.Source,
		&b.Deposit.Amount,
		&b.Deposit.Currency,
		&b.Status,
		&b.CheckoutSessionID,
		&b.PaymentIntentID,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
