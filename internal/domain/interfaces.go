package domain

import (
	"context"
	"time"

	"berserk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BookingRepository is the durable booking ledger.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	AttachCheckoutSession(ctx context.Context, id, sessionID string) error
	UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus, paymentIntentID string) (bool, error)
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	ListBookings(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
}

// DedupStore records keys that have already been acted on.
type DedupStore interface {
	// Claim returns true when the caller is the first to claim key within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// DraftStore keeps serialized wizard drafts between page loads.
type DraftStore interface {
	SaveDraft(ctx context.Context, sessionID string, data []byte) error
	LoadDraft(ctx context.Context, sessionID string) ([]byte, error)
	ClearDraft(ctx context.Context, sessionID string) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, kind models.JobKind, bookingID string, payload interface{}) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
}
