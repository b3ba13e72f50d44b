// Package notify delivers booking side effects: customer emails, studio
// alerts and the bookings sheet.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"berserk/internal/domain"
	"berserk/internal/models"
	"berserk/internal/worker"

	"github.com/rs/zerolog"
)

const (
	StudioEmail = "berserk.tattoos.au@gmail.com"
	StudioPhone = "0478 128 212"
)

type CustomerNotifier interface {
	SendConfirmation(ctx context.Context, b *models.Booking) error
	SendPaymentFailed(ctx context.Context, b *models.Booking, f models.PaymentFailure) error
}

type StudioNotifier interface {
	NotifyNewBooking(ctx context.Context, b *models.Booking) error
	NotifyPaymentFailed(ctx context.Context, b *models.Booking, f models.PaymentFailure) error
}

// LogNotifier only writes log lines. It stands in for any unconfigured channel.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendConfirmation(_ context.Context, b *models.Booking) error {
	n.logger.Info().Str("booking_id", b.ID).Str("email", b.Email).Msg("Sending confirmation email")
	return nil
}

func (n *LogNotifier) SendPaymentFailed(_ context.Context, b *models.Booking, f models.PaymentFailure) error {
	n.logger.Info().Str("booking_id", b.ID).Str("email", b.Email).Str("payment_intent", f.PaymentIntentID).Msg("Sending payment failed email")
	return nil
}

func (n *LogNotifier) NotifyNewBooking(_ context.Context, b *models.Booking) error {
	n.logger.Info().Str("booking_id", b.ID).Str("customer", b.CustomerName()).Str("artist", b.DisplayArtist()).Msg("Sending notification to studio")
	return nil
}

func (n *LogNotifier) NotifyPaymentFailed(_ context.Context, b *models.Booking, f models.PaymentFailure) error {
	n.logger.Warn().Str("booking_id", b.ID).Str("payment_intent", f.PaymentIntentID).Msg("Payment failed, notifying studio")
	return nil
}

// StudioFanout sends each studio alert to every channel and joins the errors.
type StudioFanout []StudioNotifier

func (f StudioFanout) NotifyNewBooking(ctx context.Context, b *models.Booking) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.NotifyNewBooking(ctx, b))
	}
	return errors.Join(errs...)
}

func (f StudioFanout) NotifyPaymentFailed(ctx context.Context, b *models.Booking, pf models.PaymentFailure) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.NotifyPaymentFailed(ctx, b, pf))
	}
	return errors.Join(errs...)
}

// Routes maps every job kind to its collaborator.
func Routes(customer CustomerNotifier, studio StudioNotifier, sheets domain.SheetsWriter) map[models.JobKind]worker.Handler {
	return map[models.JobKind]worker.Handler{
		models.JobCustomerConfirmation: worker.HandlerFunc(func(ctx context.Context, b *models.Booking, _ *models.Job) error {
			return customer.SendConfirmation(ctx, b)
		}),
		models.JobStudioNewBooking: worker.HandlerFunc(func(ctx context.Context, b *models.Booking, _ *models.Job) error {
			return studio.NotifyNewBooking(ctx, b)
		}),
		models.JobCustomerPaymentFailed: worker.HandlerFunc(func(ctx context.Context, b *models.Booking, job *models.Job) error {
			f, err := decodeFailure(job)
			if err != nil {
				return err
			}
			return customer.SendPaymentFailed(ctx, b, f)
		}),
		models.JobStudioPaymentFailed: worker.HandlerFunc(func(ctx context.Context, b *models.Booking, job *models.Job) error {
			f, err := decodeFailure(job)
			if err != nil {
				return err
			}
			return studio.NotifyPaymentFailed(ctx, b, f)
		}),
		models.JobSheetUpsert: worker.HandlerFunc(func(ctx context.Context, b *models.Booking, _ *models.Job) error {
			if sheets == nil {
				return nil
			}
			return sheets.UpsertBooking(ctx, b)
		}),
	}
}

func decodeFailure(job *models.Job) (models.PaymentFailure, error) {
	var f models.PaymentFailure
	if job.Payload == "" {
		return f, nil
	}
	if err := json.Unmarshal([]byte(job.Payload), &f); err != nil {
		return f, fmt.Errorf("decode payment failure: %v: %w", err, worker.ErrPermanent)
	}
	return f, nil
}
