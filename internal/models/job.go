package models

import "time"

// JobKind names a side effect executed by the notification worker.
type JobKind string

const (
	JobCustomerConfirmation  JobKind = "customer_confirmation"
	JobStudioNewBooking      JobKind = "studio_new_booking"
	JobCustomerPaymentFailed JobKind = "customer_payment_failed"
	JobStudioPaymentFailed   JobKind = "studio_payment_failed"
	JobSheetUpsert           JobKind = "sheet_upsert"
)

// Job status values stored in the outbox.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusRetry      = "retry"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is a persisted outbox entry.
type Job struct {
	ID          int64      `json:"id"`
	Kind        JobKind    `json:"kind"`
	BookingID   string     `json:"booking_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// PaymentFailure is the payload of the payment-failed jobs.
type PaymentFailure struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Reason          string `json:"reason,omitempty"`
}
