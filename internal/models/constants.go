package models

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusCreated       BookingStatus = "created"
	StatusConfirmed     BookingStatus = "confirmed"
	StatusPaymentFailed BookingStatus = "payment_failed"
)

// CanTransition reports whether a booking may move from s to next.
// Confirmed is terminal; a failed payment may still be confirmed by a later successful attempt.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	switch s {
	case StatusCreated:
		return next == StatusConfirmed || next == StatusPaymentFailed
	case StatusPaymentFailed:
		return next == StatusConfirmed || next == StatusPaymentFailed
	case StatusConfirmed:
		return false
	default:
		return false
	}
}

const (
	// BookingIDPrefix starts every generated booking id.
	BookingIDPrefix = "BT"

	// WizardSource tags requests coming from the website wizard.
	WizardSource = "website_booking_wizard"

	// DefaultDepositAmount is the consultation deposit in cents.
	DefaultDepositAmount = 5000
	DefaultCurrency      = "aud"

	DefaultDedupTTLHours          = 72
	DefaultAvailabilityTTLSeconds = 300
)

const (
	ConsultationPhone    = "phone"
	ConsultationInPerson = "in-person"
)
