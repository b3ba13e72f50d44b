package models

import "time"

// Booking is a consultation booking correlated with exactly one checkout session.
type Booking struct {
	ID                string        `json:"booking_id"`
	Artist            string        `json:"artist"`
	ArtistName        string        `json:"artist_name"`
	FirstName         string        `json:"first_name"`
	LastName          string        `json:"last_name"`
	Email             string        `json:"email"`
	Phone             string        `json:"phone"`
	AppointmentDate   string        `json:"appointment_date"`
	AppointmentTime   string        `json:"appointment_time"`
	Placement         string        `json:"placement,omitempty"`
	Size              string        `json:"size,omitempty"`
	Description       string        `json:"description,omitempty"`
	ConsultationType  string        `json:"consultation_type,omitempty"`
	Source            string        `json:"source,omitempty"`
	Deposit           Money         `json:"deposit"`
	Status            BookingStatus `json:"status"`
	CheckoutSessionID string        `json:"checkout_session_id,omitempty"`
	PaymentIntentID   string        `json:"payment_intent_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// CustomerName returns "First Last".
func (b *Booking) CustomerName() string {
	if b.LastName == "" {
		return b.FirstName
	}
	return b.FirstName + " " + b.LastName
}

// DisplayArtist prefers the human name over the roster id.
func (b *Booking) DisplayArtist() string {
	if b.ArtistName != "" {
		return b.ArtistName
	}
	return b.Artist
}

// BookingRequest is the JSON body posted by the booking wizard.
type BookingRequest struct {
	Artist           string `json:"artist"`
	ArtistName       string `json:"artistName,omitempty"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	AppointmentDate  string `json:"appointmentDate"`
	AppointmentTime  string `json:"appointmentTime"`
	Placement        string `json:"placement,omitempty"`
	Size             string `json:"size,omitempty"`
	Description      string `json:"description,omitempty"`
	ConsultationType string `json:"consultationType,omitempty"`
	Budget           string `json:"budget,omitempty"`
	Timestamp        string `json:"timestamp,omitempty"`
	Source           string `json:"source,omitempty"`
}

// RequiredBookingFields lists the wire fields that must be present, in check order.
var RequiredBookingFields = []string{
	"artist",
	"firstName",
	"lastName",
	"email",
	"phone",
	"appointmentDate",
	"appointmentTime",
}

// Field returns the value of a wire field by its JSON name.
func (r *BookingRequest) Field(name string) string {
	switch name {
	case "artist":
		return r.Artist
	case "artistName":
		return r.ArtistName
	case "firstName":
		return r.FirstName
	case "lastName":
		return r.LastName
	case "email":
		return r.Email
	case "phone":
		return r.Phone
	case "appointmentDate":
		return r.AppointmentDate
	case "appointmentTime":
		return r.AppointmentTime
	case "placement":
		return r.Placement
	case "size":
		return r.Size
	case "description":
		return r.Description
	case "consultationType":
		return r.ConsultationType
	case "budget":
		return r.Budget
	case "timestamp":
		return r.Timestamp
	case "source":
		return r.Source
	default:
		return ""
	}
}

// BookingResponse is returned by the creation endpoint on success.
type BookingResponse struct {
	Success   bool   `json:"success"`
	BookingID string `json:"bookingId"`
	StripeURL string `json:"stripeUrl"`
	SessionID string `json:"sessionId"`
}

// BookingDraft holds wizard input keyed by wire field name.
type BookingDraft map[string]string
