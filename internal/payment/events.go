package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const SignatureHeader = "Stripe-Signature"

// Event types dispatched by the webhook.
const (
	TypeCheckoutCompleted = "checkout.session.completed"
	TypePaymentSucceeded  = "payment_intent.succeeded"
	TypePaymentFailed     = "payment_intent.payment_failed"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent is returned for authentic payloads that cannot be decoded.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// Event is one of CheckoutCompleted, PaymentSucceeded, PaymentFailed or Unhandled.
type Event interface {
	Meta() Envelope
	sealed()
}

// Envelope carries the fields every provider event has.
type Envelope struct {
	ID         string
	Type       string
	APIVersion string
	Created    time.Time
	Livemode   bool
}

// VersionMismatch reports whether the endpoint sends a different API version
// than the one the SDK decodes.
func (e Envelope) VersionMismatch() bool {
	return e.APIVersion != "" && e.APIVersion != stripe.APIVersion
}

func (e Envelope) Meta() Envelope { return e }
func (Envelope) sealed() {}

type CheckoutCompleted struct {
	Envelope
	SessionID       string
	BookingID       string
	CustomerEmail   string
	PaymentIntentID string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

// Paid reports whether the session collected its payment. Delayed methods
// complete the session unpaid and confirm later via payment_intent.succeeded.
func (c CheckoutCompleted) Paid() bool {
	switch stripe.CheckoutSessionPaymentStatus(c.PaymentStatus) {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return true
	default:
		return false
	}
}

type PaymentSucceeded struct {
	Envelope
	PaymentIntentID string
	BookingID       string
	Amount          int64
	Currency        string
}

type PaymentFailed struct {
	Envelope
	PaymentIntentID string
	BookingID       string
	Reason          string
}

type Unhandled struct {
	Envelope
}

// Verifier authenticates webhook deliveries with the endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Parse checks the signature before decoding anything from payload.
func (v *Verifier) Parse(payload []byte, header string) (Event, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: no webhook secret configured", ErrInvalidSignature)
	}
	// The API version is reported on the envelope rather than enforced: only
	// ids, metadata and status fields are decoded.
	ev, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureFailure(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	env := Envelope{
		ID:         ev.ID,
		Type:       string(ev.Type),
		APIVersion: ev.APIVersion,
		Created:    time.Unix(ev.Created, 0).UTC(),
		Livemode:   ev.Livemode,
	}
	if ev.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, ev.ID)
	}

	switch env.Type {
	case TypeCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return checkoutCompleted(env, &s), nil
	case TypePaymentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return PaymentSucceeded{
			Envelope:        env,
			PaymentIntentID: pi.ID,
			BookingID:       pi.Metadata["bookingId"],
			Amount:          pi.Amount,
			Currency:        string(pi.Currency),
		}, nil
	case TypePaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		failed := PaymentFailed{
			Envelope:        env,
			PaymentIntentID: pi.ID,
			BookingID:       pi.Metadata["bookingId"],
		}
		if pi.LastPaymentError != nil {
			failed.Reason = pi.LastPaymentError.Msg
			if failed.Reason == "" {
				failed.Reason = string(pi.LastPaymentError.Code)
			}
		}
		return failed, nil
	default:
		return Unhandled{Envelope: env}, nil
	}
}

func isSignatureFailure(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func checkoutCompleted(env Envelope, s *stripe.CheckoutSession) CheckoutCompleted {
	ev := CheckoutCompleted{
		Envelope:      env,
		SessionID:     s.ID,
		BookingID:     s.ClientReferenceID,
		CustomerEmail: s.CustomerEmail,
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
	if ev.BookingID == "" {
		ev.BookingID = s.Metadata["bookingId"]
	}
	if ev.CustomerEmail == "" && s.CustomerDetails != nil {
		ev.CustomerEmail = s.CustomerDetails.Email
	}
	if s.PaymentIntent != nil {
		ev.PaymentIntentID = s.PaymentIntent.ID
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]string{}
	}
	return ev
}
