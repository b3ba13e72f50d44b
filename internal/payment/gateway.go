// Package payment wraps Stripe Checkout and webhook verification.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"berserk/internal/config"
	"berserk/internal/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
)

// CheckoutRequest describes a one-item hosted checkout.
type CheckoutRequest struct {
	BookingID             string
	CustomerEmail         string
	ProductName           string
	Description           string
	ImageURL              string
	Amount                models.Money
	SuccessURL            string
	CancelURL             string
	Metadata              map[string]string
	PaymentIntentMetadata map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// StripeGateway creates checkout sessions on a dedicated backend so the
// timeout and retry settings never leak into the global stripe client.
type StripeGateway struct {
	client session.Client
}

func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	return &StripeGateway{client: session.Client{B: backend, Key: cfg.SecretKey}}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.Amount.Amount <= 0 {
		return nil, fmt.Errorf("checkout amount must be positive, got %d", req.Amount.Amount)
	}

	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name:        stripe.String(req.ProductName),
		Description: stripe.String(req.Description),
	}
	if req.ImageURL != "" {
		product.Images = stripe.StringSlice([]string{req.ImageURL})
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Amount.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(req.Amount.Amount),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(req.BookingID),
		Metadata:          req.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.PaymentIntentMetadata,
		},
	}
	params.Context = ctx

	s, err := g.client.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if s.URL == "" {
		return nil, errors.New("checkout session has no url")
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// ProviderMessage extracts the Stripe error message for logs.
func ProviderMessage(err error) string {
	var se *stripe.Error
	if errors.As(err, &se) {
		return fmt.Sprintf("%s (%s, http %d)", se.Msg, se.Code, se.HTTPStatusCode)
	}
	return err.Error()
}
