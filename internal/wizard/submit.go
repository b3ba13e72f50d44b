package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"berserk/internal/models"
)

var ErrSubmitInFlight = errors.New("booking submission already in progress")

// FailureMessage is what the customer sees when a submission fails.
const FailureMessage = "There was an error processing your booking. Please try again or contact us directly."

// Submitter delivers a finished booking request.
type Submitter interface {
	Submit(ctx context.Context, req *models.BookingRequest) (*models.BookingResponse, error)
}

// Submit sends the draft once and returns the checkout URL. On failure the
// draft is kept so the customer can retry.
func (s *Session) Submit(ctx context.Context, submitter Submitter) (string, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return "", ErrSubmitInFlight
	}
	if errs := s.validateAll(); len(errs) > 0 {
		s.mu.Unlock()
		return "", errs
	}
	req, err := s.request()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.submitting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	resp, err := submitter.Submit(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", s.id).Msg("Booking submission failed")
		return "", err
	}
	if resp == nil || resp.StripeURL == "" {
		return "", errors.New("no checkout URL received")
	}

	s.logger.Info().Str("session_id", s.id).Str("booking_id", resp.BookingID).Msg("Booking submitted")
	s.Reset(ctx)
	return resp.StripeURL, nil
}

// request builds the wire payload from the draft; caller holds mu.
func (s *Session) request() (*models.BookingRequest, error) {
	raw, err := json.Marshal(s.draft)
	if err != nil {
		return nil, fmt.Errorf("encode draft: %w", err)
	}
	var req models.BookingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	req.Timestamp = s.clock.Now().UTC().Format(time.RFC3339)
	req.Source = models.WizardSource
	return &req, nil
}

// HTTPSubmitter posts requests to the create-booking endpoint.
type HTTPSubmitter struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSubmitter(endpoint string, client *http.Client) *HTTPSubmitter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSubmitter{endpoint: endpoint, client: client}
}

func (h *HTTPSubmitter) Submit(ctx context.Context, req *models.BookingRequest) (*models.BookingResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post booking: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("booking submission failed: %s (status %d)", apiErr.Error, res.StatusCode)
		}
		return nil, fmt.Errorf("booking submission failed: status %d", res.StatusCode)
	}

	var out models.BookingResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
