package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"berserk/internal/clock"
	"berserk/internal/config"
	"berserk/internal/database"
	"berserk/internal/logging"
	"berserk/internal/models"
	"berserk/internal/payment"
	"berserk/internal/repository"
	"berserk/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeCreator struct {
	mu   sync.Mutex
	reqs []*models.BookingRequest
	err  error
}

func (f *fakeCreator) CreateBooking(_ context.Context, req *models.BookingRequest) (*models.BookingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if err := service.ValidateRequest(req); err != nil {
		return nil, err
	}
	return &models.BookingResponse{Success: true, BookingID: "BT-1-AAAAAAAAA", StripeURL: "https://checkout.stripe.com/pay/1", SessionID: "cs_1"}, nil
}

type fakeWebhooks struct {
	payload []byte
	header  string
	err     error
}

func (f *fakeWebhooks) Handle(_ context.Context, payload []byte, header string) error {
	f.payload, f.header = payload, header
	return f.err
}

type fakeSheets struct {
	rows int
	err  error
}

func (f *fakeSheets) ReplaceBookings(_ context.Context, bookings []*models.Booking) error {
	f.rows = len(bookings)
	return f.err
}

type testServer struct {
	*httptest.Server
	db       *database.DB
	creator  *fakeCreator
	webhooks *fakeWebhooks
	sheets   *fakeSheets
	drafts   *repository.MemoryDraftStore
}

func newTestServer(t *testing.T, mutate func(cfg *config.HTTPConfig, deps *Deps)) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := &testServer{
		db:       db,
		creator:  &fakeCreator{},
		webhooks: &fakeWebhooks{},
		sheets:   &fakeSheets{},
		drafts:   repository.NewMemoryDraftStore(),
	}
	cfg := config.HTTPConfig{
		AllowedOrigins: []string{"https://berserktattoos.com"},
		RateLimit:      config.RateLimitConfig{RPS: 100, Burst: 100},
	}
	deps := Deps{
		Bookings:     ts.creator,
		Webhooks:     ts.webhooks,
		Availability: service.NewAvailabilityService(config.AvailabilityConfig{Probability: 0.7}, clock.NewFixed(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)), func() float64 { return 0 }),
		Ledger:       db,
		Drafts:       ts.drafts,
		Sheets:       ts.sheets,
		Checks:       map[string]Check{"database": db.PingContext},
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	admin := config.AdminConfig{
		HeaderAPIKey: "x-api-key",
		HeaderExtra:  "x-api-extra",
		APIKeys: []config.APIClientKey{
			{Key: "studio-key", Extra: "studio-extra", Name: "studio"},
			{Key: "reader-key", Extra: "reader-extra", Name: "reader", Permissions: []string{permReadBookings}},
		},
		RateLimit: config.RateLimitConfig{RPS: 100, Burst: 100},
	}
	srv := NewHTTPServer(cfg, admin, deps, logging.Nop())
	ts.Server = httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

var adminHeaders = map[string]string{"x-api-key": "studio-key", "x-api-extra": "studio-extra"}

func seedBooking(t *testing.T, db *database.DB, id, date string) {
	t.Helper()
	require.NoError(t, db.CreateBooking(context.Background(), &models.Booking{
		ID: id, Artist: "amelia", ArtistName: "Amelia", FirstName: "Jane", LastName: "Doe",
		Email: "jane@example.com", Phone: "0412 345 678", AppointmentDate: date, AppointmentTime: "14:00",
		Deposit: models.NewMoney(5000, "aud"), Status: models.StatusCreated,
	}))
}

const validBody = `{"artist":"amelia","artistName":"Amelia","firstName":"Jane","lastName":"Doe","email":"jane@example.com","phone":"0412 345 678","appointmentDate":"2025-12-01","appointmentTime":"14:00","source":"website_booking_wizard","extra":"ignored"}`

func TestCreateBookingEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/api/create-booking", "/.netlify/functions/create-booking"} {
		t.Run(path, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, path, strings.NewReader(validBody), map[string]string{"Content-Type": "application/json"})
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			body := decodeBody(t, resp)
			assert.Equal(t, true, body["success"])
			assert.Equal(t, "BT-1-AAAAAAAAA", body["bookingId"])
			assert.Equal(t, "https://checkout.stripe.com/pay/1", body["stripeUrl"])
			assert.Equal(t, "cs_1", body["sessionId"])
		})
	}
	assert.Equal(t, "Amelia", ts.creator.reqs[0].ArtistName)
}

func TestCreateBookingErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("MissingField", func(t *testing.T) {
		body := strings.Replace(validBody, `"email":"jane@example.com",`, "", 1)
		resp := ts.do(t, http.MethodPost, "/api/create-booking", strings.NewReader(body), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, map[string]any{"error": "Missing required field: email"}, decodeBody(t, resp))
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/create-booking", strings.NewReader(`{"artist":`), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid request body", decodeBody(t, resp)["error"])
	})

	t.Run("WrongMethod", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/create-booking", nil, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
		assert.Equal(t, "Method not allowed", decodeBody(t, resp)["error"])
	})

	t.Run("Upstream", func(t *testing.T) {
		ts.creator.err = &service.UpstreamError{Op: "create checkout session", Err: errors.New("sk_live_secret rejected")}
		defer func() { ts.creator.err = nil }()

		resp := ts.do(t, http.MethodPost, "/api/create-booking", strings.NewReader(validBody), nil)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "Failed to create booking", body["error"])
		assert.Equal(t, genericUpstreamMessage, body["message"])
		assert.NotContains(t, fmt.Sprint(body), "sk_live_secret")
	})
}

func TestCreateBookingRateLimit(t *testing.T) {
	t.Run("UntrustedPeerIgnoresForwardedFor", func(t *testing.T) {
		ts := newTestServer(t, func(cfg *config.HTTPConfig, _ *Deps) {
			cfg.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 2}
		})

		for i := 0; i < 2; i++ {
			resp := ts.do(t, http.MethodPost, "/api/create-booking", strings.NewReader(validBody),
				map[string]string{"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i+1)})
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
		resp := ts.do(t, http.MethodPost, "/api/create-booking", strings.NewReader(validBody),
			map[string]string{"X-Forwarded-For": "203.0.113.99"})
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	})

	t.Run("TrustedProxyLimitsPerClient", func(t *testing.T) {
		ts := newTestServer(t, func(cfg *config.HTTPConfig, _ *Deps) {
			cfg.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 2}
			cfg.TrustedProxies = []string{"127.0.0.1/32", "::1"}
		})

		headers := map[string]string{"X-Forwarded-For": "203.0.113.7"}
		for i := 0; i < 2; i++ {
			resp := ts.do(t, http.MethodPost, "/api/create-booking", strings.NewReader(validBody), headers)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
		resp := ts.do(t, http.MethodPost, "/api/create-booking", strings.NewReader(validBody), headers)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

		// A spoofed left-most entry does not change the client seen by the proxy.
		spoofed := map[string]string{"X-Forwarded-For": "198.51.100.50, 203.0.113.7"}
		resp = ts.do(t, http.MethodPost, "/api/create-booking", strings.NewReader(validBody), spoofed)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

		other := ts.do(t, http.MethodPost, "/api/create-booking", strings.NewReader(validBody), map[string]string{"X-Forwarded-For": "198.51.100.1"})
		assert.Equal(t, http.StatusOK, other.StatusCode)
	})
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l := newRateLimiter(config.RateLimitConfig{RPS: 0.001, Burst: 1})
	l.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		assert.True(t, l.allow(fmt.Sprintf("203.0.113.%d", i)))
	}
	assert.Equal(t, 50, l.size())
	assert.False(t, l.allow("203.0.113.1"))

	now = now.Add(limiterIdleTTL + limiterSweepEvery)
	assert.True(t, l.allow("198.51.100.1"))
	assert.Equal(t, 1, l.size())
}

func TestAvailabilityEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/api/availability?artist=amelia&month=2025-06", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=300", resp.Header.Get("Cache-Control"))

	var av models.Availability
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&av))
	assert.True(t, av.Success)
	assert.Equal(t, "amelia", av.Artist)
	assert.Equal(t, "2025-06", av.Month)
	assert.Len(t, av.Slots["2025-06-02"], 8)

	alias := ts.do(t, http.MethodGet, "/.netlify/functions/get-availability", nil, nil)
	assert.Equal(t, http.StatusOK, alias.StatusCode)

	bad := ts.do(t, http.MethodGet, "/api/availability?month=2025-13", nil, nil)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	post := ts.do(t, http.MethodPost, "/api/availability", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestWebhookEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/api/stripe-webhook", strings.NewReader(`{"id":"evt_1"}`), map[string]string{payment.SignatureHeader: "t=1,v1=abc"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"received": true}, decodeBody(t, resp))
	assert.Equal(t, `{"id":"evt_1"}`, string(ts.webhooks.payload))
	assert.Equal(t, "t=1,v1=abc", ts.webhooks.header)

	t.Run("BadSignature", func(t *testing.T) {
		ts.webhooks.err = &service.SignatureError{Err: fmt.Errorf("%w: no valid signature", payment.ErrInvalidSignature)}
		defer func() { ts.webhooks.err = nil }()

		resp := ts.do(t, http.MethodPost, "/.netlify/functions/stripe-webhook", strings.NewReader(`{}`), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.True(t, strings.HasPrefix(decodeBody(t, resp)["error"].(string), "Webhook Error: "))
	})

	t.Run("ClaimFailure", func(t *testing.T) {
		ts.webhooks.err = errors.New("redis down")
		defer func() { ts.webhooks.err = nil }()

		resp := ts.do(t, http.MethodPost, "/api/stripe-webhook", strings.NewReader(`{}`), nil)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("TooLarge", func(t *testing.T) {
		big := bytes.Repeat([]byte("a"), 64<<10+1)
		resp := ts.do(t, http.MethodPost, "/api/stripe-webhook", bytes.NewReader(big), nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("WrongMethod", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/stripe-webhook", nil, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestDraftEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/api/booking-draft/sess-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/api/booking-draft/sess-1", strings.NewReader(`{"artist":"amelia","firstName":"Jane"}`), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/booking-draft/sess-1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, map[string]any{"artist": "amelia", "firstName": "Jane"}, decodeBody(t, resp))

	resp = ts.do(t, http.MethodPut, "/api/booking-draft/sess-1", strings.NewReader(`["not","a","draft"]`), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/booking-draft/sess-1", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.do(t, http.MethodGet, "/api/booking-draft/sess-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/booking-draft/", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = ts.do(t, http.MethodPost, "/api/booking-draft/sess-1", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t, nil)
	seedBooking(t, ts.db, "BT-1-AAAAAAAAA", "2025-12-01")

	cases := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{"Missing", "/api/v1/admin/bookings/BT-1-AAAAAAAAA", nil, http.StatusUnauthorized},
		{"WrongKey", "/api/v1/admin/bookings/BT-1-AAAAAAAAA", map[string]string{"x-api-key": "nope", "x-api-extra": "studio-extra"}, http.StatusUnauthorized},
		{"WrongExtra", "/api/v1/admin/bookings/BT-1-AAAAAAAAA", map[string]string{"x-api-key": "studio-key", "x-api-extra": "nope"}, http.StatusUnauthorized},
		{"MixedPair", "/api/v1/admin/bookings/BT-1-AAAAAAAAA", map[string]string{"x-api-key": "studio-key", "x-api-extra": "reader-extra"}, http.StatusUnauthorized},
		{"AllowAll", "/api/v1/admin/bookings/BT-1-AAAAAAAAA", adminHeaders, http.StatusOK},
		{"ReaderCanRead", "/api/v1/admin/bookings/BT-1-AAAAAAAAA", map[string]string{"x-api-key": "reader-key", "x-api-extra": "reader-extra"}, http.StatusOK},
		{"ReaderCannotExport", "/api/v1/admin/bookings/export", map[string]string{"x-api-key": "reader-key", "x-api-extra": "reader-extra"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodGet, tc.path, nil, tc.headers)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestAdminGetBooking(t *testing.T) {
	ts := newTestServer(t, nil)
	seedBooking(t, ts.db, "BT-1-AAAAAAAAA", "2025-12-01")

	resp := ts.do(t, http.MethodGet, "/api/v1/admin/bookings/BT-1-AAAAAAAAA", nil, adminHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var b models.Booking
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	assert.Equal(t, "BT-1-AAAAAAAAA", b.ID)
	assert.Equal(t, models.StatusCreated, b.Status)

	missing := ts.do(t, http.MethodGet, "/api/v1/admin/bookings/BT-404", nil, adminHeaders)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestAdminExport(t *testing.T) {
	ts := newTestServer(t, nil)
	seedBooking(t, ts.db, "BT-1-AAAAAAAAA", "2025-12-01")
	seedBooking(t, ts.db, "BT-2-AAAAAAAAA", "2026-01-15")

	resp := ts.do(t, http.MethodGet, "/api/v1/admin/bookings/export?from=2025-12-01&to=2025-12-31", nil, adminHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	// Title, blank, header, then one booking.
	require.Len(t, rows, 4)
	assert.Equal(t, "BT-1-AAAAAAAAA", rows[3][0])

	bad := ts.do(t, http.MethodGet, "/api/v1/admin/bookings/export?from=12/01/2025", nil, adminHeaders)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	reversed := ts.do(t, http.MethodGet, "/api/v1/admin/bookings/export?from=2025-12-31&to=2025-12-01", nil, adminHeaders)
	assert.Equal(t, http.StatusBadRequest, reversed.StatusCode)
}

func TestAdminSheetsResync(t *testing.T) {
	ts := newTestServer(t, nil)
	seedBooking(t, ts.db, "BT-1-AAAAAAAAA", "2025-12-01")
	seedBooking(t, ts.db, "BT-2-AAAAAAAAA", "2026-01-15")

	resp := ts.do(t, http.MethodPost, "/api/v1/admin/sheets/resync", nil, adminHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), decodeBody(t, resp)["rows"])
	assert.Equal(t, 2, ts.sheets.rows)

	ts.sheets.err = errors.New("quota exceeded")
	resp = ts.do(t, http.MethodPost, "/api/v1/admin/sheets/resync", nil, adminHeaders)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	unconfigured := newTestServer(t, func(_ *config.HTTPConfig, deps *Deps) { deps.Sheets = nil })
	resp = unconfigured.do(t, http.MethodPost, "/api/v1/admin/sheets/resync", nil, adminHeaders)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = ts.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	failing := newTestServer(t, func(_ *config.HTTPConfig, deps *Deps) {
		deps.Checks["redis"] = func(context.Context) error { return errors.New("connection refused") }
	})
	resp = failing.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, map[string]any{"redis": "connection refused"}, body["checks"])
}

func TestMiddleware(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("RequestID", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/healthz", nil, nil)
		assert.Len(t, resp.Header.Get(requestIDHeader), 36)

		const inbound = "0b8e7c3e-4a53-4c56-9f3c-2d1f6c1b9a10"
		resp = ts.do(t, http.MethodGet, "/healthz", nil, map[string]string{requestIDHeader: inbound})
		assert.Equal(t, inbound, resp.Header.Get(requestIDHeader))

		resp = ts.do(t, http.MethodGet, "/healthz", nil, map[string]string{requestIDHeader: "<script>"})
		assert.NotEqual(t, "<script>", resp.Header.Get(requestIDHeader))
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		resp := ts.do(t, http.MethodOptions, "/api/create-booking", nil, map[string]string{
			"Origin":                        "https://berserktattoos.com",
			"Access-Control-Request-Method": "POST",
		})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "https://berserktattoos.com", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("CORSUnknownOrigin", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/healthz", nil, map[string]string{"Origin": "https://evil.example"})
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("NotFound", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/nope", nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRecovery(t *testing.T) {
	h := requestID(logging.Nop(), recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClientIP(t *testing.T) {
	proxies, invalid := parseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", "not-a-cidr", ""})
	assert.Equal(t, []string{"not-a-cidr"}, invalid)
	require.Len(t, proxies, 2)

	cases := []struct {
		name   string
		remote string
		xff    []string
		want   string
	}{
		{name: "NoHeader", remote: "198.51.100.10:5555", want: "198.51.100.10"},
		{name: "UntrustedPeerHeaderIgnored", remote: "198.51.100.10:5555", xff: []string{"203.0.113.7"}, want: "198.51.100.10"},
		{name: "TrustedPeerNoHeader", remote: "10.1.2.3:443", want: "10.1.2.3"},
		{name: "TrustedPeerSingleHop", remote: "10.1.2.3:443", xff: []string{"203.0.113.7"}, want: "203.0.113.7"},
		{name: "RightMostUntrusted", remote: "10.1.2.3:443", xff: []string{"1.1.1.1, 203.0.113.7, 10.0.0.9"}, want: "203.0.113.7"},
		{name: "MultipleHeaderValues", remote: "192.0.2.1:443", xff: []string{"1.1.1.1", "203.0.113.8"}, want: "203.0.113.8"},
		{name: "GarbageHopStops", remote: "10.1.2.3:443", xff: []string{"203.0.113.7, junk"}, want: "10.1.2.3"},
		{name: "AllTrusted", remote: "10.1.2.3:443", xff: []string{"10.0.0.7"}, want: "10.0.0.7"},
		{name: "MappedIPv4", remote: "[::ffff:10.1.2.3]:443", xff: []string{"203.0.113.7"}, want: "203.0.113.7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for _, v := range tc.xff {
				r.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tc.want, proxies.clientIP(r))
		})
	}

	var none trustedProxies
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "192.0.2.10", none.clientIP(r))
}
