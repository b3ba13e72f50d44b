package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"berserk/internal/config"
)

var (
	errMissingKey       = errors.New("missing api key headers")
	errInvalidKey       = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
)

// AdminAuth checks the API key pair and per-client rate limit on admin routes.
type AdminAuth struct {
	cfg     config.AdminConfig
	limiter *rateLimiter
}

func NewAdminAuth(cfg config.AdminConfig) *AdminAuth {
	return &AdminAuth{cfg: cfg, limiter: newRateLimiter(cfg.RateLimit)}
}

func (a *AdminAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, err := a.authenticate(r)
		if err == nil {
			err = checkPermission(client, requiredPermission(r))
		}
		if err != nil {
			statusCode := http.StatusUnauthorized
			if errors.Is(err, errPermissionDenied) {
				statusCode = http.StatusForbidden
			}
			writeError(w, statusCode, err.Error())
			return
		}

		if !a.limiter.allow(client.Key) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate compares every configured key so timing does not reveal
// which keys exist.
func (a *AdminAuth) authenticate(r *http.Request) (config.APIClientKey, error) {
	apiKey := strings.TrimSpace(r.Header.Get(headerOr(a.cfg.HeaderAPIKey, "x-api-key")))
	extra := strings.TrimSpace(r.Header.Get(headerOr(a.cfg.HeaderExtra, "x-api-extra")))
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingKey
	}

	var (
		match config.APIClientKey
		found bool
	)
	for _, k := range a.cfg.APIKeys {
		keyOK := subtle.ConstantTimeCompare([]byte(k.Key), []byte(apiKey))
		extraOK := subtle.ConstantTimeCompare([]byte(k.Extra), []byte(extra))
		if keyOK&extraOK == 1 && !found {
			match, found = k, true
		}
	}
	if !found {
		return config.APIClientKey{}, errInvalidKey
	}
	return match, nil
}

func checkPermission(client config.APIClientKey, required string) error {
	// An empty permission list allows everything.
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	switch path := r.URL.Path; {
	case path == "/api/v1/admin/bookings/export":
		return permExportBookings
	case path == "/api/v1/admin/sheets/resync":
		return permSyncSheets
	case strings.HasPrefix(path, "/api/v1/admin/bookings/"):
		return permReadBookings
	default:
		return ""
	}
}

func headerOr(name, fallback string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return fallback
}
