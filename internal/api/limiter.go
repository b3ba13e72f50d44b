package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"berserk/internal/config"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = time.Minute
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client key. Buckets idle for
// limiterIdleTTL are dropped on a later call.
type rateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	cfg       config.RateLimitConfig
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	return &rateLimiter{limiters: make(map[string]*limiterEntry), cfg: cfg, now: time.Now}
}

// allow reports whether key may proceed. A non-positive RPS disables limiting.
func (l *rateLimiter) allow(key string) bool {
	if l.cfg.RPS <= 0 {
		return true
	}
	return l.getLimiter(key).AllowN(l.now(), 1)
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= limiterSweepEvery {
		l.sweep(now)
	}

	if e, ok := l.limiters[key]; ok {
		e.lastSeen = now
		return e.lim
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	e := &limiterEntry{lim: rate.NewLimiter(rate.Limit(l.cfg.RPS), burst), lastSeen: now}
	l.limiters[key] = e
	return e.lim
}

// caller holds mu.
func (l *rateLimiter) sweep(now time.Time) {
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

func (l *rateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// limitByIP rejects clients that exceed the booking creation rate.
func (s *HTTPServer) limitByIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(s.proxies.clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// trustedProxies decides when X-Forwarded-For may be believed.
type trustedProxies []netip.Prefix

// parseTrustedProxies accepts CIDRs and bare addresses and returns the
// entries it could not parse.
func parseTrustedProxies(entries []string) (trustedProxies, []string) {
	var (
		out     trustedProxies
		invalid []string
	)
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(raw); err == nil {
			out = append(out, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
			continue
		}
		invalid = append(invalid, raw)
	}
	return out, invalid
}

func (t trustedProxies) contains(a netip.Addr) bool {
	a = a.Unmap()
	for _, p := range t {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// clientIP is the socket peer unless that peer is a trusted proxy, in which
// case it walks X-Forwarded-For from the right and returns the first hop that
// is not itself trusted.
func (t trustedProxies) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		if host == "" {
			return "unknown"
		}
		return host
	}
	if len(t) == 0 || !t.contains(peer) {
		return peer.Unmap().String()
	}

	client := peer
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		client = hop
		if !t.contains(hop) {
			break
		}
	}
	return client.Unmap().String()
}
