package httpmiddleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client rate limiter.
type RateLimitConfig struct {
	// Max requests are allowed per Window; unused capacity refills evenly.
	Max    int
	Window time.Duration
	// MaxClients bounds the number of tracked clients. Defaults to 10000.
	MaxClients int
	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(*http.Request) string
}

// limiters keeps one token bucket per client. Idle clients expire after two
// windows, at which point their bucket would have been full again anyway.
type limiters struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	buckets *expirable.LRU[string, *rate.Limiter]
}

func newLimiters(cfg RateLimitConfig) *limiters {
	size := cfg.MaxClients
	if size <= 0 {
		size = 10000
	}
	return &limiters{
		every:   rate.Every(cfg.Window / time.Duration(cfg.Max)),
		burst:   cfg.Max,
		buckets: expirable.NewLRU[string, *rate.Limiter](size, nil, 2*cfg.Window),
	}
}

func (l *limiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.buckets.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
	}
	// Re-adding refreshes the expiry of active clients.
	l.buckets.Add(key, lim)
	return lim
}

// RateLimit rejects clients exceeding cfg with 429 and a Retry-After header.
// Every response carries X-RateLimit-Limit and X-RateLimit-Remaining.
func RateLimit(cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = clientIP
	}
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiters(cfg)
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lim := l.get(keyFunc(r))
			now := time.Now()

			res := lim.ReserveN(now, 1)
			delay := res.DelayFrom(now)
			if delay > 0 {
				res.CancelAt(now)
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Max(0, lim.TokensAt(now)))))

			if delay > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
