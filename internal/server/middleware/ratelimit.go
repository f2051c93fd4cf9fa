package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/rebase/internal/cache"
	"github.com/agentstation/rebase/internal/server/response"
)

// RateLimiter allows a fixed number of requests per client IP per window.
// Websocket clients make one request per connection, so for them it bounds
// connection attempts.
type RateLimiter struct {
	mu      sync.Mutex
	windows *cache.Cache[*window]
	limit   int
	period  time.Duration
	logger  *zerolog.Logger
}

// window is the remaining allowance of one IP. It expires from the cache
// with its period, which starts a fresh window.
type window struct {
	mu        sync.Mutex
	remaining int
}

// NewRateLimiter creates a limiter allowing limit requests per minute per IP.
func NewRateLimiter(limit int, logger *zerolog.Logger) *RateLimiter {
	return newRateLimiter(limit, time.Minute, logger)
}

func newRateLimiter(limit int, period time.Duration, logger *zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		windows: cache.New[*window](period, 5*period),
		limit:   limit,
		period:  period,
		logger:  logger,
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	w, ok := rl.windows.Get(ip)
	if !ok {
		w = &window{remaining: rl.limit}
		rl.windows.Set(ip, w)
	}
	rl.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.remaining == 0 {
		return false
	}
	w.remaining--
	return true
}

// RateLimit rejects requests over the limiter's allowance with 429.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.allow(ip) {
				rl.logger.Warn().
					Str("ip", ip).
					Str("path", r.URL.Path).
					Msg("Rate limit exceeded")
				response.RateLimited(w, "Too many requests, retry in "+rl.period.String())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the first X-Forwarded-For hop, or the remote address without
// its port.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
