package middleware

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig sets the per-client request budget
type RateLimitConfig struct {
	// Requests is the burst a client may spend at once
	Requests int
	// Window is how long a full burst takes to refill
	Window time.Duration
	// IdleTTL is how long an idle client's bucket is kept
	IdleTTL time.Duration
}

// DefaultRateLimitConfig allows 100 requests per 15 minutes per client
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Requests: 100,
		Window:   15 * time.Minute,
		IdleTTL:  30 * time.Minute,
	}
}

// Validate rejects budgets that cannot refill
func (c RateLimitConfig) Validate() error {
	if c.Requests <= 0 {
		return errors.New("rate limit requests must be positive")
	}
	if c.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}

// LimitHandler writes the response for a rejected request
type LimitHandler func(w http.ResponseWriter, r *http.Request)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks a token bucket per client address
type RateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

// NewRateLimiter creates a new RateLimiter
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow spends one request from the client's budget. A config that fails
// Validate allows everything.
func (l *RateLimiter) Allow(client string) bool {
	if l.cfg.Validate() != nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[client]
	if !ok {
		every := l.cfg.Window / time.Duration(l.cfg.Requests)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), l.cfg.Requests)}
		l.visitors[client] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Sweep forgets clients idle longer than IdleTTL
func (l *RateLimiter) Sweep() int {
	cutoff := l.now().Add(-l.cfg.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for client, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, client)
			removed++
		}
	}
	return removed
}

// RateLimit creates middleware that rejects clients over budget
func RateLimit(limiter *RateLimiter, handler LimitHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientAddr(r)) {
				handler(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
