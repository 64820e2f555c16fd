package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/dragonrealm/internal/api/apierr"
	"github.com/mcoot/dragonrealm/internal/middleware"
)

// Recovery creates panic recovery middleware for the API
// Returns JSON error responses on panic
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, apiPanicHandler)
}

func apiPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	apierr.WriteError(w, apierr.NewInternalError())
}

// Logging creates request logging middleware for the API
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Logging(logger)
}

// RateLimit creates per-client rate limiting middleware for the API
func RateLimit(limiter *middleware.RateLimiter) func(http.Handler) http.Handler {
	return middleware.RateLimit(limiter, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "60")
		apierr.WriteError(w, apierr.NewRateLimitedError())
	})
}
