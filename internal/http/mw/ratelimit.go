package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// SessionIDFunc extracts the bound session id from a request, if any.
// Handlers upstream of the rate limiter are expected to have already
// resolved and attached it (see internal/authz).
type SessionIDFunc func(r *http.Request) (string, bool)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// SessionRequestsPerMinute is the rate limit applied per bound session.
	SessionRequestsPerMinute int
	// IPRequestsPerMinute is the per-IP limit for public endpoints with no
	// session binding, such as the photo proxy (applied via RateLimitByIP).
	// RateLimitBySession does not read it.
	IPRequestsPerMinute int
}

// RateLimitBySession returns a middleware that rate limits by session id,
// keying by client IP instead when no session is bound to the request. Both
// keys share the SessionRequestsPerMinute limit.
func RateLimitBySession(cfg RateLimitConfig, sessionID SessionIDFunc) func(http.Handler) http.Handler {
	limiter := httprate.NewRateLimiter(
		cfg.SessionRequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if id, ok := sessionID(r); ok && id != "" {
				return "session:" + id, nil
			}
			return httprate.KeyByIP(r)
		}),
	)

	return func(next http.Handler) http.Handler {
		return limiter.Handler(next)
	}
}

// RateLimitByIP returns a middleware that rate limits by IP address.
// Used for the photo proxy and other endpoints with no session binding.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitGlobal returns a middleware that applies a global rate limit
// to prevent overall system overload. Uses a sliding window.
func RateLimitGlobal(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "global", nil
		}),
	)
}
