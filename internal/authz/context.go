package authz

import (
	"context"
	"net/http"
)

// sessionIDKey is an unexported context key type, matching the
// ContextKey/UserClaimsKey pattern the auth middleware in the pack uses —
// an unexported type prevents collisions with context keys set by other
// packages.
type sessionIDKey struct{}

// WithSessionID attaches a resolved session id to a context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFromContext returns the session id bound to ctx, if any.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// SessionHeader is the header spec.md §6 requires on async operations.
const SessionHeader = "X-Session-Id"

// Middleware extracts the caller's session id from the X-Session-Id header
// and binds it to the request context. It never rejects a request itself —
// missing identity is a concern of the handler (and, ultimately, of
// Decide), not of this middleware, since some endpoints (the photo proxy,
// health checks) have no session at all.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(SessionHeader); id != "" {
			r = r.WithContext(WithSessionID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// SessionIDFunc satisfies mw.SessionIDFunc for the rate limiter.
func SessionIDFunc(r *http.Request) (string, bool) {
	return SessionIDFromContext(r.Context())
}
