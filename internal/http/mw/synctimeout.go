package mw

import (
	"net/http"
	"time"
)

// maxSyncWaitTimeout bounds how long a wait=true poll request may block
// before the write deadline extension below gives up.
const maxSyncWaitTimeout = 2 * time.Minute

// ExtendWriteDeadlineForSyncRequests is middleware that extends the HTTP write deadline
// for long-running synchronous requests (wait=true result polling).
// This allows requests to block longer than the server's default WriteTimeout.
func ExtendWriteDeadlineForSyncRequests() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("wait") == "true" {
				rc := http.NewResponseController(w)
				deadline := time.Now().Add(maxSyncWaitTimeout + 30*time.Second)
				_ = rc.SetWriteDeadline(deadline)
			}

			next.ServeHTTP(w, r)
		})
	}
}
