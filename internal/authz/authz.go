// Package authz decides who may read a Search Job's result. The session id
// itself is an external collaborator's concern (spec.md treats authentication
// as already resolved by the time it reaches this module) — this package
// only ever consumes an opaque session id already extracted from a request.
package authz

import (
	"net/http"

	"github.com/placefinder/search-api/internal/models"
)

// Decision is the outcome of an ownership check: either it's allowed, or a
// concrete HTTP status the caller should see.
type Decision struct {
	Allowed bool
	Status  int
	Reason  string
}

// allow builds an affirmative decision.
func allow() Decision {
	return Decision{Allowed: true, Status: http.StatusOK, Reason: "ALLOWED"}
}

func deny(status int, reason string) Decision {
	return Decision{Allowed: false, Status: status, Reason: reason}
}

// Decide is the pure ownership check from spec.md §4.5:
//
//  1. job is nil (not found)              -> 404 NOT_FOUND
//  2. callerSessionID is empty (no identity) -> 401 UNAUTHORIZED
//  3. job.OwnerSessionID is empty (legacy row) or != callerSessionID -> 404,
//     never 403 — disclosing "this job exists but isn't yours" is itself a
//     leak, so a mismatch looks identical to a missing job.
//  4. otherwise -> allow.
//
// No I/O, no logging — the caller records the decision via audit.Logger.
func Decide(job *models.SearchJob, callerSessionID string) Decision {
	if job == nil {
		return deny(http.StatusNotFound, "NOT_FOUND")
	}
	if callerSessionID == "" {
		return deny(http.StatusUnauthorized, "UNAUTHORIZED")
	}
	if job.OwnerSessionID == "" || job.OwnerSessionID != callerSessionID {
		return deny(http.StatusNotFound, "OWNERSHIP_DENIED")
	}
	return allow()
}
