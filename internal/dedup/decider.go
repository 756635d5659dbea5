// Package dedup decides whether a new Search Job is needed for a request,
// or whether an existing candidate job should be reused. Decide is a pure
// function: no I/O, no mutation of its input, referentially transparent.
package dedup

import (
	"time"

	"github.com/placefinder/search-api/internal/models"
)

// Reason names why a Decide call returned the verdict it did.
type Reason string

const (
	ReasonNoCandidate            Reason = "NO_CANDIDATE"
	ReasonCachedResultAvailable  Reason = "CACHED_RESULT_AVAILABLE"
	ReasonStatusClarify          Reason = "STATUS_CLARIFY"
	ReasonStatusStopped          Reason = "STATUS_STOPPED"
	ReasonStatusPending          Reason = "STATUS_PENDING"
	ReasonPreviousJobFailed      Reason = "PREVIOUS_JOB_FAILED"
	ReasonRunningFresh           Reason = "RUNNING_FRESH"
	ReasonStaleRunningNoHeartbeat Reason = "STALE_RUNNING_NO_HEARTBEAT"
	ReasonStaleRunningTooOld     Reason = "STALE_RUNNING_TOO_OLD"
)

// Thresholds configures the staleness windows Decide checks a RUNNING
// candidate against.
type Thresholds struct {
	// HeartbeatWindow is how long a RUNNING job's updatedAt may lag behind
	// now before it's considered abandoned.
	HeartbeatWindow time.Duration
	// MaxAge is the absolute ceiling on a RUNNING job's age regardless of
	// heartbeat freshness.
	MaxAge time.Duration
}

// DefaultThresholds matches spec.md §4.2's suggested constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HeartbeatWindow: 45 * time.Second,
		MaxAge:          5 * time.Minute,
	}
}

// Decision is Decide's verdict: Reuse the candidate job, or start a new one.
type Decision struct {
	Reuse  bool
	Reason Reason
	Job    *models.SearchJob
}

// Decide is the pure dedup function: (candidate, now) -> Decision. It never
// performs I/O and never mutates candidate; candidate may be nil to mean
// "no prior job found".
func Decide(candidate *models.SearchJob, now time.Time, th Thresholds) Decision {
	if candidate == nil {
		return Decision{Reuse: false, Reason: ReasonNoCandidate}
	}

	switch candidate.Status {
	case models.StatusDoneSuccess:
		return Decision{Reuse: true, Reason: ReasonCachedResultAvailable, Job: candidate}
	case models.StatusDoneClarify:
		return Decision{Reuse: true, Reason: ReasonStatusClarify, Job: candidate}
	case models.StatusDoneStopped:
		return Decision{Reuse: true, Reason: ReasonStatusStopped, Job: candidate}
	case models.StatusPending:
		return Decision{Reuse: true, Reason: ReasonStatusPending, Job: candidate}
	case models.StatusDoneFailed:
		return Decision{Reuse: false, Reason: ReasonPreviousJobFailed}
	case models.StatusRunning:
		return decideRunning(candidate, now, th)
	default:
		return Decision{Reuse: false, Reason: ReasonNoCandidate}
	}
}

func decideRunning(candidate *models.SearchJob, now time.Time, th Thresholds) Decision {
	if now.Sub(candidate.CreatedAt) > th.MaxAge {
		return Decision{Reuse: false, Reason: ReasonStaleRunningTooOld}
	}
	if now.Sub(candidate.UpdatedAt) > th.HeartbeatWindow {
		return Decision{Reuse: false, Reason: ReasonStaleRunningNoHeartbeat}
	}
	return Decision{Reuse: true, Reason: ReasonRunningFresh, Job: candidate}
}
