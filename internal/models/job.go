// Package models holds the data types shared across the search pipeline:
// the Search Job record, cache entries, place results, and the pipeline
// context threaded through each stage.
package models

import "time"

// JobStatus is the lifecycle state of a Search Job. Transitions follow a
// strict DAG: PENDING -> RUNNING -> one of the DONE_* terminal states.
// Once in a DONE_* state a job never changes status again.
type JobStatus string

const (
	StatusPending     JobStatus = "PENDING"
	StatusRunning     JobStatus = "RUNNING"
	StatusDoneSuccess JobStatus = "DONE_SUCCESS"
	StatusDoneClarify JobStatus = "DONE_CLARIFY"
	StatusDoneStopped JobStatus = "DONE_STOPPED"
	StatusDoneFailed  JobStatus = "DONE_FAILED"
)

// IsTerminal reports whether status is one of the DONE_* states.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusDoneSuccess, StatusDoneClarify, StatusDoneStopped, StatusDoneFailed:
		return true
	default:
		return false
	}
}

// JobError carries the code/message pair set only when Status == DONE_FAILED.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Query is the original user text plus the language detected for it, and
// whatever explicit filters the client supplied alongside it.
type Query struct {
	Original string `json:"original"`
	Language string `json:"language"`

	// UserLocation is the caller's own geolocation, when shared explicitly.
	// It is distinct from a city hint the Intent Routing stage infers from
	// text: this is real anchor data the Missing-Anchor Guard accepts
	// without needing geocoding.
	UserLocation *Coordinates `json:"userLocation,omitempty"`
	OpenNowOnly  bool         `json:"openNowOnly,omitempty"`
	MinRating    float64      `json:"minRating,omitempty"`
}

// SearchJob is the unit of work tracked from submission through to a
// terminal result. ownerSessionId is bound once at creation and never
// mutated; result and error are mutually exclusive.
type SearchJob struct {
	RequestID      string         `json:"requestId"`
	OwnerSessionID string         `json:"ownerSessionId"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Status         JobStatus      `json:"status"`
	Progress       int            `json:"progress"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	Query          Query          `json:"query"`
	Result         *SearchResult  `json:"result,omitempty"`
	Error          *JobError      `json:"error,omitempty"`
	WebhookURL     string         `json:"webhookUrl,omitempty"`
	CaptureDebug   bool           `json:"captureDebug,omitempty"`
}

// Touch refreshes UpdatedAt to now. Every mutation on a job must call this.
func (j *SearchJob) Touch(now time.Time) {
	j.UpdatedAt = now
}
