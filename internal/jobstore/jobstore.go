// Package jobstore is a thin record layer over the abstract kv.Store: Search
// Jobs are marshaled to JSON under "job:{requestId}", with a secondary
// idempotency index at "idemp:{idempotencyKey}" pointing back to the
// request id. Both carry a TTL so stale jobs age out without a reaper.
//
// Every mutation here can fail (the kv layer can be down); per spec.md
// §4.1 that failure is meant to be non-fatal to the search itself — callers
// (the Pipeline Runner) should log the error and continue rather than abort
// the job on a journal write failure.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/placefinder/search-api/internal/kv"
	"github.com/placefinder/search-api/internal/models"
)

// ErrAlreadyExists is returned by Create when requestId is already taken.
var ErrAlreadyExists = errors.New("jobstore: job already exists")

const (
	jobKeyPrefix   = "job:"
	idempKeyPrefix = "idemp:"
)

// Store persists Search Job records over an abstract kv.Store.
type Store struct {
	kv  kv.Store
	ttl time.Duration
}

// New builds a Store. ttl bounds how long both the job record and its
// idempotency index entry survive; spec.md §4.1 suggests 24h.
func New(store kv.Store, ttl time.Duration) *Store {
	return &Store{kv: store, ttl: ttl}
}

// Create writes a new PENDING job. Fails with ErrAlreadyExists if requestId
// is already taken. webhookURL and captureDebug are the optional extras
// spec.md §3.4 allows on submission; either may be zero-valued.
func (s *Store) Create(ctx context.Context, requestID, ownerSessionID, idempotencyKey string, query models.Query, webhookURL string, captureDebug bool) (*models.SearchJob, error) {
	if existing, err := s.Get(ctx, requestID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrAlreadyExists
	}

	now := time.Now()
	job := &models.SearchJob{
		RequestID:      requestID,
		OwnerSessionID: ownerSessionID,
		IdempotencyKey: idempotencyKey,
		Status:         models.StatusPending,
		Progress:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
		Query:          query,
		WebhookURL:     webhookURL,
		CaptureDebug:   captureDebug,
	}

	if err := s.put(ctx, job); err != nil {
		return nil, err
	}
	if err := s.kv.Set(ctx, idempKeyPrefix+idempotencyKey, []byte(requestID), s.ttl); err != nil {
		return nil, fmt.Errorf("write idempotency index: %w", err)
	}
	return job, nil
}

// FindByIdempotencyKey is the secondary-index lookup used by the dedup
// decider. It never modifies state. Returns (nil, nil) on a miss.
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*models.SearchJob, error) {
	requestIDBytes, ok, err := s.kv.Get(ctx, idempKeyPrefix+key)
	if err != nil {
		return nil, fmt.Errorf("read idempotency index: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return s.Get(ctx, string(requestIDBytes))
}

// Get returns the job, or (nil, nil) if it doesn't exist.
func (s *Store) Get(ctx context.Context, requestID string) (*models.SearchJob, error) {
	raw, ok, err := s.kv.Get(ctx, jobKeyPrefix+requestID)
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var job models.SearchJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// SetStatus transitions status/progress and refreshes updatedAt. A
// transition to any DONE_* status is meant to be final — callers should not
// call SetStatus again afterward (the Runner is the sole writer per job).
func (s *Store) SetStatus(ctx context.Context, requestID string, status models.JobStatus, progress int) error {
	job, err := s.mustGet(ctx, requestID)
	if err != nil {
		return err
	}
	job.Status = status
	job.Progress = progress
	job.Touch(time.Now())
	return s.put(ctx, job)
}

// UpdateHeartbeat refreshes updatedAt without changing status or progress.
func (s *Store) UpdateHeartbeat(ctx context.Context, requestID string) error {
	job, err := s.mustGet(ctx, requestID)
	if err != nil {
		return err
	}
	job.Touch(time.Now())
	return s.put(ctx, job)
}

// SetResult stores the terminal result payload. Callers are responsible for
// also calling SetStatus with a terminal status — SetResult itself doesn't
// enforce status transitions.
func (s *Store) SetResult(ctx context.Context, requestID string, result *models.SearchResult) error {
	job, err := s.mustGet(ctx, requestID)
	if err != nil {
		return err
	}
	job.Result = result
	job.Error = nil
	job.Touch(time.Now())
	return s.put(ctx, job)
}

// SetError stores the terminal error payload.
func (s *Store) SetError(ctx context.Context, requestID, code, message string) error {
	job, err := s.mustGet(ctx, requestID)
	if err != nil {
		return err
	}
	job.Error = &models.JobError{Code: code, Message: message}
	job.Result = nil
	job.Touch(time.Now())
	return s.put(ctx, job)
}

// Delete removes the job record. The idempotency index entry is left to
// expire by TTL rather than deleted eagerly, matching the store's
// age-out-don't-reap design.
func (s *Store) Delete(ctx context.Context, requestID string) error {
	return s.kv.Delete(ctx, jobKeyPrefix+requestID)
}

func (s *Store) mustGet(ctx context.Context, requestID string) (*models.SearchJob, error) {
	job, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("jobstore: job %s not found", requestID)
	}
	return job, nil
}

func (s *Store) put(ctx context.Context, job *models.SearchJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := s.kv.Set(ctx, jobKeyPrefix+job.RequestID, raw, s.ttl); err != nil {
		return fmt.Errorf("write job: %w", err)
	}
	return nil
}
