// Package httpapi wires the Job Store, Dedup Decider, Pipeline Runner,
// Authorization, Event Publisher, Photo Proxy, and Webhook/Debug-capture
// packages into the HTTP surface spec.md §6 names.
package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/placefinder/search-api/internal/dedup"
	"github.com/placefinder/search-api/internal/models"
)

// JobRepository is the subset of jobstore.Store the controller needs.
type JobRepository interface {
	Create(ctx context.Context, requestID, ownerSessionID, idempotencyKey string, query models.Query, webhookURL string, captureDebug bool) (*models.SearchJob, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.SearchJob, error)
	Get(ctx context.Context, requestID string) (*models.SearchJob, error)
}

// PipelineRunner spawns the stage chain for a freshly created job. The
// controller invokes it in its own goroutine so Submit returns immediately.
type PipelineRunner interface {
	Run(ctx context.Context, job *models.SearchJob)
}

// SearchController implements the data flow from spec.md §2: dedup check,
// job creation, Pipeline Runner dispatch, and the authorized result read.
type SearchController struct {
	jobs            JobRepository
	runner          PipelineRunner
	thresholds      dedup.Thresholds
	resultPath      string // e.g. "/api/v1/search" — ResultURL is resultPath+"/"+requestID+"/result"
	pipelineVersion string
	logger          *slog.Logger
}

// NewSearchController builds a SearchController. pipelineVersion should be
// the same value as the Pipeline Runner's own pipeline.Config.PipelineVersion
// — it participates in the idempotency fingerprint (spec.md §3) so a
// pipeline version bump never collides an old job with a new one.
func NewSearchController(jobs JobRepository, runner PipelineRunner, thresholds dedup.Thresholds, resultPath, pipelineVersion string, logger *slog.Logger) *SearchController {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchController{jobs: jobs, runner: runner, thresholds: thresholds, resultPath: resultPath, pipelineVersion: pipelineVersion, logger: logger.With("component", "httpapi.controller")}
}

// SubmitOutcome tells the handler whether a brand new Pipeline Runner was
// spawned for this call, or an existing job was reused by the Dedup Decider.
type SubmitOutcome struct {
	Job    *models.SearchJob
	Reused bool
	Reason dedup.Reason
}

// Submit runs the async data flow: findByIdempotencyKey -> decide -> reuse
// or create+spawn. It never blocks on the pipeline itself. webhookURL and
// captureDebug are spec.md §3.4's optional submission extras; reused jobs
// keep whatever values they were originally created with.
func (c *SearchController) Submit(ctx context.Context, sessionID string, query models.Query, webhookURL string, captureDebug bool) (SubmitOutcome, error) {
	key := idempotencyFingerprint(sessionID, query, c.pipelineVersion)

	candidate, err := c.jobs.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("httpapi: dedup lookup: %w", err)
	}

	decision := dedup.Decide(candidate, time.Now(), c.thresholds)
	if decision.Reuse {
		c.logger.Info("dedup: reusing existing job", "requestId", decision.Job.RequestID, "reason", decision.Reason)
		return SubmitOutcome{Job: decision.Job, Reused: true, Reason: decision.Reason}, nil
	}

	requestID := ulid.Make().String()
	job, err := c.jobs.Create(ctx, requestID, sessionID, key, query, webhookURL, captureDebug)
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("httpapi: create job: %w", err)
	}

	// The pipeline runs detached from the request's own context: it must
	// outlive this handler call, bounded only by its own job deadline.
	go c.runner.Run(context.Background(), job)

	return SubmitOutcome{Job: job, Reused: false, Reason: decision.Reason}, nil
}

// ResultURL builds the poll/result URL a client is told to follow.
func (c *SearchController) ResultURL(requestID string) string {
	return c.resultPath + "/" + requestID + "/result"
}

// GetJob is a read-only passthrough used by the result handler and the
// assistant stream orchestrator's authorization check.
func (c *SearchController) GetJob(ctx context.Context, requestID string) (*models.SearchJob, error) {
	return c.jobs.Get(ctx, requestID)
}

// idempotencyFingerprint hashes the request shape spec.md §3 defines as
// "the same search": the bound session, the normalized query text, locale,
// rounded coordinates, the explicit filter set, and the pipeline version —
// not the assistant's reply language, not any other server-derived field.
// Region is deliberately absent: it's resolved by the Route Mapping stage
// from the query text itself, so it doesn't exist yet at submission time —
// nothing upstream of the pipeline can supply it. Grounded on
// RouteMapping.Fingerprint's sorted-field sha256 idiom
// (internal/models/fingerprint.go).
func idempotencyFingerprint(sessionID string, q models.Query, pipelineVersion string) string {
	fields := []string{
		"session=" + sessionID,
		"q=" + strings.ToLower(strings.TrimSpace(q.Original)),
		"locale=" + strings.ToLower(q.Language),
		"openNow=" + fmt.Sprintf("%v", q.OpenNowOnly),
		"minRating=" + fmt.Sprintf("%.2f", q.MinRating),
		"pipelineVer=" + pipelineVersion,
	}
	if q.UserLocation != nil {
		fields = append(fields, fmt.Sprintf("loc=%.4f,%.4f", q.UserLocation.Lat, q.UserLocation.Lng))
	}
	sort.Strings(fields)
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}
