// Package pipeline executes the eight-stage chain that turns a Search
// Job's query into a terminal result: Classification, Intent Routing,
// Route Mapping, the Missing-Anchor Guard, the Provider Call, Post-Filter,
// Ranking, and Response Build & Validate.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/placefinder/search-api/internal/llm"
	"github.com/placefinder/search-api/internal/models"
	"github.com/placefinder/search-api/internal/provider"
)

// EventPublisher delivers fire-and-forget progress/terminal frames. It is
// satisfied by internal/events' Hub; defined here so the Runner doesn't
// depend on the transport layer.
type EventPublisher interface {
	Publish(requestID, frameType string, payload map[string]any)
}

// ProviderGateway is the subset of provider.Gateway the Runner calls.
type ProviderGateway interface {
	TextSearch(ctx context.Context, mapping models.RouteMapping) (provider.Result, error)
}

// WebhookSender delivers a fire-and-forget terminal-status notification.
// Satisfied by internal/webhook's Sender.
type WebhookSender interface {
	Deliver(webhookURL string, job *models.SearchJob)
}

// DebugArchiver persists a raw-response/timings capture for one job.
// Satisfied by internal/debugcapture's Store.
type DebugArchiver interface {
	IsEnabled() bool
	Put(ctx context.Context, archive DebugArchive) error
}

// DebugArchive mirrors internal/debugcapture's Archive shape; duplicated
// here so the Runner doesn't import the debugcapture package directly.
type DebugArchive struct {
	RequestID      string
	ProviderRaw    []byte
	StageTimingsMs map[string]int64
}

// JobWriter is the subset of jobstore.Store the Runner mutates. Defined
// here (rather than depending on jobstore directly) so Runner tests can
// substitute a fake without a real kv store.
type JobWriter interface {
	SetStatus(ctx context.Context, requestID string, status models.JobStatus, progress int) error
	UpdateHeartbeat(ctx context.Context, requestID string) error
	SetResult(ctx context.Context, requestID string, result *models.SearchResult) error
	SetError(ctx context.Context, requestID string, code, message string) error
}

// Runner executes the stage chain for one Job at a time. A Runner is
// stateless between calls to Run and is safe to share across concurrently
// executing jobs.
type Runner struct {
	jobs      JobWriter
	gateway   ProviderGateway
	publisher EventPublisher
	model     llm.LanguageModel
	cfg       Config
	logger    *slog.Logger

	// webhook and debug are both optional: a nil webhook skips delivery
	// entirely, and a debug whose IsEnabled() is false is a no-op Put.
	webhook WebhookSender
	debug   DebugArchiver
}

// NewRunner builds a Runner.
func NewRunner(jobs JobWriter, gateway ProviderGateway, publisher EventPublisher, model llm.LanguageModel, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		jobs:      jobs,
		gateway:   gateway,
		publisher: publisher,
		model:     model,
		cfg:       cfg,
		logger:    logger.With("component", "pipeline.runner"),
	}
}

// WithWebhook attaches a webhook sender; the Runner delivers one
// fire-and-forget notification per job on terminal status if the job
// carries a WebhookURL.
func (r *Runner) WithWebhook(sender WebhookSender) *Runner {
	r.webhook = sender
	return r
}

// WithDebugCapture attaches a debug archiver; the Runner archives the
// provider response and stage timings for jobs submitted with
// captureDebug set.
func (r *Runner) WithDebugCapture(archiver DebugArchiver) *Runner {
	r.debug = archiver
	return r
}

// Run executes the full chain for job. It is meant to be invoked as its
// own goroutine by the Search Controller immediately after job creation;
// from this call onward the Runner is the job's sole writer.
func (r *Runner) Run(parent context.Context, job *models.SearchJob) {
	ctx, cancel := context.WithTimeout(parent, r.cfg.JobDeadline)
	defer cancel()

	pctx := &models.PipelineContext{
		RequestID:     job.RequestID,
		SessionID:     job.OwnerSessionID,
		StartTime:     time.Now(),
		AssistantLang: job.Query.Language,
		Ctx:           ctx,
		LanguageModel: r.model,
		Timings:       models.NewStageTimings(),
	}

	r.setStatus(ctx, job.RequestID, models.StatusRunning, 5)
	r.publish(pctx, "progress", map[string]any{"stage": "accepted"})

	// The heartbeat is a structured child task bound to the Runner's own
	// lifetime: g.Go starts it, and g.Wait() below guarantees it has fully
	// exited (not just been signaled) before finalize runs.
	g, gctx := errgroup.WithContext(ctx)
	heartbeatCtx, stopHeartbeat := context.WithCancel(gctx)
	g.Go(func() error {
		r.runHeartbeat(heartbeatCtx, job.RequestID)
		return nil
	})

	outcome := r.execute(pctx, job)
	stopHeartbeat()
	_ = g.Wait()

	// The terminal status write must land even if the pipeline's own
	// deadline just fired — a job stuck in RUNNING forever is worse than
	// one more write after cancellation — so it runs on an independent,
	// short-lived context rather than the (possibly already-expired) one
	// the stages ran under.
	finalizeCtx, finalizeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer finalizeCancel()
	r.finalize(finalizeCtx, pctx, job.RequestID, outcome)

	if r.webhook != nil && job.WebhookURL != "" {
		job.Status = outcome.status
		job.Result = outcome.result
		if outcome.errCode != "" {
			job.Error = &models.JobError{Code: outcome.errCode, Message: outcome.errMsg}
		}
		r.webhook.Deliver(job.WebhookURL, job)
	}
	if r.debug != nil && r.debug.IsEnabled() && job.CaptureDebug {
		r.archiveDebug(finalizeCtx, job.RequestID, pctx, outcome)
	}
}

func (r *Runner) archiveDebug(ctx context.Context, requestID string, pctx *models.PipelineContext, out outcome) {
	timingsMs := make(map[string]int64)
	for _, st := range pctx.Timings.Snapshot() {
		timingsMs[st.Stage] = st.Duration.Milliseconds()
	}
	archive := DebugArchive{RequestID: requestID, ProviderRaw: out.providerRaw, StageTimingsMs: timingsMs}
	if err := r.debug.Put(ctx, archive); err != nil {
		r.logger.Warn("debug capture archival failed", "requestId", requestID, "error", err)
	}
}

func (r *Runner) runHeartbeat(ctx context.Context, requestID string) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.jobs.UpdateHeartbeat(ctx, requestID); err != nil {
				r.logger.Warn("heartbeat write failed", "requestId", requestID, "error", err)
			}
		}
	}
}

// outcome is the execute()'s verdict, translated into a job mutation and a
// terminal publish by finalize.
type outcome struct {
	status      models.JobStatus
	result      *models.SearchResult
	errCode     string
	errMsg      string
	providerRaw []byte // json-encoded provider.Result, present only past the provider_call stage
}

func (r *Runner) execute(pctx *models.PipelineContext, job *models.SearchJob) outcome {
	if pctx.ShouldAbort() {
		return timeoutOutcome()
	}

	classification := stageTimer(pctx, "classification", func() models.ClassificationOutput {
		return r.classify(pctx, job.Query)
	})

	switch classification.Route {
	case models.RouteStop:
		return outcome{status: models.StatusDoneStopped, result: buildStoppedResponse(job, pctx)}
	case models.RouteClarify:
		assist := models.Assist{Type: models.AssistClarify, Message: "Could you clarify what you're looking for?"}
		return outcome{status: models.StatusDoneClarify, result: buildClarifyResponse(job, assist, pctx)}
	}

	if pctx.ShouldAbort() {
		return timeoutOutcome()
	}

	intent := stageTimer(pctx, "intent_routing", func() models.IntentOutput {
		return r.routeIntent(pctx, classification, job.Query)
	})

	mapping := stageTimer(pctx, "route_mapping", func() models.RouteMapping {
		return r.mapRoute(classification, intent, job.Query)
	})

	if blocked, assist := r.missingAnchorGuard(mapping, intent); blocked {
		return outcome{status: models.StatusDoneClarify, result: buildClarifyResponse(job, assist, pctx)}
	}

	if pctx.ShouldAbort() {
		return timeoutOutcome()
	}

	providerResult, err := stageTimerErr(pctx, "provider_call", func() (provider.Result, error) {
		return r.gateway.TextSearch(pctx.Ctx, mapping)
	})
	if err != nil {
		return failedOutcome(err)
	}

	providerRaw, _ := json.Marshal(providerResult)

	if pctx.ShouldAbort() {
		return timeoutOutcomeWithRaw(providerRaw)
	}

	filtered := stageTimer(pctx, "post_filter", func() []models.PlaceResult {
		return r.postFilter(providerResult.Results, mapping)
	})

	ranked := stageTimer(pctx, "ranking", func() []models.PlaceResult {
		return r.rank(pctx, filtered, mapping)
	})

	response := stageTimer(pctx, "response_build", func() *models.SearchResult {
		return r.buildResponse(job, mapping, classification, ranked, providerResult.ServedFrom, pctx)
	})

	return outcome{status: models.StatusDoneSuccess, result: response, providerRaw: providerRaw}
}

func timeoutOutcome() outcome {
	return outcome{status: models.StatusDoneFailed, errCode: "TIMEOUT", errMsg: "pipeline deadline exceeded"}
}

func timeoutOutcomeWithRaw(raw []byte) outcome {
	o := timeoutOutcome()
	o.providerRaw = raw
	return o
}

func failedOutcome(err error) outcome {
	var ce *provider.CallError
	code := "SEARCH_FAILED"
	if errors.As(err, &ce) {
		code = string(ce.Kind)
	}
	return outcome{status: models.StatusDoneFailed, errCode: code, errMsg: err.Error()}
}

func (r *Runner) finalize(ctx context.Context, pctx *models.PipelineContext, requestID string, out outcome) {
	switch out.status {
	case models.StatusDoneFailed:
		if err := r.jobs.SetError(ctx, requestID, out.errCode, out.errMsg); err != nil {
			r.logger.Error("failed to persist terminal error", "requestId", requestID, "error", err)
		}
		r.publish(pctx, "error", map[string]any{"code": out.errCode, "message": out.errMsg})
	default:
		if err := r.jobs.SetResult(ctx, requestID, out.result); err != nil {
			r.logger.Error("failed to persist terminal result", "requestId", requestID, "error", err)
		}
		r.publish(pctx, terminalFrameFor(out.status), map[string]any{"result": out.result})
	}

	if err := r.jobs.SetStatus(ctx, requestID, out.status, 100); err != nil {
		r.logger.Error("failed to persist terminal status", "requestId", requestID, "error", err)
	}
}

func terminalFrameFor(status models.JobStatus) string {
	switch status {
	case models.StatusDoneSuccess:
		return "ready"
	case models.StatusDoneClarify:
		return "clarify"
	case models.StatusDoneStopped:
		return "stopped"
	default:
		return "error"
	}
}

func (r *Runner) setStatus(ctx context.Context, requestID string, status models.JobStatus, progress int) {
	if err := r.jobs.SetStatus(ctx, requestID, status, progress); err != nil {
		r.logger.Error("failed to persist status transition", "requestId", requestID, "status", status, "error", err)
	}
}

// publish is the guarded fire-and-forget emit every stage side-effect
// goes through: it never runs past an aborted pipeline context, and a
// publish failure only ever logs — it can never affect the job's terminal
// status.
func (r *Runner) publish(pctx *models.PipelineContext, frameType string, payload map[string]any) {
	if pctx.ShouldAbort() || r.publisher == nil {
		return
	}
	r.publisher.Publish(pctx.RequestID, frameType, payload)
}

func stageTimerErr[T any](pctx *models.PipelineContext, name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	pctx.Timings.Record(name, time.Since(start))
	return out, err
}
