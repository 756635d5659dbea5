package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/placefinder/search-api/internal/audit"
	"github.com/placefinder/search-api/internal/authz"
	"github.com/placefinder/search-api/internal/events"
	"github.com/placefinder/search-api/internal/models"
)

// Handler groups the huma operations this project registers under
// /api/v1 (and, legacy, under /api). It holds no state of its own beyond
// what it needs to translate an HTTP call into a SearchController call and
// an audit record.
type Handler struct {
	search  *SearchController
	audit   *audit.Logger
	version string
}

// NewHandler builds a Handler. version is the build version reported by
// GET /healthz; async responses carry events.ContractsVersion instead.
func NewHandler(search *SearchController, auditLogger *audit.Logger, version string) *Handler {
	return &Handler{search: search, audit: auditLogger, version: version}
}

// --- POST /search ---

// CreateSearchInput is POST /search's request shape (spec.md §6).
type CreateSearchInput struct {
	Mode      string `query:"mode" default:"async" enum:"async,sync" doc:"async (default, 202+poll) or sync (blocks for a full SearchResponse)"`
	SessionID string `header:"X-Session-Id" doc:"Caller's session id; required for async mode"`
	Body      struct {
		Query        string               `json:"query" minLength:"1" maxLength:"512" doc:"Natural-language search text"`
		OpenNowOnly  bool                 `json:"openNowOnly,omitempty"`
		MinRating    float64              `json:"minRating,omitempty" minimum:"0" maximum:"5"`
		UserLocation *SearchFiltersCoords `json:"userLocation,omitempty"`
		WebhookURL   string               `json:"webhookUrl,omitempty" format:"uri" doc:"Optional: POSTed the job's terminal state once"`
		CaptureDebug bool                 `json:"captureDebug,omitempty" doc:"Optional: archive the raw provider response and stage timings for this job"`
	}
}

// SearchFiltersCoords is the userLocation sub-object.
type SearchFiltersCoords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AsyncAcceptedBody is the 202 shape for POST /search's async branch.
type AsyncAcceptedBody struct {
	RequestID        string `json:"requestId"`
	ResultURL        string `json:"resultUrl"`
	ContractsVersion string `json:"contractsVersion"`
}

// CreateSearchOutput wraps the status/body pair. Body is set to
// models.SearchResult directly on the sync-200 branch so the client sees
// the stable SearchResponse shape from spec.md §6 rather than the async
// envelope; huma serializes whichever concrete value CreateSearch returns.
type CreateSearchOutput struct {
	Status int `header:"Status-Code"`
	Body   any `json:"body"`
}

// asyncAccepted builds the 202 body: {requestId, resultUrl, contractsVersion}.
func (h *Handler) asyncAccepted(requestID string) *CreateSearchOutput {
	return &CreateSearchOutput{
		Status: http.StatusAccepted,
		Body: AsyncAcceptedBody{
			RequestID:        requestID,
			ResultURL:        h.search.ResultURL(requestID),
			ContractsVersion: events.ContractsVersion,
		},
	}
}

// CreateSearch handles POST /search?mode=async|sync.
func (h *Handler) CreateSearch(ctx context.Context, input *CreateSearchInput) (*CreateSearchOutput, error) {
	if input.Mode == "" {
		input.Mode = "async"
	}
	if input.Mode == "async" && input.SessionID == "" {
		return nil, huma.Error401Unauthorized("X-Session-Id header is required for async mode")
	}

	sessionID := input.SessionID
	if sessionID == "" {
		// Sync mode may be called with no bound session at all; give it an
		// ephemeral one so the job still has an owner for its lifetime.
		sessionID = "anon-" + randomToken()
	}

	query := models.Query{
		Original:    input.Body.Query,
		OpenNowOnly: input.Body.OpenNowOnly,
		MinRating:   input.Body.MinRating,
	}
	if input.Body.UserLocation != nil {
		query.UserLocation = &models.Coordinates{Lat: input.Body.UserLocation.Lat, Lng: input.Body.UserLocation.Lng}
	}

	outcome, err := h.search.Submit(ctx, sessionID, query, input.Body.WebhookURL, input.Body.CaptureDebug)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to submit search: " + err.Error())
	}

	if input.Mode == "async" {
		return h.asyncAccepted(outcome.Job.RequestID), nil
	}

	// Sync fallback: poll the job store every 200ms until the job is
	// terminal or 25 seconds have passed.
	job := outcome.Job
	deadline := time.Now().Add(25 * time.Second)
	for !job.Status.IsTerminal() && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return h.asyncAccepted(job.RequestID), nil
		case <-time.After(200 * time.Millisecond):
		}
		job, err = h.search.GetJob(ctx, job.RequestID)
		if err != nil || job == nil {
			return h.asyncAccepted(outcome.Job.RequestID), nil
		}
	}

	if !job.Status.IsTerminal() {
		return h.asyncAccepted(job.RequestID), nil
	}
	if job.Result == nil {
		// DONE_FAILED carries no SearchResponse body; fall back to the
		// async envelope so the client still learns the requestId to poll.
		return h.asyncAccepted(job.RequestID), nil
	}
	return &CreateSearchOutput{Status: http.StatusOK, Body: job.Result}, nil
}

// --- GET /search/:requestId/result ---

// GetSearchResultInput is the result-poll endpoint's input.
type GetSearchResultInput struct {
	RequestID string `path:"requestId"`
	SessionID string `header:"X-Session-Id"`
}

// PendingResultBody is the 202 shape while a job is still RUNNING/PENDING.
type PendingResultBody struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// FailedResultBody is the 500 shape for a DONE_FAILED job.
type FailedResultBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"traceId"`
}

// GetSearchResultOutput wraps the status/body pair for the three possible
// response shapes spec.md §6 names for this operation.
type GetSearchResultOutput struct {
	Status int `header:"Status-Code"`
	Body   any `json:"body"`
}

// GetSearchResult handles GET /search/:requestId/result. Authorization
// follows the non-disclosure rule in authz.Decide: a missing job and a
// job owned by someone else are both 404, never 403.
func (h *Handler) GetSearchResult(ctx context.Context, input *GetSearchResultInput) (*GetSearchResultOutput, error) {
	job, err := h.search.GetJob(ctx, input.RequestID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load job: " + err.Error())
	}

	decision := authz.Decide(job, input.SessionID)
	h.recordDecision(ctx, input.RequestID, input.SessionID, decision)
	if !decision.Allowed {
		return nil, huma.NewError(decision.Status, decision.Reason)
	}

	switch job.Status {
	case models.StatusPending, models.StatusRunning:
		return &GetSearchResultOutput{
			Status: http.StatusAccepted,
			Body:   PendingResultBody{Status: string(job.Status), Progress: job.Progress},
		}, nil
	case models.StatusDoneFailed:
		code, message := "SEARCH_FAILED", "search failed"
		if job.Error != nil {
			code, message = job.Error.Code, job.Error.Message
		}
		return &GetSearchResultOutput{
			Status: http.StatusInternalServerError,
			Body:   FailedResultBody{Code: code, Message: message, TraceID: input.RequestID},
		}, nil
	default:
		// DONE_SUCCESS or DONE_CLARIFY: both carry a full SearchResponse
		// per spec.md §8 (clarify responses just have empty results/groups).
		return &GetSearchResultOutput{Status: http.StatusOK, Body: job.Result}, nil
	}
}

func (h *Handler) recordDecision(ctx context.Context, requestID, sessionID string, decision authz.Decision) {
	if h.audit == nil {
		return
	}
	outcome := audit.OutcomeAllowed
	switch decision.Reason {
	case "NOT_FOUND":
		outcome = audit.OutcomeNotFound
	case "UNAUTHORIZED":
		outcome = audit.OutcomeUnauthorized
	case "OWNERSHIP_DENIED":
		outcome = audit.OutcomeOwnershipDenied
	}
	h.audit.Record(ctx, audit.Entry{
		RequestID:     requestID,
		SessionIDHash: authz.HashSessionID(sessionID),
		Action:        "GET_RESULT",
		ResourceType:  "search_job",
		ResourceID:    requestID,
		Outcome:       outcome,
	})
}

// --- GET /healthz ---

// HealthzOutput is the unversioned plain health response (spec.md §6:
// "returns 200 ok").
type HealthzOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version,omitempty"`
	}
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(ctx context.Context, input *struct{}) (*HealthzOutput, error) {
	out := &HealthzOutput{}
	out.Body.Status = "ok"
	out.Body.Version = h.version
	return out, nil
}

func randomToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
