package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/placefinder/search-api/internal/authz"
	"github.com/placefinder/search-api/internal/models"
)

// JobReader is the read-only slice of the job store the assistant stream
// orchestrator needs.
type JobReader interface {
	Get(ctx context.Context, requestID string) (*models.SearchJob, error)
}

// OrchestratorConfig tunes the assistant stream's polling behavior.
type OrchestratorConfig struct {
	PollInterval      time.Duration
	Timeout           time.Duration
	HeartbeatInterval time.Duration
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		PollInterval:      150 * time.Millisecond,
		Timeout:           30 * time.Second,
		HeartbeatInterval: 15 * time.Second,
	}
}

// AssistantStreamHandler serves GET /stream/assistant/:requestId (spec.md
// §4.6/§6). It authorizes the caller against the target job, emits a meta
// frame, and then either synthesizes a terminal message immediately or
// polls the job store until the job reaches a terminal status or the
// stream's own timeout elapses.
func AssistantStreamHandler(jobs JobReader, cfg OrchestratorConfig, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := chi.URLParam(r, "requestId")
		sessionID, _ := authz.SessionIDFromContext(r.Context())

		job, err := jobs.Get(r.Context(), requestID)
		if err != nil {
			http.Error(w, `{"error":"failed to load job"}`, http.StatusInternalServerError)
			return
		}
		decision := authz.Decide(job, sessionID)
		if !decision.Allowed {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, decision.Reason), decision.Status)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, `{"error":"streaming not supported"}`, http.StatusInternalServerError)
			return
		}

		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		sendSSEFrame(w, flusher, FrameMeta, map[string]any{"requestId": requestID, "status": string(job.Status)})

		if job.Status.IsTerminal() {
			emitTerminal(w, flusher, job)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.Timeout)
		defer cancel()

		pollTicker := time.NewTicker(cfg.PollInterval)
		defer pollTicker.Stop()
		heartbeatTicker := time.NewTicker(cfg.HeartbeatInterval)
		defer heartbeatTicker.Stop()

		narrated := false
		for {
			select {
			case <-ctx.Done():
				if !narrated {
					sendSSEFrame(w, flusher, FrameNarration, map[string]any{"text": "still searching..."})
				}
				sendSSEFrame(w, flusher, FrameDone, map[string]any{"requestId": requestID, "status": "TIMEOUT"})
				return
			case <-heartbeatTicker.C:
				sendSSEComment(w, flusher)
			case <-pollTicker.C:
				current, err := jobs.Get(ctx, requestID)
				if err != nil {
					logger.Warn("assistant stream: poll failed", "error", err, "requestId", requestID)
					continue
				}
				if current == nil {
					continue
				}
				if !narrated {
					sendSSEFrame(w, flusher, FrameNarration, map[string]any{"text": "searching for places..."})
					narrated = true
				}
				if current.Status.IsTerminal() {
					emitTerminal(w, flusher, current)
					return
				}
			}
		}
	}
}

func emitTerminal(w http.ResponseWriter, flusher http.Flusher, job *models.SearchJob) {
	switch job.Status {
	case models.StatusDoneSuccess:
		sendSSEFrame(w, flusher, FrameMessage, map[string]any{"result": job.Result})
	case models.StatusDoneClarify:
		var assist models.Assist
		if job.Result != nil {
			assist = job.Result.Assist
		}
		sendSSEFrame(w, flusher, FrameMessage, map[string]any{"assist": assist})
	case models.StatusDoneStopped:
		sendSSEFrame(w, flusher, FrameMessage, map[string]any{"message": "I can't help with that request."})
	case models.StatusDoneFailed:
		var code, message string
		if job.Error != nil {
			code, message = job.Error.Code, job.Error.Message
		}
		sendSSEFrame(w, flusher, FrameError, map[string]any{"code": code, "message": message})
	}
	sendSSEFrame(w, flusher, FrameDone, map[string]any{"requestId": job.RequestID, "status": string(job.Status)})
}

func sendSSEFrame(w http.ResponseWriter, flusher http.Flusher, frameType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", frameType)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func sendSSEComment(w http.ResponseWriter, flusher http.Flusher) {
	_, _ = fmt.Fprint(w, ": heartbeat\n\n")
	flusher.Flush()
}
