// Package webhook delivers an optional, fire-and-forget completion
// notification when a Search Job reaches a terminal status (SPEC_FULL.md
// §1.3 — a supplemented feature, not in spec.md's distilled scope). A
// single attempt is made; delivery never affects the job's own terminal
// status, and a failure is only ever logged.
package webhook

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/placefinder/search-api/internal/models"
)

// Payload is the body POSTed to the job's webhook URL on completion.
type Payload struct {
	Event     string              `json:"event"`
	Timestamp time.Time           `json:"timestamp"`
	RequestID string              `json:"requestId"`
	Status    models.JobStatus    `json:"status"`
	Result    *models.SearchResult `json:"result,omitempty"`
	Error     *models.JobError    `json:"error,omitempty"`
}

// Sender posts the completion payload, signed per the standard-webhooks
// scheme svix-webhooks implements (svix-id / svix-timestamp /
// svix-signature headers), so receivers can verify delivery came from this
// service using the same shared secret.
type Sender struct {
	client *http.Client
	secret string
	logger *slog.Logger
}

func New(secret string, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		client: &http.Client{Timeout: 10 * time.Second},
		secret: secret,
		logger: logger,
	}
}

// Deliver fires a single attempt at webhookURL in its own goroutine and
// returns immediately. Per spec, this never retries and never alters the
// job's own terminal status regardless of outcome.
func (s *Sender) Deliver(webhookURL string, job *models.SearchJob) {
	if webhookURL == "" || s.secret == "" {
		return
	}
	payload := Payload{
		Event:     "search.completed",
		Timestamp: time.Now().UTC(),
		RequestID: job.RequestID,
		Status:    job.Status,
		Result:    job.Result,
		Error:     job.Error,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.deliverOnce(ctx, webhookURL, payload); err != nil {
			s.logger.Warn("webhook: delivery failed", "error", err, "requestId", job.RequestID)
		}
	}()
}

func (s *Sender) deliverOnce(ctx context.Context, url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msgID, err := randomMessageID()
	if err != nil {
		return err
	}
	now := time.Now()

	wh, err := svix.NewWebhook(s.secret)
	if err != nil {
		return err
	}
	signature, err := wh.Sign(msgID, now, body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", timestampHeader(now))
	req.Header.Set("svix-signature", signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func timestampHeader(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func randomMessageID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "msg_" + hex.EncodeToString(b), nil
}
