package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/placefinder/search-api/internal/kv"
	"github.com/placefinder/search-api/internal/models"
)

func newTestStore() *Store {
	return New(kv.NewLRU(100), time.Hour)
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	job, err := s.Create(ctx, "req-1", "session-1", "idemp-1", models.Query{Original: "pizza"}, "", false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if job.Status != models.StatusPending {
		t.Errorf("Status = %v, want PENDING", job.Status)
	}

	got, err := s.Get(ctx, "req-1")
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if got.OwnerSessionID != "session-1" {
		t.Errorf("OwnerSessionID = %q, want session-1", got.OwnerSessionID)
	}
}

func TestStore_CreateCarriesWebhookAndCaptureDebug(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	job, err := s.Create(ctx, "req-1", "session-1", "idemp-1", models.Query{}, "https://example.com/hook", true)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if job.WebhookURL != "https://example.com/hook" {
		t.Errorf("WebhookURL = %q, want https://example.com/hook", job.WebhookURL)
	}
	if !job.CaptureDebug {
		t.Error("expected CaptureDebug to be true")
	}

	got, err := s.Get(ctx, "req-1")
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if got.WebhookURL != "https://example.com/hook" || !got.CaptureDebug {
		t.Errorf("persisted job lost webhookUrl/captureDebug: %+v", got)
	}
}

func TestStore_CreateAlreadyExists(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	_, _ = s.Create(ctx, "req-1", "session-1", "idemp-1", models.Query{}, "", false)

	_, err := s.Create(ctx, "req-1", "session-2", "idemp-2", models.Query{}, "", false)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore()
	job, err := s.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job != nil {
		t.Error("expected nil for missing job")
	}
}

func TestStore_FindByIdempotencyKey(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	_, _ = s.Create(ctx, "req-1", "session-1", "idemp-key", models.Query{}, "", false)

	found, err := s.FindByIdempotencyKey(ctx, "idemp-key")
	if err != nil || found == nil {
		t.Fatalf("FindByIdempotencyKey() = %v, %v", found, err)
	}
	if found.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", found.RequestID)
	}

	miss, err := s.FindByIdempotencyKey(ctx, "nonexistent-key")
	if err != nil || miss != nil {
		t.Errorf("expected miss, got %v, %v", miss, err)
	}
}

func TestStore_SetStatusRefreshesUpdatedAt(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	job, _ := s.Create(ctx, "req-1", "session-1", "idemp-1", models.Query{}, "", false)

	time.Sleep(time.Millisecond)
	if err := s.SetStatus(ctx, "req-1", models.StatusRunning, 10); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	got, _ := s.Get(ctx, "req-1")
	if got.Status != models.StatusRunning || got.Progress != 10 {
		t.Errorf("got status=%v progress=%d, want RUNNING/10", got.Status, got.Progress)
	}
	if !got.UpdatedAt.After(job.CreatedAt) {
		t.Error("expected UpdatedAt to advance past CreatedAt")
	}
}

func TestStore_SetResultAndSetErrorAreMutuallyExclusive(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	_, _ = s.Create(ctx, "req-1", "session-1", "idemp-1", models.Query{}, "", false)

	_ = s.SetResult(ctx, "req-1", &models.SearchResult{RequestID: "req-1"})
	got, _ := s.Get(ctx, "req-1")
	if got.Result == nil || got.Error != nil {
		t.Error("expected result set and error nil")
	}

	_ = s.SetError(ctx, "req-1", "TIMEOUT", "deadline exceeded")
	got, _ = s.Get(ctx, "req-1")
	if got.Error == nil || got.Result != nil {
		t.Error("expected error set and result nil after SetError")
	}
}

func TestStore_UpdateHeartbeat(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	job, _ := s.Create(ctx, "req-1", "session-1", "idemp-1", models.Query{}, "", false)
	original := job.UpdatedAt

	time.Sleep(time.Millisecond)
	if err := s.UpdateHeartbeat(ctx, "req-1"); err != nil {
		t.Fatalf("UpdateHeartbeat() error = %v", err)
	}

	got, _ := s.Get(ctx, "req-1")
	if !got.UpdatedAt.After(original) {
		t.Error("expected heartbeat to advance UpdatedAt")
	}
	if got.Status != models.StatusPending {
		t.Error("heartbeat must not change status")
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	_, _ = s.Create(ctx, "req-1", "session-1", "idemp-1", models.Query{}, "", false)

	if err := s.Delete(ctx, "req-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ := s.Get(ctx, "req-1")
	if got != nil {
		t.Error("expected job to be gone after Delete")
	}
}

func TestStore_MutationOnMissingJobErrors(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	if err := s.SetStatus(ctx, "nonexistent", models.StatusRunning, 0); err == nil {
		t.Error("expected error mutating a nonexistent job")
	}
}
