package llm

import (
	"errors"
	"net/http"
	"testing"
)

func TestCallError_Error(t *testing.T) {
	ce := &CallError{Err: ErrRateLimited, Provider: "openai", Model: "gpt-4o-mini", Category: "rate_limit"}
	msg := ce.Error()
	if msg == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestCallError_Unwrap(t *testing.T) {
	ce := &CallError{Err: ErrInvalidAPIKey}
	if !errors.Is(ce, ErrInvalidAPIKey) {
		t.Error("expected errors.Is to unwrap to ErrInvalidAPIKey")
	}
}

func TestClassifyError_NilError(t *testing.T) {
	if ClassifyError(nil, "openai", "gpt-4o-mini", 0) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestClassifyError_429RateLimit(t *testing.T) {
	ce := ClassifyError(errors.New("boom"), "openai", "gpt-4o-mini", http.StatusTooManyRequests)
	if ce.Category != "rate_limit" || !ce.Retryable {
		t.Errorf("got category=%s retryable=%v, want rate_limit/true", ce.Category, ce.Retryable)
	}
	if !errors.Is(ce, ErrRateLimited) {
		t.Error("expected errors.Is ErrRateLimited")
	}
}

func TestClassifyError_401Unauthorized(t *testing.T) {
	ce := ClassifyError(errors.New("nope"), "openai", "gpt-4o-mini", http.StatusUnauthorized)
	if ce.Category != "invalid_key" || ce.Retryable {
		t.Errorf("got category=%s retryable=%v, want invalid_key/false", ce.Category, ce.Retryable)
	}
}

func TestClassifyError_503ServiceUnavailable(t *testing.T) {
	ce := ClassifyError(errors.New("down"), "openai", "gpt-4o-mini", http.StatusServiceUnavailable)
	if ce.Category != "provider_error" || !ce.Retryable {
		t.Errorf("got category=%s retryable=%v, want provider_error/true", ce.Category, ce.Retryable)
	}
}

func TestClassifyError_FeatureUnsupported(t *testing.T) {
	ce := ClassifyError(errors.New("response_format is not supported for this model"), "ollama", "llama3", http.StatusBadRequest)
	if ce.Category != "model_unsupported" {
		t.Errorf("category = %s, want model_unsupported", ce.Category)
	}
	if ce.Retryable {
		t.Error("feature-unsupported errors should not be retryable")
	}
}

func TestContainsFeatureUnsupported(t *testing.T) {
	tests := []struct {
		errStr string
		want   bool
	}{
		{"response_format is not supported", true},
		{"json mode not supported", true},
		{"some unrelated error", false},
	}
	for _, tt := range tests {
		if got := containsFeatureUnsupported(tt.errStr); got != tt.want {
			t.Errorf("containsFeatureUnsupported(%q) = %v, want %v", tt.errStr, got, tt.want)
		}
	}
}

func TestExtractStatusCode(t *testing.T) {
	tests := []struct {
		msg  string
		want int
	}{
		{"request failed, status: 429", http.StatusTooManyRequests},
		{"HTTP 503 service unavailable", http.StatusServiceUnavailable},
		{"no code here", 0},
	}
	for _, tt := range tests {
		if got := extractStatusCode(tt.msg); got != tt.want {
			t.Errorf("extractStatusCode(%q) = %d, want %d", tt.msg, got, tt.want)
		}
	}
}

func TestWrapError_NilError(t *testing.T) {
	if WrapError(nil, "openai", "gpt-4o-mini") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestWrapError_AlreadyCallError(t *testing.T) {
	original := &CallError{Err: ErrProviderError, Category: "unknown"}
	wrapped := WrapError(original, "openai", "gpt-4o-mini")
	if wrapped != original {
		t.Error("expected WrapError to return the same instance when already a CallError")
	}
}

func TestWrapError_RegularError(t *testing.T) {
	wrapped := WrapError(errors.New("status: 429 too many requests"), "openai", "gpt-4o-mini")
	if wrapped.Category != "rate_limit" {
		t.Errorf("category = %s, want rate_limit", wrapped.Category)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&CallError{Retryable: true}) {
		t.Error("expected retryable error to report true")
	}
	if IsRetryable(errors.New("plain error")) {
		t.Error("expected plain error to report false")
	}
}
