// Package llm provides a minimal LanguageModel abstraction and error
// classification for the language-model calls the pipeline stages make.
package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors classified from raw provider failures.
var (
	ErrModelUnavailable        = errors.New("model unavailable")
	ErrModelFeatureUnsupported = errors.New("model feature unsupported")
	ErrInvalidAPIKey           = errors.New("invalid API key")
	ErrProviderError           = errors.New("provider error")
	ErrRateLimited             = errors.New("rate limited")
)

// CallError wraps a raw LanguageModel.Call failure with enough structure for
// a pipeline stage to decide whether to retry, fall back, or abort.
type CallError struct {
	Err        error
	StatusCode int
	Provider   string
	Model      string
	Category   string
	Retryable  bool
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm call failed (provider=%s model=%s category=%s): %v", e.Provider, e.Model, e.Category, e.Err)
	}
	return "unknown llm call error"
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// ClassifyError analyzes an error from a LanguageModel call and returns a
// classified CallError. statusCode is 0 when the failure never reached the
// wire (context cancellation, dial failure, etc).
func ClassifyError(err error, provider, model string, statusCode int) *CallError {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())
	ce := &CallError{Err: err, StatusCode: statusCode, Provider: provider, Model: model}

	if containsFeatureUnsupported(errStr) {
		ce.Err = ErrModelFeatureUnsupported
		ce.Category = "model_unsupported"
		ce.Retryable = false
		return ce
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		ce.Err = ErrRateLimited
		ce.Category = "rate_limit"
		ce.Retryable = true
	case http.StatusUnauthorized:
		ce.Err = ErrInvalidAPIKey
		ce.Category = "invalid_key"
		ce.Retryable = false
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		ce.Err = ErrModelUnavailable
		ce.Category = "provider_error"
		ce.Retryable = true
	default:
		ce = classifyByErrorMessage(ce, errStr)
	}

	return ce
}

func containsFeatureUnsupported(errStr string) bool {
	patterns := []string{
		"response_format is not supported",
		"response_format not supported",
		"structured output not supported",
		"json mode not supported",
		"json_object not supported",
		"does not support response_format",
		"does not support structured",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

func classifyByErrorMessage(ce *CallError, errStr string) *CallError {
	switch {
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "ratelimit"):
		ce.Err = ErrRateLimited
		ce.Category = "rate_limit"
		ce.Retryable = true
	case strings.Contains(errStr, "overloaded") || strings.Contains(errStr, "capacity"):
		ce.Err = ErrModelUnavailable
		ce.Category = "provider_error"
		ce.Retryable = true
	case strings.Contains(errStr, "invalid api key") || strings.Contains(errStr, "authentication"):
		ce.Err = ErrInvalidAPIKey
		ce.Category = "invalid_key"
		ce.Retryable = false
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
		ce.Err = ErrProviderError
		ce.Category = "timeout"
		ce.Retryable = true
	default:
		ce.Err = ErrProviderError
		ce.Category = "unknown"
		ce.Retryable = false
	}
	return ce
}

// WrapError wraps a raw error into a CallError with classification, unless
// it already is one.
func WrapError(err error, provider, model string) *CallError {
	if err == nil {
		return nil
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}
	return ClassifyError(err, provider, model, extractStatusCode(err.Error()))
}

func extractStatusCode(errMsg string) int {
	patterns := []struct {
		prefix string
		code   int
	}{
		{"status: 429", http.StatusTooManyRequests},
		{"status: 401", http.StatusUnauthorized},
		{"status: 503", http.StatusServiceUnavailable},
		{"status: 502", http.StatusBadGateway},
		{"status: 504", http.StatusGatewayTimeout},
		{"429", http.StatusTooManyRequests},
		{"503", http.StatusServiceUnavailable},
	}

	errLower := strings.ToLower(errMsg)
	for _, p := range patterns {
		if strings.Contains(errLower, p.prefix) {
			return p.code
		}
	}
	return 0
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}
