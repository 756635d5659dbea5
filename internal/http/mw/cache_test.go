package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCachePolicy_Fields(t *testing.T) {
	policy := CachePolicy{
		Pattern:      "/healthz",
		CacheControl: "no-store",
	}

	if policy.Pattern != "/healthz" {
		t.Errorf("Pattern = %q, want %q", policy.Pattern, "/healthz")
	}
	if policy.CacheControl != "no-store" {
		t.Errorf("CacheControl = %q, want %q", policy.CacheControl, "no-store")
	}
}

func TestCacheConfig_Fields(t *testing.T) {
	cfg := CacheConfig{
		Policies: []CachePolicy{
			{Pattern: "/test", CacheControl: "no-store"},
		},
		DefaultPolicy: "private, no-cache",
	}

	if len(cfg.Policies) != 1 {
		t.Errorf("Policies length = %d, want 1", len(cfg.Policies))
	}
	if cfg.DefaultPolicy != "private, no-cache" {
		t.Errorf("DefaultPolicy = %q, want %q", cfg.DefaultPolicy, "private, no-cache")
	}
}

func TestDefaultCacheConfig(t *testing.T) {
	cfg := DefaultCacheConfig()

	if cfg.DefaultPolicy != "private, no-cache" {
		t.Errorf("DefaultPolicy = %q, want %q", cfg.DefaultPolicy, "private, no-cache")
	}
	if len(cfg.Policies) == 0 {
		t.Error("Policies should not be empty")
	}

	expectedPatterns := []string{"/healthz", "/readyz", "/api/v1/search/jobs", "/api/v1/search/results", "/api/v1/photo", "/stream"}
	for _, pattern := range expectedPatterns {
		found := false
		for _, policy := range cfg.Policies {
			if policy.Pattern == pattern {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected policy for pattern %q not found", pattern)
		}
	}
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		pattern  string
		expected bool
	}{
		{"exact match", "/healthz", "/healthz", true},
		{"exact match with different path", "/readyz", "/healthz", false},
		{"prefix match", "/api/v1/search/jobs/123", "/api/v1/search/jobs", true},
		{"no prefix match", "/api/v2/search/jobs", "/api/v1/search/jobs", false},
		{"substring match", "/api/v1/search/jobs/123/stream", "/stream", true},
		{"substring match at end", "/some/path/stream", "/stream", true},
		{"no substring match", "/api/v1/dreams", "/stream", false},
		{"empty path", "", "/api", false},
		{"empty pattern", "/api/v1/test", "", true},
		{"root path", "/", "/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesPattern(tt.path, tt.pattern)
			if got != tt.expected {
				t.Errorf("matchesPattern(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.expected)
			}
		})
	}
}

func TestCache_NonGetRequest(t *testing.T) {
	methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

	cfg := DefaultCacheConfig()
	middleware := Cache(cfg)

	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(method, "/api/v1/search/jobs", nil)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			cc := rr.Header().Get("Cache-Control")
			if cc != "no-store" {
				t.Errorf("%s request: Cache-Control = %q, want %q", method, cc, "no-store")
			}
		})
	}
}

func TestCache_GetRequest_MatchingPolicy(t *testing.T) {
	tests := []struct {
		name             string
		path             string
		expectedCacheCtl string
	}{
		{"healthz probe", "/healthz", "no-store"},
		{"readyz probe", "/readyz", "no-store"},
		{"jobs create", "/api/v1/search/jobs", "private, no-cache"},
		{"job stream", "/api/v1/search/jobs/123/stream", "private, no-cache"},
		{"standalone stream", "/events/stream", "no-cache"},
	}

	cfg := DefaultCacheConfig()
	middleware := Cache(cfg)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			cc := rr.Header().Get("Cache-Control")
			if cc != tt.expectedCacheCtl {
				t.Errorf("path %q: Cache-Control = %q, want %q", tt.path, cc, tt.expectedCacheCtl)
			}
		})
	}
}

func TestCache_GetRequest_DefaultPolicy(t *testing.T) {
	cfg := CacheConfig{
		Policies:      []CachePolicy{},
		DefaultPolicy: "private, max-age=60",
	}
	middleware := Cache(cfg)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unmatched/path", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	cc := rr.Header().Get("Cache-Control")
	if cc != "private, max-age=60" {
		t.Errorf("Cache-Control = %q, want %q", cc, "private, max-age=60")
	}
}

func TestCache_GetRequest_NoDefaultPolicy(t *testing.T) {
	cfg := CacheConfig{
		Policies:      []CachePolicy{},
		DefaultPolicy: "",
	}
	middleware := Cache(cfg)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unmatched/path", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	cc := rr.Header().Get("Cache-Control")
	if cc != "" {
		t.Errorf("Cache-Control = %q, want empty (no header set)", cc)
	}
}

func TestCache_HeadRequest(t *testing.T) {
	cfg := CacheConfig{
		Policies: []CachePolicy{
			{Pattern: "/api/v1/test", CacheControl: "public, max-age=120"},
		},
		DefaultPolicy: "private, no-cache",
	}
	middleware := Cache(cfg)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodHead, "/api/v1/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	cc := rr.Header().Get("Cache-Control")
	if cc != "public, max-age=120" {
		t.Errorf("HEAD request: Cache-Control = %q, want %q", cc, "public, max-age=120")
	}
}

func TestCache_FirstMatchWins(t *testing.T) {
	cfg := CacheConfig{
		Policies: []CachePolicy{
			{Pattern: "/api", CacheControl: "first-policy"},
			{Pattern: "/api/v1", CacheControl: "second-policy"},
			{Pattern: "/api/v1/specific", CacheControl: "third-policy"},
		},
	}
	middleware := Cache(cfg)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/specific/endpoint", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	cc := rr.Header().Get("Cache-Control")
	if cc != "first-policy" {
		t.Errorf("Cache-Control = %q, want %q (first match)", cc, "first-policy")
	}
}

func TestCache_HandlerCalledWithRequest(t *testing.T) {
	cfg := DefaultCacheConfig()
	middleware := Cache(cfg)

	handlerCalled := false
	var receivedPath string

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		receivedPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if !handlerCalled {
		t.Error("handler was not called")
	}
	if receivedPath != "/api/v1/test" {
		t.Errorf("handler received path %q, want %q", receivedPath, "/api/v1/test")
	}
}

func TestCache_ResponseStatusPreserved(t *testing.T) {
	cfg := DefaultCacheConfig()
	middleware := Cache(cfg)

	statuses := []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError}

	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != status {
				t.Errorf("response status = %d, want %d", rr.Code, status)
			}
		})
	}
}

func TestCache_DefaultConfig_K8sProbes(t *testing.T) {
	cfg := DefaultCacheConfig()
	middleware := Cache(cfg)

	probePaths := []string{"/healthz", "/readyz"}

	for _, path := range probePaths {
		t.Run(path, func(t *testing.T) {
			handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, path, nil)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			cc := rr.Header().Get("Cache-Control")
			if cc != "no-store" {
				t.Errorf("path %q: Cache-Control = %q, want %q", path, cc, "no-store")
			}
		})
	}
}
