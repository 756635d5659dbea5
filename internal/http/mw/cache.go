// Package mw provides HTTP middleware for the search API.
package mw

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	cacheMaxAgeShort  = 30 * time.Second
	cacheMaxAgeMedium = 5 * time.Minute
	cacheMaxAgeLong   = time.Hour
)

// CachePolicy defines caching behavior for a route pattern.
type CachePolicy struct {
	// Pattern is the route pattern to match (prefix match by default).
	Pattern string
	// CacheControl is the Cache-Control header value to set.
	CacheControl string
}

// CacheConfig holds the cache middleware configuration.
type CacheConfig struct {
	// Policies are the cache policies to apply, matched in order.
	Policies []CachePolicy
	// DefaultPolicy is applied when no policy matches (empty = no header set).
	DefaultPolicy string
}

// DefaultCacheConfig returns sensible cache defaults for the API.
// Health/ready probes are never cached, search job reads are private and
// short-lived, and the SSE stream is belt-and-suspenders no-cache (the
// handler already sets its own headers for that path).
func DefaultCacheConfig() CacheConfig {
	shortSecs := int(cacheMaxAgeShort.Seconds())
	mediumSecs := int(cacheMaxAgeMedium.Seconds())
	longSecs := int(cacheMaxAgeLong.Seconds())

	return CacheConfig{
		DefaultPolicy: "private, no-cache",
		Policies: []CachePolicy{
			{Pattern: "/healthz", CacheControl: "no-store"},
			{Pattern: "/readyz", CacheControl: "no-store"},

			{Pattern: "/result", CacheControl: fmt.Sprintf("private, max-age=%d", shortSecs)},
			{Pattern: "/api/v1/search", CacheControl: "private, no-cache"},
			{Pattern: "/photos/", CacheControl: fmt.Sprintf("public, max-age=%d", longSecs)},
			{Pattern: "/stream", CacheControl: "no-cache"},

			{Pattern: "/api/v1/config", CacheControl: fmt.Sprintf("public, max-age=%d, stale-while-revalidate=60", mediumSecs)},
		},
	}
}

// Cache returns middleware that sets Cache-Control headers based on route patterns.
// For non-GET/HEAD requests, it sets "no-store" to prevent caching of mutations.
// For GET/HEAD requests, it matches against configured policies in order.
func Cache(cfg CacheConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Cache-Control", "no-store")
				next.ServeHTTP(w, r)
				return
			}

			path := r.URL.Path
			for _, policy := range cfg.Policies {
				if matchesPattern(path, policy.Pattern) {
					w.Header().Set("Cache-Control", policy.CacheControl)
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.DefaultPolicy != "" {
				w.Header().Set("Cache-Control", cfg.DefaultPolicy)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchesPattern checks if the path matches the pattern.
// Supports prefix matching and substring matching for patterns like "/stream".
func matchesPattern(path, pattern string) bool {
	if path == pattern || strings.HasPrefix(path, pattern) {
		return true
	}
	if strings.Contains(path, pattern) {
		return true
	}
	return false
}
