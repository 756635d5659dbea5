// Package provider wraps an external Places-style search API behind a
// single operation, textSearch, that hides caching, request coalescing,
// retry/backoff, pagination, and closed-place filtering from the Pipeline
// Runner.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/placefinder/search-api/internal/kv"
	"github.com/placefinder/search-api/internal/models"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// retryDelays is the fixed backoff schedule for a retryable (429/5xx) page
// fetch failure: one entry per attempt. The zero-delay first entry is the
// initial attempt; the two retries wait 500ms and then 1s.
var retryDelays = []time.Duration{0, 500 * time.Millisecond, 1000 * time.Millisecond}

// Config tunes the Gateway's timeouts and limits.
type Config struct {
	MaxResults       int
	DefaultRadiusM   float64
	FetchTimeout     time.Duration
	CacheWrapTimeout time.Duration
	CacheTTL         time.Duration
}

// DefaultConfig matches spec.md §4.4's suggested constants.
func DefaultConfig() Config {
	return Config{
		MaxResults:       20,
		DefaultRadiusM:   20000,
		FetchTimeout:     8 * time.Second,
		CacheWrapTimeout: 10 * time.Second,
		CacheTTL:         15 * time.Minute,
	}
}

// Result is textSearch's return shape.
type Result struct {
	Results    []models.PlaceResult
	ServedFrom string // "cache" or "upstream"
}

const (
	servedFromCache    = "cache"
	servedFromUpstream = "upstream"
)

// Gateway is the Provider Gateway.
type Gateway struct {
	upstream UpstreamClient
	geocoder Geocoder
	cache    kv.Store
	cfg      Config

	sfGroup singleflight.Group

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewGateway builds a Gateway. geocoder may be nil, in which case city-hint
// resolution is skipped and routes fall back to an unbiased search.
func NewGateway(upstream UpstreamClient, geocoder Geocoder, cache kv.Store, cfg Config) *Gateway {
	return &Gateway{
		upstream: upstream,
		geocoder: geocoder,
		cache:    cache,
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// TextSearch runs the full algorithm in spec.md §4.4: cache wrap with a
// bounded timeout, single-flight coalescing on a cache miss, retrying
// pagination, a geocoding sub-step, business-status filtering, and a
// low-result retry without bias.
func (g *Gateway) TextSearch(ctx context.Context, mapping models.RouteMapping) (Result, error) {
	fingerprint := mapping.Fingerprint()

	type outcome struct {
		result Result
		err    error
	}

	wrapCtx, cancel := context.WithTimeout(ctx, g.cfg.CacheWrapTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := g.cacheWrapped(wrapCtx, mapping, fingerprint)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-wrapCtx.Done():
		// the cache layer itself didn't respond in time; bypass it and
		// fetch directly so a slow L2 never stalls the pipeline.
		results, err := g.fetchWithPolicy(ctx, mapping)
		if err != nil {
			return Result{}, err
		}
		return Result{Results: results, ServedFrom: servedFromUpstream}, nil
	}
}

func (g *Gateway) cacheWrapped(ctx context.Context, mapping models.RouteMapping, fingerprint string) (Result, error) {
	if raw, ok, err := g.cache.Get(ctx, fingerprint); err == nil && ok {
		var cached []models.PlaceResult
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return Result{Results: cached, ServedFrom: servedFromCache}, nil
		}
	}

	v, err, _ := g.sfGroup.Do(fingerprint, func() (interface{}, error) {
		results, ferr := g.fetchWithPolicy(ctx, mapping)
		if ferr != nil {
			return nil, ferr
		}
		if raw, merr := json.Marshal(results); merr == nil {
			_ = g.cache.Set(ctx, fingerprint, raw, g.cfg.CacheTTL)
		}
		return results, nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Results: v.([]models.PlaceResult), ServedFrom: servedFromUpstream}, nil
}

// fetchWithPolicy resolves a city hint, paginates, and applies the
// low-result no-bias retry. It never touches the cache itself.
func (g *Gateway) fetchWithPolicy(ctx context.Context, mapping models.RouteMapping) ([]models.PlaceResult, error) {
	resolved := mapping
	if resolved.Bias == nil && resolved.CityHint != "" && g.geocoder != nil {
		if coords, err := g.geocoder.Geocode(ctx, resolved.CityHint); err == nil && coords != nil {
			resolved.Bias = &models.BiasCircle{Center: *coords, Radius: g.cfg.DefaultRadiusM}
		}
	}

	results, err := g.fetchPaginated(ctx, resolved)
	if err != nil {
		return nil, err
	}

	if resolved.Bias != nil && len(results) <= 1 {
		unbiased := resolved
		unbiased.Bias = nil
		if retryResults, rerr := g.fetchPaginated(ctx, unbiased); rerr == nil && len(retryResults) > len(results) {
			results = retryResults
		}
	}

	return results, nil
}

func (g *Gateway) fetchPaginated(ctx context.Context, mapping models.RouteMapping) ([]models.PlaceResult, error) {
	var all []models.PlaceResult
	pageToken := ""
	// offset re-stamps ProviderIndex across the whole paginated stream —
	// each page from HTTPUpstreamClient.Search starts its own index back at
	// 0, which would collide with every other page's once concatenated, so
	// the original provider-index tie-break (spec.md §4.3) needs a
	// request-wide counter instead of the per-page one.
	offset := 0
	for {
		page, err := g.fetchPageWithRetry(ctx, UpstreamRequest{Mapping: mapping, PageToken: pageToken})
		if err != nil {
			return nil, err
		}
		for _, p := range page.Results {
			p.ProviderIndex = offset
			offset++
			if strings.EqualFold(p.BusinessStatus, "CLOSED_PERMANENTLY") {
				continue
			}
			all = append(all, p)
			if len(all) >= g.cfg.MaxResults {
				return all, nil
			}
		}
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

func (g *Gateway) fetchPageWithRetry(ctx context.Context, req UpstreamRequest) (UpstreamPage, error) {
	var lastErr error
	for _, delay := range retryDelays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return UpstreamPage{}, &CallError{Kind: KindTimeout, Err: ctx.Err()}
			}
		}

		page, err := g.fetchPageOnce(ctx, req)
		if err == nil {
			return page, nil
		}
		lastErr = err

		var ce *CallError
		if errors.As(err, &ce) && ce.Kind == KindHTTPError && isRetryableStatus(ce.StatusCode) {
			continue
		}
		return UpstreamPage{}, err
	}
	return UpstreamPage{}, lastErr
}

func (g *Gateway) fetchPageOnce(ctx context.Context, req UpstreamRequest) (UpstreamPage, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, g.cfg.FetchTimeout)
	defer cancel()

	breaker := g.breakerFor(g.upstream.Host())
	v, err := breaker.Execute(func() (interface{}, error) {
		return g.upstream.Search(fetchCtx, req)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return UpstreamPage{}, &CallError{Kind: KindTimeout, Err: err}
		}
		var ce *CallError
		if errors.As(err, &ce) {
			return UpstreamPage{}, ce
		}
		return UpstreamPage{}, &CallError{Kind: KindNetworkError, Err: err}
	}
	return v.(UpstreamPage), nil
}

// breakerFor lazily creates one circuit breaker per upstream host.
func (g *Gateway) breakerFor(host string) *gobreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.breakers[host]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "provider-" + host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
	g.breakers[host] = b
	return b
}
