package models

import (
	"context"
	"time"
)

// FoodSignal is the Classification stage's tri-state judgment of whether a
// query is food/restaurant related.
type FoodSignal string

const (
	FoodSignalNo        FoodSignal = "NO"
	FoodSignalUncertain FoodSignal = "UNCERTAIN"
	FoodSignalYes       FoodSignal = "YES"
)

// RouteDecision is the Classification stage's verdict on whether the
// pipeline should continue, ask the user to clarify, or stop outright.
type RouteDecision string

const (
	RouteContinue RouteDecision = "CONTINUE"
	RouteClarify  RouteDecision = "ASK_CLARIFY"
	RouteStop     RouteDecision = "STOP"
)

// ProviderRoute is the coarse shape of provider call the Intent Routing
// stage selects.
type ProviderRoute string

const (
	RouteTextSearch ProviderRoute = "TEXTSEARCH"
	RouteNearby     ProviderRoute = "NEARBY"
	RouteLandmark   ProviderRoute = "LANDMARK"
)

// ClassificationOutput is stage 1's result.
type ClassificationOutput struct {
	FoodSignal FoodSignal
	Language   string
	Route      RouteDecision
	Confidence float64
}

// IntentOutput is stage 2's result. Reason records why a particular route
// (or its deterministic fallback) was chosen.
type IntentOutput struct {
	Route          ProviderRoute
	CityHint       string
	LandmarkText   string
	RadiusMeters   float64
	Reason         string
	RouteConf      float64
	CityConf       float64
	LandmarkConf   float64
}

// Coordinates is a (lat, lng) pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BiasCircle biases a geographic provider search toward an area without
// hard-filtering it.
type BiasCircle struct {
	Center Coordinates
	Radius float64
}

// RouteMapping is stage 3's concrete provider request shape.
type RouteMapping struct {
	Route         ProviderRoute
	SearchQuery   string
	SearchLang    string
	Region        string
	Bias          *BiasCircle
	FieldMask     []string
	PipelineVer   string
	UserLocation  *Coordinates
	CuisineKey    string
	OpenNowWanted bool

	// CityHint is an unresolved location name carried from Intent Routing.
	// The Provider Gateway resolves it to a Bias circle itself (§4.4 step 5)
	// when no explicit Bias is already present; it is deliberately excluded
	// from the cache fingerprint, which is computed before resolution.
	CityHint string
}

// Fingerprint returns the content-addressed string that keys the Provider
// Gateway's cache. Only fields that affect the upstream request participate
// — notably not the assistant reply language, so the cache stays stable
// across assistant-language changes.
func (m RouteMapping) Fingerprint() string {
	return fingerprintRouteMapping(m)
}

// PipelineContext is threaded through every stage. It is never mutated
// concurrently; each stage returns a new immutable output rather than
// writing back into the context.
type PipelineContext struct {
	RequestID        string
	SessionID        string
	StartTime        time.Time
	AssistantLang     string
	Ctx              context.Context
	LanguageModel    interface {
		Call(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	}
	Timings *StageTimings
}

// ShouldAbort reports whether the pipeline context's cancellation signal has
// fired. Stages consult this before any side effect (publish, cache write).
func (p *PipelineContext) ShouldAbort() bool {
	if p.Ctx == nil {
		return false
	}
	select {
	case <-p.Ctx.Done():
		return true
	default:
		return false
	}
}

// StageTimings accumulates a per-stage duration bag; the Runner archives it
// with a job's debug capture. (A response's trace id is its request id.)
type StageTimings struct {
	entries map[string]time.Duration
	order   []string
}

// NewStageTimings returns an empty timings bag.
func NewStageTimings() *StageTimings {
	return &StageTimings{entries: make(map[string]time.Duration)}
}

// Record stores the duration a named stage took. Recording the same name
// twice overwrites the previous value but preserves its original position.
func (t *StageTimings) Record(stage string, d time.Duration) {
	if _, ok := t.entries[stage]; !ok {
		t.order = append(t.order, stage)
	}
	t.entries[stage] = d
}

// Total sums every recorded stage duration.
func (t *StageTimings) Total() time.Duration {
	var total time.Duration
	for _, d := range t.entries {
		total += d
	}
	return total
}

// Snapshot returns the recorded stages in recording order.
func (t *StageTimings) Snapshot() []StageTiming {
	out := make([]StageTiming, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, StageTiming{Stage: name, Duration: t.entries[name]})
	}
	return out
}

// StageTiming is one named duration from a StageTimings snapshot.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}
