package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/placefinder/search-api/internal/models"
)

var defaultFieldMask = []string{
	"places.id", "places.displayName", "places.formattedAddress", "places.location",
	"places.rating", "places.userRatingCount", "places.priceLevel",
	"places.businessStatus", "places.currentOpeningHours",
}

// classify runs stage 1. A language-model failure degrades to a
// conservative CONTINUE verdict rather than aborting the job — nothing in
// spec.md requires classification itself to have a deterministic fallback
// reason the way Intent Routing does, but leaving the pipeline stuck on a
// transient LM hiccup would be worse than proceeding cautiously.
func (r *Runner) classify(pctx *models.PipelineContext, query models.Query) models.ClassificationOutput {
	if pctx.LanguageModel == nil {
		return fallbackClassification(query)
	}

	callCtx, cancel := context.WithTimeout(pctx.Ctx, r.cfg.StageTimeout)
	defer cancel()

	raw, err := pctx.LanguageModel.Call(callCtx, classificationSystemPrompt, query.Original)
	if err != nil {
		return fallbackClassification(query)
	}

	var out models.ClassificationOutput
	if jsonErr := json.Unmarshal([]byte(extractJSON(raw)), &out); jsonErr != nil {
		return fallbackClassification(query)
	}
	if out.Language == "" {
		out.Language = query.Language
	}
	return out
}

func fallbackClassification(query models.Query) models.ClassificationOutput {
	return models.ClassificationOutput{
		FoodSignal: models.FoodSignalUncertain,
		Language:   query.Language,
		Route:      models.RouteContinue,
		Confidence: 0,
	}
}

// routeIntent runs stage 2. On LM timeout or invalid/unparseable output it
// falls back deterministically to TEXTSEARCH, tagging the reason so the
// failure is observable without throwing into the caller.
func (r *Runner) routeIntent(pctx *models.PipelineContext, classification models.ClassificationOutput, query models.Query) models.IntentOutput {
	if pctx.LanguageModel == nil {
		return fallbackIntent("fallback_error")
	}

	callCtx, cancel := context.WithTimeout(pctx.Ctx, r.cfg.StageTimeout)
	defer cancel()

	raw, err := pctx.LanguageModel.Call(callCtx, intentRoutingSystemPrompt, query.Original)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fallbackIntent("fallback_timeout")
		}
		return fallbackIntent("fallback_error")
	}

	var out models.IntentOutput
	if jsonErr := json.Unmarshal([]byte(extractJSON(raw)), &out); jsonErr != nil {
		return fallbackIntent("fallback_error")
	}
	if out.Route == "" {
		return fallbackIntent("fallback_error")
	}
	return out
}

func fallbackIntent(reason string) models.IntentOutput {
	return models.IntentOutput{Route: models.RouteTextSearch, Reason: reason}
}

// mapRoute runs stage 3: a pure composition of the concrete provider
// request. The search query is the user's original text, trimmed and not
// rewritten or translated; it is tagged with the search language (the
// classifier's detected language), which is deliberately not the same field
// as the assistant's reply language.
func (r *Runner) mapRoute(classification models.ClassificationOutput, intent models.IntentOutput, query models.Query) models.RouteMapping {
	searchLang := classification.Language
	if searchLang == "" {
		searchLang = "en"
	}

	mapping := models.RouteMapping{
		Route:         intent.Route,
		SearchQuery:   strings.TrimSpace(query.Original),
		SearchLang:    searchLang,
		PipelineVer:   r.cfg.PipelineVersion,
		FieldMask:     defaultFieldMask,
		CityHint:      intent.CityHint,
		UserLocation:  query.UserLocation,
		OpenNowWanted: query.OpenNowOnly,
	}

	if query.UserLocation != nil && intent.RadiusMeters > 0 {
		mapping.Bias = &models.BiasCircle{Center: *query.UserLocation, Radius: intent.RadiusMeters}
	}

	// A LANDMARK route has no coordinate of its own yet; feeding the
	// landmark text through the same CityHint geocoding sub-step the
	// Provider Gateway already runs (spec.md §4.4 step 5) resolves it to
	// a bias circle without a second resolution path.
	if intent.Route == models.RouteLandmark && mapping.CityHint == "" {
		mapping.CityHint = intent.LandmarkText
	}

	return mapping
}

// missingAnchorGuard runs stage 4. TEXTSEARCH never needs an anchor (it's
// a global text query); NEARBY needs a user location or a non-empty city
// hint (whether it geocodes is not checked here); LANDMARK needs landmark
// text.
func (r *Runner) missingAnchorGuard(mapping models.RouteMapping, intent models.IntentOutput) (bool, models.Assist) {
	switch mapping.Route {
	case models.RouteNearby:
		if mapping.UserLocation == nil && mapping.CityHint == "" {
			return true, anchorClarify()
		}
	case models.RouteLandmark:
		if intent.LandmarkText == "" {
			return true, anchorClarify()
		}
	}
	return false, models.Assist{}
}

func anchorClarify() models.Assist {
	return models.Assist{
		Type:            models.AssistClarify,
		Question:        "Which area or landmark should I search near?",
		Message:         "share your location or name a neighborhood or landmark",
		SuggestedAction: "ASK_LOCATION",
		BlocksSearch:    true,
	}
}

// postFilter runs stage 6. Permanently-closed places are already dropped
// by the Provider Gateway before caching; this stage applies the
// request-level open-now constraint the gateway doesn't know about.
func (r *Runner) postFilter(results []models.PlaceResult, mapping models.RouteMapping) []models.PlaceResult {
	if !mapping.OpenNowWanted {
		return results
	}
	filtered := make([]models.PlaceResult, 0, len(results))
	for _, p := range results {
		if p.OpenNow == models.OpenNowClosed {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered
}

// stageTimer wraps a stage invocation with timing capture.
func stageTimer[T any](pctx *models.PipelineContext, name string, fn func() T) T {
	start := time.Now()
	out := fn()
	pctx.Timings.Record(name, time.Since(start))
	return out
}
