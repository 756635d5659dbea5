package pipeline

import (
	"context"
	"testing"

	"github.com/placefinder/search-api/internal/models"
)

func newTestRunner() *Runner {
	return NewRunner(nil, nil, nil, nil, DefaultConfig(), nil)
}

func TestRank_ZeroesAbsentSignals(t *testing.T) {
	r := newTestRunner()
	pctx := &models.PipelineContext{Ctx: context.Background(), Timings: models.NewStageTimings()}
	mapping := models.RouteMapping{Route: models.RouteTextSearch} // no UserLocation, no CuisineKey, no OpenNowWanted

	results := []models.PlaceResult{
		{ID: "a", Rating: 4.0, ReviewCount: 10, Lat: 1, Lng: 1},
		{ID: "b", Rating: 4.9, ReviewCount: 10, Lat: 2, Lng: 2},
	}

	ranked := r.rank(pctx, results, mapping)
	if len(ranked) != 2 {
		t.Fatalf("got %d results, want 2", len(ranked))
	}
	// With distance/openBoost/cuisine weights forced to zero, score is
	// driven purely by rating and review share — both have the same review
	// count, so b's higher rating decides and it should sort first.
	if ranked[0].ID != "b" {
		t.Errorf("ranked[0] = %q, want b (higher rating wins when distance/cuisine/open signals are absent)", ranked[0].ID)
	}
}

func TestRank_TieBreakOrder(t *testing.T) {
	r := newTestRunner()
	pctx := &models.PipelineContext{Ctx: context.Background(), Timings: models.NewStageTimings()}
	mapping := models.RouteMapping{Route: models.RouteTextSearch}

	results := []models.PlaceResult{
		{ID: "later", Rating: 4.0, ReviewCount: 10, ProviderIndex: 1},
		{ID: "earlier", Rating: 4.0, ReviewCount: 10, ProviderIndex: 0},
	}

	ranked := r.rank(pctx, results, mapping)
	if ranked[0].ID != "earlier" {
		t.Errorf("ranked[0] = %q, want earlier (lower providerIndex wins an exact tie)", ranked[0].ID)
	}
}

func TestRank_DistanceHeavyForNearbyWithUserLocation(t *testing.T) {
	r := newTestRunner()
	pctx := &models.PipelineContext{Ctx: context.Background(), Timings: models.NewStageTimings()}
	origin := models.Coordinates{Lat: 0, Lng: 0}
	mapping := models.RouteMapping{Route: models.RouteNearby, UserLocation: &origin}

	results := []models.PlaceResult{
		{ID: "far", Rating: 4.9, ReviewCount: 100, Lat: 10, Lng: 10},
		{ID: "near", Rating: 4.0, ReviewCount: 10, Lat: 0.001, Lng: 0.001},
	}

	ranked := r.rank(pctx, results, mapping)
	if ranked[0].ID != "near" {
		t.Errorf("ranked[0] = %q, want near (distance-heavy profile for NEARBY+userLocation)", ranked[0].ID)
	}
}

func TestValidateResponse_SanitizesClarifyWithResults(t *testing.T) {
	result := &models.SearchResult{
		Assist:  models.Assist{Type: models.AssistClarify},
		Results: []models.PlaceResult{{ID: "leaked"}},
		Groups:  []models.ResultGroup{{Label: "x"}},
		Meta:    models.ResultMeta{Pagination: &models.Pagination{PageCount: 1}},
	}
	out := validateResponse(result)
	if len(out.Results) != 0 || len(out.Groups) != 0 || out.Meta.Pagination != nil {
		t.Errorf("validator left data on a clarify response: %+v", out)
	}
}

func TestValidateResponse_LeavesSuccessAlone(t *testing.T) {
	result := &models.SearchResult{
		Assist:  models.Assist{Type: models.AssistNone},
		Results: []models.PlaceResult{{ID: "a"}},
	}
	out := validateResponse(result)
	if len(out.Results) != 1 {
		t.Error("validator should not touch a success response's results")
	}
}
