package pipeline

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/placefinder/search-api/internal/models"
)

type weights struct {
	rating       float64
	review       float64
	distance     float64
	openBoost    float64
	cuisineMatch float64
}

func defaultWeights() weights {
	return weights{rating: 0.4, review: 0.2, distance: 0.3, openBoost: 0.05, cuisineMatch: 0.05}
}

func distanceHeavyWeights() weights {
	return weights{rating: 0.25, review: 0.15, distance: 0.5, openBoost: 0.05, cuisineMatch: 0.05}
}

const rankingWeightPrompt = `Pick a ranking weight profile for these results. Reply with JSON only: ` +
	`{"rating":0.0,"review":0.0,"distance":0.0,"openBoost":0.0,"cuisineMatch":0.0}`

// selectWeights picks a weight profile. A deterministic rule runs first —
// a NEARBY route with a user-supplied location, or any LANDMARK route, is
// distance-heavy by construction. Only when neither rule applies does the
// language model get a say, and only a well-formed reply overrides the
// balanced default.
func (r *Runner) selectWeights(pctx *models.PipelineContext, mapping models.RouteMapping) weights {
	switch mapping.Route {
	case models.RouteNearby:
		if mapping.UserLocation != nil {
			return distanceHeavyWeights()
		}
	case models.RouteLandmark:
		return distanceHeavyWeights()
	}

	if pctx.LanguageModel != nil {
		if w, ok := r.askWeightProfile(pctx, mapping); ok {
			return w
		}
	}
	return defaultWeights()
}

// weightProfileReply mirrors weights with exported, JSON-taggable fields —
// encoding/json can't populate weights' unexported fields directly.
type weightProfileReply struct {
	Rating       float64 `json:"rating"`
	Review       float64 `json:"review"`
	Distance     float64 `json:"distance"`
	OpenBoost    float64 `json:"openBoost"`
	CuisineMatch float64 `json:"cuisineMatch"`
}

func (r *Runner) askWeightProfile(pctx *models.PipelineContext, mapping models.RouteMapping) (weights, bool) {
	raw, err := pctx.LanguageModel.Call(pctx.Ctx, rankingWeightPrompt, mapping.SearchQuery)
	if err != nil {
		return weights{}, false
	}
	var reply weightProfileReply
	if jsonErr := json.Unmarshal([]byte(extractJSON(raw)), &reply); jsonErr != nil {
		return weights{}, false
	}
	return weights{
		rating:       reply.Rating,
		review:       reply.Review,
		distance:     reply.Distance,
		openBoost:    reply.OpenBoost,
		cuisineMatch: reply.CuisineMatch,
	}, true
}

// rank runs stage 7. Per spec.md §4.3, any signal whose underlying data is
// absent has its weight forced to zero before scoring, regardless of what
// the deterministic rule or the language model picked.
func (r *Runner) rank(pctx *models.PipelineContext, results []models.PlaceResult, mapping models.RouteMapping) []models.PlaceResult {
	w := r.selectWeights(pctx, mapping)
	if mapping.UserLocation == nil {
		w.distance = 0
	}
	if mapping.CuisineKey == "" {
		w.cuisineMatch = 0
	}
	if !mapping.OpenNowWanted {
		w.openBoost = 0
	}

	maxReviews := 0
	for _, p := range results {
		if p.ReviewCount > maxReviews {
			maxReviews = p.ReviewCount
		}
	}

	ranked := make([]models.PlaceResult, len(results))
	copy(ranked, results)

	for i := range ranked {
		p := &ranked[i]

		reviewScore := 0.0
		if maxReviews > 0 {
			reviewScore = float64(p.ReviewCount) / float64(maxReviews)
		}

		distanceScore := 0.0
		if w.distance > 0 {
			d := haversineMeters(*mapping.UserLocation, models.Coordinates{Lat: p.Lat, Lng: p.Lng})
			distanceScore = 1.0 / (1.0 + d/1000.0)
		}

		openScore := 0.0
		if w.openBoost > 0 && p.OpenNow == models.OpenNowOpen {
			openScore = 1.0
		}

		cuisineScore := 0.0
		if w.cuisineMatch > 0 && strings.Contains(strings.ToLower(p.Name), strings.ToLower(mapping.CuisineKey)) {
			cuisineScore = 1.0
		}

		p.Score = (p.Rating/5.0)*w.rating + reviewScore*w.review + distanceScore*w.distance + openScore*w.openBoost + cuisineScore*w.cuisineMatch
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Rating != ranked[j].Rating {
			return ranked[i].Rating > ranked[j].Rating
		}
		if ranked[i].ReviewCount != ranked[j].ReviewCount {
			return ranked[i].ReviewCount > ranked[j].ReviewCount
		}
		return ranked[i].ProviderIndex < ranked[j].ProviderIndex
	})

	return ranked
}

// haversineMeters computes great-circle distance between two coordinates.
func haversineMeters(a, b models.Coordinates) float64 {
	const earthRadiusM = 6371000.0
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
