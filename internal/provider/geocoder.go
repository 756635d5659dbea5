package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/placefinder/search-api/internal/models"
)

// Geocoder resolves a free-text location hint to a coordinate. A geocode
// failure is treated as non-fatal by the Gateway — the search simply
// proceeds without a bias circle.
type Geocoder interface {
	Geocode(ctx context.Context, cityHint string) (*models.Coordinates, error)
}

// HTTPGeocoder calls the same provider family's geocoding endpoint.
type HTTPGeocoder struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGeocoder builds a Geocoder against baseURL.
func NewHTTPGeocoder(baseURL, apiKey string, timeout time.Duration) *HTTPGeocoder {
	return &HTTPGeocoder{baseURL: baseURL, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

func (g *HTTPGeocoder) Geocode(ctx context.Context, cityHint string) (*models.Coordinates, error) {
	if cityHint == "" {
		return nil, fmt.Errorf("geocode: empty city hint")
	}

	reqURL := fmt.Sprintf("%s/v1/geocode?address=%s&key=%s", g.baseURL, url.QueryEscape(cityHint), g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new geocode request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &CallError{Kind: KindNetworkError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &CallError{Kind: KindHTTPError, StatusCode: resp.StatusCode, Err: fmt.Errorf("geocode upstream returned %s", resp.Status)}
	}

	var decoded struct {
		Results []struct {
			Geometry struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(decoded.Results) == 0 {
		return nil, fmt.Errorf("geocode: no match for %q", cityHint)
	}

	loc := decoded.Results[0].Geometry.Location
	return &models.Coordinates{Lat: loc.Lat, Lng: loc.Lng}, nil
}
