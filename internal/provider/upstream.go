package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/placefinder/search-api/internal/models"
)

// UpstreamRequest is one page fetch against the Places-style search API.
type UpstreamRequest struct {
	Mapping   models.RouteMapping
	PageToken string
}

// UpstreamPage is a single page of upstream results.
type UpstreamPage struct {
	Results       []models.PlaceResult
	NextPageToken string
}

// UpstreamClient performs one page of a provider search. Implementations
// are responsible for turning a non-2xx response into a *CallError with the
// correct status code so the Gateway's retry policy can inspect it.
type UpstreamClient interface {
	Search(ctx context.Context, req UpstreamRequest) (UpstreamPage, error)
	// Host identifies the upstream for circuit-breaker partitioning.
	Host() string
}

// HTTPUpstreamClient calls a Google-Places-style "searchText" endpoint.
type HTTPUpstreamClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	host    string
}

// NewHTTPUpstreamClient builds an UpstreamClient against baseURL. The
// credential is attached server-side on every request and never echoed
// back to callers.
func NewHTTPUpstreamClient(baseURL, apiKey string, timeout time.Duration) *HTTPUpstreamClient {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return &HTTPUpstreamClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		host:    host,
	}
}

func (c *HTTPUpstreamClient) Host() string { return c.host }

func (c *HTTPUpstreamClient) Search(ctx context.Context, req UpstreamRequest) (UpstreamPage, error) {
	body, err := json.Marshal(c.buildRequestBody(req))
	if err != nil {
		return UpstreamPage{}, fmt.Errorf("encode upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/places:searchText", bytes.NewReader(body))
	if err != nil {
		return UpstreamPage{}, fmt.Errorf("new upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", strings.Join(req.Mapping.FieldMask, ","))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return UpstreamPage{}, &CallError{Kind: KindNetworkError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return UpstreamPage{}, &CallError{Kind: KindHTTPError, StatusCode: resp.StatusCode, Err: fmt.Errorf("upstream returned %s", resp.Status)}
	}

	var decoded struct {
		Places []struct {
			ID          string `json:"id"`
			DisplayName struct {
				Text string `json:"text"`
			} `json:"displayName"`
			FormattedAddr string `json:"formattedAddress"`
			Location      struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"location"`
			Rating              float64 `json:"rating"`
			UserRatingCount     int     `json:"userRatingCount"`
			PriceLevel          int     `json:"priceLevel"`
			BusinessStatus      string  `json:"businessStatus"`
			CurrentOpeningHours *struct {
				OpenNow *bool `json:"openNow"`
			} `json:"currentOpeningHours"`
		} `json:"places"`
		NextPageToken string `json:"nextPageToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return UpstreamPage{}, fmt.Errorf("decode upstream response: %w", err)
	}

	page := UpstreamPage{NextPageToken: decoded.NextPageToken}
	for i, p := range decoded.Places {
		openNow := models.OpenNowUnknown
		if p.CurrentOpeningHours != nil && p.CurrentOpeningHours.OpenNow != nil {
			if *p.CurrentOpeningHours.OpenNow {
				openNow = models.OpenNowOpen
			} else {
				openNow = models.OpenNowClosed
			}
		}
		page.Results = append(page.Results, models.PlaceResult{
			ID:             p.ID,
			Name:           p.DisplayName.Text,
			Address:        p.FormattedAddr,
			Lat:            p.Location.Latitude,
			Lng:            p.Location.Longitude,
			Rating:         p.Rating,
			ReviewCount:    p.UserRatingCount,
			PriceLevel:     p.PriceLevel,
			BusinessStatus: p.BusinessStatus,
			OpenNow:        openNow,
			ProviderIndex:  i,
		})
	}
	return page, nil
}

func (c *HTTPUpstreamClient) buildRequestBody(req UpstreamRequest) map[string]any {
	body := map[string]any{
		"textQuery":    req.Mapping.SearchQuery,
		"languageCode": req.Mapping.SearchLang,
	}
	if req.Mapping.Region != "" {
		body["regionCode"] = req.Mapping.Region
	}
	if req.Mapping.Bias != nil {
		body["locationBias"] = map[string]any{
			"circle": map[string]any{
				"center": map[string]float64{
					"latitude":  req.Mapping.Bias.Center.Lat,
					"longitude": req.Mapping.Bias.Center.Lng,
				},
				"radius": req.Mapping.Bias.Radius,
			},
		}
	}
	if req.Mapping.OpenNowWanted {
		body["openNow"] = true
	}
	if req.PageToken != "" {
		body["pageToken"] = req.PageToken
	}
	return body
}
