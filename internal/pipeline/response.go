package pipeline

import (
	"log/slog"
	"time"

	"github.com/placefinder/search-api/internal/models"
)

// buildResponse runs stage 8 for the success path: assembling the final
// payload and running it through the validator before returning it.
func (r *Runner) buildResponse(job *models.SearchJob, mapping models.RouteMapping, classification models.ClassificationOutput, ranked []models.PlaceResult, servedFrom string, pctx *models.PipelineContext) *models.SearchResult {
	result := &models.SearchResult{
		RequestID: job.RequestID,
		SessionID: job.OwnerSessionID,
		Query:     job.Query,
		Parsed:    mapping.SearchQuery,
		Results:   ranked,
		Chips:     buildChips(mapping),
		Assist:    models.Assist{Type: models.AssistNone},
		Meta: models.ResultMeta{
			TookMs:        time.Since(pctx.StartTime).Milliseconds(),
			Mode:          string(mapping.Route),
			Confidence:    classification.Confidence,
			Source:        servedFrom,
			FailureReason: models.FailureNone,
			Pagination:    &models.Pagination{PageCount: 1},
			TraceID:       job.RequestID,
		},
	}
	if mapping.OpenNowWanted {
		result.Meta.AppliedFilters = append(result.Meta.AppliedFilters, "openNow")
	}
	return validateResponse(result)
}

// buildClarifyResponse assembles the DONE_CLARIFY payload for any stage
// that short-circuits with an assistant question.
func buildClarifyResponse(job *models.SearchJob, assist models.Assist, pctx *models.PipelineContext) *models.SearchResult {
	result := &models.SearchResult{
		RequestID: job.RequestID,
		SessionID: job.OwnerSessionID,
		Query:     job.Query,
		Chips:     []string{},
		Assist:    assist,
		Meta: models.ResultMeta{
			TookMs:        time.Since(pctx.StartTime).Milliseconds(),
			Mode:          "clarify",
			FailureReason: models.FailureMissingAnchor,
			TraceID:       job.RequestID,
		},
	}
	return validateResponse(result)
}

// buildStoppedResponse assembles the DONE_STOPPED payload when
// Classification decides the query can't be served at all.
func buildStoppedResponse(job *models.SearchJob, pctx *models.PipelineContext) *models.SearchResult {
	result := &models.SearchResult{
		RequestID: job.RequestID,
		SessionID: job.OwnerSessionID,
		Query:     job.Query,
		Chips:     []string{},
		Assist: models.Assist{
			Type:    models.AssistStopped,
			Message: "This doesn't look like a restaurant search I can help with.",
		},
		Meta: models.ResultMeta{
			TookMs:        time.Since(pctx.StartTime).Milliseconds(),
			Mode:          "stopped",
			FailureReason: models.FailureLowConfidence,
			TraceID:       job.RequestID,
		},
	}
	return validateResponse(result)
}

func buildChips(mapping models.RouteMapping) []string {
	chips := []string{}
	if mapping.OpenNowWanted {
		chips = append(chips, "open now")
	}
	if mapping.CuisineKey != "" {
		chips = append(chips, mapping.CuisineKey)
	}
	return chips
}

// validateResponse is the pure validator from spec.md §4.3 step 8: CLARIFY
// and STOPPED responses must carry no results, no groups, and no
// pagination. A violation is sanitized in place and logged as a bug rather
// than surfaced to the client.
func validateResponse(result *models.SearchResult) *models.SearchResult {
	if result.Assist.Type != models.AssistClarify && result.Assist.Type != models.AssistStopped {
		return result
	}

	violated := len(result.Results) > 0 || len(result.Groups) > 0 || result.Meta.Pagination != nil
	if violated {
		slog.Warn("response validator sanitized a non-success response carrying result data",
			"requestId", result.RequestID, "assistType", result.Assist.Type)
		result.Results = nil
		result.Groups = nil
		result.Meta.Pagination = nil
	}
	return result
}
