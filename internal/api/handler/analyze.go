package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/cardiotriage/internal/ai"
	"github.com/kiranshivaraju/cardiotriage/internal/api/response"
	"github.com/kiranshivaraju/cardiotriage/internal/inference"
)

const (
	HeaderInferenceSource = "X-Inference-Source"
	HeaderInferenceModel  = "X-Inference-Model"
)

// Analyzer routes one analysis request.
type Analyzer interface {
	Analyze(ctx context.Context, req inference.Request) inference.Outcome
}

type analyzeRequest struct {
	Prompt                 string         `json:"prompt"`
	ResponseSchema         map[string]any `json:"response_schema"`
	StructuredInput        map[string]any `json:"structured_input"`
	AnalysisType           string         `json:"analysis_type"`
	AddContextFromInternet bool           `json:"add_context_from_internet"`
}

// NewAnalyzeHandler returns the handler for POST /api/v1/analyze. The body
// is the prediction object itself: a real or fallback result, or the
// no_model_active sentinel. X-Inference-Source says which.
func NewAnalyzeHandler(a Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Prompt == "" && len(req.StructuredInput) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"prompt or structured_input is required", nil)
			return
		}

		out := a.Analyze(r.Context(), inference.Request{
			Prompt:                 req.Prompt,
			ResponseSchema:         req.ResponseSchema,
			StructuredInput:        req.StructuredInput,
			AnalysisType:           req.AnalysisType,
			AddContextFromInternet: req.AddContextFromInternet,
		})

		if out.Kind == inference.KindFailure {
			writeAnalysisError(w, out.Err)
			return
		}

		w.Header().Set(HeaderInferenceSource, string(out.Source))
		if out.Model != nil {
			w.Header().Set(HeaderInferenceModel, out.Model.ID)
		}
		response.JSON(w, out.Prediction)
	}
}

func writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ai.ErrInferenceTimeout):
		response.Error(w, http.StatusGatewayTimeout, "AI_INFERENCE_TIMEOUT",
			"AI analysis took too long and was cancelled", nil)
	case errors.Is(err, ai.ErrProviderUnavailable):
		response.Error(w, http.StatusBadGateway, "AI_PROVIDER_UNAVAILABLE",
			"The AI provider is not available", nil)
	case errors.Is(err, ai.ErrInvalidResponse):
		response.Error(w, http.StatusBadGateway, "AI_INVALID_RESPONSE",
			"The AI provider returned an unusable response", nil)
	default:
		slog.Error("analysis failed", "error", err)
		internalError(w)
	}
}
