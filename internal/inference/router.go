// Package inference routes an analysis request to the active model: it
// resolves which model serves the request, runs it on the local executor or
// the generative backend, and absorbs local failures into fallback
// predictions.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/internal/sysconfig"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Store is the persistence the router reads.
type Store interface {
	store.ModelStore
	store.ConfigStore
}

// Request is one analysis call.
type Request struct {
	Prompt         string
	ResponseSchema map[string]any
	// StructuredInput is patient data or OCR output; it feeds feature
	// extraction and synthesis prompts.
	StructuredInput        map[string]any
	AnalysisType           string
	AddContextFromInternet bool
}

// Router is the single entry point for model-backed analysis.
type Router struct {
	configs  store.ConfigStore
	resolver *Resolver
	invoker  *Invoker
}

// NewRouter creates a Router. timeout bounds each generative call; zero
// means no bound beyond the caller's context.
func NewRouter(st Store, provider models.AIProvider, local models.LocalInference, timeout time.Duration) *Router {
	return &Router{
		configs:  st,
		resolver: NewResolver(st),
		invoker:  NewInvoker(provider, local, timeout),
	}
}

// Analyze reads the configuration, resolves a model and invokes it. The
// configuration is read on every call so admin changes apply immediately.
func (r *Router) Analyze(ctx context.Context, req Request) Outcome {
	if req.AnalysisType == "" {
		req.AnalysisType = models.TypeHeartDisease
	}

	cfg, err := sysconfig.Load(ctx, r.configs)
	if err != nil {
		return failed(fmt.Errorf("loading system configuration: %w", err), nil)
	}

	model := r.resolver.Resolve(ctx, req.AnalysisType, cfg)
	out := r.invoker.Invoke(ctx, model, cfg, req)

	attrs := []any{
		"analysis_type", req.AnalysisType,
		"infrastructure", cfg.ActiveModelType,
		"outcome", out.Kind.String(),
		"source", out.Source,
	}
	if model != nil {
		attrs = append(attrs, "model_id", model.ID)
	}
	slog.Info("analysis routed", attrs...)
	return out
}

// GetAIAnalysis is Analyze in value-or-error form. The no-model-active
// sentinel is a value, not an error; callers check IsNoModelActive.
func (r *Router) GetAIAnalysis(ctx context.Context, prompt string, schema, structuredInput map[string]any, analysisType string) (models.Prediction, error) {
	out := r.Analyze(ctx, Request{
		Prompt:          prompt,
		ResponseSchema:  schema,
		StructuredInput: structuredInput,
		AnalysisType:    analysisType,
	})
	if out.Kind == KindFailure {
		return nil, out.Err
	}
	return out.Prediction, nil
}
