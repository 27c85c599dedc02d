package inference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/cardiotriage/pkg/features"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Invoker runs a resolved model. Local failures are absorbed into mock or
// default predictions; generative failures are returned as KindFailure.
type Invoker struct {
	provider models.AIProvider
	local    models.LocalInference
	timeout  time.Duration
}

// NewInvoker creates an Invoker. A zero timeout leaves generative calls bound
// only by the caller's context.
func NewInvoker(provider models.AIProvider, local models.LocalInference, timeout time.Duration) *Invoker {
	return &Invoker{provider: provider, local: local, timeout: timeout}
}

// Invoke produces the outcome for model under cfg. A nil model yields the
// no-model-active sentinel.
func (inv *Invoker) Invoke(ctx context.Context, model *models.ModelRecord, cfg *models.SystemConfiguration, req Request) Outcome {
	if model == nil {
		return noModelActive(NoModelActive(req.AnalysisType, req.ResponseSchema))
	}

	if !cfg.IsLocal() {
		p, err := inv.generate(ctx, req.Prompt, req)
		if err != nil {
			return failed(err, model)
		}
		return predicted(p, SourceRemote, model)
	}

	return inv.invokeLocal(ctx, model, req)
}

func (inv *Invoker) invokeLocal(ctx context.Context, model *models.ModelRecord, req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("local model prediction panicked", "model_id", model.ID, "panic", r)
			out = inv.recoveredFallback(ctx, model, req)
		}
	}()

	input := features.Extract(req.StructuredInput, req.Prompt)
	res := inv.local.Predict(ctx, model.ID, input)
	if res.Error != "" || res.Data == nil {
		slog.Warn("local model inference failed", "model_id", model.ID, "error", res.Error)
		return inv.fallback(ctx, model, req)
	}

	if !wantsDocumentAnalysis(req.ResponseSchema) {
		return predicted(res.Data, SourceLocal, model)
	}

	prompt, err := synthesisPrompt(livePrediction, req.StructuredInput, res.Data)
	if err != nil {
		slog.Warn("building synthesis prompt", "model_id", model.ID, "error", err)
		return inv.fallback(ctx, model, req)
	}
	return inv.synthesize(ctx, prompt, req, model)
}

// recoveredFallback runs fallback after a local panic. A second panic, from
// mock synthesis or the provider, yields the default prediction.
func (inv *Invoker) recoveredFallback(ctx context.Context, model *models.ModelRecord, req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("fallback after local panic also panicked", "model_id", model.ID, "panic", r)
			out = predicted(DefaultFallback(req.AnalysisType), SourceDefaultFallback, model)
		}
	}()
	return inv.fallback(ctx, model, req)
}

// fallback serves the model's mock output when it has one, otherwise the
// default prediction for the analysis type.
func (inv *Invoker) fallback(ctx context.Context, model *models.ModelRecord, req Request) Outcome {
	mock := model.MockPredictionOutput
	if mock == nil {
		slog.Info("using default fallback prediction", "model_id", model.ID, "analysis_type", req.AnalysisType)
		return predicted(DefaultFallback(req.AnalysisType), SourceDefaultFallback, model)
	}

	slog.Info("using mock prediction output", "model_id", model.ID)
	if !wantsDocumentAnalysis(req.ResponseSchema) {
		return predicted(mock, SourceMock, model)
	}

	prompt, err := synthesisPrompt(mockPrediction, req.StructuredInput, mock)
	if err != nil {
		slog.Warn("building mock synthesis prompt", "model_id", model.ID, "error", err)
		return predicted(DefaultFallback(req.AnalysisType), SourceDefaultFallback, model)
	}
	return inv.synthesize(ctx, prompt, req, model)
}

func (inv *Invoker) synthesize(ctx context.Context, prompt string, req Request, model *models.ModelRecord) Outcome {
	p, err := inv.generate(ctx, prompt, req)
	if err != nil {
		return failed(err, model)
	}
	return predicted(p, SourceSynthesized, model)
}

func (inv *Invoker) generate(ctx context.Context, prompt string, req Request) (models.Prediction, error) {
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	p, err := inv.provider.Generate(ctx, models.GenerateRequest{
		Prompt:                 prompt,
		ResponseSchema:         req.ResponseSchema,
		AddContextFromInternet: req.AddContextFromInternet,
	})
	if err != nil {
		slog.Error("generative analysis failed", "provider", inv.provider.Name(), "error", err)
		return nil, fmt.Errorf("generative analysis via %s: %w", inv.provider.Name(), err)
	}
	return p, nil
}
