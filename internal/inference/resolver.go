package inference

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// DefaultAPIModelID identifies the built-in remote model that serves requests
// in remote mode when no custom remote model is active.
const DefaultAPIModelID = "default-api"

// DefaultAPIModel is the synthetic record standing in for the built-in
// generative backend.
func DefaultAPIModel(analysisType string) *models.ModelRecord {
	return &models.ModelRecord{
		ID:        DefaultAPIModelID,
		ModelName: "InvokeLLM API",
		ModelType: analysisType,
		IsActive:  true,
		Backend:   models.RemoteBackend{},
	}
}

// Resolver picks the model that serves an analysis type under the current
// configuration.
type Resolver struct {
	models store.ModelStore
}

func NewResolver(ms store.ModelStore) *Resolver {
	return &Resolver{models: ms}
}

// Resolve returns the model for analysisType, or nil when none is active.
//
// Order: the configuration's pinned model if it is still active, then the
// first active compatible model of the active infrastructure, then in remote
// mode the built-in API model. Store errors are logged and treated as a miss.
func (r *Resolver) Resolve(ctx context.Context, analysisType string, cfg *models.SystemConfiguration) *models.ModelRecord {
	infra := models.InfraRemote
	if cfg.IsLocal() {
		infra = models.InfraLocal
	}

	if m := r.pinned(ctx, analysisType, infra, cfg); m != nil {
		return m
	}

	if m := r.FindCompatible(ctx, analysisType, infra); m != nil {
		slog.Info("found compatible model",
			"infrastructure", infra,
			"analysis_type", analysisType,
			"model_id", m.ID,
			"model_name", m.ModelName,
		)
		return m
	}

	if infra == models.InfraRemote {
		return DefaultAPIModel(analysisType)
	}
	return nil
}

func (r *Resolver) pinned(ctx context.Context, analysisType string, infra models.Infrastructure, cfg *models.SystemConfiguration) *models.ModelRecord {
	category, ok := models.CategoryForAnalysis(analysisType)
	if !ok {
		return nil
	}
	id := cfg.PointerFor(infra, category)
	if id == "" {
		return nil
	}

	m, err := r.models.GetModel(ctx, id)
	if err != nil {
		slog.Warn("fetching pinned model", "model_id", id, "error", err)
		return nil
	}
	if !m.IsActive {
		return nil
	}
	return m
}

// FindCompatible returns the first active model of infra that can serve
// analysisType, or nil. Exact compatibility-table matches win over legacy
// fuzzy matches; within each pass store order (newest first) decides.
func (r *Resolver) FindCompatible(ctx context.Context, analysisType string, infra models.Infrastructure) *models.ModelRecord {
	active := true
	candidates, err := r.models.FilterModels(ctx, store.ModelFilter{Active: &active, Infrastructure: infra})
	if err != nil {
		slog.Warn("searching compatible models", "analysis_type", analysisType, "error", err)
		return nil
	}

	for _, m := range candidates {
		if models.IsCompatible(analysisType, m.ModelType) {
			return m
		}
	}
	for _, m := range candidates {
		if legacyTypeMatch(analysisType, m.ModelType) {
			slog.Warn("model matched by legacy type name", "model_id", m.ID, "model_type", m.ModelType)
			return m
		}
	}
	return nil
}

// legacyTypeMatch tolerates drift in stored model_type strings ("Heart
// Disease", "symptom_analysis_v2"). Both sides are lower-cased with
// underscores and whitespace removed, then compared for equality or containment
// in either direction.
func legacyTypeMatch(analysisType, modelType string) bool {
	mt := normalizeType(modelType)
	if mt == "" {
		return false
	}
	for _, t := range models.CompatibleModelTypes(analysisType) {
		ct := normalizeType(t)
		if ct == "" {
			continue
		}
		if mt == ct || strings.Contains(mt, ct) || strings.Contains(ct, mt) {
			return true
		}
	}
	return false
}

func normalizeType(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
