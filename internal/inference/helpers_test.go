package inference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/internal/store/memory"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type localCall struct {
	ModelID string
	Input   models.FeatureVector
}

type fakeLocal struct {
	mu      sync.Mutex
	calls   []localCall
	predict func(modelID string, in models.FeatureVector) models.LocalPrediction
}

func (f *fakeLocal) Predict(_ context.Context, modelID string, in models.FeatureVector) models.LocalPrediction {
	f.mu.Lock()
	f.calls = append(f.calls, localCall{ModelID: modelID, Input: in})
	f.mu.Unlock()
	if f.predict != nil {
		return f.predict(modelID, in)
	}
	return models.LocalPrediction{Error: "no executor configured"}
}

func localReturning(data models.Prediction) *fakeLocal {
	return &fakeLocal{predict: func(string, models.FeatureVector) models.LocalPrediction {
		return models.LocalPrediction{Data: data}
	}}
}

func localFailing(msg string) *fakeLocal {
	return &fakeLocal{predict: func(string, models.FeatureVector) models.LocalPrediction {
		return models.LocalPrediction{Error: msg}
	}}
}

// brokenModels fails selected model lookups while delegating the rest.
type brokenModels struct {
	store.ModelStore
	getErr    error
	filterErr error
}

func (b *brokenModels) GetModel(ctx context.Context, id string) (*models.ModelRecord, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.ModelStore.GetModel(ctx, id)
}

func (b *brokenModels) FilterModels(ctx context.Context, f store.ModelFilter) ([]*models.ModelRecord, error) {
	if b.filterErr != nil {
		return nil, b.filterErr
	}
	return b.ModelStore.FilterModels(ctx, f)
}

// --- seeding ---

var seedBase = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type modelSeed struct {
	id        string
	modelType string
	local     bool
	active    bool
	mock      models.Prediction
	// age orders records; larger is newer.
	age int
}

func seedModel(t *testing.T, st *memory.Store, s modelSeed) *models.ModelRecord {
	t.Helper()
	var backend models.Backend = models.RemoteBackend{Endpoint: "https://api.example.com"}
	if s.local {
		backend = models.LocalBackend{FileURL: "https://files.example.com/" + s.id + ".pkl"}
	}
	m := &models.ModelRecord{
		ID:                   s.id,
		ModelName:            "model " + s.id,
		Version:              "1.0",
		ModelType:            s.modelType,
		IsActive:             s.active,
		Backend:              backend,
		MockPredictionOutput: s.mock,
		CreatedAt:            seedBase.Add(time.Duration(s.age) * time.Minute),
		UpdatedAt:            seedBase.Add(time.Duration(s.age) * time.Minute),
	}
	require.NoError(t, st.CreateModel(context.Background(), m))
	return m
}

func seedConfig(t *testing.T, st *memory.Store, infra models.Infrastructure, opts ...store.ConfigUpdateOption) *models.SystemConfiguration {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateSystemConfiguration(ctx, &models.SystemConfiguration{
		ID: "cfg", ActiveModelType: infra, CreatedAt: seedBase, UpdatedAt: seedBase,
	}))
	if len(opts) > 0 {
		require.NoError(t, st.UpdateSystemConfiguration(ctx, "cfg", opts...))
	}
	cfgs, err := st.ListSystemConfigurations(ctx)
	require.NoError(t, err)
	return cfgs[0]
}

func ptr(s string) *string { return &s }

// documentSchema is the image-analysis response schema shape.
func documentSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"document_analysis":        map[string]any{"type": "object"},
			"patient_correlation":      map[string]any{"type": "object"},
			"clinical_recommendations": map[string]any{"type": "object"},
			"risk_assessment":          map[string]any{"type": "object"},
		},
	}
}
