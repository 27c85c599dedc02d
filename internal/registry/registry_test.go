package registry

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/internal/store/memory"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func addModel(t *testing.T, st *memory.Store, id, modelType string, local, active bool, age int) {
	t.Helper()
	var backend models.Backend = models.RemoteBackend{}
	if local {
		backend = models.LocalBackend{FileURL: "https://files/" + id}
	}
	require.NoError(t, st.CreateModel(context.Background(), &models.ModelRecord{
		ID:        id,
		ModelName: "name-" + id,
		Version:   "1",
		ModelType: modelType,
		IsActive:  active,
		Backend:   backend,
		CreatedAt: base.Add(time.Duration(age) * time.Minute),
	}))
}

func addConfig(t *testing.T, st *memory.Store, infra models.Infrastructure, opts ...store.ConfigUpdateOption) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateSystemConfiguration(ctx, &models.SystemConfiguration{ID: "cfg", ActiveModelType: infra}))
	if len(opts) > 0 {
		require.NoError(t, st.UpdateSystemConfiguration(ctx, "cfg", opts...))
	}
}

func config(t *testing.T, st *memory.Store) *models.SystemConfiguration {
	t.Helper()
	cfgs, err := st.ListSystemConfigurations(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, cfgs)
	return cfgs[0]
}

func isActive(t *testing.T, st *memory.Store, id string) bool {
	t.Helper()
	m, err := st.GetModel(context.Background(), id)
	require.NoError(t, err)
	return m.IsActive
}

func ptr(s string) *string { return &s }

// fakeLocker is an in-process Locker.
type fakeLocker struct {
	mu       sync.Mutex
	holder   string
	acquires int
	releases int
	err      error
}

func (l *fakeLocker) AcquireLock(_ context.Context, _, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	l.acquires++
	if l.holder != "" {
		return false, nil
	}
	l.holder = token
	return true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, _, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	if l.holder == token {
		l.holder = ""
	}
	return nil
}

// --- SwitchInfrastructure ---

func TestSwitchInfrastructure_RefusesLocalWithoutLocalModels(t *testing.T) {
	st := memory.New()
	addModel(t, st, "r1", models.TypeHeartDisease, false, true, 0)
	addConfig(t, st, models.InfraRemote)

	_, err := NewService(st).SwitchInfrastructure(context.Background(), models.InfraLocal)
	assert.ErrorIs(t, err, ErrNoLocalModels)
	assert.Equal(t, models.InfraRemote, config(t, st).ActiveModelType)
	assert.True(t, isActive(t, st, "r1"))
}

func TestSwitchInfrastructure_Invalid(t *testing.T) {
	_, err := NewService(memory.New()).SwitchInfrastructure(context.Background(), "cloud")
	assert.ErrorIs(t, err, ErrInvalidInfrastructure)
}

func TestSwitchInfrastructure_ToLocalRestoresPinnedModels(t *testing.T) {
	st := memory.New()
	addModel(t, st, "r1", models.TypeHeartDisease, false, true, 0)
	addModel(t, st, "r2", models.TypeImageClassification, false, true, 1)
	addModel(t, st, "l1", models.TypeHeartDisease, true, false, 2)
	addModel(t, st, "l2", models.TypeSymptomAnalysis, true, false, 3)
	addConfig(t, st, models.InfraRemote,
		store.WithModelPointer(models.InfraLocal, models.CategoryHeartDisease, ptr("l1")),
		store.WithModelPointer(models.InfraLocal, models.CategoryImageAnalysis, ptr("deleted")))

	cfg, err := NewService(st).SwitchInfrastructure(context.Background(), models.InfraLocal)
	require.NoError(t, err)
	assert.Equal(t, models.InfraLocal, cfg.ActiveModelType)
	assert.Equal(t, models.InfraLocal, config(t, st).ActiveModelType)

	assert.False(t, isActive(t, st, "r1"))
	assert.False(t, isActive(t, st, "r2"))
	assert.True(t, isActive(t, st, "l1"), "pinned model reactivated")
	assert.False(t, isActive(t, st, "l2"))
}

func TestSwitchInfrastructure_ToRemote(t *testing.T) {
	st := memory.New()
	addModel(t, st, "l1", models.TypeHeartDisease, true, true, 0)
	addModel(t, st, "r1", models.TypeHeartDisease, false, false, 1)
	addConfig(t, st, models.InfraLocal,
		store.WithModelPointer(models.InfraRemote, models.CategoryHeartDisease, ptr("r1")))

	_, err := NewService(st).SwitchInfrastructure(context.Background(), models.InfraRemote)
	require.NoError(t, err)
	assert.False(t, isActive(t, st, "l1"))
	assert.True(t, isActive(t, st, "r1"))
}

func TestSwitchInfrastructure_SelfHealsConfiguration(t *testing.T) {
	st := memory.New()
	addModel(t, st, "l1", models.TypeHeartDisease, true, false, 0)

	cfg, err := NewService(st).SwitchInfrastructure(context.Background(), models.InfraLocal)
	require.NoError(t, err)
	assert.Equal(t, models.InfraLocal, cfg.ActiveModelType)
	assert.Equal(t, models.InfraLocal, config(t, st).ActiveModelType)
}

// --- ToggleModelActive ---

func TestToggle_RejectsInfrastructureMismatch(t *testing.T) {
	st := memory.New()
	addModel(t, st, "l1", models.TypeHeartDisease, true, false, 0)
	addConfig(t, st, models.InfraRemote)

	_, err := NewService(st).ToggleModelActive(context.Background(), "l1")
	assert.ErrorIs(t, err, ErrInfrastructureMismatch)
	assert.False(t, isActive(t, st, "l1"))
}

func TestToggle_NotFound(t *testing.T) {
	st := memory.New()
	addConfig(t, st, models.InfraLocal)

	_, err := NewService(st).ToggleModelActive(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestToggle_ActivateDeactivatesBucketPeersAndPins(t *testing.T) {
	st := memory.New()
	addModel(t, st, "hd", models.TypeHeartDisease, true, true, 0)
	addModel(t, st, "sym", models.TypeSymptomAnalysis, true, false, 1)
	addModel(t, st, "img", models.TypeImageClassification, true, true, 2)
	addModel(t, st, "remote", models.TypeHeartDisease, false, true, 3)
	addConfig(t, st, models.InfraLocal)
	ctx := context.Background()

	m, err := NewService(st).ToggleModelActive(ctx, "sym")
	require.NoError(t, err)
	assert.True(t, m.IsActive)

	assert.True(t, isActive(t, st, "sym"))
	assert.False(t, isActive(t, st, "hd"), "same bucket peer deactivated")
	assert.True(t, isActive(t, st, "img"), "other bucket untouched")
	assert.True(t, isActive(t, st, "remote"), "other infrastructure untouched")
	assert.Equal(t, "sym", config(t, st).PointerFor(models.InfraLocal, models.CategoryHeartDisease))
}

func TestToggle_DeactivateClearsPin(t *testing.T) {
	st := memory.New()
	addModel(t, st, "img", models.TypeImageClassification, false, true, 0)
	addConfig(t, st, models.InfraRemote,
		store.WithModelPointer(models.InfraRemote, models.CategoryImageAnalysis, ptr("img")))

	m, err := NewService(st).ToggleModelActive(context.Background(), "img")
	require.NoError(t, err)
	assert.False(t, m.IsActive)
	assert.False(t, isActive(t, st, "img"))
	assert.Nil(t, config(t, st).ActiveRemoteImageAnalysisModelID)
}

func TestToggle_UnbucketedTypeLeavesPointersAlone(t *testing.T) {
	st := memory.New()
	addModel(t, st, "ecg1", "ecg", true, false, 0)
	addModel(t, st, "ecg2", "ecg", true, true, 1)
	addConfig(t, st, models.InfraLocal,
		store.WithModelPointer(models.InfraLocal, models.CategoryHeartDisease, ptr("hd")))

	_, err := NewService(st).ToggleModelActive(context.Background(), "ecg1")
	require.NoError(t, err)
	assert.True(t, isActive(t, st, "ecg1"))
	assert.True(t, isActive(t, st, "ecg2"))
	assert.Equal(t, "hd", config(t, st).PointerFor(models.InfraLocal, models.CategoryHeartDisease))
}

func TestToggle_AtMostOneActivePerBucket(t *testing.T) {
	st := memory.New()
	ids := []string{"a", "b", "c", "d"}
	types := []string{models.TypeHeartDisease, models.TypeSymptomAnalysis, models.TypeHeartDisease, models.TypeSymptomAnalysis}
	for i, id := range ids {
		addModel(t, st, id, types[i], true, false, i)
	}
	addConfig(t, st, models.InfraLocal)
	svc := NewService(st)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	for step := 0; step < 200; step++ {
		id := ids[rng.Intn(len(ids))]
		_, err := svc.ToggleModelActive(ctx, id)
		require.NoError(t, err)

		active := 0
		for _, other := range ids {
			if isActive(t, st, other) {
				active++
			}
		}
		require.LessOrEqual(t, active, 1, "step %d toggled %s", step, id)

		pin := config(t, st).PointerFor(models.InfraLocal, models.CategoryHeartDisease)
		if active == 1 {
			assert.True(t, isActive(t, st, pin), "pointer names the active model")
		} else {
			assert.Empty(t, pin)
		}
	}
}

// --- Locking ---

func TestActivationLock_HeldElsewhere(t *testing.T) {
	st := memory.New()
	addModel(t, st, "l1", models.TypeHeartDisease, true, false, 0)
	addConfig(t, st, models.InfraLocal)
	locker := &fakeLocker{holder: "someone-else"}
	svc := NewService(st, WithLocker(locker, time.Second))

	_, err := svc.ToggleModelActive(context.Background(), "l1")
	assert.ErrorIs(t, err, ErrActivationInProgress)
	assert.False(t, isActive(t, st, "l1"))

	_, err = svc.SwitchInfrastructure(context.Background(), models.InfraRemote)
	assert.ErrorIs(t, err, ErrActivationInProgress)
}

func TestActivationLock_ReleasedAfterUse(t *testing.T) {
	st := memory.New()
	addModel(t, st, "l1", models.TypeHeartDisease, true, false, 0)
	addConfig(t, st, models.InfraLocal)
	locker := &fakeLocker{}
	svc := NewService(st, WithLocker(locker, time.Second))
	ctx := context.Background()

	_, err := svc.ToggleModelActive(ctx, "l1")
	require.NoError(t, err)
	// Failed operations release the lock too.
	_, err = svc.ToggleModelActive(ctx, "missing")
	require.Error(t, err)
	_, err = svc.ToggleModelActive(ctx, "l1")
	require.NoError(t, err)

	assert.Equal(t, 3, locker.acquires)
	assert.Equal(t, 3, locker.releases)
	assert.Empty(t, locker.holder)
}

func TestActivationLock_AcquireError(t *testing.T) {
	st := memory.New()
	addConfig(t, st, models.InfraLocal)
	svc := NewService(st, WithLocker(&fakeLocker{err: errors.New("redis down")}, time.Second))

	_, err := svc.SwitchInfrastructure(context.Background(), models.InfraRemote)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

// --- Create ---

func validParams() ModelParams {
	return ModelParams{
		ModelName:            "Cleveland GBM",
		Version:              "2.1",
		ModelType:            models.TypeHeartDisease,
		Accuracy:             88,
		PerformanceMetrics:   &models.PerformanceMetrics{Precision: 0.9, Recall: 0.85, F1: 0.87},
		MockPredictionOutput: json.RawMessage(`{"risk_level":"low","risk_score":15}`),
	}
}

func TestCreateLocalModel(t *testing.T) {
	st := memory.New()
	svc := NewService(st)

	m, err := svc.CreateLocalModel(context.Background(), LocalModelParams{ModelParams: validParams(), FileURL: "s3://models/gbm.pkl"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.IsActive)
	assert.True(t, m.IsLocal())
	assert.Equal(t, "low", m.MockPredictionOutput["risk_level"])

	stored, err := st.GetModel(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3://models/gbm.pkl", stored.FileURL())
}

func TestCreateLocalModel_RequiresFile(t *testing.T) {
	_, err := NewService(memory.New()).CreateLocalModel(context.Background(), LocalModelParams{ModelParams: validParams()})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestCreateRemoteModel(t *testing.T) {
	st := memory.New()
	p := validParams()
	p.MockPredictionOutput = nil

	m, err := NewService(st).CreateRemoteModel(context.Background(), RemoteModelParams{
		ModelParams: p,
		APIEndpoint: "https://models.example.com/v1/predict",
		APIKey:      "secret",
	})
	require.NoError(t, err)
	assert.False(t, m.IsLocal())
	assert.Nil(t, m.MockPredictionOutput)
	assert.Equal(t, models.RemoteBackend{Endpoint: "https://models.example.com/v1/predict", APIKey: "secret"}, m.Backend)
}

func TestCreateModel_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *ModelParams)
	}{
		{"missing name", func(p *ModelParams) { p.ModelName = "  " }},
		{"missing version", func(p *ModelParams) { p.Version = "" }},
		{"missing type", func(p *ModelParams) { p.ModelType = "" }},
		{"accuracy too high", func(p *ModelParams) { p.Accuracy = 101 }},
		{"negative accuracy", func(p *ModelParams) { p.Accuracy = -1 }},
		{"recall above one", func(p *ModelParams) { p.PerformanceMetrics.Recall = 1.5 }},
		{"mock not json", func(p *ModelParams) { p.MockPredictionOutput = json.RawMessage(`{risk`) }},
		{"mock is array", func(p *ModelParams) { p.MockPredictionOutput = json.RawMessage(`["low"]`) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := memory.New()
			p := validParams()
			tc.mutate(&p)

			_, err := NewService(st).CreateRemoteModel(context.Background(), RemoteModelParams{ModelParams: p})
			assert.ErrorIs(t, err, ErrInvalidModel)

			all, err := st.ListModels(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestCreateRemoteModel_BadEndpoint(t *testing.T) {
	for _, ep := range []string{"ftp://x", "not a url", "https://"} {
		_, err := NewService(memory.New()).CreateRemoteModel(context.Background(), RemoteModelParams{
			ModelParams: validParams(),
			APIEndpoint: ep,
		})
		assert.ErrorIs(t, err, ErrInvalidModel, ep)
	}
}

// --- ActiveModelName ---

func TestActiveModelName(t *testing.T) {
	ctx := context.Background()

	t.Run("pinned model", func(t *testing.T) {
		st := memory.New()
		addModel(t, st, "l1", models.TypeHeartDisease, true, false, 0)
		addConfig(t, st, models.InfraLocal,
			store.WithModelPointer(models.InfraLocal, models.CategoryHeartDisease, ptr("l1")))
		name, err := NewService(st).ActiveModelName(ctx, models.TypeHeartDisease)
		require.NoError(t, err)
		assert.Equal(t, "name-l1", name)
	})

	t.Run("compatible active model", func(t *testing.T) {
		st := memory.New()
		addModel(t, st, "s1", models.TypeSymptomAnalysis, true, true, 0)
		addConfig(t, st, models.InfraLocal)
		name, err := NewService(st).ActiveModelName(ctx, models.TypeHeartDisease)
		require.NoError(t, err)
		assert.Equal(t, "name-s1", name)
	})

	t.Run("remote default", func(t *testing.T) {
		st := memory.New()
		addConfig(t, st, models.InfraRemote)
		name, err := NewService(st).ActiveModelName(ctx, models.TypeImageClassification)
		require.NoError(t, err)
		assert.Equal(t, "Default InvokeLLM", name)
	})

	t.Run("local none", func(t *testing.T) {
		st := memory.New()
		addModel(t, st, "l1", models.TypeHeartDisease, true, false, 0)
		addConfig(t, st, models.InfraLocal)
		name, err := NewService(st).ActiveModelName(ctx, models.TypeHeartDisease)
		require.NoError(t, err)
		assert.Equal(t, "None", name)
	})

	t.Run("active models map", func(t *testing.T) {
		st := memory.New()
		addModel(t, st, "r1", models.TypeHeartDisease, false, true, 0)
		addConfig(t, st, models.InfraRemote)
		names, err := NewService(st).ActiveModels(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			models.TypeHeartDisease:        "name-r1",
			models.TypeImageClassification: "Default InvokeLLM",
		}, names)
	})
}
