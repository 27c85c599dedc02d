package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/cardiotriage/internal/ai"
	"github.com/kiranshivaraju/cardiotriage/internal/ai/mock"
	"github.com/kiranshivaraju/cardiotriage/internal/api"
	"github.com/kiranshivaraju/cardiotriage/internal/api/handler"
	mw "github.com/kiranshivaraju/cardiotriage/internal/api/middleware"
	"github.com/kiranshivaraju/cardiotriage/internal/apikey"
	"github.com/kiranshivaraju/cardiotriage/internal/diagnosis"
	"github.com/kiranshivaraju/cardiotriage/internal/inference"
	"github.com/kiranshivaraju/cardiotriage/internal/registry"
	"github.com/kiranshivaraju/cardiotriage/internal/store/memory"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type counter struct {
	mu   sync.Mutex
	hits map[string]int64
}

func (c *counter) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits[key]++
	return c.hits[key], nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

// executor stands in for the local-inference backend.
type executor struct {
	mu    sync.Mutex
	calls []string
	out   models.LocalPrediction
}

func (e *executor) Predict(_ context.Context, modelID string, _ models.FeatureVector) models.LocalPrediction {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, modelID)
	return e.out
}

func (e *executor) modelIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// ─── test harness ────────────────────────────────────────────────────────────

const testSigningKey = "contract-test-signing-key-0123456789"

type testServer struct {
	server    *httptest.Server
	store     *memory.Store
	provider  *mock.MockProvider
	executor  *executor
	adminKey  string
	doctorKey string
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()

	st := memory.New()
	provider := mock.NewMockProvider()
	exec := &executor{out: models.LocalPrediction{Data: models.Prediction{"risk_level": "moderate", "risk_score": 55.0}}}

	adminKey := seedKey(t, st, "admin", models.ScopeAdmin)
	doctorKey := seedKey(t, st, "doctor", models.ScopeDoctor)

	router := inference.NewRouter(st, provider, exec, 2*time.Second)
	reg := registry.NewService(st)
	diag := diagnosis.NewService(st, []byte(testSigningKey))
	admin := handler.NewModelHandlers(reg)
	diagnoses := handler.NewDiagnosisHandlers(diag)
	keys := handler.NewKeyHandlers(st)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(&counter{hits: map[string]int64{}}, rateLimit),

		HealthHandler:  handler.NewHealthHandler(st, pinger{}),
		AnalyzeHandler: handler.NewAnalyzeHandler(router),

		CreateDiagnosis: diagnoses.Create,
		ListDiagnoses:   diagnoses.List,
		GetDiagnosis:    diagnoses.Get,
		VerifyDiagnosis: diagnoses.Verify,

		ListModels:        admin.List,
		CreateLocalModel:  admin.CreateLocal,
		CreateRemoteModel: admin.CreateRemote,
		ToggleModel:       admin.Toggle,
		GetSettings:       admin.Settings,
		SwitchInfra:       admin.SwitchInfrastructure,
		ActiveModels:      admin.ActiveModels,

		CreateKeyHandler: keys.Create,
		ListKeysHandler:  keys.List,
		RevokeKeyHandler: keys.Revoke,
	}

	srv := httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(srv.Close)

	return &testServer{
		server:    srv,
		store:     st,
		provider:  provider,
		executor:  exec,
		adminKey:  adminKey,
		doctorKey: doctorKey,
	}
}

func seedKey(t *testing.T, st *memory.Store, name string, scopes ...string) string {
	t.Helper()
	raw, key, err := apikey.Generate(name, scopes)
	require.NoError(t, err)
	require.NoError(t, st.CreateAPIKey(context.Background(), key))
	return raw
}

func (ts *testServer) call(t *testing.T, key, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	}
	return resp, parsed
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "expected data object, got %v", body)
	return d
}

func errCode(body map[string]any) any {
	e, _ := body["error"].(map[string]any)
	return e["code"]
}

var heartRequest = map[string]any{
	"prompt":           "Assess cardiac risk for this patient",
	"response_schema":  map[string]any{"type": "object"},
	"structured_input": map[string]any{"age": 63, "gender": "male", "cholesterol": 233},
	"analysis_type":    "heart_disease",
}

// ─── Health ──────────────────────────────────────────────────────────────────

func TestHealth_200_Public(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := ts.call(t, "", "GET", "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", data(t, body)["status"])
}

// ─── Analyze ─────────────────────────────────────────────────────────────────

func TestAnalyze_RemoteDefault(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := ts.call(t, ts.doctorKey, "POST", "/api/v1/analyze", heartRequest)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "remote", resp.Header.Get(handler.HeaderInferenceSource))
	assert.Equal(t, inference.DefaultAPIModelID, resp.Header.Get(handler.HeaderInferenceModel))
	assert.Equal(t, "low", data(t, body)["risk_level"])
	assert.Equal(t, 1, ts.provider.Calls())
}

func TestAnalyze_ActivatedLocalModel(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := ts.call(t, ts.adminKey, "POST", "/api/v1/admin/models/local", map[string]any{
		"model_name":     "Cleveland GBM",
		"version":        "1.0",
		"model_type":     "heart_disease",
		"model_file_url": "s3://models/gbm.pkl",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	modelID := data(t, body)["id"].(string)
	assert.Equal(t, false, data(t, body)["is_active"])

	resp, _ = ts.call(t, ts.adminKey, "PUT", "/api/v1/admin/settings/infrastructure", map[string]any{"active_model_type": "local"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Local mode with nothing active answers with the sentinel.
	resp, body = ts.call(t, ts.doctorKey, "POST", "/api/v1/analyze", heartRequest)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "none", resp.Header.Get(handler.HeaderInferenceSource))
	assert.Equal(t, true, data(t, body)["no_model_active"])

	resp, body = ts.call(t, ts.adminKey, "POST", "/api/v1/admin/models/"+modelID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, data(t, body)["is_active"])

	resp, body = ts.call(t, ts.doctorKey, "POST", "/api/v1/analyze", heartRequest)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "local", resp.Header.Get(handler.HeaderInferenceSource))
	assert.Equal(t, modelID, resp.Header.Get(handler.HeaderInferenceModel))
	assert.Equal(t, "moderate", data(t, body)["risk_level"])
	assert.Equal(t, []string{modelID}, ts.executor.modelIDs())
	assert.Zero(t, ts.provider.Calls())

	resp, body = ts.call(t, ts.adminKey, "GET", "/api/v1/admin/active-models", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Cleveland GBM", data(t, body)["heart_disease"])
	assert.Equal(t, "None", data(t, body)["image_classification"])
}

func TestAnalyze_504_ProviderTimeout(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.provider.GenerateFunc = func(context.Context, models.GenerateRequest) (models.Prediction, error) {
		return nil, ai.ErrInferenceTimeout
	}

	resp, body := ts.call(t, ts.doctorKey, "POST", "/api/v1/analyze", heartRequest)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, "AI_INFERENCE_TIMEOUT", errCode(body))
}

func TestAnalyze_401_MissingToken(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := ts.call(t, "", "POST", "/api/v1/analyze", heartRequest)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", errCode(body))
}

// ─── Activation protocol ─────────────────────────────────────────────────────

func TestSwitchInfrastructure_409_NoLocalModels(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := ts.call(t, ts.adminKey, "PUT", "/api/v1/admin/settings/infrastructure", map[string]any{"active_model_type": "local"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "NO_LOCAL_MODELS", errCode(body))

	resp, body = ts.call(t, ts.adminKey, "GET", "/api/v1/admin/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "remote", data(t, body)["active_model_type"])
}

func TestToggle_409_InfrastructureMismatch(t *testing.T) {
	ts := newTestServer(t, 100)

	_, body := ts.call(t, ts.adminKey, "POST", "/api/v1/admin/models/local", map[string]any{
		"model_name":     "Local",
		"version":        "1",
		"model_type":     "heart_disease",
		"model_file_url": "file:///models/a.onnx",
	})
	modelID := data(t, body)["id"].(string)

	resp, body := ts.call(t, ts.adminKey, "POST", "/api/v1/admin/models/"+modelID+"/toggle", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INFRASTRUCTURE_MISMATCH", errCode(body))
}

func TestCreateModel_400_InvalidMock(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := ts.call(t, ts.adminKey, "POST", "/api/v1/admin/models/remote", map[string]any{
		"model_name":             "Remote",
		"version":                "1",
		"model_type":             "heart_disease",
		"mock_prediction_output": []string{"not", "an", "object"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_MODEL", errCode(body))
}

// ─── Diagnoses ───────────────────────────────────────────────────────────────

func TestDiagnoses_CreateGetVerifyList(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := ts.call(t, ts.doctorKey, "POST", "/api/v1/diagnoses", map[string]any{
		"patient_id":            "patient-3",
		"symptoms":              map[string]any{"chest_pain": "atypical"},
		"vital_signs":           map[string]any{"heart_rate": 88},
		"clinical_observations": "Mild ST elevation",
		"ai_prediction":         map[string]any{"risk_level": "moderate"},
		"treatment_plan":        "Beta blockers",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := data(t, body)
	id := created["id"].(string)
	assert.Equal(t, "completed", created["status"])
	assert.NotEmpty(t, created["content_hash"])
	assert.NotEmpty(t, created["signature"])

	resp, body = ts.call(t, ts.doctorKey, "GET", "/api/v1/diagnoses/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "patient-3", data(t, body)["patient_id"])

	resp, body = ts.call(t, ts.doctorKey, "GET", "/api/v1/diagnoses/"+id+"/verify", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, data(t, body)["valid"])

	resp, body = ts.call(t, ts.adminKey, "GET", "/api/v1/diagnoses?patient_id=patient-3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["total"])
	assert.Equal(t, false, meta["has_next"])
}

func TestDiagnoses_400_And_404(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := ts.call(t, ts.doctorKey, "POST", "/api/v1/diagnoses", map[string]any{"treatment_plan": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_DIAGNOSIS", errCode(body))

	resp, body = ts.call(t, ts.doctorKey, "GET", "/api/v1/diagnoses/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_DIAGNOSIS_ID", errCode(body))

	resp, body = ts.call(t, ts.doctorKey, "GET", "/api/v1/diagnoses/8d0c3f2e-6c1a-4b7e-9b2a-4f3c5d6e7f80", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "DIAGNOSIS_NOT_FOUND", errCode(body))
}

func TestDiagnoses_ListHugePage(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := ts.call(t, ts.doctorKey, "GET", "/api/v1/diagnoses?page=9223372036854775807&limit=100", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])
	meta := body["meta"].(map[string]any)
	assert.Equal(t, false, meta["has_next"])
}

// ─── API keys ────────────────────────────────────────────────────────────────

func TestKeys_CreateUseRevoke(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := ts.call(t, ts.adminKey, "POST", "/api/v1/admin/keys", map[string]any{"name": "ward-2", "scopes": []string{"doctor"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := data(t, body)
	raw := created["key"].(string)
	keyID := created["id"].(string)

	resp, _ = ts.call(t, raw, "GET", "/api/v1/diagnoses", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.call(t, ts.adminKey, "GET", "/api/v1/admin/keys", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), raw, "raw key must never be listed")
	assert.NotContains(t, string(encoded), "key_hash")

	resp, _ = ts.call(t, ts.adminKey, "DELETE", "/api/v1/admin/keys/"+keyID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = ts.call(t, raw, "GET", "/api/v1/diagnoses", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = ts.call(t, ts.adminKey, "DELETE", "/api/v1/admin/keys/"+keyID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "KEY_NOT_FOUND", errCode(body))
}

func TestKeys_400_UnknownScope(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := ts.call(t, ts.adminKey, "POST", "/api/v1/admin/keys", map[string]any{"name": "x", "scopes": []string{"write"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errCode(body))
}

// ─── Scope and rate limit contract ───────────────────────────────────────────

func TestAdminEndpoints_403_ForDoctor(t *testing.T) {
	ts := newTestServer(t, 100)

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/admin/models"},
		{"POST", "/api/v1/admin/models/local"},
		{"POST", "/api/v1/admin/models/x/toggle"},
		{"GET", "/api/v1/admin/settings"},
		{"PUT", "/api/v1/admin/settings/infrastructure"},
		{"GET", "/api/v1/admin/active-models"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			resp, body := ts.call(t, ts.doctorKey, ep.method, ep.path, map[string]any{})
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			assert.Equal(t, "FORBIDDEN", errCode(body))
		})
	}
}

func TestRateLimit_429_Exceeded(t *testing.T) {
	ts := newTestServer(t, 3)

	for i := 0; i < 3; i++ {
		resp, _ := ts.call(t, ts.doctorKey, "GET", "/api/v1/diagnoses", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
	}

	resp, body := ts.call(t, ts.doctorKey, "GET", "/api/v1/diagnoses", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errCode(body))

	// Limits are per key.
	resp, _ = ts.call(t, ts.adminKey, "GET", "/api/v1/diagnoses", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
