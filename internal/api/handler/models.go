package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/cardiotriage/internal/api/response"
	"github.com/kiranshivaraju/cardiotriage/internal/registry"
	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Registry is the model administration the admin endpoints expose.
type Registry interface {
	ListModels(ctx context.Context, infra models.Infrastructure) ([]*models.ModelRecord, error)
	CreateLocalModel(ctx context.Context, p registry.LocalModelParams) (*models.ModelRecord, error)
	CreateRemoteModel(ctx context.Context, p registry.RemoteModelParams) (*models.ModelRecord, error)
	ToggleModelActive(ctx context.Context, modelID string) (*models.ModelRecord, error)
	Settings(ctx context.Context) (*models.SystemConfiguration, error)
	SwitchInfrastructure(ctx context.Context, newType models.Infrastructure) (*models.SystemConfiguration, error)
	ActiveModels(ctx context.Context) (map[string]string, error)
}

type modelRequest struct {
	ModelName            string                     `json:"model_name"`
	Version              string                     `json:"version"`
	ModelType            string                     `json:"model_type"`
	Description          string                     `json:"description"`
	Accuracy             float64                    `json:"accuracy"`
	PerformanceMetrics   *models.PerformanceMetrics `json:"performance_metrics"`
	MockPredictionOutput json.RawMessage            `json:"mock_prediction_output"`
}

func (m modelRequest) params() registry.ModelParams {
	return registry.ModelParams{
		ModelName:            m.ModelName,
		Version:              m.Version,
		ModelType:            m.ModelType,
		Description:          m.Description,
		Accuracy:             m.Accuracy,
		PerformanceMetrics:   m.PerformanceMetrics,
		MockPredictionOutput: m.MockPredictionOutput,
	}
}

type ModelHandlers struct {
	reg Registry
}

func NewModelHandlers(reg Registry) *ModelHandlers {
	return &ModelHandlers{reg: reg}
}

// List handles GET /admin/models?infrastructure=local|remote.
func (h *ModelHandlers) List(w http.ResponseWriter, r *http.Request) {
	var infra models.Infrastructure
	if q := r.URL.Query().Get("infrastructure"); q != "" {
		parsed, ok := models.ParseInfrastructure(q)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_INFRASTRUCTURE", "infrastructure must be local or remote", nil)
			return
		}
		infra = parsed
	}

	ms, err := h.reg.ListModels(r.Context(), infra)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	if ms == nil {
		ms = []*models.ModelRecord{}
	}
	response.JSON(w, ms)
}

func (h *ModelHandlers) CreateLocal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		modelRequest
		ModelFileURL string `json:"model_file_url"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.reg.CreateLocalModel(r.Context(), registry.LocalModelParams{
		ModelParams: req.params(),
		FileURL:     req.ModelFileURL,
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	response.Created(w, m)
}

func (h *ModelHandlers) CreateRemote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		modelRequest
		APIEndpoint string `json:"api_endpoint"`
		APIKey      string `json:"api_key"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.reg.CreateRemoteModel(r.Context(), registry.RemoteModelParams{
		ModelParams: req.params(),
		APIEndpoint: req.APIEndpoint,
		APIKey:      req.APIKey,
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	response.Created(w, m)
}

func (h *ModelHandlers) Toggle(w http.ResponseWriter, r *http.Request) {
	m, err := h.reg.ToggleModelActive(r.Context(), chi.URLParam(r, "modelID"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	response.JSON(w, m)
}

func (h *ModelHandlers) Settings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.reg.Settings(r.Context())
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	response.JSON(w, cfg)
}

// SwitchInfrastructure handles PUT /admin/settings/infrastructure.
func (h *ModelHandlers) SwitchInfrastructure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActiveModelType string `json:"active_model_type"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	infra, ok := models.ParseInfrastructure(req.ActiveModelType)
	if !ok {
		response.Error(w, http.StatusBadRequest, "INVALID_INFRASTRUCTURE", "active_model_type must be local or remote", nil)
		return
	}

	cfg, err := h.reg.SwitchInfrastructure(r.Context(), infra)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	response.JSON(w, cfg)
}

func (h *ModelHandlers) ActiveModels(w http.ResponseWriter, r *http.Request) {
	names, err := h.reg.ActiveModels(r.Context())
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	response.JSON(w, names)
}

func writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrInvalidModel):
		response.Error(w, http.StatusBadRequest, "INVALID_MODEL", err.Error(), nil)
	case errors.Is(err, registry.ErrInvalidInfrastructure):
		response.Error(w, http.StatusBadRequest, "INVALID_INFRASTRUCTURE", err.Error(), nil)
	case errors.Is(err, registry.ErrNoLocalModels):
		response.Error(w, http.StatusConflict, "NO_LOCAL_MODELS", err.Error(), nil)
	case errors.Is(err, registry.ErrInfrastructureMismatch):
		response.Error(w, http.StatusConflict, "INFRASTRUCTURE_MISMATCH", err.Error(), nil)
	case errors.Is(err, registry.ErrActivationInProgress):
		response.Error(w, http.StatusConflict, "ACTIVATION_IN_PROGRESS", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "MODEL_NOT_FOUND", "Model not found", nil)
	default:
		slog.Error("registry request failed", "error", err)
		internalError(w)
	}
}
