package models

import (
	"encoding/json"
	"time"
)

// Infrastructure is where a model runs: on the local-inference backend or
// behind an external API.
type Infrastructure string

const (
	InfraLocal  Infrastructure = "local"
	InfraRemote Infrastructure = "remote"
)

// ParseInfrastructure accepts "local" and "remote". The legacy value "api" is
// read as remote.
func ParseInfrastructure(s string) (Infrastructure, bool) {
	switch s {
	case "local":
		return InfraLocal, true
	case "remote", "api":
		return InfraRemote, true
	default:
		return "", false
	}
}

// Backend describes how a model is reached. It is either LocalBackend or
// RemoteBackend and never changes after the model is created.
type Backend interface {
	Infrastructure() Infrastructure
}

// LocalBackend is a model file served by the local-inference backend.
type LocalBackend struct {
	FileURL string
}

func (LocalBackend) Infrastructure() Infrastructure { return InfraLocal }

// RemoteBackend is a model hosted behind an external API.
type RemoteBackend struct {
	Endpoint string
	APIKey   string
}

func (RemoteBackend) Infrastructure() Infrastructure { return InfraRemote }

// PerformanceMetrics are evaluation scores in the range 0..1.
type PerformanceMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// ModelRecord is a registered prediction model.
type ModelRecord struct {
	ID                   string
	ModelName            string
	Version              string
	Description          string
	ModelType            string
	IsActive             bool
	Backend              Backend
	Accuracy             float64
	PerformanceMetrics   *PerformanceMetrics
	MockPredictionOutput Prediction
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Infrastructure derives the model's infrastructure from its backend. A
// record without a backend is treated as remote, matching records whose file
// reference is absent.
func (m *ModelRecord) Infrastructure() Infrastructure {
	if m.Backend == nil {
		return InfraRemote
	}
	return m.Backend.Infrastructure()
}

// IsLocal reports whether the model runs on the local-inference backend.
func (m *ModelRecord) IsLocal() bool {
	return m.Infrastructure() == InfraLocal
}

// FileURL returns the model file reference, or "" for remote models.
func (m *ModelRecord) FileURL() string {
	if b, ok := m.Backend.(LocalBackend); ok {
		return b.FileURL
	}
	return ""
}

type modelRecordJSON struct {
	ID                   string              `json:"id"`
	ModelName            string              `json:"model_name"`
	Version              string              `json:"version"`
	Description          string              `json:"description"`
	ModelType            string              `json:"model_type"`
	IsActive             bool                `json:"is_active"`
	Infrastructure       Infrastructure      `json:"infrastructure"`
	ModelFileURL         string              `json:"model_file_url,omitempty"`
	APIEndpoint          string              `json:"api_endpoint,omitempty"`
	HasAPIKey            bool                `json:"has_api_key"`
	Accuracy             float64             `json:"accuracy"`
	PerformanceMetrics   *PerformanceMetrics `json:"performance_metrics,omitempty"`
	MockPredictionOutput Prediction          `json:"mock_prediction_output,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// MarshalJSON flattens the backend variant. API keys are never serialized.
func (m ModelRecord) MarshalJSON() ([]byte, error) {
	out := modelRecordJSON{
		ID:                   m.ID,
		ModelName:            m.ModelName,
		Version:              m.Version,
		Description:          m.Description,
		ModelType:            m.ModelType,
		IsActive:             m.IsActive,
		Infrastructure:       m.Infrastructure(),
		Accuracy:             m.Accuracy,
		PerformanceMetrics:   m.PerformanceMetrics,
		MockPredictionOutput: m.MockPredictionOutput,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
	switch b := m.Backend.(type) {
	case LocalBackend:
		out.ModelFileURL = b.FileURL
	case RemoteBackend:
		out.APIEndpoint = b.Endpoint
		out.HasAPIKey = b.APIKey != ""
	}
	return json.Marshal(out)
}
