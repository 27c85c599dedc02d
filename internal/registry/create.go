package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// ModelParams are the fields shared by local and remote registrations.
type ModelParams struct {
	ModelName          string
	Version            string
	ModelType          string
	Description        string
	Accuracy           float64
	PerformanceMetrics *models.PerformanceMetrics
	// MockPredictionOutput is raw JSON. When present it must be an object;
	// it is served if live inference fails.
	MockPredictionOutput json.RawMessage
}

type LocalModelParams struct {
	ModelParams
	FileURL string
}

type RemoteModelParams struct {
	ModelParams
	APIEndpoint string
	APIKey      string
}

// CreateLocalModel registers a model served by the local executor. New models
// start inactive.
func (s *Service) CreateLocalModel(ctx context.Context, p LocalModelParams) (*models.ModelRecord, error) {
	if strings.TrimSpace(p.FileURL) == "" {
		return nil, fmt.Errorf("%w: a model file is required for local models", ErrInvalidModel)
	}
	return s.create(ctx, p.ModelParams, models.LocalBackend{FileURL: p.FileURL})
}

// CreateRemoteModel registers a model reached through an external API.
func (s *Service) CreateRemoteModel(ctx context.Context, p RemoteModelParams) (*models.ModelRecord, error) {
	if p.APIEndpoint != "" {
		u, err := url.Parse(p.APIEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: api_endpoint must be an http(s) URL", ErrInvalidModel)
		}
	}
	return s.create(ctx, p.ModelParams, models.RemoteBackend{Endpoint: p.APIEndpoint, APIKey: p.APIKey})
}

func (s *Service) create(ctx context.Context, p ModelParams, backend models.Backend) (*models.ModelRecord, error) {
	mock, err := validate(p)
	if err != nil {
		return nil, err
	}

	now := s.now()
	m := &models.ModelRecord{
		ID:                   uuid.NewString(),
		ModelName:            strings.TrimSpace(p.ModelName),
		Version:              strings.TrimSpace(p.Version),
		Description:          p.Description,
		ModelType:            p.ModelType,
		Backend:              backend,
		Accuracy:             p.Accuracy,
		PerformanceMetrics:   p.PerformanceMetrics,
		MockPredictionOutput: mock,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.CreateModel(ctx, m); err != nil {
		return nil, fmt.Errorf("creating model: %w", err)
	}
	return m, nil
}

func validate(p ModelParams) (models.Prediction, error) {
	if strings.TrimSpace(p.ModelName) == "" {
		return nil, fmt.Errorf("%w: model_name is required", ErrInvalidModel)
	}
	if strings.TrimSpace(p.Version) == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidModel)
	}
	if strings.TrimSpace(p.ModelType) == "" {
		return nil, fmt.Errorf("%w: model_type is required", ErrInvalidModel)
	}
	if p.Accuracy < 0 || p.Accuracy > 100 {
		return nil, fmt.Errorf("%w: accuracy must be between 0 and 100", ErrInvalidModel)
	}
	if pm := p.PerformanceMetrics; pm != nil {
		for name, v := range map[string]float64{"precision": pm.Precision, "recall": pm.Recall, "f1": pm.F1} {
			if v < 0 || v > 1 {
				return nil, fmt.Errorf("%w: %s must be between 0 and 1", ErrInvalidModel, name)
			}
		}
	}

	if len(p.MockPredictionOutput) == 0 || string(p.MockPredictionOutput) == "null" {
		return nil, nil
	}
	var mock models.Prediction
	if err := json.Unmarshal(p.MockPredictionOutput, &mock); err != nil {
		return nil, fmt.Errorf("%w: mock_prediction_output must be a JSON object", ErrInvalidModel)
	}
	return mock, nil
}
