package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/cardiotriage/internal/ai"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.GenerateRequest) (models.Prediction, error)

	mu       sync.Mutex
	requests []models.GenerateRequest
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Generate(ctx context.Context, req models.GenerateRequest) (models.Prediction, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return models.Prediction{}, nil
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []models.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GenerateRequest(nil), m.requests...)
}

// Calls returns how many times Generate was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// NewMockProvider returns a MockProvider with a canned heart-disease style response.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (models.Prediction, error) {
			return models.Prediction{
				"risk_level": "low",
				"risk_score": float64(20),
				"confidence": float64(80),
				"predicted_conditions": []any{
					map[string]any{"condition": "Stable angina", "severity": "mild"},
				},
			}, nil
		},
	}
}

// NewStaticProvider returns a MockProvider that always answers with out.
func NewStaticProvider(out models.Prediction) *MockProvider {
	return &MockProvider{
		Name_: "mock-static",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (models.Prediction, error) {
			return out, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (models.Prediction, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (models.Prediction, error) {
			<-ctx.Done()
			return nil, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
