// Package localinference talks to the hosted executor that runs uploaded
// local model artifacts.
package localinference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Sentinel errors for executor failures. Predict never returns them; they are
// folded into LocalPrediction.Error and surface only from Health.
var (
	ErrExecutorUnreachable = errors.New("local executor unreachable")
	ErrExecutorTimeout     = errors.New("local executor timeout")
	ErrExecutorError       = errors.New("local executor error")
)

// HTTPClient implements models.LocalInference against the executor's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new executor client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	ModelID   string               `json:"model_id"`
	InputData models.FeatureVector `json:"input_data"`
}

type predictResponse struct {
	Data  models.Prediction `json:"data"`
	Error string            `json:"error"`
}

// Predict runs modelID on input. Every failure is reported through the
// returned value's Error field.
func (c *HTTPClient) Predict(ctx context.Context, modelID string, input models.FeatureVector) models.LocalPrediction {
	data, err := c.predict(ctx, modelID, input)
	if err != nil {
		slog.Warn("local inference failed", "model_id", modelID, "error", err)
		return models.LocalPrediction{Error: err.Error()}
	}
	return models.LocalPrediction{Data: data}
}

func (c *HTTPClient) predict(ctx context.Context, modelID string, input models.FeatureVector) (models.Prediction, error) {
	body, err := json.Marshal(predictRequest{ModelID: modelID, InputData: input})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyError(err)
	}

	var pr predictResponse
	decodeErr := json.Unmarshal(raw, &pr)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && pr.Error != "" {
			return nil, fmt.Errorf("%w: status %d: %s", ErrExecutorError, resp.StatusCode, pr.Error)
		}
		return nil, fmt.Errorf("%w: status %d", ErrExecutorError, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrExecutorError, decodeErr)
	}
	if pr.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrExecutorError, pr.Error)
	}
	if pr.Data == nil {
		return nil, fmt.Errorf("%w: response has neither data nor error", ErrExecutorError)
	}
	return pr.Data, nil
}

// Health checks executor readiness.
func (c *HTTPClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: executor not ready (status %d)", ErrExecutorUnreachable, resp.StatusCode)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrExecutorTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrExecutorTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrExecutorUnreachable, err)
}

// Compile-time check that HTTPClient implements LocalInference.
var _ models.LocalInference = (*HTTPClient)(nil)
