// Package models contains shared data models used across the cardiotriage codebase.
package models

import "context"

// Prediction is a schema-shaped analysis result. Its keys are chosen by the
// caller's response schema (risk object, document analysis, or the
// no-model-active sentinel), so it stays a generic JSON object.
type Prediction map[string]any

// AIProvider is the generative backend: given a prompt and a JSON schema it
// returns an object that structurally conforms to the schema.
// Never call specific AI providers directly — always inject this interface.
type AIProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (Prediction, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// GenerateRequest is the input to a generative call.
type GenerateRequest struct {
	Prompt                 string
	ResponseSchema         map[string]any
	AddContextFromInternet bool
}

// LocalInference runs a locally hosted model against a feature vector.
// Implementations must never return a Go error: every failure is reported
// through LocalPrediction.Error.
type LocalInference interface {
	Predict(ctx context.Context, modelID string, input FeatureVector) LocalPrediction
}

// LocalPrediction is the response of the local-inference backend. Exactly one
// of Data and Error is populated.
type LocalPrediction struct {
	Data  Prediction `json:"data,omitempty"`
	Error string     `json:"error,omitempty"`
}
