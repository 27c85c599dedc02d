package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// ChatRequest is the OpenAI-compatible chat completions request body, spoken
// by both OpenAI and vLLM.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type JSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// NewChatRequest builds a chat completion request asking for structured JSON.
func NewChatRequest(model string, req models.GenerateRequest) ChatRequest {
	format := &ResponseFormat{Type: "json_object"}
	if len(req.ResponseSchema) > 0 {
		format = &ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &JSONSchema{Name: "clinical_response", Schema: req.ResponseSchema},
		}
	}
	return ChatRequest{
		Model: model,
		Messages: []ChatMessage{
			{Role: "system", Content: "You are a clinical decision-support assistant. Output JSON only."},
			{Role: "user", Content: BuildPrompt(req, false)},
		},
		ResponseFormat: format,
	}
}

// ChatCompletion posts a chat request to url and decodes the first choice as a JSON object.
func ChatCompletion(ctx context.Context, client *http.Client, url string, headers map[string]string, body ChatRequest) (models.Prediction, error) {
	var resp chatResponse
	if err := PostJSON(ctx, client, url, headers, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrInvalidResponse)
	}
	return DecodeObject(resp.Choices[0].Message.Content)
}
