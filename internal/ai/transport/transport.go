// Package transport holds the HTTP plumbing and sentinel errors shared by the
// generative-AI provider implementations.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

// maxErrorBody caps how much of a failed response body is quoted in errors.
const maxErrorBody = 512

// PostJSON marshals body, POSTs it to url and decodes a 2xx response into out.
// Transport failures and non-2xx statuses are mapped onto the sentinel errors.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ClassifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrInvalidResponse, err)
	}
	return nil
}

// ClassifyError maps transport-level errors to sentinel errors.
func ClassifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// DecodeObject parses model output text as a single JSON object. Markdown code
// fences and prose around the outermost braces are tolerated.
func DecodeObject(text string) (models.Prediction, error) {
	s := strings.TrimSpace(text)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrInvalidResponse)
	}

	var out models.Prediction
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return out, nil
}

// SchemaInstruction renders the JSON-only instruction appended to prompts for
// providers without native structured output.
func SchemaInstruction(schema map[string]any) string {
	if len(schema) == 0 {
		return "Respond with a single JSON object and nothing else."
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return "Respond with a single JSON object and nothing else."
	}
	return "Respond with a single JSON object that conforms to this JSON schema and nothing else:\n" + string(b)
}

// GroundingNote is prepended when the caller asks for internet context; none
// of the providers browse, so the model is told to rely on established guidance.
const GroundingNote = "Ground the answer in current published clinical guidelines where relevant."

// BuildPrompt assembles the final prompt text for a request.
func BuildPrompt(req models.GenerateRequest, withSchema bool) string {
	var b strings.Builder
	if req.AddContextFromInternet {
		b.WriteString(GroundingNote)
		b.WriteString("\n\n")
	}
	b.WriteString(req.Prompt)
	if withSchema {
		b.WriteString("\n\n")
		b.WriteString(SchemaInstruction(req.ResponseSchema))
	}
	return b.String()
}
