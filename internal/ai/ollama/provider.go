package ollama

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/cardiotriage/internal/ai/transport"
	"github.com/kiranshivaraju/cardiotriage/internal/config"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Provider implements models.AIProvider using Ollama.
type Provider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "ollama" }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	// Format is either the string "json" or a JSON schema object.
	Format any `json:"format"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate calls /api/generate with streaming disabled. A response schema is
// passed through as Ollama's structured-output format.
func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.Prediction, error) {
	var format any = "json"
	if len(req.ResponseSchema) > 0 {
		format = req.ResponseSchema
	}

	body := generateRequest{
		Model:  p.cfg.Model,
		Prompt: transport.BuildPrompt(req, false),
		Format: format,
	}

	var resp generateResponse
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/generate"
	if err := transport.PostJSON(ctx, p.client, url, nil, body, &resp); err != nil {
		return nil, err
	}
	return transport.DecodeObject(resp.Response)
}

var _ models.AIProvider = (*Provider)(nil)
