package openai

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/cardiotriage/internal/ai/transport"
	"github.com/kiranshivaraju/cardiotriage/internal/config"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Provider implements models.AIProvider using the OpenAI chat completions API.
type Provider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.Prediction, error) {
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
	return transport.ChatCompletion(ctx, p.client, url, headers, transport.NewChatRequest(p.cfg.Model, req))
}

var _ models.AIProvider = (*Provider)(nil)
