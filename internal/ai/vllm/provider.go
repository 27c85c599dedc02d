package vllm

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/cardiotriage/internal/ai/transport"
	"github.com/kiranshivaraju/cardiotriage/internal/config"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Provider implements models.AIProvider against a vLLM OpenAI-compatible server.
type Provider struct {
	cfg    config.VLLMConfig
	client *http.Client
}

func NewProvider(cfg config.VLLMConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "vllm" }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.Prediction, error) {
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	return transport.ChatCompletion(ctx, p.client, url, nil, transport.NewChatRequest(p.cfg.Model, req))
}

var _ models.AIProvider = (*Provider)(nil)
