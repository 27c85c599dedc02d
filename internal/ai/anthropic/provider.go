package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/cardiotriage/internal/ai/transport"
	"github.com/kiranshivaraju/cardiotriage/internal/config"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

const (
	apiVersion = "2023-06-01"
	maxTokens  = 4096
)

// Provider implements models.AIProvider using the Anthropic messages API.
type Provider struct {
	cfg    config.AnthropicConfig
	client *http.Client
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "anthropic" }

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Generate has no native schema mode, so the schema is embedded in the prompt
// and the first text block is parsed as JSON.
func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.Prediction, error) {
	body := messagesRequest{
		Model:     p.cfg.Model,
		MaxTokens: maxTokens,
		System:    "You are a clinical decision-support assistant. Output JSON only.",
		Messages:  []message{{Role: "user", Content: transport.BuildPrompt(req, true)}},
	}
	headers := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": apiVersion,
	}

	var resp messagesResponse
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
	if err := transport.PostJSON(ctx, p.client, url, headers, body, &resp); err != nil {
		return nil, err
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return transport.DecodeObject(block.Text)
		}
	}
	return nil, fmt.Errorf("%w: no text block in response", transport.ErrInvalidResponse)
}

var _ models.AIProvider = (*Provider)(nil)
