package ai

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kiranshivaraju/cardiotriage/internal/ai/anthropic"
	"github.com/kiranshivaraju/cardiotriage/internal/ai/ollama"
	"github.com/kiranshivaraju/cardiotriage/internal/ai/openai"
	"github.com/kiranshivaraju/cardiotriage/internal/ai/vllm"
	"github.com/kiranshivaraju/cardiotriage/internal/config"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// constructors build each provider from its own section of AIConfig.
var constructors = map[string]func(config.AIConfig) models.AIProvider{
	"ollama":    func(c config.AIConfig) models.AIProvider { return ollama.NewProvider(c.Ollama) },
	"vllm":      func(c config.AIConfig) models.AIProvider { return vllm.NewProvider(c.VLLM) },
	"openai":    func(c config.AIConfig) models.AIProvider { return openai.NewProvider(c.OpenAI) },
	"anthropic": func(c config.AIConfig) models.AIProvider { return anthropic.NewProvider(c.Anthropic) },
}

// NewProvider returns the generative provider selected by cfg.Provider.
// Every provider answers Generate with a JSON object shaped by the request's
// response schema. Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	build, ok := constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown AI provider %q: must be one of %s", cfg.Provider, strings.Join(Names(), ", "))
	}
	return build(cfg), nil
}

// Names lists the supported providers, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
