package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/lupa/internal/model"
)

// NewProvider creates a new LLM provider based on configuration.
// An empty provider name means LLM is disabled and returns (nil, nil).
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts the application LLM section to a provider config.
// API keys are passed separately; they never live in the config file model.
func ConfigFromModel(c model.LLMConfig, apiKey string) Config {
	cfg := DefaultConfig()
	if c.Enabled {
		cfg.Provider = c.Provider
	}
	cfg.Model = c.Model
	cfg.BaseURL = c.BaseURL
	cfg.APIKey = apiKey
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	return cfg
}
