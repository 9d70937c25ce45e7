package llm

import (
	"context"
	"time"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete runs a single prompt and returns the model's text answer
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Ping checks that the provider is configured and reachable
	Ping(ctx context.Context) error
}

// CompletionRequest is one prompt sent to a provider
type CompletionRequest struct {
	System      string
	Prompt      string
	Model       string // overrides Config.Model
	MaxTokens   int
	Temperature float32

	// JSON asks the provider for a JSON object answer where the API supports it
	JSON bool
}

// CompletionResponse is the provider's answer
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, OpenAI-compatible gateways)
	BaseURL string

	// Timeout for API requests
	Timeout time.Duration

	// MaxTokens default for responses
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // disabled
		Timeout:   30 * time.Second,
		MaxTokens: 300,
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return fallback
}

func (c Config) maxTokens(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 300
}
