package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Providers accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// New creates the TextGenerator for cfg.Provider. An empty provider means
// OpenAI-compatible.
func New(cfg *Config, logger *zap.Logger) (TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		client, err := NewClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case ProviderAnthropic:
		client, err := NewAnthropicClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
