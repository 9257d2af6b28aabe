// Package llm provides text-generation clients for OpenAI-compatible and
// Anthropic endpoints behind a single interface.
package llm

import (
	"context"
)

// TextGenerator is the capability the pipeline needs from a generative
// service: prompt in, text out. Use this interface for dependency injection
// to enable mocking in tests.
type TextGenerator interface {
	// GenerateResponse generates a single completion for the prompt.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure clients implement TextGenerator at compile time.
var (
	_ TextGenerator = (*Client)(nil)
	_ TextGenerator = (*AnthropicClient)(nil)
)
