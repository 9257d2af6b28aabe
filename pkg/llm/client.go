package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client provides access to OpenAI-compatible chat completion endpoints.
type Client struct {
	client    *openai.Client
	endpoint  string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// Config holds configuration for creating a text-generation client.
type Config struct {
	Provider  string // "openai" (any OpenAI-compatible endpoint) or "anthropic"
	Endpoint  string // Base URL, e.g., "https://api.openai.com/v1"
	Model     string // Model name, e.g., "gpt-4o"
	APIKey    string // Optional for local endpoints
	MaxTokens int    // Completion token cap (default: 4096)
}

const defaultMaxTokens = 4096

// NewClient creates a new OpenAI-compatible client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	clientConfig.HTTPClient = newHTTPClient()

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		client:    openai.NewClientWithConfig(clientConfig),
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		maxTokens: maxTokens,
		logger:    logger.Named("llm"),
	}, nil
}

// GenerateResponse sends a system and user message and returns the first
// choice's content.
func (c *Client) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(temperature),
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", c.classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", NewErrorWithContext(ErrorTypeResponse, "no choices in response", true, nil, c.model, c.endpoint, 0)
	}

	c.logger.Info("LLM request completed",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

func (c *Client) classify(err error) error {
	llmErr := ClassifyError(err)
	llmErr.Model = c.model
	llmErr.Endpoint = c.endpoint
	return llmErr
}
