package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// DefaultAnthropicEndpoint is used when no endpoint is configured.
const DefaultAnthropicEndpoint = "https://api.anthropic.com/v1"

// AnthropicClient provides access to the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	endpoint  string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicClient creates a Messages API client.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultAnthropicEndpoint
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	client := anthropic.NewClient(cfg.APIKey,
		anthropic.WithBaseURL(strings.TrimSuffix(endpoint, "/")),
		anthropic.WithHTTPClient(newHTTPClient()))

	return &AnthropicClient{
		client:    client,
		endpoint:  endpoint,
		model:     cfg.Model,
		maxTokens: maxTokens,
		logger:    logger.Named("llm-anthropic"),
	}, nil
}

// GenerateResponse sends one user message with the system prompt and joins
// the text blocks of the reply.
func (c *AnthropicClient) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
) (string, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	start := time.Now()
	temp := float32(temperature)

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      systemMessage,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		llmErr := ClassifyError(err)
		llmErr.Model = c.model
		llmErr.Endpoint = c.endpoint
		return "", llmErr
	}

	text := extractText(resp)
	if text == "" {
		return "", NewErrorWithContext(ErrorTypeResponse, "no text content in response", true, nil, c.model, c.endpoint, 0)
	}

	c.logger.Info("LLM request completed",
		zap.String("model", c.model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *AnthropicClient) GetEndpoint() string {
	return c.endpoint
}

func extractText(resp anthropic.MessagesResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	return sb.String()
}
