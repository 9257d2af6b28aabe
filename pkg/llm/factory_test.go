package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_SelectsProvider(t *testing.T) {
	gen, err := New(&Config{Endpoint: "http://localhost:8080/v1", Model: "m"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Client{}, gen)

	gen, err = New(&Config{Provider: "Anthropic", Model: "claude", APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, gen)
	assert.Equal(t, "claude", gen.GetModel())

	_, err = New(&Config{Provider: "bedrock"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported llm provider")

	_, err = New(&Config{Provider: "openai"}, zap.NewNop())
	assert.Error(t, err)
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	m.Response = "ok"

	out, err := m.GenerateResponse(context.Background(), "p1", "s", 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	m.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return prompt + "!", nil
	}
	out, _ = m.GenerateResponse(context.Background(), "p2", "s", 0)
	assert.Equal(t, "p2!", out)
	assert.Equal(t, 2, m.Calls())
	assert.Equal(t, []string{"p1", "p2"}, m.Prompts())
}

func TestWorkflowIDContext(t *testing.T) {
	assert.Empty(t, WorkflowIDFrom(context.Background()))
	assert.Equal(t, "etl_1", WorkflowIDFrom(WithWorkflowID(context.Background(), "etl_1")))
}
