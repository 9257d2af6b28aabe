package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/llm"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
	"github.com/ekaya-inc/ekaya-etl/pkg/retry"
)

func newTestGenerator(client llm.TextGenerator) *scriptGenerator {
	g := NewScriptGenerator(client, "sqlite", []string{"WAREHOUSE_PATH", "TARGET_TABLE"}, zap.NewNop()).(*scriptGenerator)
	g.retryConfig = &retry.Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return g
}

func testRequest() GenerationRequest {
	return GenerationRequest{
		File:         models.FileRef{Locator: "/data/orders.csv", Filename: "orders.csv"},
		Requirements: "drop rows without an id",
		TargetTable:  "ETL_ORDERS",
	}
}

func TestExtractScript(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		want    string
		wantErr bool
	}{
		{
			name: "python fence",
			resp: "Here is the script:\n```python\nimport os\nprint(os.environ['TARGET_TABLE'])\n```\nGood luck!",
			want: "import os\nprint(os.environ['TARGET_TABLE'])\n",
		},
		{
			name: "bare fence",
			resp: "```\nx = 1\n```",
			want: "x = 1\n",
		},
		{
			name: "first of several blocks",
			resp: "```python\nfirst = True\n```\n\n```python\nsecond = True\n```",
			want: "first = True\n",
		},
		{
			name: "unfenced response",
			resp: "\n\nimport sys\nsys.exit(0)\n\n",
			want: "import sys\nsys.exit(0)\n",
		},
		{
			name: "unfenced response with prose",
			resp: "Here is the complete ETL script you asked for.\nIt reads the file and loads it.\n\n" +
				"**Script:**\nimport os\n# load the rows\nmessage = \"here is the data\"\n\n" +
				"This script loads the data into the warehouse.\n",
			want: "import os\n# load the rows\nmessage = \"here is the data\"\n",
		},
		{
			name:    "prose only",
			resp:    "Certainly! Below is the script.\n**Key features:**\n",
			wantErr: true,
		},
		{
			name:    "empty response",
			resp:    "   \n",
			wantErr: true,
		},
		{
			name:    "empty fenced block",
			resp:    "```python\n   \n```",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractScript(tt.resp)
			if tt.wantErr {
				assert.ErrorIs(t, err, errEmptyScript)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScriptGenerator_Generate(t *testing.T) {
	client := llm.NewMockClient()
	client.Response = "```python\nprint('load')\n```"
	g := newTestGenerator(client)

	script, err := g.Generate(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, "print('load')\n", script)
	assert.Equal(t, 1, client.Calls())

	prompt := client.Prompts()[0]
	assert.Contains(t, prompt, "/data/orders.csv")
	assert.Contains(t, prompt, "drop rows without an id")
	assert.Contains(t, prompt, "ETL_ORDERS")
	assert.Contains(t, prompt, "Profiling was not available")
}

func TestScriptGenerator_RetriesTransientFailureOnce(t *testing.T) {
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		if len(client.Prompts()) == 1 {
			return "", llm.NewError(llm.ErrorTypeRateLimit, "rate limited", true, nil)
		}
		return "x = 1", nil
	}
	g := newTestGenerator(client)

	script, err := g.Generate(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", script)
	assert.Equal(t, 2, client.Calls())
}

func TestScriptGenerator_GivesUpAfterOneRetry(t *testing.T) {
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "", llm.NewError(llm.ErrorTypeEndpoint, "service unavailable", true, nil)
	}
	g := newTestGenerator(client)

	_, err := g.Generate(context.Background(), testRequest())

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 2, genErr.Attempts)
	assert.Equal(t, 2, client.Calls())
}

func TestScriptGenerator_PermanentFailureNotRetried(t *testing.T) {
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "", llm.NewError(llm.ErrorTypeAuth, "invalid api key", false, errors.New("401"))
	}
	g := newTestGenerator(client)

	_, err := g.Generate(context.Background(), testRequest())

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 1, genErr.Attempts)
	assert.True(t, strings.Contains(err.Error(), "invalid api key"))

	var llmErr *llm.Error
	assert.ErrorAs(t, err, &llmErr)
}

func TestScriptGenerator_EmptyResponseFails(t *testing.T) {
	client := llm.NewMockClient()
	client.Response = ""
	g := newTestGenerator(client)

	_, err := g.Generate(context.Background(), testRequest())

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.ErrorIs(t, err, errEmptyScript)
	assert.Equal(t, 1, client.Calls())
}
