package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/llm"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
	"github.com/ekaya-inc/ekaya-etl/pkg/prompts"
	"github.com/ekaya-inc/ekaya-etl/pkg/retry"
)

// errEmptyScript is returned when a response contains no code at all.
var errEmptyScript = errors.New("response contained no script")

// codeBlockPattern matches a fenced block, optionally tagged python.
var codeBlockPattern = regexp.MustCompile("(?s)```(?:python)?\\s*\\n(.*?)\\n```")

// GenerationRequest is the input to a single script generation.
type GenerationRequest struct {
	File         models.FileRef
	Requirements string
	Profile      *models.DatasetProfile // nil in degraded mode
	TargetTable  string
}

// ScriptGenerator turns a file description into executable script text.
type ScriptGenerator interface {
	// Generate returns script source or a *GenerationError.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

type scriptGenerator struct {
	llm           llm.TextGenerator
	retryConfig   *retry.Config
	warehouseType string
	envVarNames   []string
	logger        *zap.Logger
}

// NewScriptGenerator creates a generator. envVarNames are the variables the
// script may read at runtime; values are never placed in the prompt.
func NewScriptGenerator(
	generator llm.TextGenerator,
	warehouseType string,
	envVarNames []string,
	logger *zap.Logger,
) ScriptGenerator {
	return &scriptGenerator{
		llm:           generator,
		retryConfig:   retry.OnceConfig(),
		warehouseType: warehouseType,
		envVarNames:   envVarNames,
		logger:        logger.Named("script-generator"),
	}
}

var _ ScriptGenerator = (*scriptGenerator)(nil)

func (g *scriptGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	prompt := prompts.BuildETLScriptPrompt(prompts.ScriptContext{
		File:          req.File,
		Requirements:  req.Requirements,
		Profile:       req.Profile,
		TargetTable:   req.TargetTable,
		WarehouseType: g.warehouseType,
		EnvVars:       g.envVarNames,
	})
	system := prompts.BuildETLScriptSystemMessage()

	attempts := 0
	script, err := retry.DoIfRetryable(ctx, g.retryConfig, func() (string, error) {
		attempts++
		resp, err := g.llm.GenerateResponse(ctx, prompt, system, prompts.ScriptTemperature)
		if err != nil {
			g.logger.Warn("Script generation attempt failed",
				zap.Int("attempt", attempts),
				zap.Bool("retryable", retry.IsRetryable(err)),
				zap.Error(err))
			return "", err
		}
		return extractScript(resp)
	})
	if err != nil {
		return "", &GenerationError{Attempts: attempts, Err: err}
	}

	g.logger.Info("Script generated",
		zap.String("workflow_id", llm.WorkflowIDFrom(ctx)),
		zap.String("model", g.llm.GetModel()),
		zap.Int("attempts", attempts),
		zap.Int("script_bytes", len(script)))
	return script, nil
}

// extractScript returns the first fenced code block. An unfenced response is
// used whole, minus the model's explanatory prose.
func extractScript(resp string) (string, error) {
	var script string
	if m := codeBlockPattern.FindStringSubmatch(resp); m != nil {
		script = m[1]
	} else {
		script = stripProse(resp)
	}
	script = strings.TrimSpace(script)
	if script == "" {
		return "", errEmptyScript
	}
	return script + "\n", nil
}

// Phrases that open an explanatory paragraph rather than code.
var proseOpeners = []string{
	"certainly!", "below is", "here is", "here's", "this script",
	"production-ready", "complete script", "etl script", "key features",
}

// Fragments that mark a line as code even when it contains a prose opener.
var codeMarkers = []string{"=", "def ", "class ", "import ", "from "}

// stripProse drops markdown emphasis and headings, and explanatory paragraphs
// up to the next line that looks like code. Python comments are kept.
func stripProse(resp string) string {
	lines := strings.Split(resp, "\n")
	kept := make([]string, 0, len(lines))
	inProse := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "**") || strings.HasPrefix(trimmed, "## ") || strings.HasPrefix(trimmed, "### ") {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") && containsAny(strings.ToLower(trimmed), proseOpeners) && !containsAny(trimmed, codeMarkers) {
			inProse = true
			continue
		}
		if looksLikeCode(trimmed) {
			inProse = false
		}
		if !inProse {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func looksLikeCode(line string) bool {
	switch {
	case line == "":
		return false
	case strings.HasPrefix(line, "#"),
		strings.HasPrefix(line, "import "),
		strings.HasPrefix(line, "from "),
		strings.HasPrefix(line, "if __name__"),
		strings.Contains(line, "def "),
		strings.Contains(line, "class "):
		return true
	}
	return strings.Contains(line, "=") || strings.HasSuffix(line, ":")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
