package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/llm"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
	"github.com/ekaya-inc/ekaya-etl/pkg/prompts"
)

// InsightAnnotator adds free-text recommendations to a profile.
type InsightAnnotator interface {
	// Annotate returns a copy of profile carrying insight text. The input
	// profile is never modified.
	Annotate(ctx context.Context, file models.FileRef, profile *models.DatasetProfile) (*models.DatasetProfile, error)
}

type insightAnnotator struct {
	llm    llm.TextGenerator
	logger *zap.Logger
}

// NewInsightAnnotator creates an annotator backed by the given generator.
func NewInsightAnnotator(generator llm.TextGenerator, logger *zap.Logger) InsightAnnotator {
	return &insightAnnotator{
		llm:    generator,
		logger: logger.Named("insight-annotator"),
	}
}

var _ InsightAnnotator = (*insightAnnotator)(nil)

func (a *insightAnnotator) Annotate(ctx context.Context, file models.FileRef, profile *models.DatasetProfile) (*models.DatasetProfile, error) {
	if profile == nil {
		return nil, errors.New("no profile to annotate")
	}

	prompt := prompts.BuildInsightPrompt(file, profile)
	text, err := a.llm.GenerateResponse(ctx, prompt, prompts.BuildInsightSystemMessage(), prompts.ScriptTemperature)
	if err != nil {
		return nil, fmt.Errorf("generate insights: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("generate insights: empty response")
	}

	a.logger.Debug("Profile annotated",
		zap.String("workflow_id", llm.WorkflowIDFrom(ctx)),
		zap.Int("insight_chars", len(text)))

	return profile.WithInsight(text), nil
}
