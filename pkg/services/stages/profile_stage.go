package stages

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/logging"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
	"github.com/ekaya-inc/ekaya-etl/pkg/profiler"
)

// ProfileStage loads the source, profiles it and optionally annotates the
// profile. The dataset is dropped as soon as profiling returns.
type ProfileStage struct {
	*BaseStage
	loader    DatasetLoader
	profiler  DatasetProfiler
	annotator ProfileAnnotator
}

// NewProfileStage creates a profiling stage. annotator may be nil.
func NewProfileStage(loader DatasetLoader, p DatasetProfiler, annotator ProfileAnnotator, logger *zap.Logger) *ProfileStage {
	return &ProfileStage{
		BaseStage: NewBaseStage(models.WorkflowStatusProfiling, logger),
		loader:    loader,
		profiler:  p,
		annotator: annotator,
	}
}

// Execute returns a *profiler.ProfilingError when no profile could be built.
// An annotation failure is not a stage failure; it is recorded in the
// record's insight_error slot.
func (s *ProfileStage) Execute(ctx context.Context, rec *models.WorkflowRecord) (*models.WorkflowRecord, error) {
	ds, err := s.loader.Load(ctx, rec.File.Locator)
	if err != nil {
		return nil, profiler.NewProfilingError("load source", err)
	}

	profile, err := s.profiler.Profile(ctx, ds)
	if err != nil {
		var pe *profiler.ProfilingError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, profiler.NewProfilingError("profile dataset", err)
	}
	rec.Profile = profile

	s.Logger().Info("Dataset profiled",
		zap.String("workflow_id", rec.WorkflowID),
		zap.Int("rows", profile.TotalRows),
		zap.Int("columns", profile.TotalColumns),
		zap.Float64("quality", profile.DataQuality.Score))

	if s.annotator == nil {
		return rec, nil
	}

	annotated, err := s.annotator.Annotate(ctx, rec.File, profile)
	if err != nil {
		rec.InsightError = fmt.Sprintf("insight generation failed: %s", logging.SanitizeError(err))
		s.Logger().Warn("Insight generation failed, keeping numeric profile",
			zap.String("workflow_id", rec.WorkflowID),
			zap.Error(err))
		return rec, nil
	}
	rec.Profile = annotated
	return rec, nil
}
