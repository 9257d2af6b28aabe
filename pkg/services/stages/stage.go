// Package stages holds the individual steps of an ETL workflow. Each stage
// depends only on narrow method interfaces so the services package can wire
// its implementations in without an import cycle.
package stages

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// Stage runs one pipeline step.
type Stage interface {
	// Name returns the workflow status the record holds while the stage runs.
	Name() models.WorkflowStatus

	// Execute applies the stage to rec, which the caller has already copied,
	// and returns the updated record. On failure the returned record may be
	// nil, or may carry diagnostics (script output, ingestion counts) that
	// the caller should keep alongside the error.
	Execute(ctx context.Context, rec *models.WorkflowRecord) (*models.WorkflowRecord, error)
}

// BaseStage provides common functionality for all stages.
type BaseStage struct {
	name   models.WorkflowStatus
	logger *zap.Logger
}

// NewBaseStage creates a base stage with a logger named after the stage.
func NewBaseStage(name models.WorkflowStatus, logger *zap.Logger) *BaseStage {
	return &BaseStage{
		name:   name,
		logger: logger.Named(string(name)),
	}
}

// Name returns the stage name.
func (b *BaseStage) Name() models.WorkflowStatus {
	return b.name
}

// Logger returns the stage's logger.
func (b *BaseStage) Logger() *zap.Logger {
	return b.logger
}

// ============================================================================
// Methods consumed by stages
// ============================================================================

// DatasetLoader materializes the source file.
type DatasetLoader interface {
	Load(ctx context.Context, locator string) (*models.Dataset, error)
}

// DatasetProfiler computes a profile from a dataset.
type DatasetProfiler interface {
	Profile(ctx context.Context, ds *models.Dataset) (*models.DatasetProfile, error)
}

// ProfileAnnotator enriches a profile with free-text insight.
type ProfileAnnotator interface {
	Annotate(ctx context.Context, file models.FileRef, profile *models.DatasetProfile) (*models.DatasetProfile, error)
}

// ScriptGenerationMethods produces script text for a workflow.
type ScriptGenerationMethods interface {
	GenerateScript(ctx context.Context, file models.FileRef, requirements string, profile *models.DatasetProfile, targetTable string) (string, error)
}

// ScriptPersistenceMethods writes a script and returns where it went.
type ScriptPersistenceMethods interface {
	Save(ctx context.Context, workflowID, script string) (string, error)
}

// ScriptRun is the observable result of running a script.
type ScriptRun struct {
	ExitCode int
	Output   string
	Duration time.Duration
	TimedOut bool
}

// ScriptExecutionMethods runs a persisted script. env holds workflow
// variables; the implementation adds warehouse connection settings.
type ScriptExecutionMethods interface {
	RunScript(ctx context.Context, scriptPath string, env []string) (*ScriptRun, error)
}

// IngestionCheck is the warehouse state after a run.
type IngestionCheck struct {
	Table       string
	TableExists bool
	RowCount    int64
	Success     bool
	Reachable   bool
}

// IngestionCheckMethods inspects the warehouse for the first existing
// candidate table.
type IngestionCheckMethods interface {
	CheckIngestion(ctx context.Context, tables []string, expectedMinRows int64) (*IngestionCheck, error)
}
