package stages

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// Variables every script receives besides the warehouse settings.
const (
	EnvTargetTable = "TARGET_TABLE"
	EnvSourceURL   = "SOURCE_URL"
	EnvWorkflowID  = "WORKFLOW_ID"
)

// GenerateStage asks the text-generation service for a script.
type GenerateStage struct {
	*BaseStage
	generator ScriptGenerationMethods
}

// NewGenerateStage creates a script generation stage.
func NewGenerateStage(generator ScriptGenerationMethods, logger *zap.Logger) *GenerateStage {
	return &GenerateStage{
		BaseStage: NewBaseStage(models.WorkflowStatusScriptGeneration, logger),
		generator: generator,
	}
}

func (s *GenerateStage) Execute(ctx context.Context, rec *models.WorkflowRecord) (*models.WorkflowRecord, error) {
	if rec.Profile == nil {
		s.Logger().Info("Generating script without a profile",
			zap.String("workflow_id", rec.WorkflowID))
	}

	script, err := s.generator.GenerateScript(ctx, rec.File, rec.Requirements, rec.Profile, models.TargetTableName(rec.File.Filename))
	if err != nil {
		return nil, err
	}
	rec.GeneratedScript = script
	return rec, nil
}

// PersistStage writes the generated script to the scripts directory.
type PersistStage struct {
	*BaseStage
	store ScriptPersistenceMethods
}

// NewPersistStage creates a script persistence stage.
func NewPersistStage(store ScriptPersistenceMethods, logger *zap.Logger) *PersistStage {
	return &PersistStage{
		BaseStage: NewBaseStage(models.WorkflowStatusScriptPersisted, logger),
		store:     store,
	}
}

func (s *PersistStage) Execute(ctx context.Context, rec *models.WorkflowRecord) (*models.WorkflowRecord, error) {
	if rec.GeneratedScript == "" {
		return nil, errors.New("no script to persist")
	}
	path, err := s.store.Save(ctx, rec.WorkflowID, rec.GeneratedScript)
	if err != nil {
		return nil, err
	}
	rec.ScriptPath = path
	return rec, nil
}

// ExecuteStage runs the persisted script.
type ExecuteStage struct {
	*BaseStage
	runner ScriptExecutionMethods
}

// NewExecuteStage creates a script execution stage.
func NewExecuteStage(runner ScriptExecutionMethods, logger *zap.Logger) *ExecuteStage {
	return &ExecuteStage{
		BaseStage: NewBaseStage(models.WorkflowStatusExecuting, logger),
		runner:    runner,
	}
}

// Execute records the script's output and exit status even when it fails,
// so the record returned alongside an error is meant to be kept.
func (s *ExecuteStage) Execute(ctx context.Context, rec *models.WorkflowRecord) (*models.WorkflowRecord, error) {
	if rec.ScriptPath == "" {
		return nil, errors.New("no persisted script to execute")
	}

	env := []string{
		EnvTargetTable + "=" + models.TargetTableName(rec.File.Filename),
		EnvSourceURL + "=" + rec.File.Locator,
		EnvWorkflowID + "=" + rec.WorkflowID,
	}

	run, err := s.runner.RunScript(ctx, rec.ScriptPath, env)
	if run == nil {
		rec.ExecutionSuccess = models.OutcomeFailed
		if err == nil {
			err = errors.New("script runner returned no result")
		}
		return rec, err
	}

	code := run.ExitCode
	rec.ExecutionExitCode = &code
	rec.ExecutionOutput = run.Output
	rec.ExecutionDurationMs = run.Duration.Milliseconds()
	rec.ExecutionSuccess = models.OutcomeOf(err == nil && run.ExitCode == 0)

	if err == nil && run.ExitCode != 0 {
		err = fmt.Errorf("script exited with code %d", run.ExitCode)
	}
	if err != nil {
		s.Logger().Warn("Script execution failed",
			zap.String("workflow_id", rec.WorkflowID),
			zap.Int("exit_code", run.ExitCode),
			zap.Bool("timed_out", run.TimedOut))
		return rec, err
	}

	s.Logger().Info("Script executed",
		zap.String("workflow_id", rec.WorkflowID),
		zap.Int64("duration_ms", rec.ExecutionDurationMs))
	return rec, nil
}
