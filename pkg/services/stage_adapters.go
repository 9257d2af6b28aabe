package services

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
	"github.com/ekaya-inc/ekaya-etl/pkg/services/stages"
)

// These adapters convert between the services package types and the stages
// package types, keeping stages free of any services import.

// ScriptGenerationAdapter adapts ScriptGenerator for the generate stage.
type ScriptGenerationAdapter struct {
	gen ScriptGenerator
}

// NewScriptGenerationAdapter creates a new adapter.
func NewScriptGenerationAdapter(gen ScriptGenerator) stages.ScriptGenerationMethods {
	return &ScriptGenerationAdapter{gen: gen}
}

func (a *ScriptGenerationAdapter) GenerateScript(ctx context.Context, file models.FileRef, requirements string, profile *models.DatasetProfile, targetTable string) (string, error) {
	return a.gen.Generate(ctx, GenerationRequest{
		File:         file,
		Requirements: requirements,
		Profile:      profile,
		TargetTable:  targetTable,
	})
}

// ScriptExecutionAdapter adapts Executor for the execute stage. It adds the
// warehouse connection variables and redacts their secret values from
// captured output.
type ScriptExecutionAdapter struct {
	exec    Executor
	env     []string
	secrets []string
	timeout time.Duration
}

// NewScriptExecutionAdapter creates a new adapter for the given warehouse.
func NewScriptExecutionAdapter(exec Executor, wh warehouse.Config, timeout time.Duration) stages.ScriptExecutionMethods {
	return &ScriptExecutionAdapter{
		exec:    exec,
		env:     wh.EnvVars(),
		secrets: []string{wh.Password},
		timeout: timeout,
	}
}

func (a *ScriptExecutionAdapter) RunScript(ctx context.Context, scriptPath string, env []string) (*stages.ScriptRun, error) {
	merged := make([]string, 0, len(a.env)+len(env))
	merged = append(merged, a.env...)
	merged = append(merged, env...)

	res, err := a.exec.Execute(ctx, ExecutionRequest{
		ScriptPath: scriptPath,
		Env:        merged,
		Timeout:    a.timeout,
		Secrets:    a.secrets,
	})
	if res == nil {
		return nil, err
	}
	return &stages.ScriptRun{
		ExitCode: res.ExitCode,
		Output:   res.Output,
		Duration: res.Duration,
		TimedOut: res.TimedOut,
	}, err
}

// IngestionCheckAdapter adapts IngestionValidator for the validate stage.
type IngestionCheckAdapter struct {
	validator IngestionValidator
}

// NewIngestionCheckAdapter creates a new adapter.
func NewIngestionCheckAdapter(validator IngestionValidator) stages.IngestionCheckMethods {
	return &IngestionCheckAdapter{validator: validator}
}

func (a *IngestionCheckAdapter) CheckIngestion(ctx context.Context, tables []string, expectedMinRows int64) (*stages.IngestionCheck, error) {
	v, err := a.validator.ValidateCandidates(ctx, tables, expectedMinRows)
	if v == nil {
		return nil, err
	}
	return &stages.IngestionCheck{
		Table:       v.Table,
		TableExists: v.TableExists,
		RowCount:    v.RowCount,
		Success:     v.Success,
		Reachable:   v.Reachable,
	}, err
}
