package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse"
	"github.com/ekaya-inc/ekaya-etl/pkg/services/stages"
)

// StageDependencies are the collaborators wired into the default stages.
type StageDependencies struct {
	Loader          stages.DatasetLoader
	Profiler        stages.DatasetProfiler
	Annotator       InsightAnnotator // nil disables insights
	Generator       ScriptGenerator
	Scripts         ScriptStore
	Executor        Executor
	Validator       IngestionValidator
	Warehouse       warehouse.Config
	ExecTimeout     time.Duration
	MinExpectedRows int64
}

// NewPipelineStages wires the default stage implementations.
func NewPipelineStages(deps StageDependencies, logger *zap.Logger) PipelineStages {
	var annotator stages.ProfileAnnotator
	if deps.Annotator != nil {
		annotator = deps.Annotator
	}

	return PipelineStages{
		Profile:  stages.NewProfileStage(deps.Loader, deps.Profiler, annotator, logger),
		Generate: stages.NewGenerateStage(NewScriptGenerationAdapter(deps.Generator), logger),
		Persist:  stages.NewPersistStage(deps.Scripts, logger),
		Execute:  stages.NewExecuteStage(NewScriptExecutionAdapter(deps.Executor, deps.Warehouse, deps.ExecTimeout), logger),
		Validate: stages.NewValidateStage(NewIngestionCheckAdapter(deps.Validator), deps.MinExpectedRows, logger),
	}
}
