package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/ekaya-inc/ekaya-etl/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-etl/pkg/llm"
	"github.com/ekaya-inc/ekaya-etl/pkg/logging"
	"github.com/ekaya-inc/ekaya-etl/pkg/metrics"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
	"github.com/ekaya-inc/ekaya-etl/pkg/repositories"
	"github.com/ekaya-inc/ekaya-etl/pkg/services/stages"
)

// Stage outcomes reported to metrics.
const (
	stageOutcomeSucceeded = "succeeded"
	stageOutcomeFailed    = "failed"
	stageOutcomeSkipped   = "skipped"
)

// PipelineConfig controls optional parts of a run.
type PipelineConfig struct {
	// AutoExecute runs the generated script. When false the workflow ends
	// after the script is persisted.
	AutoExecute bool

	// ValidateAfterFailedExecution checks the warehouse even when the
	// script did not exit cleanly.
	ValidateAfterFailedExecution bool
}

// PipelineStages are the stage implementations a run goes through, in order.
type PipelineStages struct {
	Profile  stages.Stage
	Generate stages.Stage
	Persist  stages.Stage
	Execute  stages.Stage
	Validate stages.Stage
}

// RunRequest starts one workflow.
type RunRequest struct {
	File         models.FileRef
	Requirements string

	// WorkflowID is optional; one is generated when empty. Supplying it lets
	// the caller Cancel the run before Run returns.
	WorkflowID string
}

// PipelineOrchestrator drives a workflow record through every stage.
type PipelineOrchestrator interface {
	// Run executes a workflow to a terminal state and returns the final
	// record. Stage failures are recorded on the record; only store or
	// infrastructure failures are returned as errors.
	Run(ctx context.Context, req RunRequest) (*models.WorkflowRecord, error)

	// Cancel requests cancellation of a running workflow. It takes effect
	// at the next stage boundary. Returns false if the id is not running.
	Cancel(workflowID string) bool

	// Revalidate re-checks the warehouse for a terminal workflow and
	// returns a copy with refreshed ingestion results. The stored record
	// is not modified.
	Revalidate(ctx context.Context, workflowID string) (*models.WorkflowRecord, error)
}

// step binds a stage to how its failure is handled.
type step struct {
	stage stages.Stage
	slot  func(*models.WorkflowRecord) *string

	// fatalCause ends the workflow as failed when set.
	fatalCause string

	skip func(*models.WorkflowRecord) bool
}

type pipelineOrchestrator struct {
	cfg      PipelineConfig
	store    repositories.WorkflowStore
	stages   PipelineStages
	metrics  metrics.Recorder
	clock    clock.PassiveClock
	ids      *models.WorkflowIDGenerator
	logger   *zap.Logger
	active   sync.Map // workflow id -> context.CancelFunc
	sequence []step
}

// NewPipelineOrchestrator creates an orchestrator. recorder and clk may be
// nil.
func NewPipelineOrchestrator(
	cfg PipelineConfig,
	store repositories.WorkflowStore,
	pipeline PipelineStages,
	recorder metrics.Recorder,
	clk clock.PassiveClock,
	logger *zap.Logger,
) PipelineOrchestrator {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	o := &pipelineOrchestrator{
		cfg:     cfg,
		store:   store,
		stages:  pipeline,
		metrics: recorder,
		clock:   clk,
		ids:     models.NewWorkflowIDGenerator(clk.Now()),
		logger:  logger.Named("pipeline"),
	}
	o.sequence = o.buildSequence()
	return o
}

var _ PipelineOrchestrator = (*pipelineOrchestrator)(nil)

func (o *pipelineOrchestrator) buildSequence() []step {
	return []step{
		{
			stage: o.stages.Profile,
			slot:  func(r *models.WorkflowRecord) *string { return &r.ProfilingError },
		},
		{
			stage:      o.stages.Generate,
			slot:       func(r *models.WorkflowRecord) *string { return &r.GenerationError },
			fatalCause: models.FailureCauseGenerationFailed,
		},
		{
			stage:      o.stages.Persist,
			slot:       func(r *models.WorkflowRecord) *string { return &r.PersistenceError },
			fatalCause: models.FailureCausePersistenceFailed,
		},
		{
			stage: o.stages.Execute,
			slot:  func(r *models.WorkflowRecord) *string { return &r.ExecutionError },
			skip: func(*models.WorkflowRecord) bool {
				return !o.cfg.AutoExecute
			},
		},
		{
			stage: o.stages.Validate,
			slot:  func(r *models.WorkflowRecord) *string { return &r.IngestionError },
			skip: func(r *models.WorkflowRecord) bool {
				if !o.cfg.AutoExecute {
					return true
				}
				return r.ExecutionSuccess != models.OutcomeSucceeded && !o.cfg.ValidateAfterFailedExecution
			},
		},
	}
}

func (o *pipelineOrchestrator) Run(ctx context.Context, req RunRequest) (out *models.WorkflowRecord, err error) {
	now := o.clock.Now()
	id := req.WorkflowID
	if id == "" {
		id = o.ids.Next(now)
	}
	if req.File.Filename == "" {
		req.File.Filename = req.File.Locator
	}

	runCtx, cancel := context.WithCancel(llm.WithWorkflowID(ctx, id))
	if _, loaded := o.active.LoadOrStore(id, cancel); loaded {
		cancel()
		return nil, fmt.Errorf("%w: workflow %s is already running", apperrors.ErrConflict, id)
	}
	defer func() {
		o.active.Delete(id)
		cancel()
	}()

	// Store writes outlive cancellation so a cancelled run still records
	// its terminal state.
	storeCtx := context.WithoutCancel(ctx)

	rec := models.NewWorkflowRecord(id, req.File, req.Requirements, now)
	if err := o.store.Put(storeCtx, rec); err != nil {
		return nil, fmt.Errorf("create workflow record: %w", err)
	}

	o.logger.Info("Workflow started",
		zap.String("workflow_id", id),
		zap.String("file", req.File.Filename))

	var current *step
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Workflow panicked",
				zap.String("workflow_id", id),
				zap.Any("panic", r),
				zap.Stack("stack"))
			if current != nil {
				*current.slot(rec) = fmt.Sprintf("panic during %s: %v", current.stage.Name(), r)
			}
			out, err = o.fail(storeCtx, rec, models.FailureCauseInternal)
		}
	}()

	for i := range o.sequence {
		st := &o.sequence[i]

		if runCtx.Err() != nil {
			return o.fail(storeCtx, rec, models.FailureCauseCancelled)
		}
		if st.skip != nil && st.skip(rec) {
			o.recordStage(st.stage.Name(), stageOutcomeSkipped, 0)
			continue
		}

		current = st
		rec.Status = st.stage.Name()
		rec.CurrentStage = st.stage.Name()
		rec.UpdatedAt = o.clock.Now()
		if err := o.store.Put(storeCtx, rec); err != nil {
			return nil, fmt.Errorf("record %s transition: %w", st.stage.Name(), err)
		}

		next, stageErr := o.runStage(runCtx, st.stage, rec)
		if stageErr == nil {
			rec = next
			continue
		}

		// Stages that fail may still hand back diagnostics worth keeping.
		if next != nil {
			rec = next
		}
		*st.slot(rec) = logging.SanitizeError(stageErr)

		if runCtx.Err() != nil {
			return o.fail(storeCtx, rec, models.FailureCauseCancelled)
		}
		if st.fatalCause != "" {
			return o.fail(storeCtx, rec, st.fatalCause)
		}
	}
	current = nil

	return o.finish(storeCtx, rec)
}

// runStage executes one stage on a copy of rec.
func (o *pipelineOrchestrator) runStage(ctx context.Context, stage stages.Stage, rec *models.WorkflowRecord) (*models.WorkflowRecord, error) {
	start := o.clock.Now()
	next, err := stage.Execute(ctx, rec.Clone())
	elapsed := o.clock.Since(start)

	if err != nil {
		o.recordStage(stage.Name(), stageOutcomeFailed, elapsed)
		o.logger.Warn("Stage failed",
			zap.String("workflow_id", rec.WorkflowID),
			zap.String("stage", string(stage.Name())),
			zap.Duration("elapsed", elapsed),
			zap.String("error", logging.SanitizeError(err)))
		return next, err
	}
	if next == nil {
		return nil, fmt.Errorf("stage %s returned no record", stage.Name())
	}

	o.recordStage(stage.Name(), stageOutcomeSucceeded, elapsed)
	o.logger.Info("Stage completed",
		zap.String("workflow_id", rec.WorkflowID),
		zap.String("stage", string(stage.Name())),
		zap.Duration("elapsed", elapsed))
	return next, nil
}

func (o *pipelineOrchestrator) recordStage(stage models.WorkflowStatus, outcome string, elapsed time.Duration) {
	labels := metrics.Labels{"stage": string(stage), "outcome": outcome}
	o.metrics.IncCounter(metrics.WorkflowStage, labels)
	if outcome != stageOutcomeSkipped {
		o.metrics.ObserveDuration(metrics.WorkflowStageDuration, elapsed, labels)
	}
}

// finish closes a workflow that reached the end of the sequence.
func (o *pipelineOrchestrator) finish(ctx context.Context, rec *models.WorkflowRecord) (*models.WorkflowRecord, error) {
	status := models.WorkflowStatusCompleted
	if rec.HasRecoverableErrors() {
		status = models.WorkflowStatusCompletedWithErrors
	}
	return o.terminate(ctx, rec, status)
}

// fail closes a workflow as failed with the given cause.
func (o *pipelineOrchestrator) fail(ctx context.Context, rec *models.WorkflowRecord, cause string) (*models.WorkflowRecord, error) {
	rec.FailureCause = cause
	return o.terminate(ctx, rec, models.WorkflowStatusFailed)
}

func (o *pipelineOrchestrator) terminate(ctx context.Context, rec *models.WorkflowRecord, status models.WorkflowStatus) (*models.WorkflowRecord, error) {
	now := o.clock.Now()
	rec.Status = status
	rec.CurrentStage = status
	rec.UpdatedAt = now
	rec.CompletedAt = &now

	if err := o.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("record terminal state: %w", err)
	}

	o.metrics.IncCounter(metrics.WorkflowFinished, metrics.Labels{"status": string(status)})
	o.logger.Info("Workflow finished",
		zap.String("workflow_id", rec.WorkflowID),
		zap.String("status", string(status)),
		zap.String("failure_cause", rec.FailureCause),
		zap.Duration("elapsed", now.Sub(rec.CreatedAt)))
	return rec, nil
}

func (o *pipelineOrchestrator) Cancel(workflowID string) bool {
	v, ok := o.active.Load(workflowID)
	if !ok {
		return false
	}
	o.logger.Info("Cancelling workflow", zap.String("workflow_id", workflowID))
	v.(context.CancelFunc)()
	return true
}

func (o *pipelineOrchestrator) Revalidate(ctx context.Context, workflowID string) (*models.WorkflowRecord, error) {
	stored, err := o.store.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !stored.IsTerminal() {
		return nil, fmt.Errorf("%w: workflow %s is still %s", apperrors.ErrConflict, workflowID, stored.Status)
	}

	next, err := o.runStage(llm.WithWorkflowID(ctx, workflowID), o.stages.Validate, stored)
	if next == nil {
		if err == nil {
			err = errors.New("validation returned no record")
		}
		return nil, fmt.Errorf("revalidate %s: %w", workflowID, err)
	}

	next.IngestionError = ""
	if err != nil {
		next.IngestionError = logging.SanitizeError(err)
	}
	return next, nil
}
