package models

import (
	"time"
)

// ============================================================================
// Workflow Status
// ============================================================================

// WorkflowStatus is the position of a workflow in the pipeline state machine.
type WorkflowStatus string

const (
	WorkflowStatusInitialized         WorkflowStatus = "initialized"
	WorkflowStatusProfiling           WorkflowStatus = "profiling"
	WorkflowStatusScriptGeneration    WorkflowStatus = "script_generation"
	WorkflowStatusScriptPersisted     WorkflowStatus = "script_persisted"
	WorkflowStatusExecuting           WorkflowStatus = "executing"
	WorkflowStatusValidating          WorkflowStatus = "validating"
	WorkflowStatusCompleted           WorkflowStatus = "completed"
	WorkflowStatusCompletedWithErrors WorkflowStatus = "completed_with_errors"
	WorkflowStatusFailed              WorkflowStatus = "failed"
)

// ValidWorkflowStatuses contains all valid status values in pipeline order.
var ValidWorkflowStatuses = []WorkflowStatus{
	WorkflowStatusInitialized,
	WorkflowStatusProfiling,
	WorkflowStatusScriptGeneration,
	WorkflowStatusScriptPersisted,
	WorkflowStatusExecuting,
	WorkflowStatusValidating,
	WorkflowStatusCompleted,
	WorkflowStatusCompletedWithErrors,
	WorkflowStatusFailed,
}

// IsValidWorkflowStatus checks if the given status is valid.
func IsValidWorkflowStatus(s WorkflowStatus) bool {
	for _, v := range ValidWorkflowStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true for completed, completed_with_errors and failed.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted ||
		s == WorkflowStatusCompletedWithErrors ||
		s == WorkflowStatusFailed
}

// ============================================================================
// Outcome
// ============================================================================

// Outcome is a tri-state result for stages that may be skipped.
type Outcome string

const (
	OutcomeNotAttempted Outcome = "not_attempted"
	OutcomeSucceeded    Outcome = "succeeded"
	OutcomeFailed       Outcome = "failed"
)

// OutcomeOf converts a boolean result into an attempted outcome.
func OutcomeOf(ok bool) Outcome {
	if ok {
		return OutcomeSucceeded
	}
	return OutcomeFailed
}

// Failure causes recorded on failed workflows.
const (
	FailureCauseCancelled         = "cancelled"
	FailureCauseGenerationFailed  = "generation_failed"
	FailureCausePersistenceFailed = "persistence_failed"
	FailureCauseInternal          = "internal_error"
)

// ============================================================================
// Workflow Record
// ============================================================================

// FileRef locates the uploaded source file.
type FileRef struct {
	Locator     string `json:"locator" yaml:"locator"`
	Filename    string `json:"filename" yaml:"filename"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
}

// IngestionResult captures the warehouse check after execution.
type IngestionResult struct {
	TargetTable   string  `json:"target_table" yaml:"target_table"`
	TableCreated  bool    `json:"table_created" yaml:"table_created"`
	RowsInserted  int64   `json:"rows_inserted" yaml:"rows_inserted"`
	RowCount      int64   `json:"row_count" yaml:"row_count"`
	RowsProcessed *int64  `json:"rows_processed,omitempty" yaml:"rows_processed,omitempty"`
	Success       Outcome `json:"success" yaml:"success"`
	Reachable     bool    `json:"reachable" yaml:"reachable"`
}

// NotAttemptedIngestion is the ingestion result of a workflow whose warehouse
// check has not run. RowCount is -1 because nothing was counted.
func NotAttemptedIngestion(table string) *IngestionResult {
	return &IngestionResult{TargetTable: table, RowCount: -1, Success: OutcomeNotAttempted}
}

// RecordValidationStatus grades the source versus warehouse row comparison.
type RecordValidationStatus string

const (
	RecordValidationSuccess RecordValidationStatus = "success"
	RecordValidationWarning RecordValidationStatus = "warning"
	RecordValidationFailed  RecordValidationStatus = "failed"
)

// RecordValidation compares source rows to warehouse rows. Informational only.
type RecordValidation struct {
	Status         RecordValidationStatus `json:"status" yaml:"status"`
	Message        string                 `json:"message" yaml:"message"`
	SourceCount    int64                  `json:"source_count" yaml:"source_count"`
	WarehouseCount int64                  `json:"warehouse_count" yaml:"warehouse_count"`
	ProcessedCount *int64                 `json:"processed_count,omitempty" yaml:"processed_count,omitempty"`
}

// WorkflowRecord is the durable record of one pipeline run.
type WorkflowRecord struct {
	WorkflowID   string  `json:"workflow_id" yaml:"workflow_id"`
	File         FileRef `json:"file" yaml:"file"`
	Requirements string  `json:"requirements" yaml:"requirements"`

	Profile *DatasetProfile `json:"profile,omitempty" yaml:"profile,omitempty"`

	GeneratedScript string `json:"generated_script,omitempty" yaml:"generated_script,omitempty"`
	ScriptPath      string `json:"script_path,omitempty" yaml:"script_path,omitempty"`

	ExecutionOutput     string  `json:"execution_output,omitempty" yaml:"execution_output,omitempty"`
	ExecutionSuccess    Outcome `json:"execution_success" yaml:"execution_success"`
	ExecutionExitCode   *int    `json:"execution_exit_code,omitempty" yaml:"execution_exit_code,omitempty"`
	ExecutionDurationMs int64   `json:"execution_duration_ms,omitempty" yaml:"execution_duration_ms,omitempty"`

	IngestionResult  *IngestionResult  `json:"ingestion_result,omitempty" yaml:"ingestion_result,omitempty"`
	RecordValidation *RecordValidation `json:"record_validation,omitempty" yaml:"record_validation,omitempty"`

	Status       WorkflowStatus `json:"status" yaml:"status"`
	CurrentStage WorkflowStatus `json:"current_stage" yaml:"current_stage"`

	// Per-stage error slots. Empty means the stage did not fail.
	ProfilingError   string `json:"profiling_error,omitempty" yaml:"profiling_error,omitempty"`
	InsightError     string `json:"insight_error,omitempty" yaml:"insight_error,omitempty"`
	GenerationError  string `json:"generation_error,omitempty" yaml:"generation_error,omitempty"`
	PersistenceError string `json:"persistence_error,omitempty" yaml:"persistence_error,omitempty"`
	ExecutionError   string `json:"execution_error,omitempty" yaml:"execution_error,omitempty"`
	IngestionError   string `json:"ingestion_error,omitempty" yaml:"ingestion_error,omitempty"`
	FailureCause     string `json:"failure_cause,omitempty" yaml:"failure_cause,omitempty"`

	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// NewWorkflowRecord creates a record in the initialized state.
func NewWorkflowRecord(id string, file FileRef, requirements string, now time.Time) *WorkflowRecord {
	return &WorkflowRecord{
		WorkflowID:       id,
		File:             file,
		Requirements:     requirements,
		ExecutionSuccess: OutcomeNotAttempted,
		IngestionResult:  NotAttemptedIngestion(TargetTableName(file.Filename)),
		Status:           WorkflowStatusInitialized,
		CurrentStage:     WorkflowStatusInitialized,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// IsTerminal reports whether the record has reached a final status.
func (r *WorkflowRecord) IsTerminal() bool {
	return r != nil && r.Status.IsTerminal()
}

// HasRecoverableErrors reports whether any non-fatal stage recorded an error.
func (r *WorkflowRecord) HasRecoverableErrors() bool {
	return r.ProfilingError != "" ||
		r.InsightError != "" ||
		r.ExecutionError != "" ||
		r.IngestionError != ""
}

// Clone returns a copy that shares no mutable state with r. The profile is
// shared because profiles are never mutated.
func (r *WorkflowRecord) Clone() *WorkflowRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.ExecutionExitCode != nil {
		code := *r.ExecutionExitCode
		cp.ExecutionExitCode = &code
	}
	if r.IngestionResult != nil {
		ir := *r.IngestionResult
		if r.IngestionResult.RowsProcessed != nil {
			n := *r.IngestionResult.RowsProcessed
			ir.RowsProcessed = &n
		}
		cp.IngestionResult = &ir
	}
	if r.RecordValidation != nil {
		rv := *r.RecordValidation
		if r.RecordValidation.ProcessedCount != nil {
			n := *r.RecordValidation.ProcessedCount
			rv.ProcessedCount = &n
		}
		cp.RecordValidation = &rv
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
