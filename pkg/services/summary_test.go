package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

func completedRecord() *models.WorkflowRecord {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	code := 0
	processed := int64(3)
	return &models.WorkflowRecord{
		WorkflowID:          "etl_01HX",
		File:                models.FileRef{Locator: "/data/customers.csv", Filename: "customers.csv"},
		Profile:             &models.DatasetProfile{TotalRows: 3, TotalColumns: 2, DataQuality: models.DataQuality{Score: 0.97, Tier: "high"}},
		GeneratedScript:     "x = 1\n",
		ScriptPath:          "/scripts/etl_01HX_etl_script.py",
		ExecutionSuccess:    models.OutcomeSucceeded,
		ExecutionExitCode:   &code,
		ExecutionDurationMs: 420,
		IngestionResult:     &models.IngestionResult{TargetTable: "ETL_CUSTOMERS", TableCreated: true, RowCount: 3, Success: models.OutcomeSucceeded, Reachable: true},
		RecordValidation: &models.RecordValidation{
			Status:         models.RecordValidationSuccess,
			Message:        "All 3 records loaded",
			SourceCount:    3,
			WarehouseCount: 3,
			ProcessedCount: &processed,
		},
		Status:      models.WorkflowStatusCompleted,
		CreatedAt:   start,
		UpdatedAt:   end,
		CompletedAt: &end,
	}
}

func TestRenderSummary_Completed(t *testing.T) {
	out := RenderSummary(completedRecord())

	assert.Contains(t, out, "Workflow ID: etl_01HX")
	assert.Contains(t, out, "Finished:    2026-03-01T12:00:01Z (1.5s)")
	assert.Contains(t, out, "[ok]   Profiling: 3 rows, 2 columns, quality 0.97 (high)")
	assert.Contains(t, out, "[ok]   Script saved to: /scripts/etl_01HX_etl_script.py")
	assert.Contains(t, out, "[ok]   Script execution (420ms)")
	assert.Contains(t, out, "[ok]   Record validation: All 3 records loaded")
	assert.Contains(t, out, "Source: 3 | Warehouse: 3 | Processed: 3")
	assert.Contains(t, out, "[ok]   Ingestion: 3 rows in ETL_CUSTOMERS")
	assert.Contains(t, out, "SELECT COUNT(*) - 3 AS difference_from_source FROM ETL_CUSTOMERS;")
	assert.NotContains(t, out, "Cause:")
}

func TestRenderSummary_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *models.WorkflowRecord)
		want    []string
		notWant []string
	}{
		{
			name: "generation failed",
			mutate: func(r *models.WorkflowRecord) {
				r.Status = models.WorkflowStatusFailed
				r.FailureCause = models.FailureCauseGenerationFailed
				r.GeneratedScript = ""
				r.ScriptPath = ""
				r.GenerationError = "script generation failed after 3 attempt(s): 503"
				r.ExecutionSuccess = models.OutcomeNotAttempted
				r.IngestionResult = models.NotAttemptedIngestion("ETL_CUSTOMERS")
				r.RecordValidation = nil
			},
			want: []string{
				"Cause:       generation_failed",
				"[fail] Script generation: script generation failed after 3 attempt(s): 503",
				"[skip] Script execution: not attempted",
				"[skip] Ingestion: not validated",
			},
			notWant: []string{"Verification queries"},
		},
		{
			name: "degraded profiling",
			mutate: func(r *models.WorkflowRecord) {
				r.Profile = nil
				r.ProfilingError = "load source: wrong number of fields"
				r.RecordValidation = nil
			},
			want:    []string{"[fail] Profiling: load source: wrong number of fields"},
			notWant: []string{"difference_from_source"},
		},
		{
			name: "execution and ingestion failed",
			mutate: func(r *models.WorkflowRecord) {
				r.ExecutionSuccess = models.OutcomeFailed
				r.ExecutionError = "script exited with code 1: KeyError"
				r.IngestionResult = &models.IngestionResult{TargetTable: "ETL_CUSTOMER", RowCount: 0, Success: models.OutcomeFailed}
				r.IngestionError = "found 0 rows"
				r.RecordValidation = nil
			},
			want: []string{
				"[fail] Script execution: script exited with code 1: KeyError",
				"[fail] Ingestion: found 0 rows",
				"SELECT * FROM ETL_CUSTOMER LIMIT 10;",
			},
		},
		{
			name: "record count warning",
			mutate: func(r *models.WorkflowRecord) {
				r.RecordValidation.Status = models.RecordValidationWarning
				r.RecordValidation.Message = "Record count difference of 10.0%"
				r.RecordValidation.ProcessedCount = nil
			},
			want: []string{"[warn] Record validation: Record count difference of 10.0%", "Processed: n/a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := completedRecord()
			tt.mutate(rec)

			out := RenderSummary(rec)

			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, out, nw)
			}
		})
	}
}

func TestRenderSummary_Nil(t *testing.T) {
	assert.Empty(t, RenderSummary(nil))
}
