package stages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// ValidateStage checks the warehouse for the rows the script should have
// loaded.
type ValidateStage struct {
	*BaseStage
	checker         IngestionCheckMethods
	minExpectedRows int64
}

// NewValidateStage creates an ingestion validation stage. minExpectedRows
// applies whenever the source had at least one row.
func NewValidateStage(checker IngestionCheckMethods, minExpectedRows int64, logger *zap.Logger) *ValidateStage {
	return &ValidateStage{
		BaseStage:       NewBaseStage(models.WorkflowStatusValidating, logger),
		checker:         checker,
		minExpectedRows: minExpectedRows,
	}
}

// ExpectedMinRows is the configured minimum, or 0 when the profile shows an
// empty source.
func (s *ValidateStage) ExpectedMinRows(rec *models.WorkflowRecord) int64 {
	if rec.Profile != nil && rec.Profile.TotalRows == 0 {
		return 0
	}
	return s.minExpectedRows
}

// Execute always returns the record with ingestion_result filled in, also
// when the check fails.
func (s *ValidateStage) Execute(ctx context.Context, rec *models.WorkflowRecord) (*models.WorkflowRecord, error) {
	candidates := models.TargetTableCandidates(rec.File.Filename)
	expected := s.ExpectedMinRows(rec)

	check, err := s.checker.CheckIngestion(ctx, candidates, expected)
	if check == nil {
		check = &IngestionCheck{Table: candidates[0], RowCount: -1}
	}
	if err == nil && !check.Success {
		err = fmt.Errorf("table %s has %d rows, expected at least %d", check.Table, check.RowCount, expected)
	}

	counts := ParseOutputCounts(rec.ExecutionOutput)
	result := &models.IngestionResult{
		TargetTable:   check.Table,
		TableCreated:  check.TableExists,
		RowCount:      check.RowCount,
		RowsProcessed: counts.Processed,
		Success:       models.OutcomeOf(err == nil && check.Success),
		Reachable:     check.Reachable,
	}
	switch {
	case counts.Inserted != nil:
		result.RowsInserted = *counts.Inserted
	case check.RowCount > 0:
		result.RowsInserted = check.RowCount
	}
	rec.IngestionResult = result

	rec.RecordValidation = nil
	if check.Reachable && check.TableExists && rec.Profile != nil {
		rec.RecordValidation = ValidateRecordCounts(int64(rec.Profile.TotalRows), check.RowCount, counts.Processed)
	}

	s.Logger().Info("Ingestion checked",
		zap.String("workflow_id", rec.WorkflowID),
		zap.String("table", check.Table),
		zap.Int64("row_count", check.RowCount),
		zap.Int64("expected_min_rows", expected),
		zap.String("success", string(result.Success)))

	return rec, err
}
