package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// RenderSummary formats a workflow record for people reading a terminal.
// It ends with SQL a user can paste into the warehouse to check the load.
func RenderSummary(rec *models.WorkflowRecord) string {
	if rec == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Workflow ID: %s\n", rec.WorkflowID)
	fmt.Fprintf(&b, "Status:      %s\n", rec.Status)
	if rec.FailureCause != "" {
		fmt.Fprintf(&b, "Cause:       %s\n", rec.FailureCause)
	}
	fmt.Fprintf(&b, "Started:     %s\n", rec.CreatedAt.UTC().Format(time.RFC3339))
	if rec.CompletedAt != nil {
		fmt.Fprintf(&b, "Finished:    %s (%s)\n",
			rec.CompletedAt.UTC().Format(time.RFC3339),
			rec.CompletedAt.Sub(rec.CreatedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "Source:      %s\n", rec.File.Locator)
	b.WriteString("\n")

	if p := rec.Profile; p != nil {
		fmt.Fprintf(&b, "[ok]   Profiling: %d rows, %d columns, quality %.2f (%s)\n",
			p.TotalRows, p.TotalColumns, p.DataQuality.Score, p.DataQuality.Tier)
	} else {
		writeStageLine(&b, "Profiling", rec.ProfilingError)
	}
	if rec.InsightError != "" {
		writeStageLine(&b, "Insights", rec.InsightError)
	}

	switch {
	case rec.GeneratedScript == "":
		writeStageLine(&b, "Script generation", rec.GenerationError)
	case rec.ScriptPath == "":
		writeStageLine(&b, "Script persistence", rec.PersistenceError)
	default:
		fmt.Fprintf(&b, "[ok]   Script saved to: %s\n", rec.ScriptPath)
	}

	switch rec.ExecutionSuccess {
	case models.OutcomeSucceeded:
		fmt.Fprintf(&b, "[ok]   Script execution (%dms)\n", rec.ExecutionDurationMs)
	case models.OutcomeFailed:
		writeStageLine(&b, "Script execution", rec.ExecutionError)
	default:
		b.WriteString("[skip] Script execution: not attempted\n")
	}

	if rv := rec.RecordValidation; rv != nil {
		fmt.Fprintf(&b, "%s Record validation: %s\n", marker(rv.Status), rv.Message)
		processed := "n/a"
		if rv.ProcessedCount != nil {
			processed = fmt.Sprint(*rv.ProcessedCount)
		}
		fmt.Fprintf(&b, "       Source: %d | Warehouse: %d | Processed: %s\n",
			rv.SourceCount, rv.WarehouseCount, processed)
	}

	table := models.TargetTableName(rec.File.Filename)
	ir := rec.IngestionResult
	if ir != nil && ir.TargetTable != "" {
		table = ir.TargetTable
	}
	switch {
	case ir == nil || ir.Success == models.OutcomeNotAttempted:
		b.WriteString("[skip] Ingestion: not validated\n")
	case ir.Success == models.OutcomeSucceeded:
		fmt.Fprintf(&b, "[ok]   Ingestion: %d rows in %s\n", ir.RowCount, ir.TargetTable)
	default:
		writeStageLine(&b, "Ingestion", rec.IngestionError)
	}

	if rec.ScriptPath != "" {
		b.WriteString("\nVerification queries:\n")
		fmt.Fprintf(&b, "  SELECT COUNT(*) AS total_records FROM %s;\n", table)
		fmt.Fprintf(&b, "  SELECT * FROM %s LIMIT 10;\n", table)
		if rec.Profile != nil && rec.Profile.TotalRows > 0 {
			fmt.Fprintf(&b, "  SELECT COUNT(*) - %d AS difference_from_source FROM %s;\n", rec.Profile.TotalRows, table)
		}
	}

	return b.String()
}

func writeStageLine(b *strings.Builder, stage string, errText string) {
	if errText == "" {
		fmt.Fprintf(b, "[fail] %s\n", stage)
		return
	}
	fmt.Fprintf(b, "[fail] %s: %s\n", stage, errText)
}

func marker(status models.RecordValidationStatus) string {
	switch status {
	case models.RecordValidationSuccess:
		return "[ok]  "
	case models.RecordValidationWarning:
		return "[warn]"
	default:
		return "[fail]"
	}
}
