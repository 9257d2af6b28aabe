package stages

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// Variance thresholds, in percent of the source row count.
const (
	RecordVarianceSuccessPct = 5.0
	RecordVarianceWarningPct = 15.0
)

var (
	loadedRowsPattern    = regexp.MustCompile(`Successfully loaded (\d+) rows`)
	remainingRowsPattern = regexp.MustCompile(`(\d+) rows remaining`)
	insertedRowsPattern  = regexp.MustCompile(`Successfully inserted (\d+) rows`)
)

// OutputCounts are row counts reported by a script on its output.
type OutputCounts struct {
	Processed *int64 // rows read or left after transformation
	Inserted  *int64 // final insert count
}

// ParseOutputCounts scans script output for the progress lines generated
// scripts are asked to print. Loaded and remaining counts take the larger
// of their first occurrences; the inserted count takes the last one.
func ParseOutputCounts(output string) OutputCounts {
	var counts OutputCounts

	first := func(re *regexp.Regexp) (int64, bool) {
		m := re.FindStringSubmatch(output)
		if m == nil {
			return 0, false
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		return n, err == nil
	}

	loaded, okLoaded := first(loadedRowsPattern)
	remaining, okRemaining := first(remainingRowsPattern)
	if okLoaded || okRemaining {
		n := max(loaded, remaining)
		counts.Processed = &n
	}

	if all := insertedRowsPattern.FindAllStringSubmatch(output, -1); len(all) > 0 {
		if n, err := strconv.ParseInt(all[len(all)-1][1], 10, 64); err == nil {
			counts.Inserted = &n
		}
	}
	return counts
}

// ValidateRecordCounts grades how well the warehouse matches the source.
func ValidateRecordCounts(source, warehouse int64, processed *int64) *models.RecordValidation {
	rv := &models.RecordValidation{
		SourceCount:    source,
		WarehouseCount: warehouse,
		ProcessedCount: processed,
	}

	switch {
	case source == 0:
		rv.Status = models.RecordValidationWarning
		rv.Message = "Could not determine source record count"
	case warehouse == 0:
		rv.Status = models.RecordValidationFailed
		rv.Message = "No records found in warehouse table"
	case source == warehouse:
		rv.Status = models.RecordValidationSuccess
		rv.Message = fmt.Sprintf("Perfect match: %d records in both source and warehouse", source)
	case processed != nil && *processed > 0 && *processed == warehouse:
		rv.Status = models.RecordValidationSuccess
		rv.Message = fmt.Sprintf("%d records processed and loaded (%d filtered or cleaned)", *processed, source-*processed)
	default:
		variance := math.Abs(float64(source-warehouse)) / float64(source) * 100
		switch {
		case variance <= RecordVarianceSuccessPct:
			rv.Status = models.RecordValidationSuccess
			rv.Message = fmt.Sprintf("Acceptable variance: %.1f%% difference (%d/%d)", variance, warehouse, source)
		case variance <= RecordVarianceWarningPct:
			rv.Status = models.RecordValidationWarning
			rv.Message = fmt.Sprintf("Record count mismatch: %.1f%% difference (%d/%d)", variance, warehouse, source)
		default:
			rv.Status = models.RecordValidationFailed
			rv.Message = fmt.Sprintf("Significant record loss: %.1f%% difference (%d/%d)", variance, warehouse, source)
		}
	}
	return rv
}
