package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

func TestParseOutputCounts(t *testing.T) {
	output := `INFO Successfully loaded 120 rows from local file
INFO Data transformation completed. 118 rows remaining
INFO Successfully inserted 50 rows into ETL_ORDERS (bulk insert)
INFO Successfully inserted 118 rows into ETL_ORDERS`

	counts := ParseOutputCounts(output)

	require.NotNil(t, counts.Processed)
	assert.Equal(t, int64(120), *counts.Processed)
	require.NotNil(t, counts.Inserted)
	assert.Equal(t, int64(118), *counts.Inserted, "last insert line wins")
}

func TestParseOutputCounts_RemainingOnly(t *testing.T) {
	counts := ParseOutputCounts("Data transformation completed. 7 rows remaining")

	require.NotNil(t, counts.Processed)
	assert.Equal(t, int64(7), *counts.Processed)
	assert.Nil(t, counts.Inserted)
}

func TestParseOutputCounts_NoMatches(t *testing.T) {
	counts := ParseOutputCounts("Traceback (most recent call last):\nValueError: boom")

	assert.Nil(t, counts.Processed)
	assert.Nil(t, counts.Inserted)
}

func TestValidateRecordCounts(t *testing.T) {
	n := func(v int64) *int64 { return &v }

	tests := []struct {
		name      string
		source    int64
		warehouse int64
		processed *int64
		want      models.RecordValidationStatus
	}{
		{name: "unknown source", source: 0, warehouse: 10, want: models.RecordValidationWarning},
		{name: "empty warehouse", source: 10, warehouse: 0, want: models.RecordValidationFailed},
		{name: "exact match", source: 100, warehouse: 100, want: models.RecordValidationSuccess},
		{name: "processed matches warehouse", source: 100, warehouse: 80, processed: n(80), want: models.RecordValidationSuccess},
		{name: "within five percent", source: 100, warehouse: 95, want: models.RecordValidationSuccess},
		{name: "within fifteen percent", source: 100, warehouse: 86, want: models.RecordValidationWarning},
		{name: "significant loss", source: 100, warehouse: 50, want: models.RecordValidationFailed},
		{name: "more rows than source", source: 100, warehouse: 130, want: models.RecordValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv := ValidateRecordCounts(tt.source, tt.warehouse, tt.processed)

			assert.Equal(t, tt.want, rv.Status, rv.Message)
			assert.Equal(t, tt.source, rv.SourceCount)
			assert.Equal(t, tt.warehouse, rv.WarehouseCount)
			assert.NotEmpty(t, rv.Message)
		})
	}
}
