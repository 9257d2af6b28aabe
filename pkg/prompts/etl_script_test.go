package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

func sampleProfile() *models.DatasetProfile {
	return &models.DatasetProfile{
		TotalRows:    10,
		TotalColumns: 2,
		Columns: []models.ColumnProfile{
			{Name: "id", InferredType: models.TypeInteger, NonNullCount: 10, DistinctCount: 10, SQLType: "INTEGER"},
			{Name: "created_at", InferredType: models.TypeDatetime, NullCount: 2, NonNullCount: 8, DistinctCount: 8, SQLType: "TIMESTAMP", DateFormat: "2006-01-02"},
		},
		PrimaryKeyCandidates: []models.KeyCandidate{{Column: "id", Confidence: models.ConfidenceHigh, Uniqueness: 1}},
		DateColumns:          []string{"created_at"},
		DataQuality:          models.DataQuality{Score: 0.92, Tier: models.QualityGood},
	}
}

func TestBuildETLScriptPrompt(t *testing.T) {
	prompt := BuildETLScriptPrompt(ScriptContext{
		File:          models.FileRef{Locator: "s3://bucket/orders.csv", Filename: "orders.csv", ContentType: "text/csv"},
		Requirements:  "Drop rows without an id",
		Profile:       sampleProfile(),
		TargetTable:   "ETL_ORDERS",
		WarehouseType: "postgres",
		EnvVars:       []string{"WAREHOUSE_DSN", "TARGET_TABLE"},
	})

	assert.Contains(t, prompt, "s3://bucket/orders.csv")
	assert.Contains(t, prompt, "**File type**: csv")
	assert.Contains(t, prompt, "Drop rows without an id")
	assert.Contains(t, prompt, "- id: integer → INTEGER")
	assert.Contains(t, prompt, "[format 2006-01-02]")
	assert.Contains(t, prompt, "(20.0% null)")
	assert.Contains(t, prompt, "id (high confidence, 100.0% unique)")
	assert.Contains(t, prompt, "Parse these as timestamps: created_at")
	assert.Contains(t, prompt, "0.92 (good)")
	assert.Contains(t, prompt, "ETL_ORDERS")
	assert.Contains(t, prompt, "`WAREHOUSE_DSN`")
	assert.Contains(t, prompt, "Successfully loaded N rows")
}

func TestBuildETLScriptPrompt_DegradedMode(t *testing.T) {
	prompt := BuildETLScriptPrompt(ScriptContext{
		File:        models.FileRef{Locator: "/tmp/data"},
		TargetTable: "ETL_DATA",
	})

	assert.Contains(t, prompt, "Profiling was not available")
	assert.Contains(t, prompt, "**Original filename**: N/A")
	assert.Contains(t, prompt, "No additional requirements")
	assert.NotContains(t, prompt, "### Primary Key Candidates")
}

func TestBuildETLScriptPrompt_IncludesInsight(t *testing.T) {
	p := sampleProfile().WithInsight("Deduplicate on id before loading.")

	prompt := BuildETLScriptPrompt(ScriptContext{Profile: p, TargetTable: "ETL_X"})

	assert.Contains(t, prompt, "### Analyst Notes")
	assert.Contains(t, prompt, "Deduplicate on id before loading.")
}

func TestBuildInsightPrompt(t *testing.T) {
	prompt := BuildInsightPrompt(models.FileRef{Filename: "orders.csv"}, sampleProfile())

	assert.Contains(t, prompt, "File: orders.csv")
	assert.Contains(t, prompt, "Type: N/A")
	assert.Contains(t, prompt, "- created_at: datetime → TIMESTAMP")
	assert.Contains(t, prompt, "Data quality issues to monitor")
}

func TestFileExtension(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"orders.csv", "csv"},
		{"archive.tar.GZ", "gz"},
		{"noext", ""},
		{"trailing.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fileExtension(tt.name))
		})
	}
}
