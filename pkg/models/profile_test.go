package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  QualityTier
	}{
		{1.0, QualityExcellent},
		{0.95, QualityExcellent},
		{0.9499, QualityGood},
		{0.80, QualityGood},
		{0.5, QualityFair},
		{0.4999, QualityPoor},
		{0, QualityPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierForScore(tt.score), "score %v", tt.score)
	}
}

func TestDatasetProfile_WithInsightCopies(t *testing.T) {
	p := &DatasetProfile{
		TotalRows:   2,
		Columns:     []ColumnProfile{{Name: "id"}},
		DateColumns: []string{"created_at"},
	}
	annotated := p.WithInsight("ids are sequential")

	assert.Empty(t, p.InsightText)
	assert.Equal(t, "ids are sequential", annotated.InsightText)
	annotated.Columns[0].Name = "changed"
	assert.Equal(t, "id", p.Columns[0].Name)

	col, ok := p.Column("id")
	assert.True(t, ok)
	assert.Equal(t, "id", col.Name)
}

func TestIsNullValue(t *testing.T) {
	for _, v := range []any{nil, "", "  ", "NULL", "None", "NaN", "n/a", "NA"} {
		assert.True(t, IsNullValue(v), "%#v", v)
	}
	for _, v := range []any{"0", "nothing", 0, false, 0.0} {
		assert.False(t, IsNullValue(v), "%#v", v)
	}
}
