package profiler

import (
	"math"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// Quality score weights. They sum to 1 so a clean, typed, keyed dataset
// scores exactly 1.
const (
	completenessWeight = 0.6
	typedWeight        = 0.3
	keyBonusWeight     = 0.1
)

// qualityScore combines completeness, the share of confidently typed columns
// and the presence of a key candidate. Zero rows or zero columns score 0.
func qualityScore(columns []models.ColumnProfile, totalRows int, hasKey bool) models.DataQuality {
	if totalRows == 0 || len(columns) == 0 {
		return models.DataQuality{Score: 0, Tier: models.TierForScore(0)}
	}

	nulls, unknown := 0, 0
	for _, c := range columns {
		nulls += c.NullCount
		if c.InferredType == models.TypeUnknown {
			unknown++
		}
	}

	completeness := 1 - float64(nulls)/float64(totalRows*len(columns))
	typed := 1 - float64(unknown)/float64(len(columns))
	bonus := 0.0
	if hasKey {
		bonus = 1
	}

	score := completenessWeight*completeness + typedWeight*typed + keyBonusWeight*bonus
	score = math.Round(score*10000) / 10000
	score = math.Max(0, math.Min(1, score))
	return models.DataQuality{Score: score, Tier: models.TierForScore(score)}
}
