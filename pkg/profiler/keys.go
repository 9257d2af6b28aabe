package profiler

import (
	"sort"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// keyCandidates returns the qualifying columns ordered by descending
// uniqueness, then ascending null rate, then original column order.
func keyCandidates(columns []models.ColumnProfile, totalRows int, opts Options) []models.KeyCandidate {
	out := make([]models.KeyCandidate, 0)
	if totalRows == 0 {
		return out
	}

	for _, c := range columns {
		if c.NonNullCount == 0 {
			continue
		}
		uniqueness := c.Uniqueness()
		nullRate := float64(c.NullCount) / float64(totalRows)
		if uniqueness < opts.MinUniqueness || nullRate > opts.MaxNullRate {
			continue
		}
		out = append(out, models.KeyCandidate{
			Column:     c.Name,
			Confidence: confidenceFor(uniqueness, nullRate, opts),
			Uniqueness: uniqueness,
			NullRate:   nullRate,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Uniqueness != out[j].Uniqueness {
			return out[i].Uniqueness > out[j].Uniqueness
		}
		return out[i].NullRate < out[j].NullRate
	})
	return out
}

func confidenceFor(uniqueness, nullRate float64, opts Options) models.KeyConfidence {
	switch {
	case uniqueness == 1.0 && nullRate == 0:
		return models.ConfidenceHigh
	case uniqueness >= opts.MediumUniqueness:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
