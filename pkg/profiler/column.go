package profiler

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// columnResult is the outcome of analysing one column in isolation.
type columnResult struct {
	profile  models.ColumnProfile
	temporal bool
}

// profileColumn computes every per-column fact. It is a pure function of the
// column's values so columns can be analysed in parallel.
func profileColumn(col models.Column, opts Options) columnResult {
	cp := models.ColumnProfile{Name: col.Name}

	cells := make([]cell, 0, len(col.Values))
	raw := make([]any, 0, len(col.Values))
	counts := make(map[models.InferredType]int, 5)
	for _, v := range col.Values {
		if models.IsNullValue(v) {
			cp.NullCount++
			continue
		}
		c := classify(v)
		cells = append(cells, c)
		raw = append(raw, v)
		counts[c.kind]++
	}
	cp.NonNullCount = len(cells)
	cp.InferredType = inferType(counts, cp.NonNullCount, opts.TypeAgreement)

	distinct := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		distinct[c.distinctKey(cp.InferredType)] = struct{}{}
	}
	cp.DistinctCount = len(distinct)

	applyRangeStats(&cp, cells)
	cp.SQLType = recommendSQLType(cp)

	res := columnResult{profile: cp}
	switch {
	case cp.InferredType == models.TypeDatetime:
		res.temporal = true
		res.profile.DateFormat = majorityLayout(cells)
	case isTemporalName(col.Name, opts):
		if layout, ok := sampleParsesAsDates(raw, opts); ok {
			res.temporal = true
			res.profile.DateFormat = layout
		}
	}
	return res
}

// inferType picks the column type from per-value classifications. A type
// must cover at least the agreement share of non-null values; integers count
// toward float when floats are present.
func inferType(counts map[models.InferredType]int, nonNull int, agreement float64) models.InferredType {
	if nonNull == 0 {
		return models.TypeUnknown
	}

	best := models.TypeUnknown
	bestCount := 0
	for _, t := range []models.InferredType{models.TypeInteger, models.TypeFloat, models.TypeBoolean, models.TypeDatetime, models.TypeText} {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	if float64(bestCount)/float64(nonNull) >= agreement {
		return best
	}

	numeric := counts[models.TypeInteger] + counts[models.TypeFloat]
	if counts[models.TypeFloat] > 0 && float64(numeric)/float64(nonNull) >= agreement {
		return models.TypeFloat
	}
	return models.TypeUnknown
}

// applyRangeStats fills min, max, mean and max length for the inferred type.
// Values that disagree with the column type are ignored.
func applyRangeStats(cp *models.ColumnProfile, cells []cell) {
	switch cp.InferredType {
	case models.TypeInteger:
		var minV, maxV int64
		var sum float64
		n := 0
		for _, c := range cells {
			if c.kind != models.TypeInteger {
				continue
			}
			if n == 0 || c.i < minV {
				minV = c.i
			}
			if n == 0 || c.i > maxV {
				maxV = c.i
			}
			sum += float64(c.i)
			n++
		}
		if n > 0 {
			mean := sum / float64(n)
			cp.Min, cp.Max, cp.Mean = minV, maxV, &mean
		}
	case models.TypeFloat:
		minV, maxV := math.Inf(1), math.Inf(-1)
		var sum float64
		n := 0
		for _, c := range cells {
			if c.kind != models.TypeInteger && c.kind != models.TypeFloat {
				continue
			}
			minV = math.Min(minV, c.f)
			maxV = math.Max(maxV, c.f)
			sum += c.f
			n++
		}
		if n > 0 {
			mean := sum / float64(n)
			cp.Min, cp.Max, cp.Mean = minV, maxV, &mean
		}
	case models.TypeDatetime:
		var minV, maxV time.Time
		n := 0
		for _, c := range cells {
			if c.kind != models.TypeDatetime {
				continue
			}
			if n == 0 || c.t.Before(minV) {
				minV = c.t
			}
			if n == 0 || c.t.After(maxV) {
				maxV = c.t
			}
			n++
		}
		if n > 0 {
			cp.Min, cp.Max = minV, maxV
		}
	case models.TypeText, models.TypeUnknown:
		for _, c := range cells {
			if l := utf8.RuneCountInString(c.s); l > cp.MaxLength {
				cp.MaxLength = l
			}
		}
	}
}

// recommendSQLType maps a profiled column to a portable warehouse type.
func recommendSQLType(cp models.ColumnProfile) string {
	switch cp.InferredType {
	case models.TypeInteger:
		if lo, ok := cp.Min.(int64); ok && lo < math.MinInt32 {
			return "BIGINT"
		}
		if hi, ok := cp.Max.(int64); ok && hi > math.MaxInt32 {
			return "BIGINT"
		}
		return "INTEGER"
	case models.TypeFloat:
		return "FLOAT"
	case models.TypeBoolean:
		return "BOOLEAN"
	case models.TypeDatetime:
		return "TIMESTAMP"
	case models.TypeText:
		switch {
		case cp.MaxLength > 255:
			return "TEXT"
		case cp.MaxLength < 1:
			return "VARCHAR(1)"
		default:
			return fmt.Sprintf("VARCHAR(%d)", cp.MaxLength)
		}
	default:
		return "VARCHAR(255)"
	}
}

// isTemporalName reports whether a column name belongs to the audit
// vocabulary.
func isTemporalName(name string, opts Options) bool {
	lower := strings.ToLower(name)
	for _, tok := range opts.DateNameTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	for _, suffix := range opts.DateNameSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// sampleParsesAsDates checks whether more than DateParseRatio of the first
// DateSampleSize non-null values parse as dates. Zero parseable samples
// always rejects.
func sampleParsesAsDates(values []any, opts Options) (string, bool) {
	n := len(values)
	if n > opts.DateSampleSize {
		n = opts.DateSampleSize
	}
	if n == 0 {
		return "", false
	}

	parsed := 0
	layouts := make(map[string]int)
	for _, v := range values[:n] {
		layout, ok := parseDateValue(v)
		if !ok {
			continue
		}
		parsed++
		layouts[layout]++
	}
	if parsed == 0 || float64(parsed)/float64(n) <= opts.DateParseRatio {
		return "", false
	}
	return pickLayout(layouts), true
}

func majorityLayout(cells []cell) string {
	layouts := make(map[string]int)
	for _, c := range cells {
		if c.kind == models.TypeDatetime {
			layouts[c.layout]++
		}
	}
	return pickLayout(layouts)
}

// pickLayout returns the most frequent layout, breaking ties by the fixed
// layout order.
func pickLayout(counts map[string]int) string {
	best, bestCount := "", 0
	for _, layout := range dateLayouts {
		if counts[layout] > bestCount {
			best, bestCount = layout, counts[layout]
		}
	}
	return best
}
