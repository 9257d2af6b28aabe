package models

// InferredType is the logical type assigned to a column by the profiler.
type InferredType string

const (
	TypeInteger  InferredType = "integer"
	TypeFloat    InferredType = "float"
	TypeText     InferredType = "text"
	TypeDatetime InferredType = "datetime"
	TypeBoolean  InferredType = "boolean"
	TypeUnknown  InferredType = "unknown"
)

// IsNumeric returns true for integer and float columns.
func (t InferredType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// KeyConfidence grades a primary-key candidate.
type KeyConfidence string

const (
	ConfidenceHigh   KeyConfidence = "high"
	ConfidenceMedium KeyConfidence = "medium"
	ConfidenceLow    KeyConfidence = "low"
)

// Rank orders confidences high (0) to low (2).
func (c KeyConfidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 0
	case ConfidenceMedium:
		return 1
	default:
		return 2
	}
}

// QualityTier is the categorical bucket of a quality score.
type QualityTier string

const (
	QualityExcellent QualityTier = "excellent"
	QualityGood      QualityTier = "good"
	QualityFair      QualityTier = "fair"
	QualityPoor      QualityTier = "poor"
)

// TierForScore maps a score in [0,1] to its tier.
func TierForScore(score float64) QualityTier {
	switch {
	case score >= 0.95:
		return QualityExcellent
	case score >= 0.80:
		return QualityGood
	case score >= 0.50:
		return QualityFair
	default:
		return QualityPoor
	}
}

// ColumnProfile holds per-column statistics.
type ColumnProfile struct {
	Name          string       `json:"name" yaml:"name"`
	InferredType  InferredType `json:"inferred_type" yaml:"inferred_type"`
	NullCount     int          `json:"null_count" yaml:"null_count"`
	NonNullCount  int          `json:"non_null_count" yaml:"non_null_count"`
	DistinctCount int          `json:"distinct_count" yaml:"distinct_count"`
	Min           any          `json:"min" yaml:"min"`
	Max           any          `json:"max" yaml:"max"`
	Mean          *float64     `json:"mean,omitempty" yaml:"mean,omitempty"`
	MaxLength     int          `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	SQLType       string       `json:"sql_type" yaml:"sql_type"`
	DateFormat    string       `json:"date_format,omitempty" yaml:"date_format,omitempty"`
}

// Uniqueness is distinct/non-null, or 0 for an all-null column.
func (c ColumnProfile) Uniqueness() float64 {
	if c.NonNullCount == 0 {
		return 0
	}
	return float64(c.DistinctCount) / float64(c.NonNullCount)
}

// KeyCandidate is a column that may serve as a primary key.
type KeyCandidate struct {
	Column     string        `json:"column" yaml:"column"`
	Confidence KeyConfidence `json:"confidence" yaml:"confidence"`
	Uniqueness float64       `json:"uniqueness" yaml:"uniqueness"`
	NullRate   float64       `json:"null_rate" yaml:"null_rate"`
}

// DataQuality is the aggregate quality assessment of a dataset.
type DataQuality struct {
	Score float64     `json:"score" yaml:"score"`
	Tier  QualityTier `json:"tier" yaml:"tier"`
}

// DatasetProfile is the profiler's output. It is never mutated after
// creation; annotation produces a copy.
type DatasetProfile struct {
	TotalRows            int             `json:"total_rows" yaml:"total_rows"`
	TotalColumns         int             `json:"total_columns" yaml:"total_columns"`
	Columns              []ColumnProfile `json:"columns" yaml:"columns"`
	PrimaryKeyCandidates []KeyCandidate  `json:"primary_key_candidates" yaml:"primary_key_candidates"`
	DateColumns          []string        `json:"date_columns" yaml:"date_columns"`
	DataQuality          DataQuality     `json:"data_quality" yaml:"data_quality"`
	InsightText          string          `json:"insight_text,omitempty" yaml:"insight_text,omitempty"`
}

// Column returns the profile for the named column.
func (p *DatasetProfile) Column(name string) (ColumnProfile, bool) {
	if p == nil {
		return ColumnProfile{}, false
	}
	for _, c := range p.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnProfile{}, false
}

// WithInsight returns a copy of the profile carrying the given insight text.
func (p *DatasetProfile) WithInsight(text string) *DatasetProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Columns = append([]ColumnProfile(nil), p.Columns...)
	cp.PrimaryKeyCandidates = append([]KeyCandidate(nil), p.PrimaryKeyCandidates...)
	cp.DateColumns = append([]string(nil), p.DateColumns...)
	cp.InsightText = text
	return &cp
}
