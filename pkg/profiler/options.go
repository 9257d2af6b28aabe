package profiler

// Options holds the profiling thresholds. The defaults reproduce the
// documented behavior; every value may be overridden from configuration.
type Options struct {
	// MinUniqueness is the lowest distinct/non-null ratio for a key candidate.
	MinUniqueness float64
	// MaxNullRate is the highest null/total ratio for a key candidate.
	MaxNullRate float64
	// MediumUniqueness is the uniqueness at which a candidate becomes "medium".
	MediumUniqueness float64
	// TypeAgreement is the share of non-null values that must agree on a type.
	TypeAgreement float64
	// DateSampleSize bounds how many non-null values are tried as dates.
	DateSampleSize int
	// DateParseRatio is the share of sampled values that must parse; the
	// comparison is strict (more than half by default).
	DateParseRatio float64
	// DateNameTokens are substrings that mark a column name as temporal.
	DateNameTokens []string
	// DateNameSuffixes are suffixes that mark a column name as temporal.
	DateNameSuffixes []string
	// MaxConcurrent bounds how many columns are profiled in parallel.
	MaxConcurrent int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		MinUniqueness:    0.95,
		MaxNullRate:      0.05,
		MediumUniqueness: 0.99,
		TypeAgreement:    0.90,
		DateSampleSize:   100,
		DateParseRatio:   0.5,
		DateNameTokens:   []string{"date", "time", "created", "updated", "timestamp", "modified"},
		DateNameSuffixes: []string{"_at", "dt"},
		MaxConcurrent:    8,
	}
}

// withDefaults fills zero values from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinUniqueness <= 0 {
		o.MinUniqueness = d.MinUniqueness
	}
	if o.MaxNullRate <= 0 {
		o.MaxNullRate = d.MaxNullRate
	}
	if o.MediumUniqueness <= 0 {
		o.MediumUniqueness = d.MediumUniqueness
	}
	if o.TypeAgreement <= 0 {
		o.TypeAgreement = d.TypeAgreement
	}
	if o.DateSampleSize <= 0 {
		o.DateSampleSize = d.DateSampleSize
	}
	if o.DateParseRatio <= 0 {
		o.DateParseRatio = d.DateParseRatio
	}
	if len(o.DateNameTokens) == 0 {
		o.DateNameTokens = d.DateNameTokens
	}
	if len(o.DateNameSuffixes) == 0 {
		o.DateNameSuffixes = d.DateNameSuffixes
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = d.MaxConcurrent
	}
	return o
}
