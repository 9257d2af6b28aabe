// Package profiler infers structural facts about a tabular dataset without a
// schema: column types, key candidates, temporal columns and a quality score.
package profiler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
	"github.com/ekaya-inc/ekaya-etl/pkg/workerpool"
)

// Profiler computes a DatasetProfile. It never mutates its input.
type Profiler struct {
	opts   Options
	pool   *workerpool.Pool
	logger *zap.Logger
}

// New creates a profiler. Zero-valued options fall back to the defaults.
func New(opts Options, logger *zap.Logger) *Profiler {
	opts = opts.withDefaults()
	return &Profiler{
		opts:   opts,
		pool:   workerpool.New(workerpool.Config{MaxConcurrent: opts.MaxConcurrent}, logger),
		logger: logger.Named("profiler"),
	}
}

// Options returns the effective thresholds.
func (p *Profiler) Options() Options {
	return p.opts
}

// Profile analyses every column and assembles the dataset profile. It fails
// only on structurally invalid input or cancellation, with a *ProfilingError.
func (p *Profiler) Profile(ctx context.Context, ds *models.Dataset) (*models.DatasetProfile, error) {
	if err := validateStructure(ds); err != nil {
		return nil, err
	}

	start := time.Now()
	totalRows := ds.RowCount()

	items := make([]workerpool.Item[columnResult], len(ds.Columns))
	for i, col := range ds.Columns {
		col := col
		items[i] = workerpool.Item[columnResult]{
			ID: col.Name,
			Execute: func(ctx context.Context) (res columnResult, err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("panic analysing column: %v", r)
					}
				}()
				return profileColumn(col, p.opts), nil
			},
		}
	}

	results := workerpool.Process(ctx, p.pool, items, nil)

	profile := &models.DatasetProfile{
		TotalRows:    totalRows,
		TotalColumns: len(ds.Columns),
		Columns:      make([]models.ColumnProfile, 0, len(results)),
		DateColumns:  make([]string, 0),
	}
	for _, r := range results {
		if r.Err != nil {
			return nil, &ProfilingError{Reason: "column analysis failed", Column: r.ID, Err: r.Err}
		}
		profile.Columns = append(profile.Columns, r.Result.profile)
		if r.Result.temporal && totalRows > 0 {
			profile.DateColumns = append(profile.DateColumns, r.Result.profile.Name)
		}
	}

	profile.PrimaryKeyCandidates = keyCandidates(profile.Columns, totalRows, p.opts)
	profile.DataQuality = qualityScore(profile.Columns, totalRows, len(profile.PrimaryKeyCandidates) > 0)

	p.logger.Debug("Dataset profiled",
		zap.String("dataset", ds.Name),
		zap.Int("rows", totalRows),
		zap.Int("columns", profile.TotalColumns),
		zap.Int("key_candidates", len(profile.PrimaryKeyCandidates)),
		zap.Int("date_columns", len(profile.DateColumns)),
		zap.Float64("quality", profile.DataQuality.Score),
		zap.Duration("elapsed", time.Since(start)))

	return profile, nil
}

// validateStructure rejects input that cannot be profiled at all. A dataset
// with no columns is valid and yields a degenerate profile.
func validateStructure(ds *models.Dataset) error {
	if ds == nil {
		return &ProfilingError{Reason: "dataset is nil"}
	}
	rows := ds.RowCount()
	seen := make(map[string]struct{}, len(ds.Columns))
	for i, col := range ds.Columns {
		if col.Name == "" {
			return &ProfilingError{Reason: fmt.Sprintf("column %d has no name", i)}
		}
		if _, dup := seen[col.Name]; dup {
			return &ProfilingError{Reason: "duplicate column name", Column: col.Name}
		}
		seen[col.Name] = struct{}{}
		if len(col.Values) != rows {
			return &ProfilingError{
				Reason: fmt.Sprintf("ragged column: %d values, expected %d", len(col.Values), rows),
				Column: col.Name,
			}
		}
	}
	return nil
}
