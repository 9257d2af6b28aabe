package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse"
	"github.com/ekaya-inc/ekaya-etl/pkg/logging"
)

// IngestionVerdict is the warehouse state observed after a script ran.
type IngestionVerdict struct {
	Table       string
	TableExists bool
	RowCount    int64 // -1 when the warehouse was unreachable
	Success     bool
	Reachable   bool
}

// IngestionValidator checks that a script actually loaded data.
type IngestionValidator interface {
	// Validate reports whether table exists with at least expectedMinRows
	// rows. A failed check returns the verdict and a *ValidationError.
	Validate(ctx context.Context, table string, expectedMinRows int64) (*IngestionVerdict, error)

	// ValidateCandidates validates the first candidate table that exists,
	// falling back to the first name when none do.
	ValidateCandidates(ctx context.Context, tables []string, expectedMinRows int64) (*IngestionVerdict, error)
}

// WarehouseOpener connects to a warehouse. warehouse.Open satisfies it.
type WarehouseOpener func(ctx context.Context, cfg warehouse.Config) (warehouse.Warehouse, error)

type ingestionValidator struct {
	cfg    warehouse.Config
	open   WarehouseOpener
	logger *zap.Logger
}

// NewIngestionValidator creates a validator that opens a fresh connection
// per check. A nil opener uses the adapter registry.
func NewIngestionValidator(cfg warehouse.Config, open WarehouseOpener, logger *zap.Logger) IngestionValidator {
	if open == nil {
		open = warehouse.Open
	}
	return &ingestionValidator{
		cfg:    cfg,
		open:   open,
		logger: logger.Named("ingestion-validator"),
	}
}

var _ IngestionValidator = (*ingestionValidator)(nil)

func (v *ingestionValidator) Validate(ctx context.Context, table string, expectedMinRows int64) (*IngestionVerdict, error) {
	return v.ValidateCandidates(ctx, []string{table}, expectedMinRows)
}

func (v *ingestionValidator) ValidateCandidates(ctx context.Context, tables []string, expectedMinRows int64) (*IngestionVerdict, error) {
	if len(tables) == 0 {
		return nil, &ValidationError{Err: fmt.Errorf("no target table")}
	}
	for _, t := range tables {
		if err := warehouse.ValidateIdentifier(t); err != nil {
			return &IngestionVerdict{Table: tables[0], RowCount: -1, Reachable: false},
				&ValidationError{Table: t, Err: err}
		}
	}

	unreachable := func(err error) (*IngestionVerdict, error) {
		v.logger.Warn("Warehouse unreachable",
			zap.String("type", v.cfg.Type),
			zap.String("error", logging.SanitizeError(err)))
		return &IngestionVerdict{Table: tables[0], RowCount: -1, Reachable: false},
			&ValidationError{Table: tables[0], Unreachable: true, Err: err}
	}

	wh, err := v.open(ctx, v.cfg)
	if err != nil {
		return unreachable(err)
	}
	defer func() {
		if cerr := wh.Close(); cerr != nil {
			v.logger.Warn("Failed to close warehouse connection", zap.Error(cerr))
		}
	}()

	if err := wh.Ping(ctx); err != nil {
		return unreachable(err)
	}

	table := tables[0]
	exists := false
	for _, t := range tables {
		ok, err := wh.TableExists(ctx, t)
		if err != nil {
			return unreachable(fmt.Errorf("check table %s: %w", t, err))
		}
		if ok {
			table, exists = t, true
			break
		}
	}

	verdict := &IngestionVerdict{Table: table, TableExists: exists, Reachable: true}
	if !exists {
		v.logger.Info("Target table not found", zap.Strings("candidates", tables))
		return verdict, &ValidationError{Table: table, Err: fmt.Errorf("table %s does not exist", table)}
	}

	count, err := wh.RowCount(ctx, table)
	if err != nil {
		return unreachable(fmt.Errorf("count rows in %s: %w", table, err))
	}
	verdict.RowCount = count
	verdict.Success = count >= expectedMinRows

	v.logger.Info("Ingestion validated",
		zap.String("table", table),
		zap.Int64("row_count", count),
		zap.Int64("expected_min_rows", expectedMinRows),
		zap.Bool("success", verdict.Success))

	if !verdict.Success {
		return verdict, &ValidationError{
			Table: table,
			Err:   fmt.Errorf("found %d rows, expected at least %d", count, expectedMinRows),
		}
	}
	return verdict, nil
}
