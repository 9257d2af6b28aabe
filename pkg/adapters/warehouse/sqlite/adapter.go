// Package sqlite is the SQLite warehouse adapter. It backs local runs and
// tests that should not need a database server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse"
)

func init() {
	warehouse.Register(warehouse.Registration{
		Info: warehouse.AdapterInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Description: "Local SQLite database file",
		},
		Factory: func(ctx context.Context, cfg warehouse.Config) (warehouse.Warehouse, error) {
			return NewAdapter(ctx, cfg)
		},
	})
}

// Adapter provides SQLite connectivity.
type Adapter struct {
	db *sql.DB
}

// NewAdapter opens the database file at cfg.Path (or cfg.Database when Path
// is empty).
func NewAdapter(_ context.Context, cfg warehouse.Config) (*Adapter, error) {
	path := cfg.Path
	if path == "" {
		path = cfg.Database
	}
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Adapter{db: db}, nil
}

// Ping verifies the database file can be opened.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (a *Adapter) resolveTable(ctx context.Context, table string) (string, bool, error) {
	if err := warehouse.ValidateIdentifier(table); err != nil {
		return "", false, err
	}

	var name string
	err := a.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE LIMIT 1`,
		table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return name, true, nil
}

// TableExists reports whether the table exists.
func (a *Adapter) TableExists(ctx context.Context, table string) (bool, error) {
	_, ok, err := a.resolveTable(ctx, table)
	return ok, err
}

// RowCount returns the number of rows in table.
func (a *Adapter) RowCount(ctx context.Context, table string) (int64, error) {
	name, ok, err := a.resolveTable(ctx, table)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("table %s does not exist", table)
	}

	var count int64
	query := `SELECT COUNT(*) FROM "` + strings.ReplaceAll(name, `"`, `""`) + `"`
	if err := a.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", name, err)
	}
	return count, nil
}

// Close closes the database.
func (a *Adapter) Close() error {
	return a.db.Close()
}

var _ warehouse.Warehouse = (*Adapter)(nil)
