// Package postgres is the PostgreSQL warehouse adapter.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse"
)

const (
	defaultPort   = 5432
	defaultSchema = "public"
)

func init() {
	warehouse.Register(warehouse.Registration{
		Info: warehouse.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		Factory: func(ctx context.Context, cfg warehouse.Config) (warehouse.Warehouse, error) {
			return NewAdapter(ctx, cfg)
		},
	})
}

// Adapter provides PostgreSQL connectivity.
type Adapter struct {
	pool   *pgxpool.Pool
	schema string
}

// buildConnectionString builds a PostgreSQL URL. User-provided fields are
// escaped so passwords containing @, / or # survive URL parsing.
func buildConnectionString(cfg warehouse.Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		warehouse.ResolveHost(cfg.Host),
		port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}

// NewAdapter creates a pool. Connections are established lazily.
func NewAdapter(ctx context.Context, cfg warehouse.Config) (*Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	pool, err := pgxpool.New(ctx, buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	schema := cfg.Schema
	if schema == "" {
		schema = defaultSchema
	}
	return &Adapter{pool: pool, schema: schema}, nil
}

// Ping verifies the warehouse is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// resolveTable returns the stored name of table, matching case-insensitively.
// Unquoted identifiers are folded to lower case by PostgreSQL.
func (a *Adapter) resolveTable(ctx context.Context, table string) (string, bool, error) {
	if err := warehouse.ValidateIdentifier(table); err != nil {
		return "", false, err
	}

	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND lower(table_name) = lower($2)
		ORDER BY (table_name = $2) DESC
		LIMIT 1`

	var name string
	err := a.pool.QueryRow(ctx, q, a.schema, table).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return name, true, nil
}

// TableExists reports whether the table exists in the configured schema.
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

	query := "SELECT COUNT(*) FROM " + pgx.Identifier{a.schema, name}.Sanitize()
	var count int64
	if err := a.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", name, err)
	}
	return count, nil
}

// Close releases the pool.
func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

var _ warehouse.Warehouse = (*Adapter)(nil)
