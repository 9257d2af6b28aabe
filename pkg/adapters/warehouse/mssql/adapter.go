// Package mssql is the SQL Server warehouse adapter.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse"
)

const (
	defaultPort   = 1433
	defaultSchema = "dbo"
)

func init() {
	warehouse.Register(warehouse.Registration{
		Info: warehouse.AdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "SQL Server 2019+, Azure SQL Database",
		},
		Factory: func(ctx context.Context, cfg warehouse.Config) (warehouse.Warehouse, error) {
			return NewAdapter(ctx, cfg)
		},
	})
}

// Adapter provides SQL Server connectivity.
type Adapter struct {
	db     *sql.DB
	schema string
}

// buildConnectionString returns the driver name and DSN for the configured
// auth method. "sql" uses SQL authentication; "service_principal" uses Azure
// AD client credentials, with the client secret carried in Password.
func buildConnectionString(cfg warehouse.Config) (string, string, error) {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	host := warehouse.ResolveHost(cfg.Host)

	switch cfg.AuthMethod {
	case "", "sql":
		if cfg.User == "" {
			return "", "", fmt.Errorf("user is required for SQL authentication")
		}
		return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
			url.QueryEscape(cfg.User),
			url.QueryEscape(cfg.Password),
			host,
			port,
			query.Encode(),
		), nil
	case "service_principal":
		if cfg.TenantID == "" || cfg.ClientID == "" {
			return "", "", fmt.Errorf("tenant_id and client_id are required for service principal")
		}
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID+"@"+cfg.TenantID)
		query.Add("password", cfg.Password)
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", host, port, query.Encode()), nil
	default:
		return "", "", fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}
}

// NewAdapter opens a connection pool. Connections are established lazily.
func NewAdapter(_ context.Context, cfg warehouse.Config) (*Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	driver, dsn, err := buildConnectionString(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	schema := cfg.Schema
	if schema == "" {
		schema = defaultSchema
	}
	return &Adapter{db: db, schema: schema}, nil
}

// Ping verifies the warehouse is reachable.
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

	const q = `
		SELECT TOP 1 TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1 AND UPPER(TABLE_NAME) = UPPER(@p2)`

	var name string
	err := a.db.QueryRowContext(ctx, q, a.schema, table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
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

// RowCount returns the number of rows in table. COUNT_BIG avoids int
// overflow on very large tables.
func (a *Adapter) RowCount(ctx context.Context, table string) (int64, error) {
	name, ok, err := a.resolveTable(ctx, table)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("table %s does not exist", table)
	}

	query := fmt.Sprintf("SELECT COUNT_BIG(*) FROM %s.%s", quoteIdentifier(a.schema), quoteIdentifier(name))
	var count int64
	if err := a.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", name, err)
	}
	return count, nil
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func quoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

var _ warehouse.Warehouse = (*Adapter)(nil)
