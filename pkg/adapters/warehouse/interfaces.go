// Package warehouse defines the narrow warehouse surface the pipeline needs
// after a script has run: reachability, table existence and row counts.
package warehouse

import (
	"context"
	"errors"
)

// ErrUnknownType is returned by Open for a type with no registered adapter.
var ErrUnknownType = errors.New("unknown warehouse type")

// Warehouse is implemented by every adapter. Each implementation owns its
// connection and must be closed when done.
type Warehouse interface {
	// Ping verifies the warehouse is reachable with valid credentials.
	Ping(ctx context.Context) error

	// TableExists reports whether the table exists. Lookup is
	// case-insensitive because generated scripts rarely quote identifiers.
	TableExists(ctx context.Context, table string) (bool, error)

	// RowCount returns COUNT(*) for an existing table.
	RowCount(ctx context.Context, table string) (int64, error)

	Close() error
}
