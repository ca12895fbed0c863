package sisyphus

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connector is a unified interface for establishing database connections.
type Connector interface {
	// Connect establishes a connection pool to the database.
	// The returned pool should be closed by the caller when done.
	Connect(ctx context.Context) (*pgxpool.Pool, error)
}

// DBConnection abstracts the database operations the loader pipeline needs.
// This interface decouples the core from pgx-specific types and allows fake
// implementations in tests.
//
// Thread-Safety: implementations must be safe for concurrent use; loader
// tasks share one connection pool during the upload phase without external
// locking.
type DBConnection interface {
	// Exec executes a statement (or script of statements) without returning rows.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Query executes a query returning multiple rows.
	// The returned Rows must be closed by the caller.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// CopyFrom bulk-appends rows to schema.table in the given column order
	// and returns the number of rows written. Row order within one call is
	// not guaranteed to be preserved by the destination. Implementations
	// may retain the rows slice past the call; callers must not reuse it.
	CopyFrom(ctx context.Context, schema, table string, columns []string, rows [][]any) (int64, error)

	// Ping verifies the destination is reachable.
	Ping(ctx context.Context) error
}

// Rows represents an iterable query result. This interface decouples from
// pgx.Rows.
type Rows interface {
	// Next advances to the next row, returning false when exhausted.
	Next() bool

	// Scan reads the values from the current row into dest values.
	Scan(dest ...any) error

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases the result's resources.
	Close()
}
