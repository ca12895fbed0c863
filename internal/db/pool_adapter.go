package db

import (
	"context"

	"github.com/ekorchmar/sisyphus/pkg/sisyphus"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolAdapter adapts *pgxpool.Pool to implement the sisyphus.DBConnection
// interface, keeping pgx-specific types out of the core pipeline.
//
// Thread-Safety: safe for concurrent use (pgxpool.Pool is thread-safe).
type PoolAdapter struct {
	pool *pgxpool.Pool
}

// NewPoolAdapter creates a new PoolAdapter wrapping the given pool.
func NewPoolAdapter(pool *pgxpool.Pool) *PoolAdapter {
	return &PoolAdapter{pool: pool}
}

// Exec executes a statement or script without returning rows.
func (p *PoolAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

// Query executes a query returning multiple rows.
func (p *PoolAdapter) Query(ctx context.Context, sql string, args ...any) (sisyphus.Rows, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &rowsAdapter{rows: rows}, nil
}

// CopyFrom bulk-appends rows to schema.table using the PostgreSQL COPY protocol.
func (p *PoolAdapter) CopyFrom(ctx context.Context, schema, table string, columns []string, rows [][]any) (int64, error) {
	ident := pgx.Identifier{table}
	if schema != "" {
		ident = pgx.Identifier{schema, table}
	}
	return p.pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
}

// Ping verifies the destination is reachable.
func (p *PoolAdapter) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the underlying pool.
func (p *PoolAdapter) Close() {
	p.pool.Close()
}

// rowsAdapter adapts pgx.Rows to implement sisyphus.Rows.
type rowsAdapter struct {
	rows pgx.Rows
}

func (r *rowsAdapter) Next() bool             { return r.rows.Next() }
func (r *rowsAdapter) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *rowsAdapter) Err() error             { return r.rows.Err() }
func (r *rowsAdapter) Close()                 { r.rows.Close() }

// Verify PoolAdapter implements DBConnection at compile time
var _ sisyphus.DBConnection = (*PoolAdapter)(nil)
