// Package testutil provides fake implementations of the sisyphus database
// interfaces for unit tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ekorchmar/sisyphus/pkg/sisyphus"
	"github.com/jackc/pgx/v5/pgconn"
)

// CopyCall records one CopyFrom invocation.
type CopyCall struct {
	Schema  string
	Table   string
	Columns []string
	Rows    [][]any
}

// FakeConn is a configurable in-memory sisyphus.DBConnection.
// Behavior is customized via the function fields; unset fields succeed with
// empty results. All calls are recorded and safe for concurrent use.
type FakeConn struct {
	ExecFunc  func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryFunc func(ctx context.Context, sql string, args ...any) (sisyphus.Rows, error)
	CopyFunc  func(ctx context.Context, schema, table string, columns []string, rows [][]any) (int64, error)
	PingErr   error

	mu       sync.Mutex
	execLog  []string
	copyLog  []CopyCall
	queryLog []string
}

// Exec records the statement and delegates to ExecFunc if set.
func (f *FakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	f.execLog = append(f.execLog, sql)
	f.mu.Unlock()

	if f.ExecFunc != nil {
		return f.ExecFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

// Query records the statement and delegates to QueryFunc if set.
func (f *FakeConn) Query(ctx context.Context, sql string, args ...any) (sisyphus.Rows, error) {
	f.mu.Lock()
	f.queryLog = append(f.queryLog, sql)
	f.mu.Unlock()

	if f.QueryFunc != nil {
		return f.QueryFunc(ctx, sql, args...)
	}
	return NewSliceRows(nil), nil
}

// CopyFrom records the call and delegates to CopyFunc if set.
func (f *FakeConn) CopyFrom(ctx context.Context, schema, table string, columns []string, rows [][]any) (int64, error) {
	f.mu.Lock()
	f.copyLog = append(f.copyLog, CopyCall{Schema: schema, Table: table, Columns: columns, Rows: rows})
	f.mu.Unlock()

	if f.CopyFunc != nil {
		return f.CopyFunc(ctx, schema, table, columns, rows)
	}
	return int64(len(rows)), nil
}

// Ping returns PingErr.
func (f *FakeConn) Ping(ctx context.Context) error {
	return f.PingErr
}

// ExecLog returns a copy of the executed statements in order.
func (f *FakeConn) ExecLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.execLog...)
}

// CopyLog returns a copy of the recorded CopyFrom calls in order.
func (f *FakeConn) CopyLog() []CopyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CopyCall(nil), f.copyLog...)
}

// QueryLog returns a copy of the queried statements in order.
func (f *FakeConn) QueryLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queryLog...)
}

var _ sisyphus.DBConnection = (*FakeConn)(nil)

// SliceRows implements sisyphus.Rows over an in-memory slice of rows.
type SliceRows struct {
	rows [][]any
	idx  int
	err  error
}

// NewSliceRows creates a SliceRows serving the given rows in order.
func NewSliceRows(rows [][]any) *SliceRows {
	return &SliceRows{rows: rows, idx: -1}
}

// Next advances to the next row.
func (r *SliceRows) Next() bool {
	if r.idx+1 >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

// Scan copies the current row's values into dest pointers.
func (r *SliceRows) Scan(dest ...any) error {
	row := r.rows[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: want %d destinations, got %d", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *int64:
			*d = v.(int64)
		default:
			return fmt.Errorf("scan: unsupported destination type %T", dest[i])
		}
	}
	return nil
}

// Err returns the configured iteration error.
func (r *SliceRows) Err() error { return r.err }

// Close is a no-op.
func (r *SliceRows) Close() {}

var _ sisyphus.Rows = (*SliceRows)(nil)

// SchemaRows builds the Rows a schema reflection query would return for the
// given table → ordered (column, data type) pairs.
func SchemaRows(tables map[string][][2]string, order []string) *SliceRows {
	var rows [][]any
	for _, table := range order {
		for _, col := range tables[table] {
			rows = append(rows, []any{table, col[0], col[1]})
		}
	}
	return NewSliceRows(rows)
}
