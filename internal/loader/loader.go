// Package loader streams one delimited source file into its destination
// table in bounded-size batches.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ekorchmar/sisyphus/internal/schema"
	"github.com/ekorchmar/sisyphus/internal/typemap"
	"github.com/ekorchmar/sisyphus/pkg/sisyphus"
)

// Task is the unit of concurrent work: one (file, table) pair with the
// destination column mapping and the run configuration. Owned exclusively
// by the worker that executes it.
type Task struct {
	File    string
	Table   string
	Columns []schema.Column
	Config  *sisyphus.RunConfig
}

// CoercionError reports a malformed field value, attributed to file, table,
// zero-based row offset within the file, column and raw value. It aborts
// only the task for that file.
type CoercionError struct {
	File   string
	Table  string
	Row    int64
	Column string
	Value  string
	Err    error
}

// Error implements the error interface.
func (e *CoercionError) Error() string {
	return fmt.Sprintf("file %s (table %s) row %d column %q: cannot coerce %q: %v",
		e.File, e.Table, e.Row, e.Column, e.Value, e.Err)
}

// Unwrap exposes both the sentinel and the underlying parse error.
func (e *CoercionError) Unwrap() []error {
	return []error{sisyphus.ErrRowCoercion, e.Err}
}

// Loader uploads files batch by batch over a shared connection.
// Safe for concurrent Load() calls: the loader holds no per-task state.
type Loader struct {
	conn       sisyphus.DBConnection
	schemaName string
	logger     sisyphus.Logger
}

// New creates a Loader appending into schemaName via conn.
// Panics on nil dependencies: these are programmer errors caught at startup.
func New(conn sisyphus.DBConnection, schemaName string, logger sisyphus.Logger) *Loader {
	if conn == nil {
		panic("conn cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Loader{conn: conn, schemaName: schemaName, logger: logger}
}

// columnMapping links file column positions to destination columns.
// dest[i] is -1 for dropped file columns.
type columnMapping struct {
	names []string       // destination column names, insert order
	kinds []typemap.Kind // coercion kind per destination column
	dest  []int          // file column index -> position in names, -1 = dropped
}

// Load streams one file into its table. The file is consumed exactly once,
// in order; batch N+1 is never issued before batch N's append returns.
// On failure no partial LoadResult is produced.
func (l *Loader) Load(ctx context.Context, task Task) (*sisyphus.LoadResult, error) {
	start := time.Now()
	cfg := task.Config

	f, err := os.Open(filepath.Join(cfg.DataDir, task.File))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", task.File, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = cfg.Delimiter

	mapping, err := l.buildMapping(r, task)
	if err != nil {
		return nil, err
	}

	var (
		rowOffset int64
		batches   int
		batch     = make([][]any, 0, cfg.BatchSize)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if cfg.DryRun {
			l.logger.Verbose("[dry-run] %s: would append batch %d (%d rows) to %s",
				task.File, batches, len(batch), task.Table)
		} else {
			if _, err := l.conn.CopyFrom(ctx, l.schemaName, task.Table, mapping.names, batch); err != nil {
				return fmt.Errorf("appending batch %d of %s to %s: %w", batches, task.File, task.Table, err)
			}
		}
		batches++
		// The connection may retain the rows slice past the call, so the
		// next batch gets a fresh backing array rather than truncating.
		batch = make([][]any, 0, cfg.BatchSize)
		return nil
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", task.File, err)
		}

		// Headerless files have no column names to match, so excess fields
		// surface here instead of at mapping time. Same policy applies.
		if len(record) > len(mapping.dest) {
			if cfg.UnknownColumns == sisyphus.UnknownColumnError {
				return nil, fmt.Errorf("file %s row %d has %d fields but table %s has only %d columns",
					task.File, rowOffset, len(record), task.Table, len(mapping.dest))
			}
			if rowOffset == 0 {
				l.logger.Info("%s: dropping %d trailing field(s) per row (table %s has %d columns)",
					task.File, len(record)-len(mapping.dest), task.Table, len(mapping.dest))
			}
		}

		row, cerr := coerceRecord(record, mapping, task, rowOffset)
		if cerr != nil {
			return nil, cerr
		}
		batch = append(batch, row)
		rowOffset++

		if len(batch) >= cfg.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	result := &sisyphus.LoadResult{
		Table:   task.Table,
		File:    task.File,
		Rows:    rowOffset,
		Batches: batches,
		DryRun:  cfg.DryRun,
		Elapsed: time.Since(start),
	}
	l.logger.Info("%s: %d rows in %d batch(es) -> %s (%.2fs)",
		task.File, result.Rows, result.Batches, task.Table, result.Elapsed.Seconds())
	return result, nil
}

// buildMapping consumes the header row (unless the run is headerless) and
// links file columns to destination columns. Header matching is
// case-insensitive. Destination columns absent from the file are simply not
// loaded; file columns absent from the destination follow the configured
// unknown-column policy.
func (l *Loader) buildMapping(r *csv.Reader, task Task) (*columnMapping, error) {
	cfg := task.Config

	if cfg.NoHeader {
		// File columns are assumed to be in destination ordinal order.
		m := &columnMapping{}
		for _, col := range task.Columns {
			m.dest = append(m.dest, len(m.names))
			m.names = append(m.names, col.Name)
			m.kinds = append(m.kinds, col.Kind)
		}
		return m, nil
	}

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		// Empty file: nothing to map, nothing to load.
		return &columnMapping{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", task.File, err)
	}

	m := &columnMapping{dest: make([]int, len(header))}
	for i, name := range header {
		col, ok := findColumn(task.Columns, name)
		if !ok {
			if cfg.UnknownColumns == sisyphus.UnknownColumnError {
				return nil, fmt.Errorf("file %s column %q has no match in table %s",
					task.File, name, task.Table)
			}
			l.logger.Info("%s: dropping column %q (not present in table %s)", task.File, name, task.Table)
			m.dest[i] = -1
			continue
		}
		m.dest[i] = len(m.names)
		m.names = append(m.names, col.Name)
		m.kinds = append(m.kinds, col.Kind)
	}
	return m, nil
}

func findColumn(columns []schema.Column, name string) (schema.Column, bool) {
	for _, col := range columns {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}
	return schema.Column{}, false
}

// coerceRecord converts one raw record into destination values per the
// column mapping.
func coerceRecord(record []string, m *columnMapping, task Task, rowOffset int64) ([]any, *CoercionError) {
	row := make([]any, len(m.names))
	for i, raw := range record {
		if i >= len(m.dest) {
			// Excess fields in headerless runs, already vetted against the
			// unknown-column policy by the caller.
			break
		}
		pos := m.dest[i]
		if pos < 0 {
			continue
		}
		v, err := typemap.Coerce(raw, m.kinds[pos])
		if err != nil {
			return nil, &CoercionError{
				File:   task.File,
				Table:  task.Table,
				Row:    rowOffset,
				Column: m.names[pos],
				Value:  raw,
				Err:    err,
			}
		}
		row[pos] = v
	}
	return row, nil
}
