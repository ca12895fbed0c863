// Package schema reflects the destination database's tables and columns
// into an immutable, concurrently readable catalog snapshot.
package schema

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ekorchmar/sisyphus/internal/typemap"
	"github.com/ekorchmar/sisyphus/pkg/sisyphus"
)

// Column describes one destination column: its name, the declared SQL type
// reported by information_schema, and the scalar kind source fields are
// coerced into.
type Column struct {
	Name     string
	DataType string
	Kind     typemap.Kind
}

// snapshot is one immutable reflection pass. Refresh replaces the whole
// snapshot; it is never mutated in place.
type snapshot struct {
	// tables maps table name to columns ordered by ordinal position.
	tables map[string][]Column
}

// Catalog caches the destination's tables and columns for one schema.
// Reads are lock-free against the current snapshot; Refresh swaps in a
// freshly built snapshot atomically, so readers in flight never observe a
// half-updated catalog.
type Catalog struct {
	conn       sisyphus.DBConnection
	schemaName string
	current    atomic.Pointer[snapshot]
}

const reflectQuery = `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = coalesce(nullif($1, ''), current_schema())
ORDER BY table_name, ordinal_position`

const schemaExistsQuery = `
SELECT count(*) FROM information_schema.schemata WHERE schema_name = $1`

// Build performs one reflection pass against the destination and returns a
// Catalog. An empty schemaName reflects the connection's default schema.
// Fails wrapping sisyphus.ErrSchemaNotFound if a named schema does not
// exist, and sisyphus.ErrConnectionFailed if the destination cannot be
// queried.
func Build(ctx context.Context, conn sisyphus.DBConnection, schemaName string) (*Catalog, error) {
	c := &Catalog{conn: conn, schemaName: schemaName}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh rebuilds the snapshot from the destination and replaces the
// current one atomically. Must be called between phases only, never while
// loader tasks are reading.
func (c *Catalog) Refresh(ctx context.Context) error {
	snap, err := c.reflect(ctx)
	if err != nil {
		return err
	}

	if len(snap.tables) == 0 && c.schemaName != "" {
		exists, err := c.schemaExists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("schema %q: %w", c.schemaName, sisyphus.ErrSchemaNotFound)
		}
	}

	c.current.Store(snap)
	return nil
}

func (c *Catalog) reflect(ctx context.Context) (*snapshot, error) {
	rows, err := c.conn.Query(ctx, reflectQuery, c.schemaName)
	if err != nil {
		return nil, fmt.Errorf("%w: reflecting schema: %w", sisyphus.ErrConnectionFailed, err)
	}
	defer rows.Close()

	tables := make(map[string][]Column)
	for rows.Next() {
		var table string
		var col Column
		if err := rows.Scan(&table, &col.Name, &col.DataType); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}
		col.Kind = typemap.Classify(col.DataType)
		tables[table] = append(tables[table], col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reflecting schema: %w", sisyphus.ErrConnectionFailed, err)
	}

	return &snapshot{tables: tables}, nil
}

func (c *Catalog) schemaExists(ctx context.Context) (bool, error) {
	rows, err := c.conn.Query(ctx, schemaExistsQuery, c.schemaName)
	if err != nil {
		return false, fmt.Errorf("%w: checking schema existence: %w", sisyphus.ErrConnectionFailed, err)
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return false, fmt.Errorf("scanning schema count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return count > 0, nil
}

// SchemaName returns the schema this catalog reflects. Empty means the
// connection's default schema.
func (c *Catalog) SchemaName() string {
	return c.schemaName
}

// TableExists reports whether the current snapshot contains the table.
func (c *Catalog) TableExists(name string) bool {
	_, ok := c.current.Load().tables[name]
	return ok
}

// ColumnsOf returns the table's columns in ordinal order, or false when the
// table is absent from the current snapshot. The returned slice must not be
// modified.
func (c *Catalog) ColumnsOf(name string) ([]Column, bool) {
	cols, ok := c.current.Load().tables[name]
	return cols, ok
}

// TableCount returns the number of tables in the current snapshot.
func (c *Catalog) TableCount() int {
	return len(c.current.Load().tables)
}
