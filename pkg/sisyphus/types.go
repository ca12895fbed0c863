package sisyphus

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionConfig represents resolved connection parameters for the
// destination database. Immutable once constructed; one shared pool is
// opened from it for the whole run.
type ConnectionConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	// Schema is the destination schema to reflect and load into.
	// Empty means the connection's default schema.
	Schema string

	// AppName is reported to the server as application_name.
	AppName string

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
}

// UnknownColumnPolicy decides what happens to a file column that has no
// matching column at the destination table.
type UnknownColumnPolicy string

const (
	// UnknownColumnDrop silently drops unmatched file columns (logged).
	UnknownColumnDrop UnknownColumnPolicy = "drop"

	// UnknownColumnError fails that file's task on the first unmatched column.
	UnknownColumnError UnknownColumnPolicy = "error"
)

// RunConfig contains all parameters for a bulk-load run.
// Supplied once at startup, read-only thereafter, shared by all components.
type RunConfig struct {
	// DataDir is the directory containing the source files.
	DataDir string

	// Files optionally restricts the run to these file names under DataDir.
	// Empty means every regular file directly under DataDir.
	Files []string

	// BatchSize is the maximum number of rows per uploaded batch.
	BatchSize int

	// Workers bounds the number of concurrent file uploads.
	Workers int

	// Delimiter separates fields in the source files.
	Delimiter rune

	// NoHeader indicates the source files carry no header row. Without a
	// header, file columns are assumed to be in destination column order.
	NoHeader bool

	// DryRun validates, reads and counts but issues no mutating calls.
	DryRun bool

	// NamePattern is the regex whose first match position within a file
	// name marks the end of the derived table name.
	NamePattern string

	// PreScriptPath and PostScriptPath optionally name SQL scripts executed
	// verbatim before and after the upload phase.
	PreScriptPath  string
	PostScriptPath string

	// UnknownColumns selects the policy for file columns absent from the
	// destination table.
	UnknownColumns UnknownColumnPolicy

	// Verbose enables detailed logging.
	Verbose bool
}

// Validate checks if the RunConfig has all required fields and valid values.
// It returns a multi-error if multiple validation failures occur.
func (c *RunConfig) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("DataDir is required: %w", ErrInvalidConfig))
	}

	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d: %w", c.BatchSize, ErrInvalidConfig))
	}

	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("worker count must be positive, got %d: %w", c.Workers, ErrInvalidConfig))
	}

	if c.Delimiter == 0 {
		errs = append(errs, fmt.Errorf("delimiter is required: %w", ErrInvalidConfig))
	}

	if c.NamePattern == "" {
		errs = append(errs, fmt.Errorf("name pattern is required: %w", ErrInvalidConfig))
	}

	switch c.UnknownColumns {
	case UnknownColumnDrop, UnknownColumnError:
	default:
		errs = append(errs, fmt.Errorf("unknown-columns policy must be %q or %q, got %q: %w",
			UnknownColumnDrop, UnknownColumnError, c.UnknownColumns, ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// LoadResult summarizes one successfully completed file upload.
// A failing file yields only an error, never a partial LoadResult.
type LoadResult struct {
	// Table is the destination table name.
	Table string

	// File is the source file name.
	File string

	// Rows is the total number of rows processed.
	Rows int64

	// Batches is the number of batches the file was split into.
	Batches int

	// DryRun reports whether mutating calls were suppressed.
	DryRun bool

	// Elapsed is the wall-clock duration of the task.
	Elapsed time.Duration
}
