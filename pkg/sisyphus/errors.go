package sisyphus

import (
	"errors"
	"strings"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	err := orchestrator.Run(ctx, plan, catalog, conn, cfg)
//	if errors.Is(err, sisyphus.ErrScriptFailed) {
//	    // Pre- or post-script execution failed
//	}
var (
	// ErrInvalidConfig indicates the provided run configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the destination database cannot be reached.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrSchemaNotFound indicates the named schema does not exist at the destination.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrTableNotFound indicates a table derived from a file name does not
	// exist at the destination.
	ErrTableNotFound = errors.New("table not found")

	// ErrFileNotFound indicates an explicitly listed source file is missing
	// from the data directory.
	ErrFileNotFound = errors.New("file not found")

	// ErrNamePattern indicates a file name did not match the configured
	// table-name extraction pattern.
	ErrNamePattern = errors.New("file name does not match table pattern")

	// ErrScriptFailed indicates a pre- or post-script execution failed.
	ErrScriptFailed = errors.New("script execution failed")

	// ErrRowCoercion indicates a field value could not be coerced to the
	// destination column type. Contained to one file's task.
	ErrRowCoercion = errors.New("row coercion failed")

	// ErrLoadFailed indicates one or more file tasks failed during the
	// upload phase.
	ErrLoadFailed = errors.New("load failed")
)

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	case errors.Is(err, ErrSchemaNotFound),
		errors.Is(err, ErrTableNotFound),
		errors.Is(err, ErrFileNotFound),
		errors.Is(err, ErrNamePattern):
		return ExitPlanError
	case errors.Is(err, ErrScriptFailed):
		return ExitScriptFailed
	case errors.Is(err, ErrLoadFailed), errors.Is(err, ErrRowCoercion):
		return ExitLoadFailed
	}

	// Check for common connection error patterns surfaced by the driver
	errStr := err.Error()
	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
