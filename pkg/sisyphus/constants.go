package sisyphus

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Load completed successfully
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration or parameters
	ExitConnectionError = 11 // Failed to connect to database
	ExitScriptFailed    = 13 // Pre- or post-script execution failed
	ExitPlanError       = 14 // Load plan resolution failed (file, pattern or table)
	ExitLoadFailed      = 15 // One or more file uploads failed
)

const (
	// DefaultBatchSize is the number of rows uploaded per batch.
	DefaultBatchSize = 100000

	// DefaultWorkers bounds the number of concurrent file uploads.
	DefaultWorkers = 4

	// DefaultDelimiter separates fields in source files.
	DefaultDelimiter = ","

	// DefaultNamePattern is the regex whose first match position marks the
	// end of the table name within a file name. The default strips a
	// trailing ".csv"-like suffix.
	DefaultNamePattern = `\.csv`

	// DefaultConnectTimeout bounds each initial connection attempt.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultRetryInitialDelay is the default initial delay before the first
	// connect retry attempt.
	DefaultRetryInitialDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay is the default maximum delay between connect
	// retry attempts.
	DefaultRetryMaxDelay = 1 * time.Minute

	// DefaultRetryMaxAttempts is the default maximum number of connect
	// retry attempts.
	DefaultRetryMaxAttempts = 3
)
