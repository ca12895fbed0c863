package sisyphus

// Logger provides a pluggable logging interface for sisyphus operations.
// Implementations must be safe for concurrent use by multiple goroutines:
// loader tasks log from worker goroutines during the upload phase.
type Logger interface {
	// Verbose logs detailed diagnostic information.
	// Only logged when verbose mode is enabled.
	Verbose(format string, args ...interface{})

	// Info logs informational messages about normal operations.
	Info(format string, args ...interface{})

	// Error logs error messages.
	Error(format string, args ...interface{})
}
