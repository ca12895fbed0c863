package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ekorchmar/sisyphus/pkg/sisyphus"
)

// Connection defaults, matching libpq conventions.
const (
	defaultHost     = "127.0.0.1"
	defaultPort     = 5432
	defaultUser     = "postgres"
	defaultDatabase = "postgres"
)

// firstNonEmpty returns the first non-empty string, implementing the
// flag > environment > project file > default precedence chain.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// firstPositive returns the first positive int in the chain.
func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// envPort parses $PGPORT, returning 0 when unset or malformed.
func envPort() int {
	raw := os.Getenv("PGPORT")
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return port
}

// decodeDelimiter turns the flag/yaml delimiter value into a single rune.
// The two-character escape "\t" is accepted for tab so it survives shells
// and YAML without quoting gymnastics.
func decodeDelimiter(s string) (rune, error) {
	if s == `\t` {
		return '\t', nil
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q: %w", s, sisyphus.ErrInvalidConfig)
	}
	return runes[0], nil
}
