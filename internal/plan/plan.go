// Package plan resolves the mapping from source files to destination
// tables and validates it against the schema catalog before any upload.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/ekorchmar/sisyphus/internal/schema"
	"github.com/ekorchmar/sisyphus/pkg/sisyphus"
)

// Entry maps one source file to its destination table.
type Entry struct {
	// File is the file name relative to the data directory.
	File string

	// Table is the derived destination table name.
	Table string
}

// Plan is the validated, ordered file → table mapping for one run.
// Immutable after resolution.
type Plan struct {
	entries []Entry
}

// New builds a Plan from already-validated entries. Programmatic callers
// that do their own validation can bypass Resolve; the CLI never does.
func New(entries []Entry) *Plan {
	return &Plan{entries: entries}
}

// Entries returns the plan's entries in resolution order.
// The returned slice must not be modified.
func (p *Plan) Entries() []Entry {
	return p.entries
}

// Len returns the number of entries in the plan.
func (p *Plan) Len() int {
	return len(p.entries)
}

// CompilePattern compiles the table-name regex. The pattern is searched,
// not anchored, so '\.csv' also matches inside "concept.csv.gz".
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid name pattern %q: %v: %w", pattern, err, sisyphus.ErrNamePattern)
	}
	return compiled, nil
}

// Resolve builds a Plan for the given data directory.
//
// With an empty explicit list every regular file directly under dir is
// included, in directory-listing order. With a non-empty list each entry
// must name an existing regular file under dir.
//
// Table names are derived by matching pattern against the file name and
// taking the prefix before the first match. Every derived table must exist
// in the catalog.
//
// Resolution is fail-fast: the first missing file, unmatched name or
// unknown table fails the whole resolution and no plan is returned.
func Resolve(dir string, explicit []string, pattern *regexp.Regexp, catalog *schema.Catalog) (*Plan, error) {
	files, err := listFiles(dir, explicit)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(files))
	for _, file := range files {
		loc := pattern.FindStringIndex(file)
		if loc == nil {
			return nil, fmt.Errorf("file %q does not match pattern %q: %w",
				file, pattern.String(), sisyphus.ErrNamePattern)
		}
		entries = append(entries, Entry{File: file, Table: file[:loc[0]]})
	}

	for _, e := range entries {
		if !catalog.TableExists(e.Table) {
			return nil, fmt.Errorf("table %q (from file %q) not found in destination: %w",
				e.Table, e.File, sisyphus.ErrTableNotFound)
		}
	}

	return &Plan{entries: entries}, nil
}

// listFiles enumerates the files to load. Explicit entries are validated
// against the directory; an empty explicit list enumerates every regular
// file directly under dir, no recursion.
func listFiles(dir string, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		for _, name := range explicit {
			info, err := os.Stat(filepath.Join(dir, name))
			if err != nil || !info.Mode().IsRegular() {
				return nil, fmt.Errorf("file %q not found in %s: %w", name, dir, sisyphus.ErrFileNotFound)
			}
		}
		return explicit, nil
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w: %w", dir, sisyphus.ErrFileNotFound, err)
	}

	var files []string
	for _, de := range dirEntries {
		if de.Type().IsRegular() {
			files = append(files, de.Name())
		}
	}
	return files, nil
}
