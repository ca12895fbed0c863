// Package orchestrator drives one bulk-load run: an optional pre-script,
// the concurrent per-file upload phase, and an optional post-script.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ekorchmar/sisyphus/internal/loader"
	"github.com/ekorchmar/sisyphus/internal/plan"
	"github.com/ekorchmar/sisyphus/internal/schema"
	"github.com/ekorchmar/sisyphus/pkg/sisyphus"
	"github.com/google/uuid"
)

// Phase is the orchestrator's state. Transitions are strictly
// Idle → PreScript → Uploading → PostScript → Done, with Failed reachable
// from any phase. Script phases never overlap the upload phase in time.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreScript
	PhaseUploading
	PhasePostScript
	PhaseDone
	PhaseFailed
)

// String returns a human-readable name for the Phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreScript:
		return "pre-script"
	case PhaseUploading:
		return "uploading"
	case PhasePostScript:
		return "post-script"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// FileOutcome is the terminal state of one file's task: a LoadResult or an
// error, never both.
type FileOutcome struct {
	File   string
	Table  string
	Result *sisyphus.LoadResult
	Err    error
}

// Report summarizes one run: per-file outcomes plus the script phases.
type Report struct {
	RunID         uuid.UUID
	Phase         Phase // PhaseDone or PhaseFailed
	Outcomes      []FileOutcome
	PreScriptRan  bool
	PostScriptRan bool
	Elapsed       time.Duration
}

// Failed returns the outcomes of files whose task failed.
func (r *Report) Failed() []FileOutcome {
	var failed []FileOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// FileLoader executes one file's upload task.
// Implementations must be safe for concurrent Load calls.
type FileLoader interface {
	Load(ctx context.Context, task loader.Task) (*sisyphus.LoadResult, error)
}

// Catalog is the schema snapshot the orchestrator consults and refreshes
// between phases.
type Catalog interface {
	Refresh(ctx context.Context) error
	ColumnsOf(name string) ([]schema.Column, bool)
}

// Orchestrator runs the load state machine.
// Not safe for concurrent Run() calls on the same instance.
type Orchestrator struct {
	conn    sisyphus.DBConnection
	catalog Catalog
	loader  FileLoader
	logger  sisyphus.Logger
}

// New creates an Orchestrator with all dependencies injected.
// Panics on nil dependencies: these are programmer errors caught at startup.
func New(conn sisyphus.DBConnection, catalog Catalog, fileLoader FileLoader, logger sisyphus.Logger) *Orchestrator {
	if conn == nil {
		panic("conn cannot be nil")
	}
	if catalog == nil {
		panic("catalog cannot be nil")
	}
	if fileLoader == nil {
		panic("fileLoader cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Orchestrator{conn: conn, catalog: catalog, loader: fileLoader, logger: logger}
}

// Run executes one bulk-load run over the given plan.
//
// The pre-script (if configured) runs and the catalog is refreshed before
// any task is dispatched; the post-script only runs after every dispatched
// task has reached a terminal state, and only if none failed. A single
// file's failure is recorded but does not cancel sibling tasks.
//
// The returned Report is non-nil whenever dispatching started, including on
// failure, so callers can always render per-file outcomes.
func (o *Orchestrator) Run(ctx context.Context, p *plan.Plan, cfg *sisyphus.RunConfig) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.New(), Phase: PhaseIdle}
	o.logger.Verbose("run %s: loading %d file(s) with %d worker(s)", report.RunID, p.Len(), cfg.Workers)

	ran, err := o.runScript(ctx, PhasePreScript, cfg.PreScriptPath, cfg.DryRun, report)
	if err != nil {
		report.Phase = PhaseFailed
		report.Elapsed = time.Since(start)
		return report, err
	}
	report.PreScriptRan = ran

	report.Phase = PhaseUploading
	report.Outcomes = o.upload(ctx, p, cfg)

	if failed := report.Failed(); len(failed) > 0 {
		for _, o2 := range failed {
			o.logger.Error("%s -> %s: %v", o2.File, o2.Table, o2.Err)
		}
		report.Phase = PhaseFailed
		report.Elapsed = time.Since(start)
		return report, fmt.Errorf("%d of %d file(s) failed: %w", len(failed), p.Len(), sisyphus.ErrLoadFailed)
	}

	ran, err = o.runScript(ctx, PhasePostScript, cfg.PostScriptPath, cfg.DryRun, report)
	if err != nil {
		report.Phase = PhaseFailed
		report.Elapsed = time.Since(start)
		return report, err
	}
	report.PostScriptRan = ran

	report.Phase = PhaseDone
	report.Elapsed = time.Since(start)
	o.logger.Info("run %s: completed %d file(s) in %.2fs", report.RunID, p.Len(), report.Elapsed.Seconds())
	return report, nil
}

// runScript executes one script phase. The script file is read and
// validated even in dry-run; only the Exec (and the catalog refresh that
// follows it) is suppressed. Returns whether the script actually executed.
func (o *Orchestrator) runScript(ctx context.Context, phase Phase, path string, dryRun bool, report *Report) (bool, error) {
	if path == "" {
		return false, nil
	}
	report.Phase = phase

	script, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("%s: reading %s: %w: %w", phase, path, sisyphus.ErrScriptFailed, err)
	}

	if dryRun {
		o.logger.Info("[dry-run] %s: skipping execution of %s", phase, path)
		return false, nil
	}

	o.logger.Info("%s: executing %s", phase, path)
	if _, err := o.conn.Exec(ctx, string(script)); err != nil {
		return false, fmt.Errorf("%s: executing %s: %w: %w", phase, path, sisyphus.ErrScriptFailed, err)
	}

	// Scripts may alter schema; rebuild the catalog before the next phase.
	if err := o.catalog.Refresh(ctx); err != nil {
		return true, fmt.Errorf("%s: refreshing catalog after %s: %w", phase, path, err)
	}
	return true, nil
}

// upload dispatches one task per plan entry across a bounded worker pool
// and collects every task's outcome before returning. No cancellation is
// propagated between tasks: a failed file never interrupts its siblings.
func (o *Orchestrator) upload(ctx context.Context, p *plan.Plan, cfg *sisyphus.RunConfig) []FileOutcome {
	entries := p.Entries()
	outcomes := make([]FileOutcome, len(entries))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := cfg.Workers
	if workers > len(entries) {
		workers = len(entries)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = o.runTask(ctx, entries[i], cfg)
			}
		}()
	}

	for i := range entries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

// runTask executes one file's upload and returns its terminal outcome.
func (o *Orchestrator) runTask(ctx context.Context, entry plan.Entry, cfg *sisyphus.RunConfig) FileOutcome {
	outcome := FileOutcome{File: entry.File, Table: entry.Table}

	// Re-resolve columns against the current snapshot: the pre-script may
	// have altered the table since the plan was built.
	columns, ok := o.catalog.ColumnsOf(entry.Table)
	if !ok {
		outcome.Err = fmt.Errorf("table %q vanished after pre-script: %w", entry.Table, sisyphus.ErrTableNotFound)
		return outcome
	}

	result, err := o.loader.Load(ctx, loader.Task{
		File:    entry.File,
		Table:   entry.Table,
		Columns: columns,
		Config:  cfg,
	})
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Result = result
	return outcome
}
