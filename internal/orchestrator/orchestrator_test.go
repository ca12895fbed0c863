package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ekorchmar/sisyphus/internal/loader"
	"github.com/ekorchmar/sisyphus/internal/logging"
	"github.com/ekorchmar/sisyphus/internal/plan"
	"github.com/ekorchmar/sisyphus/internal/schema"
	"github.com/ekorchmar/sisyphus/internal/testutil"
	"github.com/ekorchmar/sisyphus/internal/typemap"
	"github.com/ekorchmar/sisyphus/pkg/sisyphus"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog serves a fixed column set and counts refreshes. The column
// set can be swapped to simulate a schema-altering script.
type fakeCatalog struct {
	mu         sync.Mutex
	columns    map[string][]schema.Column
	next       map[string][]schema.Column // installed on Refresh, if set
	refreshes  int
	refreshErr error
}

func (c *fakeCatalog) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshErr != nil {
		return c.refreshErr
	}
	c.refreshes++
	if c.next != nil {
		c.columns = c.next
		c.next = nil
	}
	return nil
}

func (c *fakeCatalog) ColumnsOf(name string) ([]schema.Column, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cols, ok := c.columns[name]
	return cols, ok
}

func (c *fakeCatalog) refreshCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

// fakeLoader records the tasks it ran and can fail selected files.
type fakeLoader struct {
	mu          sync.Mutex
	loaded      []loader.Task
	failFiles   map[string]error
	inFlight    int
	maxInFlight int
	delay       time.Duration
}

func (l *fakeLoader) Load(ctx context.Context, task loader.Task) (*sisyphus.LoadResult, error) {
	l.mu.Lock()
	l.inFlight++
	if l.inFlight > l.maxInFlight {
		l.maxInFlight = l.inFlight
	}
	l.mu.Unlock()

	if l.delay > 0 {
		time.Sleep(l.delay)
	}

	l.mu.Lock()
	l.inFlight--
	l.loaded = append(l.loaded, task)
	l.mu.Unlock()

	if err, ok := l.failFiles[task.File]; ok {
		return nil, err
	}
	return &sisyphus.LoadResult{
		Table: task.Table, File: task.File, Rows: 1, Batches: 1, DryRun: task.Config.DryRun,
	}, nil
}

func (l *fakeLoader) loadedFiles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	files := make([]string, len(l.loaded))
	for i, t := range l.loaded {
		files[i] = t.File
	}
	return files
}

var idColumns = []schema.Column{{Name: "id", DataType: "integer", Kind: typemap.KindInt}}

func twoFilePlan() *plan.Plan {
	return plan.New([]plan.Entry{
		{File: "patients.csv", Table: "patients"},
		{File: "visits.csv", Table: "visits"},
	})
}

func catalogFor(tables ...string) *fakeCatalog {
	columns := make(map[string][]schema.Column, len(tables))
	for _, table := range tables {
		columns[table] = idColumns
	}
	return &fakeCatalog{columns: columns}
}

func baseConfig() *sisyphus.RunConfig {
	return &sisyphus.RunConfig{
		DataDir:        "/data",
		BatchSize:      2,
		Workers:        2,
		Delimiter:      ',',
		NamePattern:    `\.csv`,
		UnknownColumns: sisyphus.UnknownColumnDrop,
	}
}

func writeScript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRun_HappyPathWithoutScripts(t *testing.T) {
	conn := &testutil.FakeConn{}
	fl := &fakeLoader{}
	cat := catalogFor("patients", "visits")
	o := New(conn, cat, fl, logging.NewNullLogger())

	report, err := o.Run(context.Background(), twoFilePlan(), baseConfig())
	require.NoError(t, err)

	assert.Equal(t, PhaseDone, report.Phase)
	assert.NotEqual(t, uuid.Nil, report.RunID)
	assert.False(t, report.PreScriptRan)
	assert.False(t, report.PostScriptRan)
	require.Len(t, report.Outcomes, 2)
	for _, outcome := range report.Outcomes {
		require.NoError(t, outcome.Err)
		require.NotNil(t, outcome.Result)
	}
	assert.Empty(t, report.Failed())
	// No scripts configured: zero script executions, zero refreshes.
	assert.Empty(t, conn.ExecLog())
	assert.Equal(t, 0, cat.refreshCount())
}

// eventLoader wraps a FileLoader, appending "load" to a shared event log.
type eventLoader struct {
	inner  FileLoader
	mu     *sync.Mutex
	events *[]string
}

func (l *eventLoader) Load(ctx context.Context, task loader.Task) (*sisyphus.LoadResult, error) {
	l.mu.Lock()
	*l.events = append(*l.events, "load")
	l.mu.Unlock()
	return l.inner.Load(ctx, task)
}

func TestRun_ScriptsBracketUploadPhase(t *testing.T) {
	pre := writeScript(t, "pre.sql", "ALTER TABLE patients DROP CONSTRAINT pk;")
	post := writeScript(t, "post.sql", "ALTER TABLE patients ADD CONSTRAINT pk PRIMARY KEY (id);")

	var mu sync.Mutex
	var events []string
	conn := &testutil.FakeConn{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			mu.Lock()
			events = append(events, "exec")
			mu.Unlock()
			return pgconn.CommandTag{}, nil
		},
	}

	fl := &fakeLoader{}
	cat := catalogFor("patients", "visits")
	o := New(conn, cat, &eventLoader{inner: fl, mu: &mu, events: &events}, logging.NewNullLogger())

	cfg := baseConfig()
	cfg.PreScriptPath = pre
	cfg.PostScriptPath = post

	report, err := o.Run(context.Background(), twoFilePlan(), cfg)
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, report.Phase)
	assert.True(t, report.PreScriptRan)
	assert.True(t, report.PostScriptRan)

	// Scripts strictly bracket the upload phase.
	require.Len(t, events, 4)
	assert.Equal(t, "exec", events[0])
	assert.Equal(t, "exec", events[3])
	assert.Equal(t, "load", events[1])
	assert.Equal(t, "load", events[2])

	// Catalog refreshed after each script execution.
	assert.Equal(t, 2, cat.refreshCount())

	// Script contents executed verbatim.
	execs := conn.ExecLog()
	require.Len(t, execs, 2)
	assert.Contains(t, execs[0], "DROP CONSTRAINT")
	assert.Contains(t, execs[1], "ADD CONSTRAINT")
}

func TestRun_PreScriptFailureAbortsBeforeUpload(t *testing.T) {
	pre := writeScript(t, "pre.sql", "BROKEN SQL;")

	conn := &testutil.FakeConn{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, assert.AnError
		},
	}
	fl := &fakeLoader{}
	o := New(conn, catalogFor("patients", "visits"), fl, logging.NewNullLogger())

	cfg := baseConfig()
	cfg.PreScriptPath = pre

	report, err := o.Run(context.Background(), twoFilePlan(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, sisyphus.ErrScriptFailed)
	assert.Equal(t, PhaseFailed, report.Phase)
	// Uploading never started.
	assert.Empty(t, fl.loadedFiles())
	assert.Empty(t, report.Outcomes)
}

func TestRun_MissingScriptFileFails(t *testing.T) {
	conn := &testutil.FakeConn{}
	fl := &fakeLoader{}
	o := New(conn, catalogFor("patients", "visits"), fl, logging.NewNullLogger())

	cfg := baseConfig()
	cfg.PreScriptPath = filepath.Join(t.TempDir(), "missing.sql")

	report, err := o.Run(context.Background(), twoFilePlan(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, sisyphus.ErrScriptFailed)
	assert.Equal(t, PhaseFailed, report.Phase)
	assert.Empty(t, conn.ExecLog())
}

func TestRun_FileFailureIsIsolatedAndSkipsPostScript(t *testing.T) {
	post := writeScript(t, "post.sql", "SELECT 1;")

	conn := &testutil.FakeConn{}
	fl := &fakeLoader{failFiles: map[string]error{"patients.csv": assert.AnError}}
	o := New(conn, catalogFor("patients", "visits"), fl, logging.NewNullLogger())

	cfg := baseConfig()
	cfg.PostScriptPath = post

	report, err := o.Run(context.Background(), twoFilePlan(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, sisyphus.ErrLoadFailed)
	assert.Equal(t, PhaseFailed, report.Phase)

	// Sibling file still completed and its outcome is reported.
	require.Len(t, report.Outcomes, 2)
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "patients.csv", failed[0].File)

	var visits *FileOutcome
	for i := range report.Outcomes {
		if report.Outcomes[i].File == "visits.csv" {
			visits = &report.Outcomes[i]
		}
	}
	require.NotNil(t, visits)
	assert.NoError(t, visits.Err)
	assert.NotNil(t, visits.Result)

	// Post-script must not run after a failed upload phase.
	assert.False(t, report.PostScriptRan)
	assert.Empty(t, conn.ExecLog())
}

func TestRun_DryRunSkipsScriptExecution(t *testing.T) {
	pre := writeScript(t, "pre.sql", "SELECT 1;")
	post := writeScript(t, "post.sql", "SELECT 2;")

	conn := &testutil.FakeConn{}
	fl := &fakeLoader{}
	cat := catalogFor("patients", "visits")
	o := New(conn, cat, fl, logging.NewNullLogger())

	cfg := baseConfig()
	cfg.DryRun = true
	cfg.PreScriptPath = pre
	cfg.PostScriptPath = post

	report, err := o.Run(context.Background(), twoFilePlan(), cfg)
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, report.Phase)
	assert.False(t, report.PreScriptRan)
	assert.False(t, report.PostScriptRan)
	assert.Empty(t, conn.ExecLog())
	assert.Equal(t, 0, cat.refreshCount())
	// Files are still read and counted.
	assert.Len(t, fl.loadedFiles(), 2)
}

func TestRun_DryRunStillValidatesScriptFiles(t *testing.T) {
	conn := &testutil.FakeConn{}
	fl := &fakeLoader{}
	o := New(conn, catalogFor("patients", "visits"), fl, logging.NewNullLogger())

	cfg := baseConfig()
	cfg.DryRun = true
	cfg.PreScriptPath = filepath.Join(t.TempDir(), "missing.sql")

	_, err := o.Run(context.Background(), twoFilePlan(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, sisyphus.ErrScriptFailed)
	assert.Empty(t, fl.loadedFiles())
}

func TestRun_WorkerPoolIsBounded(t *testing.T) {
	entries := make([]plan.Entry, 6)
	columns := map[string][]schema.Column{}
	for i := range entries {
		name := string(rune('a'+i)) + ".csv"
		table := string(rune('a' + i))
		entries[i] = plan.Entry{File: name, Table: table}
		columns[table] = idColumns
	}

	conn := &testutil.FakeConn{}
	fl := &fakeLoader{delay: 20 * time.Millisecond}
	o := New(conn, &fakeCatalog{columns: columns}, fl, logging.NewNullLogger())

	cfg := baseConfig()
	cfg.Workers = 2

	report, err := o.Run(context.Background(), plan.New(entries), cfg)
	require.NoError(t, err)
	assert.Len(t, report.Outcomes, 6)
	assert.LessOrEqual(t, fl.maxInFlight, 2)
	assert.GreaterOrEqual(t, fl.maxInFlight, 1)
}

func TestRun_RefreshedCatalogReachesTasks(t *testing.T) {
	pre := writeScript(t, "pre.sql", "ALTER TABLE patients ADD COLUMN extra text;")

	conn := &testutil.FakeConn{}
	fl := &fakeLoader{}
	widened := append(append([]schema.Column{}, idColumns...),
		schema.Column{Name: "extra", DataType: "text", Kind: typemap.KindString})
	cat := &fakeCatalog{
		columns: map[string][]schema.Column{"patients": idColumns},
		next:    map[string][]schema.Column{"patients": widened},
	}
	o := New(conn, cat, fl, logging.NewNullLogger())

	cfg := baseConfig()
	cfg.PreScriptPath = pre

	_, err := o.Run(context.Background(), plan.New([]plan.Entry{{File: "patients.csv", Table: "patients"}}), cfg)
	require.NoError(t, err)

	// The task saw the post-refresh column set.
	require.Len(t, fl.loaded, 1)
	assert.Len(t, fl.loaded[0].Columns, 2)
}

func TestRun_TableDroppedByPreScript(t *testing.T) {
	pre := writeScript(t, "pre.sql", "DROP TABLE visits;")

	conn := &testutil.FakeConn{}
	fl := &fakeLoader{}
	cat := &fakeCatalog{
		columns: map[string][]schema.Column{"patients": idColumns, "visits": idColumns},
		next:    map[string][]schema.Column{"patients": idColumns},
	}
	o := New(conn, cat, fl, logging.NewNullLogger())

	cfg := baseConfig()
	cfg.PreScriptPath = pre

	report, err := o.Run(context.Background(), twoFilePlan(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, sisyphus.ErrLoadFailed)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "visits.csv", failed[0].File)
	assert.ErrorIs(t, failed[0].Err, sisyphus.ErrTableNotFound)
}

func TestRun_CatalogRefreshFailureAbortsRun(t *testing.T) {
	pre := writeScript(t, "pre.sql", "SELECT 1;")

	conn := &testutil.FakeConn{}
	fl := &fakeLoader{}
	cat := catalogFor("patients", "visits")
	cat.refreshErr = assert.AnError
	o := New(conn, cat, fl, logging.NewNullLogger())

	cfg := baseConfig()
	cfg.PreScriptPath = pre

	report, err := o.Run(context.Background(), twoFilePlan(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, PhaseFailed, report.Phase)
	assert.Empty(t, fl.loadedFiles())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "pre-script", PhasePreScript.String())
	assert.Equal(t, "uploading", PhaseUploading.String())
	assert.Equal(t, "post-script", PhasePostScript.String())
	assert.Equal(t, "done", PhaseDone.String())
	assert.Equal(t, "failed", PhaseFailed.String())
}
