package durable

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	workerpkg "github.com/flowpilot-io/durable/pkg/worker"
)

func openTestDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteBundleRunsWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "bundle.db")
	db := openTestDB(t, dbPath)

	bundle, err := NewSQLiteBundle(db, workerpkg.Config{Concurrency: 2}, nil)
	require.NoError(t, err)

	upper := func(ctx context.Context, req ActivityRequest) ([]byte, error) {
		return append([]byte("seen:"), req.Input...), nil
	}
	wf := func(wc *WorkflowContext, input []byte) ([]byte, error) {
		return wc.Execute("tag", input)
	}
	require.NoError(t, bundle.Engine.RegisterWorkflow("tag-wf", wf))
	require.NoError(t, bundle.Engine.RegisterActivity("tag", upper, nil))

	workerCtx, stopWorkers := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = bundle.Worker.Run(workerCtx)
	}()

	runID, err := bundle.Engine.StartWorkflow(ctx, "tag-wf", []byte("payload"))
	require.NoError(t, err)

	run := waitTerminal(t, ctx, bundle.Engine, runID)
	require.Equal(t, StatusCompleted, run.Status)
	require.Equal(t, "seen:payload", string(run.Output))

	stopWorkers()
	<-workerDone

	// A fresh engine over the same database sees the completed run and its
	// full history: durability is in the file, not the process.
	reopened, err := NewSQLiteEngine(db)
	require.NoError(t, err)

	runAgain, err := reopened.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, runAgain.Status)
	require.Equal(t, "seen:payload", string(runAgain.Output))

	events, err := reopened.History(ctx, runID)
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, EventWorkflowStarted, events[0].Type)
	require.Equal(t, EventWorkflowCompleted, events[3].Type)
}

// A process crash between scheduling an activity and executing it leaves a
// queued task in the database; the next process's workers finish the run.
func TestSQLiteBundleResumesAfterRestart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "resume.db")
	db := openTestDB(t, dbPath)

	handler := func(ctx context.Context, req ActivityRequest) ([]byte, error) {
		return []byte(`"done"`), nil
	}
	wf := func(wc *WorkflowContext, input []byte) ([]byte, error) {
		return wc.Execute("finish", input)
	}

	// First process: submit the run but never start workers, then "crash".
	first, err := NewSQLiteBundle(db, workerpkg.Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, first.Engine.RegisterWorkflow("resumable", wf))
	require.NoError(t, first.Engine.RegisterActivity("finish", handler, nil))

	runID, err := first.Engine.StartWorkflow(ctx, "resumable", nil)
	require.NoError(t, err)

	run, err := first.Engine.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, run.Status)

	// Second process over the same file picks the queued work up.
	second, err := NewSQLiteBundle(db, workerpkg.Config{Concurrency: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, second.Engine.RegisterWorkflow("resumable", wf))
	require.NoError(t, second.Engine.RegisterActivity("finish", handler, nil))

	workerCtx, stopWorkers := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = second.Worker.Run(workerCtx)
	}()
	defer func() {
		stopWorkers()
		<-workerDone
	}()

	run = waitTerminal(t, ctx, second.Engine, runID)
	require.Equal(t, StatusCompleted, run.Status)
	require.Equal(t, `"done"`, string(run.Output))
}

func waitTerminal(t *testing.T, ctx context.Context, eng Engine, runID string) *Run {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		run, err := eng.GetRun(ctx, runID)
		require.NoError(t, err)
		if run.Status.Terminal() {
			return run
		}
		select {
		case <-ctx.Done():
			t.Fatalf("run %s still %s at deadline", runID, run.Status)
		case <-ticker.C:
		}
	}
}
