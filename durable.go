package durable

import (
	"context"
	"database/sql"

	"github.com/flowpilot-io/durable/internal/engine"
	"github.com/flowpilot-io/durable/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Run                  = api.Run
	RunFilter            = api.RunFilter
	Status               = api.Status
	Event                = api.Event
	EventType            = api.EventType
	WorkflowContext      = api.WorkflowContext
	WorkflowFunc         = api.WorkflowFunc
	ActivityFunc         = api.ActivityFunc
	ActivityRequest      = api.ActivityRequest
	ActivityOptions      = api.ActivityOptions
	RetryPolicy          = api.RetryPolicy
	GivenUpError         = api.GivenUpError
	ActivityError        = api.ActivityError
	NonDeterminismError  = api.NonDeterminismError
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	DefaultRetryPolicy   = api.DefaultRetryPolicy
	IsGivenUp            = api.IsGivenUp
)

// Re-export status and event values for convenience.

const (
	StatusRunning    = api.StatusRunning
	StatusCompleted  = api.StatusCompleted
	StatusFailed     = api.StatusFailed
	StatusTerminated = api.StatusTerminated

	EventWorkflowStarted    = api.EventWorkflowStarted
	EventActivityScheduled  = api.EventActivityScheduled
	EventActivityCompleted  = api.EventActivityCompleted
	EventActivityFailed     = api.EventActivityFailed
	EventWorkflowCompleted  = api.EventWorkflowCompleted
	EventWorkflowFailed     = api.EventWorkflowFailed
	EventWorkflowTerminated = api.EventWorkflowTerminated
)

// Re-export the error taxonomy.

var (
	ErrRunNotFound      = api.ErrRunNotFound
	ErrRunClosed        = api.ErrRunClosed
	ErrUnknownWorkflow  = api.ErrUnknownWorkflow
	ErrUnknownActivity  = api.ErrUnknownActivity
	ErrConcurrentAppend = api.ErrConcurrentAppend
)

// Engine constructors. These wrap the internal/engine package so external
// callers never need to import internal packages; bundles that also need a
// worker are in bundle.go.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
// It is not crash-durable; use it for tests and development.
func NewInMemoryEngine() Engine {
	eng, _ := engine.NewInMemoryEngine(nil)
	return eng
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given
// Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	eng, _ := engine.NewInMemoryEngine(obs)
	return eng
}

// NewSQLiteEngine returns an Engine that persists runs, history events, and
// queued tasks in a SQLite database.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	eng, _, err := engine.NewSQLiteEngine(db, nil)
	return eng, err
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given
// Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	eng, _, err := engine.NewSQLiteEngine(db, obs)
	return eng, err
}

// Convenience helpers that forward to the underlying Engine.

// StartWorkflow submits a new run and returns its ID immediately. The
// outcome is observed via GetRun, never by blocking here.
func StartWorkflow(ctx context.Context, eng Engine, workflowType string, input []byte) (string, error) {
	return eng.StartWorkflow(ctx, workflowType, input)
}

// GetRun fetches a run's status record by ID.
func GetRun(ctx context.Context, eng Engine, runID string) (*Run, error) {
	return eng.GetRun(ctx, runID)
}

// ListRuns lists runs according to the given filter.
func ListRuns(ctx context.Context, eng Engine, filter RunFilter) ([]*Run, error) {
	return eng.ListRuns(ctx, filter)
}

// History returns the full ordered event log for a run.
func History(ctx context.Context, eng Engine, runID string) ([]Event, error) {
	return eng.History(ctx, runID)
}

// Terminate requests cancellation of a run at its next suspension point.
func Terminate(ctx context.Context, eng Engine, runID, reason string) error {
	return eng.Terminate(ctx, runID, reason)
}
