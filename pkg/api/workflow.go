package api

import (
	"context"
	"time"
)

// WorkflowFunc contains the logic of one workflow type.
//
// It is driven forward by deterministic replay: the engine may call it many
// times for the same run, feeding previously recorded activity results back
// into Execute call sites. Workflow code must therefore be deterministic:
// no wall-clock reads, no unguarded randomness, no I/O. Anything
// non-deterministic belongs inside an activity.
//
// Errors returned by Execute that the workflow does not recognize (in
// particular the engine's internal suspension signal) must be propagated
// unchanged.
type WorkflowFunc func(wc *WorkflowContext, input []byte) ([]byte, error)

// ActivityRequest is what an activity handler receives for one attempt.
type ActivityRequest struct {
	RunID string
	Name  string
	Input []byte

	// Attempt starts at 1 and increments per retry. Handlers whose side
	// effects are not idempotent can use it to dedupe across attempts; the
	// engine itself does not.
	Attempt int
}

// ActivityFunc executes a single named external operation. The context
// carries the per-attempt deadline; handlers should respect cancellation.
type ActivityFunc func(ctx context.Context, req ActivityRequest) ([]byte, error)

// ActivityOptions configure a registered activity.
type ActivityOptions struct {
	// Timeout bounds each attempt. Zero means DefaultActivityTimeout.
	Timeout time.Duration

	// Retry overrides DefaultRetryPolicy for this activity.
	Retry *RetryPolicy

	// LockClass, if non-empty, names an advisory lock acquired before each
	// attempt and released after. Activities sharing a class never run
	// concurrently within one engine (e.g. a "voice" class so audible alerts
	// do not talk over each other).
	LockClass string
}

// DefaultActivityTimeout bounds activity attempts that do not declare one.
const DefaultActivityTimeout = time.Minute

// WorkflowContext is the handle workflow logic uses to schedule activities.
// It is created by the engine for each executor pass; workflow code never
// constructs one.
type WorkflowContext struct {
	runID   string
	execute func(name string, input []byte) ([]byte, error)
}

// NewWorkflowContext is used by the engine (and by tests that drive workflow
// funcs directly) to build a context around an execute callback.
func NewWorkflowContext(runID string, execute func(name string, input []byte) ([]byte, error)) *WorkflowContext {
	return &WorkflowContext{runID: runID, execute: execute}
}

// RunID returns the ID of the run being executed.
func (wc *WorkflowContext) RunID() string { return wc.runID }

// Execute invokes the named activity with the given opaque input and waits
// for its final outcome.
//
// During replay the recorded outcome is returned without any network call.
// Live execution appends an ActivityScheduled event, dispatches the attempt,
// and suspends the workflow until the attempt chain resolves.
//
// The returned error is either a *GivenUpError (retries exhausted, a normal
// catchable result) or an engine-internal error that must be propagated.
func (wc *WorkflowContext) Execute(name string, input []byte) ([]byte, error) {
	return wc.execute(name, input)
}

// Engine is the durable workflow engine API.
type Engine interface {
	// RegisterWorkflow registers workflow logic under a workflow type name.
	RegisterWorkflow(name string, fn WorkflowFunc) error

	// RegisterActivity registers an activity handler. Options may be nil.
	RegisterActivity(name string, fn ActivityFunc, opts *ActivityOptions) error

	// StartWorkflow durably records a new run and queues its first
	// continuation task. It returns the run ID immediately; the outcome is
	// observed via GetRun, never by blocking here.
	StartWorkflow(ctx context.Context, workflowType string, input []byte) (string, error)

	// GetRun returns the current status record for a run.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns runs matching the filter.
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// History returns the full ordered event log for a run.
	History(ctx context.Context, runID string) ([]Event, error)

	// Terminate requests cancellation of a run. The executor observes the
	// termination at the next suspension point; it never preempts
	// mid-execution. Terminating an already-terminal run is an error.
	Terminate(ctx context.Context, runID string, reason string) error

	// RunStep replays the run's history and drives workflow logic forward to
	// its next suspension point or terminal event. Workers call this for
	// RUN_WORKFLOW_STEP tasks; it is safe to call redundantly.
	RunStep(ctx context.Context, runID string) error

	// RunActivity executes one attempt of a scheduled activity and records
	// its outcome. Workers call this for EXECUTE_ACTIVITY tasks.
	RunActivity(ctx context.Context, runID, name string, input []byte, attempt int) error
}
