package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowpilot-io/durable/internal/history"
	"github.com/flowpilot-io/durable/internal/taskqueue"
	"github.com/flowpilot-io/durable/pkg/api"
)

// engineImpl drives workflow runs by deterministic replay of their history
// logs. It holds no per-run in-memory state: everything a continuation needs
// is reconstructed from the log, so any worker can pick up any run.
type engineImpl struct {
	store    history.Store
	queue    taskqueue.Queue
	registry *registry
	locks    *taskqueue.NamedLock
	observer api.Observer
}

// Config describes how to construct an engine. External callers use the
// constructors in the root durable package.
type Config struct {
	Store    history.Store
	Queue    taskqueue.Queue
	Observer api.Observer
}

// NewEngine creates an engine over the given store and queue.
func NewEngine(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &engineImpl{
		store:    cfg.Store,
		queue:    cfg.Queue,
		registry: newRegistry(),
		locks:    taskqueue.NewNamedLock(),
		observer: obs,
	}
}

// NewInMemoryEngine returns an engine plus queue backed entirely by memory.
func NewInMemoryEngine(obs api.Observer) (api.Engine, taskqueue.Queue) {
	q := taskqueue.NewMemoryQueue()
	eng := NewEngine(Config{
		Store:    history.NewMemoryStore(),
		Queue:    q,
		Observer: obs,
	})
	return eng, q
}

// NewSQLiteEngine returns an engine plus queue persisting runs, history and
// tasks in the given SQLite database.
func NewSQLiteEngine(db *sql.DB, obs api.Observer) (api.Engine, taskqueue.Queue, error) {
	store, err := history.NewSQLiteStore(db)
	if err != nil {
		return nil, nil, err
	}
	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, nil, err
	}
	eng := NewEngine(Config{
		Store:    store,
		Queue:    q,
		Observer: obs,
	})
	return eng, q, nil
}

func (e *engineImpl) RegisterWorkflow(name string, fn api.WorkflowFunc) error {
	return e.registry.registerWorkflow(name, fn)
}

func (e *engineImpl) RegisterActivity(name string, fn api.ActivityFunc, opts *api.ActivityOptions) error {
	return e.registry.registerActivity(name, fn, opts)
}

func (e *engineImpl) StartWorkflow(ctx context.Context, workflowType string, input []byte) (string, error) {
	if _, ok := e.registry.workflow(workflowType); !ok {
		return "", fmt.Errorf("%w: %s", api.ErrUnknownWorkflow, workflowType)
	}

	run := &api.Run{
		ID:           uuid.NewString(),
		WorkflowType: workflowType,
		Status:       api.StatusRunning,
		Input:        input,
		CreatedAt:    time.Now(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	if _, err := e.store.AppendEvent(ctx, run.ID, 0, api.Event{
		Type:         api.EventWorkflowStarted,
		WorkflowType: workflowType,
		Payload:      input,
	}); err != nil {
		return "", fmt.Errorf("append started event: %w", err)
	}

	if err := e.queue.Enqueue(ctx, taskqueue.Task{
		Kind:  taskqueue.KindRunStep,
		RunID: run.ID,
	}); err != nil {
		return "", fmt.Errorf("enqueue first step: %w", err)
	}

	e.observer.OnRunStart(ctx, run)
	return run.ID, nil
}

func (e *engineImpl) GetRun(ctx context.Context, runID string) (*api.Run, error) {
	return e.store.GetRun(ctx, runID)
}

func (e *engineImpl) ListRuns(ctx context.Context, filter api.RunFilter) ([]*api.Run, error) {
	return e.store.ListRuns(ctx, filter)
}

func (e *engineImpl) History(ctx context.Context, runID string) ([]api.Event, error) {
	if _, err := e.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return e.store.ListEvents(ctx, runID)
}

func (e *engineImpl) Terminate(ctx context.Context, runID string, reason string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("terminate run %s in status %s: %w", runID, run.Status, api.ErrRunClosed)
	}

	events, err := e.store.ListEvents(ctx, runID)
	if err != nil {
		return err
	}
	if _, err := e.store.AppendEvent(ctx, runID, len(events), api.Event{
		Type:  api.EventWorkflowTerminated,
		Error: reason,
	}); err != nil {
		return err
	}
	if err := e.store.CloseRun(ctx, runID, api.StatusTerminated, nil, reason); err != nil {
		return err
	}

	run.Status = api.StatusTerminated
	run.Failure = reason
	e.observer.OnRunFailed(ctx, run, errors.New(reason))
	return nil
}

// RunStep replays the run's history and executes workflow logic forward to
// its next suspension point or terminal event.
//
// It is idempotent on the log under duplicate delivery: if an activity is
// still in flight the fold sees the pending call and no call position is
// ever scheduled twice. The pending attempt is re-enqueued instead, which
// keeps crashed runs moving and is absorbed downstream as a duplicate.
func (e *engineImpl) RunStep(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}

	events, err := e.store.ListEvents(ctx, runID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("run %s has no history", runID)
	}

	state, err := foldHistory(runID, events)
	if err != nil {
		return err
	}

	// The log already reached a terminal event. A worker can die between
	// the terminal append and CloseRun, so catch the run record up here
	// before dropping the continuation.
	if state.terminal != "" {
		if run.Status == api.StatusRunning {
			switch state.terminal {
			case api.EventWorkflowCompleted:
				return e.store.CloseRun(ctx, runID, api.StatusCompleted, state.terminalOutput, "")
			case api.EventWorkflowFailed:
				return e.store.CloseRun(ctx, runID, api.StatusFailed, nil, state.terminateReason)
			default:
				return e.store.CloseRun(ctx, runID, api.StatusTerminated, nil, state.terminateReason)
			}
		}
		return nil
	}
	if state.pending != nil {
		// An activity is in flight. Re-enqueue its attempt rather than
		// dropping the continuation: if the scheduling worker died between
		// the ActivityScheduled append and its enqueue, this redelivery is
		// the only thing left to move the run. RunActivity drops the
		// duplicate against the fold once the attempt has resolved, and a
		// second recording of the same attempt loses the optimistic append.
		return e.queue.Enqueue(ctx, taskqueue.Task{
			Kind:         taskqueue.KindExecuteActivity,
			RunID:        runID,
			ActivityName: state.pending.name,
			Input:        state.pending.input,
			Attempt:      state.pending.attempt,
		})
	}

	fn, ok := e.registry.workflow(state.workflowType)
	if !ok {
		return e.failRun(ctx, run, state.nextSeq, fmt.Errorf("%w: %s", api.ErrUnknownWorkflow, state.workflowType))
	}

	output, nextSeq, err := e.executeWorkflow(ctx, runID, fn, state)
	switch {
	case err == nil:
		if _, aerr := e.store.AppendEvent(ctx, runID, nextSeq, api.Event{
			Type:    api.EventWorkflowCompleted,
			Payload: output,
		}); aerr != nil {
			return aerr
		}
		if cerr := e.store.CloseRun(ctx, runID, api.StatusCompleted, output, ""); cerr != nil {
			return cerr
		}
		run.Status = api.StatusCompleted
		run.Output = output
		e.observer.OnRunCompleted(ctx, run)
		return nil

	case errors.Is(err, errSuspend):
		// A new activity was scheduled; nothing more to do until it resolves.
		return nil

	case errors.Is(err, api.ErrConcurrentAppend):
		// Another writer advanced the log under us. Nothing was appended by
		// this step; the caller retries the whole step from a fresh read.
		return err

	case errors.Is(err, errSchedule):
		// Store or queue trouble while scheduling a live call. Not a
		// workflow outcome: surface it so the worker nacks and the step
		// retries against whatever did land in the log.
		return err

	default:
		// Uncaught workflow-logic error: terminal for the run. This covers
		// NonDeterminismError as well; neither is retryable.
		return e.failRun(ctx, run, nextSeq, err)
	}
}

// executeWorkflow runs workflow logic over the folded state, feeding recorded
// outcomes back to Execute call sites in original order. Once the cursor
// passes the end of recorded results, the next Execute call goes live: it
// appends ActivityScheduled, enqueues the attempt, and suspends.
func (e *engineImpl) executeWorkflow(ctx context.Context, runID string, fn api.WorkflowFunc, state *runState) (output []byte, nextSeq int, err error) {
	cursor := 0
	nextSeq = state.nextSeq

	wc := api.NewWorkflowContext(runID, func(name string, input []byte) ([]byte, error) {
		if cursor < len(state.resolved) {
			rc := state.resolved[cursor]
			if rc.name != name {
				return nil, &api.NonDeterminismError{
					RunID:    runID,
					Position: cursor,
					Recorded: rc.name,
					Replayed: name,
				}
			}
			cursor++
			if rc.givenUp != nil {
				return nil, rc.givenUp
			}
			return rc.output, nil
		}

		// Live edge: schedule the first attempt of a new call position.
		if _, ok := e.registry.activity(name); !ok {
			return nil, fmt.Errorf("%w: %s", api.ErrUnknownActivity, name)
		}
		if _, aerr := e.store.AppendEvent(ctx, runID, nextSeq, api.Event{
			Type:         api.EventActivityScheduled,
			ActivityName: name,
			Attempt:      1,
			Payload:      input,
		}); aerr != nil {
			return nil, fmt.Errorf("%w: %w", errSchedule, aerr)
		}
		nextSeq++
		if qerr := e.queue.Enqueue(ctx, taskqueue.Task{
			Kind:         taskqueue.KindExecuteActivity,
			RunID:        runID,
			ActivityName: name,
			Input:        input,
			Attempt:      1,
		}); qerr != nil {
			return nil, fmt.Errorf("%w: %w", errSchedule, qerr)
		}
		return nil, errSuspend
	})

	output, err = fn(wc, state.input)
	if err == nil && cursor < len(state.resolved) {
		// The code returned before consuming every recorded outcome: it
		// now makes fewer calls than the history holds. That is the same
		// divergence as a name mismatch and must not be reconciled.
		return nil, nextSeq, &api.NonDeterminismError{
			RunID:    runID,
			Position: cursor,
			Recorded: state.resolved[cursor].name,
			Replayed: "workflow return",
		}
	}
	return output, nextSeq, err
}

// failRun records a terminal failure. The append is best-effort ordered: if
// the log moved under us the failure append is retried once from the fresh
// tail, since a failing run has no competing writer by then.
func (e *engineImpl) failRun(ctx context.Context, run *api.Run, nextSeq int, cause error) error {
	ev := api.Event{
		Type:  api.EventWorkflowFailed,
		Error: cause.Error(),
	}
	if _, err := e.store.AppendEvent(ctx, run.ID, nextSeq, ev); err != nil {
		if !errors.Is(err, api.ErrConcurrentAppend) {
			return err
		}
		events, lerr := e.store.ListEvents(ctx, run.ID)
		if lerr != nil {
			return lerr
		}
		if _, err := e.store.AppendEvent(ctx, run.ID, len(events), ev); err != nil {
			return err
		}
	}
	if err := e.store.CloseRun(ctx, run.ID, api.StatusFailed, nil, cause.Error()); err != nil {
		return err
	}
	run.Status = api.StatusFailed
	run.Failure = cause.Error()
	e.observer.OnRunFailed(ctx, run, cause)
	return nil
}

// RunActivity executes one attempt of a scheduled activity and records its
// outcome. Stale or duplicate attempt tasks are detected against the history
// fold and leave the log untouched; they re-enqueue the step continuation so
// a resolution whose follow-up was lost to a crash still advances the run.
func (e *engineImpl) RunActivity(ctx context.Context, runID, name string, input []byte, attempt int) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}

	events, err := e.store.ListEvents(ctx, runID)
	if err != nil {
		return err
	}
	state, err := foldHistory(runID, events)
	if err != nil {
		return err
	}
	if state.pending == nil || state.pending.name != name || state.pending.attempt != attempt {
		// The log already resolved this attempt (or superseded it). The
		// worker that resolved it may have died before enqueueing the
		// follow-up, leaving this redelivery as the run's only task, so
		// hand progress back to the step loop instead of dropping.
		return e.queue.Enqueue(ctx, taskqueue.Task{
			Kind:  taskqueue.KindRunStep,
			RunID: runID,
		})
	}

	reg, ok := e.registry.activity(name)
	if !ok {
		// Registries are validated before workers start, so this is a
		// deployment mismatch. Surface it to workflow logic as a final
		// failure rather than retrying into the same wall.
		return e.resolveFailure(ctx, runID, name, attempt, state.nextSeq,
			fmt.Errorf("%w: %s", api.ErrUnknownActivity, name), api.RetryPolicy{MaxAttempts: 1})
	}

	result, invErr := e.invoke(ctx, reg, api.ActivityRequest{
		RunID:   runID,
		Name:    name,
		Input:   input,
		Attempt: attempt,
	})
	if invErr != nil {
		var aerr *api.ActivityError
		if !errors.As(invErr, &aerr) {
			// Worker-side interruption, not an activity outcome: leave the
			// log untouched so the redelivered task re-runs the attempt.
			return invErr
		}
		return e.resolveFailure(ctx, runID, name, attempt, state.nextSeq, aerr, reg.retry)
	}

	if _, err := e.store.AppendEvent(ctx, runID, state.nextSeq, api.Event{
		Type:         api.EventActivityCompleted,
		ActivityName: name,
		Attempt:      attempt,
		Payload:      result,
	}); err != nil {
		return err
	}
	return e.queue.Enqueue(ctx, taskqueue.Task{
		Kind:  taskqueue.KindRunStep,
		RunID: runID,
	})
}

// resolveFailure records a failed attempt and either schedules the next
// attempt after the policy's backoff or marks the failure final and queues
// the workflow continuation so logic can observe the GivenUp outcome.
func (e *engineImpl) resolveFailure(ctx context.Context, runID, name string, attempt, nextSeq int, cause error, policy api.RetryPolicy) error {
	delay, retry := policy.Next(attempt)

	if _, err := e.store.AppendEvent(ctx, runID, nextSeq, api.Event{
		Type:         api.EventActivityFailed,
		ActivityName: name,
		Attempt:      attempt,
		Error:        cause.Error(),
		Final:        !retry,
	}); err != nil {
		return err
	}

	if !retry {
		return e.queue.Enqueue(ctx, taskqueue.Task{
			Kind:  taskqueue.KindRunStep,
			RunID: runID,
		})
	}

	// Re-read the scheduled input from the pending call rather than trusting
	// the task payload: the log is the source of truth.
	events, err := e.store.ListEvents(ctx, runID)
	if err != nil {
		return err
	}
	state, err := foldHistory(runID, events)
	if err != nil {
		return err
	}
	if state.pending == nil {
		return nil
	}

	if _, err := e.store.AppendEvent(ctx, runID, state.nextSeq, api.Event{
		Type:         api.EventActivityScheduled,
		ActivityName: name,
		Attempt:      attempt + 1,
		Payload:      state.pending.input,
	}); err != nil {
		return err
	}
	return e.queue.Enqueue(ctx, taskqueue.Task{
		Kind:         taskqueue.KindExecuteActivity,
		RunID:        runID,
		ActivityName: name,
		Input:        state.pending.input,
		Attempt:      attempt + 1,
		NotBefore:    time.Now().Add(delay),
	})
}
