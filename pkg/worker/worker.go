package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowpilot-io/durable/internal/taskqueue"
	"github.com/flowpilot-io/durable/pkg/api"
)

// Config controls worker behavior.
type Config struct {
	// Concurrency is the number of parallel task-processing goroutines
	// started by Run. Defaults to 1.
	Concurrency int

	// LeaseDuration is the exclusive claim placed on each leased task. It
	// must comfortably exceed the longest activity timeout in the registry;
	// a lease that expires mid-execution lets a second worker start the same
	// attempt. Defaults to 2 minutes.
	LeaseDuration time.Duration

	// Logger receives worker-level diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultLeaseDuration is used when Config.LeaseDuration is zero.
const DefaultLeaseDuration = 2 * time.Minute

// Worker pulls tasks from a Queue and executes them against an Engine.
// Workers share no state; any number of them may serve the same queue.
type Worker struct {
	id     string
	engine api.Engine
	queue  taskqueue.Queue
	cfg    Config
	logger *slog.Logger
}

// New creates a Worker with default configuration.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return NewWithConfig(engine, queue, Config{})
}

// NewWithConfig creates a Worker with the given configuration.
func NewWithConfig(engine api.Engine, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:     "worker-" + uuid.NewString(),
		engine: engine,
		queue:  queue,
		cfg:    cfg,
		logger: logger,
	}
}

// ID returns this worker's lease owner identity.
func (w *Worker) ID() string { return w.id }

// ProcessOne leases a single task, processes it, and acks or nacks it.
// Returns (processed, error):
//   - processed == false: no task was obtained (ctx cancelled).
//   - processed == true: a task was handled; err reports a handler failure
//     that caused a nack.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Lease(ctx, w.id, w.cfg.LeaseDuration)
	if err != nil {
		return false, err
	}

	if err := w.dispatch(ctx, task); err != nil {
		// ErrConcurrentAppend and other infrastructure errors: return the
		// task so the step is retried from scratch. The failed lease keeps
		// duplicate effects out of the log, not out of the queue.
		if nerr := w.queue.Nack(ctx, task.ID); nerr != nil {
			w.logger.Warn("task nack failed", slog.String("task_id", task.ID), slog.Any("error", nerr))
		}
		return true, err
	}

	if err := w.queue.Ack(ctx, task.ID); err != nil {
		w.logger.Warn("task ack failed", slog.String("task_id", task.ID), slog.Any("error", err))
	}
	return true, nil
}

func (w *Worker) dispatch(ctx context.Context, task *taskqueue.Task) error {
	switch task.Kind {
	case taskqueue.KindRunStep:
		return w.engine.RunStep(ctx, task.RunID)
	case taskqueue.KindExecuteActivity:
		return w.engine.RunActivity(ctx, task.RunID, task.ActivityName, task.Input, task.Attempt)
	default:
		// Unknown kinds are dropped on ack rather than nacked: retrying
		// cannot make the kind known.
		w.logger.Error("unknown task kind", slog.String("kind", string(task.Kind)), slog.String("task_id", task.ID))
		return nil
	}
}

// Run starts Config.Concurrency processing goroutines and blocks until ctx
// is cancelled and all of them have drained.
func (w *Worker) Run(ctx context.Context) error {
	if w.engine == nil || w.queue == nil {
		return errors.New("worker requires an engine and a queue")
	}

	done := make(chan struct{}, w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				processed, err := w.ProcessOne(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// A single bad task must not kill the loop.
					w.logger.Warn("task processing error", slog.Any("error", err))
					continue
				}
				if !processed && ctx.Err() != nil {
					return
				}
			}
		}()
	}

	<-ctx.Done()
	for i := 0; i < w.cfg.Concurrency; i++ {
		<-done
	}
	return ctx.Err()
}

// EnqueueStep queues a continuation task for a run. Used by operators to
// nudge a run whose continuation task was lost, and by tests.
func (w *Worker) EnqueueStep(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("runID is required")
	}
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Kind:  taskqueue.KindRunStep,
		RunID: runID,
	})
}
