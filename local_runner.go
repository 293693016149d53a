package durable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowpilot-io/durable/internal/engine"
	"github.com/flowpilot-io/durable/internal/taskqueue"
	workerpkg "github.com/flowpilot-io/durable/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a
// Worker into a simple process-local runtime for development and tests.
//
// Typical usage:
//
//	runner := durable.NewLocalRunner()
//	_ = runner.Engine.RegisterWorkflow("diagnose", Diagnose)
//	_ = runner.Engine.RegisterActivity("decide-action", decide, nil)
//
//	_ = runner.StartWorkers(ctx, 2)
//	runID, _ := runner.Engine.StartWorkflow(ctx, "diagnose", input)
//	run, _ := runner.WaitForRun(ctx, runID)
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory workflow engine used by this runner.
	Engine Engine

	// Worker processes tasks from the in-memory queue using Engine.
	Worker *workerpkg.Worker

	queue taskqueue.Queue

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewLocalRunner constructs a LocalRunner with default worker config.
// It is intentionally not crash-durable.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWithObserver(nil)
}

// NewLocalRunnerWithObserver constructs a LocalRunner whose engine reports
// to the given Observer.
func NewLocalRunnerWithObserver(obs Observer) *LocalRunner {
	eng, q := engine.NewInMemoryEngine(obs)
	w := workerpkg.New(eng, q)
	return &LocalRunner{
		Engine: eng,
		Worker: w,
		queue:  q,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that process tasks
// until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("durable: LocalRunner already started")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	w := workerpkg.NewWithConfig(r.Engine, r.queue, workerpkg.Config{Concurrency: concurrency})
	r.Worker = w
	go func() {
		defer close(r.done)
		_ = w.Run(ctx)
	}()

	return nil
}

// Stop cancels the worker goroutines started by StartWorkers and waits for
// them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// WaitForRun polls until the run reaches a terminal status or ctx is done.
func (r *LocalRunner) WaitForRun(ctx context.Context, runID string) (*Run, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		run, err := r.Engine.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, fmt.Errorf("waiting for run %s: %w", runID, ctx.Err())
		case <-ticker.C:
		}
	}
}
