package engine

import (
	"context"
	"errors"
	"time"

	"github.com/flowpilot-io/durable/pkg/api"
)

// invoke runs a single activity attempt with its configured timeout and
// advisory lock class. The handler runs in its own goroutine so a handler
// that ignores context cancellation still cannot hold up the worker past the
// deadline; the abandoned goroutine keeps its (cancelled) context.
func (e *engineImpl) invoke(ctx context.Context, reg activityRegistration, req api.ActivityRequest) ([]byte, error) {
	if reg.lockClass != "" {
		// A cancelled wait here is a worker-side condition, not an activity
		// failure: the plain context error makes the caller requeue the task
		// instead of consuming an attempt.
		if err := e.locks.Acquire(ctx, reg.lockClass); err != nil {
			return nil, err
		}
		defer e.locks.Release(reg.lockClass)
	}

	timeout := reg.timeout
	if timeout <= 0 {
		timeout = api.DefaultActivityTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.observer.OnActivityStart(ctx, req.RunID, req.Name, req.Attempt)
	start := time.Now()

	type outcome struct {
		result []byte
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := reg.fn(actx, req)
		done <- outcome{result, err}
	}()

	var (
		result []byte
		err    error
	)
	select {
	case out := <-done:
		result, err = out.result, out.err
		if err != nil {
			kind := api.ErrorKindFailed
			if errors.Is(err, context.DeadlineExceeded) {
				kind = api.ErrorKindTimeout
			}
			err = &api.ActivityError{Name: req.Name, Kind: kind, Attempt: req.Attempt, Cause: err}
		}
	case <-actx.Done():
		if ctx.Err() != nil {
			// The worker itself is shutting down; don't consume an attempt.
			err = ctx.Err()
		} else {
			err = &api.ActivityError{Name: req.Name, Kind: api.ErrorKindTimeout, Attempt: req.Attempt, Cause: actx.Err()}
		}
	}

	e.observer.OnActivityCompleted(ctx, req.RunID, req.Name, req.Attempt, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}
