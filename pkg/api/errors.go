package api

import (
	"errors"
	"fmt"
)

var (
	// ErrRunNotFound is returned when a run ID does not exist in the store.
	ErrRunNotFound = errors.New("run not found")

	// ErrUnknownWorkflow is returned by StartWorkflow for an unregistered
	// workflow type.
	ErrUnknownWorkflow = errors.New("unknown workflow type")

	// ErrUnknownActivity is returned when workflow logic requests an activity
	// name that is not registered. Registries are validated at worker startup
	// so this usually indicates a code/deployment mismatch.
	ErrUnknownActivity = errors.New("unknown activity")

	// ErrRunClosed is returned by Terminate when the run is already in a
	// terminal status.
	ErrRunClosed = errors.New("run already closed")

	// ErrConcurrentAppend is returned by the history log when two appends
	// race for the same next sequence number. Nothing was durably written by
	// the losing append; the caller retries the whole step from scratch.
	ErrConcurrentAppend = errors.New("concurrent history append conflict")
)

// ErrorKind classifies how an activity attempt ended.
type ErrorKind string

const (
	// ErrorKindTimeout means the attempt exceeded its deadline and was
	// cancelled. Retryable per policy.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindFailed means the activity handler reported an error.
	// Retryable per policy.
	ErrorKindFailed ErrorKind = "failed"
)

// ActivityError describes the failure of a single activity attempt.
type ActivityError struct {
	Name    string
	Kind    ErrorKind
	Attempt int
	Cause   error
}

func (e *ActivityError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("activity %s attempt %d: %s", e.Name, e.Attempt, e.Kind)
	}
	return fmt.Sprintf("activity %s attempt %d: %s: %v", e.Name, e.Attempt, e.Kind, e.Cause)
}

func (e *ActivityError) Unwrap() error { return e.Cause }

// GivenUpError is returned from WorkflowContext.Execute when an activity's
// retries are exhausted. It is a normal, catchable result: workflow logic
// decides whether a given-up activity is fatal to the run.
type GivenUpError struct {
	Name     string
	Attempts int
	LastErr  string
}

func (e *GivenUpError) Error() string {
	return fmt.Sprintf("activity %s gave up after %d attempts: %s", e.Name, e.Attempts, e.LastErr)
}

// IsGivenUp returns the GivenUpError if err indicates exhausted retries.
func IsGivenUp(err error) (*GivenUpError, bool) {
	var g *GivenUpError
	if errors.As(err, &g) {
		return g, true
	}
	return nil, false
}

// NonDeterminismError means replayed workflow logic diverged from recorded
// history (for example, a different activity name at the same call position).
// The run transitions to FAILED and is never auto-retried: re-running a
// deterministic replay mismatch would reproduce the same divergence.
type NonDeterminismError struct {
	RunID    string
	Position int
	Recorded string
	Replayed string
}

func (e *NonDeterminismError) Error() string {
	return fmt.Sprintf("non-deterministic replay of run %s at call %d: history recorded activity %q, code requested %q",
		e.RunID, e.Position, e.Recorded, e.Replayed)
}
