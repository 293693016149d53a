// Package taskqueue implements the dispatcher that matches pending workflow
// continuations and activity attempts to available workers.
//
// Tasks are leased, not dequeued: a worker holds a time-bounded exclusive
// claim and must Ack to remove the task. A leased task whose lease expires
// without an Ack becomes visible again, which is the whole crash-recovery
// story; a dead worker's work is simply re-leased.
package taskqueue

import (
	"context"
	"time"
)

// Kind identifies what the worker should do with a task.
type Kind string

const (
	// KindRunStep asks a worker to replay the run's history and drive its
	// workflow logic forward one step.
	KindRunStep Kind = "run-workflow-step"

	// KindExecuteActivity asks a worker to execute one activity attempt.
	KindExecuteActivity Kind = "execute-activity"
)

// Task is one unit of queued work.
type Task struct {
	ID    string
	Kind  Kind
	RunID string

	// ActivityName, Input and Attempt are set for KindExecuteActivity.
	ActivityName string
	Input        []byte
	Attempt      int

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task is eligible for leasing.
	// Zero means immediately. Retry backoff delays are expressed through it.
	NotBefore time.Time
}

// Queue is the dispatcher contract.
//
// There is no ordering guarantee across runs. Within one run the engine's
// replay logic tolerates duplicate and out-of-date tasks, so the queue only
// has to guarantee that a task is leased by at most one worker at a time.
type Queue interface {
	// Enqueue adds a task. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Lease blocks until a task is available (or ctx is done) and claims it
	// for workerID for leaseDur. The task stays invisible to other workers
	// until it is Acked, Nacked, or the lease expires.
	Lease(ctx context.Context, workerID string, leaseDur time.Duration) (*Task, error)

	// Ack removes a leased task permanently.
	Ack(ctx context.Context, taskID string) error

	// Nack returns a leased task to the queue immediately.
	Nack(ctx context.Context, taskID string) error

	// Len returns the approximate number of tasks queued or leased.
	Len() int
}
