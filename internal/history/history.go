// Package history implements the per-run append-only event log and the run
// status records backing it. The log is the sole source of truth for run
// state: workers coordinate exclusively through compare-and-append on it.
package history

import (
	"context"

	"github.com/flowpilot-io/durable/pkg/api"
)

// Store persists runs and their history logs.
//
// AppendEvent is the coordination primitive: expectedSeq is the sequence
// number the caller believes comes next (i.e. the number of events it has
// read). If another writer got there first the append fails with
// api.ErrConcurrentAppend and nothing is written; the caller retries its
// whole step from a fresh read.
type Store interface {
	// CreateRun persists a new run record in StatusRunning.
	CreateRun(ctx context.Context, run *api.Run) error

	// GetRun returns the status record for a run, or api.ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*api.Run, error)

	// ListRuns returns runs matching the filter, in no particular order.
	ListRuns(ctx context.Context, filter api.RunFilter) ([]*api.Run, error)

	// CloseRun transitions a run out of StatusRunning exactly once, storing
	// the terminal output or failure. A second transition attempt fails with
	// api.ErrConcurrentAppend.
	CloseRun(ctx context.Context, id string, status api.Status, output []byte, failure string) error

	// AppendEvent durably appends an event with sequence number expectedSeq.
	// The event's Seq field is assigned by the store.
	AppendEvent(ctx context.Context, runID string, expectedSeq int, ev api.Event) (int, error)

	// ListEvents returns the full ordered event log for a run. The result is
	// always a complete prefix: no partial or torn reads.
	ListEvents(ctx context.Context, runID string) ([]api.Event, error)
}
