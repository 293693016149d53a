package api

import "time"

// Status represents the lifecycle state of a workflow run.
type Status string

const (
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusTerminated Status = "TERMINATED"
)

// Terminal reports whether the status is a final state. Once a run leaves
// RUNNING its status never changes again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTerminated
}

// Run is one execution instance of a workflow type with specific input.
//
// A run is mutated only by appending history events and by a single status
// transition out of RUNNING. Runs are retained indefinitely for audit.
type Run struct {
	ID           string
	WorkflowType string
	Status       Status

	// Input is the opaque serialized argument block passed to StartWorkflow.
	// The engine never inspects its contents.
	Input []byte

	// Output holds the workflow result once the run is COMPLETED.
	Output []byte

	// Failure holds the terminal error message for FAILED and TERMINATED runs.
	Failure string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventType identifies one of the history event variants.
type EventType string

const (
	EventWorkflowStarted    EventType = "workflow-started"
	EventActivityScheduled  EventType = "activity-scheduled"
	EventActivityCompleted  EventType = "activity-completed"
	EventActivityFailed     EventType = "activity-failed"
	EventWorkflowCompleted  EventType = "workflow-completed"
	EventWorkflowFailed     EventType = "workflow-failed"
	EventWorkflowTerminated EventType = "workflow-terminated"
)

// Event is a single entry in a run's append-only history log.
//
// Events for a run are strictly ordered by Seq, starting at 0. An appended
// event is never edited or removed; replay processes events in Seq order and
// must produce identical intermediate state every time.
type Event struct {
	Seq  int
	Type EventType
	At   time.Time

	// WorkflowType is set on EventWorkflowStarted.
	WorkflowType string

	// ActivityName and Attempt are set on the activity event variants.
	// Attempt starts at 1.
	ActivityName string
	Attempt      int

	// Payload carries the variant-specific opaque bytes: workflow input for
	// EventWorkflowStarted, activity input for EventActivityScheduled,
	// activity result for EventActivityCompleted, workflow output for
	// EventWorkflowCompleted.
	Payload []byte

	// Error carries the failure message for EventActivityFailed,
	// EventWorkflowFailed, and the reason for EventWorkflowTerminated.
	Error string

	// Final marks an EventActivityFailed whose retry policy gave up: no
	// further attempt will be scheduled and the failure surfaces to workflow
	// logic as a GivenUpError.
	Final bool
}

// RunFilter selects runs from the store. Zero values mean "no filter".
type RunFilter struct {
	WorkflowType string
	Status       Status
}
