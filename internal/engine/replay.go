package engine

import (
	"errors"
	"fmt"

	"github.com/flowpilot-io/durable/pkg/api"
)

// errSuspend is returned through workflow logic when execution reaches a live
// activity call: the call has been scheduled and the workflow parks until its
// outcome lands in the history. Workflow code must propagate it unchanged,
// which ordinary `if err != nil { return nil, err }` handling does.
var errSuspend = errors.New("workflow suspended at activity boundary")

// errSchedule wraps store and queue failures raised inside a live Execute
// call. They are infrastructure errors, not workflow outcomes: RunStep
// surfaces them to the worker for a nack and step retry instead of failing
// the run.
var errSchedule = errors.New("schedule activity")

// resolvedCall is the recorded final outcome of one activity call position.
type resolvedCall struct {
	name    string
	output  []byte
	givenUp *api.GivenUpError
}

// pendingCall is an activity invocation that has been scheduled but has not
// resolved yet. A run has at most one: workflow logic suspends at every
// activity boundary, so calls never overlap within a run.
type pendingCall struct {
	name    string
	input   []byte
	attempt int
}

// runState is the deterministic fold of a run's history log. Replaying the
// same prefix always produces the same runState.
type runState struct {
	workflowType string
	input        []byte

	// resolved holds final activity outcomes in call order.
	resolved []resolvedCall
	pending  *pendingCall

	terminal        api.EventType // zero while the run is live
	terminalOutput  []byte
	terminateReason string

	// nextSeq is the expected sequence number for the next append.
	nextSeq int
}

// foldHistory replays the ordered event log into a runState. It processes
// events strictly in sequence order and never consults anything outside the
// log, so every worker derives identical state from the same prefix.
func foldHistory(runID string, events []api.Event) (*runState, error) {
	st := &runState{}
	for i, ev := range events {
		if ev.Seq != i {
			return nil, fmt.Errorf("run %s: history gap at index %d (seq %d)", runID, i, ev.Seq)
		}
		switch ev.Type {
		case api.EventWorkflowStarted:
			st.workflowType = ev.WorkflowType
			st.input = ev.Payload

		case api.EventActivityScheduled:
			st.pending = &pendingCall{
				name:    ev.ActivityName,
				input:   ev.Payload,
				attempt: ev.Attempt,
			}

		case api.EventActivityCompleted:
			st.resolved = append(st.resolved, resolvedCall{
				name:   ev.ActivityName,
				output: ev.Payload,
			})
			st.pending = nil

		case api.EventActivityFailed:
			if ev.Final {
				st.resolved = append(st.resolved, resolvedCall{
					name: ev.ActivityName,
					givenUp: &api.GivenUpError{
						Name:     ev.ActivityName,
						Attempts: ev.Attempt,
						LastErr:  ev.Error,
					},
				})
				st.pending = nil
			}
			// Non-final failures keep the pending call: the retry attempt's
			// ActivityScheduled event follows immediately in the log.

		case api.EventWorkflowCompleted, api.EventWorkflowFailed, api.EventWorkflowTerminated:
			st.terminal = ev.Type
			st.terminalOutput = ev.Payload
			st.terminateReason = ev.Error

		default:
			return nil, fmt.Errorf("run %s: unknown event type %q at seq %d", runID, ev.Type, ev.Seq)
		}
	}
	st.nextSeq = len(events)
	return st, nil
}
