// Package durable provides an embeddable, durable workflow engine for Go.
//
// Durable runs long-lived, multi-step processes that survive worker
// restarts: every decision and activity outcome is appended to a per-run
// history log, and workers reconstruct run state by deterministically
// replaying that log. It runs fully in Go with an embedded SQLite backend
// and integrates cleanly into existing codebases.
//
// # Core Concepts
//
//  1. Engine
//  2. Worker
//  3. Workflow functions
//  4. Activities
//  5. LocalRunner
//
// # Engine
//
// The Engine persists run records and history events, schedules activity
// attempts, and provides APIs to:
//   - start workflow runs
//   - query run status and history
//   - terminate runs
//
// Engines can be backed by in-memory stores (non-durable, best for tests)
// or SQLite (embedded durability). Each backend includes a matching task
// queue so workers can reliably lease work.
//
// # Worker
//
// A Worker leases tasks from the queue and executes them: replaying a
// workflow step forward, or running one activity attempt. Workers are
// stateless and can be scaled horizontally; a crashed worker's tasks are
// re-leased after its lease expires.
//
// # Workflow functions
//
// Workflow logic is a plain Go function over a WorkflowContext:
//
//	func Diagnose(wc *durable.WorkflowContext, input []byte) ([]byte, error) {
//	    decision, err := wc.Execute("decide-action", input)
//	    if err != nil {
//	        return nil, err
//	    }
//	    ...
//	}
//
// Workflow code must be deterministic: no wall-clock reads, no unguarded
// randomness, no I/O. The engine may re-execute it many times against the
// recorded history; recorded activity results are fed back into Execute
// call sites without any network call.
//
// # Activities
//
// An activity is a single named external operation with its own timeout and
// retry policy. All side effects live in activities. A failed activity is
// retried per policy; exhausted retries surface to workflow logic as a
// catchable GivenUpError, so the workflow decides whether a failure is
// fatal to the run.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory engine, queue, and workers into a single
// process-local helper useful for development and unit testing. It is
// intentionally not crash-durable.
//
// For a complete example, see the incident package: a demo incident-response
// pipeline built on this engine.
package durable
