// Package worker provides the background worker that drives durable
// workflow runs forward.
//
// Workers lease tasks from a task queue, dispatch them to the engine
// (replaying a workflow step or executing an activity attempt), and ack or
// nack them. They are designed to be lightweight and easy to embed in
// existing services, and they can be scaled horizontally.
//
// # Crash recovery
//
// A worker that dies mid-task never acks its lease; once the lease expires
// the task becomes visible again and any other worker picks it up. Because
// the engine reconstructs all run state from the history log, no in-memory
// state is lost with the worker.
//
// # Duplicate delivery
//
// Lease expiry means tasks are delivered at least once. The engine's replay
// logic is idempotent against duplicates: a redundant continuation observes
// the in-flight activity in the history and no-ops, and a stale activity
// task fails its attempt-number check against the log. Activity handlers
// themselves may still run more than once and receive the attempt number to
// dedupe on if their side effects require it.
//
// Most applications construct workers via the bundle helpers in the root
// durable package, which wire the engine, queue, and observers together.
package worker
