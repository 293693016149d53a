package durable

import (
	"database/sql"

	"github.com/flowpilot-io/durable/internal/engine"
	"github.com/flowpilot-io/durable/internal/taskqueue"
	workerpkg "github.com/flowpilot-io/durable/pkg/worker"
)

// Bundle wires together an Engine, a task queue, and a Worker that consumes
// tasks from that queue. An Engine without a running Worker accepts
// submissions but never makes progress, so most deployments want a Bundle.
type Bundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported; the public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + queue + Worker combo sharing
// the same SQLite database. Runs, history events, and queued tasks are all
// persisted in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:durable.db?_journal=WAL")
//	bundle, err := durable.NewSQLiteBundle(db, worker.Config{Concurrency: 4}, nil)
//	// register workflows and activities on bundle.Engine
//	// go bundle.Worker.Run(ctx)
func NewSQLiteBundle(db *sql.DB, cfg workerpkg.Config, obs Observer) (*Bundle, error) {
	eng, q, err := engine.NewSQLiteEngine(db, obs)
	if err != nil {
		return nil, err
	}
	w := workerpkg.NewWithConfig(eng, q, cfg)

	return &Bundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}, nil
}
