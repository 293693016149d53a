package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteQueue is a durable Queue backed by SQLite. Tasks survive process
// restarts; leases are plain timestamp columns so an expired lease needs no
// background reaper; the Lease query simply considers the task free again.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the tasks table in the given DB and returns a
// new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			run_id TEXT NOT NULL,
			activity_name TEXT NOT NULL DEFAULT '',
			input BLOB,
			attempt INTEGER NOT NULL DEFAULT 0,
			enqueued_at INTEGER NOT NULL,
			not_before INTEGER NOT NULL,
			leased_by TEXT NOT NULL DEFAULT '',
			lease_expires INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_eligible ON tasks(not_before, lease_expires);
	`)
	return err
}

var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	enqueuedAt := t.EnqueuedAt.UnixNano()
	notBefore := enqueuedAt
	if !t.NotBefore.IsZero() {
		notBefore = t.NotBefore.UnixNano()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tasks (id, kind, run_id, activity_name, input, attempt, enqueued_at, not_before)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		string(t.Kind),
		t.RunID,
		t.ActivityName,
		t.Input,
		t.Attempt,
		enqueuedAt,
		notBefore,
	)
	return err
}

func (q *SQLiteQueue) Lease(ctx context.Context, workerID string, leaseDur time.Duration) (*Task, error) {
	for {
		task, err := q.tryLease(ctx, workerID, leaseDur)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *SQLiteQueue) tryLease(ctx context.Context, workerID string, leaseDur time.Duration) (*Task, error) {
	now := time.Now()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	var (
		id          string
		kindStr     string
		runID       string
		actName     string
		input       []byte
		attempt     int
		enqueuedInt int64
		notBefore   int64
	)
	row := tx.QueryRowContext(ctx, `
		SELECT id, kind, run_id, activity_name, input, attempt, enqueued_at, not_before
		FROM tasks
		WHERE not_before <= ? AND lease_expires <= ?
		ORDER BY not_before, enqueued_at
		LIMIT 1`, now.UnixNano(), now.UnixNano())
	err = row.Scan(&id, &kindStr, &runID, &actName, &input, &attempt, &enqueuedInt, &notBefore)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET leased_by = ?, lease_expires = ? WHERE id = ?`,
		workerID, now.Add(leaseDur).UnixNano(), id,
	); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Task{
		ID:           id,
		Kind:         Kind(kindStr),
		RunID:        runID,
		ActivityName: actName,
		Input:        input,
		Attempt:      attempt,
		EnqueuedAt:   time.Unix(0, enqueuedInt),
		NotBefore:    time.Unix(0, notBefore),
	}, nil
}

func (q *SQLiteQueue) Ack(ctx context.Context, taskID string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("ack: task %s not found", taskID)
	}
	return nil
}

func (q *SQLiteQueue) Nack(ctx context.Context, taskID string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET leased_by = '', lease_expires = 0 WHERE id = ?`, taskID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("nack: task %s not found", taskID)
	}
	return nil
}

func (q *SQLiteQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}
