package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/flowpilot-io/durable/pkg/api"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// The UNIQUE(run_id, seq) constraint on the events table is what turns a
// racing append into api.ErrConcurrentAppend: whichever writer commits first
// wins, the other sees a constraint violation with nothing written.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_type TEXT NOT NULL,
			status TEXT NOT NULL,
			input BLOB,
			output BLOB,
			failure TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS run_events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			at INTEGER NOT NULL,
			workflow_type TEXT NOT NULL DEFAULT '',
			activity_name TEXT NOT NULL DEFAULT '',
			attempt INTEGER NOT NULL DEFAULT 0,
			payload BLOB,
			error TEXT NOT NULL DEFAULT '',
			final INTEGER NOT NULL DEFAULT 0,
			UNIQUE(run_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, seq);
	`)
	return err
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *api.Run) error {
	now := time.Now()
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_type, status, input, output, failure, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.WorkflowType,
		string(run.Status),
		run.Input,
		run.Output,
		run.Failure,
		createdAt.UnixNano(),
		now.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_type, status, input, output, failure, created_at, updated_at
		FROM runs
		WHERE id = ?`,
		id,
	)
	run, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter api.RunFilter) ([]*api.Run, error) {
	query := `
		SELECT id, workflow_type, status, input, output, failure, created_at, updated_at
		FROM runs`
	var args []any
	var clauses []string

	if filter.WorkflowType != "" {
		clauses = append(clauses, "workflow_type = ?")
		args = append(args, filter.WorkflowType)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(scan func(dest ...any) error) (*api.Run, error) {
	var (
		run       api.Run
		statusStr string
		createdAt int64
		updatedAt int64
	)
	if err := scan(&run.ID, &run.WorkflowType, &statusStr, &run.Input, &run.Output, &run.Failure, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	run.Status = api.Status(statusStr)
	run.CreatedAt = time.Unix(0, createdAt)
	run.UpdatedAt = time.Unix(0, updatedAt)
	return &run, nil
}

func (s *SQLiteStore) CloseRun(ctx context.Context, id string, status api.Status, output []byte, failure string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, output = ?, failure = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status),
		output,
		failure,
		time.Now().UnixNano(),
		id,
		string(api.StatusRunning),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the run does not exist, or it was already closed.
		if _, err := s.GetRun(ctx, id); err != nil {
			return err
		}
		return api.ErrConcurrentAppend
	}
	return nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, runID string, expectedSeq int, ev api.Event) (int, error) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	final := 0
	if ev.Final {
		final = 1
	}
	// The guard subquery makes the append atomic: the row lands only when
	// expectedSeq is exactly the current log length. The unique index on
	// (run_id, seq) backstops racing inserts of the same seq.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, seq, type, at, workflow_type, activity_name, attempt, payload, error, final)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE (SELECT COUNT(*) FROM run_events WHERE run_id = ?) = ?`,
		runID,
		expectedSeq,
		string(ev.Type),
		at.UnixNano(),
		ev.WorkflowType,
		ev.ActivityName,
		ev.Attempt,
		ev.Payload,
		ev.Error,
		final,
		runID,
		expectedSeq,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, api.ErrConcurrentAppend
		}
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, api.ErrConcurrentAppend
	}
	return expectedSeq, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]api.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, type, at, workflow_type, activity_name, attempt, payload, error, final
		FROM run_events
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.Event
	for rows.Next() {
		var (
			ev    api.Event
			typ   string
			atN   int64
			final int
		)
		if err := rows.Scan(&ev.Seq, &typ, &atN, &ev.WorkflowType, &ev.ActivityName, &ev.Attempt, &ev.Payload, &ev.Error, &final); err != nil {
			return nil, err
		}
		ev.Type = api.EventType(typ)
		ev.At = time.Unix(0, atN)
		ev.Final = final != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

// isUniqueViolation recognizes the SQLite unique-constraint error without
// depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
