package taskqueue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func forEachQueue(t *testing.T, fn func(t *testing.T, q Queue)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryQueue())
	})
	t.Run("sqlite", func(t *testing.T) {
		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		db.SetMaxOpenConns(1)

		q, err := NewSQLiteQueue(db)
		if err != nil {
			t.Fatalf("NewSQLiteQueue: %v", err)
		}
		fn(t, q)
	})
}

func mustLease(t *testing.T, q Queue, workerID string, leaseDur time.Duration) *Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	task, err := q.Lease(ctx, workerID, leaseDur)
	if err != nil {
		t.Fatalf("Lease(%s): %v", workerID, err)
	}
	return task
}

func TestEnqueueLeaseAck(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue) {
		ctx := context.Background()

		err := q.Enqueue(ctx, Task{
			ID:           "t1",
			Kind:         KindExecuteActivity,
			RunID:        "r1",
			ActivityName: "decide-action",
			Input:        []byte(`{"metric":"memory-leak"}`),
			Attempt:      1,
			EnqueuedAt:   time.Now(),
		})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if q.Len() != 1 {
			t.Errorf("Len = %d, want 1", q.Len())
		}

		task := mustLease(t, q, "w1", time.Minute)
		if task.ID != "t1" || task.Kind != KindExecuteActivity || task.RunID != "r1" {
			t.Errorf("task = %+v", task)
		}
		if task.ActivityName != "decide-action" || task.Attempt != 1 {
			t.Errorf("task = %+v", task)
		}
		if string(task.Input) != `{"metric":"memory-leak"}` {
			t.Errorf("input = %s", task.Input)
		}

		if err := q.Ack(ctx, task.ID); err != nil {
			t.Fatalf("Ack: %v", err)
		}
		if q.Len() != 0 {
			t.Errorf("Len after ack = %d, want 0", q.Len())
		}
	})
}

func TestLeasedTaskInvisible(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue) {
		ctx := context.Background()
		if err := q.Enqueue(ctx, Task{ID: "t1", Kind: KindRunStep, RunID: "r1", EnqueuedAt: time.Now()}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}

		_ = mustLease(t, q, "w1", time.Minute)

		// A second worker sees nothing while the lease is held.
		shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		if task, err := q.Lease(shortCtx, "w2", time.Minute); err == nil {
			t.Fatalf("second lease got task %+v, want timeout", task)
		}
	})
}

func TestNackMakesTaskVisibleAgain(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue) {
		ctx := context.Background()
		if err := q.Enqueue(ctx, Task{ID: "t1", Kind: KindRunStep, RunID: "r1", EnqueuedAt: time.Now()}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}

		task := mustLease(t, q, "w1", time.Minute)
		if err := q.Nack(ctx, task.ID); err != nil {
			t.Fatalf("Nack: %v", err)
		}

		again := mustLease(t, q, "w2", time.Minute)
		if again.ID != "t1" {
			t.Errorf("re-leased task = %s, want t1", again.ID)
		}
	})
}

func TestExpiredLeaseRecovered(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue) {
		ctx := context.Background()
		if err := q.Enqueue(ctx, Task{ID: "t1", Kind: KindExecuteActivity, RunID: "r1", ActivityName: "a", Attempt: 1, EnqueuedAt: time.Now()}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}

		// Worker A leases with a tiny lease and then "crashes": no Ack ever
		// comes.
		_ = mustLease(t, q, "crashed-worker", 50*time.Millisecond)

		// After expiry, worker B gets the same task.
		task := mustLease(t, q, "w2", time.Minute)
		if task.ID != "t1" {
			t.Errorf("recovered task = %s, want t1", task.ID)
		}

		// And it is held exclusively again.
		shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		if task, err := q.Lease(shortCtx, "w3", time.Minute); err == nil {
			t.Fatalf("third lease got task %+v, want timeout", task)
		}
	})
}

func TestNotBeforeDelaysLeasing(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue) {
		ctx := context.Background()
		if err := q.Enqueue(ctx, Task{
			ID:         "t1",
			Kind:       KindExecuteActivity,
			RunID:      "r1",
			Attempt:    2,
			EnqueuedAt: time.Now(),
			NotBefore:  time.Now().Add(150 * time.Millisecond),
		}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}

		shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if task, err := q.Lease(shortCtx, "w1", time.Minute); err == nil {
			t.Fatalf("leased %+v before NotBefore", task)
		}

		task := mustLease(t, q, "w1", time.Minute)
		if task.ID != "t1" {
			t.Errorf("task = %s, want t1", task.ID)
		}
		if time.Now().Before(task.NotBefore) {
			t.Error("task leased before its NotBefore time")
		}
	})
}

func TestLeaseOrderOldestFirst(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue) {
		ctx := context.Background()
		base := time.Now().Add(-time.Minute)
		for i, id := range []string{"t1", "t2", "t3"} {
			if err := q.Enqueue(ctx, Task{ID: id, Kind: KindRunStep, RunID: "r1", EnqueuedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
				t.Fatalf("Enqueue %s: %v", id, err)
			}
		}

		for _, want := range []string{"t1", "t2", "t3"} {
			task := mustLease(t, q, "w1", time.Minute)
			if task.ID != want {
				t.Fatalf("leased %s, want %s", task.ID, want)
			}
			if err := q.Ack(ctx, task.ID); err != nil {
				t.Fatalf("Ack: %v", err)
			}
		}
	})
}

func TestLeaseRespectsContextCancel(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := q.Lease(ctx, "w1", time.Minute)
			done <- err
		}()
		cancel()

		select {
		case err := <-done:
			if err == nil {
				t.Error("Lease returned nil error after cancel")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Lease did not return after cancel")
		}
	})
}
