package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue with full lease semantics. It is safe
// for concurrent use and intended for tests, development, and the
// LocalRunner.
type MemoryQueue struct {
	mu           sync.Mutex
	tasks        map[string]*memoryTask
	pollInterval time.Duration
}

type memoryTask struct {
	task         Task
	leasedBy     string
	leaseExpires time.Time
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		tasks:        make(map[string]*memoryTask),
		pollInterval: 10 * time.Millisecond,
	}
}

var _ Queue = (*MemoryQueue)(nil)

func (q *MemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[t.ID] = &memoryTask{task: t}
	return nil
}

func (q *MemoryQueue) Lease(ctx context.Context, workerID string, leaseDur time.Duration) (*Task, error) {
	for {
		if t := q.tryLease(workerID, leaseDur); t != nil {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *MemoryQueue) tryLease(workerID string, leaseDur time.Duration) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var best *memoryTask
	for _, mt := range q.tasks {
		if !mt.task.NotBefore.IsZero() && mt.task.NotBefore.After(now) {
			continue
		}
		if mt.leasedBy != "" && mt.leaseExpires.After(now) {
			continue
		}
		if best == nil || mt.task.EnqueuedAt.Before(best.task.EnqueuedAt) {
			best = mt
		}
	}
	if best == nil {
		return nil
	}

	best.leasedBy = workerID
	best.leaseExpires = now.Add(leaseDur)
	cp := best.task
	return &cp
}

func (q *MemoryQueue) Ack(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.tasks[taskID]; !ok {
		return fmt.Errorf("ack: task %s not found", taskID)
	}
	delete(q.tasks, taskID)
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	mt, ok := q.tasks[taskID]
	if !ok {
		return fmt.Errorf("nack: task %s not found", taskID)
	}
	mt.leasedBy = ""
	mt.leaseExpires = time.Time{}
	return nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
