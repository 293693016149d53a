package taskqueue

import (
	"context"
	"sync"
)

// NamedLock is a keyed advisory lock owned by the dispatcher. Activities that
// declare a lock class are serialized per class across all workers sharing
// this lock (one engine process).
//
// It generalizes the "alert already in progress" flag the incident pipeline
// needs for audible alerts: instead of bespoke per-activity state, any
// activity class can opt into mutual exclusion.
type NamedLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewNamedLock creates an empty NamedLock.
func NewNamedLock() *NamedLock {
	return &NamedLock{slots: make(map[string]chan struct{})}
}

func (l *NamedLock) slot(class string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[class]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[class] = s
	}
	return s
}

// Acquire blocks until the class lock is free or ctx is done.
func (l *NamedLock) Acquire(ctx context.Context, class string) error {
	select {
	case l.slot(class) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the class lock. It must only be called after a successful
// Acquire for the same class.
func (l *NamedLock) Release(class string) {
	<-l.slot(class)
}
