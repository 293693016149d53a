package taskqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNamedLockSerializesClass(t *testing.T) {
	l := NewNamedLock()
	ctx := context.Background()

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx, "voice"); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			l.Release("voice")
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInFlight)
	}
}

func TestNamedLockClassesIndependent(t *testing.T) {
	l := NewNamedLock()
	ctx := context.Background()

	if err := l.Acquire(ctx, "voice"); err != nil {
		t.Fatalf("Acquire voice: %v", err)
	}
	defer l.Release("voice")

	// A different class is not blocked.
	otherCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := l.Acquire(otherCtx, "diagram"); err != nil {
		t.Fatalf("Acquire diagram blocked by voice: %v", err)
	}
	l.Release("diagram")
}

func TestNamedLockAcquireCancellable(t *testing.T) {
	l := NewNamedLock()
	ctx := context.Background()

	if err := l.Acquire(ctx, "voice"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release("voice")

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(shortCtx, "voice")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("blocked Acquire err = %v, want DeadlineExceeded", err)
	}
}
