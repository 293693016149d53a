package history

import (
	"context"
	"sync"
	"time"

	"github.com/flowpilot-io/durable/pkg/api"
)

// MemoryStore is a goroutine-safe Store backed by maps. It is not durable;
// use it for tests, development, and the LocalRunner.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*api.Run
	events map[string][]api.Event
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]*api.Run),
		events: make(map[string][]api.Event),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateRun(ctx context.Context, run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, api.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, filter api.RunFilter) ([]*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Run
	for _, run := range s.runs {
		if filter.WorkflowType != "" && run.WorkflowType != filter.WorkflowType {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		cp := *run
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) CloseRun(ctx context.Context, id string, status api.Status, output []byte, failure string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return api.ErrRunNotFound
	}
	if run.Status != api.StatusRunning {
		// The run was already closed by another writer.
		return api.ErrConcurrentAppend
	}
	run.Status = status
	run.Output = output
	run.Failure = failure
	run.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, runID string, expectedSeq int, ev api.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return 0, api.ErrRunNotFound
	}

	log := s.events[runID]
	if len(log) != expectedSeq {
		return 0, api.ErrConcurrentAppend
	}

	ev.Seq = expectedSeq
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.events[runID] = append(log, ev)
	return ev.Seq, nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, runID string) ([]api.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.events[runID]
	out := make([]api.Event, len(log))
	copy(out, log)
	return out, nil
}
