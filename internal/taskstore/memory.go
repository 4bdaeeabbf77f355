package taskstore

import (
	"context"
	"fmt"
	"sync"

	"viammo.app/tripscan/internal/model"
)

// MemoryStore keeps state in process. Only useful when the scan runs in the
// same process that serves it, such as the CLI.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]model.ScanState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]model.ScanState)}
}

func (s *MemoryStore) Put(_ context.Context, state *model.ScanState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touch(state)
	s.states[state.ID] = *state
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*model.ScanState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		return nil, fmt.Errorf("get scan %d: %w", id, ErrNotFound)
	}
	return &state, nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, fn func(*model.ScanState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		return fmt.Errorf("update scan %d: %w", id, ErrNotFound)
	}
	if err := fn(&state); err != nil {
		return err
	}
	s.states[id] = state
	return nil
}
