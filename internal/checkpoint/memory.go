package checkpoint

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps checkpoints in process memory. It is the default when
// no Redis is configured: restarts lose state, which matches a host that
// never intended to persist matches.
type MemoryStore struct {
	mu  sync.Mutex
	cps map[uuid.UUID]Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cps: make(map[uuid.UUID]Checkpoint)}
}

func (s *MemoryStore) Save(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cps[cp.Match.ID] = cp
	return nil
}

func (s *MemoryStore) Load(_ context.Context, matchID uuid.UUID) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.cps[matchID]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, matchID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cps, matchID)
	return nil
}
