package state

import (
	"context"
	"sync"

	"github.com/mhollis/netatmo-publisher/internal/models"
)

// ConnectionKey is the aggregate connectivity indicator, written once per run
// independently of per-station detail.
const ConnectionKey = "info.connection"

// Store is the durable key/value state the host exposes. Keys follow the
// deterministic scheme stationName.measurementName.
type Store interface {
	Read(ctx context.Context, key string) (models.PublishedState, bool, error)
	Write(ctx context.Context, key string, st models.PublishedState) error
	Close() error
}

// MemoryStore implements Store with a mutex-guarded map. Entries live for the
// process lifetime; deletion/retention is a host concern.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]models.PublishedState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]models.PublishedState)}
}

// Read returns the last state for key, if any.
func (s *MemoryStore) Read(ctx context.Context, key string) (models.PublishedState, bool, error) {
	if ctx.Err() != nil {
		return models.PublishedState{}, false, ctx.Err()
	}
	s.mu.RLock()
	st, ok := s.data[key]
	s.mu.RUnlock()
	return st, ok, nil
}

// Write stores the state for key, replacing any previous value.
func (s *MemoryStore) Write(ctx context.Context, key string, st models.PublishedState) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	s.data[key] = st
	s.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
