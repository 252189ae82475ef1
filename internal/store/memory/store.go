// Package memory implements the observation store as an in-process map.
// It backs unit tests and local runs that should not touch disk.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/couchcryptid/fluview-etl/internal/domain"
)

// Store keeps observations in a map keyed by source_id, giving the same
// upsert semantics as the SQL backends.
type Store struct {
	mu   sync.RWMutex
	rows map[string]domain.Observation
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{rows: make(map[string]domain.Observation)}
}

// Save upserts each observation by source_id. It never fails, so the
// returned count always equals len(obs).
func (s *Store) Save(_ context.Context, obs []domain.Observation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range obs {
		s.rows[o.SourceID] = o
	}
	return len(obs), nil
}

// ReadAll returns every stored observation ordered by source_id so repeated
// reads are deterministic.
func (s *Store) ReadAll(_ context.Context) ([]domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Observation, 0, len(s.rows))
	for _, o := range s.rows {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
