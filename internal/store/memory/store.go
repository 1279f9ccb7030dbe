// Package memory provides an in-memory ArticleStore for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/briefdesk/harvester/internal/store"
)

// Store keeps runs in memory keyed by run ID.
type Store struct {
	mu   sync.RWMutex
	runs map[string]store.RunRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{runs: make(map[string]store.RunRecord)}
}

// StoreRun records one run. Re-storing an existing run ID is an error.
func (s *Store) StoreRun(_ context.Context, run store.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %q already stored", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// Run returns a stored run by ID.
func (s *Store) Run(id string) (store.RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// Len reports how many runs are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Close implements store.ArticleStore.
func (s *Store) Close() {}
