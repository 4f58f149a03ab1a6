package history

import (
	"context"
	"sync"

	"github.com/shuakami/napcat-qce-go/pkg/batch"
)

// MemoryStore provides in-memory history storage operations
type MemoryStore struct {
	records []batch.Record
	runs    []string // run ids in first-seen order
	seen    map[string]bool
	mu      sync.RWMutex
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory history store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]bool)}
}

// Close is a no-op for in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// Record persists one finished batch item
func (s *MemoryStore) Record(ctx context.Context, rec batch.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if !s.seen[rec.RunID] {
		s.seen[rec.RunID] = true
		s.runs = append(s.runs, rec.RunID)
	}
	return nil
}

// ListRuns returns the ids of known runs, newest first
func (s *MemoryStore) ListRuns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]string, len(s.runs))
	for i, id := range s.runs {
		runs[len(s.runs)-1-i] = id
	}
	return runs, nil
}

// ListByRun returns all records of one run in insertion order
func (s *MemoryStore) ListByRun(ctx context.Context, runID string) ([]batch.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []batch.Record
	for _, rec := range s.records {
		if rec.RunID == runID {
			result = append(result, rec)
		}
	}
	return result, nil
}

// Recent returns the newest records across all runs, up to limit
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]batch.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}

	result := make([]batch.Record, limit)
	for i := 0; i < limit; i++ {
		result[i] = s.records[len(s.records)-1-i]
	}
	return result, nil
}
