package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ResultStore is an in-memory implementation of storage.ResultStore.
type ResultStore struct {
	mu    sync.RWMutex
	data  map[uuid.UUID]*domain.Result
	order map[uuid.UUID]int
	next  int
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		data:  make(map[uuid.UUID]*domain.Result),
		order: make(map[uuid.UUID]int),
	}
}

// InsertBatch adds a scenario's result rows atomically. Fails the
// entire batch on any duplicate.
func (s *ResultStore) InsertBatch(_ context.Context, results []*domain.Result) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[uuid.UUID]struct{}, len(results))
	for _, r := range results {
		if r == nil || r.ID == uuid.Nil {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.ID] = struct{}{}
	}

	for _, r := range results {
		cp := *r
		s.data[r.ID] = &cp
		s.order[r.ID] = s.next
		s.next++
	}
	return nil
}

// GetByScenarioID retrieves all results for a scenario in insertion
// order.
func (s *ResultStore) GetByScenarioID(_ context.Context, scenarioID uuid.UUID) ([]*domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Result
	for _, r := range s.data {
		if r.ScenarioID == scenarioID {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return s.order[result[i].ID] < s.order[result[j].ID]
	})
	return result, nil
}

// GetByRunID retrieves a page of results for a run in insertion order.
// page is 1-based; the second return is the total row count.
func (s *ResultStore) GetByRunID(_ context.Context, runID uuid.UUID, page, pageSize int) ([]*domain.Result, int, error) {
	if page < 1 || pageSize < 1 {
		return nil, 0, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*domain.Result
	for _, r := range s.data {
		if r.RunID == runID {
			cp := *r
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return s.order[all[i].ID] < s.order[all[j].ID]
	})

	total := len(all)
	lo := (page - 1) * pageSize
	if lo >= total {
		return nil, total, nil
	}
	hi := lo + pageSize
	if hi > total {
		hi = total
	}
	return all[lo:hi], total, nil
}

var _ storage.ResultStore = (*ResultStore)(nil)
