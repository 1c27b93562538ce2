package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ScenarioStore is an in-memory implementation of storage.ScenarioStore.
type ScenarioStore struct {
	mu    sync.RWMutex
	data  map[uuid.UUID]*domain.Scenario
	order map[uuid.UUID]int // insertion order for stable GetByRunID
	next  int
}

// NewScenarioStore creates a new in-memory scenario store.
func NewScenarioStore() *ScenarioStore {
	return &ScenarioStore{
		data:  make(map[uuid.UUID]*domain.Scenario),
		order: make(map[uuid.UUID]int),
	}
}

// InsertBulk adds a run's scenarios atomically. Fails entire batch on
// any duplicate.
func (s *ScenarioStore) InsertBulk(_ context.Context, scenarios []*domain.Scenario) error {
	if len(scenarios) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[uuid.UUID]struct{}, len(scenarios))
	for _, sc := range scenarios {
		if sc == nil || sc.ID == uuid.Nil {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[sc.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[sc.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[sc.ID] = struct{}{}
	}

	for _, sc := range scenarios {
		cp := *sc
		s.data[sc.ID] = &cp
		s.order[sc.ID] = s.next
		s.next++
	}
	return nil
}

// GetByID retrieves a scenario by its ID. Returns ErrNotFound if not exists.
func (s *ScenarioStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

// GetByRunID retrieves all scenarios for a run in insertion order.
func (s *ScenarioStore) GetByRunID(_ context.Context, runID uuid.UUID) ([]*domain.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Scenario
	for _, sc := range s.data {
		if sc.RunID == runID {
			cp := *sc
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return s.order[result[i].ID] < s.order[result[j].ID]
	})
	return result, nil
}

// UpdateStatus sets a scenario's status and error text.
func (s *ScenarioStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.Status, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	sc.Status = status
	sc.Error = domain.TruncateError(errText)
	return nil
}

// CancelPending marks all pending and running scenarios of a run
// cancelled and returns the number affected.
func (s *ScenarioStore) CancelPending(_ context.Context, runID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sc := range s.data {
		if sc.RunID == runID && sc.Status.Cancellable() {
			sc.Status = domain.StatusCancelled
			n++
		}
	}
	return n, nil
}

var _ storage.ScenarioStore = (*ScenarioStore)(nil)
