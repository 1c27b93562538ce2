package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*domain.Run
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[uuid.UUID]*domain.Run),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if the ID exists.
func (s *RunStore) Insert(_ context.Context, r *domain.Run) error {
	if r == nil || r.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *r
	s.data[r.ID] = &cp
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateStatus sets the run's status.
func (s *RunStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	r.Status = status
	return nil
}

// SetStarted marks the run running and records the start time.
func (s *RunStore) SetStarted(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	r.Status = domain.StatusRunning
	r.StartedAt = &at
	return nil
}

// SetFinished records the terminal status and finish time.
func (s *RunStore) SetFinished(_ context.Context, id uuid.UUID, status domain.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	r.Status = status
	r.FinishedAt = &at
	return nil
}

// UpdateProgress sets completed_scenarios to the processed count.
func (s *RunStore) UpdateProgress(_ context.Context, id uuid.UUID, completed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	r.CompletedScenarios = completed
	return nil
}

// Cancel marks the run cancelled. Valid only from pending or running.
func (s *RunStore) Cancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if !r.Status.Cancellable() {
		return storage.ErrInvalidTransition
	}
	r.Status = domain.StatusCancelled
	return nil
}

var _ storage.RunStore = (*RunStore)(nil)
