package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateKey if the ID exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.Run) error {
	if r == nil || r.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO runs (
			id, status, strategy_type, total_scenarios, completed_scenarios,
			created_at, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		r.ID, string(r.Status), r.StrategyType, r.TotalScenarios, r.CompletedScenarios,
		r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, status, strategy_type, total_scenarios, completed_scenarios,
		       created_at, started_at, finished_at
		FROM runs
		WHERE id = $1
	`

	var r domain.Run
	var status string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&r.ID, &status, &r.StrategyType, &r.TotalScenarios, &r.CompletedScenarios,
		&r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	r.Status = domain.Status(status)
	return &r, nil
}

// UpdateStatus sets the run's status.
func (s *RunStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	tag, err := s.pool.Exec(ctx, `UPDATE runs SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetStarted marks the run running and records the start time.
func (s *RunStore) SetStarted(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $2, started_at = $3 WHERE id = $1`,
		id, string(domain.StatusRunning), at,
	)
	if err != nil {
		return fmt.Errorf("set run started: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetFinished records the terminal status and finish time.
func (s *RunStore) SetFinished(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $2, finished_at = $3 WHERE id = $1`,
		id, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("set run finished: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateProgress sets completed_scenarios to the processed count.
func (s *RunStore) UpdateProgress(ctx context.Context, id uuid.UUID, completed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET completed_scenarios = $2 WHERE id = $1`,
		id, completed,
	)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Cancel marks the run cancelled. Valid only from pending or running.
// The status guard lives in the WHERE clause, so a concurrent finish
// and a cancel cannot both win.
func (s *RunStore) Cancel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $2 WHERE id = $1 AND status = ANY($3)`,
		id, string(domain.StatusCancelled),
		[]string{string(domain.StatusPending), string(domain.StatusRunning)},
	)
	if err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return storage.ErrInvalidTransition
	}
	return nil
}
