package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ScenarioStore implements storage.ScenarioStore using PostgreSQL.
// Scenario params are stored as JSONB.
type ScenarioStore struct {
	pool *Pool
}

// NewScenarioStore creates a new ScenarioStore.
func NewScenarioStore(pool *Pool) *ScenarioStore {
	return &ScenarioStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScenarioStore = (*ScenarioStore)(nil)

// InsertBulk adds a run's scenarios atomically. Fails entire batch on
// any duplicate.
func (s *ScenarioStore) InsertBulk(ctx context.Context, scenarios []*domain.Scenario) error {
	if len(scenarios) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO scenarios (id, run_id, strategy_type, params, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, sc := range scenarios {
		if sc == nil || sc.ID == uuid.Nil {
			return storage.ErrInvalidInput
		}
		params, err := json.Marshal(sc.Params)
		if err != nil {
			return fmt.Errorf("marshal scenario params: %w", err)
		}
		_, err = tx.Exec(ctx, query,
			sc.ID, sc.RunID, sc.StrategyType, params, string(sc.Status), sc.Error, sc.CreatedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert scenario in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a scenario by its ID. Returns ErrNotFound if not exists.
func (s *ScenarioStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Scenario, error) {
	query := `
		SELECT id, run_id, strategy_type, params, status, error, created_at
		FROM scenarios
		WHERE id = $1
	`

	sc, err := scanScenario(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get scenario by id: %w", err)
	}
	return sc, nil
}

// GetByRunID retrieves all scenarios for a run in insertion order.
func (s *ScenarioStore) GetByRunID(ctx context.Context, runID uuid.UUID) ([]*domain.Scenario, error) {
	query := `
		SELECT id, run_id, strategy_type, params, status, error, created_at
		FROM scenarios
		WHERE run_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get scenarios by run id: %w", err)
	}
	defer rows.Close()

	var scenarios []*domain.Scenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scenario row: %w", err)
		}
		scenarios = append(scenarios, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenario rows: %w", err)
	}
	return scenarios, nil
}

// UpdateStatus sets a scenario's status and error text, truncated to
// domain.MaxErrorLen.
func (s *ScenarioStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, errText string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scenarios SET status = $2, error = $3 WHERE id = $1`,
		id, string(status), domain.TruncateError(errText),
	)
	if err != nil {
		return fmt.Errorf("update scenario status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CancelPending marks all pending and running scenarios of a run
// cancelled and returns the number affected.
func (s *ScenarioStore) CancelPending(ctx context.Context, runID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scenarios SET status = $2 WHERE run_id = $1 AND status = ANY($3)`,
		runID, string(domain.StatusCancelled),
		[]string{string(domain.StatusPending), string(domain.StatusRunning)},
	)
	if err != nil {
		return 0, fmt.Errorf("cancel pending scenarios: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// scanScenario scans a single row into a Scenario.
func scanScenario(row pgx.Row) (*domain.Scenario, error) {
	var sc domain.Scenario
	var status string
	var params []byte

	err := row.Scan(&sc.ID, &sc.RunID, &sc.StrategyType, &params, &status, &sc.Error, &sc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &sc.Params); err != nil {
		return nil, fmt.Errorf("unmarshal scenario params: %w", err)
	}
	sc.Status = domain.Status(status)
	return &sc, nil
}
