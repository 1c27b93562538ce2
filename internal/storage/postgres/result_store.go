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

// ResultStore implements storage.ResultStore using PostgreSQL. The
// grouping descriptor, totals, KPIs and extra payload are stored as
// JSONB, which keeps the row shape stable across strategy types.
type ResultStore struct {
	pool *Pool
}

// NewResultStore creates a new ResultStore.
func NewResultStore(pool *Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

// InsertBatch adds a scenario's result rows atomically. Fails the
// entire batch on any duplicate.
func (s *ResultStore) InsertBatch(ctx context.Context, results []*domain.Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO results (id, run_id, scenario_id, group_level, grouping, totals, kpis, extra, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, r := range results {
		if r == nil || r.ID == uuid.Nil {
			return storage.ErrInvalidInput
		}
		grouping, totals, kpis, extra, err := marshalResultPayload(r)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query,
			r.ID, r.RunID, r.ScenarioID, r.GroupLevel, grouping, totals, kpis, extra, r.CreatedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert result in batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByScenarioID retrieves all results for a scenario in insertion
// order.
func (s *ResultStore) GetByScenarioID(ctx context.Context, scenarioID uuid.UUID) ([]*domain.Result, error) {
	query := `
		SELECT id, run_id, scenario_id, group_level, grouping, totals, kpis, extra, created_at
		FROM results
		WHERE scenario_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("get results by scenario id: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// GetByRunID retrieves a page of results for a run in insertion order.
// page is 1-based; the second return is the total row count.
func (s *ResultStore) GetByRunID(ctx context.Context, runID uuid.UUID, page, pageSize int) ([]*domain.Result, int, error) {
	if page < 1 || pageSize < 1 {
		return nil, 0, storage.ErrInvalidInput
	}

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM results WHERE run_id = $1`, runID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count results by run id: %w", err)
	}

	query := `
		SELECT id, run_id, scenario_id, group_level, grouping, totals, kpis, extra, created_at
		FROM results
		WHERE run_id = $1
		ORDER BY seq ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, runID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("get results by run id: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func marshalResultPayload(r *domain.Result) (grouping, totals, kpis, extra []byte, err error) {
	if grouping, err = json.Marshal(r.Grouping); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal result grouping: %w", err)
	}
	if totals, err = json.Marshal(r.Totals); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal result totals: %w", err)
	}
	if kpis, err = json.Marshal(r.KPIs); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal result kpis: %w", err)
	}
	if r.Extra != nil {
		if extra, err = json.Marshal(r.Extra); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal result extra: %w", err)
		}
	}
	return grouping, totals, kpis, extra, nil
}

func scanResults(rows pgx.Rows) ([]*domain.Result, error) {
	var results []*domain.Result
	for rows.Next() {
		var r domain.Result
		var grouping, totals, kpis, extra []byte

		err := rows.Scan(
			&r.ID, &r.RunID, &r.ScenarioID, &r.GroupLevel,
			&grouping, &totals, &kpis, &extra, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		if err := json.Unmarshal(grouping, &r.Grouping); err != nil {
			return nil, fmt.Errorf("unmarshal result grouping: %w", err)
		}
		if err := json.Unmarshal(totals, &r.Totals); err != nil {
			return nil, fmt.Errorf("unmarshal result totals: %w", err)
		}
		if err := json.Unmarshal(kpis, &r.KPIs); err != nil {
			return nil, fmt.Errorf("unmarshal result kpis: %w", err)
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &r.Extra); err != nil {
				return nil, fmt.Errorf("unmarshal result extra: %w", err)
			}
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return results, nil
}
