package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backtest-lab/internal/domain"
)

// CandleStore provides read access to historical OHLC data.
type CandleStore interface {
	// FetchCandles retrieves candles for the given timeframes within
	// [start, end] (inclusive), ordered by timestamp ASC and tagged
	// with their timeframe. An empty result is not an error.
	FetchCandles(ctx context.Context, timeframes []string, start, end time.Time) ([]domain.Candle, error)

	// FetchPathCandles retrieves the 1m forward window for trade
	// simulation: candles strictly after entryTS on the entry's
	// trading day, up to and including the cutoff clock time.
	FetchPathCandles(ctx context.Context, entryTS time.Time, cutoff domain.Clock) ([]domain.Candle, error)
}

// RunStore provides access to runs storage.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, r *domain.Run) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)

	// UpdateStatus sets the run's status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error

	// SetStarted marks the run running and records the start time.
	SetStarted(ctx context.Context, id uuid.UUID, at time.Time) error

	// SetFinished records the terminal status and finish time.
	SetFinished(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) error

	// UpdateProgress sets completed_scenarios to the processed count.
	UpdateProgress(ctx context.Context, id uuid.UUID, completed int) error

	// Cancel marks the run cancelled. Valid only from pending or
	// running; returns ErrInvalidTransition otherwise.
	Cancel(ctx context.Context, id uuid.UUID) error
}

// ScenarioStore provides access to scenarios storage.
type ScenarioStore interface {
	// InsertBulk adds a run's scenarios atomically.
	InsertBulk(ctx context.Context, scenarios []*domain.Scenario) error

	// GetByID retrieves a scenario by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Scenario, error)

	// GetByRunID retrieves all scenarios for a run, ordered by creation.
	GetByRunID(ctx context.Context, runID uuid.UUID) ([]*domain.Scenario, error)

	// UpdateStatus sets a scenario's status and error text. The error
	// text is stored truncated to domain.MaxErrorLen.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, errText string) error

	// CancelPending marks all pending and running scenarios of a run
	// cancelled and returns the number affected.
	CancelPending(ctx context.Context, runID uuid.UUID) (int, error)
}

// ResultStore provides access to results storage. Result rows are
// write-once: created by the runner, never mutated.
type ResultStore interface {
	// InsertBatch adds a scenario's result rows atomically. Fails the
	// entire batch on any duplicate.
	InsertBatch(ctx context.Context, results []*domain.Result) error

	// GetByScenarioID retrieves all results for a scenario.
	GetByScenarioID(ctx context.Context, scenarioID uuid.UUID) ([]*domain.Result, error)

	// GetByRunID retrieves a page of results for a run, ordered by
	// scenario then grouping level. page is 1-based.
	GetByRunID(ctx context.Context, runID uuid.UUID, page, pageSize int) ([]*domain.Result, int, error)
}
