package postgres_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
	"backtest-lab/internal/storage/postgres"
)

func insertTestRun(t *testing.T, runs *postgres.RunStore, total int) uuid.UUID {
	t.Helper()
	runID := uuid.New()
	err := runs.Insert(context.Background(), &domain.Run{
		ID:             runID,
		Status:         domain.StatusPending,
		StrategyType:   domain.StrategyTypeStandard,
		TotalScenarios: total,
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	return runID
}

func TestRunStoreLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	runs := postgres.NewRunStore(pool)
	runID := insertTestRun(t, runs, 3)

	// Duplicate insert.
	err := runs.Insert(ctx, &domain.Run{ID: runID, Status: domain.StatusPending, StrategyType: domain.StrategyTypeStandard})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Missing run.
	_, err = runs.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	started := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, runs.SetStarted(ctx, runID, started))
	require.NoError(t, runs.UpdateProgress(ctx, runID, 2))

	got, err := runs.GetByID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, got.Status)
	assert.Equal(t, 2, got.CompletedScenarios)
	require.NotNil(t, got.StartedAt)
	assert.WithinDuration(t, started, *got.StartedAt, time.Second)

	finished := time.Now().UTC()
	require.NoError(t, runs.SetFinished(ctx, runID, domain.StatusCompleted, finished))
	got, err = runs.GetByID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)

	// Cancel after completion is an invalid transition.
	assert.ErrorIs(t, runs.Cancel(ctx, runID), storage.ErrInvalidTransition)
	assert.ErrorIs(t, runs.Cancel(ctx, uuid.New()), storage.ErrNotFound)
}

func TestRunStoreCancel(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	runs := postgres.NewRunStore(pool)
	runID := insertTestRun(t, runs, 1)

	require.NoError(t, runs.Cancel(ctx, runID))
	got, err := runs.GetByID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestScenarioStoreRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	runs := postgres.NewRunStore(pool)
	scenarios := postgres.NewScenarioStore(pool)
	runID := insertTestRun(t, runs, 2)

	bullish := domain.DirectionBullish
	first := &domain.Scenario{
		ID:           uuid.New(),
		RunID:        runID,
		StrategyType: domain.StrategyTypeStandard,
		Params: domain.ScenarioParams{Standard: &domain.StandardParams{
			EntryTimeStart: "09:30:00",
			EntryTimeEnd:   "10:00:00",
			TradeEndTime:   "16:00:00",
			EntryTimeframe: domain.Timeframe5m,
			TargetPts:      30,
			StopPts:        15,
			Direction:      &bullish,
			YearStart:      2022,
			YearEnd:        2023,
		}},
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	second := &domain.Scenario{
		ID:           uuid.New(),
		RunID:        runID,
		StrategyType: domain.StrategyTypeIFVG,
		Params: domain.ScenarioParams{IFVG: &domain.IFVGParams{
			FVGTimeframe:   domain.Timeframe5m,
			EntryTimeframe: domain.Timeframe1m,
			WaitCandles:    24,
			TargetPts:      ptr(40.0),
			StopPts:        ptr(20.0),
			CutoffTime:     "16:00:00",
			YearStart:      ptr(2023),
			YearEnd:        ptr(2023),
		}},
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	require.NoError(t, scenarios.InsertBulk(ctx, []*domain.Scenario{first, second}))

	// Params survive the JSONB round trip.
	got, err := scenarios.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Params.Standard)
	assert.Equal(t, *first.Params.Standard, *got.Params.Standard)
	assert.Nil(t, got.Params.IFVG)

	byRun, err := scenarios.GetByRunID(ctx, runID)
	require.NoError(t, err)
	require.Len(t, byRun, 2)
	assert.Equal(t, first.ID, byRun[0].ID, "insertion order must be preserved")
	assert.Equal(t, second.ID, byRun[1].ID)
	require.NotNil(t, byRun[1].Params.IFVG)
	assert.Equal(t, 40.0, *byRun[1].Params.IFVG.TargetPts)

	// Duplicate in a later batch fails the whole batch.
	err = scenarios.InsertBulk(ctx, []*domain.Scenario{{
		ID: first.ID, RunID: runID, StrategyType: domain.StrategyTypeStandard,
		Params: first.Params, Status: domain.StatusPending, CreatedAt: time.Now().UTC(),
	}})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestScenarioStoreStatusAndCancel(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	runs := postgres.NewRunStore(pool)
	scenarios := postgres.NewScenarioStore(pool)
	runID := insertTestRun(t, runs, 3)

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	batch := make([]*domain.Scenario, len(ids))
	for i, id := range ids {
		batch[i] = &domain.Scenario{
			ID: id, RunID: runID, StrategyType: domain.StrategyTypeScorecard,
			Params:    domain.ScenarioParams{Scorecard: &domain.ScorecardParams{YearStart: 2020, YearEnd: 2023, CalendarWeek: 23}},
			Status:    domain.StatusPending,
			CreatedAt: time.Now().UTC(),
		}
	}
	require.NoError(t, scenarios.InsertBulk(ctx, batch))

	// Error text is truncated at the store boundary.
	long := strings.Repeat("x", 2*domain.MaxErrorLen)
	require.NoError(t, scenarios.UpdateStatus(ctx, ids[0], domain.StatusFailed, long))
	got, err := scenarios.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Len(t, got.Error, domain.MaxErrorLen)

	require.NoError(t, scenarios.UpdateStatus(ctx, ids[1], domain.StatusRunning, ""))

	// Only pending and running scenarios are cancellable.
	n, err := scenarios.CancelPending(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err = scenarios.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status, "failed scenario must stay failed")
	got, err = scenarios.GetByID(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestResultStorePagination(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	runs := postgres.NewRunStore(pool)
	scenarios := postgres.NewScenarioStore(pool)
	results := postgres.NewResultStore(pool)

	runID := insertTestRun(t, runs, 1)
	scenarioID := uuid.New()
	require.NoError(t, scenarios.InsertBulk(ctx, []*domain.Scenario{{
		ID: scenarioID, RunID: runID, StrategyType: domain.StrategyTypeStandard,
		Params: domain.ScenarioParams{Standard: &domain.StandardParams{
			EntryTimeStart: "09:30:00", EntryTimeEnd: "10:00:00", TradeEndTime: "16:00:00",
			EntryTimeframe: domain.Timeframe5m, TargetPts: 30, StopPts: 15,
			YearStart: 2023, YearEnd: 2023,
		}},
		Status: domain.StatusPending, CreatedAt: time.Now().UTC(),
	}}))

	batch := make([]*domain.Result, 5)
	for i := range batch {
		batch[i] = &domain.Result{
			ID:         uuid.New(),
			RunID:      runID,
			ScenarioID: scenarioID,
			GroupLevel: domain.GroupYear,
			Grouping:   map[string]string{"year": "2023"},
			Totals:     domain.Totals{Total: i + 1, Wins: i},
			KPIs: domain.KPIs{
				WinRatePercent: 50,
				RRatio:         2,
				ProfitFactor:   domain.ProfitFactor{NoLosses: true, HadWins: true},
			},
			CreatedAt: time.Now().UTC(),
		}
	}
	require.NoError(t, results.InsertBatch(ctx, batch))

	page1, total, err := results.GetByRunID(ctx, runID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, batch[0].ID, page1[0].ID)

	page3, total, err := results.GetByRunID(ctx, runID, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page3, 1)
	assert.Equal(t, batch[4].ID, page3[0].ID)

	// A page past the end is empty, not an error.
	pastEnd, total, err := results.GetByRunID(ctx, runID, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, pastEnd)

	_, _, err = results.GetByRunID(ctx, runID, 0, 2)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// The undefined profit factor survives the JSONB round trip as null.
	byScenario, err := results.GetByScenarioID(ctx, scenarioID)
	require.NoError(t, err)
	require.Len(t, byScenario, 5)
	assert.True(t, byScenario[0].KPIs.ProfitFactor.NoLosses)
	assert.Equal(t, map[string]string{"year": "2023"}, byScenario[0].Grouping)
}
