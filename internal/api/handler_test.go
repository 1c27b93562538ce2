package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/queue"
	"backtest-lab/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	runs      *memory.RunStore
	scenarios *memory.ScenarioStore
	results   *memory.ResultStore
	queue     *queue.MemoryQueue
	router    *gin.Engine
}

func newAPIFixture() *apiFixture {
	f := &apiFixture{
		runs:      memory.NewRunStore(),
		scenarios: memory.NewScenarioStore(),
		results:   memory.NewResultStore(),
		queue:     queue.NewMemory(),
	}
	h := NewHandler(Options{
		Runs:      f.runs,
		Scenarios: f.scenarios,
		Results:   f.results,
		Queue:     f.queue,
	})
	f.router = NewRouter(h)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func validStandardScenario() map[string]any {
	return map[string]any{
		"entry_time_start": "09:30:00",
		"entry_time_end":   "10:00:00",
		"trade_end_time":   "16:00:00",
		"target_pts":       30.0,
		"stop_pts":         15.0,
		"year_start":       2022,
		"year_end":         2023,
	}
}

func TestSubmitStandardRun(t *testing.T) {
	f := newAPIFixture()

	w := f.do(t, http.MethodPost, "/api/backtest/run", map[string]any{
		"scenarios": []any{validStandardScenario(), validStandardScenario()},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if got := body["total_scenarios"].(float64); got != 2 {
		t.Fatalf("total_scenarios = %v, want 2", got)
	}

	runID, err := uuid.Parse(body["run_id"].(string))
	if err != nil {
		t.Fatalf("parse run_id: %v", err)
	}
	run, err := f.runs.GetByID(context.Background(), runID)
	if err != nil {
		t.Fatalf("run not persisted: %v", err)
	}
	if run.Status != domain.StatusPending || run.TotalScenarios != 2 {
		t.Fatalf("run = %+v", run)
	}

	scs, err := f.scenarios.GetByRunID(context.Background(), runID)
	if err != nil {
		t.Fatalf("scenarios not persisted: %v", err)
	}
	if len(scs) != 2 {
		t.Fatalf("len(scenarios) = %d, want 2", len(scs))
	}
	// Defaults applied at the boundary.
	if scs[0].Params.Standard.EntryTimeframe != domain.Timeframe5m {
		t.Fatalf("entry_timeframe = %q, want default", scs[0].Params.Standard.EntryTimeframe)
	}

	// The run must have been enqueued.
	got := make(chan uuid.UUID, 1)
	if err := f.queue.Subscribe(func(ctx context.Context, id uuid.UUID) {
		got <- id
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	select {
	case id := <-got:
		if id != runID {
			t.Fatalf("enqueued run %s, want %s", id, runID)
		}
	case <-time.After(time.Second):
		t.Fatal("run was never enqueued")
	}
}

func TestSubmitStandardRunValidation(t *testing.T) {
	bad := validStandardScenario()
	bad["target_pts"] = -5.0

	f := newAPIFixture()
	w := f.do(t, http.MethodPost, "/api/backtest/run", map[string]any{
		"scenarios": []any{validStandardScenario(), bad},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decodeBody(t, w)
	if idx := body["scenario_index"].(float64); idx != 1 {
		t.Fatalf("scenario_index = %v, want 1", idx)
	}
}

func TestSubmitIFVGRun(t *testing.T) {
	f := newAPIFixture()
	w := f.do(t, http.MethodPost, "/api/ifvg/run", map[string]any{
		"scenarios": []any{map[string]any{
			"use_adaptive_rr": true,
			"year_start":      2023,
			"year_end":        2023,
		}},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	runID := uuid.MustParse(decodeBody(t, w)["run_id"].(string))
	scs, err := f.scenarios.GetByRunID(context.Background(), runID)
	if err != nil || len(scs) != 1 {
		t.Fatalf("scenarios = %v, err %v", scs, err)
	}
	p := scs[0].Params.IFVG
	if p == nil || p.WaitCandles != 24 || p.CutoffTime != "16:00:00" {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if scs[0].StrategyType != domain.StrategyTypeIFVG {
		t.Fatalf("strategy_type = %q", scs[0].StrategyType)
	}
}

func TestSubmitScorecardRun(t *testing.T) {
	f := newAPIFixture()
	w := f.do(t, http.MethodPost, "/api/scorecard/run", map[string]any{
		"year_start":    2020,
		"year_end":      2023,
		"calendar_week": 23,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["total_scenarios"].(float64); got != 1 {
		t.Fatalf("total_scenarios = %v, want 1", got)
	}
}

func TestSubmitGridRun(t *testing.T) {
	f := newAPIFixture()
	w := f.do(t, http.MethodPost, "/api/backtest/grid", map[string]any{
		"entry_time_starts": []string{"09:30:00", "10:00:00"},
		"entry_time_ends":   []string{"09:30:00", "10:00:00"},
		"trade_end_times":   []string{"16:00:00"},
		"target_pts_list":   []float64{30, 40},
		"stop_pts_list":     []float64{15, 20},
		"year_start":        2022,
		"year_end":          2023,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	// 2 discrete entry points x 2 paired TP/SL combos.
	if got := decodeBody(t, w)["total_scenarios"].(float64); got != 4 {
		t.Fatalf("total_scenarios = %v, want 4", got)
	}
}

func TestSubmitGridRunEmpty(t *testing.T) {
	f := newAPIFixture()
	w := f.do(t, http.MethodPost, "/api/backtest/grid", map[string]any{
		"entry_time_starts": []string{"10:00:00"},
		"entry_time_ends":   []string{"09:30:00"},
		"trade_end_times":   []string{"16:00:00"},
		"target_pts_list":   []float64{30},
		"stop_pts_list":     []float64{15},
		"year_start":        2022,
		"year_end":          2023,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetRun(t *testing.T) {
	f := newAPIFixture()
	runID := uuid.New()
	if err := f.runs.Insert(context.Background(), &domain.Run{
		ID:             runID,
		Status:         domain.StatusRunning,
		StrategyType:   domain.StrategyTypeStandard,
		TotalScenarios: 5,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodGet, "/api/runs/"+runID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "running" || body["total_scenarios"].(float64) != 5 {
		t.Fatalf("body = %v", body)
	}

	w = f.do(t, http.MethodGet, "/api/runs/"+uuid.New().String(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing run: status = %d, want 404", w.Code)
	}
	w = f.do(t, http.MethodGet, "/api/runs/not-a-uuid", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d, want 400", w.Code)
	}
}

func TestCancelRun(t *testing.T) {
	f := newAPIFixture()
	ctx := context.Background()

	runID := uuid.New()
	if err := f.runs.Insert(ctx, &domain.Run{
		ID: runID, Status: domain.StatusRunning,
		StrategyType: domain.StrategyTypeStandard, TotalScenarios: 1,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	bullish := domain.DirectionBullish
	if err := f.scenarios.InsertBulk(ctx, []*domain.Scenario{{
		ID: uuid.New(), RunID: runID, StrategyType: domain.StrategyTypeStandard,
		Params: domain.ScenarioParams{Standard: &domain.StandardParams{
			EntryTimeStart: "09:30:00", EntryTimeEnd: "10:00:00", TradeEndTime: "16:00:00",
			EntryTimeframe: domain.Timeframe5m, TargetPts: 30, StopPts: 15,
			Direction: &bullish, YearStart: 2023, YearEnd: 2023,
		}},
		Status: domain.StatusPending, CreatedAt: time.Now().UTC(),
	}}); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodPost, fmt.Sprintf("/api/runs/%s/cancel", runID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["scenarios_cancelled"].(float64); got != 1 {
		t.Fatalf("scenarios_cancelled = %v, want 1", got)
	}

	// Second cancel conflicts, missing run is a 404.
	w = f.do(t, http.MethodPost, fmt.Sprintf("/api/runs/%s/cancel", runID), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second cancel: status = %d, want 409", w.Code)
	}
	w = f.do(t, http.MethodPost, fmt.Sprintf("/api/runs/%s/cancel", uuid.New()), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing run: status = %d, want 404", w.Code)
	}
}

func TestGetResultsPagination(t *testing.T) {
	f := newAPIFixture()
	ctx := context.Background()

	runID := uuid.New()
	scenarioID := uuid.New()
	batch := make([]*domain.Result, 3)
	for i := range batch {
		batch[i] = &domain.Result{
			ID:         uuid.New(),
			RunID:      runID,
			ScenarioID: scenarioID,
			GroupLevel: domain.GroupStrategy,
			Grouping:   map[string]string{},
			Totals:     domain.Totals{Total: 10, Wins: 6, Losses: 3, Timeouts: 1},
			KPIs:       domain.KPIs{WinRatePercent: 60},
			CreatedAt:  time.Now().UTC(),
		}
	}
	if err := f.results.InsertBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodGet, fmt.Sprintf("/api/runs/%s/results?page=2&page_size=2", runID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["total"].(float64) != 3 || body["page"].(float64) != 2 {
		t.Fatalf("body = %v", body)
	}
	if rows := body["results"].([]any); len(rows) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(rows))
	}

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/runs/%s/results?page=0", runID), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("page=0: status = %d, want 400", w.Code)
	}
}
