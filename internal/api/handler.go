// Package api exposes the HTTP surface: run submission, status
// polling, cancellation, result pages and the status websocket.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/grid"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/queue"
	"backtest-lab/internal/storage"
)

const defaultPageSize = 100

// Handler carries the API dependencies.
type Handler struct {
	runs      storage.RunStore
	scenarios storage.ScenarioStore
	results   storage.ResultStore
	queue     queue.Queue
	metrics   *observability.Metrics
	log       *zap.Logger
}

// Options configures a Handler.
type Options struct {
	Runs      storage.RunStore
	Scenarios storage.ScenarioStore
	Results   storage.ResultStore
	Queue     queue.Queue
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		runs:      opts.Runs,
		scenarios: opts.Scenarios,
		results:   opts.Results,
		queue:     opts.Queue,
		metrics:   opts.Metrics,
		log:       opts.Logger,
	}
}

type standardRunRequest struct {
	Scenarios []*domain.StandardParams `json:"scenarios" binding:"required"`
}

type ifvgRunRequest struct {
	Scenarios []*domain.IFVGParams `json:"scenarios" binding:"required"`
}

type scorecardRunRequest struct {
	domain.ScorecardParams
}

type gridRunRequest struct {
	EntryTimeStarts []string  `json:"entry_time_starts" binding:"required"`
	EntryTimeEnds   []string  `json:"entry_time_ends" binding:"required"`
	TradeEndTimes   []string  `json:"trade_end_times" binding:"required"`
	TargetPtsList   []float64 `json:"target_pts_list" binding:"required"`
	StopPtsList     []float64 `json:"stop_pts_list" binding:"required"`
	Directions      []string  `json:"directions"`
	YearStart       int       `json:"year_start" binding:"required"`
	YearEnd         int       `json:"year_end" binding:"required"`

	TrendEnabled   bool   `json:"trend_enabled"`
	TrendTimeframe string `json:"trend_timeframe"`
	TrendPeriod    int    `json:"trend_period"`
	TrendType      string `json:"trend_type"`
	TrendStrict    bool   `json:"trend_strict"`
}

// SubmitStandardRun handles POST /api/backtest/run.
func (h *Handler) SubmitStandardRun(c *gin.Context) {
	var req standardRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	params := make([]domain.ScenarioParams, len(req.Scenarios))
	for i, p := range req.Scenarios {
		params[i] = domain.ScenarioParams{Standard: p}
	}
	h.submitRun(c, domain.StrategyTypeStandard, params)
}

// SubmitIFVGRun handles POST /api/ifvg/run.
func (h *Handler) SubmitIFVGRun(c *gin.Context) {
	var req ifvgRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	params := make([]domain.ScenarioParams, len(req.Scenarios))
	for i, p := range req.Scenarios {
		params[i] = domain.ScenarioParams{IFVG: p}
	}
	h.submitRun(c, domain.StrategyTypeIFVG, params)
}

// SubmitScorecardRun handles POST /api/scorecard/run.
func (h *Handler) SubmitScorecardRun(c *gin.Context) {
	var req scorecardRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := req.ScorecardParams
	h.submitRun(c, domain.StrategyTypeScorecard, []domain.ScenarioParams{{Scorecard: &p}})
}

// SubmitGridRun handles POST /api/backtest/grid: expands the parameter
// grid and submits the result as one standard run.
func (h *Handler) SubmitGridRun(c *gin.Context) {
	var req gridRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	directions := []*domain.Direction{nil}
	if len(req.Directions) > 0 {
		directions = make([]*domain.Direction, len(req.Directions))
		for i, d := range req.Directions {
			if d == "" {
				continue
			}
			dir := domain.Direction(d)
			if !dir.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid direction " + d})
				return
			}
			directions[i] = &dir
		}
	}

	expanded := grid.Expand(grid.Params{
		EntryTimeStarts: req.EntryTimeStarts,
		EntryTimeEnds:   req.EntryTimeEnds,
		TradeEndTimes:   req.TradeEndTimes,
		TargetPtsList:   req.TargetPtsList,
		StopPtsList:     req.StopPtsList,
		Directions:      directions,
		YearStart:       req.YearStart,
		YearEnd:         req.YearEnd,
		TrendEnabled:    req.TrendEnabled,
		TrendTimeframe:  req.TrendTimeframe,
		TrendPeriod:     req.TrendPeriod,
		TrendType:       req.TrendType,
		TrendStrict:     req.TrendStrict,
	}, h.log)
	if len(expanded) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "grid expanded to zero valid scenarios"})
		return
	}

	params := make([]domain.ScenarioParams, len(expanded))
	for i, p := range expanded {
		params[i] = domain.ScenarioParams{Standard: p}
	}
	h.submitRun(c, domain.StrategyTypeStandard, params)
}

// submitRun validates the scenarios, persists the run and enqueues it.
func (h *Handler) submitRun(c *gin.Context, strategyType string, params []domain.ScenarioParams) {
	ctx := c.Request.Context()
	if len(params) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one scenario is required"})
		return
	}

	now := time.Now().UTC()
	runID := uuid.New()
	scenarios := make([]*domain.Scenario, len(params))
	for i, p := range params {
		sc := &domain.Scenario{
			ID:           uuid.New(),
			RunID:        runID,
			StrategyType: strategyType,
			Params:       p,
			Status:       domain.StatusPending,
			CreatedAt:    now,
		}
		sc.ApplyDefaults()
		if err := sc.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":          err.Error(),
				"scenario_index": i,
			})
			return
		}
		scenarios[i] = sc
	}

	run := &domain.Run{
		ID:             runID,
		Status:         domain.StatusPending,
		StrategyType:   strategyType,
		TotalScenarios: len(scenarios),
		CreatedAt:      now,
	}
	if err := h.runs.Insert(ctx, run); err != nil {
		h.fail(c, "insert run", err)
		return
	}
	if err := h.scenarios.InsertBulk(ctx, scenarios); err != nil {
		h.fail(c, "insert scenarios", err)
		return
	}
	if err := h.queue.Enqueue(ctx, runID); err != nil {
		h.fail(c, "enqueue run", err)
		return
	}
	if h.metrics != nil {
		h.metrics.RunsSubmitted.Inc()
	}

	h.log.Info("run submitted",
		zap.String("run_id", runID.String()),
		zap.String("strategy_type", strategyType),
		zap.Int("scenarios", len(scenarios)))
	c.JSON(http.StatusAccepted, gin.H{
		"run_id":          runID,
		"total_scenarios": len(scenarios),
	})
}

// GetRun handles GET /api/runs/:id.
func (h *Handler) GetRun(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}
	run, err := h.runs.GetByID(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		h.fail(c, "load run", err)
		return
	}
	c.JSON(http.StatusOK, runSnapshot(run))
}

// CancelRun handles POST /api/runs/:id/cancel.
func (h *Handler) CancelRun(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.runs.Cancel(ctx, runID); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		case errors.Is(err, storage.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "run is not cancellable"})
		default:
			h.fail(c, "cancel run", err)
		}
		return
	}
	n, err := h.scenarios.CancelPending(ctx, runID)
	if err != nil {
		h.fail(c, "cancel scenarios", err)
		return
	}

	h.log.Info("run cancelled via api",
		zap.String("run_id", runID.String()),
		zap.Int("scenarios_cancelled", n))
	c.JSON(http.StatusOK, gin.H{"status": domain.StatusCancelled, "scenarios_cancelled": n})
}

// GetResults handles GET /api/runs/:id/results with page/page_size
// query parameters.
func (h *Handler) GetResults(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page_size"})
		return
	}

	rows, total, err := h.results.GetByRunID(c.Request.Context(), runID, page, pageSize)
	if err != nil {
		h.fail(c, "load results", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results":   resultRows(rows),
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) runID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	h.log.Error(op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func runSnapshot(run *domain.Run) gin.H {
	return gin.H{
		"run_id":              run.ID,
		"status":              run.Status,
		"strategy_type":       run.StrategyType,
		"total_scenarios":     run.TotalScenarios,
		"completed_scenarios": run.CompletedScenarios,
		"created_at":          run.CreatedAt,
		"started_at":          run.StartedAt,
		"finished_at":         run.FinishedAt,
	}
}

func resultRows(rows []*domain.Result) []gin.H {
	out := make([]gin.H, len(rows))
	for i, r := range rows {
		out[i] = gin.H{
			"id":          r.ID,
			"scenario_id": r.ScenarioID,
			"group_level": r.GroupLevel,
			"grouping":    r.Grouping,
			"totals":      r.Totals,
			"kpis":        r.KPIs,
		}
		if r.Extra != nil {
			out[i]["extra"] = r.Extra
		}
	}
	return out
}
