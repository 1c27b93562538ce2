// Package reporting builds Markdown and CSV summaries of a run's
// result rows.
package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// resultPageSize is the page size used when draining a run's result
// rows from the store.
const resultPageSize = 500

// Generator produces reports from stored runs.
type Generator struct {
	runs      storage.RunStore
	scenarios storage.ScenarioStore
	results   storage.ResultStore
	now       func() time.Time // injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(runs storage.RunStore, scenarios storage.ScenarioStore, results storage.ResultStore) *Generator {
	return &Generator{
		runs:      runs,
		scenarios: scenarios,
		results:   results,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the complete report for a run.
func (g *Generator) Generate(ctx context.Context, runID uuid.UUID) (*Report, error) {
	run, err := g.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	scenarios, err := g.scenarios.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load scenarios: %w", err)
	}
	rows, err := g.drainResults(ctx, runID)
	if err != nil {
		return nil, err
	}

	perScenario := make(map[uuid.UUID]int, len(scenarios))
	var rollup domain.Totals
	resultRows := make([]ResultRow, 0, len(rows))
	for _, r := range rows {
		perScenario[r.ScenarioID]++
		if r.GroupLevel == domain.GroupStrategy {
			rollup.Total += r.Totals.Total
			rollup.Wins += r.Totals.Wins
			rollup.Losses += r.Totals.Losses
			rollup.Timeouts += r.Totals.Timeouts
		}
		resultRows = append(resultRows, ResultRow{
			ScenarioID: r.ScenarioID,
			GroupLevel: r.GroupLevel,
			Grouping:   renderGrouping(r.Grouping),
			Totals:     r.Totals,
			KPIs:       r.KPIs,
		})
	}

	scenarioRows := make([]ScenarioRow, len(scenarios))
	for i, sc := range scenarios {
		scenarioRows[i] = ScenarioRow{
			ScenarioID: sc.ID,
			Status:     sc.Status,
			Error:      sc.Error,
			ResultRows: perScenario[sc.ID],
		}
	}

	var winRate float64
	if rollup.Total > 0 {
		winRate = math.Round(float64(rollup.Wins)/float64(rollup.Total)*100*100) / 100
	}

	return &Report{
		GeneratedAt:        g.now(),
		RunID:              run.ID,
		StrategyType:       run.StrategyType,
		Status:             run.Status,
		TotalScenarios:     run.TotalScenarios,
		CompletedScenarios: run.CompletedScenarios,
		StartedAt:          run.StartedAt,
		FinishedAt:         run.FinishedAt,
		Rollup:             Rollup{Totals: rollup, WinRatePercent: winRate},
		Scenarios:          scenarioRows,
		Results:            resultRows,
	}, nil
}

// drainResults pages through the run's result rows in store order.
func (g *Generator) drainResults(ctx context.Context, runID uuid.UUID) ([]*domain.Result, error) {
	var all []*domain.Result
	for page := 1; ; page++ {
		rows, total, err := g.results.GetByRunID(ctx, runID, page, resultPageSize)
		if err != nil {
			return nil, fmt.Errorf("load results page %d: %w", page, err)
		}
		all = append(all, rows...)
		if len(all) >= total || len(rows) == 0 {
			return all, nil
		}
	}
}

// renderGrouping flattens a grouping map into sorted "key=value" pairs.
// The scenario-wide bucket renders as "-".
func renderGrouping(grouping map[string]string) string {
	if len(grouping) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(grouping))
	for k := range grouping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + grouping[k]
	}
	return strings.Join(pairs, " ")
}
