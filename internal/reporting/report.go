package reporting

import (
	"time"

	"github.com/google/uuid"

	"backtest-lab/internal/domain"
)

// Report is the renderable snapshot of one finished (or in-flight) run:
// run metadata, a roll-up of all scenario-level totals, per-scenario
// outcomes and the flattened result rows.
type Report struct {
	GeneratedAt time.Time

	RunID              uuid.UUID
	StrategyType       string
	Status             domain.Status
	TotalScenarios     int
	CompletedScenarios int
	StartedAt          *time.Time
	FinishedAt         *time.Time

	Rollup    Rollup
	Scenarios []ScenarioRow
	Results   []ResultRow
}

// Rollup sums the scenario-level totals across the whole run. Only
// strategy-level rows contribute, so breakdown rows do not double
// count.
type Rollup struct {
	Totals         domain.Totals
	WinRatePercent float64
}

// ScenarioRow summarizes one scenario's outcome.
type ScenarioRow struct {
	ScenarioID uuid.UUID
	Status     domain.Status
	Error      string
	ResultRows int
}

// ResultRow is one flattened result row. Grouping is rendered as
// sorted "key=value" pairs for stable output.
type ResultRow struct {
	ScenarioID uuid.UUID
	GroupLevel string
	Grouping   string
	Totals     domain.Totals
	KPIs       domain.KPIs
}
