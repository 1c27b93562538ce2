package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Grouping level constants. Each result row belongs to exactly one
// level; the strategy runners decide which levels a scenario produces.
const (
	GroupStrategy      = "strategy"
	GroupYear          = "year"
	GroupYearDow       = "year_dow"
	GroupYearDirection = "year_direction"
	GroupYearMonth     = "year_month"
	GroupDirection     = "direction"
	GroupDow           = "dow"
	GroupCandleTime    = "candle_time"
	GroupWeek          = "week"
)

// Totals counts trade outcomes within a grouping bucket.
// Total = Wins + Losses + Timeouts.
type Totals struct {
	Total    int `json:"total_trades"`
	Wins     int `json:"wins"`
	Losses   int `json:"losses"`
	Timeouts int `json:"timeouts"`
}

// KPIs are the derived performance figures for one bucket. The
// inversion strategy additionally fills the Avg* fields; they stay
// absent from JSON for other strategies.
type KPIs struct {
	WinRatePercent float64      `json:"win_rate_percent"`
	RRatio         float64      `json:"r_ratio"`
	ExpectancyR    float64      `json:"expectancy_r"`
	ProfitFactor   ProfitFactor `json:"profit_factor"`

	AvgFVGSize *float64 `json:"avg_fvg_size,omitempty"`
	AvgTPPts   *float64 `json:"avg_tp_pts,omitempty"`
	AvgSLPts   *float64 `json:"avg_sl_pts,omitempty"`
}

// ProfitFactor is gross wins over gross losses. A bucket without
// losses has no meaningful ratio, so the value serializes as null
// rather than an infinity; NoLosses and HadWins keep the distinction
// between "no losses, some wins" and "no trades resolved at all"
// available to callers.
type ProfitFactor struct {
	Value    float64
	NoLosses bool
	HadWins  bool
}

var nullLiteral = []byte("null")

// MarshalJSON emits the ratio as a JSON number, or null when the
// bucket had no losses.
func (p ProfitFactor) MarshalJSON() ([]byte, error) {
	if p.NoLosses {
		return nullLiteral, nil
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON accepts a number or null.
func (p *ProfitFactor) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), nullLiteral) {
		*p = ProfitFactor{NoLosses: true}
		return nil
	}
	return json.Unmarshal(data, &p.Value)
}

// Result is one aggregated row produced by a scenario: the outcome
// totals and KPIs for one grouping bucket. Grouping carries the bucket
// key as string pairs, e.g. {"year": "2023", "dow": "Tuesday"}; an
// empty map means the scenario-wide bucket.
type Result struct {
	ID         uuid.UUID
	RunID      uuid.UUID
	ScenarioID uuid.UUID
	GroupLevel string
	Grouping   map[string]string
	Totals     Totals
	KPIs       KPIs

	// Extra holds strategy-specific payloads that do not fit the KPI
	// shape, such as the scorecard's descriptive statistics.
	Extra map[string]any `json:"extra,omitempty"`

	CreatedAt time.Time
}
