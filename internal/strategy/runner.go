// Package strategy contains the scenario runners and the router that
// dispatches a scenario to one of them by its strategy type tag.
package strategy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// Grouping types accepted by the runners. The standard runner honors
// all four; the other runners choose their grouping internally and
// treat every requested type as hierarchical.
const (
	GroupingHierarchical = "hierarchical"
	GroupingByYear       = "by_year"
	GroupingByDow        = "by_dow"
	GroupingByCandle     = "by_candle"
)

// Runner executes one validated scenario and returns its result rows.
// A runner returning no rows with a nil error means the strategy found
// nothing in the data, which is a successful outcome.
type Runner interface {
	Run(ctx context.Context, sc *domain.Scenario, grouping string) ([]*domain.Result, error)
}

// Router selects the runner for a scenario's strategy type.
type Router struct {
	candles storage.CandleStore
	loc     *time.Location
	log     *zap.Logger
}

// NewRouter creates a router over the given candle store. loc is the
// trading venue's timezone used to anchor clock times.
func NewRouter(candles storage.CandleStore, loc *time.Location, log *zap.Logger) *Router {
	if loc == nil {
		loc = time.UTC
	}
	return &Router{candles: candles, loc: loc, log: log}
}

// ForScenario returns the runner matching the scenario's strategy
// type. An empty tag means standard; an unknown tag is an input error
// that must fail the scenario, never a silent default.
func (r *Router) ForScenario(sc *domain.Scenario) (Runner, error) {
	tag := sc.StrategyType
	if tag == "" {
		tag = domain.StrategyTypeStandard
	}
	switch tag {
	case domain.StrategyTypeStandard:
		return &StandardRunner{candles: r.candles, loc: r.loc, log: r.log}, nil
	case domain.StrategyTypeIFVG:
		return &IFVGRunner{candles: r.candles, loc: r.loc, log: r.log}, nil
	case domain.StrategyTypeScorecard:
		return &ScorecardRunner{candles: r.candles, loc: r.loc, log: r.log}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategyType, tag)
	}
}
