package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/kpi"
	"backtest-lab/internal/lookup"
	"backtest-lab/internal/signal"
	"backtest-lab/internal/simulate"
	"backtest-lab/internal/storage"
)

// StandardRunner executes the time/price-window strategy: every
// entry-timeframe candle inside the configured entry window opens a
// trade at its open price, resolved against fixed stop and target
// distances over the rest of the trading day. Trades are derived in
// core from raw candles; the store only serves ordered OHLC rows.
type StandardRunner struct {
	candles storage.CandleStore
	loc     *time.Location
	log     *zap.Logger
}

// Run produces result rows for the requested grouping type.
func (r *StandardRunner) Run(ctx context.Context, sc *domain.Scenario, grouping string) ([]*domain.Result, error) {
	p := sc.Params.Standard
	trades, err := r.Trades(ctx, sc)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, nil
	}
	return r.aggregate(sc, trades, grouping, p.TargetPts, p.StopPts)
}

// Trades derives the scenario's trades from raw candles. No candles in
// the requested range yields no trades, not an error.
func (r *StandardRunner) Trades(ctx context.Context, sc *domain.Scenario) ([]domain.Trade, error) {
	p := sc.Params.Standard

	entryStart, _ := domain.ParseClock(p.EntryTimeStart)
	entryEnd, _ := domain.ParseClock(p.EntryTimeEnd)
	tradeEnd, _ := domain.ParseClock(p.TradeEndTime)

	start := time.Date(p.YearStart, 1, 1, 0, 0, 0, 0, r.loc)
	end := time.Date(p.YearEnd, 12, 31, 23, 59, 59, 0, r.loc)

	timeframes := []string{p.EntryTimeframe}
	if p.TrendEnabled && p.TrendTimeframe != p.EntryTimeframe {
		timeframes = append(timeframes, p.TrendTimeframe)
	}

	candles, err := r.candles.FetchCandles(ctx, timeframes, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}

	entryCandles := domain.FilterTimeframe(candles, p.EntryTimeframe)
	var trendCandles []domain.Candle
	if p.TrendEnabled {
		trendCandles = domain.FilterTimeframe(candles, p.TrendTimeframe)
	}

	var trades []domain.Trade
	for _, day := range lookup.SplitByDay(entryCandles) {
		dayEnd := tradeEnd.OnDate(day[0].Timestamp, day[0].Timestamp.Location())
		for _, c := range day {
			clock := domain.ClockOf(c.Timestamp)
			if clock < entryStart || clock > entryEnd {
				continue
			}

			dir, ok := r.tradeDirection(p, c)
			if !ok {
				continue
			}
			if p.TrendEnabled && !r.trendAllows(trendCandles, p, c.Timestamp, dir) {
				continue
			}

			levels := signal.RiskReward(
				domain.Inversion{Direction: dir},
				c.Open,
				signal.RiskRewardParams{TargetPts: p.TargetPts, StopPts: p.StopPts},
			)
			path := lookup.Between(c.Timestamp, dayEnd, day)
			trades = append(trades, simulate.Resolve(simulate.Setup{
				EntryTime:   c.Timestamp,
				Direction:   dir,
				EntryPrice:  c.Open,
				StopPrice:   levels.StopPrice,
				TargetPrice: levels.TargetPrice,
				StopPts:     levels.StopPts,
				TargetPts:   levels.TargetPts,
			}, path))
		}
	}
	return trades, nil
}

// tradeDirection resolves the trade direction for an entry candle.
// With no configured direction the candle's body decides; a flat body
// gives no direction and the entry is skipped.
func (r *StandardRunner) tradeDirection(p *domain.StandardParams, c domain.Candle) (domain.Direction, bool) {
	if p.Direction != nil {
		return *p.Direction, true
	}
	switch {
	case c.Bullish():
		return domain.DirectionBullish, true
	case c.Bearish():
		return domain.DirectionBearish, true
	default:
		return "", false
	}
}

// trendAllows applies the moving-average filter. Entries against the
// prevailing trend are skipped; strict mode additionally skips entries
// when the trend series is too short to evaluate.
func (r *StandardRunner) trendAllows(trendCandles []domain.Candle, p *domain.StandardParams, at time.Time, dir domain.Direction) bool {
	history := lookup.UpTo(at, trendCandles)
	trend, ok := signal.TrendAt(history, p.TrendPeriod, p.TrendType)
	if !ok {
		return !p.TrendStrict
	}
	return trend == dir
}

func (r *StandardRunner) aggregate(sc *domain.Scenario, trades []domain.Trade, grouping string, targetPts, stopPts float64) ([]*domain.Result, error) {
	switch grouping {
	case "", GroupingHierarchical:
		return r.hierarchical(sc, trades, targetPts, stopPts), nil
	case GroupingByYear:
		return fixedKPIs(sc, domain.GroupYear, "year", kpi.GroupBy(trades, yearOf), targetPts, stopPts, nil), nil
	case GroupingByDow:
		return fixedKPIs(sc, domain.GroupDow, "dow", kpi.GroupBy(trades, dowOf), targetPts, stopPts, nil), nil
	case GroupingByCandle:
		byClock := kpi.GroupBy(trades, func(tr domain.Trade) string {
			return domain.ClockOf(tr.EntryTime).String()
		})
		return fixedKPIs(sc, domain.GroupCandleTime, "candle_time", byClock, targetPts, stopPts, nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGrouping, grouping)
	}
}

// hierarchical emits the full breakdown: scenario-wide totals, then
// per-year, per-year-per-dow and per-year-per-direction rows.
func (r *StandardRunner) hierarchical(sc *domain.Scenario, trades []domain.Trade, targetPts, stopPts float64) []*domain.Result {
	totals := kpi.TotalsOf(trades)
	out := []*domain.Result{
		newResult(sc, domain.GroupStrategy, map[string]string{}, totals, kpi.Calculate(totals, targetPts, stopPts)),
	}
	out = append(out, fixedKPIs(sc, domain.GroupYear, "year", kpi.GroupBy(trades, yearOf), targetPts, stopPts, nil)...)

	for _, level := range []struct {
		name   string
		key    string
		second func(domain.Trade) string
	}{
		{domain.GroupYearDow, "dow", dowOf},
		{domain.GroupYearDirection, "direction", directionOf},
	} {
		nested := subGroup(trades, yearOf, level.second)
		years := make([]string, 0, len(nested))
		for y := range nested {
			years = append(years, y)
		}
		sort.Strings(years)
		for _, y := range years {
			out = append(out, fixedKPIs(sc, level.name, level.key, nested[y], targetPts, stopPts, map[string]string{"year": y})...)
		}
	}
	return out
}
