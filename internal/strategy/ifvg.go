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

// shortRangeDays is the span under which per-year groupings would
// collapse into a single bucket; such ranges group by month and
// direction instead.
const shortRangeDays = 30

// IFVGRunner executes the fair-value-gap inversion strategy: detect
// gaps on the FVG timeframe, find their inversions inside the wait
// window, enter on the next entry-timeframe candle and simulate each
// trade to the session cutoff. Each entry costs one path-candle round
// trip against the store.
type IFVGRunner struct {
	candles storage.CandleStore
	loc     *time.Location
	log     *zap.Logger
}

// Run produces result rows. The grouping argument is accepted for the
// runner contract; this runner picks its grouping levels from the date
// range span.
func (r *IFVGRunner) Run(ctx context.Context, sc *domain.Scenario, _ string) ([]*domain.Result, error) {
	p := sc.Params.IFVG
	trades, err := r.Trades(ctx, sc)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, nil
	}

	_, _, longRange, err := r.dateRange(p)
	if err != nil {
		return nil, err
	}

	totals, k := kpi.FromTrades(trades)
	out := []*domain.Result{newResult(sc, domain.GroupStrategy, map[string]string{}, totals, k)}

	if longRange {
		out = append(out, measuredKPIs(sc, domain.GroupYear, "year", kpi.GroupBy(trades, yearOf), nil)...)
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
				out = append(out, measuredKPIs(sc, level.name, level.key, nested[y], map[string]string{"year": y})...)
			}
		}
		return out, nil
	}

	// Short ranges: per-year buckets would be degenerate. Group by
	// direction, and by month only when the trades span more than one.
	// Month rows carry year and month as separate grouping keys.
	out = append(out, measuredKPIs(sc, domain.GroupDirection, "direction", kpi.GroupBy(trades, directionOf), nil)...)
	if len(kpi.GroupBy(trades, yearMonthOf)) > 1 {
		nested := subGroup(trades, yearOf, monthOf)
		years := make([]string, 0, len(nested))
		for y := range nested {
			years = append(years, y)
		}
		sort.Strings(years)
		for _, y := range years {
			out = append(out, measuredKPIs(sc, domain.GroupYearMonth, "month", nested[y], map[string]string{"year": y})...)
		}
	}
	return out, nil
}

// Trades runs detection and simulation and returns the trade-level
// rows. Exposed for the CLI's verbose output. Missing candle data at
// any stage yields fewer (or zero) trades, never an error.
func (r *IFVGRunner) Trades(ctx context.Context, sc *domain.Scenario) ([]domain.Trade, error) {
	p := sc.Params.IFVG

	start, end, _, err := r.dateRange(p)
	if err != nil {
		return nil, err
	}
	cutoff, _ := domain.ParseClock(p.CutoffTime)

	timeframes := []string{p.FVGTimeframe}
	if p.EntryTimeframe != p.FVGTimeframe {
		timeframes = append(timeframes, p.EntryTimeframe)
	}
	if p.LiquidityEnabled && p.LiquidityTimeframe != p.FVGTimeframe && p.LiquidityTimeframe != p.EntryTimeframe {
		timeframes = append(timeframes, p.LiquidityTimeframe)
	}

	candles, err := r.candles.FetchCandles(ctx, timeframes, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}

	fvgCandles := domain.FilterTimeframe(candles, p.FVGTimeframe)
	entryCandles := domain.FilterTimeframe(candles, p.EntryTimeframe)

	gaps := signal.DetectGaps(fvgCandles)
	if p.LiquidityEnabled {
		gaps = r.filterByLiquidity(gaps, domain.FilterTimeframe(candles, p.LiquidityTimeframe), p)
	}

	inversions := signal.DetectInversions(fvgCandles, gaps, p.WaitCandles, domain.TimeframeMinutes(p.FVGTimeframe))

	// Each time-of-day bound applies on its own: a lone time_start
	// still skips earlier entries, a lone time_end later ones.
	var timeStart, timeEnd domain.Clock
	hasStart := p.TimeStart != ""
	hasEnd := p.TimeEnd != ""
	if hasStart {
		timeStart, _ = domain.ParseClock(p.TimeStart)
	}
	if hasEnd {
		timeEnd, _ = domain.ParseClock(p.TimeEnd)
	}

	rrParams := signal.RiskRewardParams{
		Adaptive:       p.UseAdaptiveRR,
		ExtraMarginPts: p.ExtraMarginPts,
		RRMultiple:     p.RRMultiple,
	}
	if !p.UseAdaptiveRR {
		rrParams.TargetPts = *p.TargetPts
		rrParams.StopPts = *p.StopPts
	}

	var trades []domain.Trade
	for _, inv := range inversions {
		entry, err := lookup.NextAfter(inv.Timestamp, entryCandles)
		if err != nil {
			continue // no fill candle after the inversion
		}
		clock := domain.ClockOf(entry.Timestamp)
		if hasStart && clock < timeStart {
			continue
		}
		if hasEnd && clock > timeEnd {
			continue
		}

		levels := signal.RiskReward(inv, entry.Open, rrParams)
		path, err := r.candles.FetchPathCandles(ctx, entry.Timestamp, cutoff)
		if err != nil {
			return nil, fmt.Errorf("fetch path candles: %w", err)
		}

		trade := simulate.Resolve(simulate.Setup{
			EntryTime:   entry.Timestamp,
			Direction:   inv.Direction,
			EntryPrice:  entry.Open,
			StopPrice:   levels.StopPrice,
			TargetPrice: levels.TargetPrice,
			StopPts:     levels.StopPts,
			TargetPts:   levels.TargetPts,
		}, path)
		gapTS := inv.Gap.Timestamp
		trade.FVGTimestamp = &gapTS
		trade.FVGSize = inv.Gap.Size
		trades = append(trades, trade)
	}
	return trades, nil
}

// filterByLiquidity keeps gaps that formed at a recent swing level.
// Too few liquidity candles for swing detection means no filter at
// all, not an empty result.
func (r *IFVGRunner) filterByLiquidity(gaps []domain.FairValueGap, liqCandles []domain.Candle, p *domain.IFVGParams) []domain.FairValueGap {
	swings := signal.DetectSwingPoints(liqCandles, p.SwingLookback)
	if len(swings) == 0 {
		if r.log != nil {
			r.log.Debug("liquidity filter skipped, no swing points",
				zap.Int("liquidity_candles", len(liqCandles)),
				zap.Int("lookback", p.SwingLookback))
		}
		return gaps
	}
	var kept []domain.FairValueGap
	for _, g := range gaps {
		if signal.AtLiquidityLevel(g, swings, p.TolerancePts) {
			kept = append(kept, g)
		}
	}
	return kept
}

// dateRange resolves the scenario's window. Explicit dates take
// precedence over the year range; year ranges always use the long
// grouping levels.
func (r *IFVGRunner) dateRange(p *domain.IFVGParams) (start, end time.Time, longRange bool, err error) {
	if p.DateStart != "" && p.DateEnd != "" {
		s, err := time.ParseInLocation("2006-01-02", p.DateStart, r.loc)
		if err != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("parse date_start: %w", err)
		}
		e, err := time.ParseInLocation("2006-01-02", p.DateEnd, r.loc)
		if err != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("parse date_end: %w", err)
		}
		days := int(e.Sub(s).Hours()/24) + 1
		return s, e.Add(24*time.Hour - time.Second), days >= shortRangeDays, nil
	}
	start = time.Date(*p.YearStart, 1, 1, 0, 0, 0, 0, r.loc)
	end = time.Date(*p.YearEnd, 12, 31, 23, 59, 59, 0, r.loc)
	return start, end, true, nil
}
