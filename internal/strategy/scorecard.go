package strategy

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/lookup"
	"backtest-lab/internal/storage"
)

// ScorecardRunner computes descriptive weekly and per-day-of-week
// statistics for one ISO calendar week across a range of years. It
// runs no trade simulation; it shares the runner contract so the
// orchestrator can treat it like any other scenario.
type ScorecardRunner struct {
	candles storage.CandleStore
	loc     *time.Location
	log     *zap.Logger
}

type weekStats struct {
	year      int
	direction domain.Direction
	open      float64
	close     float64
	change    float64
}

type dowAccum struct {
	days        int
	bullish     int
	bearish     int
	sumRange    float64
	highClockBu int // summed seconds since midnight, bullish days
	lowClockBu  int
	highClockBe int
	lowClockBe  int
}

// Run computes the scorecard and returns it as a single result row.
// Years with no candle data for the week are skipped; no data at all
// yields zero rows.
func (r *ScorecardRunner) Run(ctx context.Context, sc *domain.Scenario, _ string) ([]*domain.Result, error) {
	p := sc.Params.Scorecard

	week := p.CalendarWeek
	if week == 0 {
		_, week = time.Now().In(r.loc).ISOWeek()
	}

	var weeks []weekStats
	var dows [7]dowAccum
	for year := p.YearStart; year <= p.YearEnd; year++ {
		sunday, fridayEnd := r.weekWindow(year, week)
		candles, err := r.candles.FetchCandles(ctx, []string{domain.Timeframe5m}, sunday, fridayEnd)
		if err != nil {
			return nil, fmt.Errorf("fetch candles for %d week %d: %w", year, week, err)
		}
		if len(candles) == 0 {
			continue
		}

		weeks = append(weeks, r.classifyWeek(year, candles))
		for _, day := range lookup.SplitByDay(candles) {
			r.accumulateDay(&dows, day)
		}
	}
	if len(weeks) == 0 {
		return nil, nil
	}

	var bullish, bearish int
	var totalChange float64
	weekly := make([]map[string]any, 0, len(weeks))
	for _, w := range weeks {
		if w.direction == domain.DirectionBullish {
			bullish++
		} else {
			bearish++
		}
		totalChange += w.change
		weekly = append(weekly, map[string]any{
			"year":      w.year,
			"direction": string(w.direction),
			"open":      w.open,
			"close":     w.close,
			"change":    round2(w.change),
		})
	}

	daily := make(map[string]any, 7)
	for i, acc := range dows {
		if acc.days == 0 {
			continue
		}
		daily[time.Weekday(i).String()] = map[string]any{
			"days":            acc.days,
			"bullish_count":   acc.bullish,
			"bearish_count":   acc.bearish,
			"bullish_percent": round2(float64(acc.bullish) / float64(acc.days) * 100),
			"avg_range":       round2(acc.sumRange / float64(acc.days)),
			"avg_high_time_bullish": avgClock(acc.highClockBu, acc.bullish),
			"avg_low_time_bullish":  avgClock(acc.lowClockBu, acc.bullish),
			"avg_high_time_bearish": avgClock(acc.highClockBe, acc.bearish),
			"avg_low_time_bearish":  avgClock(acc.lowClockBe, acc.bearish),
		}
	}

	totals := domain.Totals{Total: len(weeks), Wins: bullish, Losses: bearish}
	result := newResult(sc, domain.GroupWeek,
		map[string]string{"calendar_week": strconv.Itoa(week)},
		totals, domain.KPIs{})
	result.Extra = map[string]any{
		"weekly_stats":        weekly,
		"daily_stats":         daily,
		"bullish_percent":     round2(float64(bullish) / float64(len(weeks)) * 100),
		"bearish_percent":     round2(float64(bearish) / float64(len(weeks)) * 100),
		"total_weekly_change": round2(totalChange),
	}
	return []*domain.Result{result}, nil
}

// weekWindow returns the trading week for an ISO calendar week:
// Sunday 00:00 through Friday 23:59:59, derived from the ISO week's
// Monday (anchored on January 4th, which always falls in week 1).
func (r *ScorecardRunner) weekWindow(year, week int) (sunday, fridayEnd time.Time) {
	jan4 := time.Date(year, 1, 4, 0, 0, 0, 0, r.loc)
	wd := int(jan4.Weekday())
	if wd == 0 {
		wd = 7
	}
	week1Monday := jan4.AddDate(0, 0, -(wd - 1))
	monday := week1Monday.AddDate(0, 0, (week-1)*7)

	sunday = monday.AddDate(0, 0, -1)
	fridayEnd = monday.AddDate(0, 0, 4).Add(24*time.Hour - time.Second)
	return sunday, fridayEnd
}

// classifyWeek compares Friday's close against Sunday's open. When the
// boundary day has no candles the week's first or last candle stands
// in. A flat week counts as bearish.
func (r *ScorecardRunner) classifyWeek(year int, candles []domain.Candle) weekStats {
	days := lookup.SplitByDay(candles)

	openCandle := candles[0]
	if days[0][0].Timestamp.Weekday() == time.Sunday {
		openCandle = days[0][0]
	}
	closeCandle := candles[len(candles)-1]
	last := days[len(days)-1]
	if last[0].Timestamp.Weekday() == time.Friday {
		closeCandle = last[len(last)-1]
	}

	change := closeCandle.Close - openCandle.Open
	dir := domain.DirectionBearish
	if change > 0 {
		dir = domain.DirectionBullish
	}
	return weekStats{
		year:      year,
		direction: dir,
		open:      openCandle.Open,
		close:     closeCandle.Close,
		change:    change,
	}
}

func (r *ScorecardRunner) accumulateDay(dows *[7]dowAccum, day []domain.Candle) {
	first, last := day[0], day[len(day)-1]
	hi, lo := first, first
	for _, c := range day {
		if c.High > hi.High {
			hi = c
		}
		if c.Low < lo.Low {
			lo = c
		}
	}

	idx := int(first.Timestamp.Weekday())
	acc := &dows[idx]
	acc.days++
	acc.sumRange += hi.High - lo.Low

	highClock := int(domain.ClockOf(hi.Timestamp))
	lowClock := int(domain.ClockOf(lo.Timestamp))
	if last.Close > first.Open {
		acc.bullish++
		acc.highClockBu += highClock
		acc.lowClockBu += lowClock
	} else {
		acc.bearish++
		acc.highClockBe += highClock
		acc.lowClockBe += lowClock
	}
}

// avgClock renders an average seconds-since-midnight as HH:MM:SS, or
// an empty string when no days contributed.
func avgClock(sumSeconds, n int) string {
	if n == 0 {
		return ""
	}
	return domain.Clock(sumSeconds / n).String()
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
