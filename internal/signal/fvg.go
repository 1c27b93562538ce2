// Package signal detects fair value gaps, inversions and swing points
// from ordered candle series. Detection is pure computation over
// in-memory candles; fetching and persistence live elsewhere.
package signal

import (
	"time"

	"backtest-lab/internal/domain"
)

// DetectGaps scans a single-timeframe candle series, ordered by
// timestamp ascending, for three-candle imbalances. A bullish gap
// forms when candle i's low clears candle i-2's high; a bearish gap
// when candle i's high stays under candle i-2's low. The two
// conditions cannot hold at once, so each index yields at most one gap.
func DetectGaps(candles []domain.Candle) []domain.FairValueGap {
	var gaps []domain.FairValueGap
	for i := 2; i < len(candles); i++ {
		prev := candles[i-2]
		cur := candles[i]
		switch {
		case cur.Low > prev.High:
			gaps = append(gaps, domain.FairValueGap{
				Timestamp: cur.Timestamp,
				Direction: domain.DirectionBullish,
				GapLow:    prev.High,
				GapHigh:   cur.Low,
				Size:      cur.Low - prev.High,
			})
		case cur.High < prev.Low:
			gaps = append(gaps, domain.FairValueGap{
				Timestamp: cur.Timestamp,
				Direction: domain.DirectionBearish,
				GapLow:    cur.High,
				GapHigh:   prev.Low,
				Size:      prev.Low - cur.High,
			})
		}
	}
	return gaps
}

// DetectInversions finds, for each gap, the first candle inside the
// wait window that closed fully through the gap with an opposing body.
// The window is (gap time, gap time + waitCandles * tfMinutes]; the
// forming candle itself never qualifies. A bullish gap inverts on a
// bearish-bodied close below the gap low, producing a bearish trade
// signal, and symmetrically for bearish gaps. At most one inversion
// per gap.
func DetectInversions(candles []domain.Candle, gaps []domain.FairValueGap, waitCandles, tfMinutes int) []domain.Inversion {
	var out []domain.Inversion
	window := time.Duration(waitCandles*tfMinutes) * time.Minute
	for _, gap := range gaps {
		deadline := gap.Timestamp.Add(window)
		for _, c := range candles {
			if !c.Timestamp.After(gap.Timestamp) {
				continue
			}
			if c.Timestamp.After(deadline) {
				break
			}
			if inverts(gap, c) {
				out = append(out, domain.Inversion{
					Gap:        gap,
					Timestamp:  c.Timestamp,
					Direction:  gap.Direction.Opposite(),
					OpenPrice:  c.Open,
					ClosePrice: c.Close,
				})
				break
			}
		}
	}
	return out
}

func inverts(gap domain.FairValueGap, c domain.Candle) bool {
	if gap.Direction == domain.DirectionBullish {
		return c.Close < gap.GapLow && c.Bearish()
	}
	return c.Close > gap.GapHigh && c.Bullish()
}

// Levels are the absolute exit prices and point distances for one
// trade.
type Levels struct {
	StopPrice   float64
	TargetPrice float64
	StopPts     float64
	TargetPts   float64
}

// RiskRewardParams selects between fixed point distances and the
// adaptive mode that scales risk with the gap size.
type RiskRewardParams struct {
	Adaptive       bool
	TargetPts      float64 // fixed mode
	StopPts        float64 // fixed mode
	ExtraMarginPts float64 // adaptive mode
	RRMultiple     float64 // adaptive mode
}

// RiskReward computes stop and target levels for a trade entered at
// entry in the inversion's direction.
//
// Fixed mode offsets the configured distances from the entry price.
// Adaptive mode anchors the stop just beyond the far side of the
// originating gap (gap low minus margin for longs, gap high plus
// margin for shorts) and sizes the target as a multiple of the
// gap-derived risk.
func RiskReward(inv domain.Inversion, entry float64, p RiskRewardParams) Levels {
	if !p.Adaptive {
		if inv.Direction == domain.DirectionBullish {
			return Levels{
				StopPrice:   entry - p.StopPts,
				TargetPrice: entry + p.TargetPts,
				StopPts:     p.StopPts,
				TargetPts:   p.TargetPts,
			}
		}
		return Levels{
			StopPrice:   entry + p.StopPts,
			TargetPrice: entry - p.TargetPts,
			StopPts:     p.StopPts,
			TargetPts:   p.TargetPts,
		}
	}

	risk := p.ExtraMarginPts + inv.Gap.Size
	target := risk * p.RRMultiple
	if inv.Direction == domain.DirectionBullish {
		stop := inv.Gap.GapLow - p.ExtraMarginPts
		return Levels{
			StopPrice:   stop,
			TargetPrice: entry + target,
			StopPts:     entry - stop,
			TargetPts:   target,
		}
	}
	stop := inv.Gap.GapHigh + p.ExtraMarginPts
	return Levels{
		StopPrice:   stop,
		TargetPrice: entry - target,
		StopPts:     stop - entry,
		TargetPts:   target,
	}
}
