package signal

import (
	"math"
	"time"

	"backtest-lab/internal/domain"
)

// liquidityWindow bounds how far a swing point may sit from a gap's
// formation time and still count as resting liquidity for it.
const liquidityWindow = time.Hour

// DetectSwingPoints finds strict local extrema over a symmetric
// lookback window. An index is a swing high when its high exceeds the
// highs of all lookback neighbours on both sides, and a swing low when
// its low undercuts all neighbouring lows; the same index can be both.
// A series shorter than 2*lookback+1 has no interior indices and
// yields nothing.
func DetectSwingPoints(candles []domain.Candle, lookback int) []domain.SwingPoint {
	if lookback < 1 || len(candles) < 2*lookback+1 {
		return nil
	}
	var points []domain.SwingPoint
	for i := lookback; i < len(candles)-lookback; i++ {
		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			points = append(points, domain.SwingPoint{
				Timestamp: candles[i].Timestamp,
				Price:     candles[i].High,
				Kind:      domain.SwingHigh,
			})
		}
		if isLow {
			points = append(points, domain.SwingPoint{
				Timestamp: candles[i].Timestamp,
				Price:     candles[i].Low,
				Kind:      domain.SwingLow,
			})
		}
	}
	return points
}

// AtLiquidityLevel reports whether the gap formed at a recent swing
// level. Only swings within an hour of the gap's formation time are
// considered. A bullish gap matches a swing high near its lower bound;
// a bearish gap matches a swing low near its upper bound. Prices match
// within tolerancePts.
func AtLiquidityLevel(gap domain.FairValueGap, swings []domain.SwingPoint, tolerancePts float64) bool {
	var wantKind domain.SwingKind
	var level float64
	if gap.Direction == domain.DirectionBullish {
		wantKind = domain.SwingHigh
		level = gap.GapLow
	} else {
		wantKind = domain.SwingLow
		level = gap.GapHigh
	}
	for _, sp := range swings {
		if sp.Kind != wantKind {
			continue
		}
		dt := gap.Timestamp.Sub(sp.Timestamp)
		if dt < -liquidityWindow || dt > liquidityWindow {
			continue
		}
		if math.Abs(sp.Price-level) <= tolerancePts {
			return true
		}
	}
	return false
}
