package signal

import "backtest-lab/internal/domain"

// SMAAt returns the simple moving average of the last period closes.
// The second return is false when fewer than period candles are
// available.
func SMAAt(candles []domain.Candle, period int) (float64, bool) {
	if period < 1 || len(candles) < period {
		return 0, false
	}
	var sum float64
	for _, c := range candles[len(candles)-period:] {
		sum += c.Close
	}
	return sum / float64(period), true
}

// EMAAt returns the exponential moving average of the closes, seeded
// with the simple average of the first period values and smoothed with
// the standard 2/(period+1) factor over the remainder.
func EMAAt(candles []domain.Candle, period int) (float64, bool) {
	if period < 1 || len(candles) < period {
		return 0, false
	}
	var seed float64
	for _, c := range candles[:period] {
		seed += c.Close
	}
	ema := seed / float64(period)
	k := 2.0 / float64(period+1)
	for _, c := range candles[period:] {
		ema = c.Close*k + ema*(1-k)
	}
	return ema, true
}

// TrendAt evaluates the moving-average filter at a point in the candle
// series. kind is "sma" or "ema". It returns the direction price sits
// relative to the average, or ok=false when the series is too short.
func TrendAt(candles []domain.Candle, period int, kind string) (domain.Direction, bool) {
	var avg float64
	var ok bool
	if kind == "ema" {
		avg, ok = EMAAt(candles, period)
	} else {
		avg, ok = SMAAt(candles, period)
	}
	if !ok {
		return "", false
	}
	last := candles[len(candles)-1].Close
	if last >= avg {
		return domain.DirectionBullish, true
	}
	return domain.DirectionBearish, true
}
