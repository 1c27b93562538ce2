package domain

import "time"

// Candle represents one OHLC bar in venue-local time.
// Candles are immutable once fetched and ordered by timestamp ASC
// within a timeframe. A fetched batch may mix timeframes; the
// Timeframe tag disambiguates.
type Candle struct {
	Timestamp time.Time // venue-local (America/New_York by default)
	Timeframe string    // "1m", "5m", "15m", "30m", "1h", "4h", "1d"
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool {
	return c.Close < c.Open
}

// Supported timeframe tags.
const (
	Timeframe1m  = "1m"
	Timeframe5m  = "5m"
	Timeframe15m = "15m"
	Timeframe30m = "30m"
	Timeframe1h  = "1h"
	Timeframe4h  = "4h"
	Timeframe1d  = "1d"
)

var timeframeMinutes = map[string]int{
	Timeframe1m:  1,
	Timeframe5m:  5,
	Timeframe15m: 15,
	Timeframe30m: 30,
	Timeframe1h:  60,
	Timeframe4h:  240,
	Timeframe1d:  1440,
}

// TimeframeMinutes returns the candle duration in minutes for a
// timeframe tag. Unknown tags fall back to 5 minutes.
func TimeframeMinutes(timeframe string) int {
	if m, ok := timeframeMinutes[timeframe]; ok {
		return m
	}
	return 5
}

// ValidTimeframe reports whether the tag names a supported timeframe.
func ValidTimeframe(timeframe string) bool {
	_, ok := timeframeMinutes[timeframe]
	return ok
}

// FilterTimeframe returns the candles carrying the given timeframe tag,
// preserving order.
func FilterTimeframe(candles []Candle, timeframe string) []Candle {
	var out []Candle
	for _, c := range candles {
		if c.Timeframe == timeframe {
			out = append(out, c)
		}
	}
	return out
}
