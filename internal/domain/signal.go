package domain

import "time"

// Direction of a gap, trade or price move.
type Direction string

// Direction constants.
const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// Opposite returns the reversed direction.
func (d Direction) Opposite() Direction {
	if d == DirectionBullish {
		return DirectionBearish
	}
	return DirectionBullish
}

// Valid reports whether the direction is one of the two known values.
func (d Direction) Valid() bool {
	return d == DirectionBullish || d == DirectionBearish
}

// FairValueGap is a three-candle price imbalance. It is derived per
// backtest run from fetched candles and never persisted; only trades
// and results built from it are stored.
//
// Bullish: candle i's low > candle i-2's high, gap spans (high[i-2], low[i]).
// Bearish: candle i's high < candle i-2's low, gap spans (high[i], low[i-2]).
// GapHigh > GapLow always; Size = GapHigh - GapLow.
type FairValueGap struct {
	Timestamp time.Time // formation time = candle i's timestamp
	Direction Direction
	GapLow    float64
	GapHigh   float64
	Size      float64
}

// Inversion records the first opposing candle that closed fully through
// a gap inside its wait window. Its direction is the trade direction,
// the opposite of the originating gap's direction.
type Inversion struct {
	Gap        FairValueGap
	Timestamp  time.Time // inversion candle's timestamp
	Direction  Direction // opposite of Gap.Direction
	OpenPrice  float64   // inversion candle open
	ClosePrice float64   // inversion candle close
}

// SwingKind tags a swing point as a local high or low.
type SwingKind string

// Swing kind constants.
const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a strict local extremum over a symmetric lookback
// window, used by the liquidity filter.
type SwingPoint struct {
	Timestamp time.Time
	Price     float64
	Kind      SwingKind
}
