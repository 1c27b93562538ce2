// Package lookup provides position helpers over ordered candle series.
package lookup

import (
	"errors"
	"sort"
	"time"

	"backtest-lab/internal/domain"
)

// ErrNoCandleData is returned when a lookup runs on an empty series.
var ErrNoCandleData = errors.New("no candle data available")

// NextAfter returns the first candle with a timestamp strictly after
// target. Returns ErrNoCandleData when the series is empty or no
// candle follows target.
func NextAfter(target time.Time, candles []domain.Candle) (domain.Candle, error) {
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp.After(target)
	})
	if i == len(candles) {
		return domain.Candle{}, ErrNoCandleData
	}
	return candles[i], nil
}

// AtOrBefore returns the last candle with a timestamp at or before
// target. Returns ErrNoCandleData when nothing precedes target.
func AtOrBefore(target time.Time, candles []domain.Candle) (domain.Candle, error) {
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp.After(target)
	})
	if i == 0 {
		return domain.Candle{}, ErrNoCandleData
	}
	return candles[i-1], nil
}

// Between returns the candles with timestamps in (after, until],
// preserving order. The boundary candle at until is included; the one
// at after is not.
func Between(after, until time.Time, candles []domain.Candle) []domain.Candle {
	lo := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp.After(after)
	})
	hi := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp.After(until)
	})
	if lo >= hi {
		return nil
	}
	return candles[lo:hi]
}

// UpTo returns the candles with timestamps at or before target.
func UpTo(target time.Time, candles []domain.Candle) []domain.Candle {
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp.After(target)
	})
	return candles[:i]
}

// SplitByDay groups candles by calendar date in their own location,
// returning groups in chronological order. Candles arrive ordered, so
// a group ends when the date changes.
func SplitByDay(candles []domain.Candle) [][]domain.Candle {
	var days [][]domain.Candle
	var cur []domain.Candle
	var curDay time.Time
	for _, c := range candles {
		y, m, d := c.Timestamp.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, c.Timestamp.Location())
		if cur != nil && !day.Equal(curDay) {
			days = append(days, cur)
			cur = nil
		}
		curDay = day
		cur = append(cur, c)
	}
	if cur != nil {
		days = append(days, cur)
	}
	return days
}
