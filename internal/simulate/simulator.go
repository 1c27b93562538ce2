// Package simulate walks a trade forward through its price path and
// resolves the outcome against fixed stop and target levels.
package simulate

import (
	"time"

	"backtest-lab/internal/domain"
)

// Setup describes an open position before the path walk.
type Setup struct {
	EntryTime   time.Time
	Direction   domain.Direction
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	StopPts     float64
	TargetPts   float64
}

// Resolve walks the path candles in order and returns the completed
// trade. When a single candle spans both levels the target wins; the
// intrabar sequence is unknowable from OHLC data and the optimistic
// reading keeps results reproducible. An exhausted path leaves the
// trade a timeout with no exit time or price.
func Resolve(s Setup, path []domain.Candle) domain.Trade {
	trade := domain.Trade{
		EntryTime:   s.EntryTime,
		EntryPrice:  s.EntryPrice,
		Direction:   s.Direction,
		StopPrice:   s.StopPrice,
		TargetPrice: s.TargetPrice,
		StopPts:     s.StopPts,
		TargetPts:   s.TargetPts,
		Outcome:     domain.OutcomeTimeout,
	}
	for _, c := range path {
		switch s.Direction {
		case domain.DirectionBullish:
			if c.High >= s.TargetPrice {
				return settle(trade, c, domain.OutcomeWin, s.TargetPrice)
			}
			if c.Low <= s.StopPrice {
				return settle(trade, c, domain.OutcomeLoss, s.StopPrice)
			}
		case domain.DirectionBearish:
			if c.Low <= s.TargetPrice {
				return settle(trade, c, domain.OutcomeWin, s.TargetPrice)
			}
			if c.High >= s.StopPrice {
				return settle(trade, c, domain.OutcomeLoss, s.StopPrice)
			}
		}
	}
	return trade
}

func settle(t domain.Trade, c domain.Candle, outcome domain.Outcome, price float64) domain.Trade {
	exitTime := c.Timestamp
	t.Outcome = outcome
	t.ExitTime = &exitTime
	t.ExitPrice = &price
	return t
}
