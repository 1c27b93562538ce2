package domain

import "time"

// Outcome of a simulated trade.
type Outcome string

// Outcome constants.
const (
	OutcomeWin     Outcome = "win"     // target reached first
	OutcomeLoss    Outcome = "loss"    // stop reached first
	OutcomeTimeout Outcome = "timeout" // neither level hit before cutoff
)

// Trade is one simulated position from entry to resolution. ExitTime
// and ExitPrice are nil for timeouts. Stop and target are absolute
// price levels, not distances.
type Trade struct {
	EntryTime   time.Time
	EntryPrice  float64
	Direction   Direction
	StopPrice   float64
	TargetPrice float64
	Outcome     Outcome
	ExitTime    *time.Time
	ExitPrice   *float64

	// Distances actually risked and targeted, in points. For fixed
	// risk-reward these equal the configured values; adaptive mode
	// derives them per trade from the gap size.
	TargetPts float64
	StopPts   float64

	// Originating signal, populated by the inversion strategy only.
	FVGTimestamp *time.Time `json:",omitempty"`
	FVGSize      float64    `json:",omitempty"`
}

// Won reports whether the trade hit its target.
func (t Trade) Won() bool { return t.Outcome == OutcomeWin }

// Lost reports whether the trade hit its stop.
func (t Trade) Lost() bool { return t.Outcome == OutcomeLoss }
