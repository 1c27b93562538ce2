// Package grid expands parameter lists into the full set of standard
// strategy scenarios for a sweep run.
package grid

import (
	"go.uber.org/zap"

	"backtest-lab/internal/domain"
)

// Params are the axes of a grid sweep. Entry starts and ends are
// index-paired when the two lists are identical (each time is a
// discrete entry point); otherwise every start/end combination forms
// an entry window. Target and stop lists are index-paired when equal
// in length, which keeps a fixed risk-reward factor across the sweep;
// unequal lengths expand to the full cross product.
type Params struct {
	EntryTimeStarts []string
	EntryTimeEnds   []string
	TradeEndTimes   []string
	TargetPtsList   []float64
	StopPtsList     []float64
	Directions      []*domain.Direction // nil entry means candle body decides
	YearStart       int
	YearEnd         int

	TrendEnabled   bool
	TrendTimeframe string
	TrendPeriod    int
	TrendType      string
	TrendStrict    bool
}

type timePair struct{ start, end string }
type ptsPair struct{ target, stop float64 }

// Expand generates every valid parameter combination. Combinations
// whose entry window is inverted, or whose trade end precedes the
// entry window's close, are skipped rather than rejected. Unparseable
// clock strings skip their combinations the same way.
func Expand(p Params, log *zap.Logger) []*domain.StandardParams {
	if log == nil {
		log = zap.NewNop()
	}

	entryPairs := entryTimePairs(p.EntryTimeStarts, p.EntryTimeEnds)
	tpSLPairs := targetStopPairs(p.TargetPtsList, p.StopPtsList)

	possible := len(entryPairs) * len(p.TradeEndTimes) * len(tpSLPairs) * len(p.Directions)
	out := make([]*domain.StandardParams, 0, possible)

	for _, et := range entryPairs {
		start, err := domain.ParseClock(et.start)
		if err != nil {
			log.Warn("skipping entry time", zap.String("time", et.start), zap.Error(err))
			continue
		}
		end, err := domain.ParseClock(et.end)
		if err != nil {
			log.Warn("skipping entry time", zap.String("time", et.end), zap.Error(err))
			continue
		}
		if end < start {
			continue
		}

		for _, te := range p.TradeEndTimes {
			tradeEnd, err := domain.ParseClock(te)
			if err != nil {
				log.Warn("skipping trade end time", zap.String("time", te), zap.Error(err))
				continue
			}
			if tradeEnd < end {
				continue
			}

			for _, ts := range tpSLPairs {
				if ts.target <= 0 || ts.stop <= 0 {
					continue
				}
				for _, dir := range p.Directions {
					sp := &domain.StandardParams{
						EntryTimeStart: et.start,
						EntryTimeEnd:   et.end,
						TradeEndTime:   te,
						TargetPts:      ts.target,
						StopPts:        ts.stop,
						Direction:      dir,
						YearStart:      p.YearStart,
						YearEnd:        p.YearEnd,
					}
					if p.TrendEnabled {
						sp.TrendEnabled = true
						sp.TrendTimeframe = p.TrendTimeframe
						sp.TrendPeriod = p.TrendPeriod
						sp.TrendType = p.TrendType
						sp.TrendStrict = p.TrendStrict
					}
					out = append(out, sp)
				}
			}
		}
	}

	log.Info("grid expanded",
		zap.Int("scenarios", len(out)),
		zap.Int("possible_combinations", possible))
	return out
}

// entryTimePairs pairs starts with ends. Identical lists pair by
// index; otherwise all combinations.
func entryTimePairs(starts, ends []string) []timePair {
	if identical(starts, ends) {
		pairs := make([]timePair, len(starts))
		for i := range starts {
			pairs[i] = timePair{starts[i], ends[i]}
		}
		return pairs
	}
	pairs := make([]timePair, 0, len(starts)*len(ends))
	for _, s := range starts {
		for _, e := range ends {
			pairs = append(pairs, timePair{s, e})
		}
	}
	return pairs
}

// targetStopPairs pairs targets with stops. Equal-length lists pair by
// index; otherwise all combinations.
func targetStopPairs(targets, stops []float64) []ptsPair {
	if len(targets) == len(stops) {
		pairs := make([]ptsPair, len(targets))
		for i := range targets {
			pairs[i] = ptsPair{targets[i], stops[i]}
		}
		return pairs
	}
	pairs := make([]ptsPair, 0, len(targets)*len(stops))
	for _, t := range targets {
		for _, s := range stops {
			pairs = append(pairs, ptsPair{t, s})
		}
	}
	return pairs
}

func identical(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
