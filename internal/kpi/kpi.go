// Package kpi derives performance figures from simulated trades.
// All functions are pure; calling them twice over the same input
// yields identical results.
package kpi

import (
	"math"

	"backtest-lab/internal/domain"
)

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

// TotalsOf counts outcomes over a trade set.
func TotalsOf(trades []domain.Trade) domain.Totals {
	var t domain.Totals
	t.Total = len(trades)
	for _, tr := range trades {
		switch tr.Outcome {
		case domain.OutcomeWin:
			t.Wins++
		case domain.OutcomeLoss:
			t.Losses++
		default:
			t.Timeouts++
		}
	}
	return t
}

// Calculate computes KPIs for a bucket whose trades share one fixed
// target and stop distance. A bucket with no trades yields all zeros.
//
// Win rate is a percentage rounded to 2 decimals, expectancy to 4.
// The profit factor is gross target points won over gross stop points
// lost; with no losses it carries no value and serializes as null.
func Calculate(t domain.Totals, targetPts, stopPts float64) domain.KPIs {
	if t.Total == 0 {
		return domain.KPIs{}
	}

	winRate := float64(t.Wins) / float64(t.Total) * 100
	lossRate := float64(t.Losses) / float64(t.Total)

	var rRatio float64
	if stopPts != 0 {
		rRatio = targetPts / stopPts
	}

	k := domain.KPIs{
		WinRatePercent: round2(winRate),
		RRatio:         rRatio,
		ExpectancyR:    round4(winRate/100*rRatio - lossRate),
	}
	if t.Losses == 0 {
		k.ProfitFactor = domain.ProfitFactor{NoLosses: true, HadWins: t.Wins > 0}
	} else {
		k.ProfitFactor = domain.ProfitFactor{
			Value: float64(t.Wins) * targetPts / (float64(t.Losses) * stopPts),
		}
	}
	return k
}

// FromTrades computes KPIs for trades whose distances vary per trade,
// as the adaptive risk-reward mode produces. Averages are measured
// over the actual per-trade distances, the profit factor over the
// per-trade gross sums, and the R ratio from the average distances.
// It also fills the average gap size for trades carrying one.
func FromTrades(trades []domain.Trade) (domain.Totals, domain.KPIs) {
	t := TotalsOf(trades)
	if t.Total == 0 {
		return t, domain.KPIs{}
	}

	var sumTP, sumSL, sumGap float64
	var grossWin, grossLoss float64
	for _, tr := range trades {
		sumTP += tr.TargetPts
		sumSL += tr.StopPts
		sumGap += tr.FVGSize
		switch tr.Outcome {
		case domain.OutcomeWin:
			grossWin += tr.TargetPts
		case domain.OutcomeLoss:
			grossLoss += tr.StopPts
		}
	}
	// Derivations use the unrounded means; rounding happens only on
	// the output fields so expectancy does not drift.
	n := float64(t.Total)
	avgTP := sumTP / n
	avgSL := sumSL / n
	avgGap := round2(sumGap / n)

	winRate := float64(t.Wins) / n * 100
	lossRate := float64(t.Losses) / n

	var rRatio float64
	if avgSL != 0 {
		rRatio = avgTP / avgSL
	}

	avgTPOut := round2(avgTP)
	avgSLOut := round2(avgSL)
	k := domain.KPIs{
		WinRatePercent: round2(winRate),
		RRatio:         rRatio,
		ExpectancyR:    round4(winRate/100*rRatio - lossRate),
		AvgFVGSize:     &avgGap,
		AvgTPPts:       &avgTPOut,
		AvgSLPts:       &avgSLOut,
	}
	if t.Losses == 0 {
		k.ProfitFactor = domain.ProfitFactor{NoLosses: true, HadWins: t.Wins > 0}
	} else {
		k.ProfitFactor = domain.ProfitFactor{Value: grossWin / grossLoss}
	}
	return t, k
}

// GroupBy buckets trades by an arbitrary string key, preserving trade
// order within each bucket.
func GroupBy(trades []domain.Trade, key func(domain.Trade) string) map[string][]domain.Trade {
	out := make(map[string][]domain.Trade)
	for _, tr := range trades {
		k := key(tr)
		out[k] = append(out[k], tr)
	}
	return out
}
