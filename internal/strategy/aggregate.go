package strategy

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/kpi"
)

// ErrUnknownGrouping is returned for a grouping type no runner
// understands. It is an input error and fails the scenario.
var ErrUnknownGrouping = errors.New("unknown grouping type")

func newResult(sc *domain.Scenario, level string, grouping map[string]string, totals domain.Totals, k domain.KPIs) *domain.Result {
	return &domain.Result{
		ID:         uuid.New(),
		RunID:      sc.RunID,
		ScenarioID: sc.ID,
		GroupLevel: level,
		Grouping:   grouping,
		Totals:     totals,
		KPIs:       k,
		CreatedAt:  time.Now().UTC(),
	}
}

func yearOf(tr domain.Trade) string      { return tr.EntryTime.Format("2006") }
func monthOf(tr domain.Trade) string     { return tr.EntryTime.Format("01") }
func yearMonthOf(tr domain.Trade) string { return tr.EntryTime.Format("2006-01") }
func dowOf(tr domain.Trade) string       { return tr.EntryTime.Weekday().String() }
func directionOf(tr domain.Trade) string { return string(tr.Direction) }

// sortedKeys gives deterministic bucket ordering for result rows.
func sortedKeys(m map[string][]domain.Trade) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fixedKPIs aggregates buckets whose trades share one configured
// target and stop distance, emitting one row per bucket.
func fixedKPIs(sc *domain.Scenario, level string, groupKey string, buckets map[string][]domain.Trade, targetPts, stopPts float64, extra map[string]string) []*domain.Result {
	var out []*domain.Result
	for _, key := range sortedKeys(buckets) {
		grouping := map[string]string{groupKey: key}
		for k, v := range extra {
			grouping[k] = v
		}
		totals := kpi.TotalsOf(buckets[key])
		out = append(out, newResult(sc, level, grouping, totals, kpi.Calculate(totals, targetPts, stopPts)))
	}
	return out
}

// measuredKPIs aggregates buckets with per-trade distances, as the
// inversion strategy produces.
func measuredKPIs(sc *domain.Scenario, level string, groupKey string, buckets map[string][]domain.Trade, extra map[string]string) []*domain.Result {
	var out []*domain.Result
	for _, key := range sortedKeys(buckets) {
		grouping := map[string]string{groupKey: key}
		for k, v := range extra {
			grouping[k] = v
		}
		totals, k := kpi.FromTrades(buckets[key])
		out = append(out, newResult(sc, level, grouping, totals, k))
	}
	return out
}

// subGroup re-buckets each bucket by a second key, producing composite
// grouping descriptors like {year: 2023, dow: Tuesday}.
func subGroup(trades []domain.Trade, first func(domain.Trade) string, second func(domain.Trade) string) map[string]map[string][]domain.Trade {
	out := make(map[string]map[string][]domain.Trade)
	for _, tr := range trades {
		k1, k2 := first(tr), second(tr)
		if out[k1] == nil {
			out[k1] = make(map[string][]domain.Trade)
		}
		out[k1][k2] = append(out[k1][k2], tr)
	}
	return out
}
