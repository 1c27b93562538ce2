package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage/memory"
)

func newTestRouter(store *memory.CandleStore) *Router {
	return NewRouter(store, time.UTC, zap.NewNop())
}

func TestRouter_Dispatch(t *testing.T) {
	router := newTestRouter(memory.NewCandleStore())

	if _, err := router.ForScenario(&domain.Scenario{StrategyType: "martingale"}); !errors.Is(err, domain.ErrUnknownStrategyType) {
		t.Errorf("unknown type: got %v, want ErrUnknownStrategyType", err)
	}

	// Empty tag means standard.
	runner, err := router.ForScenario(&domain.Scenario{})
	if err != nil {
		t.Fatalf("empty tag failed: %v", err)
	}
	if _, ok := runner.(*StandardRunner); !ok {
		t.Errorf("empty tag routed to %T, want *StandardRunner", runner)
	}

	runner, _ = router.ForScenario(&domain.Scenario{StrategyType: domain.StrategyTypeIFVG})
	if _, ok := runner.(*IFVGRunner); !ok {
		t.Errorf("ifvg routed to %T", runner)
	}
	runner, _ = router.ForScenario(&domain.Scenario{StrategyType: domain.StrategyTypeScorecard})
	if _, ok := runner.(*ScorecardRunner); !ok {
		t.Errorf("daily_scorecard routed to %T", runner)
	}
}

func fiveMin(ts time.Time, o, h, l, c float64) domain.Candle {
	return domain.Candle{Timestamp: ts, Timeframe: domain.Timeframe5m, Open: o, High: h, Low: l, Close: c}
}

func oneMin(ts time.Time, o, h, l, c float64) domain.Candle {
	return domain.Candle{Timestamp: ts, Timeframe: domain.Timeframe1m, Open: o, High: h, Low: l, Close: c}
}

func standardScenario() *domain.Scenario {
	dir := domain.DirectionBullish
	return &domain.Scenario{
		ID:           uuid.New(),
		RunID:        uuid.New(),
		StrategyType: domain.StrategyTypeStandard,
		Params: domain.ScenarioParams{Standard: &domain.StandardParams{
			EntryTimeStart: "09:30",
			EntryTimeEnd:   "09:35",
			TradeEndTime:   "16:00",
			EntryTimeframe: domain.Timeframe5m,
			TargetPts:      10,
			StopPts:        5,
			Direction:      &dir,
			YearStart:      2023,
			YearEnd:        2023,
		}},
	}
}

func TestStandardRunner(t *testing.T) {
	day := time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC) // a Monday
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	store := memory.NewCandleStore()
	store.Load([]domain.Candle{
		fiveMin(at(9, 30), 100, 101, 99, 100.5), // entry 1 at 100
		fiveMin(at(9, 35), 101, 104, 100, 103),  // entry 2 at 101
		fiveMin(at(9, 40), 103, 115, 99, 112),   // both targets (110, 111) hit
		fiveMin(at(9, 45), 112, 113, 111, 112),
	})
	router := newTestRouter(store)

	sc := standardScenario()
	runner, err := router.ForScenario(sc)
	if err != nil {
		t.Fatal(err)
	}

	results, err := runner.Run(context.Background(), sc, GroupingHierarchical)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// strategy + year + year_dow + year_direction.
	if len(results) != 4 {
		t.Fatalf("got %d rows, want 4: %+v", len(results), results)
	}

	top := results[0]
	if top.GroupLevel != domain.GroupStrategy {
		t.Errorf("first row level = %s, want strategy", top.GroupLevel)
	}
	if top.Totals.Total != 2 || top.Totals.Wins != 2 {
		t.Errorf("totals = %+v, want 2 wins of 2", top.Totals)
	}
	if top.KPIs.WinRatePercent != 100.0 {
		t.Errorf("win rate = %v, want 100", top.KPIs.WinRatePercent)
	}
	if !top.KPIs.ProfitFactor.NoLosses || !top.KPIs.ProfitFactor.HadWins {
		t.Errorf("profit factor = %+v", top.KPIs.ProfitFactor)
	}

	year := results[1]
	if year.GroupLevel != domain.GroupYear || year.Grouping["year"] != "2023" {
		t.Errorf("year row = %+v", year)
	}
	dowRow := results[2]
	if dowRow.GroupLevel != domain.GroupYearDow || dowRow.Grouping["dow"] != "Monday" || dowRow.Grouping["year"] != "2023" {
		t.Errorf("year_dow row = %+v", dowRow)
	}
	dirRow := results[3]
	if dirRow.GroupLevel != domain.GroupYearDirection || dirRow.Grouping["direction"] != "bullish" {
		t.Errorf("year_direction row = %+v", dirRow)
	}
}

func TestStandardRunner_Groupings(t *testing.T) {
	day := time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC)
	store := memory.NewCandleStore()
	store.Load([]domain.Candle{
		fiveMin(day.Add(9*time.Hour+30*time.Minute), 100, 101, 99, 100.5),
		fiveMin(day.Add(9*time.Hour+35*time.Minute), 101, 115, 100, 112),
	})
	sc := standardScenario()
	runner := &StandardRunner{candles: store, loc: time.UTC, log: zap.NewNop()}
	ctx := context.Background()

	byYear, err := runner.Run(ctx, sc, GroupingByYear)
	if err != nil || len(byYear) != 1 || byYear[0].GroupLevel != domain.GroupYear {
		t.Errorf("by_year: %d rows, err %v", len(byYear), err)
	}
	byDow, err := runner.Run(ctx, sc, GroupingByDow)
	if err != nil || len(byDow) != 1 || byDow[0].Grouping["dow"] != "Monday" {
		t.Errorf("by_dow: %+v, err %v", byDow, err)
	}
	byCandle, err := runner.Run(ctx, sc, GroupingByCandle)
	if err != nil || len(byCandle) != 2 {
		t.Errorf("by_candle: %d rows, err %v", len(byCandle), err)
	}
	if len(byCandle) == 2 && byCandle[0].Grouping["candle_time"] != "09:30:00" {
		t.Errorf("candle_time = %q", byCandle[0].Grouping["candle_time"])
	}

	if _, err := runner.Run(ctx, sc, "by_moon_phase"); !errors.Is(err, ErrUnknownGrouping) {
		t.Errorf("unknown grouping: got %v", err)
	}
}

func TestStandardRunner_NoData(t *testing.T) {
	runner := &StandardRunner{candles: memory.NewCandleStore(), loc: time.UTC, log: zap.NewNop()}
	results, err := runner.Run(context.Background(), standardScenario(), GroupingHierarchical)
	if err != nil {
		t.Fatalf("empty data must not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d rows, want 0", len(results))
	}
}

func ifvgScenario() *domain.Scenario {
	return &domain.Scenario{
		ID:           uuid.New(),
		RunID:        uuid.New(),
		StrategyType: domain.StrategyTypeIFVG,
		Params: domain.ScenarioParams{IFVG: &domain.IFVGParams{
			FVGTimeframe:   domain.Timeframe5m,
			EntryTimeframe: domain.Timeframe1m,
			WaitCandles:    24,
			UseAdaptiveRR:  true,
			ExtraMarginPts: 5,
			RRMultiple:     2,
			CutoffTime:     "16:00:00",
			DateStart:      "2023-06-05",
			DateEnd:        "2023-06-06",
		}},
	}
}

func TestIFVGRunner(t *testing.T) {
	day := time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	store := memory.NewCandleStore()
	store.Load([]domain.Candle{
		// 5m series: bullish gap (100, 102) forms at 09:40, inverted
		// at 09:45 by a bearish close below the gap low.
		fiveMin(at(9, 30), 99, 100, 98, 99.5),
		fiveMin(at(9, 35), 100.5, 101, 100, 100.8),
		fiveMin(at(9, 40), 102.5, 103, 102, 102.8),
		fiveMin(at(9, 45), 101, 101, 96, 97),
		// 1m entry fill after the inversion.
		oneMin(at(9, 46), 98, 98.5, 97.5, 98),
		// 1m path: stop 107, target 98-14=84; low 83 wins at 09:50.
		oneMin(at(9, 47), 98, 99, 90, 91),
		oneMin(at(9, 50), 91, 99, 83, 85),
	})
	runner := &IFVGRunner{candles: store, loc: time.UTC, log: zap.NewNop()}
	sc := ifvgScenario()

	trades, err := runner.Trades(context.Background(), sc)
	if err != nil {
		t.Fatalf("Trades failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	tr := trades[0]
	if tr.Direction != domain.DirectionBearish {
		t.Errorf("direction = %s, want bearish", tr.Direction)
	}
	if tr.EntryPrice != 98 || tr.StopPrice != 107 || tr.TargetPrice != 84 {
		t.Errorf("levels = entry %v stop %v target %v, want 98/107/84", tr.EntryPrice, tr.StopPrice, tr.TargetPrice)
	}
	if tr.Outcome != domain.OutcomeWin {
		t.Errorf("outcome = %s, want win", tr.Outcome)
	}
	if tr.FVGSize != 2 || tr.FVGTimestamp == nil {
		t.Errorf("gap details = size %v ts %v", tr.FVGSize, tr.FVGTimestamp)
	}

	// Two-day range: short-range grouping = strategy + direction.
	results, err := runner.Run(context.Background(), sc, GroupingHierarchical)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d rows, want 2: %+v", len(results), results)
	}
	top := results[0]
	if top.GroupLevel != domain.GroupStrategy {
		t.Errorf("first row level = %s", top.GroupLevel)
	}
	if top.KPIs.AvgFVGSize == nil || *top.KPIs.AvgFVGSize != 2 {
		t.Errorf("avg gap size = %v, want 2", top.KPIs.AvgFVGSize)
	}
	if top.KPIs.AvgTPPts == nil || *top.KPIs.AvgTPPts != 14 || *top.KPIs.AvgSLPts != 9 {
		t.Errorf("avg distances = %v/%v, want 14/9", top.KPIs.AvgTPPts, top.KPIs.AvgSLPts)
	}
	dirRow := results[1]
	if dirRow.GroupLevel != domain.GroupDirection || dirRow.Grouping["direction"] != "bearish" {
		t.Errorf("direction row = %+v", dirRow)
	}
}

func TestIFVGRunner_YearRangeGrouping(t *testing.T) {
	day := time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	store := memory.NewCandleStore()
	store.Load([]domain.Candle{
		fiveMin(at(9, 30), 99, 100, 98, 99.5),
		fiveMin(at(9, 35), 100.5, 101, 100, 100.8),
		fiveMin(at(9, 40), 102.5, 103, 102, 102.8),
		fiveMin(at(9, 45), 101, 101, 96, 97),
		oneMin(at(9, 46), 98, 98.5, 97.5, 98),
		oneMin(at(9, 50), 91, 99, 83, 85),
	})
	runner := &IFVGRunner{candles: store, loc: time.UTC, log: zap.NewNop()}

	sc := ifvgScenario()
	yearStart, yearEnd := 2023, 2023
	sc.Params.IFVG.DateStart = ""
	sc.Params.IFVG.DateEnd = ""
	sc.Params.IFVG.YearStart = &yearStart
	sc.Params.IFVG.YearEnd = &yearEnd

	results, err := runner.Run(context.Background(), sc, GroupingHierarchical)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// strategy + year + year_dow + year_direction.
	if len(results) != 4 {
		t.Fatalf("got %d rows, want 4", len(results))
	}
	if results[1].GroupLevel != domain.GroupYear || results[1].Grouping["year"] != "2023" {
		t.Errorf("year row = %+v", results[1])
	}
}

func TestIFVGRunner_NoData(t *testing.T) {
	runner := &IFVGRunner{candles: memory.NewCandleStore(), loc: time.UTC, log: zap.NewNop()}
	results, err := runner.Run(context.Background(), ifvgScenario(), GroupingHierarchical)
	if err != nil {
		t.Fatalf("empty data must not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d rows, want 0", len(results))
	}
}

// ifvgDayCandles replays the TestIFVGRunner pattern on an arbitrary
// day: a bullish gap forms at 09:40, inverts at 09:45, and the 1m fill
// at 09:46 runs to its target. One bearish winning trade per day.
func ifvgDayCandles(day time.Time) []domain.Candle {
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }
	return []domain.Candle{
		fiveMin(at(9, 30), 99, 100, 98, 99.5),
		fiveMin(at(9, 35), 100.5, 101, 100, 100.8),
		fiveMin(at(9, 40), 102.5, 103, 102, 102.8),
		fiveMin(at(9, 45), 101, 101, 96, 97),
		oneMin(at(9, 46), 98, 98.5, 97.5, 98),
		oneMin(at(9, 47), 98, 99, 90, 91),
		oneMin(at(9, 50), 91, 99, 83, 85),
	}
}

func TestIFVGRunner_EntryTimeFilterOneSided(t *testing.T) {
	store := memory.NewCandleStore()
	store.Load(ifvgDayCandles(time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC)))
	runner := &IFVGRunner{candles: store, loc: time.UTC, log: zap.NewNop()}

	// The only entry fill is at 09:46; each bound must filter on its
	// own, without the other being set.
	cases := []struct {
		name       string
		start, end string
		want       int
	}{
		{"start after entry", "12:00:00", "", 0},
		{"start before entry", "09:00:00", "", 1},
		{"end before entry", "", "09:00:00", 0},
		{"end after entry", "", "12:00:00", 1},
		{"window around entry", "09:00:00", "12:00:00", 1},
	}
	for _, tc := range cases {
		sc := ifvgScenario()
		sc.Params.IFVG.TimeStart = tc.start
		sc.Params.IFVG.TimeEnd = tc.end
		trades, err := runner.Trades(context.Background(), sc)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(trades) != tc.want {
			t.Errorf("%s: got %d trades, want %d", tc.name, len(trades), tc.want)
		}
	}
}

func TestIFVGRunner_MonthGrouping(t *testing.T) {
	// One trade in June, one in July, inside a short date range. The
	// wide 09:50 close-out candle overlaps both sessions so no gap
	// forms across the day boundary.
	june := time.Date(2023, 6, 28, 0, 0, 0, 0, time.UTC)
	candles := ifvgDayCandles(june)
	candles = append(candles, fiveMin(june.Add(9*time.Hour+50*time.Minute), 97, 103, 96, 99))
	candles = append(candles, ifvgDayCandles(time.Date(2023, 7, 3, 0, 0, 0, 0, time.UTC))...)
	store := memory.NewCandleStore()
	store.Load(candles)
	runner := &IFVGRunner{candles: store, loc: time.UTC, log: zap.NewNop()}

	sc := ifvgScenario()
	sc.Params.IFVG.DateStart = "2023-06-25"
	sc.Params.IFVG.DateEnd = "2023-07-05"

	results, err := runner.Run(context.Background(), sc, GroupingHierarchical)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// strategy + direction + one month row per spanned month.
	if len(results) != 4 {
		t.Fatalf("got %d rows, want 4: %+v", len(results), results)
	}
	for i, want := range []string{"06", "07"} {
		row := results[2+i]
		if row.GroupLevel != domain.GroupYearMonth {
			t.Errorf("row %d level = %s, want %s", 2+i, row.GroupLevel, domain.GroupYearMonth)
		}
		if row.Grouping["year"] != "2023" || row.Grouping["month"] != want {
			t.Errorf("row %d grouping = %v, want year 2023 month %s", 2+i, row.Grouping, want)
		}
		if row.Totals.Total != 1 {
			t.Errorf("row %d total = %d, want 1", 2+i, row.Totals.Total)
		}
	}
}

func TestScorecardRunner(t *testing.T) {
	// ISO week 23 of 2023: Monday 2023-06-05, window Sunday 06-04
	// through Friday 06-09.
	sunday := time.Date(2023, 6, 4, 0, 0, 0, 0, time.UTC)
	at := func(days, h, m int) time.Time {
		return sunday.AddDate(0, 0, days).Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}

	store := memory.NewCandleStore()
	store.Load([]domain.Candle{
		fiveMin(at(0, 18, 0), 100, 101, 99, 100.5),  // Sunday open 100
		fiveMin(at(1, 9, 30), 100.5, 102, 100, 101), // Monday
		fiveMin(at(1, 10, 0), 101, 105, 100.8, 104), // Monday high at 10:00
		fiveMin(at(5, 9, 30), 104, 106, 103, 105),   // Friday
		fiveMin(at(5, 16, 0), 105, 111, 104, 110),   // Friday close 110
	})
	runner := &ScorecardRunner{candles: store, loc: time.UTC, log: zap.NewNop()}

	sc := &domain.Scenario{
		ID:           uuid.New(),
		RunID:        uuid.New(),
		StrategyType: domain.StrategyTypeScorecard,
		Params: domain.ScenarioParams{Scorecard: &domain.ScorecardParams{
			YearStart:    2023,
			YearEnd:      2023,
			CalendarWeek: 23,
		}},
	}

	results, err := runner.Run(context.Background(), sc, "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d rows, want 1", len(results))
	}
	row := results[0]
	if row.GroupLevel != domain.GroupWeek || row.Grouping["calendar_week"] != "23" {
		t.Errorf("row = %+v", row)
	}
	// One week, bullish (110 close vs 100 open).
	if row.Totals.Total != 1 || row.Totals.Wins != 1 || row.Totals.Losses != 0 {
		t.Errorf("totals = %+v", row.Totals)
	}
	if row.Extra["bullish_percent"] != 100.0 {
		t.Errorf("bullish_percent = %v", row.Extra["bullish_percent"])
	}
	if row.Extra["total_weekly_change"] != 10.0 {
		t.Errorf("total_weekly_change = %v", row.Extra["total_weekly_change"])
	}

	daily, ok := row.Extra["daily_stats"].(map[string]any)
	if !ok {
		t.Fatalf("daily_stats missing: %+v", row.Extra)
	}
	monday, ok := daily["Monday"].(map[string]any)
	if !ok {
		t.Fatalf("Monday stats missing: %+v", daily)
	}
	if monday["days"] != 1 || monday["bullish_count"] != 1 {
		t.Errorf("Monday = %+v", monday)
	}
	if monday["avg_range"] != 5.0 {
		t.Errorf("Monday avg_range = %v, want 5 (105-100)", monday["avg_range"])
	}
	if monday["avg_high_time_bullish"] != "10:00:00" {
		t.Errorf("Monday high time = %v", monday["avg_high_time_bullish"])
	}
}

func TestScorecardRunner_NoData(t *testing.T) {
	runner := &ScorecardRunner{candles: memory.NewCandleStore(), loc: time.UTC, log: zap.NewNop()}
	sc := &domain.Scenario{
		ID:    uuid.New(),
		RunID: uuid.New(),
		Params: domain.ScenarioParams{Scorecard: &domain.ScorecardParams{
			YearStart: 2023, YearEnd: 2024, CalendarWeek: 23,
		}},
	}
	results, err := runner.Run(context.Background(), sc, "")
	if err != nil || len(results) != 0 {
		t.Errorf("no data: %d rows, err %v", len(results), err)
	}
}
