package grid

import (
	"testing"

	"backtest-lab/internal/domain"
)

func TestExpandDiscreteEntryPoints(t *testing.T) {
	// Identical start/end lists pair by index: each time is a single
	// discrete entry point, not a window.
	times := []string{"09:30:00", "10:00:00", "10:30:00"}
	out := Expand(Params{
		EntryTimeStarts: times,
		EntryTimeEnds:   times,
		TradeEndTimes:   []string{"16:00:00"},
		TargetPtsList:   []float64{30},
		StopPtsList:     []float64{15},
		Directions:      []*domain.Direction{nil},
		YearStart:       2022,
		YearEnd:         2023,
	}, nil)

	if len(out) != 3 {
		t.Fatalf("expanded %d scenarios, want 3", len(out))
	}
	for i, sp := range out {
		if sp.EntryTimeStart != times[i] || sp.EntryTimeEnd != times[i] {
			t.Errorf("scenario %d entry = %s-%s, want %s-%s",
				i, sp.EntryTimeStart, sp.EntryTimeEnd, times[i], times[i])
		}
	}
}

func TestExpandEntryWindowsSkipInverted(t *testing.T) {
	// Different lists cross-produce windows; inverted ones are dropped.
	out := Expand(Params{
		EntryTimeStarts: []string{"09:30:00", "11:00:00"},
		EntryTimeEnds:   []string{"10:00:00", "12:00:00"},
		TradeEndTimes:   []string{"16:00:00"},
		TargetPtsList:   []float64{30},
		StopPtsList:     []float64{15},
		Directions:      []*domain.Direction{nil},
		YearStart:       2023,
		YearEnd:         2023,
	}, nil)

	// 2x2 = 4 windows, minus 11:00-10:00 which is inverted.
	if len(out) != 3 {
		t.Fatalf("expanded %d scenarios, want 3", len(out))
	}
	for _, sp := range out {
		if sp.EntryTimeStart == "11:00:00" && sp.EntryTimeEnd == "10:00:00" {
			t.Error("inverted window survived expansion")
		}
	}
}

func TestExpandSkipsTradeEndBeforeWindow(t *testing.T) {
	out := Expand(Params{
		EntryTimeStarts: []string{"09:30:00"},
		EntryTimeEnds:   []string{"12:00:00"},
		TradeEndTimes:   []string{"11:00:00", "16:00:00"},
		TargetPtsList:   []float64{30},
		StopPtsList:     []float64{15},
		Directions:      []*domain.Direction{nil},
		YearStart:       2023,
		YearEnd:         2023,
	}, nil)

	if len(out) != 1 {
		t.Fatalf("expanded %d scenarios, want 1", len(out))
	}
	if out[0].TradeEndTime != "16:00:00" {
		t.Errorf("trade end = %s, want 16:00:00", out[0].TradeEndTime)
	}
}

func TestExpandTargetStopPairing(t *testing.T) {
	base := Params{
		EntryTimeStarts: []string{"09:30:00"},
		EntryTimeEnds:   []string{"10:00:00"},
		TradeEndTimes:   []string{"16:00:00"},
		Directions:      []*domain.Direction{nil},
		YearStart:       2023,
		YearEnd:         2023,
	}

	// Equal lengths pair by index, keeping the risk-reward factor.
	paired := base
	paired.TargetPtsList = []float64{30, 60}
	paired.StopPtsList = []float64{15, 30}
	out := Expand(paired, nil)
	if len(out) != 2 {
		t.Fatalf("paired expansion = %d scenarios, want 2", len(out))
	}
	if out[0].TargetPts != 30 || out[0].StopPts != 15 {
		t.Errorf("pair 0 = %v/%v, want 30/15", out[0].TargetPts, out[0].StopPts)
	}
	if out[1].TargetPts != 60 || out[1].StopPts != 30 {
		t.Errorf("pair 1 = %v/%v, want 60/30", out[1].TargetPts, out[1].StopPts)
	}

	// Unequal lengths cross-produce.
	crossed := base
	crossed.TargetPtsList = []float64{30, 60, 90}
	crossed.StopPtsList = []float64{15, 30}
	out = Expand(crossed, nil)
	if len(out) != 6 {
		t.Fatalf("crossed expansion = %d scenarios, want 6", len(out))
	}
}

func TestExpandDirectionsAndTrend(t *testing.T) {
	bullish := domain.DirectionBullish
	bearish := domain.DirectionBearish
	out := Expand(Params{
		EntryTimeStarts: []string{"09:30:00"},
		EntryTimeEnds:   []string{"10:00:00"},
		TradeEndTimes:   []string{"16:00:00"},
		TargetPtsList:   []float64{30},
		StopPtsList:     []float64{15},
		Directions:      []*domain.Direction{nil, &bullish, &bearish},
		YearStart:       2023,
		YearEnd:         2023,
		TrendEnabled:    true,
		TrendTimeframe:  domain.Timeframe15m,
		TrendPeriod:     20,
		TrendType:       "sma",
		TrendStrict:     true,
	}, nil)

	if len(out) != 3 {
		t.Fatalf("expanded %d scenarios, want 3", len(out))
	}
	if out[0].Direction != nil {
		t.Errorf("scenario 0 direction = %v, want nil", *out[0].Direction)
	}
	if out[1].Direction == nil || *out[1].Direction != bullish {
		t.Error("scenario 1 expected bullish direction")
	}
	for i, sp := range out {
		if !sp.TrendEnabled || sp.TrendTimeframe != domain.Timeframe15m || sp.TrendPeriod != 20 {
			t.Errorf("scenario %d missing trend settings", i)
		}
	}
}

func TestExpandSkipsUnparseableTimes(t *testing.T) {
	out := Expand(Params{
		EntryTimeStarts: []string{"not-a-time", "09:30:00"},
		EntryTimeEnds:   []string{"10:00:00"},
		TradeEndTimes:   []string{"16:00:00"},
		TargetPtsList:   []float64{30},
		StopPtsList:     []float64{15},
		Directions:      []*domain.Direction{nil},
		YearStart:       2023,
		YearEnd:         2023,
	}, nil)

	if len(out) != 1 {
		t.Fatalf("expanded %d scenarios, want 1", len(out))
	}
}
