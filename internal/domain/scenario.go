package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Strategy type constants. The tag routes a scenario to its runner.
const (
	StrategyTypeStandard  = "standard"
	StrategyTypeIFVG      = "ifvg"
	StrategyTypeScorecard = "daily_scorecard"
)

// Status of a run or scenario. Transitions:
// pending -> running -> {completed, failed, cancelled};
// cancelled is additionally reachable from pending.
type Status string

// Status constants.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Cancellable reports whether a cancel request is valid from this state.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusRunning
}

// MaxErrorLen bounds the error text captured on a failed scenario.
const MaxErrorLen = 500

// TruncateError bounds an error message for persistence.
func TruncateError(msg string) string {
	if len(msg) > MaxErrorLen {
		return msg[:MaxErrorLen]
	}
	return msg
}

// Run is a batch of scenarios submitted and executed together. Status
// is the single source of truth for whether the run is still
// actionable; only pending/running runs may be cancelled.
type Run struct {
	ID                 uuid.UUID
	Status             Status
	StrategyType       string
	TotalScenarios     int
	CompletedScenarios int // processed (succeeded+failed), monotonic
	CreatedAt          time.Time
	StartedAt          *time.Time
	FinishedAt         *time.Time
}

// Scenario is one immutable backtest parameter set owned by a run.
// Exactly one params variant matching StrategyType is populated;
// validation happens once at the creation boundary.
type Scenario struct {
	ID           uuid.UUID
	RunID        uuid.UUID
	StrategyType string
	Params       ScenarioParams
	Status       Status
	Error        string
	CreatedAt    time.Time
}

// ScenarioParams is the tagged union of per-strategy parameter sets.
type ScenarioParams struct {
	Standard  *StandardParams  `json:"standard,omitempty"`
	IFVG      *IFVGParams      `json:"ifvg,omitempty"`
	Scorecard *ScorecardParams `json:"scorecard,omitempty"`
}

// StandardParams configures the time/price-window strategy.
type StandardParams struct {
	EntryTimeStart string     `json:"entry_time_start"`
	EntryTimeEnd   string     `json:"entry_time_end"`
	TradeEndTime   string     `json:"trade_end_time"`
	EntryTimeframe string     `json:"entry_timeframe"`
	TargetPts      float64    `json:"target_pts"`
	StopPts        float64    `json:"stop_pts"`
	Direction      *Direction `json:"direction,omitempty"`
	YearStart      int        `json:"year_start"`
	YearEnd        int        `json:"year_end"`

	// Optional moving-average trend filter.
	TrendEnabled   bool   `json:"trend_enabled,omitempty"`
	TrendTimeframe string `json:"trend_timeframe,omitempty"`
	TrendPeriod    int    `json:"trend_period,omitempty"`
	TrendType      string `json:"trend_type,omitempty"` // "sma" or "ema"
	TrendStrict    bool   `json:"trend_strict,omitempty"`
}

// IFVGParams configures the FVG-inversion strategy.
type IFVGParams struct {
	FVGTimeframe   string   `json:"fvg_timeframe"`
	EntryTimeframe string   `json:"entry_timeframe"`
	WaitCandles    int      `json:"wait_candles"`
	UseAdaptiveRR  bool     `json:"use_adaptive_rr"`
	TargetPts      *float64 `json:"target_pts,omitempty"` // fixed mode
	StopPts        *float64 `json:"stop_pts,omitempty"`   // fixed mode
	ExtraMarginPts float64  `json:"extra_margin_pts"`
	RRMultiple     float64  `json:"rr_multiple"`
	CutoffTime     string   `json:"cutoff_time"`

	// Date range: DateStart/DateEnd take precedence over years.
	YearStart *int   `json:"year_start,omitempty"`
	YearEnd   *int   `json:"year_end,omitempty"`
	DateStart string `json:"date_start,omitempty"` // YYYY-MM-DD
	DateEnd   string `json:"date_end,omitempty"`

	// Optional entry time-of-day filter.
	TimeStart string `json:"time_start,omitempty"`
	TimeEnd   string `json:"time_end,omitempty"`

	// Optional liquidity filter.
	LiquidityEnabled   bool    `json:"liquidity_enabled,omitempty"`
	LiquidityTimeframe string  `json:"liquidity_timeframe,omitempty"`
	SwingLookback      int     `json:"swing_lookback,omitempty"`
	TolerancePts       float64 `json:"tolerance_pts,omitempty"`
}

// ScorecardParams configures the weekly/daily descriptive-statistics
// runner.
type ScorecardParams struct {
	YearStart    int `json:"year_start"`
	YearEnd      int `json:"year_end"`
	CalendarWeek int `json:"calendar_week"` // ISO week 1-53; 0 means current
}

// Validation errors surfaced at the scenario-creation boundary.
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrParamsMismatch      = errors.New("params variant does not match strategy type")
	ErrMissingDateRange    = errors.New("either a date range or a year range is required")
)

// ApplyDefaults fills zero-valued optional fields with the documented
// defaults for the scenario's strategy type.
func (s *Scenario) ApplyDefaults() {
	if s.StrategyType == "" {
		s.StrategyType = StrategyTypeStandard
	}
	switch s.StrategyType {
	case StrategyTypeStandard:
		if p := s.Params.Standard; p != nil {
			if p.TradeEndTime == "" {
				p.TradeEndTime = "16:00:00"
			}
			if p.EntryTimeframe == "" {
				p.EntryTimeframe = Timeframe5m
			}
			if p.TrendEnabled {
				if p.TrendTimeframe == "" {
					p.TrendTimeframe = Timeframe15m
				}
				if p.TrendPeriod == 0 {
					p.TrendPeriod = 20
				}
				if p.TrendType == "" {
					p.TrendType = "sma"
				}
			}
		}
	case StrategyTypeIFVG:
		if p := s.Params.IFVG; p != nil {
			if p.FVGTimeframe == "" {
				p.FVGTimeframe = Timeframe5m
			}
			if p.EntryTimeframe == "" {
				p.EntryTimeframe = Timeframe1m
			}
			if p.WaitCandles == 0 {
				p.WaitCandles = 24
			}
			if p.ExtraMarginPts == 0 {
				p.ExtraMarginPts = 5.0
			}
			if p.RRMultiple == 0 {
				p.RRMultiple = 2.0
			}
			if p.CutoffTime == "" {
				p.CutoffTime = "16:00:00"
			}
			if p.LiquidityEnabled {
				if p.SwingLookback == 0 {
					p.SwingLookback = 5
				}
				if p.TolerancePts == 0 {
					p.TolerancePts = 5.0
				}
			}
		}
	}
}

// Validate checks that exactly the variant matching StrategyType is
// populated and that its required fields are coherent. Called once at
// the creation boundary; runners can assume validated params.
func (s *Scenario) Validate() error {
	switch s.StrategyType {
	case StrategyTypeStandard:
		p := s.Params.Standard
		if p == nil {
			return ErrParamsMismatch
		}
		return p.validate()
	case StrategyTypeIFVG:
		p := s.Params.IFVG
		if p == nil {
			return ErrParamsMismatch
		}
		return p.validate()
	case StrategyTypeScorecard:
		p := s.Params.Scorecard
		if p == nil {
			return ErrParamsMismatch
		}
		return p.validate()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategyType, s.StrategyType)
	}
}

func (p *StandardParams) validate() error {
	start, err := ParseClock(p.EntryTimeStart)
	if err != nil {
		return err
	}
	end, err := ParseClock(p.EntryTimeEnd)
	if err != nil {
		return err
	}
	if end < start {
		return fmt.Errorf("entry_time_end %s before entry_time_start %s", p.EntryTimeEnd, p.EntryTimeStart)
	}
	tradeEnd, err := ParseClock(p.TradeEndTime)
	if err != nil {
		return err
	}
	if tradeEnd < end {
		return fmt.Errorf("trade_end_time %s before entry_time_end %s", p.TradeEndTime, p.EntryTimeEnd)
	}
	if p.TargetPts <= 0 || p.StopPts <= 0 {
		return errors.New("target_pts and stop_pts must be positive")
	}
	if p.Direction != nil && !p.Direction.Valid() {
		return fmt.Errorf("invalid direction %q", *p.Direction)
	}
	if p.YearStart == 0 || p.YearEnd == 0 || p.YearEnd < p.YearStart {
		return errors.New("invalid year range")
	}
	if !ValidTimeframe(p.EntryTimeframe) {
		return fmt.Errorf("invalid entry_timeframe %q", p.EntryTimeframe)
	}
	if p.TrendEnabled && p.TrendType != "sma" && p.TrendType != "ema" {
		return fmt.Errorf("invalid trend_type %q", p.TrendType)
	}
	return nil
}

func (p *IFVGParams) validate() error {
	if !ValidTimeframe(p.FVGTimeframe) || !ValidTimeframe(p.EntryTimeframe) {
		return fmt.Errorf("invalid timeframe %q/%q", p.FVGTimeframe, p.EntryTimeframe)
	}
	if p.WaitCandles < 1 {
		return errors.New("wait_candles must be at least 1")
	}
	if !p.UseAdaptiveRR {
		if p.TargetPts == nil || p.StopPts == nil || *p.TargetPts <= 0 || *p.StopPts <= 0 {
			return errors.New("fixed risk-reward requires positive target_pts and stop_pts")
		}
	}
	if _, err := ParseClock(p.CutoffTime); err != nil {
		return err
	}
	hasDates := p.DateStart != "" && p.DateEnd != ""
	hasYears := p.YearStart != nil && p.YearEnd != nil
	if !hasDates && !hasYears {
		return ErrMissingDateRange
	}
	if hasDates {
		if _, err := time.Parse("2006-01-02", p.DateStart); err != nil {
			return fmt.Errorf("parse date_start: %w", err)
		}
		if _, err := time.Parse("2006-01-02", p.DateEnd); err != nil {
			return fmt.Errorf("parse date_end: %w", err)
		}
	}
	if p.TimeStart != "" {
		if _, err := ParseClock(p.TimeStart); err != nil {
			return err
		}
	}
	if p.TimeEnd != "" {
		if _, err := ParseClock(p.TimeEnd); err != nil {
			return err
		}
	}
	if p.LiquidityEnabled {
		if !ValidTimeframe(p.LiquidityTimeframe) {
			return fmt.Errorf("invalid liquidity_timeframe %q", p.LiquidityTimeframe)
		}
		if p.SwingLookback < 1 || p.SwingLookback > 50 {
			return errors.New("swing_lookback must be in [1, 50]")
		}
		if p.TolerancePts < 0 {
			return errors.New("tolerance_pts must not be negative")
		}
	}
	return nil
}

func (p *ScorecardParams) validate() error {
	if p.YearStart == 0 || p.YearEnd == 0 || p.YearEnd < p.YearStart {
		return errors.New("invalid year range")
	}
	if p.CalendarWeek < 0 || p.CalendarWeek > 53 {
		return errors.New("calendar_week must be in [1, 53], or 0 for the current week")
	}
	return nil
}
