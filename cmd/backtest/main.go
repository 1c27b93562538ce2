// Package main runs a single scenario from the command line, without
// the server or the queue. Candles come either from ClickHouse or from
// a CSV file loaded into the in-memory store.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/logging"
	"backtest-lab/internal/storage"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/strategy"
)

func main() {
	strategyType := flag.String("strategy", domain.StrategyTypeStandard,
		"Strategy: standard, ifvg, daily_scorecard")
	paramsJSON := flag.String("params", "", "Scenario parameters as JSON (required)")
	grouping := flag.String("grouping", strategy.GroupingHierarchical,
		"Grouping: hierarchical, by_year, by_dow, by_candle")
	candlesCSV := flag.String("candles-csv", "", "Load candles from a CSV file (timestamp,timeframe,open,high,low,close)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	timezone := flag.String("timezone", "America/New_York", "Venue timezone")
	outputJSON := flag.Bool("json", false, "Output results as JSON")
	tradesOut := flag.String("trades", "", "Write individual trades to this CSV file")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	log, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *paramsJSON == "" {
		log.Fatal("--params is required")
	}
	if *candlesCSV == "" && *clickhouseDSN == "" {
		log.Fatal("either --candles-csv or --clickhouse-dsn is required")
	}

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		log.Fatal("load timezone", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc, err := buildScenario(*strategyType, *paramsJSON)
	if err != nil {
		log.Fatal("invalid scenario", zap.Error(err))
	}

	candles, cleanup, err := createCandleStore(ctx, *candlesCSV, *clickhouseDSN, loc)
	if err != nil {
		log.Fatal("candle store", zap.Error(err))
	}
	defer cleanup()

	router := strategy.NewRouter(candles, loc, log)
	runner, err := router.ForScenario(sc)
	if err != nil {
		log.Fatal("resolve runner", zap.Error(err))
	}

	results, err := runner.Run(ctx, sc, *grouping)
	if err != nil {
		log.Fatal("run scenario", zap.Error(err))
	}

	if *tradesOut != "" {
		if err := writeTrades(ctx, *tradesOut, runner, sc); err != nil {
			log.Fatal("write trades", zap.Error(err))
		}
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			log.Fatal("encode results", zap.Error(err))
		}
		return
	}
	printResults(results)
}

// buildScenario parses the params JSON into the variant matching the
// strategy type and validates it.
func buildScenario(strategyType, paramsJSON string) (*domain.Scenario, error) {
	sc := &domain.Scenario{
		ID:           uuid.New(),
		RunID:        uuid.New(),
		StrategyType: strategyType,
		Status:       domain.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	raw := []byte(paramsJSON)
	switch strategyType {
	case domain.StrategyTypeStandard:
		var p domain.StandardParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		sc.Params.Standard = &p
	case domain.StrategyTypeIFVG:
		var p domain.IFVGParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		sc.Params.IFVG = &p
	case domain.StrategyTypeScorecard:
		var p domain.ScorecardParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		sc.Params.Scorecard = &p
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategyType, strategyType)
	}

	sc.ApplyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func createCandleStore(ctx context.Context, csvPath, dsn string, loc *time.Location) (storage.CandleStore, func(), error) {
	if csvPath != "" {
		candles, err := loadCandlesCSV(csvPath, loc)
		if err != nil {
			return nil, nil, err
		}
		store := memory.NewCandleStore()
		store.Load(candles)
		return store, func() {}, nil
	}

	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse: %w", err)
	}
	return chstore.NewCandleStore(conn, loc), func() { conn.Close() }, nil
}

// loadCandlesCSV reads timestamp,timeframe,open,high,low,close rows.
// Timestamps are RFC3339 or "2006-01-02 15:04:05" in the venue
// timezone. A header row is skipped if present.
func loadCandlesCSV(path string, loc *time.Location) ([]domain.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	var candles []domain.Candle
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		line++
		if line == 1 && record[0] == "timestamp" {
			continue
		}

		ts, err := parseTimestamp(record[0], loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !domain.ValidTimeframe(record[1]) {
			return nil, fmt.Errorf("line %d: invalid timeframe %q", line, record[1])
		}

		var prices [4]float64
		for i, field := range record[2:6] {
			prices[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse price %q: %w", line, field, err)
			}
		}
		candles = append(candles, domain.Candle{
			Timestamp: ts,
			Timeframe: record[1],
			Open:      prices[0],
			High:      prices[1],
			Low:       prices[2],
			Close:     prices[3],
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s contains no candles", path)
	}
	return candles, nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.In(loc), nil
	}
	return time.ParseInLocation("2006-01-02 15:04:05", s, loc)
}

// writeTrades exports per-trade detail for the runners that expose it.
func writeTrades(ctx context.Context, path string, runner strategy.Runner, sc *domain.Scenario) error {
	var trades []domain.Trade
	var err error
	switch r := runner.(type) {
	case *strategy.StandardRunner:
		trades, err = r.Trades(ctx, sc)
	case *strategy.IFVGRunner:
		trades, err = r.Trades(ctx, sc)
	default:
		return fmt.Errorf("strategy %q does not expose individual trades", sc.StrategyType)
	}
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"entry_time", "direction", "entry_price", "stop_price",
		"target_price", "outcome", "exit_time", "exit_price", "target_pts", "stop_pts"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		exitTime, exitPrice := "", ""
		if t.ExitTime != nil {
			exitTime = t.ExitTime.Format(time.RFC3339)
		}
		if t.ExitPrice != nil {
			exitPrice = strconv.FormatFloat(*t.ExitPrice, 'f', -1, 64)
		}
		row := []string{
			t.EntryTime.Format(time.RFC3339),
			string(t.Direction),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.StopPrice, 'f', -1, 64),
			strconv.FormatFloat(t.TargetPrice, 'f', -1, 64),
			string(t.Outcome),
			exitTime,
			exitPrice,
			strconv.FormatFloat(t.TargetPts, 'f', -1, 64),
			strconv.FormatFloat(t.StopPts, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func printResults(results []*domain.Result) {
	if len(results) == 0 {
		fmt.Println("No results: the strategy found nothing in the data.")
		return
	}
	for _, r := range results {
		fmt.Println()
		fmt.Printf("=== %s %v ===\n", r.GroupLevel, r.Grouping)
		fmt.Printf("Trades:       %d (W %d / L %d / T %d)\n",
			r.Totals.Total, r.Totals.Wins, r.Totals.Losses, r.Totals.Timeouts)
		fmt.Printf("Win Rate:     %.2f%%\n", r.KPIs.WinRatePercent)
		fmt.Printf("R Ratio:      %.2f\n", r.KPIs.RRatio)
		fmt.Printf("Expectancy R: %.4f\n", r.KPIs.ExpectancyR)
		if r.KPIs.ProfitFactor.NoLosses {
			fmt.Println("ProfitFactor: - (no losses)")
		} else {
			fmt.Printf("ProfitFactor: %.4f\n", r.KPIs.ProfitFactor.Value)
		}
	}
}
