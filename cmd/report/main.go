// Package main generates a run report from storage: a markdown summary
// and a CSV of all result rows.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtest-lab/internal/config"
	"backtest-lab/internal/logging"
	"backtest-lab/internal/reporting"
	pgstore "backtest-lab/internal/storage/postgres"
)

func main() {
	runIDArg := flag.String("run-id", "", "Run ID to report on (required)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (defaults to config)")
	outputDir := flag.String("output-dir", "output", "Output directory")
	stdout := flag.Bool("stdout", false, "Print the markdown report instead of writing files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *runIDArg == "" {
		log.Fatal("--run-id is required")
	}
	runID, err := uuid.Parse(*runIDArg)
	if err != nil {
		log.Fatal("parse run id", zap.Error(err))
	}
	dsn := *postgresDSN
	if dsn == "" {
		dsn = cfg.PostgresDSN
	}

	ctx := context.Background()
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	gen := reporting.NewGenerator(
		pgstore.NewRunStore(pool),
		pgstore.NewScenarioStore(pool),
		pgstore.NewResultStore(pool),
	)
	report, err := gen.Generate(ctx, runID)
	if err != nil {
		log.Fatal("generate report", zap.Error(err))
	}

	markdown := reporting.RenderMarkdown(report)
	if *stdout {
		fmt.Print(markdown)
		return
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatal("create output dir", zap.Error(err))
	}
	mdPath := filepath.Join(*outputDir, fmt.Sprintf("run_%s.md", runID))
	csvPath := filepath.Join(*outputDir, fmt.Sprintf("run_%s.csv", runID))

	if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
		log.Fatal("write markdown", zap.Error(err))
	}
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(report.Results)), 0o644); err != nil {
		log.Fatal("write csv", zap.Error(err))
	}

	log.Info("report written",
		zap.String("markdown", mdPath),
		zap.String("csv", csvPath),
		zap.Int("result_rows", len(report.Results)))
}
