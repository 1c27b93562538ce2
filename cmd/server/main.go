// Package main runs the backtest service: the HTTP API for submitting
// and inspecting runs, plus the queue worker that executes them.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtest-lab/internal/api"
	"backtest-lab/internal/config"
	"backtest-lab/internal/logging"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/orchestrator"
	"backtest-lab/internal/queue"
	"backtest-lab/internal/storage"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/storage/migrations"
	pgstore "backtest-lab/internal/storage/postgres"
	"backtest-lab/internal/strategy"
)

const shutdownTimeout = 30 * time.Second

type stores struct {
	runs      storage.RunStore
	scenarios storage.ScenarioStore
	results   storage.ResultStore
	candles   storage.CandleStore
}

func main() {
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

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	st, cleanup, err := createStores(ctx, cfg, loc)
	if err != nil {
		return err
	}
	defer cleanup()

	metrics := observability.NewMetrics("")

	q, qCleanup, err := createQueue(cfg, log, metrics)
	if err != nil {
		return err
	}
	defer qCleanup()

	router := strategy.NewRouter(st.candles, loc, log.Named("strategy"))
	orch := orchestrator.New(orchestrator.Options{
		Runs:        st.runs,
		Scenarios:   st.scenarios,
		Results:     st.results,
		Router:      router,
		Logger:      log.Named("orchestrator"),
		Metrics:     metrics,
		MaxParallel: cfg.MaxParallel,
	})

	if err := q.Subscribe(func(msgCtx context.Context, runID uuid.UUID) {
		if err := orch.Execute(msgCtx, runID); err != nil {
			log.Error("run execution failed",
				zap.String("run_id", runID.String()), zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("subscribe worker: %w", err)
	}

	handler := api.NewHandler(api.Options{
		Runs:      st.runs,
		Scenarios: st.scenarios,
		Results:   st.results,
		Queue:     q,
		Metrics:   metrics,
		Logger:    log.Named("api"),
	})
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(handler),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}

// createStores wires either the database-backed stores (applying
// migrations first) or the in-memory set.
func createStores(ctx context.Context, cfg config.Config, loc *time.Location) (*stores, func(), error) {
	if cfg.UseMemory {
		return &stores{
			runs:      memory.NewRunStore(),
			scenarios: memory.NewScenarioStore(),
			results:   memory.NewResultStore(),
			candles:   memory.NewCandleStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	st := &stores{
		runs:      pgstore.NewRunStore(pool),
		scenarios: pgstore.NewScenarioStore(pool),
		results:   pgstore.NewResultStore(pool),
		candles:   chstore.NewCandleStore(chConn, loc),
	}
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return st, cleanup, nil
}

// createQueue wires NATS JetStream, or the in-process queue when
// running on memory stores.
func createQueue(cfg config.Config, log *zap.Logger, metrics *observability.Metrics) (queue.Queue, func(), error) {
	if cfg.UseMemory {
		q := queue.NewMemory()
		return q, q.Close, nil
	}
	q, err := queue.NewNATS(cfg.NatsURL, log.Named("queue"), metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	return q, q.Close, nil
}
