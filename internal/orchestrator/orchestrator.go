// Package orchestrator executes runs: it loads a run's scenarios,
// dispatches them to strategy runners in bounded-concurrency batches,
// persists results and drives the run and scenario status machine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/storage"
	"backtest-lab/internal/strategy"
)

// DefaultMaxParallel bounds how many scenarios execute concurrently
// within a batch.
const DefaultMaxParallel = 5

// ErrNoScenarios is returned when a run has nothing to execute. An
// empty run fails rather than completing vacuously.
var ErrNoScenarios = errors.New("run has no scenarios")

// RunnerResolver selects a runner for a scenario. *strategy.Router is
// the production implementation.
type RunnerResolver interface {
	ForScenario(sc *domain.Scenario) (strategy.Runner, error)
}

// Options configures an Orchestrator.
type Options struct {
	Runs      storage.RunStore
	Scenarios storage.ScenarioStore
	Results   storage.ResultStore
	Router    RunnerResolver
	Logger    *zap.Logger
	Metrics   *observability.Metrics // optional

	// MaxParallel is the batch size; 0 means DefaultMaxParallel.
	MaxParallel int

	// GroupingTypes are executed once each per scenario; empty means
	// a single hierarchical pass.
	GroupingTypes []string
}

// Orchestrator coordinates run execution.
type Orchestrator struct {
	runs      storage.RunStore
	scenarios storage.ScenarioStore
	results   storage.ResultStore
	router    RunnerResolver
	log       *zap.Logger
	metrics   *observability.Metrics

	maxParallel   int
	groupingTypes []string
}

// New creates an Orchestrator from Options, applying defaults.
func New(opts Options) *Orchestrator {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if len(opts.GroupingTypes) == 0 {
		opts.GroupingTypes = []string{strategy.GroupingHierarchical}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		runs:          opts.Runs,
		scenarios:     opts.Scenarios,
		results:       opts.Results,
		router:        opts.Router,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		maxParallel:   opts.MaxParallel,
		groupingTypes: opts.GroupingTypes,
	}
}

// outcome is the contained result of one scenario execution; errors
// never escape the batch loop.
type outcome struct {
	scenarioID uuid.UUID
	ok         bool
	err        error
}

// Execute runs every scenario of a run in batches of maxParallel and
// settles the run's terminal status. Per-scenario failures are recorded
// on the scenario row and counted; only run-level faults (missing run,
// a store failure on the run row itself) return an error.
func (o *Orchestrator) Execute(ctx context.Context, runID uuid.UUID) error {
	started := time.Now()

	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if err := o.runs.SetStarted(ctx, runID, started.UTC()); err != nil {
		return fmt.Errorf("mark run started: %w", err)
	}
	if o.metrics != nil {
		o.metrics.RunsInflight.Inc()
		defer o.metrics.RunsInflight.Dec()
	}

	scenarios, err := o.scenarios.GetByRunID(ctx, runID)
	if err != nil {
		return o.abortRun(ctx, runID, fmt.Errorf("load scenarios: %w", err))
	}
	if len(scenarios) == 0 {
		o.log.Warn("run has no scenarios", zap.String("run_id", runID.String()))
		if err := o.runs.SetFinished(ctx, runID, domain.StatusFailed, time.Now().UTC()); err != nil {
			return fmt.Errorf("mark empty run failed: %w", err)
		}
		return ErrNoScenarios
	}

	o.log.Info("run started",
		zap.String("run_id", runID.String()),
		zap.String("strategy_type", run.StrategyType),
		zap.Int("scenarios", len(scenarios)),
		zap.Int("max_parallel", o.maxParallel))

	processed, failures := 0, 0
	for start := 0; start < len(scenarios); start += o.maxParallel {
		end := start + o.maxParallel
		if end > len(scenarios) {
			end = len(scenarios)
		}
		batch := scenarios[start:end]

		outcomes := make([]outcome, len(batch))
		var wg sync.WaitGroup
		for i, sc := range batch {
			wg.Add(1)
			go func(i int, sc *domain.Scenario) {
				defer wg.Done()
				outcomes[i] = o.executeScenario(ctx, sc)
			}(i, sc)
		}
		wg.Wait()

		for _, out := range outcomes {
			processed++
			if !out.ok {
				failures++
				o.log.Warn("scenario failed",
					zap.String("run_id", runID.String()),
					zap.String("scenario_id", out.scenarioID.String()),
					zap.Error(out.err))
			}
		}

		// Progress lands in its own short write after each batch so
		// pollers see it mid-run.
		if err := o.runs.UpdateProgress(ctx, runID, processed); err != nil {
			return o.abortRun(ctx, runID, fmt.Errorf("update progress: %w", err))
		}
	}

	// Re-read before the terminal write: a cancellation that arrived
	// mid-run wins over the computed status.
	cur, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("reload run: %w", err)
	}
	if cur.Status == domain.StatusCancelled {
		o.log.Info("run cancelled mid-flight", zap.String("run_id", runID.String()))
		return nil
	}

	status := domain.StatusCompleted
	if failures > 0 || processed != len(scenarios) {
		status = domain.StatusFailed
	}
	if err := o.runs.SetFinished(ctx, runID, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark run finished: %w", err)
	}
	if o.metrics != nil {
		o.metrics.RunsFinished.WithLabelValues(string(status)).Inc()
		o.metrics.RunDuration.Observe(time.Since(started).Seconds())
	}

	o.log.Info("run finished",
		zap.String("run_id", runID.String()),
		zap.String("status", string(status)),
		zap.Int("processed", processed),
		zap.Int("failures", failures),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// abortRun settles a run as failed when a run-level store error stops
// execution mid-flight, so the run does not linger in running. Best
// effort: a cancellation that already landed wins, and a failing
// terminal write is only logged since cause is the error to surface.
func (o *Orchestrator) abortRun(ctx context.Context, runID uuid.UUID, cause error) error {
	if cur, err := o.runs.GetByID(ctx, runID); err == nil && cur.Status == domain.StatusCancelled {
		return cause
	}
	if err := o.runs.SetFinished(ctx, runID, domain.StatusFailed, time.Now().UTC()); err != nil {
		o.log.Error("mark run failed",
			zap.String("run_id", runID.String()), zap.Error(err))
	}
	return cause
}

// executeScenario runs one scenario in isolation: mark running, route,
// run every requested grouping, persist the accumulated rows in a
// single batch write, mark completed. Any error fails this scenario
// only.
func (o *Orchestrator) executeScenario(ctx context.Context, sc *domain.Scenario) outcome {
	started := time.Now()
	if o.metrics != nil {
		o.metrics.ScenariosInflight.Inc()
		defer o.metrics.ScenariosInflight.Dec()
	}

	fail := func(err error) outcome {
		if uerr := o.scenarios.UpdateStatus(ctx, sc.ID, domain.StatusFailed, err.Error()); uerr != nil {
			o.log.Error("mark scenario failed",
				zap.String("scenario_id", sc.ID.String()), zap.Error(uerr))
		}
		if o.metrics != nil {
			o.metrics.RecordScenario(sc.StrategyType, string(domain.StatusFailed), time.Since(started).Seconds())
		}
		return outcome{scenarioID: sc.ID, err: err}
	}

	if err := o.scenarios.UpdateStatus(ctx, sc.ID, domain.StatusRunning, ""); err != nil {
		return fail(fmt.Errorf("mark running: %w", err))
	}

	runner, err := o.router.ForScenario(sc)
	if err != nil {
		return fail(err)
	}

	var rows []*domain.Result
	for _, grouping := range o.groupingTypes {
		out, err := runner.Run(ctx, sc, grouping)
		if err != nil {
			return fail(fmt.Errorf("grouping %s: %w", grouping, err))
		}
		rows = append(rows, out...)
	}

	if err := o.results.InsertBatch(ctx, rows); err != nil {
		return fail(fmt.Errorf("save results: %w", err))
	}

	// A cancellation racing an in-flight scenario must not flip the
	// scenario back from cancelled to completed. Its results may still
	// land; that is acceptable.
	cur, err := o.scenarios.GetByID(ctx, sc.ID)
	if err != nil {
		return fail(fmt.Errorf("reload scenario: %w", err))
	}
	if cur.Status == domain.StatusCancelled {
		return outcome{scenarioID: sc.ID, ok: true}
	}

	if err := o.scenarios.UpdateStatus(ctx, sc.ID, domain.StatusCompleted, ""); err != nil {
		return fail(fmt.Errorf("mark completed: %w", err))
	}
	if o.metrics != nil {
		o.metrics.RecordScenario(sc.StrategyType, string(domain.StatusCompleted), time.Since(started).Seconds())
		o.metrics.ResultRowsWritten.Add(float64(len(rows)))
	}
	return outcome{scenarioID: sc.ID, ok: true}
}

// Cancel marks a run and its unfinished scenarios cancelled. Valid only
// while the run is pending or running.
func (o *Orchestrator) Cancel(ctx context.Context, runID uuid.UUID) error {
	if err := o.runs.Cancel(ctx, runID); err != nil {
		return err
	}
	n, err := o.scenarios.CancelPending(ctx, runID)
	if err != nil {
		return fmt.Errorf("cancel scenarios: %w", err)
	}
	o.log.Info("run cancelled",
		zap.String("run_id", runID.String()),
		zap.Int("scenarios_cancelled", n))
	return nil
}
