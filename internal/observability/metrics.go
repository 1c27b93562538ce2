// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Run metrics
	RunsSubmitted prometheus.Counter
	RunsFinished  *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	RunsInflight  prometheus.Gauge

	// Scenario metrics
	ScenariosProcessed *prometheus.CounterVec
	ScenarioDuration   *prometheus.HistogramVec
	ScenariosInflight  prometheus.Gauge
	ResultRowsWritten  prometheus.Counter
	TradesSimulated    prometheus.Counter

	// Queue metrics
	RunsEnqueued prometheus.Counter
	RunsDequeued prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "backtest_lab"
	}

	return &Metrics{
		RunsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "submitted_total",
			Help:      "Total number of runs submitted",
		}),
		RunsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "finished_total",
			Help:      "Total number of runs finished by terminal status",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Wall time from run start to terminal status",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		RunsInflight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "inflight",
			Help:      "Number of runs currently executing",
		}),

		ScenariosProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scenarios",
			Name:      "processed_total",
			Help:      "Total number of scenarios processed by outcome",
		}, []string{"strategy_type", "status"}),
		ScenarioDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scenarios",
			Name:      "duration_seconds",
			Help:      "Scenario execution duration by strategy type",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"strategy_type"}),
		ScenariosInflight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scenarios",
			Name:      "inflight",
			Help:      "Number of scenarios currently executing",
		}),
		ResultRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scenarios",
			Name:      "result_rows_written_total",
			Help:      "Total number of result rows persisted",
		}),
		TradesSimulated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scenarios",
			Name:      "trades_simulated_total",
			Help:      "Total number of trades resolved by the simulator",
		}),

		RunsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "runs_enqueued_total",
			Help:      "Total number of runs published to the queue",
		}),
		RunsDequeued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "runs_dequeued_total",
			Help:      "Total number of runs consumed from the queue",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration by database and operation",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordScenario records one processed scenario.
func (m *Metrics) RecordScenario(strategyType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ScenariosProcessed.WithLabelValues(strategyType, status).Inc()
	m.ScenarioDuration.WithLabelValues(strategyType).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
