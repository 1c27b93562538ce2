package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"backtest-lab/internal/observability"
)

const (
	streamName  = "BACKTEST"
	runsSubject = "backtest.runs"
	durableName = "run_worker"
)

// NATSQueue is the JetStream-backed queue.
type NATSQueue struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	log     *zap.Logger
	metrics *observability.Metrics
	sub     *nats.Subscription
}

// NewNATS connects to NATS, ensures the run stream exists and returns
// the queue.
func NewNATS(url string, log *zap.Logger, metrics *observability.Metrics) (*NATSQueue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{runsSubject},
	}
	if _, err := js.AddStream(cfg); err != nil {
		if _, err := js.UpdateStream(cfg); err != nil {
			log.Warn("failed to create or update stream", zap.Error(err))
		}
	}

	return &NATSQueue{nc: nc, js: js, log: log, metrics: metrics}, nil
}

// Enqueue publishes a run ID to the stream.
func (q *NATSQueue) Enqueue(_ context.Context, runID uuid.UUID) error {
	data, err := json.Marshal(runMessage{RunID: runID})
	if err != nil {
		return fmt.Errorf("marshal run message: %w", err)
	}
	if _, err := q.js.Publish(runsSubject, data); err != nil {
		return fmt.Errorf("publish run: %w", err)
	}
	if q.metrics != nil {
		q.metrics.RunsEnqueued.Inc()
	}
	return nil
}

// Subscribe starts a durable consumer delivering runs to the handler.
// Messages are acked only after the handler returns, so a worker crash
// redelivers the run.
func (q *NATSQueue) Subscribe(handler Handler) error {
	sub, err := q.js.Subscribe(runsSubject, func(m *nats.Msg) {
		var msg runMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			q.log.Error("failed to unmarshal run message", zap.Error(err))
			_ = m.Term()
			return
		}
		if q.metrics != nil {
			q.metrics.RunsDequeued.Inc()
		}
		handler(context.Background(), msg.RunID)
		if err := m.Ack(); err != nil {
			q.log.Error("failed to ack run message", zap.Error(err))
		}
	}, nats.Durable(durableName), nats.ManualAck())
	if err != nil {
		return fmt.Errorf("subscribe runs: %w", err)
	}
	q.sub = sub
	return nil
}

// Close drains the subscription and closes the connection.
func (q *NATSQueue) Close() {
	if q.sub != nil {
		if err := q.sub.Drain(); err != nil {
			q.log.Warn("failed to drain subscription", zap.Error(err))
		}
	}
	q.nc.Close()
}

var _ Queue = (*NATSQueue)(nil)
