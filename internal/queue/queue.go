// Package queue decouples run submission from run execution. The API
// enqueues run IDs; a worker consumes them and hands each to the
// orchestrator.
package queue

import (
	"context"

	"github.com/google/uuid"
)

// Handler processes one dequeued run.
type Handler func(ctx context.Context, runID uuid.UUID)

// Queue is the submission transport. NATS JetStream backs the service
// deployment; the in-process channel queue backs memory mode and
// tests.
type Queue interface {
	// Enqueue publishes a run for execution.
	Enqueue(ctx context.Context, runID uuid.UUID) error

	// Subscribe starts delivering runs to the handler until Close.
	Subscribe(handler Handler) error

	// Close stops delivery and releases the transport.
	Close()
}

// runMessage is the wire payload.
type runMessage struct {
	RunID uuid.UUID `json:"run_id"`
}
