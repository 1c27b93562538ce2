package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned when enqueueing to a closed queue.
var ErrClosed = errors.New("queue closed")

// memoryQueueBuffer bounds pending runs in memory mode.
const memoryQueueBuffer = 64

// MemoryQueue is an in-process channel queue. One goroutine drains the
// channel and invokes the handler sequentially.
type MemoryQueue struct {
	mu     sync.Mutex
	ch     chan uuid.UUID
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewMemory creates an in-process queue.
func NewMemory() *MemoryQueue {
	return &MemoryQueue{
		ch:   make(chan uuid.UUID, memoryQueueBuffer),
		done: make(chan struct{}),
	}
}

// Enqueue places a run on the channel. Blocks when the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, runID uuid.UUID) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case q.ch <- runID:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe starts the drain goroutine.
func (q *MemoryQueue) Subscribe(handler Handler) error {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case runID := <-q.ch:
				handler(context.Background(), runID)
			case <-q.done:
				return
			}
		}
	}()
	return nil
}

// Close stops delivery. Runs still buffered are dropped.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()
	q.wg.Wait()
}

var _ Queue = (*MemoryQueue)(nil)
