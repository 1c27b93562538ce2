package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryQueueDelivers(t *testing.T) {
	q := NewMemory()
	defer q.Close()

	var mu sync.Mutex
	var got []uuid.UUID
	delivered := make(chan struct{}, 3)
	if err := q.Subscribe(func(_ context.Context, runID uuid.UUID) {
		mu.Lock()
		got = append(got, runID)
		mu.Unlock()
		delivered <- struct{}{}
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	want := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range want {
		if err := q.Enqueue(context.Background(), id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	for range want {
		select {
		case <-delivered:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("delivered %d runs, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i] != id {
			t.Errorf("delivery %d = %s, want %s (order must be FIFO)", i, got[i], id)
		}
	}
}

func TestMemoryQueueClosed(t *testing.T) {
	q := NewMemory()
	q.Close()

	if err := q.Enqueue(context.Background(), uuid.New()); err != ErrClosed {
		t.Fatalf("enqueue after close = %v, want ErrClosed", err)
	}
	// Second close is a no-op.
	q.Close()
}
