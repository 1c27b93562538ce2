package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
// Used by tests and the --use-memory mode; candles are loaded once via
// Load and only read afterwards.
type CandleStore struct {
	mu      sync.RWMutex
	candles []domain.Candle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{}
}

// Load replaces the stored candles, sorted by timestamp ASC.
func (s *CandleStore) Load(candles []domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.candles = make([]domain.Candle, len(candles))
	copy(s.candles, candles)
	sort.Slice(s.candles, func(i, j int) bool {
		return s.candles[i].Timestamp.Before(s.candles[j].Timestamp)
	})
}

// FetchCandles retrieves candles for the given timeframes within
// [start, end] inclusive, ordered by timestamp ASC.
func (s *CandleStore) FetchCandles(_ context.Context, timeframes []string, start, end time.Time) ([]domain.Candle, error) {
	want := make(map[string]struct{}, len(timeframes))
	for _, tf := range timeframes {
		want[tf] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Candle
	for _, c := range s.candles {
		if c.Timestamp.Before(start) || c.Timestamp.After(end) {
			continue
		}
		if _, ok := want[c.Timeframe]; !ok {
			continue
		}
		result = append(result, c)
	}
	return result, nil
}

// FetchPathCandles retrieves the 1m forward window after entryTS on the
// entry's trading day, up to and including the cutoff clock time.
func (s *CandleStore) FetchPathCandles(_ context.Context, entryTS time.Time, cutoff domain.Clock) ([]domain.Candle, error) {
	cutoffAt := cutoff.OnDate(entryTS, entryTS.Location())

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Candle
	for _, c := range s.candles {
		if c.Timeframe != domain.Timeframe1m {
			continue
		}
		if !c.Timestamp.After(entryTS) || c.Timestamp.After(cutoffAt) {
			continue
		}
		result = append(result, c)
	}
	return result, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
