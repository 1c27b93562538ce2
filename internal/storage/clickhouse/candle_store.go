package clickhouse

import (
	"context"
	"fmt"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse. Scanned
// timestamps are converted into the venue location so that clock-time
// comparisons in the strategy layer see venue-local wall time.
type CandleStore struct {
	conn *Conn
	loc  *time.Location
}

// NewCandleStore creates a new CandleStore. A nil location means UTC.
func NewCandleStore(conn *Conn, loc *time.Location) *CandleStore {
	if loc == nil {
		loc = time.UTC
	}
	return &CandleStore{conn: conn, loc: loc}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds candles in one batch. Used by data loaders and
// tests; the backtest path is read-only.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (timeframe, ts, open, high, low, close)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		if err := batch.Append(c.Timeframe, c.Timestamp, c.Open, c.High, c.Low, c.Close); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// FetchCandles retrieves candles for the given timeframes within
// [start, end] inclusive, ordered by timestamp ASC.
func (s *CandleStore) FetchCandles(ctx context.Context, timeframes []string, start, end time.Time) ([]domain.Candle, error) {
	query := `
		SELECT timeframe, ts, open, high, low, close
		FROM candles
		WHERE timeframe IN (?) AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, timeframe ASC
	`

	rows, err := s.conn.Query(ctx, query, timeframes, start, end)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	return s.scanCandles(rows)
}

// FetchPathCandles retrieves the 1m forward window for trade
// simulation: candles strictly after the entry timestamp, up to and
// including the cutoff clock time on the entry's trading day.
func (s *CandleStore) FetchPathCandles(ctx context.Context, entryTS time.Time, cutoff domain.Clock) ([]domain.Candle, error) {
	dayEnd := cutoff.OnDate(entryTS.In(s.loc), s.loc)

	query := `
		SELECT timeframe, ts, open, high, low, close
		FROM candles
		WHERE timeframe = ? AND ts > ? AND ts <= ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, domain.Timeframe1m, entryTS, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("query path candles: %w", err)
	}
	defer rows.Close()

	return s.scanCandles(rows)
}

type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func (s *CandleStore) scanCandles(rows chRows) ([]domain.Candle, error) {
	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Timeframe, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		c.Timestamp = c.Timestamp.In(s.loc)
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return candles, nil
}
