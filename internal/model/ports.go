package model

import "context"

// ── Storage Port Interfaces ──
// These decouple the simulation from the concrete candle store (SQLite).

// CandleReader loads historical candle series.
type CandleReader interface {
	// ReadCandles returns the complete candles of one market and timeframe,
	// ordered by open time ascending. fromTime/toTime bound the open time
	// (0 means unbounded).
	ReadCandles(ctx context.Context, market string, tf Timeframe, fromTime, toTime int64) ([]Candle, error)

	// Markets lists the markets with at least one stored candle.
	Markets(ctx context.Context) ([]string, error)

	// Close releases underlying resources.
	Close() error
}

// CandleWriter persists candle series.
type CandleWriter interface {
	// WriteCandles upserts candles for one market in a single transaction.
	WriteCandles(ctx context.Context, market string, candles []Candle) error

	// Close releases underlying resources.
	Close() error
}
