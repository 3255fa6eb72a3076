package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"tradesim/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to stored candle series.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles reads the candles of one market and timeframe, ordered by
// open time ascending. fromTime/toTime bound the open time, 0 = unbounded.
func (r *Reader) ReadCandles(ctx context.Context, market string, tf model.Timeframe, fromTime, toTime int64) ([]model.Candle, error) {
	query := `
		SELECT open_time, close_time, open, high, low, close
		FROM candles
		WHERE market = ? AND timeframe = ? AND open_time >= ?`
	args := []any{market, tf.String(), fromTime}
	if toTime > 0 {
		query += ` AND open_time < ?`
		args = append(args, toTime)
	}
	query += ` ORDER BY open_time ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		c := model.Candle{Timeframe: tf, IsComplete: true}
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Markets lists the markets with at least one stored candle.
func (r *Reader) Markets(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT market FROM candles ORDER BY market`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query markets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("sqlite scan markets: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Timeframes lists the timeframes stored for market, lowest first.
func (r *Reader) Timeframes(ctx context.Context, market string) ([]model.Timeframe, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT timeframe FROM candles WHERE market = ?`, market)
	if err != nil {
		return nil, fmt.Errorf("sqlite query timeframes: %w", err)
	}
	defer rows.Close()

	var out []model.Timeframe
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite scan timeframes: %w", err)
		}
		tf, err := model.ParseTimeframe(name)
		if err != nil {
			return nil, fmt.Errorf("sqlite timeframes %s: %w", market, err)
		}
		out = append(out, tf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return model.SortTimeframes(out), nil
}

// Close closes the database.
func (r *Reader) Close() error { return r.db.Close() }

var _ model.CandleReader = (*Reader)(nil)
var _ model.CandleWriter = (*Writer)(nil)
