// Package sqlite stores candle series and simulated trades in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"tradesim/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 500
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath    string // path to SQLite database file, e.g. "data/tradesim.db"
	BatchSize int    // candles per transaction in Run, default 500
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db        *sql.DB
	batchSize int

	// OnCommit is called after each batch committed by Run (optional).
	OnCommit func(n int, d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, batchSize: batch}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			market     TEXT    NOT NULL,
			timeframe  TEXT    NOT NULL,
			open_time  INTEGER NOT NULL,
			close_time INTEGER NOT NULL,
			open       TEXT    NOT NULL,
			high       TEXT    NOT NULL,
			low        TEXT    NOT NULL,
			close      TEXT    NOT NULL,
			PRIMARY KEY (market, timeframe, open_time)
		);

		CREATE TABLE IF NOT EXISTS trades (
			id         TEXT    PRIMARY KEY,
			run_id     TEXT    NOT NULL,
			market     TEXT    NOT NULL,
			strategy   TEXT    NOT NULL DEFAULT '',
			state      TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, market);
	`)
	return err
}

// WriteCandles upserts candles of one market in a single transaction.
// Incomplete candles are skipped.
func (w *Writer) WriteCandles(ctx context.Context, market string, candles []model.Candle) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (market, timeframe, open_time, close_time, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if !c.IsComplete {
			continue
		}
		if _, err := stmt.ExecContext(ctx, market, c.Timeframe.String(), c.OpenTime, c.CloseTime,
			c.Open, c.High, c.Low, c.Close); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert %s %s@%d: %w", market, c.Timeframe, c.OpenTime, err)
		}
	}
	return tx.Commit()
}

// Run reads candles from candleCh and inserts them in batched transactions.
// Flushes every batch size candles OR every flush delay, whichever first.
// Blocks until ctx is cancelled or candleCh is closed, and returns the
// number of candles written.
func (w *Writer) Run(ctx context.Context, market string, candleCh <-chan model.Candle) (int, error) {
	batch := make([]model.Candle, 0, w.batchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()
	written := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		start := time.Now()
		// A cancelled ctx must not lose the tail of the batch.
		if err := w.WriteCandles(context.WithoutCancel(ctx), market, batch); err != nil {
			return err
		}
		elapsed := time.Since(start)
		log.Printf("[sqlite] committed %d %s candles in %v", len(batch), market, elapsed)
		if w.OnCommit != nil {
			w.OnCommit(len(batch), elapsed)
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			if err := flush(); err != nil {
				return written, err
			}
			return written, ctx.Err()

		case c, ok := <-candleCh:
			if !ok {
				return written, flush()
			}
			batch = append(batch, c)
			if len(batch) >= w.batchSize {
				if err := flush(); err != nil {
					return written, err
				}
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			if err := flush(); err != nil {
				return written, err
			}
			timer.Reset(defaultFlushDelay)
		}
	}
}

// Close closes the database.
func (w *Writer) Close() error { return w.db.Close() }
