package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"tradesim/internal/simulation"

	_ "github.com/mattn/go-sqlite3"
)

// upsertTrade keeps the original rowid so Trades returns placement order.
const upsertTrade = `
	INSERT INTO trades (id, run_id, market, strategy, state, data, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		state = excluded.state, data = excluded.data, updated_at = excluded.updated_at`

// Journal persists simulated trades to SQLite for analysis and audit.
// Each trade is stored as its JSON record, keyed by trade ID.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

func stateName(t *simulation.Trade) string {
	switch t.State().(type) {
	case simulation.Pending:
		return "pending"
	case simulation.Open:
		return "open"
	default:
		return "closed"
	}
}

// RecordTrade upserts the current record of a trade under runID.
func (j *Journal) RecordTrade(ctx context.Context, runID string, t *simulation.Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("journal marshal %s: %w", t.ID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.db.ExecContext(ctx, upsertTrade,
		t.ID, runID, t.Market, t.Strategy, stateName(t), string(data), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal insert %s: %w", t.ID, err)
	}
	return nil
}

// RecordTrades upserts a set of trades in one transaction.
func (j *Journal) RecordTrades(ctx context.Context, runID string, trades []*simulation.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	now := time.Now().UnixNano()
	for _, t := range trades {
		data, err := json.Marshal(t)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("journal marshal %s: %w", t.ID, err)
		}
		if _, err := tx.ExecContext(ctx, upsertTrade,
			t.ID, runID, t.Market, t.Strategy, stateName(t), string(data), now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("journal insert %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// Trades loads the trades recorded under runID, optionally for one market
// (empty = all), in insertion order.
func (j *Journal) Trades(ctx context.Context, runID, market string) ([]*simulation.Trade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT data FROM trades
		 WHERE run_id = ? AND (? = '' OR market = ?)
		 ORDER BY rowid ASC`, runID, market, market)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var trades []*simulation.Trade
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		t := new(simulation.Trade)
		if err := json.Unmarshal([]byte(data), t); err != nil {
			return nil, fmt.Errorf("journal decode: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Runs lists the distinct run IDs in the journal.
func (j *Journal) Runs(ctx context.Context) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx, `SELECT run_id FROM trades GROUP BY run_id ORDER BY MIN(updated_at)`)
	if err != nil {
		return nil, fmt.Errorf("journal query runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("journal scan runs: %w", err)
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
