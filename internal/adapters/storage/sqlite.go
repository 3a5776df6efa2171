package storage

// sqlite.go: trade persistence.
//
// Three tables: sessions (one row per run, upserted), fills (append
// only), round_trips (append only). Decimals are stored as TEXT to
// survive the round trip without float drift.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id   TEXT PRIMARY KEY,
    ticker       TEXT NOT NULL,
    exchange     TEXT NOT NULL,
    started_at   DATETIME NOT NULL,
    ended_at     DATETIME,
    total_profit TEXT NOT NULL DEFAULT '0',
    trades       INTEGER NOT NULL DEFAULT 0,
    regrids      INTEGER NOT NULL DEFAULT 0,
    halt_reason  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS fills (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL,
    event_id    TEXT NOT NULL,
    order_id    TEXT NOT NULL,
    level_index INTEGER NOT NULL,
    side        TEXT NOT NULL,
    price       TEXT NOT NULL,
    quantity    TEXT NOT NULL,
    filled_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS round_trips (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL,
    level_index INTEGER NOT NULL,
    buy_price   TEXT NOT NULL,
    sell_price  TEXT NOT NULL,
    quantity    TEXT NOT NULL,
    profit      TEXT NOT NULL,
    closed_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_session  ON fills(session_id);
CREATE INDEX IF NOT EXISTS idx_trips_session  ON round_trips(session_id);
CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(started_at DESC);
`

// SQLiteStorage implements ports.TradeStorage using SQLite (pure Go, no
// CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at the given path and
// applies the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// SaveFill appends one processed fill event.
func (s *SQLiteStorage) SaveFill(ctx context.Context, sessionID string, fill domain.Fill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fills (session_id, event_id, order_id, level_index, side, price, quantity, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, fill.EventID, fill.OrderID, fill.LevelIndex,
		string(fill.Side), fill.Price.String(), fill.Quantity.String(), fill.FilledAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveFill: %w", err)
	}
	return nil
}

// SaveRoundTrip appends one completed buy/sell pair.
func (s *SQLiteStorage) SaveRoundTrip(ctx context.Context, sessionID string, rt domain.RoundTrip) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO round_trips (session_id, level_index, buy_price, sell_price, quantity, profit, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, rt.LevelIndex, rt.BuyPrice.String(), rt.SellPrice.String(),
		rt.Quantity.String(), rt.Profit.String(), rt.ClosedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRoundTrip: %w", err)
	}
	return nil
}

// SaveSession upserts the session summary.
func (s *SQLiteStorage) SaveSession(ctx context.Context, sum domain.SessionSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, ticker, exchange, started_at, ended_at, total_profit, trades, regrids, halt_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_at     = excluded.ended_at,
			total_profit = excluded.total_profit,
			trades       = excluded.trades,
			regrids      = excluded.regrids,
			halt_reason  = excluded.halt_reason`,
		sum.SessionID, sum.Ticker, sum.Exchange, sum.StartedAt.UTC(), sum.EndedAt.UTC(),
		sum.TotalProfit.String(), sum.Trades, sum.Regrids, sum.HaltReason,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSession: %w", err)
	}
	return nil
}

// GetSession loads a saved session summary.
func (s *SQLiteStorage) GetSession(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, ticker, exchange, started_at, ended_at, total_profit, trades, regrids, halt_reason
		FROM sessions WHERE session_id = ?`, sessionID)

	var sum domain.SessionSummary
	var startedAt, endedAt time.Time
	var profit string
	if err := row.Scan(&sum.SessionID, &sum.Ticker, &sum.Exchange, &startedAt, &endedAt,
		&profit, &sum.Trades, &sum.Regrids, &sum.HaltReason); err != nil {
		return domain.SessionSummary{}, fmt.Errorf("storage.GetSession: %w", err)
	}

	p, err := decimal.NewFromString(profit)
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("storage.GetSession: parse profit %q: %w", profit, err)
	}
	sum.StartedAt = startedAt
	sum.EndedAt = endedAt
	sum.TotalProfit = p
	return sum, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
