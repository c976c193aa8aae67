// Package store persists the bot's trading history to SQLite.
// All database operations go through this package.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"gridscalper/logger"
)

// Store is the unified storage layer. A nil *Store is valid and turns every
// write into a no-op, so callers never need to guard persistence.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the SQLite database at dbPath and ensures
// the schema exists.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}

	logger.Infof("✅ Database initialized at %s", dbPath)
	return s, nil
}

func (s *Store) initTables() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS grid_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			lower_bound REAL NOT NULL,
			upper_bound REAL NOT NULL,
			center REAL NOT NULL,
			level_count INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			end_reason TEXT
		)
	`); err != nil {
		return fmt.Errorf("failed to create grid_sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			source TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			reason TEXT,
			created_at DATETIME NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create trades table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, created_at)
	`); err != nil {
		return fmt.Errorf("failed to create trades index: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Trade sources.
const (
	SourceGrid   = "grid"
	SourceMarket = "market"
)

// Trade is one executed (or requested) order the bot placed.
type Trade struct {
	ID        int64
	Symbol    string
	Source    string
	Side      string
	Quantity  float64
	Price     float64
	Reason    string
	CreatedAt time.Time
}

// RecordTrade appends a trade row. Errors are logged, not returned: losing a
// history row must never affect trading.
func (s *Store) RecordTrade(t Trade) {
	if s == nil || s.db == nil {
		return
	}
	_, err := s.db.Exec(`
		INSERT INTO trades (symbol, source, side, quantity, price, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, t.Source, t.Side, t.Quantity, t.Price, t.Reason, time.Now().UTC())
	if err != nil {
		logger.Errorf("[Store] Failed to record trade: %v", err)
	}
}

// RecordEvent appends a lifecycle event row (session resets, shutdowns,
// analysis failures).
func (s *Store) RecordEvent(kind, message string) {
	if s == nil || s.db == nil {
		return
	}
	_, err := s.db.Exec(`
		INSERT INTO events (kind, message, created_at) VALUES (?, ?, ?)`,
		kind, message, time.Now().UTC())
	if err != nil {
		logger.Errorf("[Store] Failed to record event: %v", err)
	}
}

// RecordSessionStart inserts a grid session row and returns its id for the
// matching RecordSessionEnd call. Returns 0 on failure.
func (s *Store) RecordSessionStart(symbol string, lower, upper, center float64, levelCount int) int64 {
	if s == nil || s.db == nil {
		return 0
	}
	res, err := s.db.Exec(`
		INSERT INTO grid_sessions (symbol, lower_bound, upper_bound, center, level_count, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		symbol, lower, upper, center, levelCount, time.Now().UTC())
	if err != nil {
		logger.Errorf("[Store] Failed to record session start: %v", err)
		return 0
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0
	}
	return id
}

// RecordSessionEnd closes out a grid session row.
func (s *Store) RecordSessionEnd(sessionID int64, reason string) {
	if s == nil || s.db == nil || sessionID == 0 {
		return
	}
	_, err := s.db.Exec(`
		UPDATE grid_sessions SET ended_at = ?, end_reason = ? WHERE id = ?`,
		time.Now().UTC(), reason, sessionID)
	if err != nil {
		logger.Errorf("[Store] Failed to record session end: %v", err)
	}
}

// RecentTrades returns up to limit trades for symbol, newest first.
func (s *Store) RecentTrades(symbol string, limit int) ([]Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT id, symbol, source, side, quantity, price, reason, created_at
		FROM trades WHERE symbol = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Source, &t.Side, &t.Quantity, &t.Price, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// TradeCount returns the total number of recorded trades for symbol.
func (s *Store) TradeCount(symbol string) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE symbol = ?`, symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}
