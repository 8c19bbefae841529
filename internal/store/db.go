// Package store implements the Alert Store (spec §4.5, §6): the
// embedded SQLite schema for users, alerts, user_alerts, errors, and
// exchange_statistics, plus a separate symbol_normalization file.
//
// Grounded on romanzzaa-code-bybit-options-roller's internal/infrastructure/
// database package (DB wrapper over *sql.DB, repository-per-table shape,
// QueryContext/ExecContext with wrapped errors) adapted from its Postgres
// driver and $N placeholders to modernc.org/sqlite's driver and ? placeholders.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"spikeingest/internal/logging"
)

// DB wraps the main database file (users, alerts, user_alerts, errors,
// exchange_statistics).
type DB struct {
	*sql.DB
}

const mainSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	tg_token TEXT,
	chat_id INTEGER,
	options_json TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	exchange TEXT NOT NULL,
	market TEXT NOT NULL,
	symbol TEXT NOT NULL,
	delta REAL NOT NULL,
	wick_pct REAL NOT NULL,
	volume_usdt REAL NOT NULL,
	meta TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(ts, exchange, market, symbol, delta, wick_pct, volume_usdt)
);
CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts);
CREATE INDEX IF NOT EXISTS idx_alerts_exchange_market ON alerts(exchange, market);

CREATE TABLE IF NOT EXISTS user_alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_id INTEGER NOT NULL REFERENCES alerts(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(alert_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_user_alerts_alert_id ON user_alerts(alert_id);
CREATE INDEX IF NOT EXISTS idx_user_alerts_user_id ON user_alerts(user_id);

CREATE TABLE IF NOT EXISTS errors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	exchange TEXT,
	error_type TEXT NOT NULL,
	error_message TEXT NOT NULL,
	connection_id TEXT,
	market TEXT,
	symbol TEXT,
	stack_trace TEXT
);
CREATE INDEX IF NOT EXISTS idx_errors_timestamp_exchange ON errors(timestamp, exchange);

CREATE TABLE IF NOT EXISTS exchange_statistics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	exchange TEXT NOT NULL,
	market TEXT NOT NULL,
	symbols_count INTEGER NOT NULL DEFAULT 0,
	ws_connections INTEGER NOT NULL DEFAULT 0,
	batches_per_ws INTEGER NOT NULL DEFAULT 0,
	reconnects INTEGER NOT NULL DEFAULT 0,
	candles_count INTEGER NOT NULL DEFAULT 0,
	last_candle_time INTEGER NOT NULL DEFAULT 0,
	ticks_per_second REAL NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(exchange, market)
);
CREATE INDEX IF NOT EXISTS idx_exchange_statistics_exchange_market ON exchange_statistics(exchange, market);
`

const normalizationSchema = `
CREATE TABLE IF NOT EXISTS symbol_normalization (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	exchange TEXT NOT NULL,
	market TEXT NOT NULL,
	original_symbol TEXT NOT NULL,
	normalized_symbol TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(exchange, market, original_symbol)
);
`

// Open opens the main database file, applies WAL journaling and the
// spec's 30-second busy timeout, and runs the schema migration.
func Open(path string, busyTimeoutSeconds int) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, busyTimeoutSeconds*1000)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open main db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers regardless; avoid SQLITE_BUSY churn

	if _, err := db.Exec(mainSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate main db: %w", err)
	}
	return &DB{db}, nil
}

// OpenNormalization opens the separate symbol_normalization database
// file named in spec §6.
func OpenNormalization(path string, busyTimeoutSeconds int) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, busyTimeoutSeconds*1000)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open normalization db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(normalizationSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate normalization db: %w", err)
	}
	return &DB{db}, nil
}

// withRetry runs fn a second time when the first run fails; each fn
// rolls back its own transaction on failure. Errors are not classified:
// a constraint violation is retried once just like an operational error.
func withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	logging.WithComponent("store").Warn().Err(err).Msg("db operation failed, retrying once")
	return fn()
}
