// Package store persists the control plane's relational state: candles,
// trading signals, execution events, model registry rows, predictive
// reports, MT5 position snapshots, and app settings.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a pooled sqlite connection opened in WAL mode.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates the containing directory if needed and opens the database.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: creating data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}
	conn.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrating schema: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn exposes the underlying *sql.DB for repositories in this package.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS candles (
	symbol    TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	time      INTEGER NOT NULL,
	open      TEXT NOT NULL,
	high      TEXT NOT NULL,
	low       TEXT NOT NULL,
	close     TEXT NOT NULL,
	volume    TEXT NOT NULL,
	PRIMARY KEY (symbol, timeframe, time)
);
CREATE INDEX IF NOT EXISTS idx_candles_symbol_tf_time ON candles(symbol, timeframe, time);

CREATE TABLE IF NOT EXISTS trading_signals (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	source      TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	timeframe   TEXT NOT NULL,
	action      TEXT NOT NULL,
	confidence  REAL NOT NULL,
	score       REAL NOT NULL,
	entry_price TEXT NOT NULL,
	suggested_sl TEXT NOT NULL,
	suggested_tp TEXT NOT NULL,
	reasons     TEXT NOT NULL,
	context     TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_symbol_tf ON trading_signals(symbol, timeframe, created_at);
CREATE INDEX IF NOT EXISTS idx_signals_score ON trading_signals(score DESC, created_at DESC);

CREATE TABLE IF NOT EXISTS execution_events (
	id               TEXT PRIMARY KEY,
	created_at       INTEGER NOT NULL,
	user_id          TEXT NOT NULL,
	source           TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	volume           TEXT NOT NULL,
	requested_price  TEXT NOT NULL,
	sl               TEXT NOT NULL,
	tp               TEXT NOT NULL,
	status           TEXT NOT NULL,
	ticket           TEXT,
	fill_price       TEXT,
	slippage         TEXT,
	latency_ms       INTEGER,
	bridge_connected INTEGER NOT NULL,
	error            TEXT,
	request          TEXT,
	response         TEXT
);
CREATE INDEX IF NOT EXISTS idx_exec_events_created ON execution_events(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_exec_events_user_created ON execution_events(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_exec_events_status ON execution_events(status, created_at DESC);

CREATE TABLE IF NOT EXISTS model_registry (
	id            TEXT PRIMARY KEY,
	model_type    TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	timeframe     TEXT NOT NULL,
	version       TEXT NOT NULL,
	artifact_path TEXT NOT NULL,
	metrics       TEXT NOT NULL,
	is_active     INTEGER NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_registry_active ON model_registry(model_type, symbol, timeframe, is_active);

CREATE TABLE IF NOT EXISTS mt5_position_snapshots (
	account_id TEXT NOT NULL,
	ticket     TEXT NOT NULL,
	side       TEXT NOT NULL,
	volume     TEXT NOT NULL,
	open_price TEXT NOT NULL,
	sl         TEXT NOT NULL,
	tp         TEXT NOT NULL,
	profit     TEXT NOT NULL,
	swap       TEXT NOT NULL,
	commission TEXT NOT NULL,
	open_time  INTEGER NOT NULL,
	magic      INTEGER NOT NULL,
	comment    TEXT,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (account_id, ticket)
);

CREATE TABLE IF NOT EXISTS app_settings (
	key       TEXT PRIMARY KEY,
	value     TEXT NOT NULL,
	is_secret INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS predictive_reports (
	id              TEXT PRIMARY KEY,
	symbol          TEXT NOT NULL,
	timeframe       TEXT NOT NULL,
	wf_sharpe       TEXT NOT NULL,
	wf_winrate      TEXT NOT NULL,
	wf_avg_return   TEXT NOT NULL,
	mc_max_dd       TEXT NOT NULL,
	mc_var_95       TEXT NOT NULL,
	drift_score     TEXT NOT NULL,
	stability_score TEXT NOT NULL,
	meta            TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictive_symbol_tf ON predictive_reports(symbol, timeframe, created_at DESC);
`
