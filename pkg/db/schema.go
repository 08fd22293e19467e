// Package db keeps a local SQLite log of sync runs: which position rows were
// pushed to the remote tables, which instruments failed, and run metadata.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
    run_id TEXT PRIMARY KEY,           -- ULID
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    status TEXT NOT NULL               -- 'running', 'succeeded' or 'failed'
);

-- Latest pushed state of each lot row, keyed by its natural key
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES sync_runs(run_id),
    market TEXT NOT NULL,
    code TEXT NOT NULL,
    buy_id TEXT NOT NULL,              -- empty for plan rows
    page_id TEXT NOT NULL,
    action TEXT NOT NULL,              -- 'created', 'updated' or 'closed'
    quantity REAL NOT NULL,
    price REAL NOT NULL,
    synced_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(market, code, buy_id)
);

CREATE INDEX IF NOT EXISTS idx_sync_history_run
    ON sync_history(run_id);

CREATE TABLE IF NOT EXISTS sync_failures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES sync_runs(run_id),
    market TEXT NOT NULL,
    code TEXT NOT NULL,
    error TEXT NOT NULL,
    failed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sync_failures_run
    ON sync_failures(run_id);

CREATE TABLE IF NOT EXISTS sync_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.Exec(Schema); err != nil {
		return err
	}
	return nil
}
