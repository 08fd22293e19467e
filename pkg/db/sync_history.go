package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunStatus is the state of a sync run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Action is what a sync did to a remote row.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionClosed  Action = "closed"
)

// Run represents a sync run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     RunStatus
}

// SyncRecord represents the last pushed state of one remote row.
type SyncRecord struct {
	ID       int64
	RunID    string
	Market   string
	Code     string
	BuyID    string
	PageID   string
	Action   Action
	Quantity float64
	Price    float64
	SyncedAt time.Time
}

// Failure is an instrument skipped during a run.
type Failure struct {
	RunID  string
	Market string
	Code   string
	Error  string
}

// SyncHistory manages sync history operations.
type SyncHistory struct {
	conn *Connection
	now  func() time.Time
}

// NewSyncHistory creates a new SyncHistory instance.
func NewSyncHistory(conn *Connection) *SyncHistory {
	return &SyncHistory{conn: conn, now: time.Now}
}

// StartRun records a new running sync and returns its ULID.
func (s *SyncHistory) StartRun() (string, error) {
	now := s.now().UTC()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()

	_, err := s.conn.Exec(`INSERT INTO sync_runs (run_id, started_at, status) VALUES (?, ?, ?)`,
		id, now, string(RunRunning))
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run as finished with status.
func (s *SyncHistory) FinishRun(runID string, status RunStatus) error {
	result, err := s.conn.Exec(`UPDATE sync_runs SET finished_at = ?, status = ? WHERE run_id = ?`,
		s.now().UTC(), string(status), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("failed to finish run: unknown run %s", runID)
	}
	return nil
}

// GetRun retrieves a run by id. It returns nil when the run does not exist.
func (s *SyncHistory) GetRun(runID string) (*Run, error) {
	return s.scanRun(s.conn.QueryRow(`
		SELECT run_id, started_at, finished_at, status FROM sync_runs WHERE run_id = ?
	`, runID))
}

// GetLastRun retrieves the most recent run, or nil when none was recorded.
func (s *SyncHistory) GetLastRun() (*Run, error) {
	// ULIDs sort by creation time.
	return s.scanRun(s.conn.QueryRow(`
		SELECT run_id, started_at, finished_at, status FROM sync_runs ORDER BY run_id DESC LIMIT 1
	`))
}

func (s *SyncHistory) scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var status string
	err := row.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = RunStatus(status)
	return &run, nil
}

// RecordSync records the pushed state of a row.
// If the row already exists (same market + code + buy_id), it updates it.
func (s *SyncHistory) RecordSync(record SyncRecord) error {
	return recordSync(s.conn, record)
}

// RecordSyncs records several rows in one transaction.
func (s *SyncHistory) RecordSyncs(records []SyncRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.conn.Transaction(func(tx *sql.Tx) error {
		for _, record := range records {
			if err := recordSync(tx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func recordSync(ex execer, record SyncRecord) error {
	query := `
		INSERT INTO sync_history (run_id, market, code, buy_id, page_id, action, quantity, price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market, code, buy_id) DO UPDATE SET
			run_id = excluded.run_id,
			page_id = excluded.page_id,
			action = excluded.action,
			quantity = excluded.quantity,
			price = excluded.price,
			synced_at = CURRENT_TIMESTAMP
	`

	_, err := ex.Exec(query,
		record.RunID,
		record.Market,
		record.Code,
		record.BuyID,
		record.PageID,
		string(record.Action),
		record.Quantity,
		record.Price,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync for %s/%s: %w", record.Code, record.BuyID, err)
	}

	return nil
}

// GetSyncRecord retrieves the record of a row. It returns nil when the row
// was never synced.
func (s *SyncHistory) GetSyncRecord(market, code, buyID string) (*SyncRecord, error) {
	query := `
		SELECT id, run_id, market, code, buy_id, page_id, action, quantity, price, synced_at
		FROM sync_history
		WHERE market = ? AND code = ? AND buy_id = ?
	`

	var record SyncRecord
	var action string

	err := s.conn.QueryRow(query, market, code, buyID).Scan(
		&record.ID,
		&record.RunID,
		&record.Market,
		&record.Code,
		&record.BuyID,
		&record.PageID,
		&action,
		&record.Quantity,
		&record.Price,
		&record.SyncedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync record: %w", err)
	}

	record.Action = Action(action)
	return &record, nil
}

// RecordFailure records an instrument that failed during a run.
func (s *SyncHistory) RecordFailure(f Failure) error {
	_, err := s.conn.Exec(`INSERT INTO sync_failures (run_id, market, code, error) VALUES (?, ?, ?, ?)`,
		f.RunID, f.Market, f.Code, f.Error)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// GetFailures retrieves the failures of a run in insertion order.
func (s *SyncHistory) GetFailures(runID string) ([]Failure, error) {
	rows, err := s.conn.Query(`
		SELECT run_id, market, code, error FROM sync_failures WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get failures: %w", err)
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.RunID, &f.Market, &f.Code, &f.Error); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// Stats represents sync statistics.
type Stats struct {
	TotalRows    int
	OpenRows     int
	ClosedRows   int
	TotalRuns    int
	FailedRuns   int
	LastRun      *Run
	LastFailures int
	LastSync     sql.NullString
}

// GetStats retrieves sync statistics.
func (s *SyncHistory) GetStats() (*Stats, error) {
	var stats Stats

	err := s.conn.QueryRow(`SELECT COUNT(*) FROM sync_history WHERE buy_id <> ''`).Scan(&stats.TotalRows)
	if err != nil {
		return nil, fmt.Errorf("failed to get row count: %w", err)
	}

	err = s.conn.QueryRow(`SELECT COUNT(*) FROM sync_history WHERE buy_id <> '' AND action = ?`,
		string(ActionClosed)).Scan(&stats.ClosedRows)
	if err != nil {
		return nil, fmt.Errorf("failed to get closed row count: %w", err)
	}
	stats.OpenRows = stats.TotalRows - stats.ClosedRows

	err = s.conn.QueryRow(`SELECT COUNT(*), COUNT(CASE WHEN status = ? THEN 1 END) FROM sync_runs`,
		string(RunFailed)).Scan(&stats.TotalRuns, &stats.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to get run count: %w", err)
	}

	err = s.conn.QueryRow(`SELECT MAX(synced_at) FROM sync_history`).Scan(&stats.LastSync)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last sync time: %w", err)
	}

	stats.LastRun, err = s.GetLastRun()
	if err != nil {
		return nil, err
	}
	if stats.LastRun != nil {
		err = s.conn.QueryRow(`SELECT COUNT(*) FROM sync_failures WHERE run_id = ?`,
			stats.LastRun.ID).Scan(&stats.LastFailures)
		if err != nil {
			return nil, fmt.Errorf("failed to get failure count: %w", err)
		}
	}

	return &stats, nil
}

// GetMetadata retrieves a metadata value. A missing key yields "".
func (s *SyncHistory) GetMetadata(key string) (string, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}

	return value, nil
}

// SetMetadata sets a metadata value.
func (s *SyncHistory) SetMetadata(key, value string) error {
	query := `
		INSERT INTO sync_metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.conn.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}

	return nil
}
