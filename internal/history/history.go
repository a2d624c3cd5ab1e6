// Package history optionally persists one row per executed batch to a
// local SQLite database, mirroring the operational-history pattern the
// teacher codebase uses for job run tracking.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/aristath/qcontroller/internal/result"
)

// Store records batch executions. A nil *Store is valid and Record
// becomes a no-op, so callers can leave history disabled by default.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a SQLite database at dsn and ensures
// the run-history table exists.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS batch_runs (
			job_id      TEXT NOT NULL,
			status      TEXT NOT NULL,
			rank        INTEGER NOT NULL,
			experiments INTEGER NOT NULL,
			duration_s  REAL NOT NULL,
			recorded_at DATETIME NOT NULL,
			payload     BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one row describing a completed batch execution. The full
// Result, including every per-experiment counts/snapshots payload, is
// kept as a msgpack-encoded blob so Load can return it verbatim later;
// the other columns exist purely to make batch_runs queryable without
// decoding the blob.
func (s *Store) Record(rank int, res *result.Result) error {
	if s == nil || s.db == nil {
		return nil
	}
	duration, _ := res.Metadata["time_taken"].(float64)
	payload, err := msgpack.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result payload: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO batch_runs (job_id, status, rank, experiments, duration_s, recorded_at, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.JobID, string(res.Status), rank, len(res.Results), duration, time.Now().UTC(), payload,
	)
	return err
}

// Load returns the most recently recorded Result for jobID, decoded from
// its msgpack payload, or (nil, sql.ErrNoRows) if no run was recorded.
func (s *Store) Load(jobID string) (*result.Result, error) {
	if s == nil || s.db == nil {
		return nil, sql.ErrNoRows
	}
	var payload []byte
	err := s.db.QueryRow(
		`SELECT payload FROM batch_runs WHERE job_id = ? ORDER BY recorded_at DESC LIMIT 1`,
		jobID,
	).Scan(&payload)
	if err != nil {
		return nil, err
	}
	var res result.Result
	if err := msgpack.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode result payload: %w", err)
	}
	return &res, nil
}
