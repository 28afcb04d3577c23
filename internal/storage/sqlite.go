package storage

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/wellsgz/pingmon/internal/probe"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ping_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ms INTEGER NOT NULL,
    target TEXT NOT NULL,
    target_label TEXT NOT NULL DEFAULT '',
    sequence INTEGER NOT NULL,
    success BOOLEAN NOT NULL,
    latency_ms REAL,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_target_timestamp ON ping_results(target, timestamp_ms);
`

// SQLiteArchive stores every outcome as a row in a SQLite database
type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive opens (or creates) the database at path and ensures the schema
func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("database open failed: %w", err)
	}

	// WAL lets readers (history queries) run alongside the probe loop's writes
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA synchronous=NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema creation failed: %w", err)
	}

	return &SQLiteArchive{db: db}, nil
}

// Append inserts one outcome
func (s *SQLiteArchive) Append(o probe.Outcome) error {
	var latency sql.NullFloat64
	if o.LatencyMs != nil {
		latency = sql.NullFloat64{Float64: *o.LatencyMs, Valid: true}
	}
	var errMsg sql.NullString
	if o.Error != nil {
		errMsg = sql.NullString{String: *o.Error, Valid: true}
	}

	_, err := s.db.Exec(`
        INSERT INTO ping_results (timestamp_ms, target, target_label, sequence, success, latency_ms, error_message)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.Timestamp.UnixMilli(),
		o.Target,
		o.TargetLabel,
		o.Sequence,
		o.Success,
		latency,
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// Fetch returns the raw samples of a target within [from, to], oldest first
func (s *SQLiteArchive) Fetch(target string, from, to time.Time) ([]DataPoint, error) {
	rows, err := s.db.Query(`
        SELECT timestamp_ms, success, latency_ms
        FROM ping_results
        WHERE target = ? AND timestamp_ms BETWEEN ? AND ?
        ORDER BY timestamp_ms ASC, id ASC`,
		target, from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	points := []DataPoint{}
	for rows.Next() {
		var (
			tsMs    int64
			success bool
			latency sql.NullFloat64
		)
		if err := rows.Scan(&tsMs, &success, &latency); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}

		p := DataPoint{Timestamp: time.UnixMilli(tsMs), Value: math.NaN(), Loss: 1}
		if success {
			p.Loss = 0
			if latency.Valid {
				p.Value = latency.Float64
			}
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Close closes the database
func (s *SQLiteArchive) Close() error {
	return s.db.Close()
}
