// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package debug

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// SQLITE STORE
// =============================================================================

// schema holds one row per search log. The full record is stored as a
// JSON blob; the indexed columns exist for pruning and recency queries.
const schema = `
CREATE TABLE IF NOT EXISTS search_logs (
    id         TEXT PRIMARY KEY,
    timestamp  INTEGER NOT NULL,
    model_name TEXT NOT NULL,
    has_error  INTEGER NOT NULL DEFAULT 0,
    data       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_logs_timestamp ON search_logs(timestamp);
`

// SQLiteStore persists search logs to a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the log database at path.
func OpenStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces a log record.
func (s *SQLiteStore) Save(log *SearchLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to encode log: %w", err)
	}

	hasError := 0
	if log.Error != "" {
		hasError = 1
	}

	_, err = s.db.Exec(`
		INSERT INTO search_logs (id, timestamp, model_name, has_error, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timestamp = excluded.timestamp,
			model_name = excluded.model_name,
			has_error = excluded.has_error,
			data = excluded.data`,
		log.ID, log.Timestamp.UnixMilli(), log.ModelName, hasError, string(data))
	if err != nil {
		return fmt.Errorf("failed to save log: %w", err)
	}
	return nil
}

// Recent returns up to limit logs, newest first.
func (s *SQLiteStore) Recent(limit int) ([]*SearchLog, error) {
	rows, err := s.db.Query(
		"SELECT data FROM search_logs ORDER BY timestamp DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []*SearchLog
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}

		var log SearchLog
		if err := json.Unmarshal([]byte(data), &log); err != nil {
			// A corrupt row is skipped, not fatal.
			continue
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

// PruneOlderThan removes logs older than the cutoff.
func (s *SQLiteStore) PruneOlderThan(cutoff time.Time) error {
	_, err := s.db.Exec(
		"DELETE FROM search_logs WHERE timestamp < ?", cutoff.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to prune logs: %w", err)
	}
	return nil
}

// Clear removes all logs.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM search_logs"); err != nil {
		return fmt.Errorf("failed to clear logs: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
