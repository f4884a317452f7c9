// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reqlog

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/parley/internal/backend"
)

// ErrClosed is returned when recording against a closed log.
var ErrClosed = errors.New("request log closed")

const schema = `
CREATE TABLE IF NOT EXISTS request_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL,
	model_name  TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	response    TEXT NOT NULL,
	token_count INTEGER NOT NULL,
	quality     REAL NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_log_created ON request_log(created_at);
CREATE INDEX IF NOT EXISTS idx_request_log_model ON request_log(model_name);
`

// =============================================================================
// REQUEST LOG
// =============================================================================

// Log is a SQLite-backed backend.LoggingSink.
type Log struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// Open creates or opens the request log database at the given path.
// Parent directories are created as needed.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open request log: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn from the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create request log schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Record inserts one entry. Implements backend.LoggingSink.
func (l *Log) Record(entry backend.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := l.db.Exec(
		`INSERT INTO request_log (user_id, model_name, prompt, response, token_count, quality, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.ModelName, entry.Prompt, entry.Response,
		entry.TokenCount, entry.Quality, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record log entry: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries, newest first.
func (l *Log) Recent(n int) ([]backend.LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	rows, err := l.db.Query(
		`SELECT user_id, model_name, prompt, response, token_count, quality, created_at
		 FROM request_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query request log: %w", err)
	}
	defer rows.Close()

	var entries []backend.LogEntry
	for rows.Next() {
		var e backend.LogEntry
		if err := rows.Scan(&e.UserID, &e.ModelName, &e.Prompt, &e.Response,
			&e.TokenCount, &e.Quality, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByModel returns the number of logged requests per model.
func (l *Log) CountByModel() (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	rows, err := l.db.Query(
		`SELECT model_name, COUNT(*) FROM request_log GROUP BY model_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query request log: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// Close closes the underlying database.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

// =============================================================================
// ASYNC WRAPPER
// =============================================================================

// FireAndForget wraps a sink so Record never blocks the caller on sink
// errors: failures are logged locally and swallowed, per the logging
// contract.
type FireAndForget struct {
	Sink backend.LoggingSink
}

// Record forwards to the wrapped sink, logging failures locally.
func (f FireAndForget) Record(entry backend.LogEntry) error {
	if f.Sink == nil {
		return nil
	}
	if err := f.Sink.Record(entry); err != nil {
		log.Printf("reqlog: record failed: %v", err)
	}
	return nil
}
