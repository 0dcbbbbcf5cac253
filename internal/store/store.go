// Package store persists the roster and the daily send counter in a local
// SQLite database. The process is the single writer.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"xautodm/internal/types"
)

// DayFormat is the calendar-day key for the send counter.
const DayFormat = "2006-01-02"

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// Open creates a Store with SQLite backend, creating the schema if needed.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL,
		name TEXT NOT NULL,
		nickname TEXT,
		bio TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		selected BOOLEAN NOT NULL DEFAULT 1,
		position INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS daily_sends (
		day TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_users_handle ON users(handle);
	CREATE INDEX IF NOT EXISTS idx_users_status ON users(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveUsers replaces the persisted roster with the given snapshot,
// preserving slice order.
func (s *Store) SaveUsers(ctx context.Context, entries []types.RosterEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return err
	}
	for i, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, handle, name, nickname, bio, status, selected, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.Handle, e.Name, e.Nickname, e.Bio, string(e.Status), e.Selected, i)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadUsers returns the full persisted roster in saved order.
func (s *Store) LoadUsers(ctx context.Context) ([]types.RosterEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, handle, name, nickname, bio, status, selected
		FROM users ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.RosterEntry
	for rows.Next() {
		var e types.RosterEntry
		var status string
		if err := rows.Scan(&e.ID, &e.Handle, &e.Name, &e.Nickname, &e.Bio, &status, &e.Selected); err != nil {
			return nil, err
		}
		e.Status = types.Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearUsers removes every roster entry.
func (s *Store) ClearUsers(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users`)
	return err
}

// SentOn returns how many sends are recorded for the given calendar day.
// Days with no row read as 0, which is what the day-rollover reset means.
func (s *Store) SentOn(ctx context.Context, day string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM daily_sends WHERE day = ?`, day).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// IncrementSent bumps the counter for the given day and returns the new
// value. Called only after a confirmed send.
func (s *Store) IncrementSent(ctx context.Context, day string) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_sends (day, count) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET count = count + 1
	`, day)
	if err != nil {
		return 0, err
	}
	return s.SentOn(ctx, day)
}
