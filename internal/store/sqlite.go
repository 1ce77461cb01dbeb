package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS employees (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			preferred_shifts_json TEXT NOT NULL DEFAULT '[]',
			preferred_days_json TEXT NOT NULL DEFAULT '[]',
			days_off_json TEXT NOT NULL DEFAULT '[]',
			max_weekly_hours INTEGER,
			max_consecutive_shifts INTEGER,
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS calendar_entries (
			id TEXT PRIMARY KEY,
			employee_id TEXT,
			start_at_unix INTEGER NOT NULL,
			end_at_unix INTEGER NOT NULL,
			note TEXT,
			label TEXT,
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL,
			CHECK (end_at_unix > start_at_unix),
			FOREIGN KEY(employee_id) REFERENCES employees(id) ON DELETE SET NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_entries_window ON calendar_entries(start_at_unix, end_at_unix);`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_entries_employee ON calendar_entries(employee_id, start_at_unix);`,
		`CREATE TABLE IF NOT EXISTS interaction_records (
			id TEXT PRIMARY KEY,
			requester_id TEXT NOT NULL,
			query TEXT NOT NULL,
			answer TEXT NOT NULL,
			model TEXT,
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interaction_records_requester ON interaction_records(requester_id, created_at_unix);`,
		`CREATE TABLE IF NOT EXISTS policy_documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source_path TEXT UNIQUE,
			content TEXT NOT NULL,
			uploader_id TEXT,
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullIfZero(value int) any {
	if value <= 0 {
		return nil
	}
	return value
}

func unixToTime(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}
