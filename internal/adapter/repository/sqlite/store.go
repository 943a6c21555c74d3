// Package sqlite keeps import processes in a local SQLite file for offline runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/iho/goimport/internal/usecase"
)

// Store owns the database handle.
type Store struct {
	db *sql.DB
}

// Open creates the directory of path if needed and opens the database.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS processes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		config TEXT NOT NULL DEFAULT '{}',
		complete INTEGER NOT NULL DEFAULT 0,
		successful INTEGER,
		current_step INTEGER,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS process_files (
		id TEXT PRIMARY KEY,
		process_id TEXT NOT NULL REFERENCES processes(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		encoding TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS process_steps (
		id TEXT NOT NULL,
		process_id TEXT NOT NULL REFERENCES processes(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		handler TEXT NOT NULL,
		state TEXT NOT NULL,
		directions TEXT,
		action TEXT,
		started TEXT NOT NULL,
		finished TEXT,
		PRIMARY KEY (process_id, number)
	)`,
}

// Migrate creates the tables when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, query := range schema {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return tx.Commit()
}

// Begin implements usecase.TransactionManager.
func (s *Store) Begin(ctx context.Context) (usecase.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps sql.Tx to implement usecase.Transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit(context.Context) error {
	return t.tx.Commit()
}

func (t *Tx) Rollback(context.Context) error {
	return t.tx.Rollback()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(tx usecase.Transaction) execer {
	if t, ok := tx.(*Tx); ok && t != nil {
		return t.tx
	}
	return s.db
}
