// Package sqlite stores the snapshot documents in a single key-value table.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/sharetube/zone/internal/repository/snapshot"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS snapshot (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

type Store struct {
	db   *sql.DB
	docs *snapshot.Documents
}

// Open opens (or creates) the database at path and loads every stored document.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate snapshot db: %w", err)
	}

	s := &Store{db: db, docs: snapshot.NewDocuments()}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM snapshot`)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		s.docs.PutRaw(key, []byte(value))
	}

	return rows.Err()
}

func (s *Store) Get(_ context.Context, key string, dst any) error {
	return s.docs.Decode(key, dst)
}

func (s *Store) Set(_ context.Context, key string, value any) error {
	return s.docs.Put(key, value)
}

// Write upserts every staged document in one transaction.
func (s *Store) Write(ctx context.Context) error {
	funcName := "snapshot.sqlite.Write"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for key, raw := range s.docs.All() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, string(raw),
		)
		if err != nil {
			slog.ErrorContext(ctx, funcName, "key", key, "error", err)
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
