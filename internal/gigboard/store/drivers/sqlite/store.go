// Package sqlite keeps session credentials as key/value rows in a SQLite
// database. All three entries are written in one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/store"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
}

// NewStore opens dsn and applies migrations.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, dsn: dsn}
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// Ensure rollback is called if we panic or return early with error
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

const upsertEntry = `
INSERT INTO session_entries (key, value, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (s *Store) Save(ctx context.Context, creds store.Credentials) error {
	entries := creds.Entries()

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, k := range store.Keys {
			if _, err := tx.ExecContext(ctx, upsertEntry, k, entries[k]); err != nil {
				return fmt.Errorf("sqlite store: save %s: %w", k, err)
			}
		}
		return nil
	})
}

func (s *Store) Load(ctx context.Context) (store.Credentials, error) {
	query := `SELECT key, value FROM session_entries WHERE key IN (?` +
		strings.Repeat(", ?", len(store.Keys)-1) + `)`

	args := make([]any, len(store.Keys))
	for i, k := range store.Keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return store.Credentials{}, fmt.Errorf("sqlite store: load: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]string, len(store.Keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return store.Credentials{}, fmt.Errorf("sqlite store: scan: %w", err)
		}
		entries[k] = v
	}
	if err := rows.Err(); err != nil {
		return store.Credentials{}, fmt.Errorf("sqlite store: load: %w", err)
	}

	return store.FromEntries(entries)
}

func (s *Store) Clear(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, k := range store.Keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM session_entries WHERE key = ?`, k); err != nil {
				return fmt.Errorf("sqlite store: clear %s: %w", k, err)
			}
		}
		return nil
	})
}
