package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Dialect captures the placeholder differences between SQL backends.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// SQLBlobs keeps each blob as a row of the blobs table.
type SQLBlobs struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLBlobs creates the blobs table when missing.
func NewSQLBlobs(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLBlobs, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS blobs (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLBlobs{db: db, dialect: dialect}, nil
}

// Get returns the stored value for key.
func (s *SQLBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	q := `SELECT value FROM blobs WHERE key = $1`
	if s.dialect == DialectSQLite {
		q = `SELECT value FROM blobs WHERE key = ?`
	}
	var value string
	if err := s.db.QueryRowContext(ctx, q, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(value), nil
}

// Put upserts key.
func (s *SQLBlobs) Put(ctx context.Context, key string, data []byte) error {
	q := `
		INSERT INTO blobs (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if s.dialect == DialectSQLite {
		q = `
		INSERT INTO blobs (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	}
	_, err := s.db.ExecContext(ctx, q, key, string(data), time.Now().UTC())
	return err
}

// Healthy pings the database.
func (s *SQLBlobs) Healthy(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// Close closes the database.
func (s *SQLBlobs) Close() error { return s.db.Close() }
