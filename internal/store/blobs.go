package store

import (
	"context"
	"errors"
	"fmt"
)

// Well-known keys for the two persisted collections.
const (
	KeyStudents          = "students"
	KeyAttendanceRecords = "attendanceRecords"
)

// ErrNotFound is returned by Get when nothing was ever written under a key.
var ErrNotFound = errors.New("blob not found")

// Blobs is durable key/value storage holding serialized collections.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Healthy(ctx context.Context) bool
	Close() error
}

// Options selects and configures a Blobs backend.
type Options struct {
	Backend     string // file, redis, postgres, sqlite, memory
	DataDir     string
	RedisAddr   string
	KeyPrefix   string
	DatabaseURL string
	SQLitePath  string
}

// Open builds the backend named in opts.
func Open(ctx context.Context, opts Options) (Blobs, error) {
	switch opts.Backend {
	case "", "file":
		return NewFileBlobs(opts.DataDir)
	case "memory":
		return NewMemory(), nil
	case "redis":
		r := NewRedis(opts.RedisAddr)
		return NewRedisBlobs(r, opts.KeyPrefix), nil
	case "postgres":
		db, err := NewDB(opts.DatabaseURL)
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return NewSQLBlobs(ctx, db.Client, DialectPostgres)
	case "sqlite":
		db, err := NewSQLite(opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return NewSQLBlobs(ctx, db, DialectSQLite)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
