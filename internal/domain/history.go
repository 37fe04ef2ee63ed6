package domain

import (
	"context"
	"time"
)

// HistoryStore is the append-only log of every simulation made.
// Append, Clear and ReadAll are mutually exclusive: a reader sees either
// the pre- or post-state of a concurrent append, never a torn record.
type HistoryStore interface {
	// Append adds one record to the end of the log. Creates the log when it
	// does not yet exist.
	Append(ctx context.Context, rec *HistoryRecord) error

	// ReadAll returns every record in insertion order, or an empty slice
	// when no log exists. Non-finite numeric fields come back as nil.
	ReadAll(ctx context.Context) ([]*HistoryRecord, error)

	// Clear deletes the entire log irreversibly. Clearing an empty or
	// absent log is a no-op.
	Clear(ctx context.Context) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// HistoryConfig holds configuration for history store initialization.
type HistoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
