package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Upload session lifecycle
	CreateUploadSession(ctx context.Context, session *UploadSession) error
	MarkSessionValidated(ctx context.Context, sessionID int64) error
	GetUploadSession(ctx context.Context, sessionID int64) (*UploadSession, error)

	// Row-level failure log (append-only)
	RecordRowFailure(ctx context.Context, failure *RowFailure) error
	ListRowFailures(ctx context.Context, sessionID int64) ([]*RowFailure, error)

	// SaveFraudSignal transactionally upserts the signal's base fields by
	// natural key and merges its contra-indicator counts. Returns the
	// generated (or reused) row id.
	SaveFraudSignal(ctx context.Context, signal *FraudSignal) (int64, error)
	GetFraudSignal(ctx context.Context, id int64) (*FraudSignal, error)

	// Audit-trail correlation (read-only for the import path)
	FindFraudEvent(ctx context.Context, idpEntityID, idpEventID string) (int64, error)

	// SaveFraudEvent records a fraud event in the audit trail. A duplicate
	// event id is benign and is not reported as an error.
	SaveFraudEvent(ctx context.Context, event *FraudEvent) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
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
