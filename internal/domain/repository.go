package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Assessment operations.
	SaveAssessment(ctx context.Context, a *CreditAssessment) error
	GetAssessment(ctx context.Context, id string) (*CreditAssessment, error)
	GetLatestAssessment(ctx context.Context, merchantID string) (*CreditAssessment, error)

	// ListStaleMerchants returns merchants whose latest assessment is
	// older than before. Merchants with no assessment are not stale;
	// they have simply never been assessed.
	ListStaleMerchants(ctx context.Context, before time.Time) ([]string, error)

	// DeleteAssessmentsBefore prunes assessments older than before and
	// returns the number removed.
	DeleteAssessmentsBefore(ctx context.Context, before time.Time) (int64, error)

	// Transaction window storage (fetched history kept for audit/replay).
	SaveTransactions(ctx context.Context, txs []*Transaction) error
	GetTransactionsByMerchant(ctx context.Context, merchantID string, since time.Time) ([]*Transaction, error)

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
