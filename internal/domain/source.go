package domain

import (
	"context"
	"time"
)

// TransactionSource fetches a merchant's payment history from the
// upstream data provider. Implementations may fail transiently; callers
// wrap them with a retry policy.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, merchantID string, from, to time.Time) ([]*Transaction, error)
}

// SourceConfig holds configuration for the transaction source.
type SourceConfig struct {
	// Type is the source type: "http" or "synthetic"
	Type string

	// HTTP source settings
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Retry policy
	MaxAttempts    int
	InitialBackoff time.Duration
	BackoffFactor  float64

	// AllowSyntheticFallback permits falling back to generated history
	// when the upstream source stays unavailable after retries.
	AllowSyntheticFallback bool
}
