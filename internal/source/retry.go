// Package source fetches merchant transaction history from the upstream
// payment-data provider, with retry, backoff and an optional synthetic
// fallback for demo and degraded-mode operation.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrSourceUnavailable is returned when every fetch attempt failed and
// no fallback was permitted.
var ErrSourceUnavailable = errors.New("transaction source unavailable")

// RetryPolicy controls how fetch failures are retried. Backoff grows
// geometrically: initial, initial*factor, initial*factor^2, ...
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	BackoffFactor  float64
}

// DefaultRetryPolicy matches the community-tier configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 1
	}
	return p
}

// ResilientSource wraps a primary source with retries and an optional
// synthetic fallback. The second return of Fetch records where the data
// actually came from so assessments stay honest about provenance.
type ResilientSource struct {
	primary  domain.TransactionSource
	fallback domain.TransactionSource
	policy   RetryPolicy
	logger   *slog.Logger
}

// NewResilientSource wraps primary. fallback may be nil, in which case
// exhausted retries surface as an error.
func NewResilientSource(primary, fallback domain.TransactionSource, policy RetryPolicy, logger *slog.Logger) *ResilientSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResilientSource{
		primary:  primary,
		fallback: fallback,
		policy:   policy.normalized(),
		logger:   logger,
	}
}

// Fetch retrieves the merchant's transactions, retrying transient
// failures with geometric backoff. The returned data source is
// domain.SourceLive or domain.SourceSynthetic.
func (s *ResilientSource) Fetch(ctx context.Context, merchantID string, from, to time.Time) ([]*domain.Transaction, string, error) {
	backoff := s.policy.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		txs, err := s.primary.FetchTransactions(ctx, merchantID, from, to)
		if err == nil {
			return txs, domain.SourceLive, nil
		}
		lastErr = err

		s.logger.Warn("transaction fetch failed",
			"merchant_id", merchantID,
			"attempt", attempt,
			"max_attempts", s.policy.MaxAttempts,
			"error", err,
		)

		if attempt == s.policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * s.policy.BackoffFactor)
	}

	if s.fallback != nil {
		s.logger.Warn("falling back to synthetic transaction history",
			"merchant_id", merchantID, "error", lastErr)
		txs, err := s.fallback.FetchTransactions(ctx, merchantID, from, to)
		if err != nil {
			return nil, "", fmt.Errorf("synthetic fallback failed: %w", err)
		}
		return txs, domain.SourceSynthetic, nil
	}

	return nil, "", fmt.Errorf("%w after %d attempts: %v", ErrSourceUnavailable, s.policy.MaxAttempts, lastErr)
}
