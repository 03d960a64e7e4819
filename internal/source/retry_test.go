package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// flakySource fails the first failUntil calls, then succeeds.
type flakySource struct {
	calls     int
	failUntil int
	txs       []*domain.Transaction
}

func (f *flakySource) FetchTransactions(ctx context.Context, merchantID string, from, to time.Time) ([]*domain.Transaction, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return nil, errors.New("upstream timeout")
	}
	return f.txs, nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 1}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	primary := &flakySource{failUntil: 2, txs: []*domain.Transaction{{ID: "tx-1"}}}
	rs := NewResilientSource(primary, nil, fastPolicy(), nil)

	txs, dataSource, err := rs.Fetch(context.Background(), "m-001", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if primary.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", primary.calls)
	}
	if dataSource != domain.SourceLive {
		t.Errorf("data source = %q, want live", dataSource)
	}
	if len(txs) != 1 {
		t.Errorf("expected 1 transaction, got %d", len(txs))
	}
}

func TestFetchExhaustedWithoutFallback(t *testing.T) {
	primary := &flakySource{failUntil: 100}
	rs := NewResilientSource(primary, nil, fastPolicy(), nil)

	_, _, err := rs.Fetch(context.Background(), "m-001", time.Time{}, time.Time{})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if primary.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", primary.calls)
	}
}

func TestFetchFallsBackToSynthetic(t *testing.T) {
	primary := &flakySource{failUntil: 100}
	rs := NewResilientSource(primary, NewSyntheticSource(), fastPolicy(), nil)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 3, 0)
	txs, dataSource, err := rs.Fetch(context.Background(), "m-stable-01", from, to)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if dataSource != domain.SourceSynthetic {
		t.Errorf("data source = %q, want synthetic", dataSource)
	}
	if len(txs) == 0 {
		t.Error("fallback produced no transactions")
	}
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	primary := &flakySource{failUntil: 100}
	policy := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Minute, BackoffFactor: 1}
	rs := NewResilientSource(primary, nil, policy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := rs.Fetch(ctx, "m-001", time.Time{}, time.Time{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryPolicyNormalized(t *testing.T) {
	p := RetryPolicy{}.normalized()
	if p.MaxAttempts != 1 {
		t.Errorf("zero max attempts should normalize to 1, got %d", p.MaxAttempts)
	}
	if p.InitialBackoff <= 0 {
		t.Error("initial backoff should normalize to a positive duration")
	}
	if p.BackoffFactor < 1 {
		t.Errorf("backoff factor should normalize to at least 1, got %v", p.BackoffFactor)
	}
}
