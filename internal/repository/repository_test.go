package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpFile.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func sampleAssessment(id, merchantID string, assessedAt time.Time) *domain.CreditAssessment {
	return &domain.CreditAssessment{
		ID:               id,
		MerchantID:       merchantID,
		Score:            63,
		RiskCategory:     domain.RiskMedium,
		Eligible:         true,
		LoanAmount:       200000,
		LoanTenureMonths: 14,
		InterestRate:     18.0,
		Components: []domain.ComponentScore{
			{Name: "avg_monthly_volume", Metric: "avg_monthly_volume", Value: 150000, Weight: 0.3, TierScore: 60, TierMatched: true, Contribution: 18},
		},
		EligibilityResults: []domain.EligibilityResult{
			{RuleID: "min_volume", Name: "Minimum monthly volume", Passed: true, Value: 150000},
		},
		DataSource:   domain.SourceLive,
		RulesVersion: "1.0.0",
		AssessedAt:   assessedAt,
		WindowStart:  assessedAt.AddDate(0, -12, 0),
		WindowEnd:    assessedAt,
	}
}

func TestSaveAndGetAssessment(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	saved := sampleAssessment("a-001", "m-001", now)
	if err := repo.SaveAssessment(ctx, saved); err != nil {
		t.Fatalf("SaveAssessment failed: %v", err)
	}

	got, err := repo.GetAssessment(ctx, "a-001")
	if err != nil {
		t.Fatalf("GetAssessment failed: %v", err)
	}

	if got.MerchantID != "m-001" || got.Score != 63 || got.RiskCategory != domain.RiskMedium {
		t.Errorf("assessment round trip lost fields: %+v", got)
	}
	if !got.Eligible {
		t.Error("eligible flag lost in round trip")
	}
	if got.LoanTenureMonths != 14 || got.InterestRate != 18.0 {
		t.Errorf("loan terms lost: tenure=%d rate=%v", got.LoanTenureMonths, got.InterestRate)
	}
	if len(got.Components) != 1 || got.Components[0].Contribution != 18 {
		t.Errorf("component breakdown lost: %+v", got.Components)
	}
	if len(got.EligibilityResults) != 1 || got.EligibilityResults[0].RuleID != "min_volume" {
		t.Errorf("eligibility results lost: %+v", got.EligibilityResults)
	}
}

func TestSaveAssessmentValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.SaveAssessment(ctx, &domain.CreditAssessment{MerchantID: "m-001"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing id: expected ErrInvalidInput, got %v", err)
	}

	err = repo.SaveAssessment(ctx, &domain.CreditAssessment{ID: "a-001"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing merchant id: expected ErrInvalidInput, got %v", err)
	}
}

func TestGetAssessmentNotFound(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.GetAssessment(context.Background(), "no-such"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetLatestAssessment(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	older := sampleAssessment("a-old", "m-001", now.Add(-48*time.Hour))
	older.Score = 40
	newer := sampleAssessment("a-new", "m-001", now)

	if err := repo.SaveAssessment(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveAssessment(ctx, newer); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetLatestAssessment(ctx, "m-001")
	if err != nil {
		t.Fatalf("GetLatestAssessment failed: %v", err)
	}
	if got.ID != "a-new" {
		t.Errorf("latest = %q, want a-new", got.ID)
	}

	if _, err := repo.GetLatestAssessment(ctx, "m-unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unassessed merchant, got %v", err)
	}
}

func TestListStaleMerchants(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// m-stale's latest assessment is 2 days old, m-fresh was assessed
	// just now, m-mixed has an old record superseded by a fresh one.
	if err := repo.SaveAssessment(ctx, sampleAssessment("a-1", "m-stale", now.Add(-48*time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveAssessment(ctx, sampleAssessment("a-2", "m-fresh", now)); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveAssessment(ctx, sampleAssessment("a-3", "m-mixed", now.Add(-72*time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveAssessment(ctx, sampleAssessment("a-4", "m-mixed", now)); err != nil {
		t.Fatal(err)
	}

	stale, err := repo.ListStaleMerchants(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ListStaleMerchants failed: %v", err)
	}

	if len(stale) != 1 || stale[0] != "m-stale" {
		t.Errorf("stale merchants = %v, want [m-stale]", stale)
	}
}

func TestDeleteAssessmentsBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := repo.SaveAssessment(ctx, sampleAssessment("a-old", "m-001", now.Add(-96*time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveAssessment(ctx, sampleAssessment("a-new", "m-001", now)); err != nil {
		t.Fatal(err)
	}

	pruned, err := repo.DeleteAssessmentsBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteAssessmentsBefore failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	if _, err := repo.GetAssessment(ctx, "a-old"); !errors.Is(err, ErrNotFound) {
		t.Error("pruned assessment still readable")
	}
	if _, err := repo.GetAssessment(ctx, "a-new"); err != nil {
		t.Errorf("recent assessment lost: %v", err)
	}
}

func sampleTransactions(merchantID string, n int, at time.Time) []*domain.Transaction {
	txs := make([]*domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, &domain.Transaction{
			ID:              fmt.Sprintf("tx-%s-%03d", merchantID, i),
			MerchantID:      merchantID,
			CounterpartyVPA: fmt.Sprintf("payer%d@upi", i),
			Type:            domain.TypeCredit,
			Status:          domain.StatusSuccess,
			Amount:          1000,
			Currency:        "INR",
			Category:        "payment",
			Timestamp:       at.Add(time.Duration(i) * time.Minute),
			CreatedAt:       at,
		})
	}
	return txs
}

func TestSaveTransactionsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	txs := sampleTransactions("m-001", 5, now)
	if err := repo.SaveTransactions(ctx, txs); err != nil {
		t.Fatalf("SaveTransactions failed: %v", err)
	}
	// Overlapping window replays the same IDs.
	if err := repo.SaveTransactions(ctx, txs); err != nil {
		t.Fatalf("replayed SaveTransactions failed: %v", err)
	}

	got, err := repo.GetTransactionsByMerchant(ctx, "m-001", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetTransactionsByMerchant failed: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 stored transactions, got %d", len(got))
	}
}

func TestSaveTransactionsValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveTransactions(ctx, nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}

	err := repo.SaveTransactions(ctx, []*domain.Transaction{{MerchantID: "m-001"}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing id, got %v", err)
	}
}

func TestGetTransactionsSinceFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	old := sampleTransactions("m-old", 2, now.AddDate(0, -6, 0))
	for _, tx := range old {
		tx.MerchantID = "m-001"
	}
	recent := sampleTransactions("m-001", 3, now)

	if err := repo.SaveTransactions(ctx, append(old, recent...)); err != nil {
		t.Fatalf("SaveTransactions failed: %v", err)
	}

	got, err := repo.GetTransactionsByMerchant(ctx, "m-001", now.AddDate(0, -1, 0))
	if err != nil {
		t.Fatalf("GetTransactionsByMerchant failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 recent transactions, got %d", len(got))
	}
}

func TestRebind(t *testing.T) {
	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = ? AND b = ?" {
		t.Errorf("sqlite rebind changed query: %s", got)
	}

	pg := &SQLRepository{driver: "postgres"}
	got := pg.rebind("INSERT INTO t (a, b, c) VALUES (?, ?, ?)")
	want := "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"
	if got != want {
		t.Errorf("postgres rebind = %s, want %s", got, want)
	}
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
