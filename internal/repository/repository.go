// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAssessment stores one immutable assessment record.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.CreditAssessment) error {
	if a.ID == "" || a.MerchantID == "" {
		return fmt.Errorf("%w: assessment id and merchant id are required", ErrInvalidInput)
	}

	components, _ := json.Marshal(a.Components)
	eligibilityResults, _ := json.Marshal(a.EligibilityResults)

	eligible := 0
	if a.Eligible {
		eligible = 1
	}

	query := `
		INSERT INTO assessments (
			id, merchant_id, score, risk_category, eligible,
			loan_amount, loan_tenure_months, interest_rate,
			components, eligibility_results, data_source,
			rules_version, assessed_at, window_start, window_end
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.MerchantID, a.Score, a.RiskCategory, eligible,
		a.LoanAmount, a.LoanTenureMonths, a.InterestRate,
		string(components), string(eligibilityResults), a.DataSource,
		a.RulesVersion, a.AssessedAt, a.WindowStart, a.WindowEnd,
	)
	return err
}

// GetAssessment retrieves an assessment by ID.
func (r *SQLRepository) GetAssessment(ctx context.Context, id string) (*domain.CreditAssessment, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: assessment id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, merchant_id, score, risk_category, eligible,
			   loan_amount, loan_tenure_months, interest_rate,
			   components, eligibility_results, data_source,
			   rules_version, assessed_at, window_start, window_end
		FROM assessments
		WHERE id = ?
	`

	return r.scanAssessment(r.db.QueryRowContext(ctx, r.rebind(query), id))
}

// GetLatestAssessment retrieves the merchant's most recent assessment.
func (r *SQLRepository) GetLatestAssessment(ctx context.Context, merchantID string) (*domain.CreditAssessment, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: merchant id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, merchant_id, score, risk_category, eligible,
			   loan_amount, loan_tenure_months, interest_rate,
			   components, eligibility_results, data_source,
			   rules_version, assessed_at, window_start, window_end
		FROM assessments
		WHERE merchant_id = ?
		ORDER BY assessed_at DESC
		LIMIT 1
	`

	return r.scanAssessment(r.db.QueryRowContext(ctx, r.rebind(query), merchantID))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanAssessment(row rowScanner) (*domain.CreditAssessment, error) {
	var a domain.CreditAssessment
	var components, eligibilityResults string
	var eligible int

	err := row.Scan(
		&a.ID, &a.MerchantID, &a.Score, &a.RiskCategory, &eligible,
		&a.LoanAmount, &a.LoanTenureMonths, &a.InterestRate,
		&components, &eligibilityResults, &a.DataSource,
		&a.RulesVersion, &a.AssessedAt, &a.WindowStart, &a.WindowEnd,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Eligible = eligible == 1
	if err := json.Unmarshal([]byte(components), &a.Components); err != nil {
		return nil, fmt.Errorf("failed to parse component breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(eligibilityResults), &a.EligibilityResults); err != nil {
		return nil, fmt.Errorf("failed to parse eligibility results: %w", err)
	}

	return &a, nil
}

// ListStaleMerchants returns merchants whose latest assessment predates
// the cutoff, oldest first so the sweeper refreshes them in need order.
func (r *SQLRepository) ListStaleMerchants(ctx context.Context, before time.Time) ([]string, error) {
	query := `
		SELECT merchant_id, MAX(assessed_at) AS latest
		FROM assessments
		GROUP BY merchant_id
		HAVING MAX(assessed_at) < ?
		ORDER BY latest ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merchants []string
	for rows.Next() {
		var id string
		// SQLite aggregates lose column type affinity, so MAX(assessed_at)
		// arrives as a string driver value; the timestamp is only needed
		// for the ORDER BY, so scan it as text and discard it.
		var latest sql.NullString
		if err := rows.Scan(&id, &latest); err != nil {
			return nil, err
		}
		merchants = append(merchants, id)
	}

	return merchants, rows.Err()
}

// DeleteAssessmentsBefore prunes assessments older than the cutoff.
func (r *SQLRepository) DeleteAssessmentsBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM assessments WHERE assessed_at < ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SaveTransactions stores a fetched transaction window for audit and
// replay. Already-stored transactions are skipped, so re-assessments
// with overlapping windows stay idempotent.
func (r *SQLRepository) SaveTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		INSERT INTO transactions (
			id, merchant_id, counterparty_vpa, type, status,
			amount, currency, category, timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, tx := range txs {
		if tx.ID == "" || tx.MerchantID == "" {
			return fmt.Errorf("%w: transaction id and merchant id are required", ErrInvalidInput)
		}
		if _, err := stmt.ExecContext(ctx,
			tx.ID, tx.MerchantID, tx.CounterpartyVPA, tx.Type, tx.Status,
			tx.Amount, tx.Currency, tx.Category, tx.Timestamp, tx.CreatedAt,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// GetTransactionsByMerchant retrieves stored transactions for a merchant.
func (r *SQLRepository) GetTransactionsByMerchant(ctx context.Context, merchantID string, since time.Time) ([]*domain.Transaction, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: merchant id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, merchant_id, counterparty_vpa, type, status,
			   amount, currency, category, timestamp, created_at
		FROM transactions
		WHERE merchant_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), merchantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(
			&tx.ID, &tx.MerchantID, &tx.CounterpartyVPA, &tx.Type, &tx.Status,
			&tx.Amount, &tx.Currency, &tx.Category, &tx.Timestamp, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
