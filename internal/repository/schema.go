package repository

// Schema definitions for Kestrel storage.
// Compatible with both SQLite and PostgreSQL.

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    merchant_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    risk_category TEXT NOT NULL,
    eligible INTEGER NOT NULL,
    loan_amount REAL NOT NULL DEFAULT 0,
    loan_tenure_months INTEGER NOT NULL DEFAULT 0,
    interest_rate REAL NOT NULL DEFAULT 0,
    components TEXT NOT NULL,
    eligibility_results TEXT NOT NULL,
    data_source TEXT NOT NULL DEFAULT '',
    rules_version TEXT NOT NULL,
    assessed_at TIMESTAMP NOT NULL,
    window_start TIMESTAMP,
    window_end TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_assessments_merchant ON assessments(merchant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_merchant_time ON assessments(merchant_id, assessed_at);
CREATE INDEX IF NOT EXISTS idx_assessments_time ON assessments(assessed_at);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    merchant_id TEXT NOT NULL,
    counterparty_vpa TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    status TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL DEFAULT 'INR',
    category TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions(merchant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_merchant_time ON transactions(merchant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAssessments,
		schemaTransactions,
	}
}
