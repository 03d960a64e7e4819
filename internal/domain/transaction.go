// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// TransactionStatus is the settlement state of a UPI transaction.
type TransactionStatus string

const (
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
	StatusPending TransactionStatus = "PENDING"
)

// TransactionType is the direction of money flow from the merchant's view.
type TransactionType string

const (
	TypeCredit TransactionType = "CREDIT"
	TypeDebit  TransactionType = "DEBIT"
)

// Transaction is a single UPI payment observed for a merchant.
// Transactions are immutable once produced by the data source.
type Transaction struct {
	ID         string `json:"id"`
	MerchantID string `json:"merchantId"`

	// CounterpartyVPA is the payment address of the other party.
	CounterpartyVPA string `json:"counterpartyVpa"`

	Type   TransactionType   `json:"type"`
	Status TransactionStatus `json:"status"`

	// Amount is signed: positive for credits, negative for debits.
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Category is a free-form merchant category label (e.g. "retail").
	Category string `json:"category,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// Valid reports whether the transaction carries the fields the metrics
// calculator needs. Invalid transactions are skipped, not fatal.
func (t *Transaction) Valid() bool {
	if t == nil {
		return false
	}
	if t.ID == "" || t.MerchantID == "" {
		return false
	}
	if t.Timestamp.IsZero() {
		return false
	}
	switch t.Status {
	case StatusSuccess, StatusFailed, StatusPending:
	default:
		return false
	}
	return true
}

// MonthKey returns the calendar-month bucket key (YYYY-MM) in UTC.
func (t *Transaction) MonthKey() string {
	return t.Timestamp.UTC().Format("2006-01")
}
