package domain

import (
	"time"
)

// CreditAssessment is the result of one scoring run for a merchant.
// Assessments are never mutated; re-assessment creates a new record.
type CreditAssessment struct {
	ID         string `json:"id"`
	MerchantID string `json:"merchantId"`

	Score        int    `json:"score"` // 0-100
	RiskCategory string `json:"riskCategory"`

	Eligible bool `json:"eligible"`

	// Loan terms, present only when the merchant is eligible.
	LoanAmount       float64 `json:"loanAmount,omitempty"`
	LoanTenureMonths int     `json:"loanTenureMonths,omitempty"`
	InterestRate     float64 `json:"interestRate,omitempty"`

	// Per-component breakdown for transparency/audit.
	Components []ComponentScore `json:"components"`

	// Every eligibility rule outcome, pass or fail.
	EligibilityResults []EligibilityResult `json:"eligibilityResults"`

	// DataSource records whether live or synthetic history fed the run.
	DataSource string `json:"dataSource,omitempty"`

	RulesVersion string    `json:"rulesVersion"`
	AssessedAt   time.Time `json:"assessedAt"`

	// Window the metrics were computed over.
	WindowStart time.Time `json:"windowStart,omitempty"`
	WindowEnd   time.Time `json:"windowEnd,omitempty"`
}

// ComponentScore is the audit record for one scoring component.
type ComponentScore struct {
	Name         string  `json:"name"`
	Metric       string  `json:"metric"`
	Value        float64 `json:"value"`     // metric input used
	TierScore    float64 `json:"tierScore"` // raw tier score
	TierLabel    string  `json:"tierLabel,omitempty"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"` // tierScore * weight

	// TierMatched is false when the value fell in a configuration gap
	// and the fallback score was assigned.
	TierMatched bool `json:"tierMatched"`
}

// EligibilityResult is the outcome of a single eligibility rule.
type EligibilityResult struct {
	RuleID         string  `json:"ruleId"`
	Name           string  `json:"name"`
	Passed         bool    `json:"passed"`
	Value          float64 `json:"value,omitempty"`
	FailureMessage string  `json:"failureMessage,omitempty"`
	Recommendation string  `json:"recommendation,omitempty"`
}

// Data source labels for CreditAssessment.DataSource.
const (
	SourceLive      = "live"
	SourceSynthetic = "synthetic"
)
