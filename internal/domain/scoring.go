package domain

// ScoringRules is the full versioned rule document. It is loaded once,
// treated as read-only, and replaced wholesale on reload — never mutated
// during evaluation.
type ScoringRules struct {
	Version  string        `yaml:"version" json:"version"`
	Metadata RulesMetadata `yaml:"metadata" json:"metadata"`

	Scoring struct {
		Components []ScoringComponent `yaml:"components" json:"components"`
	} `yaml:"scoring" json:"scoring"`

	Eligibility struct {
		Rules []EligibilityRule `yaml:"rules" json:"rules"`
	} `yaml:"eligibility" json:"eligibility"`

	RiskCategories []RiskCategory `yaml:"risk_categories" json:"riskCategories"`

	LoanParameters LoanParameters `yaml:"loan_parameters" json:"loanParameters"`

	Governance Governance       `yaml:"governance" json:"governance"`
	Changelog  []ChangelogEntry `yaml:"changelog" json:"changelog"`
}

// RulesMetadata describes the rule set for auditors.
type RulesMetadata struct {
	Name            string   `yaml:"name" json:"name"`
	Description     string   `yaml:"description" json:"description"`
	ExcludedFactors []string `yaml:"excluded_factors" json:"excludedFactors,omitempty"`
}

// ScoringComponent is one weighted contributor to the final score.
// Components are evaluated in declaration order for reproducibility.
type ScoringComponent struct {
	Name        string  `yaml:"name" json:"name"`
	Weight      float64 `yaml:"weight" json:"weight"` // fraction; all weights sum to 1.0
	Metric      string  `yaml:"metric" json:"metric"` // FinancialMetrics field name
	Unit        string  `yaml:"unit" json:"unit,omitempty"`
	Description string  `yaml:"description" json:"description,omitempty"`
	Tiers       []Tier  `yaml:"tiers" json:"tiers"`
}

// Tier is a scored bucket within a component. Min is inclusive, Max
// exclusive; a nil bound is open. First declared match wins.
type Tier struct {
	Min   *float64 `yaml:"min" json:"min,omitempty"`
	Max   *float64 `yaml:"max" json:"max,omitempty"`
	Score float64  `yaml:"score" json:"score"` // 0-100
	Label string   `yaml:"label" json:"label,omitempty"`
}

// Matches reports whether value falls inside the tier bounds.
func (t Tier) Matches(value float64) bool {
	if t.Min != nil && value < *t.Min {
		return false
	}
	if t.Max != nil && value >= *t.Max {
		return false
	}
	return true
}

// EligibilityRule is a pass/fail gate independent of scoring. A rule
// declares either a structured Condition or a CEL Expression over the
// metric fields, not both.
type EligibilityRule struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description,omitempty"`
	Condition   *Condition `yaml:"condition" json:"condition,omitempty"`
	Expression  string     `yaml:"expression" json:"expression,omitempty"`

	FailureMessage string `yaml:"failure_message" json:"failureMessage"`
	Recommendation string `yaml:"recommendation" json:"recommendation,omitempty"`
}

// Condition compares a metric field against a threshold.
type Condition struct {
	Field    string  `yaml:"field" json:"field"`
	Operator string  `yaml:"operator" json:"operator"` // >=, >, <=, <, ==, !=
	Value    float64 `yaml:"value" json:"value"`
	Unit     string  `yaml:"unit" json:"unit,omitempty"`
}

// RiskCategory maps a score range to a risk band. Ranges are inclusive
// on both ends and evaluated in descending score order.
type RiskCategory struct {
	Name        string `yaml:"name" json:"name"` // LOW, MEDIUM, HIGH
	Label       string `yaml:"label" json:"label,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
	ScoreRange  struct {
		Min int `yaml:"min" json:"min"`
		Max int `yaml:"max" json:"max"`
	} `yaml:"score_range" json:"scoreRange"`
}

// Contains reports whether score falls inside the band.
func (c RiskCategory) Contains(score int) bool {
	return score >= c.ScoreRange.Min && score <= c.ScoreRange.Max
}

// LoanParameters holds the per-risk-category loan term tables plus the
// consistency-based tenure adjustment function.
type LoanParameters struct {
	Amount           map[string]float64 `yaml:"amount" json:"amount"`                  // category -> max amount
	TenureMonths     map[string]int     `yaml:"tenure_months" json:"tenureMonths"`     // category -> base tenure
	InterestRate     map[string]float64 `yaml:"interest_rate" json:"interestRate"`     // category -> annual %
	TenureAdjustment *TenureAdjustment  `yaml:"tenure_adjustment" json:"tenureAdjustment,omitempty"`
}

// TenureAdjustment is a configuration-declared linear function applied to
// the base tenure: adjusted = base + slope * (consistency - pivot),
// clamped to [min, max]. The engine applies it generically; the formula
// is not hard-coded.
type TenureAdjustment struct {
	Slope        float64 `yaml:"slope" json:"slope"`
	Pivot        float64 `yaml:"pivot" json:"pivot"`
	MinMonths    int     `yaml:"min_months" json:"minMonths"`
	MaxMonths    int     `yaml:"max_months" json:"maxMonths"`
}

// Governance records the change process for the rule set.
type Governance struct {
	ChangeProcess string   `yaml:"change_process" json:"changeProcess,omitempty"`
	Principles    []string `yaml:"principles" json:"principles,omitempty"`
}

// ChangelogEntry is one entry in the rule set's change history.
type ChangelogEntry struct {
	Version string `yaml:"version" json:"version"`
	Date    string `yaml:"date" json:"date"`
	Changes string `yaml:"changes" json:"changes"`
	Author  string `yaml:"author" json:"author,omitempty"`
}

// Risk category names used by the classification fallback.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)
