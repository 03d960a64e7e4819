package rules

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/cel-go/cel"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/stats"
)

// fallbackTierScore is awarded when a metric value falls outside every
// declared tier of a component. Tier gaps are authoring defects; the
// engine scores conservatively instead of failing the assessment.
const fallbackTierScore = 20.0

// contributionPrecision fixes each weighted contribution before summing
// so the final score is independent of summation order.
const contributionPrecision = 3

// Engine evaluates a merchant's financial metrics against the loaded
// rule set. The compiled rule set is an immutable snapshot behind an
// atomic pointer: evaluations in flight keep the version they started
// with, and Reload swaps the whole snapshot at once.
type Engine struct {
	env      *cel.Env
	snapshot atomic.Pointer[snapshot]
	logger   *slog.Logger
}

// snapshot is one compiled, immutable rule set version.
type snapshot struct {
	rules    *domain.ScoringRules
	programs map[string]cel.Program // eligibility rule ID -> compiled expression
}

// Evaluation is the engine's verdict for one metrics snapshot. All parts
// come from the same rule set version.
type Evaluation struct {
	Score              int
	Components         []domain.ComponentScore
	RiskCategory       string
	Eligible           bool
	EligibilityResults []domain.EligibilityResult
	LoanAmount         float64
	LoanTenureMonths   int
	InterestRate       float64
	RulesVersion       string
}

// NewEngine compiles the rule set and returns a ready engine.
// Expression-based eligibility rules are compiled against a CEL
// environment exposing every metric field as a double.
func NewEngine(rules *domain.ScoringRules, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := make([]cel.EnvOption, 0, len(domain.MetricFieldNames))
	for _, field := range domain.MetricFieldNames {
		opts = append(opts, cel.Variable(field, cel.DoubleType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env, logger: logger}
	if _, err := e.Reload(rules); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload compiles a new rule set and atomically replaces the current
// one. On compile failure the previous rule set stays active. The
// returned warnings are the rule set's quality issues, already logged;
// callers surface them without re-validating.
func (e *Engine) Reload(rules *domain.ScoringRules) ([]string, error) {
	snap := &snapshot{
		rules:    rules,
		programs: make(map[string]cel.Program),
	}

	for _, rule := range rules.Eligibility.Rules {
		if rule.Expression == "" {
			continue
		}
		ast, iss := e.env.Compile(rule.Expression)
		if iss.Err() != nil {
			return nil, fmt.Errorf("eligibility rule %q: %w", rule.ID, iss.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("eligibility rule %q: expression must yield bool, got %s", rule.ID, ast.OutputType())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("eligibility rule %q: %w", rule.ID, err)
		}
		snap.programs[rule.ID] = prg
	}

	warnings := Validate(rules)
	for _, warning := range warnings {
		e.logger.Warn("rule set quality issue", "version", rules.Version, "issue", warning)
	}

	e.snapshot.Store(snap)
	e.logger.Info("rule set loaded",
		"version", rules.Version,
		"components", len(rules.Scoring.Components),
		"eligibility_rules", len(rules.Eligibility.Rules),
	)
	return warnings, nil
}

// Rules returns the active rule set.
func (e *Engine) Rules() *domain.ScoringRules {
	return e.snapshot.Load().rules
}

// Version returns the active rule set version.
func (e *Engine) Version() string {
	return e.snapshot.Load().rules.Version
}

// Evaluate scores the metrics, classifies risk, runs every eligibility
// gate and, when eligible, resolves loan terms. The whole evaluation
// uses a single rule set snapshot.
func (e *Engine) Evaluate(m *domain.FinancialMetrics) *Evaluation {
	snap := e.snapshot.Load()

	components, score := e.scoreComponents(snap, m)
	results, eligible := e.evaluateEligibility(snap, m)

	ev := &Evaluation{
		Score:              score,
		Components:         components,
		RiskCategory:       e.classifyRisk(snap, score),
		Eligible:           eligible,
		EligibilityResults: results,
		RulesVersion:       snap.rules.Version,
	}

	if eligible {
		amount, tenure, rate, ok := e.loanTerms(snap, ev.RiskCategory, m.ConsistencyScore)
		if ok {
			ev.LoanAmount = amount
			ev.LoanTenureMonths = tenure
			ev.InterestRate = rate
		}
	}
	return ev
}

// scoreComponents resolves each component's tier and sums the weighted
// contributions in declaration order.
func (e *Engine) scoreComponents(snap *snapshot, m *domain.FinancialMetrics) ([]domain.ComponentScore, int) {
	components := make([]domain.ComponentScore, 0, len(snap.rules.Scoring.Components))
	var total float64

	for _, comp := range snap.rules.Scoring.Components {
		value, known := m.Field(comp.Metric)
		if !known {
			e.logger.Warn("component references unknown metric",
				"component", comp.Name, "metric", comp.Metric)
		}

		cs := domain.ComponentScore{
			Name:   comp.Name,
			Metric: comp.Metric,
			Value:  value,
			Weight: comp.Weight,
		}

		matched := false
		for _, tier := range comp.Tiers {
			if tier.Matches(value) {
				cs.TierScore = tier.Score
				cs.TierLabel = tier.Label
				cs.TierMatched = true
				matched = true
				break
			}
		}
		if !matched {
			cs.TierScore = fallbackTierScore
			e.logger.Warn("no tier matched, using fallback score",
				"component", comp.Name, "metric", comp.Metric, "value", value)
		}

		cs.Contribution = stats.RoundHalfUp(cs.TierScore*comp.Weight, contributionPrecision)
		total += cs.Contribution
		components = append(components, cs)
	}

	return components, stats.ClampInt(stats.RoundToInt(total), 0, 100)
}

// classifyRisk maps a score to its configured band. When no band covers
// the score, a fixed three-way split keeps classification total.
func (e *Engine) classifyRisk(snap *snapshot, score int) string {
	for _, cat := range snap.rules.RiskCategories {
		if cat.Contains(score) {
			return cat.Name
		}
	}

	e.logger.Warn("score not covered by any risk category", "score", score)
	switch {
	case score >= 80:
		return domain.RiskLow
	case score >= 60:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// evaluateEligibility runs every gate and collects the full diagnostic
// list. Rules never short-circuit: a declined merchant learns every
// reason at once.
func (e *Engine) evaluateEligibility(snap *snapshot, m *domain.FinancialMetrics) ([]domain.EligibilityResult, bool) {
	results := make([]domain.EligibilityResult, 0, len(snap.rules.Eligibility.Rules))
	eligible := true

	for _, rule := range snap.rules.Eligibility.Rules {
		res := domain.EligibilityResult{
			RuleID: rule.ID,
			Name:   rule.Name,
		}

		switch {
		case rule.Condition != nil:
			res.Passed, res.Value = e.evalCondition(rule, m)
		case rule.Expression != "":
			res.Passed = e.evalExpression(snap, rule, m)
		default:
			e.logger.Warn("eligibility rule declares neither condition nor expression", "rule_id", rule.ID)
			res.Passed = false
		}

		if !res.Passed {
			res.FailureMessage = rule.FailureMessage
			res.Recommendation = rule.Recommendation
			eligible = false
		}
		results = append(results, res)
	}

	return results, eligible
}

// evalCondition applies a structured threshold comparison. Unknown
// fields and operators fail closed: a broken gate must not approve.
func (e *Engine) evalCondition(rule domain.EligibilityRule, m *domain.FinancialMetrics) (bool, float64) {
	value, known := m.Field(rule.Condition.Field)
	if !known {
		e.logger.Warn("eligibility rule references unknown metric",
			"rule_id", rule.ID, "field", rule.Condition.Field)
		return false, 0
	}

	threshold := rule.Condition.Value
	switch rule.Condition.Operator {
	case ">=":
		return value >= threshold, value
	case ">":
		return value > threshold, value
	case "<=":
		return value <= threshold, value
	case "<":
		return value < threshold, value
	case "==":
		return value == threshold, value
	case "!=":
		return value != threshold, value
	default:
		e.logger.Warn("eligibility rule has unsupported operator",
			"rule_id", rule.ID, "operator", rule.Condition.Operator)
		return false, value
	}
}

// evalExpression runs a compiled CEL gate over the metric fields.
func (e *Engine) evalExpression(snap *snapshot, rule domain.EligibilityRule, m *domain.FinancialMetrics) bool {
	prg, ok := snap.programs[rule.ID]
	if !ok {
		e.logger.Warn("eligibility rule has no compiled program", "rule_id", rule.ID)
		return false
	}

	activation := make(map[string]any, len(domain.MetricFieldNames))
	for _, field := range domain.MetricFieldNames {
		v, _ := m.Field(field)
		activation[field] = v
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		e.logger.Warn("eligibility expression evaluation failed",
			"rule_id", rule.ID, "error", err)
		return false
	}

	passed, ok := out.Value().(bool)
	if !ok {
		e.logger.Warn("eligibility expression yielded non-bool", "rule_id", rule.ID)
		return false
	}
	return passed
}

// loanTerms resolves the configured loan tables for a risk category and
// applies the tenure adjustment declared in the rule set.
func (e *Engine) loanTerms(snap *snapshot, category string, consistency float64) (amount float64, tenureMonths int, interestRate float64, ok bool) {
	lp := snap.rules.LoanParameters

	amount, okA := lp.Amount[category]
	baseTenure, okT := lp.TenureMonths[category]
	interestRate, okR := lp.InterestRate[category]
	if !okA || !okT || !okR {
		e.logger.Warn("loan parameters missing for risk category", "category", category)
		return 0, 0, 0, false
	}

	tenureMonths = baseTenure
	if adj := lp.TenureAdjustment; adj != nil {
		adjusted := float64(baseTenure) + adj.Slope*(consistency-adj.Pivot)
		tenureMonths = stats.ClampInt(stats.RoundToInt(adjusted), adj.MinMonths, adj.MaxMonths)
	}
	return amount, tenureMonths, interestRate, true
}
