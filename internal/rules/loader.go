// Package rules loads the versioned scoring rule document and evaluates
// it against financial metrics.
package rules

import (
	"fmt"
	"os"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"gopkg.in/yaml.v3"
)

// LoadFile reads and parses a scoring rules YAML document.
// Parse failures and structurally empty documents are hard errors;
// quality defects (weight drift, tier gaps) are warnings — see Validate.
func LoadFile(path string) (*domain.ScoringRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data)
}

// Parse parses a scoring rules document from raw YAML.
func Parse(data []byte) (*domain.ScoringRules, error) {
	var rules domain.ScoringRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules document: %w", err)
	}

	if rules.Version == "" {
		return nil, fmt.Errorf("rules document has no version")
	}
	if len(rules.Scoring.Components) == 0 {
		return nil, fmt.Errorf("rules document declares no scoring components")
	}

	return &rules, nil
}

// Validate inspects a rule set for authoring defects that the engine
// tolerates at evaluation time. The returned warnings are for operators;
// an empty slice means the document is clean.
func Validate(rules *domain.ScoringRules) []string {
	var warnings []string

	var weightSum float64
	for _, comp := range rules.Scoring.Components {
		weightSum += comp.Weight

		if comp.Metric == "" {
			warnings = append(warnings, fmt.Sprintf("component %q has no metric field", comp.Name))
			continue
		}
		if !knownMetric(comp.Metric) {
			warnings = append(warnings, fmt.Sprintf("component %q references unknown metric %q", comp.Name, comp.Metric))
		}
		if len(comp.Tiers) == 0 {
			warnings = append(warnings, fmt.Sprintf("component %q has no tiers", comp.Name))
		}
		for i, tier := range comp.Tiers {
			if tier.Min != nil && tier.Max != nil && *tier.Min >= *tier.Max {
				warnings = append(warnings, fmt.Sprintf("component %q tier %d has min >= max", comp.Name, i))
			}
			if tier.Score < 0 || tier.Score > 100 {
				warnings = append(warnings, fmt.Sprintf("component %q tier %d score outside [0,100]", comp.Name, i))
			}
		}
		warnings = append(warnings, validateTierGaps(comp)...)
	}
	if weightSum < 0.999 || weightSum > 1.001 {
		warnings = append(warnings, fmt.Sprintf("component weights sum to %.4f, expected 1.0", weightSum))
	}

	for _, rule := range rules.Eligibility.Rules {
		hasCond := rule.Condition != nil
		hasExpr := rule.Expression != ""
		if hasCond == hasExpr {
			warnings = append(warnings, fmt.Sprintf("eligibility rule %q must declare exactly one of condition or expression", rule.ID))
		}
		if hasCond && !knownMetric(rule.Condition.Field) {
			warnings = append(warnings, fmt.Sprintf("eligibility rule %q references unknown metric %q", rule.ID, rule.Condition.Field))
		}
		if hasCond && !validOperator(rule.Condition.Operator) {
			warnings = append(warnings, fmt.Sprintf("eligibility rule %q has unsupported operator %q", rule.ID, rule.Condition.Operator))
		}
	}

	warnings = append(warnings, validateBands(rules.RiskCategories)...)

	return warnings
}

// validateTierGaps checks a component's tiers leave no uncovered range
// between the lowest and highest declared bounds. Values falling in a
// gap take the engine's fallback score, which still works but deserves
// a warning.
func validateTierGaps(comp domain.ScoringComponent) []string {
	tiers := make([]domain.Tier, len(comp.Tiers))
	copy(tiers, comp.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		switch {
		case tiers[i].Min == nil:
			return true
		case tiers[j].Min == nil:
			return false
		default:
			return *tiers[i].Min < *tiers[j].Min
		}
	})

	var warnings []string
	var reach *float64
	for i, tier := range tiers {
		if i > 0 && tier.Min != nil && *tier.Min > *reach {
			warnings = append(warnings, fmt.Sprintf(
				"component %q has no tier covering values in [%g, %g)", comp.Name, *reach, *tier.Min))
		}
		reach = tier.Max
		if reach == nil {
			break // open upper bound covers everything above
		}
	}
	return warnings
}

// validateBands checks the risk bands jointly cover 0-100 without
// overlapping. Holes fall through to the hard-coded classification
// fallback, which still works but deserves a warning.
func validateBands(categories []domain.RiskCategory) []string {
	var warnings []string
	covered := make([]string, 101)
	for _, cat := range categories {
		if cat.ScoreRange.Min > cat.ScoreRange.Max {
			warnings = append(warnings, fmt.Sprintf("risk category %q has inverted score range", cat.Name))
			continue
		}
		for s := cat.ScoreRange.Min; s <= cat.ScoreRange.Max && s <= 100; s++ {
			if s < 0 {
				continue
			}
			if covered[s] != "" {
				warnings = append(warnings, fmt.Sprintf("risk categories %q and %q overlap at score %d", covered[s], cat.Name, s))
				break
			}
			covered[s] = cat.Name
		}
	}
	for s := 0; s <= 100; s++ {
		if covered[s] == "" {
			warnings = append(warnings, fmt.Sprintf("no risk category covers score %d", s))
			break
		}
	}
	return warnings
}

func knownMetric(name string) bool {
	for _, f := range domain.MetricFieldNames {
		if f == name {
			return true
		}
	}
	// monthly_volume is an accepted alias for avg_monthly_volume.
	return name == "monthly_volume"
}

func validOperator(op string) bool {
	switch op {
	case ">=", ">", "<=", "<", "==", "!=":
		return true
	}
	return false
}
