package domain

import (
	"time"
)

// MonthlyVolume is one calendar-month bucket of successful credit volume.
type MonthlyVolume struct {
	Month        string  `json:"month"` // YYYY-MM
	Volume       float64 `json:"volume"`
	TxCount      int     `json:"txCount"`
	UniquePayers int     `json:"uniquePayers"`
}

// FinancialMetrics is the derived, immutable snapshot of a merchant's
// payment behaviour over an evaluation window. All percentage-like fields
// lie in [0,100]; counts are non-negative. An empty transaction window
// produces zero metrics, never an error.
type FinancialMetrics struct {
	MerchantID  string    `json:"merchantId"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	ComputedAt  time.Time `json:"computedAt"`

	// Volume series and rolling sums.
	MonthlyVolumes   []MonthlyVolume `json:"monthlyVolumes"`
	Volume3M         float64         `json:"volume3m"`
	Volume6M         float64         `json:"volume6m"`
	Volume12M        float64         `json:"volume12m"`
	AvgMonthlyVolume float64         `json:"avgMonthlyVolume"`
	AvgTxnValue      float64         `json:"avgTxnValue"`

	// Counts.
	TotalCount   int `json:"totalCount"`
	SuccessCount int `json:"successCount"`
	FailedCount  int `json:"failedCount"`
	PendingCount int `json:"pendingCount"`

	// Customer concentration.
	UniquePayerCount      int     `json:"uniquePayerCount"`
	Top10PayerVolume      float64 `json:"top10PayerVolume"`
	CustomerConcentration float64 `json:"customerConcentration"` // percent

	// Stability and trend.
	ConsistencyScore       float64 `json:"consistencyScore"` // 0-100
	GrowthRate             float64 `json:"growthRate"`       // percent
	BounceRate             float64 `json:"bounceRate"`       // percent
	CoefficientOfVariation float64 `json:"coefficientOfVariation"`

	// Seasonality.
	IsSeasonalBusiness bool   `json:"isSeasonalBusiness"`
	PeakMonth          string `json:"peakMonth,omitempty"`
	TroughMonth        string `json:"troughMonth,omitempty"`

	// Fraud indicators.
	VolumeSpikeDetected  bool `json:"volumeSpikeDetected"`
	LowPayerDiversity    bool `json:"lowPayerDiversity"`
	SinglePayerDominance bool `json:"singlePayerDominance"`
}

// MonthsOfHistory returns the number of monthly buckets in the window.
func (m *FinancialMetrics) MonthsOfHistory() int {
	return len(m.MonthlyVolumes)
}

// Field resolves a metric value by the name used in rule configuration.
// The second return is false for unknown field names.
func (m *FinancialMetrics) Field(name string) (float64, bool) {
	switch name {
	case "avg_monthly_volume", "monthly_volume":
		return m.AvgMonthlyVolume, true
	case "volume_3m":
		return m.Volume3M, true
	case "volume_6m":
		return m.Volume6M, true
	case "volume_12m":
		return m.Volume12M, true
	case "avg_transaction_value":
		return m.AvgTxnValue, true
	case "consistency_score":
		return m.ConsistencyScore, true
	case "growth_rate":
		return m.GrowthRate, true
	case "bounce_rate":
		return m.BounceRate, true
	case "customer_concentration":
		return m.CustomerConcentration, true
	case "coefficient_of_variation":
		return m.CoefficientOfVariation, true
	case "unique_payers":
		return float64(m.UniquePayerCount), true
	case "months_of_history":
		return float64(m.MonthsOfHistory()), true
	case "total_transactions":
		return float64(m.TotalCount), true
	default:
		return 0, false
	}
}

// MetricFieldNames lists every field name resolvable via Field, in the
// order they are exposed to rule authors. Used to build the CEL
// environment for expression-based eligibility rules.
var MetricFieldNames = []string{
	"avg_monthly_volume",
	"volume_3m",
	"volume_6m",
	"volume_12m",
	"avg_transaction_value",
	"consistency_score",
	"growth_rate",
	"bounce_rate",
	"customer_concentration",
	"coefficient_of_variation",
	"unique_payers",
	"months_of_history",
	"total_transactions",
}
