// Package metrics turns a merchant's raw transaction window into the
// FinancialMetrics aggregate the rule engine scores against.
package metrics

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/stats"
)

// ErrNilTransactions is returned when the caller passes a nil list.
// An empty window is fine; a missing one is a contract violation.
var ErrNilTransactions = errors.New("transaction list is nil")

// Heuristic thresholds. These are aggregation constants, not scoring
// policy — scoring thresholds live in the rules document.
const (
	// seasonalityCV is the coefficient-of-variation floor above which a
	// monthly series is considered seasonal.
	seasonalityCV = 0.4

	// seasonalityMinMonths requires two full yearly cycles before
	// calling a business seasonal.
	seasonalityMinMonths = 24

	// spikeMultiple flags a month-over-month volume jump beyond this
	// factor as a possible wash-trading spike.
	spikeMultiple = 3.0

	// diversityFloor flags merchants paid by fewer distinct VPAs.
	diversityFloor = 5

	// dominanceCeiling flags top-10 concentration above this percent.
	dominanceCeiling = 80.0

	// topPayerCount is how many counterparties the concentration ratio
	// considers.
	topPayerCount = 10
)

// Calculator aggregates transactions into FinancialMetrics.
// It is stateless and safe for concurrent use.
type Calculator struct{}

// NewCalculator creates a metrics calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate derives FinancialMetrics for one merchant's window.
// Transactions need not be ordered; bucketing sorts internally.
// Malformed transactions are skipped and counted in the second return.
// Only a nil list is an error.
func (c *Calculator) Calculate(merchantID string, txs []*domain.Transaction, windowStart, windowEnd time.Time) (*domain.FinancialMetrics, int, error) {
	if txs == nil {
		return nil, 0, ErrNilTransactions
	}

	m := &domain.FinancialMetrics{
		MerchantID:  merchantID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		ComputedAt:  time.Now().UTC(),
	}

	type bucket struct {
		volume  float64
		txCount int
		payers  map[string]struct{}
	}
	buckets := make(map[string]*bucket)
	payerVolumes := make(map[string]float64)

	var skipped int
	var creditVolume float64
	var creditCount int

	for _, tx := range txs {
		if !tx.Valid() {
			skipped++
			continue
		}

		m.TotalCount++
		switch tx.Status {
		case domain.StatusFailed:
			m.FailedCount++
			continue
		case domain.StatusPending:
			m.PendingCount++
			continue
		}
		m.SuccessCount++

		// Only successful credits feed the volume series.
		if tx.Type != domain.TypeCredit || tx.Amount <= 0 {
			continue
		}

		key := tx.MonthKey()
		b := buckets[key]
		if b == nil {
			b = &bucket{payers: make(map[string]struct{})}
			buckets[key] = b
		}
		b.volume += tx.Amount
		b.txCount++
		if tx.CounterpartyVPA != "" {
			b.payers[tx.CounterpartyVPA] = struct{}{}
			payerVolumes[tx.CounterpartyVPA] += tx.Amount
		}

		creditVolume += tx.Amount
		creditCount++
	}

	if skipped > 0 {
		slog.Warn("skipped malformed transactions",
			"merchant_id", merchantID,
			"skipped", skipped,
		)
	}

	// Ordered monthly series, oldest first.
	months := make([]string, 0, len(buckets))
	for k := range buckets {
		months = append(months, k)
	}
	sort.Strings(months)

	volumes := make([]float64, 0, len(months))
	for _, month := range months {
		b := buckets[month]
		m.MonthlyVolumes = append(m.MonthlyVolumes, domain.MonthlyVolume{
			Month:        month,
			Volume:       b.volume,
			TxCount:      b.txCount,
			UniquePayers: len(b.payers),
		})
		volumes = append(volumes, b.volume)
	}

	m.Volume3M = tailSum(volumes, 3)
	m.Volume6M = tailSum(volumes, 6)
	m.Volume12M = tailSum(volumes, 12)
	m.AvgMonthlyVolume = stats.Mean(volumes)
	if creditCount > 0 {
		m.AvgTxnValue = stats.RoundHalfUp(creditVolume/float64(creditCount), 2)
	}

	m.BounceRate = stats.Percentage(float64(m.FailedCount), float64(m.TotalCount))

	c.concentration(m, payerVolumes, creditVolume)

	// An empty volume series keeps every derived metric at zero, so a
	// merchant with no history never scores as "perfectly consistent".
	if len(volumes) > 0 {
		m.ConsistencyScore = stats.ConsistencyScore(volumes)
		m.CoefficientOfVariation = stats.CoefficientOfVariation(volumes)
		m.GrowthRate = growthRate(volumes)
	}

	c.seasonality(m, volumes)
	c.fraudIndicators(m, volumes)

	return m, skipped, nil
}

// concentration ranks counterparties by volume and computes the top-10
// concentration ratio.
func (c *Calculator) concentration(m *domain.FinancialMetrics, payerVolumes map[string]float64, totalVolume float64) {
	m.UniquePayerCount = len(payerVolumes)
	if len(payerVolumes) == 0 || totalVolume == 0 {
		return
	}

	ranked := make([]float64, 0, len(payerVolumes))
	for _, v := range payerVolumes {
		ranked = append(ranked, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ranked)))

	top := topPayerCount
	if top > len(ranked) {
		top = len(ranked)
	}
	for _, v := range ranked[:top] {
		m.Top10PayerVolume += v
	}
	m.CustomerConcentration = stats.Percentage(m.Top10PayerVolume, totalVolume)
}

// seasonality flags high-variability series spanning at least two full
// yearly cycles and records the peak and trough months.
func (c *Calculator) seasonality(m *domain.FinancialMetrics, volumes []float64) {
	if len(volumes) < seasonalityMinMonths || m.CoefficientOfVariation <= seasonalityCV {
		return
	}
	m.IsSeasonalBusiness = true

	peak, trough := 0, 0
	for i, v := range volumes {
		if v > volumes[peak] {
			peak = i
		}
		if v < volumes[trough] {
			trough = i
		}
	}
	m.PeakMonth = m.MonthlyVolumes[peak].Month
	m.TroughMonth = m.MonthlyVolumes[trough].Month
}

// fraudIndicators applies the boolean heuristics: sudden volume spikes,
// thin payer diversity, single-payer dominance.
func (c *Calculator) fraudIndicators(m *domain.FinancialMetrics, volumes []float64) {
	for i := 1; i < len(volumes); i++ {
		if volumes[i-1] > 0 && volumes[i] > volumes[i-1]*spikeMultiple {
			m.VolumeSpikeDetected = true
			break
		}
	}
	if m.TotalCount > 0 && m.UniquePayerCount < diversityFloor {
		m.LowPayerDiversity = true
	}
	if m.CustomerConcentration > dominanceCeiling {
		m.SinglePayerDominance = true
	}
}

// growthRate compares the most recent period's volume against the
// immediately preceding period of equal length: three months against
// three when at least six exist, otherwise halves of the series.
func growthRate(volumes []float64) float64 {
	n := len(volumes)
	if n < 2 {
		return 0
	}

	period := 3
	if n < 6 {
		period = n / 2
	}

	recent := sum(volumes[n-period:])
	previous := sum(volumes[n-2*period : n-period])
	return stats.GrowthRate(recent, previous)
}

func tailSum(volumes []float64, months int) float64 {
	if months > len(volumes) {
		months = len(volumes)
	}
	return sum(volumes[len(volumes)-months:])
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}
