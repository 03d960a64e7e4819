// Package scoring coordinates one assessment run: fetch history, derive
// metrics, evaluate rules, persist and announce the result.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/source"
)

// ErrInvalidMerchant is returned for an empty merchant ID. Bad caller
// input is fatal for the request; it is never scored around.
var ErrInvalidMerchant = errors.New("merchant id is required")

// DefaultWindowMonths is the assessment window when the caller does not
// choose one.
const DefaultWindowMonths = 12

// Hypothetical inputs left unset in a simulation default to a modest
// but unremarkable merchant.
const (
	defaultSimBounceRate    = 5.0
	defaultSimConcentration = 30.0
)

// assessmentCacheTTL bounds how long a cached latest assessment serves
// reads before the repository is consulted again.
const assessmentCacheTTL = 10 * time.Minute

// fetchRateLimit caps upstream fetches per merchant per fetchRateWindow.
// Over the limit, a cached assessment is served instead of hitting the
// transaction source again.
const (
	fetchRateLimit  = 5
	fetchRateWindow = time.Minute
)

// Orchestrator runs the assessment pipeline.
type Orchestrator struct {
	source     *source.ResilientSource
	calculator *metrics.Calculator
	engine     *rules.Engine
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	logger     *slog.Logger
}

// NewOrchestrator wires the pipeline. cache and bus may be nil; the
// pipeline then skips those stages.
func NewOrchestrator(
	src *source.ResilientSource,
	calculator *metrics.Calculator,
	engine *rules.Engine,
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		source:     src,
		calculator: calculator,
		engine:     engine,
		repo:       repo,
		cache:      cache,
		bus:        bus,
		logger:     logger,
	}
}

// AssessmentEvent is the bus payload published after each run.
type AssessmentEvent struct {
	AssessmentID string    `json:"assessmentId"`
	MerchantID   string    `json:"merchantId"`
	Score        int       `json:"score"`
	RiskCategory string    `json:"riskCategory"`
	Eligible     bool      `json:"eligible"`
	RulesVersion string    `json:"rulesVersion"`
	DataSource   string    `json:"dataSource"`
	AssessedAt   time.Time `json:"assessedAt"`
}

// Assess runs a full assessment over the merchant's trailing window.
// Persistence failure fails the run; cache and bus failures are logged
// and tolerated.
func (o *Orchestrator) Assess(ctx context.Context, merchantID string, windowMonths int) (*domain.CreditAssessment, error) {
	if merchantID == "" {
		return nil, ErrInvalidMerchant
	}
	if windowMonths <= 0 {
		windowMonths = DefaultWindowMonths
	}

	if cached := o.rateLimited(ctx, merchantID); cached != nil {
		return cached, nil
	}

	windowEnd := time.Now().UTC()
	windowStart := windowEnd.AddDate(0, -windowMonths, 0)

	txs, dataSource, err := o.source.Fetch(ctx, merchantID, windowStart, windowEnd)
	if err != nil {
		o.publishFailure(ctx, merchantID, err)
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	m, skipped, err := o.calculator.Calculate(merchantID, txs, windowStart, windowEnd)
	if err != nil {
		o.publishFailure(ctx, merchantID, err)
		return nil, fmt.Errorf("failed to compute metrics: %w", err)
	}

	ev := o.engine.Evaluate(m)
	assessment := o.buildAssessment(merchantID, dataSource, ev, windowStart, windowEnd)

	if err := o.repo.SaveAssessment(ctx, assessment); err != nil {
		o.publishFailure(ctx, merchantID, err)
		return nil, fmt.Errorf("failed to save assessment: %w", err)
	}
	if dataSource == domain.SourceLive && len(txs) > 0 {
		if err := o.repo.SaveTransactions(ctx, txs); err != nil {
			o.logger.Warn("failed to persist transaction window",
				"merchant_id", merchantID, "error", err)
		}
	}

	if o.cache != nil {
		if err := o.cache.SetAssessment(ctx, merchantID, assessment, assessmentCacheTTL); err != nil {
			o.logger.Warn("failed to cache assessment",
				"merchant_id", merchantID, "error", err)
		}
	}

	o.publishCompleted(ctx, assessment)

	o.logger.Info("assessment completed",
		"merchant_id", merchantID,
		"assessment_id", assessment.ID,
		"score", assessment.Score,
		"risk_category", assessment.RiskCategory,
		"eligible", assessment.Eligible,
		"data_source", dataSource,
		"transactions", len(txs),
		"skipped", skipped,
	)
	return assessment, nil
}

// rateLimited counts the merchant's fetches in the current window and,
// over the limit, returns a cached assessment to serve instead. A miss
// on either the counter or the cached assessment lets the fetch proceed:
// the limiter protects the upstream source, it never blocks a run.
func (o *Orchestrator) rateLimited(ctx context.Context, merchantID string) *domain.CreditAssessment {
	if o.cache == nil {
		return nil
	}
	n, err := o.cache.IncrementCounter(ctx, "fetch:"+merchantID, fetchRateWindow)
	if err != nil || n <= fetchRateLimit {
		return nil
	}
	a, err := o.cache.GetAssessment(ctx, merchantID)
	if err != nil || a == nil {
		return nil
	}
	o.logger.Warn("fetch rate limit reached, serving cached assessment",
		"merchant_id", merchantID, "count", n)
	return a
}

// SimulateRequest carries hypothetical inputs for a what-if run. Nil
// pointers take documented defaults.
type SimulateRequest struct {
	AvgMonthlyVolume      float64  `json:"avgMonthlyVolume" validate:"gte=0"`
	ConsistencyScore      float64  `json:"consistencyScore" validate:"gte=0,lte=100"`
	GrowthRate            float64  `json:"growthRate"`
	BounceRate            *float64 `json:"bounceRate,omitempty" validate:"omitempty,gte=0,lte=100"`
	CustomerConcentration *float64 `json:"customerConcentration,omitempty" validate:"omitempty,gte=0,lte=100"`
	MonthsOfHistory       int      `json:"monthsOfHistory" validate:"gte=0"`
}

// Simulate scores hypothetical metrics without touching storage, the
// cache or the bus. Useful for lenders exploring thresholds.
func (o *Orchestrator) Simulate(ctx context.Context, req SimulateRequest) (*domain.CreditAssessment, error) {
	bounce := defaultSimBounceRate
	if req.BounceRate != nil {
		bounce = *req.BounceRate
	}
	concentration := defaultSimConcentration
	if req.CustomerConcentration != nil {
		concentration = *req.CustomerConcentration
	}
	months := req.MonthsOfHistory
	if months <= 0 {
		months = DefaultWindowMonths
	}

	m := &domain.FinancialMetrics{
		MerchantID:            "simulation",
		AvgMonthlyVolume:      req.AvgMonthlyVolume,
		ConsistencyScore:      req.ConsistencyScore,
		GrowthRate:            req.GrowthRate,
		BounceRate:            bounce,
		CustomerConcentration: concentration,
		ComputedAt:            time.Now().UTC(),
	}
	// MonthsOfHistory derives from the bucket count, so synthesize
	// empty buckets to represent the hypothetical history length.
	m.MonthlyVolumes = make([]domain.MonthlyVolume, months)

	ev := o.engine.Evaluate(m)
	a := o.buildAssessment("simulation", "simulation", ev, time.Time{}, time.Time{})
	a.ID = ""
	return a, nil
}

// Latest returns the merchant's most recent assessment, trying the
// cache before the repository.
func (o *Orchestrator) Latest(ctx context.Context, merchantID string) (*domain.CreditAssessment, error) {
	if merchantID == "" {
		return nil, ErrInvalidMerchant
	}

	if o.cache != nil {
		if a, err := o.cache.GetAssessment(ctx, merchantID); err == nil && a != nil {
			return a, nil
		}
	}

	a, err := o.repo.GetLatestAssessment(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		if err := o.cache.SetAssessment(ctx, merchantID, a, assessmentCacheTTL); err != nil {
			o.logger.Warn("failed to cache assessment",
				"merchant_id", merchantID, "error", err)
		}
	}
	return a, nil
}

// Get returns an assessment by ID.
func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.CreditAssessment, error) {
	return o.repo.GetAssessment(ctx, id)
}

// RulesVersion exposes the active rule set version for API responses.
func (o *Orchestrator) RulesVersion() string {
	return o.engine.Version()
}

func (o *Orchestrator) buildAssessment(merchantID, dataSource string, ev *rules.Evaluation, windowStart, windowEnd time.Time) *domain.CreditAssessment {
	return &domain.CreditAssessment{
		ID:                 uuid.NewString(),
		MerchantID:         merchantID,
		Score:              ev.Score,
		RiskCategory:       ev.RiskCategory,
		Eligible:           ev.Eligible,
		LoanAmount:         ev.LoanAmount,
		LoanTenureMonths:   ev.LoanTenureMonths,
		InterestRate:       ev.InterestRate,
		Components:         ev.Components,
		EligibilityResults: ev.EligibilityResults,
		DataSource:         dataSource,
		RulesVersion:       ev.RulesVersion,
		AssessedAt:         time.Now().UTC(),
		WindowStart:        windowStart,
		WindowEnd:          windowEnd,
	}
}

func (o *Orchestrator) publishCompleted(ctx context.Context, a *domain.CreditAssessment) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(AssessmentEvent{
		AssessmentID: a.ID,
		MerchantID:   a.MerchantID,
		Score:        a.Score,
		RiskCategory: a.RiskCategory,
		Eligible:     a.Eligible,
		RulesVersion: a.RulesVersion,
		DataSource:   a.DataSource,
		AssessedAt:   a.AssessedAt,
	})
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, domain.TopicAssessmentCompleted, payload); err != nil {
		o.logger.Warn("failed to publish assessment event",
			"merchant_id", a.MerchantID, "error", err)
	}
}

func (o *Orchestrator) publishFailure(ctx context.Context, merchantID string, cause error) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"merchantId": merchantID,
		"error":      cause.Error(),
	})
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, domain.TopicAssessmentFailed, payload); err != nil {
		o.logger.Warn("failed to publish failure event",
			"merchant_id", merchantID, "error", err)
	}
}
