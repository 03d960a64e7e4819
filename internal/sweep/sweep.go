// Package sweep re-assesses merchants whose latest assessment has gone
// stale, on a schedule, and prunes assessments past retention.
package sweep

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Report summarizes one sweep run.
type Report struct {
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Pruned    int64     `json:"pruned"`
}

// Sweeper drives periodic batch re-assessment. Merchants are processed
// by a bounded worker pool; one merchant's failure never stops the
// sweep.
type Sweeper struct {
	orchestrator *scoring.Orchestrator
	repo         domain.Repository
	bus          domain.EventBus
	cfg          domain.SweepConfig
	logger       *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a sweeper. bus may be nil.
func New(orchestrator *scoring.Orchestrator, repo domain.Repository, bus domain.EventBus, cfg domain.SweepConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Sweeper{
		orchestrator: orchestrator,
		repo:         repo,
		bus:          bus,
		cfg:          cfg,
		logger:       logger,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs sweeps on the configured interval until Stop or context
// cancellation. It returns immediately; sweeping happens in the
// background.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				report := s.Run(ctx)
				s.publishReport(ctx, report)
			}
		}
	}()
}

// Stop halts the schedule and waits for any in-flight sweep loop exit.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

// Run executes one sweep synchronously and returns its report.
func (s *Sweeper) Run(ctx context.Context) Report {
	report := Report{Started: time.Now().UTC()}

	cutoff := report.Started.Add(-s.cfg.Staleness)
	merchants, err := s.repo.ListStaleMerchants(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to list stale merchants", "error", err)
		report.Finished = time.Now().UTC()
		return report
	}

	s.logger.Info("sweep started",
		"stale_merchants", len(merchants),
		"staleness", s.cfg.Staleness,
		"concurrency", s.cfg.Concurrency,
	)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.Concurrency)

	for _, merchantID := range merchants {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := s.orchestrator.Assess(ctx, id, 0)

			mu.Lock()
			report.Processed++
			if err != nil {
				report.Failed++
			} else {
				report.Succeeded++
			}
			mu.Unlock()

			if err != nil {
				s.logger.Warn("sweep assessment failed",
					"merchant_id", id, "error", err)
			}

			// Pace the upstream source between merchants.
			if s.cfg.MerchantDelay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(s.cfg.MerchantDelay):
				}
			}
		}(merchantID)
	}
	wg.Wait()

	if s.cfg.Retention > 0 {
		pruned, err := s.repo.DeleteAssessmentsBefore(ctx, report.Started.Add(-s.cfg.Retention))
		if err != nil {
			s.logger.Warn("retention pruning failed", "error", err)
		} else {
			report.Pruned = pruned
		}
	}

	report.Finished = time.Now().UTC()
	s.logger.Info("sweep finished",
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"pruned", report.Pruned,
		"duration", report.Finished.Sub(report.Started),
	)
	return report
}

func (s *Sweeper) publishReport(ctx context.Context, report Report) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.TopicSweepCompleted, payload); err != nil {
		s.logger.Warn("failed to publish sweep report", "error", err)
	}
}
