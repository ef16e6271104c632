// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package aiops assembles the AI operations plane: metrics, tracing,
// security events, synthetic probes, the cost ledger with provider
// selection, and the resilience primitives, behind one service facade
// and HTTP surface.
package aiops

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verdanthealth/verdant-core/services/aiops/config"
	"github.com/verdanthealth/verdant-core/services/aiops/cost"
	"github.com/verdanthealth/verdant-core/services/aiops/metrics"
	"github.com/verdanthealth/verdant-core/services/aiops/resilience"
	"github.com/verdanthealth/verdant-core/services/aiops/sched"
	"github.com/verdanthealth/verdant-core/services/aiops/security"
	badgerstore "github.com/verdanthealth/verdant-core/services/aiops/storage/badger"
	"github.com/verdanthealth/verdant-core/services/aiops/stream"
	"github.com/verdanthealth/verdant-core/services/aiops/synthetic"
	"github.com/verdanthealth/verdant-core/services/aiops/tracing"
)

// ServiceVersion is the aiops service version.
const ServiceVersion = "1.0.0"

// Background job cadences.
const (
	runtimeMetricsInterval = 30 * time.Second
	alertEvalInterval      = time.Minute
	rolloverPollInterval   = time.Minute
	anomalySweepInterval   = 5 * time.Minute
	budgetSweepInterval    = 15 * time.Minute
)

// ServiceConfig configures the facade.
type ServiceConfig struct {
	// Config is the loaded service configuration.
	Config config.Config

	// Logger for diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Clock is the time source shared by every component. If nil,
	// sched.RealClock() is used.
	Clock sched.Clock

	// Archive is the optional persistence tier. When set, security
	// events and usage records are written through and hydrated on
	// start.
	Archive *badgerstore.Archive
}

// Service owns every store and the background jobs that keep them
// honest.
//
// Thread Safety: safe for concurrent use.
type Service struct {
	logger    *slog.Logger
	clock     sched.Clock
	scheduler *sched.Scheduler
	archive   *badgerstore.Archive

	Metrics   *metrics.Store
	Tracing   *tracing.Store
	Security  *security.Store
	Synthetic *synthetic.Runner
	Ledger    *cost.Ledger
	Selector  *cost.Selector
	Breakers  *resilience.Breakers
	Degrader  *resilience.Degrader
	Hub       *stream.Hub

	runtime *metrics.RuntimeCollector
	started time.Time

	mu     sync.Mutex
	closed bool
}

// NewService wires all components from configuration and starts the
// background jobs.
//
// Outputs:
//
//	*Service - The running service. Call Close() on shutdown.
//	error - Non-nil if hydration or job scheduling fails.
func NewService(cfg ServiceConfig) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = sched.RealClock()
	}

	s := &Service{
		logger:    logger,
		clock:     clock,
		scheduler: sched.NewScheduler(clock, logger),
		archive:   cfg.Archive,
		started:   clock.Now(),
	}
	s.Hub = stream.NewHub(logger)

	s.Metrics = metrics.NewStore(metrics.Config{Clock: clock, Logger: logger})
	s.runtime = metrics.NewRuntimeCollector(s.Metrics)
	s.Tracing = tracing.NewStore(tracing.Config{Clock: clock, Logger: logger})

	s.Security = security.NewStore(security.Config{
		Clock:      clock,
		Logger:     logger,
		Thresholds: detectionThresholds(cfg.Config.Detection),
		Patterns:   security.DefaultPatterns(),
		OnEvent:    s.onSecurityEvent,
	})

	s.Ledger = cost.NewLedger(cost.Config{
		Clock:      clock,
		Logger:     logger,
		TokenCaps:  tokenCaps(cfg.Config.Cost.TokenCaps),
		SpikeFloor: cfg.Config.Cost.SpikeFloor,
		OnAlert:    s.onCostAlert,
	})
	for _, b := range cfg.Config.Cost.Budgets {
		s.Ledger.SetBudget(cost.Budget{
			Name:           b.Name,
			Period:         cost.BudgetPeriod(b.Period),
			Limit:          b.Limit,
			Provider:       b.Provider,
			AlertThreshold: b.AlertThreshold,
		})
	}
	s.Selector = cost.NewSelector(routingPolicy(cfg.Config.Routing), logger)

	s.Breakers = resilience.NewBreakers(resilience.Config{
		Clock:  clock,
		Logger: logger,
		Defaults: resilience.BreakerOptions{
			FailureThreshold: cfg.Config.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Config.Breaker.ResetTimeout,
		},
	})
	s.Degrader = resilience.NewDegrader(logger)

	s.Synthetic = synthetic.NewRunner(synthetic.Config{
		Clock:     clock,
		Logger:    logger,
		Scheduler: s.scheduler,
	})
	for _, def := range cfg.Config.Synthetic.Tests {
		if _, err := s.Synthetic.AddTest(syntheticTest(def)); err != nil {
			return nil, fmt.Errorf("register synthetic test %q: %w", def.Name, err)
		}
	}

	if s.archive != nil {
		if err := s.hydrate(context.Background()); err != nil {
			return nil, fmt.Errorf("hydrate from archive: %w", err)
		}
	}

	if err := s.startJobs(); err != nil {
		return nil, fmt.Errorf("start background jobs: %w", err)
	}

	logger.Info("aiops service started",
		slog.Int("synthetic_tests", len(cfg.Config.Synthetic.Tests)),
		slog.Int("budgets", len(cfg.Config.Cost.Budgets)),
		slog.Bool("persistence", s.archive != nil),
	)
	return s, nil
}

// detectionThresholds maps config onto the security store's tuning.
func detectionThresholds(d config.DetectionConfig) security.Thresholds {
	return security.Thresholds{
		BruteForceCount:      d.BruteForceCount,
		BruteForceWindow:     d.BruteForceWindow,
		EndpointSpread:       d.EndpointSpread,
		EndpointSpreadWindow: d.SpreadWindow,
		RequestFlood:         d.RequestFlood,
		RequestFloodWindow:   d.FloodWindow,
		Retention:            d.Retention,
	}
}

// tokenCaps maps config onto the ledger's per-pair quota caps.
func tokenCaps(caps []config.TokenCap) []cost.TokenCap {
	out := make([]cost.TokenCap, 0, len(caps))
	for _, c := range caps {
		out = append(out, cost.TokenCap{
			Provider:    c.Provider,
			Model:       c.Model,
			DailyTokens: c.DailyTokens,
		})
	}
	return out
}

// routingPolicy maps config onto the selector's policy.
func routingPolicy(r config.RoutingConfig) cost.Policy {
	policy := cost.Policy{Tiers: make(map[string][]cost.ModelOption, len(r.Tiers))}
	for tier, options := range r.Tiers {
		models := make([]cost.ModelOption, 0, len(options))
		for _, opt := range options {
			models = append(models, cost.ModelOption{
				Provider:     opt.Provider,
				Model:        opt.Model,
				CostPerToken: opt.CostPerToken,
				Bias:         opt.Bias,
			})
		}
		policy.Tiers[tier] = models
	}
	if r.Fallback.Provider != "" {
		policy.Fallback = cost.ModelOption{
			Provider:     r.Fallback.Provider,
			Model:        r.Fallback.Model,
			CostPerToken: r.Fallback.CostPerToken,
			Bias:         r.Fallback.Bias,
		}
	}
	if len(policy.Tiers) == 0 {
		policy = cost.DefaultPolicy()
	}
	return policy
}

// syntheticTest maps a configured probe onto the runner's test model.
func syntheticTest(def config.SyntheticTest) synthetic.Test {
	return synthetic.Test{
		ID:       def.ID,
		Name:     def.Name,
		Type:     synthetic.TestType(def.Type),
		Interval: def.Interval,
		Enabled:  def.Enabled,
		Config: synthetic.ProbeConfig{
			URL:                  def.URL,
			Method:               def.Method,
			Headers:              def.Headers,
			Driver:               def.Driver,
			DSN:                  def.DSN,
			ExpectedStatus:       def.ExpectedStatus,
			ExpectedResponseTime: def.ExpectedResponseTime,
		},
	}
}

// onSecurityEvent streams and persists each recorded event.
func (s *Service) onSecurityEvent(event security.Event) {
	s.Hub.Publish(stream.TypeSecurityEvent, event)
	if s.archive != nil {
		if err := s.archive.SaveEvent(context.Background(), event); err != nil {
			s.logger.Error("failed to persist security event",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// onCostAlert streams each fired cost alert.
func (s *Service) onCostAlert(alert cost.CostAlert) {
	s.Hub.Publish(stream.TypeCostAlert, alert)
}

// RecordUsage books a usage record and writes it through to the
// archive.
func (s *Service) RecordUsage(ctx context.Context, rec cost.UsageRecord) cost.UsageRecord {
	rec = s.Ledger.Record(rec)
	if s.archive != nil {
		if err := s.archive.SaveUsage(ctx, rec); err != nil {
			s.logger.Error("failed to persist usage record",
				slog.String("record_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return rec
}

// hydrate reloads persisted state into the in-memory stores.
func (s *Service) hydrate(ctx context.Context) error {
	events, err := s.archive.LoadEvents(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	// Hydrated events go straight into the log: replaying them through
	// Record would re-trigger anomaly synthesis and re-persist.
	s.Security.Restore(events)

	records, err := s.archive.LoadUsage(ctx)
	if err != nil {
		return fmt.Errorf("load usage: %w", err)
	}
	s.Ledger.Restore(records)

	s.logger.Info("hydrated from archive",
		slog.Int("events", len(events)),
		slog.Int("usage_records", len(records)),
	)
	return nil
}

// startJobs registers the recurring maintenance jobs.
func (s *Service) startJobs() error {
	jobs := []struct {
		name     string
		interval time.Duration
		fn       func()
	}{
		{"runtime-metrics", runtimeMetricsInterval, s.runtime.Collect},
		{"metric-alerts", alertEvalInterval, func() { s.Metrics.EvaluateAlertRules() }},
		{"cost-rollover", rolloverPollInterval, s.Ledger.Rollover},
		{"anomaly-sweep", anomalySweepInterval, s.sweepSecurity},
		{"budget-sweep", budgetSweepInterval, func() { s.Ledger.SweepBudgets() }},
	}
	for _, job := range jobs {
		if err := s.scheduler.Every(job.name, job.interval, job.fn); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}
	return nil
}

// sweepSecurity runs pattern detection and retention together.
func (s *Service) sweepSecurity() {
	fired := s.Security.Sweep()
	purged := s.Security.PurgeExpired()
	if s.archive != nil && purged > 0 {
		cutoff := s.clock.Now().Add(-s.Security.Retention())
		if _, err := s.archive.PurgeEventsBefore(context.Background(), cutoff); err != nil {
			s.logger.Error("failed to purge archived events", slog.String("error", err.Error()))
		}
	}
	if fired > 0 || purged > 0 {
		s.logger.Info("security sweep",
			slog.Int("patterns_fired", fired),
			slog.Int("purged", purged),
		)
	}
}

// ApplyConfig applies the runtime-safe subset of a reloaded
// configuration: the routing policy, token caps, and budget
// definitions. Listen address, storage, and detection thresholds
// require a restart.
func (s *Service) ApplyConfig(cfg config.Config) {
	s.Selector.SetPolicy(routingPolicy(cfg.Routing))
	s.Ledger.SetTokenCaps(tokenCaps(cfg.Cost.TokenCaps))
	for _, b := range cfg.Cost.Budgets {
		s.Ledger.SetBudget(cost.Budget{
			Name:           b.Name,
			Period:         cost.BudgetPeriod(b.Period),
			Limit:          b.Limit,
			Provider:       b.Provider,
			AlertThreshold: b.AlertThreshold,
		})
	}
	// Synthetic definitions reconcile by ID: AddTest upserts, so a reload
	// updates probes in place. Definitions without an explicit ID cannot
	// be matched across reloads and are skipped.
	for _, def := range cfg.Synthetic.Tests {
		if def.ID == "" {
			continue
		}
		if _, err := s.Synthetic.AddTest(syntheticTest(def)); err != nil {
			s.logger.Warn("skipping reloaded synthetic test",
				slog.String("name", def.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !def.Enabled {
			s.Synthetic.Toggle(def.ID, false)
		}
	}

	s.logger.Info("runtime configuration applied",
		slog.Int("routing_tiers", len(cfg.Routing.Tiers)),
		slog.Int("budgets", len(cfg.Cost.Budgets)),
		slog.Int("synthetic_tests", len(cfg.Synthetic.Tests)),
	)
}

// Uptime reports how long the service has been running.
func (s *Service) Uptime() time.Duration {
	return s.clock.Now().Sub(s.started)
}

// Reset clears every store. Intended for test and staging
// environments; the HTTP layer guards it accordingly.
func (s *Service) Reset() {
	s.Metrics.Reset()
	s.Tracing.Reset()
	s.Security.Reset()
	s.Synthetic.Reset()
	s.Ledger.Reset()
	s.Breakers.Reset()
	s.Degrader.Reset()
	s.logger.Warn("all aiops stores reset")
}

// Close stops background jobs, probe timers, and the alert stream.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.Synthetic.Shutdown()
	s.scheduler.Stop()
	s.Hub.Stop()
	s.logger.Info("aiops service stopped")
	return nil
}
