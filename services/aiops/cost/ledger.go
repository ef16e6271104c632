// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cost tracks AI provider spend, enforces budgets, and selects
// the cheapest viable provider for a request.
//
// The Ledger is the single accounting surface: every upstream call lands
// here as a UsageRecord, running daily/weekly/monthly totals roll over at
// local boundaries, and anomaly checks fire inline on each record.
package cost

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verdanthealth/verdant-core/services/aiops/sched"
)

// =============================================================================
// Usage Model
// =============================================================================

// UsageRecord is one billed provider call.
type UsageRecord struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Cost             float64   `json:"cost"`
	UserID           string    `json:"user_id,omitempty"`
	SessionID        string    `json:"session_id,omitempty"`
	Operation        string    `json:"operation,omitempty"`
}

// Totals is a running sum for one accounting period.
type Totals struct {
	Cost     float64   `json:"cost"`
	Tokens   int       `json:"tokens"`
	Requests int       `json:"requests"`
	Start    time.Time `json:"start"`
}

// TokenCap is a daily token ceiling for one provider:model pair.
type TokenCap struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	DailyTokens int    `json:"daily_tokens"`
}

// maxRecordsPerPair bounds retained history per provider:model pair.
const maxRecordsPerPair = 10000

// =============================================================================
// Ledger
// =============================================================================

// Config configures the Ledger.
type Config struct {
	// Clock is the time source. If nil, sched.RealClock() is used.
	Clock sched.Clock

	// Logger for diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger

	// TokenCaps are per provider:model daily token ceilings. A pair's
	// usage at or past 90% of its cap fires a quota warning once per
	// day; pairs without a cap are never checked.
	TokenCaps []TokenCap

	// SpikeFloor is the minimum record cost eligible for spike alerts;
	// tiny charges never spike. Default: $0.01.
	SpikeFloor float64

	// OnAlert, when set, receives every alert as it fires. Used to feed
	// the live alert stream.
	OnAlert func(CostAlert)
}

// Ledger records usage and surfaces spend alerts.
//
// Thread Safety: safe for concurrent use.
type Ledger struct {
	clock      sched.Clock
	logger     *slog.Logger
	spikeFloor float64
	onAlert    func(CostAlert)

	mu        sync.RWMutex
	records   map[string][]UsageRecord // provider + "\x00" + model
	pairOrder []string

	daily   Totals
	weekly  Totals
	monthly Totals

	byProvider map[string]float64 // current-day spend
	byModel    map[string]float64
	byUser     map[string]float64

	tokenCaps   map[string]int  // pair key -> daily token ceiling
	dailyTokens map[string]int  // pair key -> current-day tokens
	quotaWarned map[string]bool // pair key -> warned this day
	budgets     []*budgetState
	alerts      []CostAlert
}

// NewLedger creates an empty Ledger anchored at the current period
// boundaries.
func NewLedger(cfg Config) *Ledger {
	clock := cfg.Clock
	if clock == nil {
		clock = sched.RealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	spikeFloor := cfg.SpikeFloor
	if spikeFloor <= 0 {
		spikeFloor = 0.01
	}
	now := clock.Now()
	l := &Ledger{
		clock:       clock,
		logger:      logger,
		spikeFloor:  spikeFloor,
		onAlert:     cfg.OnAlert,
		records:     make(map[string][]UsageRecord),
		daily:       Totals{Start: startOfDay(now)},
		weekly:      Totals{Start: startOfWeek(now)},
		monthly:     Totals{Start: startOfMonth(now)},
		byProvider:  make(map[string]float64),
		byModel:     make(map[string]float64),
		byUser:      make(map[string]float64),
		tokenCaps:   make(map[string]int),
		dailyTokens: make(map[string]int),
		quotaWarned: make(map[string]bool),
	}
	for _, c := range cfg.TokenCaps {
		if c.DailyTokens > 0 {
			l.tokenCaps[pairKey(c.Provider, c.Model)] = c.DailyTokens
		}
	}
	return l
}

// SetTokenCaps replaces the per-pair daily token caps. Suppression for
// warnings already fired today is retained.
func (l *Ledger) SetTokenCaps(caps []TokenCap) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokenCaps = make(map[string]int, len(caps))
	for _, c := range caps {
		if c.DailyTokens > 0 {
			l.tokenCaps[pairKey(c.Provider, c.Model)] = c.DailyTokens
		}
	}
}

// Record books one usage record and runs the inline anomaly checks.
//
// Description:
//
//	Mints an ID and timestamp when absent, derives TotalTokens when
//	zero, appends to the provider:model history (FIFO-trimmed at the
//	cap), adds to the running period totals, then evaluates spike and
//	quota alerts against the post-insert state.
func (l *Ledger) Record(rec UsageRecord) UsageRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.clock.Now()
	}
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	}

	l.mu.Lock()
	l.rolloverLocked(rec.Timestamp)

	key := pairKey(rec.Provider, rec.Model)
	history, exists := l.records[key]
	if !exists {
		l.pairOrder = append(l.pairOrder, key)
	}

	spike := l.detectSpikeLocked(history, rec)

	history = append(history, rec)
	if len(history) > maxRecordsPerPair {
		history = history[len(history)-maxRecordsPerPair:]
	}
	l.records[key] = history

	for _, t := range []*Totals{&l.daily, &l.weekly, &l.monthly} {
		t.Cost += rec.Cost
		t.Tokens += rec.TotalTokens
		t.Requests++
	}
	l.byProvider[rec.Provider] += rec.Cost
	l.byModel[rec.Model] += rec.Cost
	if rec.UserID != "" {
		l.byUser[rec.UserID] += rec.Cost
	}
	l.dailyTokens[key] += rec.TotalTokens
	for _, b := range l.budgets {
		b.accumulate(rec)
	}

	var fired []CostAlert
	if spike != nil {
		fired = append(fired, *spike)
	}
	if quota := l.checkQuotaLocked(key, rec); quota != nil {
		fired = append(fired, *quota)
	}
	for i := range fired {
		l.appendAlertLocked(fired[i])
	}
	l.mu.Unlock()

	l.dispatch(fired)
	return rec
}

// Rollover resets any running total whose period boundary has passed.
// Called on a short poll so totals stay honest even when no usage
// arrives across a boundary.
func (l *Ledger) Rollover() {
	l.mu.Lock()
	l.rolloverLocked(l.clock.Now())
	l.mu.Unlock()
}

// rolloverLocked resets elapsed periods. Caller holds l.mu.
func (l *Ledger) rolloverLocked(now time.Time) {
	if day := startOfDay(now); day.After(l.daily.Start) {
		l.logger.Info("cost: daily rollover",
			slog.Float64("spend", l.daily.Cost),
			slog.Int("requests", l.daily.Requests),
		)
		l.daily = Totals{Start: day}
		l.byProvider = make(map[string]float64)
		l.byModel = make(map[string]float64)
		l.byUser = make(map[string]float64)
		l.dailyTokens = make(map[string]int)
		l.quotaWarned = make(map[string]bool)
	}
	if week := startOfWeek(now); week.After(l.weekly.Start) {
		l.weekly = Totals{Start: week}
	}
	if month := startOfMonth(now); month.After(l.monthly.Start) {
		l.monthly = Totals{Start: month}
	}
	for _, b := range l.budgets {
		b.rollover(now)
	}
}

// DailyTotals returns the current day's running totals.
func (l *Ledger) DailyTotals() Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.daily
}

// WeeklyTotals returns the current week's running totals.
func (l *Ledger) WeeklyTotals() Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.weekly
}

// MonthlyTotals returns the current month's running totals.
func (l *Ledger) MonthlyTotals() Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.monthly
}

// Records returns a copy of the history for one provider:model pair,
// oldest first.
func (l *Ledger) Records(provider, model string) []UsageRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	history := l.records[pairKey(provider, model)]
	out := make([]UsageRecord, len(history))
	copy(out, history)
	return out
}

// Restore loads previously persisted usage records without firing
// alerts. Records must be supplied oldest first; only those inside the
// current accounting periods count toward the running totals. Used for
// startup hydration.
func (l *Ledger) Restore(records []UsageRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range records {
		rec := records[i]
		key := pairKey(rec.Provider, rec.Model)
		history, exists := l.records[key]
		if !exists {
			l.pairOrder = append(l.pairOrder, key)
		}
		history = append(history, rec)
		if len(history) > maxRecordsPerPair {
			history = history[len(history)-maxRecordsPerPair:]
		}
		l.records[key] = history

		for _, t := range []*Totals{&l.daily, &l.weekly, &l.monthly} {
			if rec.Timestamp.Before(t.Start) {
				continue
			}
			t.Cost += rec.Cost
			t.Tokens += rec.TotalTokens
			t.Requests++
		}
		if !rec.Timestamp.Before(l.daily.Start) {
			l.byProvider[rec.Provider] += rec.Cost
			l.byModel[rec.Model] += rec.Cost
			if rec.UserID != "" {
				l.byUser[rec.UserID] += rec.Cost
			}
			l.dailyTokens[key] += rec.TotalTokens
		}
		for _, b := range l.budgets {
			if !rec.Timestamp.Before(b.periodStart) {
				b.accumulate(rec)
			}
		}
	}
}

// Reset clears all records, totals, budgets state and alerts. Budget
// definitions are retained.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	l.records = make(map[string][]UsageRecord)
	l.pairOrder = nil
	l.daily = Totals{Start: startOfDay(now)}
	l.weekly = Totals{Start: startOfWeek(now)}
	l.monthly = Totals{Start: startOfMonth(now)}
	l.byProvider = make(map[string]float64)
	l.byModel = make(map[string]float64)
	l.byUser = make(map[string]float64)
	l.dailyTokens = make(map[string]int)
	l.quotaWarned = make(map[string]bool)
	l.alerts = nil
	for _, b := range l.budgets {
		b.spent = 0
		b.firedSeverity = ""
		b.periodStart = b.periodAnchor(now)
	}
}

// dispatch forwards alerts to the configured sink outside the lock.
func (l *Ledger) dispatch(alerts []CostAlert) {
	if l.onAlert == nil {
		return
	}
	for i := range alerts {
		l.onAlert(alerts[i])
	}
}

func pairKey(provider, model string) string {
	return provider + "\x00" + model
}

// =============================================================================
// Period Boundaries
// =============================================================================

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// startOfWeek anchors weeks at local Sunday midnight.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
