// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cost

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Alert Model
// =============================================================================

// AlertKind distinguishes the spend anomaly classes.
type AlertKind string

const (
	KindCostSpike      AlertKind = "cost_spike"
	KindQuotaWarning   AlertKind = "quota_warning"
	KindBudgetExceeded AlertKind = "budget_exceeded"
)

// AlertSeverity grades a cost alert.
type AlertSeverity string

const (
	SeverityMedium AlertSeverity = "medium"
	SeverityHigh   AlertSeverity = "high"
)

// CostAlert is one fired spend anomaly.
type CostAlert struct {
	ID        string        `json:"id"`
	Kind      AlertKind     `json:"kind"`
	Severity  AlertSeverity `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Provider  string        `json:"provider,omitempty"`
	Model     string        `json:"model,omitempty"`
	Budget    string        `json:"budget,omitempty"`
	Value     float64       `json:"value"`
	Limit     float64       `json:"limit,omitempty"`
}

// maxAlerts bounds retained alert history.
const maxAlerts = 500

// spikeMultiplier gates the per-record spike check: a record spikes
// when its cost exceeds spikeMultiplier times the trailing-hour average
// for its provider:model pair.
const spikeMultiplier = 3.0

// =============================================================================
// Inline Checks
// =============================================================================

// detectSpikeLocked compares an incoming record against the trailing
// hour for its pair. Caller holds l.mu; the incoming record is not yet
// appended.
func (l *Ledger) detectSpikeLocked(history []UsageRecord, rec UsageRecord) *CostAlert {
	if rec.Cost < l.spikeFloor {
		return nil
	}
	cutoff := rec.Timestamp.Add(-time.Hour)
	var sum float64
	var count int
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Timestamp.Before(cutoff) {
			break
		}
		sum += history[i].Cost
		count++
	}
	// A first record has no trailing average to spike against.
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)
	if rec.Cost <= avg*spikeMultiplier {
		return nil
	}
	return &CostAlert{
		ID:        uuid.NewString(),
		Kind:      KindCostSpike,
		Severity:  SeverityHigh,
		Timestamp: rec.Timestamp,
		Provider:  rec.Provider,
		Model:     rec.Model,
		Value:     rec.Cost,
		Limit:     avg * spikeMultiplier,
		Message: fmt.Sprintf("cost spike: %s/%s request cost $%.4f exceeds 3x trailing hour average $%.4f",
			rec.Provider, rec.Model, rec.Cost, avg),
	}
}

// checkQuotaLocked fires once per pair per day when a provider:model
// pair's token usage crosses 90% of its configured daily cap. Caller
// holds l.mu.
func (l *Ledger) checkQuotaLocked(key string, rec UsageRecord) *CostAlert {
	limit := l.tokenCaps[key]
	if limit <= 0 || l.quotaWarned[key] {
		return nil
	}
	used := l.dailyTokens[key]
	if float64(used) < float64(limit)*0.9 {
		return nil
	}
	l.quotaWarned[key] = true
	return &CostAlert{
		ID:        uuid.NewString(),
		Kind:      KindQuotaWarning,
		Severity:  SeverityMedium,
		Timestamp: rec.Timestamp,
		Provider:  rec.Provider,
		Model:     rec.Model,
		Value:     float64(used),
		Limit:     float64(limit),
		Message: fmt.Sprintf("token quota warning: %s/%s used %d of %d daily tokens (%.1f%%)",
			rec.Provider, rec.Model, used, limit, float64(used)/float64(limit)*100),
	}
}

// appendAlertLocked records an alert with capped history. Caller holds
// l.mu.
func (l *Ledger) appendAlertLocked(alert CostAlert) {
	l.alerts = append(l.alerts, alert)
	if len(l.alerts) > maxAlerts {
		l.alerts = l.alerts[len(l.alerts)-maxAlerts:]
	}
	l.logger.Warn("cost alert",
		slog.String("kind", string(alert.Kind)),
		slog.String("severity", string(alert.Severity)),
		slog.String("message", alert.Message),
	)
}

// Alerts returns a copy of the retained alert history, oldest first.
func (l *Ledger) Alerts() []CostAlert {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]CostAlert, len(l.alerts))
	copy(out, l.alerts)
	return out
}

// =============================================================================
// Budgets
// =============================================================================

// BudgetPeriod is the accounting window a budget covers.
type BudgetPeriod string

const (
	PeriodDaily   BudgetPeriod = "daily"
	PeriodWeekly  BudgetPeriod = "weekly"
	PeriodMonthly BudgetPeriod = "monthly"
)

// Budget is a spend ceiling for one period, optionally scoped to a
// single provider.
type Budget struct {
	Name     string       `json:"name"`
	Period   BudgetPeriod `json:"period"`
	Limit    float64      `json:"limit"`
	Provider string       `json:"provider,omitempty"`

	// AlertThreshold is the percentage of Limit at which the medium
	// warning fires. Default: 80.
	AlertThreshold float64 `json:"alert_threshold,omitempty"`
}

// budgetState tracks one budget's spend and suppression within the
// current period.
type budgetState struct {
	Budget
	spent         float64
	periodStart   time.Time
	firedSeverity AlertSeverity
}

// periodAnchor returns the start of the budget's current period.
func (b *budgetState) periodAnchor(now time.Time) time.Time {
	switch b.Period {
	case PeriodWeekly:
		return startOfWeek(now)
	case PeriodMonthly:
		return startOfMonth(now)
	default:
		return startOfDay(now)
	}
}

// rollover resets spend and suppression when the period has elapsed.
func (b *budgetState) rollover(now time.Time) {
	if anchor := b.periodAnchor(now); anchor.After(b.periodStart) {
		b.spent = 0
		b.firedSeverity = ""
		b.periodStart = anchor
	}
}

// accumulate books a record against the budget if it is in scope.
func (b *budgetState) accumulate(rec UsageRecord) {
	if b.Provider != "" && b.Provider != rec.Provider {
		return
	}
	b.spent += rec.Cost
}

// SetBudget registers or replaces a budget by name. Replacing resets
// suppression but keeps the current period's accumulated spend only
// when the period is unchanged.
func (l *Ledger) SetBudget(budget Budget) {
	if budget.Period == "" {
		budget.Period = PeriodMonthly
	}
	if budget.AlertThreshold <= 0 {
		budget.AlertThreshold = 80
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	for _, b := range l.budgets {
		if b.Name == budget.Name {
			carried := b.spent
			if b.Period != budget.Period {
				carried = 0
			}
			b.Budget = budget
			b.spent = carried
			b.firedSeverity = ""
			b.periodStart = b.periodAnchor(now)
			return
		}
	}
	state := &budgetState{Budget: budget}
	state.periodStart = state.periodAnchor(now)
	l.budgets = append(l.budgets, state)
}

// Budgets returns the configured budgets with their current spend.
type BudgetStatus struct {
	Budget
	Spent   float64 `json:"spent"`
	Percent float64 `json:"percent"`
}

func (l *Ledger) Budgets() []BudgetStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]BudgetStatus, 0, len(l.budgets))
	for _, b := range l.budgets {
		status := BudgetStatus{Budget: b.Budget, Spent: b.spent}
		if b.Limit > 0 {
			status.Percent = b.spent / b.Limit * 100
		}
		out = append(out, status)
	}
	return out
}

// SweepBudgets evaluates every budget against its accumulated spend.
//
// Description:
//
//	Fires a medium alert at the warning threshold and a high alert at
//	or past the limit. Each severity fires at most once per budget per
//	period; escalation from medium to high is allowed within a period.
//	Runs on a 15 minute cadence from the service facade.
//
// Outputs:
//
//	[]CostAlert - Alerts fired by this sweep. Never nil.
func (l *Ledger) SweepBudgets() []CostAlert {
	l.mu.Lock()
	now := l.clock.Now()
	l.rolloverLocked(now)

	fired := make([]CostAlert, 0)
	for _, b := range l.budgets {
		if b.Limit <= 0 {
			continue
		}
		pct := b.spent / b.Limit * 100
		switch {
		case pct >= 100 && b.firedSeverity != SeverityHigh:
			b.firedSeverity = SeverityHigh
			fired = append(fired, CostAlert{
				ID:        uuid.NewString(),
				Kind:      KindBudgetExceeded,
				Severity:  SeverityHigh,
				Timestamp: now,
				Budget:    b.Name,
				Value:     b.spent,
				Limit:     b.Limit,
				Message: fmt.Sprintf("budget %q exceeded: $%.2f of $%.2f %s limit (%.1f%%)",
					b.Name, b.spent, b.Limit, b.Period, pct),
			})
		case pct >= b.AlertThreshold && pct < 100 && b.firedSeverity == "":
			b.firedSeverity = SeverityMedium
			fired = append(fired, CostAlert{
				ID:        uuid.NewString(),
				Kind:      KindBudgetExceeded,
				Severity:  SeverityMedium,
				Timestamp: now,
				Budget:    b.Name,
				Value:     b.spent,
				Limit:     b.Limit,
				Message: fmt.Sprintf("budget %q at %.1f%%: $%.2f of $%.2f %s limit",
					b.Name, pct, b.spent, b.Limit, b.Period),
			})
		}
	}
	for i := range fired {
		l.appendAlertLocked(fired[i])
	}
	l.mu.Unlock()

	l.dispatch(fired)
	return fired
}
