// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cost

import "sort"

// =============================================================================
// Spend Dashboard
// =============================================================================

// SpendEntry is one row of a spend breakdown, sorted by cost descending.
type SpendEntry struct {
	Key  string  `json:"key"`
	Cost float64 `json:"cost"`
}

// Dashboard is the spend overview: period totals, current-day
// breakdowns, budget standing, and recent alerts.
type Dashboard struct {
	Daily      Totals         `json:"daily"`
	Weekly     Totals         `json:"weekly"`
	Monthly    Totals         `json:"monthly"`
	ByProvider []SpendEntry   `json:"by_provider"`
	ByModel    []SpendEntry   `json:"by_model"`
	TopUsers   []SpendEntry   `json:"top_users"`
	Budgets    []BudgetStatus `json:"budgets"`
	Alerts     []CostAlert    `json:"alerts"`
}

const topUsersLimit = 10

// GetDashboard builds the spend overview. Empty state renders with
// zeroed totals and empty slices, never nil.
func (l *Ledger) GetDashboard() Dashboard {
	l.mu.RLock()

	dash := Dashboard{
		Daily:      l.daily,
		Weekly:     l.weekly,
		Monthly:    l.monthly,
		ByProvider: sortedEntries(l.byProvider, 0),
		ByModel:    sortedEntries(l.byModel, 0),
		TopUsers:   sortedEntries(l.byUser, topUsersLimit),
	}
	budgets := make([]BudgetStatus, 0, len(l.budgets))
	for _, b := range l.budgets {
		status := BudgetStatus{Budget: b.Budget, Spent: b.spent}
		if b.Limit > 0 {
			status.Percent = b.spent / b.Limit * 100
		}
		budgets = append(budgets, status)
	}
	dash.Budgets = budgets
	alerts := make([]CostAlert, len(l.alerts))
	copy(alerts, l.alerts)
	dash.Alerts = alerts

	l.mu.RUnlock()
	return dash
}

// sortedEntries converts a spend map to rows sorted by cost descending,
// key ascending on ties. A limit of zero keeps everything.
func sortedEntries(m map[string]float64, limit int) []SpendEntry {
	entries := make([]SpendEntry, 0, len(m))
	for k, v := range m {
		entries = append(entries, SpendEntry{Key: k, Cost: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Cost != entries[j].Cost {
			return entries[i].Cost > entries[j].Cost
		}
		return entries[i].Key < entries[j].Key
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
