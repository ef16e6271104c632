// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metrics

import (
	"sort"
	"time"
)

// =============================================================================
// SLO Evaluation
// =============================================================================

// HealthState classifies an SLO's live status against its target.
type HealthState string

const (
	// StateHealthy means the live aggregate meets or exceeds the target.
	StateHealthy HealthState = "healthy"

	// StateWarning means the aggregate is within 90% of the target.
	StateWarning HealthState = "warning"

	// StateCritical means the aggregate is below 90% of the target.
	StateCritical HealthState = "critical"
)

// SLO is a configured service-level objective over a live metric.
type SLO struct {
	// Name identifies the SLO.
	Name string `json:"name"`

	// Metric is the metric name the objective is measured on.
	Metric string `json:"metric"`

	// Fn is the reduction applied over Window. Typically AggAvg for
	// success-rate metrics.
	Fn AggregateFn `json:"fn"`

	// Target is the objective, in the metric's own unit (percent for
	// success-rate metrics).
	Target float64 `json:"target"`

	// Window is the trailing evaluation window.
	Window time.Duration `json:"window"`
}

// SLOStatus is the live evaluation of one SLO.
type SLOStatus struct {
	Name    string      `json:"name"`
	Metric  string      `json:"metric"`
	Current float64     `json:"current"`
	Target  float64     `json:"target"`
	Window  time.Duration `json:"window"`
	Status  HealthState `json:"status"`

	// ErrorBudget is the remaining failure margin before breach, in
	// percentage points: max(0, 100 - target - (100 - current)).
	ErrorBudget float64 `json:"error_budget"`
}

// RegisterSLO registers or replaces an SLO by name.
func (s *Store) RegisterSLO(slo SLO) {
	if slo.Fn == "" {
		slo.Fn = AggAvg
	}
	if slo.Window <= 0 {
		slo.Window = 5 * time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.slos[slo.Name] = slo
}

// CheckSLO evaluates one SLO against the live aggregate.
//
// Outputs:
//
//	SLOStatus - The evaluation; zero value if the SLO is unknown.
//	bool - False if no SLO with that name is registered.
func (s *Store) CheckSLO(name string) (SLOStatus, bool) {
	s.mu.RLock()
	slo, ok := s.slos[name]
	s.mu.RUnlock()
	if !ok {
		return SLOStatus{}, false
	}
	return s.evaluate(slo), true
}

// AllSLOStatuses evaluates every registered SLO, sorted by name.
//
// Returns an empty (never nil) slice when nothing is registered, so
// dashboards always render.
func (s *Store) AllSLOStatuses() []SLOStatus {
	s.mu.RLock()
	slos := make([]SLO, 0, len(s.slos))
	for _, slo := range s.slos {
		slos = append(slos, slo)
	}
	s.mu.RUnlock()

	sort.Slice(slos, func(i, j int) bool { return slos[i].Name < slos[j].Name })

	statuses := make([]SLOStatus, 0, len(slos))
	for _, slo := range slos {
		statuses = append(statuses, s.evaluate(slo))
	}
	return statuses
}

// evaluate computes the status of a single SLO.
func (s *Store) evaluate(slo SLO) SLOStatus {
	current := s.Aggregate(slo.Metric, slo.Fn, slo.Window)

	status := StateCritical
	switch {
	case current >= slo.Target:
		status = StateHealthy
	case current >= slo.Target*0.9:
		status = StateWarning
	}

	budget := 100 - slo.Target - (100 - current)
	if budget < 0 {
		budget = 0
	}

	return SLOStatus{
		Name:        slo.Name,
		Metric:      slo.Metric,
		Current:     current,
		Target:      slo.Target,
		Window:      slo.Window,
		Status:      status,
		ErrorBudget: budget,
	}
}
