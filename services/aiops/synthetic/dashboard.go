// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package synthetic

import "time"

// =============================================================================
// Health Dashboard
// =============================================================================

// TestHealth summarizes one test's recent behavior.
type TestHealth struct {
	TestID      string        `json:"test_id"`
	Name        string        `json:"name"`
	Type        TestType      `json:"type"`
	Enabled     bool          `json:"enabled"`
	Runs        int           `json:"runs"`
	SuccessRate float64       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
	LastResult  *Result       `json:"last_result,omitempty"`
}

// TrendBucket is one hour of combined probe activity.
type TrendBucket struct {
	Start       time.Time `json:"start"`
	Runs        int       `json:"runs"`
	Failures    int       `json:"failures"`
	SuccessRate float64   `json:"success_rate"`
}

// Dashboard is the synthetic health view: per-test summaries, the last
// 24 hours of failures, and a 24-slot hourly trend across all tests.
type Dashboard struct {
	Tests          []TestHealth  `json:"tests"`
	RecentFailures []Result      `json:"recent_failures"`
	Hourly         []TrendBucket `json:"hourly"`
}

const trendBuckets = 24

// GetDashboard builds the health view from registered tests and result
// histories. Empty state renders with zeroed buckets, never nil slices.
func (r *Runner) GetDashboard() Dashboard {
	now := r.clock.Now()
	windowStart := now.Truncate(time.Hour).Add(-time.Duration(trendBuckets-1) * time.Hour)

	hourly := make([]TrendBucket, trendBuckets)
	for i := range hourly {
		hourly[i].Start = windowStart.Add(time.Duration(i) * time.Hour)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	tests := make([]TestHealth, 0, len(r.order))
	failures := make([]Result, 0)

	for _, id := range r.order {
		test := r.tests[id]
		history := r.results[id]

		health := TestHealth{
			TestID:  test.ID,
			Name:    test.Name,
			Type:    test.Type,
			Enabled: test.Enabled,
			Runs:    len(history),
		}
		var successes int
		var totalLatency time.Duration
		for i := range history {
			res := history[i]
			if res.Success {
				successes++
			}
			totalLatency += res.ResponseTime

			if !res.Timestamp.Before(windowStart) {
				idx := int(res.Timestamp.Sub(windowStart) / time.Hour)
				if idx >= 0 && idx < trendBuckets {
					hourly[idx].Runs++
					if !res.Success {
						hourly[idx].Failures++
					}
				}
				if !res.Success {
					failures = append(failures, res)
				}
			}
		}
		if health.Runs > 0 {
			health.SuccessRate = float64(successes) / float64(health.Runs) * 100
			health.AvgLatency = totalLatency / time.Duration(health.Runs)
			last := history[len(history)-1]
			health.LastResult = &last
		}
		tests = append(tests, health)
	}

	for i := range hourly {
		if hourly[i].Runs > 0 {
			hourly[i].SuccessRate = float64(hourly[i].Runs-hourly[i].Failures) / float64(hourly[i].Runs) * 100
		}
	}

	return Dashboard{Tests: tests, RecentFailures: failures, Hourly: hourly}
}
