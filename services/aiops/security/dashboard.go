// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package security

import "time"

// =============================================================================
// Dashboard Aggregation
// =============================================================================

// HourBucket summarizes one hour of the trailing day.
type HourBucket struct {
	// Start is the bucket's opening instant.
	Start time.Time `json:"start"`

	// Count is the number of events in the bucket.
	Count int `json:"count"`

	// Severity is the bucket's classification: the worst severity present,
	// except that medium requires more than ten events.
	Severity Severity `json:"severity"`
}

// Dashboard is the operator view of the security posture.
type Dashboard struct {
	TotalEvents  int                 `json:"total_events"`
	OpenEvents   int                 `json:"open_events"`
	BySeverity   map[Severity]int    `json:"by_severity"`
	ByType       map[EventType]int   `json:"by_type"`
	Hourly       []HourBucket        `json:"hourly"`
	RecentEvents []Event             `json:"recent_events"`
}

// dashboardRecentLimit caps the recent event feed.
const dashboardRecentLimit = 50

// EmptyDashboard returns the zero-shaped dashboard used for all empty
// states, so consumers always render the same structure.
func EmptyDashboard(now time.Time) Dashboard {
	hourly := make([]HourBucket, 24)
	start := now.Truncate(time.Hour).Add(-23 * time.Hour)
	for i := range hourly {
		hourly[i] = HourBucket{
			Start:    start.Add(time.Duration(i) * time.Hour),
			Severity: SeverityLow,
		}
	}
	return Dashboard{
		BySeverity:   make(map[Severity]int),
		ByType:       make(map[EventType]int),
		Hourly:       hourly,
		RecentEvents: []Event{},
	}
}

// GetDashboard buckets the last 24 hours into 24 hourly slots and totals
// the retained log.
//
// Description:
//
//	Each slot's severity is the worst severity present in that hour, with
//	one adjustment: a slot qualifies as medium only when it holds more
//	than ten events; otherwise it reports low unless high or critical
//	events are present. Never errors on an empty log.
func (s *Store) GetDashboard() Dashboard {
	now := s.clock.Now()
	dash := EmptyDashboard(now)
	windowStart := dash.Hourly[0].Start

	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucketAcc struct {
		count    int
		worst    Severity
		hasWorst bool
	}
	acc := make([]bucketAcc, 24)

	for _, event := range s.events {
		dash.TotalEvents++
		dash.BySeverity[event.Severity]++
		dash.ByType[event.Type]++
		if event.Status == StatusOpen {
			dash.OpenEvents++
		}

		if event.Timestamp.Before(windowStart) {
			continue
		}
		idx := int(event.Timestamp.Sub(windowStart) / time.Hour)
		if idx < 0 || idx > 23 {
			continue
		}
		acc[idx].count++
		if !acc[idx].hasWorst || event.Severity.rank() > acc[idx].worst.rank() {
			acc[idx].worst = event.Severity
			acc[idx].hasWorst = true
		}
	}

	for i := range dash.Hourly {
		dash.Hourly[i].Count = acc[i].count
		dash.Hourly[i].Severity = bucketSeverity(acc[i].worst, acc[i].count)
	}

	// Recent feed: newest last, bounded
	start := len(s.events) - dashboardRecentLimit
	if start < 0 {
		start = 0
	}
	for _, event := range s.events[start:] {
		dash.RecentEvents = append(dash.RecentEvents, *event)
	}

	return dash
}

// bucketSeverity applies the slot classification rule.
func bucketSeverity(worst Severity, count int) Severity {
	switch worst {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		if count > 10 {
			return SeverityMedium
		}
		return SeverityLow
	default:
		return SeverityLow
	}
}
