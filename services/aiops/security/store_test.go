// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package security

import (
	"testing"
	"time"

	"github.com/verdanthealth/verdant-core/services/aiops/sched"
)

func newTestStore() (*Store, *sched.FakeClock) {
	clock := sched.NewFakeClock(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	return NewStore(Config{Clock: clock}), clock
}

func authFailure(ip string) RecordInput {
	return RecordInput{
		Type:        TypeAuthFailure,
		Severity:    SeverityLow,
		IPAddress:   ip,
		Description: "bad password",
	}
}

func countByType(store *Store, t EventType) int {
	n := 0
	for _, event := range store.Events() {
		if event.Type == t {
			n++
		}
	}
	return n
}

func TestRecord_AppendsOpenEvent(t *testing.T) {
	store, _ := newTestStore()

	event := store.Record(RecordInput{
		Type:        TypeDataAccess,
		Severity:    SeverityLow,
		IPAddress:   "10.0.0.1",
		UserID:      "u1",
		Endpoint:    "/v1/reports/42",
		Description: "report download",
	})

	if event.ID == "" {
		t.Fatal("event must get an ID")
	}
	if event.Status != StatusOpen {
		t.Errorf("new event status = %s, want open", event.Status)
	}
	got, ok := store.GetEvent(event.ID)
	if !ok || got.Endpoint != "/v1/reports/42" {
		t.Error("GetEvent should return the stored event")
	}
}

func TestBruteForce_FiresOnceAtThreshold(t *testing.T) {
	store, _ := newTestStore()

	for i := 0; i < 9; i++ {
		store.Record(authFailure("203.0.113.7"))
	}
	if got := countByType(store, TypeBruteForce); got != 0 {
		t.Fatalf("brute_force after 9 failures = %d, want 0", got)
	}

	store.Record(authFailure("203.0.113.7"))
	if got := countByType(store, TypeBruteForce); got != 1 {
		t.Fatalf("brute_force after 10 failures = %d, want 1", got)
	}

	// Idempotent within the detection cycle: the 11th failure adds exactly
	// one event (the auth_failure), not a second brute_force.
	before := store.EventCount()
	store.Record(authFailure("203.0.113.7"))
	if store.EventCount() != before+1 {
		t.Fatalf("11th failure added %d events, want 1", store.EventCount()-before)
	}
	if got := countByType(store, TypeBruteForce); got != 1 {
		t.Errorf("brute_force after 11 failures = %d, want 1", got)
	}

	// Synthesized event references the same IP
	for _, event := range store.Events() {
		if event.Type == TypeBruteForce {
			if event.IPAddress != "203.0.113.7" {
				t.Errorf("brute_force IP = %s, want 203.0.113.7", event.IPAddress)
			}
			if event.Severity != SeverityHigh {
				t.Errorf("brute_force severity = %s, want high", event.Severity)
			}
		}
	}
}

func TestBruteForce_WindowExpires(t *testing.T) {
	store, clock := newTestStore()

	for i := 0; i < 9; i++ {
		store.Record(authFailure("198.51.100.2"))
	}
	// Outside the 15-minute window the earlier failures no longer count
	clock.Advance(16 * time.Minute)
	store.Record(authFailure("198.51.100.2"))

	if got := countByType(store, TypeBruteForce); got != 0 {
		t.Errorf("brute_force = %d, want 0 after window expired", got)
	}
}

func TestEndpointSpread_SynthesizesUnusualActivity(t *testing.T) {
	store, _ := newTestStore()

	for i := 0; i < 16; i++ {
		store.Record(RecordInput{
			Type:        TypeDataAccess,
			Severity:    SeverityLow,
			IPAddress:   "10.0.0.9",
			UserID:      "u7",
			Endpoint:    "/v1/endpoint/" + string(rune('a'+i)),
			Description: "access",
		})
	}

	if got := countByType(store, TypeUnusualActivity); got != 1 {
		t.Errorf("unusual_activity = %d, want 1 (fired at 16 distinct endpoints)", got)
	}
}

func TestRequestFlood_SynthesizesSuspiciousIP(t *testing.T) {
	clock := sched.NewFakeClock(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	// Lower the flood threshold to keep the test fast
	store := NewStore(Config{
		Clock: clock,
		Thresholds: Thresholds{
			RequestFlood:       20,
			RequestFloodWindow: time.Hour,
		},
	})

	for i := 0; i < 21; i++ {
		store.Record(RecordInput{
			Type:        TypeDataAccess,
			Severity:    SeverityLow,
			IPAddress:   "192.0.2.4",
			Description: "request",
		})
	}

	if got := countByType(store, TypeSuspiciousIP); got != 1 {
		t.Errorf("suspicious_ip = %d, want 1", got)
	}
}

func TestUpdateEventStatus(t *testing.T) {
	store, _ := newTestStore()

	event := store.Record(RecordInput{
		Type: TypePrivilegeEscalation, Severity: SeverityCritical,
		IPAddress: "10.0.0.1", Description: "sudo attempt",
	})

	if !store.UpdateEventStatus(event.ID, StatusInvestigating) {
		t.Fatal("UpdateEventStatus should succeed for known event")
	}
	got, _ := store.GetEvent(event.ID)
	if got.Status != StatusInvestigating {
		t.Errorf("status = %s, want investigating", got.Status)
	}

	if store.UpdateEventStatus("missing", StatusResolved) {
		t.Error("UpdateEventStatus should report false for unknown event")
	}
}

func TestPurgeExpired(t *testing.T) {
	store, clock := newTestStore()

	store.Record(RecordInput{Type: TypeDataAccess, Severity: SeverityLow, IPAddress: "a", Description: "old"})
	clock.Advance(31 * 24 * time.Hour)
	store.Record(RecordInput{Type: TypeDataAccess, Severity: SeverityLow, IPAddress: "a", Description: "new"})

	purged := store.PurgeExpired()
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if store.EventCount() != 1 {
		t.Errorf("retained = %d, want 1", store.EventCount())
	}
	if store.Events()[0].Description != "new" {
		t.Error("purge removed the wrong event")
	}
}

func TestPurgeExpired_AgesOutQuietActivity(t *testing.T) {
	store, clock := newTestStore()

	store.Record(RecordInput{
		Type: TypeDataAccess, Severity: SeverityLow,
		IPAddress: "10.0.0.1", UserID: "alice", Endpoint: "/v1/records",
		Description: "read",
	})
	store.Record(RecordInput{
		Type: TypeDataAccess, Severity: SeverityLow,
		IPAddress: "10.0.0.2", Description: "read",
	})

	// Past the activity window with no further traffic from either
	// identity: the sweep drops their windows entirely.
	clock.Advance(25 * time.Hour)
	store.Record(RecordInput{
		Type: TypeDataAccess, Severity: SeverityLow,
		IPAddress: "10.0.0.3", Description: "read",
	})
	store.PurgeExpired()

	store.mu.RLock()
	defer store.mu.RUnlock()
	if _, ok := store.ipActivity["10.0.0.1"]; ok {
		t.Error("expected quiet ip window dropped")
	}
	if _, ok := store.ipActivity["10.0.0.2"]; ok {
		t.Error("expected quiet ip window dropped")
	}
	if _, ok := store.userActivity["alice"]; ok {
		t.Error("expected quiet user window dropped")
	}
	if got := len(store.ipActivity["10.0.0.3"]); got != 1 {
		t.Errorf("expected the active ip window retained, got %d entries", got)
	}
}

func TestSweep_PatternFiresAndSuppresses(t *testing.T) {
	clock := sched.NewFakeClock(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	store := NewStore(Config{
		Clock: clock,
		Patterns: []Pattern{{
			Name:        "exfil",
			Match:       TypeDataAccess,
			Window:      30 * time.Minute,
			Threshold:   5,
			Emit:        TypeUnusualActivity,
			Severity:    SeverityHigh,
			Description: "sustained data access",
		}},
	})

	for i := 0; i < 5; i++ {
		store.Record(RecordInput{Type: TypeDataAccess, Severity: SeverityLow, IPAddress: "10.1.1.1", Description: "read"})
	}

	if fired := store.Sweep(); fired != 1 {
		t.Fatalf("Sweep fired %d patterns, want 1", fired)
	}
	if got := countByType(store, TypeUnusualActivity); got != 1 {
		t.Errorf("unusual_activity = %d, want 1", got)
	}

	// Suppressed inside the window
	if fired := store.Sweep(); fired != 0 {
		t.Errorf("Sweep re-fired inside suppression window")
	}

	// After the window passes and activity continues, the pattern may fire again
	clock.Advance(31 * time.Minute)
	for i := 0; i < 5; i++ {
		store.Record(RecordInput{Type: TypeDataAccess, Severity: SeverityLow, IPAddress: "10.1.1.1", Description: "read"})
	}
	if fired := store.Sweep(); fired != 1 {
		t.Errorf("Sweep should fire again after suppression window")
	}
}

func TestGetDashboard_BucketsAndSeverity(t *testing.T) {
	store, clock := newTestStore()

	// 11 medium events this hour: slot qualifies as medium (>10)
	for i := 0; i < 11; i++ {
		store.Record(RecordInput{Type: TypeDataAccess, Severity: SeverityMedium, IPAddress: "a", Description: "x"})
	}
	clock.Advance(time.Hour)
	// One critical event in the next hour dominates regardless of count
	store.Record(RecordInput{Type: TypePrivilegeEscalation, Severity: SeverityCritical, IPAddress: "b", Description: "y"})

	dash := store.GetDashboard()
	if len(dash.Hourly) != 24 {
		t.Fatalf("hourly buckets = %d, want 24", len(dash.Hourly))
	}
	if dash.TotalEvents != 12 {
		t.Errorf("total = %d, want 12", dash.TotalEvents)
	}

	// Find the two populated buckets
	var mediumSlot, criticalSlot *HourBucket
	for i := range dash.Hourly {
		switch dash.Hourly[i].Count {
		case 11:
			mediumSlot = &dash.Hourly[i]
		case 1:
			criticalSlot = &dash.Hourly[i]
		}
	}
	if mediumSlot == nil || mediumSlot.Severity != SeverityMedium {
		t.Error("slot with 11 medium events should classify as medium")
	}
	if criticalSlot == nil || criticalSlot.Severity != SeverityCritical {
		t.Error("slot with a critical event should classify as critical")
	}
}

func TestGetDashboard_MediumRequiresVolume(t *testing.T) {
	store, _ := newTestStore()

	// 3 medium events: below the >10 volume rule, slot reports low
	for i := 0; i < 3; i++ {
		store.Record(RecordInput{Type: TypeDataAccess, Severity: SeverityMedium, IPAddress: "a", Description: "x"})
	}

	dash := store.GetDashboard()
	for _, slot := range dash.Hourly {
		if slot.Count == 3 && slot.Severity != SeverityLow {
			t.Errorf("slot with 3 medium events = %s, want low", slot.Severity)
		}
	}
}

func TestGetDashboard_EmptyAlwaysRenders(t *testing.T) {
	store, _ := newTestStore()
	dash := store.GetDashboard()
	if dash.TotalEvents != 0 {
		t.Error("empty dashboard should have zero totals")
	}
	if len(dash.Hourly) != 24 {
		t.Errorf("empty dashboard buckets = %d, want 24", len(dash.Hourly))
	}
	if dash.RecentEvents == nil {
		t.Error("recent events must be an empty slice, not nil")
	}
}
