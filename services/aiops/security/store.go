// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package security implements the append-only security event log and the
// anomaly detector layered on it.
//
// Recording an event updates per-IP and per-user sliding activity windows
// and immediately evaluates the anomaly rules against the new state. Rules
// that fire synthesize new events through the same recording path;
// synthesized types are never auth_failure, so the recursion is bounded.
//
// Event status is the only field mutated after creation. Events are purged
// once older than the retention horizon, independent of status.
package security

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verdanthealth/verdant-core/services/aiops/sched"
)

// =============================================================================
// Event Model
// =============================================================================

// EventType classifies a security event.
type EventType string

const (
	TypeAuthFailure         EventType = "auth_failure"
	TypeBruteForce          EventType = "brute_force"
	TypeSuspiciousIP        EventType = "suspicious_ip"
	TypeDataAccess          EventType = "data_access"
	TypePrivilegeEscalation EventType = "privilege_escalation"
	TypeUnusualActivity     EventType = "unusual_activity"
)

// Severity ranks an event's impact.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities for worst-of comparisons.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// EventStatus tracks an event through triage.
type EventStatus string

const (
	StatusOpen          EventStatus = "open"
	StatusInvestigating EventStatus = "investigating"
	StatusResolved      EventStatus = "resolved"
	StatusFalsePositive EventStatus = "false_positive"
)

// Event is one recorded security event.
type Event struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	Severity    Severity          `json:"severity"`
	Timestamp   time.Time         `json:"timestamp"`
	UserID      string            `json:"user_id,omitempty"`
	IPAddress   string            `json:"ip_address"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      EventStatus       `json:"status"`
}

// RecordInput carries the caller-supplied fields of a new event.
type RecordInput struct {
	Type        EventType
	Severity    Severity
	IPAddress   string
	Description string
	Metadata    map[string]string
	UserID      string
	UserAgent   string
	Endpoint    string
}

// activityEntry is one request observation in a sliding window. The
// activity windows are independent of the event log and used only for
// threshold checks.
type activityEntry struct {
	timestamp time.Time
	eventType EventType
	endpoint  string
}

// =============================================================================
// Detection Thresholds
// =============================================================================

// Thresholds parameterizes the inline anomaly rules. Defaults match the
// production tuning; see DefaultThresholds.
type Thresholds struct {
	// BruteForceCount auth_failures from one IP within BruteForceWindow
	// synthesize a brute_force event.
	BruteForceCount  int
	BruteForceWindow time.Duration

	// EndpointSpread distinct endpoints by one user within
	// EndpointSpreadWindow synthesize an unusual_activity event once the
	// spread exceeds the threshold.
	EndpointSpread       int
	EndpointSpreadWindow time.Duration

	// RequestFlood requests from one IP within RequestFloodWindow
	// synthesize a suspicious_ip event once the count exceeds the
	// threshold.
	RequestFlood       int
	RequestFloodWindow time.Duration

	// ActivityWindow bounds the per-IP and per-user sliding windows.
	ActivityWindow time.Duration

	// Retention is the event log purge horizon.
	Retention time.Duration
}

// DefaultThresholds returns the production detection thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BruteForceCount:      10,
		BruteForceWindow:     15 * time.Minute,
		EndpointSpread:       15,
		EndpointSpreadWindow: time.Hour,
		RequestFlood:         1000,
		RequestFloodWindow:   time.Hour,
		ActivityWindow:       24 * time.Hour,
		Retention:            30 * 24 * time.Hour,
	}
}

// =============================================================================
// Store
// =============================================================================

// Config configures the security Store.
type Config struct {
	// Clock is the time source. If nil, sched.RealClock() is used.
	Clock sched.Clock

	// Logger for diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Thresholds for the inline anomaly rules. Zero fields take defaults.
	Thresholds Thresholds

	// Patterns evaluated by the periodic Sweep. Optional.
	Patterns []Pattern

	// OnEvent, when set, receives every recorded event (synthesized
	// anomalies included) outside the store lock. Used to feed the live
	// alert stream and the persistence tier.
	OnEvent func(Event)
}

// Store is the security event log and anomaly detector.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	clock      sched.Clock
	logger     *slog.Logger
	thresholds Thresholds

	onEvent func(Event)

	mu           sync.RWMutex
	events       []*Event
	byID         map[string]*Event
	ipActivity   map[string][]activityEntry
	userActivity map[string][]activityEntry
	patterns     []*patternState
}

// NewStore creates an empty Store.
func NewStore(cfg Config) *Store {
	clock := cfg.Clock
	if clock == nil {
		clock = sched.RealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	th := cfg.Thresholds
	defaults := DefaultThresholds()
	if th.BruteForceCount <= 0 {
		th.BruteForceCount = defaults.BruteForceCount
	}
	if th.BruteForceWindow <= 0 {
		th.BruteForceWindow = defaults.BruteForceWindow
	}
	if th.EndpointSpread <= 0 {
		th.EndpointSpread = defaults.EndpointSpread
	}
	if th.EndpointSpreadWindow <= 0 {
		th.EndpointSpreadWindow = defaults.EndpointSpreadWindow
	}
	if th.RequestFlood <= 0 {
		th.RequestFlood = defaults.RequestFlood
	}
	if th.RequestFloodWindow <= 0 {
		th.RequestFloodWindow = defaults.RequestFloodWindow
	}
	if th.ActivityWindow <= 0 {
		th.ActivityWindow = defaults.ActivityWindow
	}
	if th.Retention <= 0 {
		th.Retention = defaults.Retention
	}

	s := &Store{
		clock:        clock,
		logger:       logger,
		thresholds:   th,
		onEvent:      cfg.OnEvent,
		byID:         make(map[string]*Event),
		ipActivity:   make(map[string][]activityEntry),
		userActivity: make(map[string][]activityEntry),
	}
	for _, p := range cfg.Patterns {
		s.patterns = append(s.patterns, &patternState{Pattern: p})
	}
	return s
}

// Record appends an event, updates the activity windows, and evaluates the
// anomaly rules against the new state.
//
// Outputs:
//
//	Event - A copy of the stored event.
func (s *Store) Record(input RecordInput) Event {
	now := s.clock.Now()
	event := &Event{
		ID:          uuid.NewString(),
		Type:        input.Type,
		Severity:    input.Severity,
		Timestamp:   now,
		UserID:      input.UserID,
		IPAddress:   input.IPAddress,
		UserAgent:   input.UserAgent,
		Endpoint:    input.Endpoint,
		Description: input.Description,
		Metadata:    copyMetadata(input.Metadata),
		Status:      StatusOpen,
	}

	s.mu.Lock()
	s.events = append(s.events, event)
	s.byID[event.ID] = event

	entry := activityEntry{timestamp: now, eventType: input.Type, endpoint: input.Endpoint}
	if input.IPAddress != "" {
		s.ipActivity[input.IPAddress] = pruneWindow(
			append(s.ipActivity[input.IPAddress], entry), now.Add(-s.thresholds.ActivityWindow))
	}
	if input.UserID != "" {
		s.userActivity[input.UserID] = pruneWindow(
			append(s.userActivity[input.UserID], entry), now.Add(-s.thresholds.ActivityWindow))
	}
	synthesized := s.checkAnomaliesLocked(event, now)
	s.mu.Unlock()

	if s.onEvent != nil {
		s.onEvent(*event)
	}

	// Synthesized events recurse through the same recording path. None of
	// them are auth_failure, so the recursion terminates.
	for _, syn := range synthesized {
		s.Record(syn)
	}

	return *event
}

// checkAnomaliesLocked evaluates the inline rules against the state just
// produced by the triggering event. Fires exactly at the crossing point so
// the rule is idempotent within a detection cycle: the observation after
// the crossing does not fire again.
func (s *Store) checkAnomaliesLocked(event *Event, now time.Time) []RecordInput {
	var synthesized []RecordInput

	if event.Type == TypeAuthFailure && event.IPAddress != "" {
		cutoff := now.Add(-s.thresholds.BruteForceWindow)
		count := 0
		for _, entry := range s.ipActivity[event.IPAddress] {
			if entry.eventType == TypeAuthFailure && !entry.timestamp.Before(cutoff) {
				count++
			}
		}
		if count == s.thresholds.BruteForceCount {
			synthesized = append(synthesized, RecordInput{
				Type:        TypeBruteForce,
				Severity:    SeverityHigh,
				IPAddress:   event.IPAddress,
				UserID:      event.UserID,
				Description: "repeated authentication failures from a single address",
				Metadata: map[string]string{
					"auth_failures": itoa(count),
					"window":        s.thresholds.BruteForceWindow.String(),
				},
			})
		}
	}

	if event.UserID != "" {
		cutoff := now.Add(-s.thresholds.EndpointSpreadWindow)
		distinct := make(map[string]struct{})
		for _, entry := range s.userActivity[event.UserID] {
			if entry.endpoint != "" && !entry.timestamp.Before(cutoff) {
				distinct[entry.endpoint] = struct{}{}
			}
		}
		if len(distinct) == s.thresholds.EndpointSpread+1 {
			synthesized = append(synthesized, RecordInput{
				Type:        TypeUnusualActivity,
				Severity:    SeverityMedium,
				IPAddress:   event.IPAddress,
				UserID:      event.UserID,
				Description: "user touched an unusual number of distinct endpoints",
				Metadata: map[string]string{
					"distinct_endpoints": itoa(len(distinct)),
					"window":             s.thresholds.EndpointSpreadWindow.String(),
				},
			})
		}
	}

	if event.IPAddress != "" {
		cutoff := now.Add(-s.thresholds.RequestFloodWindow)
		count := 0
		for _, entry := range s.ipActivity[event.IPAddress] {
			if !entry.timestamp.Before(cutoff) {
				count++
			}
		}
		if count == s.thresholds.RequestFlood+1 {
			synthesized = append(synthesized, RecordInput{
				Type:        TypeSuspiciousIP,
				Severity:    SeverityMedium,
				IPAddress:   event.IPAddress,
				Description: "request volume from a single address exceeded the flood threshold",
				Metadata: map[string]string{
					"requests": itoa(count),
					"window":   s.thresholds.RequestFloodWindow.String(),
				},
			})
		}
	}

	return synthesized
}

// UpdateEventStatus moves an event through triage. The only mutation
// allowed after creation.
//
// Outputs:
//
//	bool - False if the event is unknown (logged, never an error).
func (s *Store) UpdateEventStatus(id string, status EventStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.byID[id]
	if !ok {
		s.logger.Warn("security: status update for unknown event", slog.String("id", id))
		return false
	}
	event.Status = status
	return true
}

// GetEvent returns a copy of an event by ID.
func (s *Store) GetEvent(id string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.byID[id]
	if !ok {
		return Event{}, false
	}
	return *event, true
}

// Events returns copies of all retained events, oldest first.
func (s *Store) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, 0, len(s.events))
	for _, event := range s.events {
		out = append(out, *event)
	}
	return out
}

// EventCount returns the number of retained events.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// PurgeExpired removes events older than the retention horizon,
// independent of status, and ages out the sliding activity windows.
//
// Outputs:
//
//	int - Number of events purged.
func (s *Store) PurgeExpired() int {
	now := s.clock.Now()
	cutoff := now.Add(-s.thresholds.Retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneActivityLocked(now)

	// Events are appended in time order; find the first survivor.
	idx := 0
	for idx < len(s.events) && s.events[idx].Timestamp.Before(cutoff) {
		delete(s.byID, s.events[idx].ID)
		idx++
	}
	if idx == 0 {
		return 0
	}
	s.events = append([]*Event(nil), s.events[idx:]...)
	return idx
}

// pruneActivityLocked ages out the sliding windows for identities that
// have gone quiet. Record only prunes the window it appends to, so idle
// keys are cleaned here; emptied keys are deleted so the maps do not
// grow with every address ever seen. Caller holds s.mu.
func (s *Store) pruneActivityLocked(now time.Time) {
	cutoff := now.Add(-s.thresholds.ActivityWindow)
	for key, entries := range s.ipActivity {
		pruned := pruneWindow(entries, cutoff)
		if len(pruned) == 0 {
			delete(s.ipActivity, key)
			continue
		}
		s.ipActivity[key] = pruned
	}
	for key, entries := range s.userActivity {
		pruned := pruneWindow(entries, cutoff)
		if len(pruned) == 0 {
			delete(s.userActivity, key)
			continue
		}
		s.userActivity[key] = pruned
	}
}

// Restore loads previously persisted events into the log without
// running anomaly checks or callbacks. Used for startup hydration;
// events must be supplied oldest first.
func (s *Store) Restore(events []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range events {
		event := events[i]
		if _, exists := s.byID[event.ID]; exists {
			continue
		}
		stored := &event
		s.events = append(s.events, stored)
		s.byID[event.ID] = stored
	}
}

// Retention returns the configured event retention horizon.
func (s *Store) Retention() time.Duration {
	return s.thresholds.Retention
}

// Reset clears all events, activity windows, and pattern state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.byID = make(map[string]*Event)
	s.ipActivity = make(map[string][]activityEntry)
	s.userActivity = make(map[string][]activityEntry)
	for _, p := range s.patterns {
		p.lastFired = time.Time{}
	}
}

// =============================================================================
// Helpers
// =============================================================================

// pruneWindow drops entries older than cutoff from the front of a window.
func pruneWindow(entries []activityEntry, cutoff time.Time) []activityEntry {
	idx := 0
	for idx < len(entries) && entries[idx].timestamp.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return entries
	}
	return append([]activityEntry(nil), entries[idx:]...)
}

func copyMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
