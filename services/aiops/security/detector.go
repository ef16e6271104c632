// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package security

import (
	"log/slog"
	"time"
)

// =============================================================================
// Periodic Pattern Sweep
// =============================================================================

// Pattern is a longer-horizon detection rule evaluated by the periodic
// sweep rather than inline on each recording.
type Pattern struct {
	// Name identifies the pattern in logs and synthesized events.
	Name string

	// Match counts events of this type within Window.
	Match EventType

	// Window is the trailing observation window.
	Window time.Duration

	// Threshold is the event count at or above which the pattern fires.
	Threshold int

	// Emit is the synthesized event's type. Must not be auth_failure.
	Emit EventType

	// Severity of the synthesized event.
	Severity Severity

	// Description of the synthesized event.
	Description string
}

// patternState pairs a Pattern with its suppression timestamp.
type patternState struct {
	Pattern
	lastFired time.Time
}

// DefaultPatterns returns the stock sweep patterns.
//
// The data-exfiltration pattern watches for sustained data_access volume;
// further patterns are configuration, not code.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "data-exfiltration",
			Match:       TypeDataAccess,
			Window:      30 * time.Minute,
			Threshold:   50,
			Emit:        TypeUnusualActivity,
			Severity:    SeverityHigh,
			Description: "sustained data access volume consistent with exfiltration",
		},
	}
}

// Sweep evaluates every configured pattern once.
//
// Description:
//
//	Intended to run from a scheduled job (every 5 minutes in production).
//	A failure in one pattern is logged and never halts the rest; a fired
//	pattern is suppressed for its own window so one incident produces one
//	synthesized event. Sweep never blocks on I/O.
//
// Outputs:
//
//	int - Number of patterns that fired on this pass.
func (s *Store) Sweep() int {
	now := s.clock.Now()

	s.mu.RLock()
	patterns := make([]*patternState, len(s.patterns))
	copy(patterns, s.patterns)
	events := make([]*Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	fired := 0
	for _, p := range patterns {
		if s.sweepOne(p, events, now) {
			fired++
		}
	}
	return fired
}

// sweepOne evaluates a single pattern with panic isolation.
func (s *Store) sweepOne(p *patternState, events []*Event, now time.Time) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("security: pattern evaluation panicked",
				slog.String("pattern", p.Name),
				slog.Any("panic", r),
			)
			fired = false
		}
	}()

	if p.Threshold <= 0 || p.Window <= 0 {
		return false
	}

	s.mu.RLock()
	suppressed := !p.lastFired.IsZero() && now.Sub(p.lastFired) < p.Window
	s.mu.RUnlock()
	if suppressed {
		return false
	}

	cutoff := now.Add(-p.Window)
	count := 0
	for _, event := range events {
		if event.Type == p.Match && !event.Timestamp.Before(cutoff) {
			count++
		}
	}
	if count < p.Threshold {
		return false
	}

	s.mu.Lock()
	p.lastFired = now
	s.mu.Unlock()

	s.logger.Warn("security pattern fired",
		slog.String("pattern", p.Name),
		slog.Int("count", count),
	)
	s.Record(RecordInput{
		Type:        p.Emit,
		Severity:    p.Severity,
		IPAddress:   "",
		Description: p.Description,
		Metadata: map[string]string{
			"pattern": p.Name,
			"count":   itoa(count),
			"window":  p.Window.String(),
		},
	})
	return true
}
