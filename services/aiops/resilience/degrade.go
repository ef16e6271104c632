// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllPathsFailed is returned when the primary and every fallback in
// the chain failed.
var ErrAllPathsFailed = errors.New("all degradation paths failed")

// Degradation levels: 0 is full service, maxDegradationLevel is the
// deepest fallback posture.
const maxDegradationLevel = 5

// Degrader tracks a per-service degradation level and routes calls
// through a fallback ladder.
//
// Description:
//
//	Each named service carries a level from 0 to 5. Every fully failed
//	call raises the level by one; a successful PRIMARY call lowers it
//	by one. Fallback successes hold the level where it is, and the
//	primary is only attempted at level 0, so a degraded service stays
//	on its fallbacks until an operator resets it.
//
// Thread Safety: safe for concurrent use.
type Degrader struct {
	logger *slog.Logger

	mu     sync.Mutex
	levels map[string]int
}

// NewDegrader creates an empty Degrader.
func NewDegrader(logger *slog.Logger) *Degrader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Degrader{logger: logger, levels: make(map[string]int)}
}

// Level returns the current degradation level for a service. Unknown
// services are at level 0.
func (d *Degrader) Level(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.levels[name]
}

// Levels returns a snapshot of every degraded service (level > 0).
func (d *Degrader) Levels() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.levels))
	for name, level := range d.levels {
		if level > 0 {
			out[name] = level
		}
	}
	return out
}

// Execute runs an operation down the fallback ladder.
//
// Description:
//
//	The primary is attempted only while the service sits at level 0;
//	any deeper level skips it entirely so a failing primary is not
//	hammered while degraded. The walk then covers the fallbacks
//	starting at index level-1 (clamped): deeper degradation skips the
//	shallower fallbacks that have already been failing. Success at the
//	primary decrements the level; success at a fallback leaves it
//	unchanged; total failure increments it up to the cap.
//
// Outputs:
//
//	int - The rung that succeeded (0 = primary, n = fallbacks[n-1]),
//	or -1 on total failure.
//	error - Nil on success, otherwise ErrAllPathsFailed wrapping the
//	last rung's error.
func (d *Degrader) Execute(ctx context.Context, name string, primary func(context.Context) error, fallbacks ...func(context.Context) error) (int, error) {
	d.mu.Lock()
	level := d.levels[name]
	d.mu.Unlock()

	var lastErr error
	if level == 0 {
		err := primary(ctx)
		if err == nil {
			d.settle(name, 0, true)
			return 0, nil
		}
		lastErr = err
		d.logger.Warn("primary path failed",
			slog.String("service", name),
			slog.String("error", err.Error()),
		)
	}

	start := level - 1
	if start < 0 {
		start = 0
	}
	// A level deeper than the ladder still tries the deepest fallback.
	if start >= len(fallbacks) && len(fallbacks) > 0 {
		start = len(fallbacks) - 1
	}
	for i := start; i < len(fallbacks); i++ {
		if err := fallbacks[i](ctx); err == nil {
			d.settle(name, i+1, true)
			return i + 1, nil
		} else {
			lastErr = err
			d.logger.Warn("degradation rung failed",
				slog.String("service", name),
				slog.Int("rung", i+1),
				slog.String("error", err.Error()),
			)
		}
	}
	if lastErr == nil {
		// Degraded past the primary with no fallbacks configured.
		lastErr = errors.New("no eligible path at current level")
	}
	d.settle(name, -1, false)
	return -1, fmt.Errorf("%w: %s: %w", ErrAllPathsFailed, name, lastErr)
}

// settle adjusts the level after a call.
func (d *Degrader) settle(name string, rung int, success bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	level := d.levels[name]
	switch {
	case !success:
		if level < maxDegradationLevel {
			level++
			d.logger.Warn("service degraded",
				slog.String("service", name),
				slog.Int("level", level),
			)
		}
	case rung == 0:
		if level > 0 {
			level--
			d.logger.Info("service recovering",
				slog.String("service", name),
				slog.Int("level", level),
			)
		}
	}
	d.levels[name] = level
}

// Reset clears every service back to level 0.
func (d *Degrader) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levels = make(map[string]int)
}
