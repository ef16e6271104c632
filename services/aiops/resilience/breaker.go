// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resilience provides the failure-isolation primitives used in
// front of upstream AI providers: circuit breakers, timeout wrappers,
// and a graceful degradation ladder.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verdanthealth/verdant-core/services/aiops/sched"
)

// ErrCircuitOpen is returned when a breaker rejects a call and no
// fallback is available.
var ErrCircuitOpen = errors.New("circuit open")

// =============================================================================
// Breaker States
// =============================================================================

// BreakerState is the circuit position.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerOptions tunes one named breaker. Options are applied on first
// use of the name; later calls reuse the existing breaker.
type BreakerOptions struct {
	// FailureThreshold is the cumulative failure count that opens the
	// circuit. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before admitting
	// a half-open probe. Default: 60s.
	ResetTimeout time.Duration
}

// DefaultBreakerOptions returns the stock tuning.
func DefaultBreakerOptions() BreakerOptions {
	return BreakerOptions{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
	}
}

// breaker is the per-name circuit state.
type breaker struct {
	opts        BreakerOptions
	state       BreakerState
	failures    int
	successes   int
	requests    int
	lastFailure time.Time
	openedAt    time.Time
	probing     bool
}

// snapshot builds a read-only view of one circuit. Caller holds the
// registry lock.
func (br *breaker) snapshot(name string) BreakerStatus {
	status := BreakerStatus{
		Name:        name,
		State:       br.state,
		Failures:    br.failures,
		Successes:   br.successes,
		Requests:    br.requests,
		LastFailure: br.lastFailure,
		OpenedAt:    br.openedAt,
	}
	if br.state == StateOpen {
		status.NextAttempt = br.openedAt.Add(br.opts.ResetTimeout)
	}
	return status
}

// BreakerStatus is a read-only snapshot of one circuit.
type BreakerStatus struct {
	Name      string       `json:"name"`
	State     BreakerState `json:"state"`
	Failures  int          `json:"failures"`
	Successes int          `json:"successes"`
	Requests  int          `json:"requests"`

	// LastFailure and OpenedAt are zero until the first failure/open.
	// NextAttempt is set only while the circuit is OPEN.
	LastFailure time.Time `json:"last_failure_time,omitempty"`
	NextAttempt time.Time `json:"next_attempt_time,omitempty"`
	OpenedAt    time.Time `json:"opened_at,omitempty"`
}

// =============================================================================
// Breaker Registry
// =============================================================================

// Config configures the Breakers registry.
type Config struct {
	// Clock is the time source. If nil, sched.RealClock() is used.
	Clock sched.Clock

	// Logger for state transitions. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Defaults applies to breakers created without explicit options.
	Defaults BreakerOptions
}

// Breakers is a registry of named circuit breakers, created lazily on
// first use.
//
// Thread Safety: safe for concurrent use. The protected function runs
// outside the registry lock.
type Breakers struct {
	clock    sched.Clock
	logger   *slog.Logger
	defaults BreakerOptions

	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewBreakers creates an empty registry.
func NewBreakers(cfg Config) *Breakers {
	clock := cfg.Clock
	if clock == nil {
		clock = sched.RealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaults := cfg.Defaults
	if defaults.FailureThreshold <= 0 {
		defaults.FailureThreshold = DefaultBreakerOptions().FailureThreshold
	}
	if defaults.ResetTimeout <= 0 {
		defaults.ResetTimeout = DefaultBreakerOptions().ResetTimeout
	}
	return &Breakers{
		clock:    clock,
		logger:   logger,
		defaults: defaults,
		breakers: make(map[string]*breaker),
	}
}

// Execute runs fn behind the named circuit.
//
// Description:
//
//	CLOSED admits the call; each failure increments the cumulative
//	count and the threshold opens the circuit. OPEN rejects calls until
//	the reset timeout elapses, then admits exactly one probe in
//	HALF_OPEN: probe success closes the circuit and clears the count,
//	probe failure reopens it and restarts the timer. A rejected call
//	runs fallback when provided; otherwise ErrCircuitOpen.
//
// Inputs:
//
//	ctx - Passed through to fn and fallback.
//	name - Circuit identity, usually the upstream service name.
//	fn - The protected operation.
//	fallback - Optional degraded path for rejected or failed calls.
//
// Outputs:
//
//	error - fn's error, fallback's error, or ErrCircuitOpen.
func (b *Breakers) Execute(ctx context.Context, name string, fn func(context.Context) error, fallback func(context.Context) error) error {
	admitted, probe := b.admit(name)
	if !admitted {
		if fallback != nil {
			return fallback(ctx)
		}
		return fmt.Errorf("%w: %s", ErrCircuitOpen, name)
	}

	err := fn(ctx)
	b.settle(name, probe, err)
	if err != nil && fallback != nil {
		return fallback(ctx)
	}
	return err
}

// ExecuteWithOptions is Execute with explicit tuning for a breaker's
// first use.
func (b *Breakers) ExecuteWithOptions(ctx context.Context, name string, opts BreakerOptions, fn func(context.Context) error, fallback func(context.Context) error) error {
	b.mu.Lock()
	if _, exists := b.breakers[name]; !exists {
		if opts.FailureThreshold <= 0 {
			opts.FailureThreshold = b.defaults.FailureThreshold
		}
		if opts.ResetTimeout <= 0 {
			opts.ResetTimeout = b.defaults.ResetTimeout
		}
		b.breakers[name] = &breaker{opts: opts, state: StateClosed}
	}
	b.mu.Unlock()
	return b.Execute(ctx, name, fn, fallback)
}

// admit decides whether a call may proceed and whether it is the
// half-open probe.
func (b *Breakers) admit(name string) (admitted, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br, exists := b.breakers[name]
	if !exists {
		br = &breaker{opts: b.defaults, state: StateClosed}
		b.breakers[name] = br
	}

	switch br.state {
	case StateClosed:
		br.requests++
		return true, false
	case StateOpen:
		if b.clock.Now().Sub(br.openedAt) < br.opts.ResetTimeout {
			return false, false
		}
		br.state = StateHalfOpen
		br.probing = true
		br.requests++
		b.logger.Info("circuit half-open, admitting probe", slog.String("breaker", name))
		return true, true
	case StateHalfOpen:
		// One probe at a time.
		if br.probing {
			return false, false
		}
		br.probing = true
		br.requests++
		return true, true
	}
	return false, false
}

// settle records a call outcome and transitions the circuit.
func (b *Breakers) settle(name string, probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.breakers[name]
	if br == nil {
		return
	}

	if probe {
		br.probing = false
		if err == nil {
			br.state = StateClosed
			br.failures = 0
			br.successes++
			b.logger.Info("circuit closed after successful probe", slog.String("breaker", name))
		} else {
			br.state = StateOpen
			br.openedAt = b.clock.Now()
			br.lastFailure = br.openedAt
			b.logger.Warn("circuit reopened after failed probe",
				slog.String("breaker", name),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if err == nil {
		br.successes++
		return
	}
	br.failures++
	br.lastFailure = b.clock.Now()
	if br.state == StateClosed && br.failures >= br.opts.FailureThreshold {
		br.state = StateOpen
		br.openedAt = b.clock.Now()
		b.logger.Warn("circuit opened",
			slog.String("breaker", name),
			slog.Int("failures", br.failures),
		)
	}
}

// Status returns a snapshot of one circuit. Unknown names report a
// closed circuit, matching lazy creation.
func (b *Breakers) Status(name string) BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	br, exists := b.breakers[name]
	if !exists {
		return BreakerStatus{Name: name, State: StateClosed}
	}
	return br.snapshot(name)
}

// Statuses returns snapshots of every known circuit.
func (b *Breakers) Statuses() []BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BreakerStatus, 0, len(b.breakers))
	for name, br := range b.breakers {
		out = append(out, br.snapshot(name))
	}
	return out
}

// Reset clears all circuit state.
func (b *Breakers) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.breakers = make(map[string]*breaker)
}
