// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sched provides the clock and recurring-job abstractions the aiops
// components are built on.
//
// Every component that reads the wall clock or runs a periodic sweep takes a
// Clock and a *Scheduler injected through its Config instead of calling
// time.Now or time.NewTicker directly. Tests substitute a FakeClock and
// advance virtual time deterministically; production wiring passes
// RealClock() once from the service facade.
package sched

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Clock
// =============================================================================

// Clock abstracts wall-clock reads and ticker creation.
//
// Thread Safety: implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a ticker firing every d. Callers must Stop it.
	NewTicker(d time.Duration) Ticker
}

// Ticker is the minimal surface of time.Ticker the scheduler needs.
type Ticker interface {
	// C returns the channel ticks are delivered on.
	C() <-chan time.Time

	// Stop halts tick delivery. Stop does not close the channel.
	Stop()
}

// realClock delegates to the time package.
type realClock struct{}

// RealClock returns the production Clock backed by the time package.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// =============================================================================
// Fake Clock (for tests)
// =============================================================================

// FakeClock is a manually-advanced Clock for deterministic tests.
//
// Advance moves virtual time forward and delivers due ticks in time order.
// Tick delivery is non-blocking: a ticker whose channel buffer is full drops
// the tick, mirroring time.Ticker's coalescing behavior.
//
// Thread Safety: safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFakeClock creates a FakeClock starting at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current virtual time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker returns a virtual ticker driven by Advance.
func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTicker{
		ch:       make(chan time.Time, 64),
		interval: d,
		next:     c.now.Add(d),
	}
	c.tickers = append(c.tickers, ft)
	return ft
}

// Advance moves virtual time forward by d, firing every due ticker in
// chronological order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.now.Add(d)
	for {
		due := make([]*fakeTicker, 0, len(c.tickers))
		for _, ft := range c.tickers {
			if !ft.stopped.Load() && !ft.next.After(target) {
				due = append(due, ft)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })

		ft := due[0]
		c.now = ft.next
		select {
		case ft.ch <- ft.next:
		default:
			// Receiver is behind; coalesce like time.Ticker
		}
		ft.next = ft.next.Add(ft.interval)
	}
	c.now = target
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }
