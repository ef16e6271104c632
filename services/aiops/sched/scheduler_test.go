// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sched

import (
	"errors"
	"testing"
	"time"
)

// waitFor blocks until ch receives or the deadline passes.
func waitFor(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	if !clock.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", clock.Now(), start)
	}

	clock.Advance(90 * time.Second)
	want := start.Add(90 * time.Second)
	if !clock.Now().Equal(want) {
		t.Fatalf("Now() = %v, want %v", clock.Now(), want)
	}
}

func TestFakeClock_TickerFiresPerInterval(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Minute)

	clock.Advance(3 * time.Minute)

	fired := 0
	for {
		select {
		case <-ticker.C():
			fired++
		default:
			if fired != 3 {
				t.Fatalf("expected 3 ticks, got %d", fired)
			}
			return
		}
	}
}

func TestFakeClock_StoppedTickerDoesNotFire(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()

	clock.Advance(10 * time.Second)

	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestScheduler_EveryRunsJob(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewScheduler(clock, nil)
	defer s.Stop()

	ran := make(chan struct{}, 1)
	if err := s.Every("probe", time.Minute, func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Every: %v", err)
	}

	clock.Advance(time.Minute)
	waitFor(t, ran, "job never ran")
}

func TestScheduler_DuplicateName(t *testing.T) {
	s := NewScheduler(NewFakeClock(time.Now()), nil)
	defer s.Stop()

	if err := s.Every("x", time.Minute, func() {}); err != nil {
		t.Fatalf("first Every: %v", err)
	}
	err := s.Every("x", time.Minute, func() {})
	if !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}
}

func TestScheduler_InvalidInterval(t *testing.T) {
	s := NewScheduler(NewFakeClock(time.Now()), nil)
	defer s.Stop()

	if err := s.Every("x", 0, func() {}); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestScheduler_PanicDoesNotKillJob(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewScheduler(clock, nil)
	defer s.Stop()

	ran := make(chan struct{}, 4)
	calls := 0
	if err := s.Every("flaky", time.Minute, func() {
		calls++
		ran <- struct{}{}
		if calls == 1 {
			panic("tick failure")
		}
	}); err != nil {
		t.Fatalf("Every: %v", err)
	}

	clock.Advance(time.Minute)
	waitFor(t, ran, "first tick never ran")
	clock.Advance(time.Minute)
	waitFor(t, ran, "job did not survive a panicking tick")
}

func TestScheduler_Cancel(t *testing.T) {
	s := NewScheduler(NewFakeClock(time.Now()), nil)
	defer s.Stop()

	if err := s.Every("x", time.Minute, func() {}); err != nil {
		t.Fatalf("Every: %v", err)
	}
	if !s.Cancel("x") {
		t.Fatal("Cancel returned false for registered job")
	}
	if s.Cancel("x") {
		t.Fatal("Cancel returned true for removed job")
	}
	if len(s.Jobs()) != 0 {
		t.Fatalf("expected no jobs, got %v", s.Jobs())
	}
}

func TestScheduler_StopRejectsNewJobs(t *testing.T) {
	s := NewScheduler(NewFakeClock(time.Now()), nil)
	s.Stop()
	s.Stop() // idempotent

	if err := s.Every("late", time.Minute, func() {}); !errors.Is(err, ErrSchedulerStopped) {
		t.Fatalf("expected ErrSchedulerStopped, got %v", err)
	}
}
