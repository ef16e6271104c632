// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sched

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sentinel errors for the scheduler.
var (
	// ErrDuplicateJob indicates a job with the same name is already registered.
	ErrDuplicateJob = errors.New("job already registered")

	// ErrSchedulerStopped indicates the scheduler has been shut down.
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrInvalidInterval indicates a non-positive job interval.
	ErrInvalidInterval = errors.New("interval must be positive")
)

// Scheduler owns every recurring job in the aiops core.
//
// Description:
//
//	One Scheduler instance is shared by all components so that shutdown is a
//	single Stop() call that leaves no dangling timers. A panic inside a tick
//	is recovered and logged; one bad tick never stops future ticks and never
//	crashes a sibling job.
//
// Thread Safety: safe for concurrent use.
type Scheduler struct {
	clock  Clock
	logger *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	stopped bool
	wg      sync.WaitGroup
}

type job struct {
	name   string
	ticker Ticker
	stop   chan struct{}
}

// NewScheduler creates a Scheduler driven by the given clock.
//
// Inputs:
//
//	clock - Time source. If nil, RealClock() is used.
//	logger - For tick failures. If nil, slog.Default() is used.
func NewScheduler(clock Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:  clock,
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// Every registers a recurring job firing every interval.
//
// Description:
//
//	The job function runs on its own goroutine, one tick at a time. Ticks
//	that arrive while fn is still running are coalesced by the ticker
//	channel. A panicking fn is recovered and logged.
//
// Inputs:
//
//	name - Unique job name, used for Cancel and log lines.
//	interval - Tick period. Must be positive.
//	fn - The job body.
//
// Outputs:
//
//	error - ErrDuplicateJob, ErrSchedulerStopped, or ErrInvalidInterval.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	j := &job{
		name:   name,
		ticker: s.clock.NewTicker(interval),
		stop:   make(chan struct{}),
	}
	s.jobs[name] = j

	s.wg.Add(1)
	go s.run(j, fn)
	return nil
}

// run is the per-job loop.
func (s *Scheduler) run(j *job, fn func()) {
	defer s.wg.Done()
	for {
		select {
		case <-j.stop:
			return
		case <-j.ticker.C():
			s.tick(j.name, fn)
		}
	}
}

// tick executes one job invocation with panic recovery.
func (s *Scheduler) tick(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked",
				slog.String("job", name),
				slog.Any("panic", r),
			)
		}
	}()
	fn()
}

// Cancel stops and removes a single job.
//
// Outputs:
//
//	bool - False if no job with that name is registered.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if ok {
		delete(s.jobs, name)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	j.ticker.Stop()
	close(j.stop)
	return true
}

// Jobs returns the names of all registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Stop cancels every job and waits for in-flight ticks to finish.
//
// After Stop, Every returns ErrSchedulerStopped. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.jobs = make(map[string]*job)
	s.mu.Unlock()

	for _, j := range jobs {
		j.ticker.Stop()
		close(j.stop)
	}
	s.wg.Wait()
}
