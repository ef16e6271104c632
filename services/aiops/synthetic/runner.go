// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package synthetic implements scheduled black-box probes against live
// endpoints, independent of real traffic.
//
// Each registered test owns a recurring timer and an append-only, capped
// result history. Transport and timeout failures are captured into results
// and never propagate past the runner boundary: callers always get a
// Result. Toggling a test starts or stops its timer without touching
// history.
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/verdanthealth/verdant-core/services/aiops/sched"
)

// =============================================================================
// Test Model
// =============================================================================

// TestType selects the probe implementation.
type TestType string

const (
	TypeHTTP            TestType = "http"
	TypeAPI             TestType = "api"
	TypeDatabase        TestType = "database"
	TypeExternalService TestType = "external_service"
)

// Interval presets carried over from the original operational tuning.
// Arbitrary positive intervals are also accepted.
const (
	IntervalFast     = 2 * time.Minute
	IntervalRegular  = 5 * time.Minute
	IntervalRelaxed  = 10 * time.Minute
	IntervalInfrequent = 15 * time.Minute
)

// ProbeConfig carries the probe-type-specific settings.
type ProbeConfig struct {
	// URL, Method, Headers, Body configure http/api/external_service
	// probes. Method defaults to GET.
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`

	// Driver and DSN configure database probes.
	Driver string `json:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty"`

	// ExpectedStatus is the status code that counts as success.
	// Default: 200.
	ExpectedStatus int `json:"expected_status,omitempty"`

	// ExpectedResponseTime is the latency ceiling for success.
	// Default: 5s.
	ExpectedResponseTime time.Duration `json:"expected_response_time,omitempty"`

	// Timeout bounds the probe itself. Default: 10s.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Test is one registered synthetic probe.
type Test struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Type     TestType      `json:"type"`
	Config   ProbeConfig   `json:"config"`
	Interval time.Duration `json:"interval"`
	Enabled  bool          `json:"enabled"`
	Tags     []string      `json:"tags,omitempty"`
}

// Result is one probe execution outcome. Probe failures are data here,
// never errors.
type Result struct {
	TestID       string             `json:"test_id"`
	Timestamp    time.Time          `json:"timestamp"`
	Success      bool               `json:"success"`
	ResponseTime time.Duration      `json:"response_time"`
	StatusCode   int                `json:"status_code,omitempty"`
	Error        string             `json:"error,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// maxResultsPerTest bounds each test's result history.
const maxResultsPerTest = 1000

// ErrUnknownTestType indicates a test registered with an unsupported type.
// A deployment defect, surfaced at registration time.
var ErrUnknownTestType = errors.New("unknown synthetic test type")

// =============================================================================
// Runner
// =============================================================================

// DBPinger issues a connectivity probe against a database. Injected so
// tests can avoid a live server; the default uses database/sql.
type DBPinger func(ctx context.Context, driver, dsn string) error

// Config configures the Runner.
type Config struct {
	// Clock is the time source. If nil, sched.RealClock() is used.
	Clock sched.Clock

	// Logger for diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Scheduler owns the per-test recurring timers. Required for
	// enabled tests; a Runner without one can still RunTest on demand.
	Scheduler *sched.Scheduler

	// HTTPClient issues http/api/external_service probes.
	// If nil, a default client is used (per-probe timeouts still apply).
	HTTPClient *http.Client

	// DBPinger issues database probes. If nil, defaultDBPinger is used.
	DBPinger DBPinger
}

// Runner is the synthetic test registry and executor.
//
// Thread Safety: safe for concurrent use.
type Runner struct {
	clock     sched.Clock
	logger    *slog.Logger
	scheduler *sched.Scheduler
	client    *http.Client
	pinger    DBPinger

	mu      sync.RWMutex
	tests   map[string]*Test
	order   []string
	results map[string][]Result
}

// NewRunner creates an empty Runner.
func NewRunner(cfg Config) *Runner {
	clock := cfg.Clock
	if clock == nil {
		clock = sched.RealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	pinger := cfg.DBPinger
	if pinger == nil {
		pinger = defaultDBPinger
	}
	return &Runner{
		clock:     clock,
		logger:    logger,
		scheduler: cfg.Scheduler,
		client:    client,
		pinger:    pinger,
		tests:     make(map[string]*Test),
		results:   make(map[string][]Result),
	}
}

// AddTest registers a probe and starts its timer when enabled.
//
// Description:
//
//	Applies config defaults (GET, status 200, 5s latency ceiling, 10s
//	timeout, 5m interval). An unsupported test type is a configuration
//	error and is returned, per the deployment-defect taxonomy.
//
// Outputs:
//
//	Test - The registered test, with ID minted if absent.
//	error - ErrUnknownTestType for unsupported types.
func (r *Runner) AddTest(test Test) (Test, error) {
	switch test.Type {
	case TypeHTTP, TypeAPI, TypeDatabase, TypeExternalService:
	default:
		return Test{}, fmt.Errorf("%w: %s", ErrUnknownTestType, test.Type)
	}

	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	if test.Config.Method == "" {
		test.Config.Method = http.MethodGet
	}
	if test.Config.ExpectedStatus == 0 {
		test.Config.ExpectedStatus = http.StatusOK
	}
	if test.Config.ExpectedResponseTime <= 0 {
		test.Config.ExpectedResponseTime = 5 * time.Second
	}
	if test.Config.Timeout <= 0 {
		test.Config.Timeout = 10 * time.Second
	}
	if test.Interval <= 0 {
		test.Interval = IntervalRegular
	}

	r.mu.Lock()
	if _, exists := r.tests[test.ID]; !exists {
		r.order = append(r.order, test.ID)
	}
	stored := test
	r.tests[test.ID] = &stored
	r.mu.Unlock()

	if test.Enabled {
		r.startTimer(test.ID, test.Interval)
	}
	return test, nil
}

// Toggle starts or stops a test's recurring timer. History is untouched.
//
// Outputs:
//
//	bool - False if the test is unknown (logged, never an error).
func (r *Runner) Toggle(id string, enabled bool) bool {
	r.mu.Lock()
	test, ok := r.tests[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("synthetic: toggle of unknown test", slog.String("test_id", id))
		return false
	}
	test.Enabled = enabled
	interval := test.Interval
	r.mu.Unlock()

	if enabled {
		r.startTimer(id, interval)
	} else {
		r.stopTimer(id)
	}
	return true
}

// startTimer registers the recurring probe job.
func (r *Runner) startTimer(id string, interval time.Duration) {
	if r.scheduler == nil {
		return
	}
	name := jobName(id)
	// Re-enabling replaces any existing timer
	r.scheduler.Cancel(name)
	if err := r.scheduler.Every(name, interval, func() {
		r.RunTest(context.Background(), id)
	}); err != nil {
		r.logger.Error("synthetic: failed to schedule test",
			slog.String("test_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// stopTimer cancels the recurring probe job.
func (r *Runner) stopTimer(id string) {
	if r.scheduler == nil {
		return
	}
	r.scheduler.Cancel(jobName(id))
}

func jobName(id string) string {
	return "synthetic:" + id
}

// RunTest executes one probe and appends the result to the test's history.
//
// Description:
//
//	Transport and timeout errors are captured into the Result, never
//	returned: the runner boundary swallows probe failure. Success requires
//	the expected status code AND a latency at or under the configured
//	ceiling.
//
// Outputs:
//
//	Result - The recorded result; zero value for unknown tests.
//	bool - False if the test is unknown.
func (r *Runner) RunTest(ctx context.Context, id string) (Result, bool) {
	r.mu.RLock()
	test, ok := r.tests[id]
	if !ok {
		r.mu.RUnlock()
		r.logger.Warn("synthetic: run of unknown test", slog.String("test_id", id))
		return Result{}, false
	}
	snapshot := *test
	r.mu.RUnlock()

	result := r.execute(ctx, snapshot)

	r.mu.Lock()
	history := append(r.results[id], result)
	if len(history) > maxResultsPerTest {
		history = history[len(history)-maxResultsPerTest:]
	}
	r.results[id] = history
	r.mu.Unlock()

	if !result.Success {
		r.logger.Warn("synthetic test failed",
			slog.String("test_id", id),
			slog.String("name", snapshot.Name),
			slog.String("error", result.Error),
			slog.Int("status", result.StatusCode),
		)
	}
	return result, true
}

// RunAll executes every registered test concurrently and waits for all
// results. Used by the run-now operator endpoint.
func (r *Runner) RunAll(ctx context.Context) []Result {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	results := make([]Result, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			if result, ok := r.RunTest(ctx, id); ok {
				results[i] = result
			}
			return nil
		})
	}
	// Probes never return errors through the group; Wait only synchronizes.
	_ = g.Wait()
	return results
}

// GetTest returns a copy of a registered test.
func (r *Runner) GetTest(id string) (Test, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	test, ok := r.tests[id]
	if !ok {
		return Test{}, false
	}
	return *test, true
}

// Tests returns copies of all registered tests in registration order.
func (r *Runner) Tests() []Test {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Test, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.tests[id])
	}
	return out
}

// Results returns a copy of a test's result history, oldest first.
func (r *Runner) Results(id string) []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	history := r.results[id]
	out := make([]Result, len(history))
	copy(out, history)
	return out
}

// Shutdown stops every test timer. Histories are retained.
func (r *Runner) Shutdown() {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	for _, id := range ids {
		r.stopTimer(id)
	}
}

// Reset clears all tests and histories and stops their timers.
func (r *Runner) Reset() {
	r.Shutdown()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tests = make(map[string]*Test)
	r.order = nil
	r.results = make(map[string][]Result)
}
