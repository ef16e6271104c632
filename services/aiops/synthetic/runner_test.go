// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package synthetic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/verdanthealth/verdant-core/services/aiops/sched"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(Config{})
}

func TestAddTestDefaults(t *testing.T) {
	r := newTestRunner(t)

	test, err := r.AddTest(Test{Name: "checkout", Type: TypeHTTP, Config: ProbeConfig{URL: "http://example.test/health"}})
	if err != nil {
		t.Fatalf("AddTest failed: %v", err)
	}
	if test.ID == "" {
		t.Error("expected an ID to be minted")
	}
	if test.Config.Method != http.MethodGet {
		t.Errorf("expected default method GET, got %s", test.Config.Method)
	}
	if test.Config.ExpectedStatus != http.StatusOK {
		t.Errorf("expected default status 200, got %d", test.Config.ExpectedStatus)
	}
	if test.Config.ExpectedResponseTime != 5*time.Second {
		t.Errorf("expected default response ceiling 5s, got %v", test.Config.ExpectedResponseTime)
	}
	if test.Interval != IntervalRegular {
		t.Errorf("expected default interval 5m, got %v", test.Interval)
	}
}

func TestAddTestRejectsUnknownType(t *testing.T) {
	r := newTestRunner(t)

	_, err := r.AddTest(Test{Name: "bad", Type: TestType("quantum")})
	if !errors.Is(err, ErrUnknownTestType) {
		t.Fatalf("expected ErrUnknownTestType, got %v", err)
	}
}

func TestHTTPProbeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestRunner(t)
	test, _ := r.AddTest(Test{Name: "ok", Type: TypeHTTP, Config: ProbeConfig{URL: srv.URL}})

	result, ok := r.RunTest(context.Background(), test.ID)
	if !ok {
		t.Fatal("expected test to be found")
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q status %d", result.Error, result.StatusCode)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", result.StatusCode)
	}
	if result.Metrics["response_time_ms"] < 0 {
		t.Error("expected a non-negative response_time_ms metric")
	}
}

func TestHTTPProbeStatusMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := newTestRunner(t)
	test, _ := r.AddTest(Test{Name: "down", Type: TypeAPI, Config: ProbeConfig{URL: srv.URL}})

	result, _ := r.RunTest(context.Background(), test.ID)
	if result.Success {
		t.Fatal("expected failure on status mismatch")
	}
	if result.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", result.StatusCode)
	}
	if result.Error == "" {
		t.Error("expected a status mismatch error message")
	}
}

func TestHTTPProbeLatencyCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestRunner(t)
	test, _ := r.AddTest(Test{
		Name: "slow", Type: TypeHTTP,
		Config: ProbeConfig{URL: srv.URL, ExpectedResponseTime: time.Millisecond},
	})

	result, _ := r.RunTest(context.Background(), test.ID)
	if result.Success {
		t.Fatal("expected failure: correct status but latency over ceiling")
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("expected status 200 recorded despite failure, got %d", result.StatusCode)
	}
}

func TestTransportErrorCaptured(t *testing.T) {
	r := newTestRunner(t)
	test, _ := r.AddTest(Test{
		Name: "unreachable", Type: TypeExternalService,
		Config: ProbeConfig{URL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond},
	})

	result, ok := r.RunTest(context.Background(), test.ID)
	if !ok {
		t.Fatal("expected test to be found")
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error == "" {
		t.Error("expected transport error captured in result")
	}
}

func TestDatabaseProbe(t *testing.T) {
	pinged := false
	r := NewRunner(Config{
		DBPinger: func(_ context.Context, driver, dsn string) error {
			pinged = true
			if driver != "postgres" || dsn != "postgres://localhost/health" {
				t.Errorf("unexpected probe args: %s %s", driver, dsn)
			}
			return nil
		},
	})
	test, _ := r.AddTest(Test{
		Name: "primary-db", Type: TypeDatabase,
		Config: ProbeConfig{Driver: "postgres", DSN: "postgres://localhost/health"},
	})

	result, _ := r.RunTest(context.Background(), test.ID)
	if !pinged {
		t.Fatal("expected pinger to be invoked")
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}

	r2 := NewRunner(Config{
		DBPinger: func(context.Context, string, string) error {
			return errors.New("connection refused")
		},
	})
	test2, _ := r2.AddTest(Test{Name: "broken-db", Type: TypeDatabase, Config: ProbeConfig{Driver: "postgres"}})
	result2, _ := r2.RunTest(context.Background(), test2.ID)
	if result2.Success {
		t.Fatal("expected failure")
	}
	if result2.Error != "connection refused" {
		t.Errorf("expected captured ping error, got %q", result2.Error)
	}
}

func TestUnknownTestRun(t *testing.T) {
	r := newTestRunner(t)
	if _, ok := r.RunTest(context.Background(), "ghost"); ok {
		t.Fatal("expected RunTest of unknown id to report not found")
	}
	if r.Toggle("ghost", true) {
		t.Fatal("expected Toggle of unknown id to report not found")
	}
}

func TestResultHistoryCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestRunner(t)
	test, _ := r.AddTest(Test{Name: "burst", Type: TypeHTTP, Config: ProbeConfig{URL: srv.URL}})

	for i := 0; i < maxResultsPerTest+5; i++ {
		r.RunTest(context.Background(), test.ID)
	}
	if got := len(r.Results(test.ID)); got != maxResultsPerTest {
		t.Fatalf("expected history capped at %d, got %d", maxResultsPerTest, got)
	}
}

func TestToggleScheduling(t *testing.T) {
	runs := make(chan struct{}, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		runs <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clock := sched.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	scheduler := sched.NewScheduler(clock, nil)
	defer scheduler.Stop()

	r := NewRunner(Config{Clock: clock, Scheduler: scheduler})
	test, _ := r.AddTest(Test{
		Name: "scheduled", Type: TypeHTTP, Enabled: true,
		Interval: IntervalFast,
		Config:   ProbeConfig{URL: srv.URL},
	})

	clock.Advance(IntervalFast)
	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a scheduled probe after one interval")
	}

	if !r.Toggle(test.ID, false) {
		t.Fatal("expected toggle to succeed")
	}
	// Allow the in-flight probe bookkeeping to settle, then verify the
	// timer is gone.
	deadline := time.After(2 * time.Second)
	for {
		if len(scheduler.Jobs()) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected timer cancelled, jobs: %v", scheduler.Jobs())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestRunner(t)
	for _, name := range []string{"a", "b", "c"} {
		if _, err := r.AddTest(Test{Name: name, Type: TypeHTTP, Config: ProbeConfig{URL: srv.URL}}); err != nil {
			t.Fatalf("AddTest failed: %v", err)
		}
	}

	results := r.RunAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, res := range results {
		if !res.Success {
			t.Errorf("expected success for %s, got %q", res.TestID, res.Error)
		}
	}
}

func TestDashboard(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	r := newTestRunner(t)
	healthy, _ := r.AddTest(Test{Name: "healthy", Type: TypeHTTP, Config: ProbeConfig{URL: ok.URL}})
	failing, _ := r.AddTest(Test{Name: "failing", Type: TypeHTTP, Config: ProbeConfig{URL: bad.URL}})

	for i := 0; i < 4; i++ {
		r.RunTest(context.Background(), healthy.ID)
	}
	for i := 0; i < 2; i++ {
		r.RunTest(context.Background(), failing.ID)
	}

	dash := r.GetDashboard()
	if len(dash.Tests) != 2 {
		t.Fatalf("expected 2 test summaries, got %d", len(dash.Tests))
	}
	if dash.Tests[0].SuccessRate != 100 {
		t.Errorf("expected 100%% success for healthy test, got %.1f", dash.Tests[0].SuccessRate)
	}
	if dash.Tests[1].SuccessRate != 0 {
		t.Errorf("expected 0%% success for failing test, got %.1f", dash.Tests[1].SuccessRate)
	}
	if dash.Tests[0].LastResult == nil || !dash.Tests[0].LastResult.Success {
		t.Error("expected last result recorded for healthy test")
	}
	if len(dash.RecentFailures) != 2 {
		t.Errorf("expected 2 recent failures, got %d", len(dash.RecentFailures))
	}
	if len(dash.Hourly) != trendBuckets {
		t.Fatalf("expected %d trend buckets, got %d", trendBuckets, len(dash.Hourly))
	}
	last := dash.Hourly[trendBuckets-1]
	if last.Runs != 6 || last.Failures != 2 {
		t.Errorf("expected current bucket 6 runs / 2 failures, got %d / %d", last.Runs, last.Failures)
	}
	if last.SuccessRate < 66 || last.SuccessRate > 67 {
		t.Errorf("expected current bucket success rate ~66.7, got %.1f", last.SuccessRate)
	}
}

func TestEmptyDashboard(t *testing.T) {
	r := newTestRunner(t)
	dash := r.GetDashboard()
	if dash.Tests == nil || dash.RecentFailures == nil {
		t.Fatal("expected empty slices, not nil")
	}
	if len(dash.Hourly) != trendBuckets {
		t.Fatalf("expected %d buckets in empty dashboard, got %d", trendBuckets, len(dash.Hourly))
	}
}

func TestReset(t *testing.T) {
	r := newTestRunner(t)
	test, _ := r.AddTest(Test{Name: "gone", Type: TypeHTTP, Config: ProbeConfig{URL: "http://example.test"}})
	r.Reset()
	if len(r.Tests()) != 0 {
		t.Error("expected no tests after reset")
	}
	if len(r.Results(test.ID)) != 0 {
		t.Error("expected no results after reset")
	}
}
