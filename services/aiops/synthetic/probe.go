// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package synthetic

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"strings"
	"time"

	// Postgres driver for database probes.
	_ "github.com/lib/pq"
)

// =============================================================================
// Probe Execution
// =============================================================================

// execute dispatches one probe by test type. Every failure mode lands in
// the Result; this function cannot fail.
func (r *Runner) execute(ctx context.Context, test Test) Result {
	ctx, cancel := context.WithTimeout(ctx, test.Config.Timeout)
	defer cancel()

	switch test.Type {
	case TypeDatabase:
		return r.probeDatabase(ctx, test)
	default:
		// http, api and external_service all reduce to an HTTP
		// round-trip; they differ only in operator intent.
		return r.probeHTTP(ctx, test)
	}
}

// probeHTTP issues one HTTP request and grades the outcome.
func (r *Runner) probeHTTP(ctx context.Context, test Test) Result {
	cfg := test.Config
	start := r.clock.Now()

	var body io.Reader
	if cfg.Body != "" {
		body = strings.NewReader(cfg.Body)
	}
	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, body)
	if err != nil {
		return r.failed(test, start, 0, err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return r.failed(test, start, 0, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	latency := r.clock.Now().Sub(start)
	result := Result{
		TestID:       test.ID,
		Timestamp:    start,
		ResponseTime: latency,
		StatusCode:   resp.StatusCode,
		Success:      resp.StatusCode == cfg.ExpectedStatus && latency <= cfg.ExpectedResponseTime,
		Metrics: map[string]float64{
			"response_time_ms": float64(latency.Milliseconds()),
		},
	}
	if resp.StatusCode != cfg.ExpectedStatus {
		result.Error = "unexpected status " + resp.Status
	} else if latency > cfg.ExpectedResponseTime {
		result.Error = "response time " + latency.String() + " exceeded " + cfg.ExpectedResponseTime.String()
	}
	return result
}

// probeDatabase verifies connectivity to the configured database.
func (r *Runner) probeDatabase(ctx context.Context, test Test) Result {
	cfg := test.Config
	start := r.clock.Now()

	if err := r.pinger(ctx, cfg.Driver, cfg.DSN); err != nil {
		return r.failed(test, start, 0, err)
	}

	latency := r.clock.Now().Sub(start)
	return Result{
		TestID:       test.ID,
		Timestamp:    start,
		ResponseTime: latency,
		Success:      latency <= cfg.ExpectedResponseTime,
		Metrics: map[string]float64{
			"response_time_ms": float64(latency.Milliseconds()),
		},
	}
}

// failed builds a Result for a probe that never produced a response.
func (r *Runner) failed(test Test, start time.Time, status int, err error) Result {
	return Result{
		TestID:       test.ID,
		Timestamp:    start,
		ResponseTime: r.clock.Now().Sub(start),
		StatusCode:   status,
		Success:      false,
		Error:        err.Error(),
	}
}

// defaultDBPinger opens a short-lived connection and pings it.
func defaultDBPinger(ctx context.Context, driver, dsn string) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}
