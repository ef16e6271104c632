// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  shutdown_timeout: 5s
logging:
  level: debug
routing:
  tiers:
    level1:
      - provider: openai
        model: gpt-4o-mini
        cost_per_token: 0.0000006
  fallback:
    provider: openai
    model: gpt-3.5-turbo
    cost_per_token: 0.0000015
cost:
  token_caps:
    - provider: openai
      model: gpt-4o-mini
      daily_tokens: 500000
  budgets:
    - name: monthly-ai
      period: monthly
      limit: 50
      alert_threshold: 80
detection:
  brute_force_count: 8
synthetic:
  tests:
    - name: api-health
      type: http
      url: http://localhost:8080/health
      interval: 2m
      enabled: true
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aiops.yaml")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("unexpected default listen addr: %s", cfg.Server.ListenAddr)
	}
	if cfg.Detection.BruteForceCount != 10 || cfg.Detection.Retention != 30*24*time.Hour {
		t.Errorf("unexpected detection defaults: %+v", cfg.Detection)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.ResetTimeout != 60*time.Second {
		t.Errorf("unexpected breaker defaults: %+v", cfg.Breaker)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("expected file override, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Detection.BruteForceCount != 8 {
		t.Errorf("expected file override of brute force count, got %d", cfg.Detection.BruteForceCount)
	}
	// Unset fields keep their defaults.
	if cfg.Detection.RequestFlood != 1000 {
		t.Errorf("expected default request flood, got %d", cfg.Detection.RequestFlood)
	}
	if len(cfg.Routing.Tiers["level1"]) != 1 {
		t.Fatalf("expected one level1 model, got %+v", cfg.Routing.Tiers)
	}
	if len(cfg.Cost.Budgets) != 1 || cfg.Cost.Budgets[0].Limit != 50 {
		t.Errorf("unexpected budgets: %+v", cfg.Cost.Budgets)
	}
	if len(cfg.Cost.TokenCaps) != 1 || cfg.Cost.TokenCaps[0].DailyTokens != 500000 {
		t.Errorf("unexpected token caps: %+v", cfg.Cost.TokenCaps)
	}
	if len(cfg.Synthetic.Tests) != 1 || cfg.Synthetic.Tests[0].Interval != 2*time.Minute {
		t.Errorf("unexpected synthetic tests: %+v", cfg.Synthetic.Tests)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected missing file to fall back to defaults, got %v", err)
	}
	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("unexpected listen addr: %s", cfg.Server.ListenAddr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AIOPS_LISTEN_ADDR", ":7070")
	t.Setenv("AIOPS_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("expected env to beat file, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env log level to beat file, got %s", cfg.Logging.Level)
	}
}

func TestValidationRejectsBadConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: loud
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown log level")
	}

	path = writeConfig(t, `
cost:
  budgets:
    - name: broken
      period: hourly
      limit: 10
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown budget period")
	}
}

func TestMalformedYAMLRejected(t *testing.T) {
	path := writeConfig(t, "server: [not: a: mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWatcherReload(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	reloaded := make(chan Config, 4)
	w, err := NewWatcher(path, nil, func(cfg Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	updated := `
server:
  listen_addr: ":9999"
  shutdown_timeout: 5s
`
	if err := os.WriteFile(path, []byte(updated), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Server.ListenAddr != ":9999" {
			t.Errorf("expected reloaded listen addr, got %s", cfg.Server.ListenAddr)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected a reload callback")
	}
}

func TestWatcherKeepsPreviousOnBadReload(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	reloaded := make(chan Config, 4)
	w, err := NewWatcher(path, nil, func(cfg Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		t.Fatalf("expected invalid config dropped, got callback with %+v", cfg.Logging)
	case <-time.After(time.Second):
		// No callback: the previous configuration stays in effect.
	}
}
