// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the aiops service configuration with priority:
// environment > file > defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Routing   RoutingConfig   `yaml:"routing"`
	Cost      CostConfig      `yaml:"cost"`
	Detection DetectionConfig `yaml:"detection"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Synthetic SyntheticConfig `yaml:"synthetic"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// StorageConfig configures the embedded persistence tier.
type StorageConfig struct {
	// Path is the BadgerDB directory. Empty disables persistence.
	Path string `yaml:"path"`
	// SyncWrites trades latency for durability.
	SyncWrites bool `yaml:"sync_writes"`
}

// RoutingConfig is the provider selection policy.
type RoutingConfig struct {
	Tiers    map[string][]ModelOption `yaml:"tiers" validate:"dive,dive"`
	Fallback ModelOption              `yaml:"fallback"`
}

// ModelOption is one candidate model in a routing tier.
type ModelOption struct {
	Provider     string  `yaml:"provider" validate:"required"`
	Model        string  `yaml:"model" validate:"required"`
	CostPerToken float64 `yaml:"cost_per_token" validate:"gte=0"`
	Bias         float64 `yaml:"bias"`
}

// CostConfig configures the usage ledger and budgets.
type CostConfig struct {
	TokenCaps  []TokenCap `yaml:"token_caps" validate:"dive"`
	SpikeFloor float64    `yaml:"spike_floor" validate:"gte=0"`
	Budgets    []Budget   `yaml:"budgets" validate:"dive"`
}

// TokenCap is a daily token ceiling for one provider:model pair.
type TokenCap struct {
	Provider    string `yaml:"provider" validate:"required"`
	Model       string `yaml:"model" validate:"required"`
	DailyTokens int    `yaml:"daily_tokens" validate:"gt=0"`
}

// Budget is one configured spend ceiling.
type Budget struct {
	Name           string  `yaml:"name" validate:"required"`
	Period         string  `yaml:"period" validate:"omitempty,oneof=daily weekly monthly"`
	Limit          float64 `yaml:"limit" validate:"gt=0"`
	Provider       string  `yaml:"provider"`
	AlertThreshold float64 `yaml:"alert_threshold" validate:"gte=0,lte=100"`
}

// DetectionConfig tunes the security anomaly thresholds.
type DetectionConfig struct {
	BruteForceCount  int           `yaml:"brute_force_count" validate:"gt=0"`
	BruteForceWindow time.Duration `yaml:"brute_force_window" validate:"gt=0"`
	EndpointSpread   int           `yaml:"endpoint_spread" validate:"gt=0"`
	SpreadWindow     time.Duration `yaml:"spread_window" validate:"gt=0"`
	RequestFlood     int           `yaml:"request_flood" validate:"gt=0"`
	FloodWindow      time.Duration `yaml:"flood_window" validate:"gt=0"`
	Retention        time.Duration `yaml:"retention" validate:"gt=0"`
}

// BreakerConfig tunes the default circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" validate:"gt=0"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" validate:"gt=0"`
}

// SyntheticConfig declares the probes started at boot.
type SyntheticConfig struct {
	Tests []SyntheticTest `yaml:"tests" validate:"dive"`
}

// SyntheticTest is one configured probe.
type SyntheticTest struct {
	ID                   string            `yaml:"id"`
	Name                 string            `yaml:"name" validate:"required"`
	Type                 string            `yaml:"type" validate:"oneof=http api database external_service"`
	URL                  string            `yaml:"url"`
	Method               string            `yaml:"method"`
	Headers              map[string]string `yaml:"headers"`
	Driver               string            `yaml:"driver"`
	DSN                  string            `yaml:"dsn"`
	ExpectedStatus       int               `yaml:"expected_status"`
	ExpectedResponseTime time.Duration     `yaml:"expected_response_time"`
	Interval             time.Duration     `yaml:"interval"`
	Enabled              bool              `yaml:"enabled"`
}

// TelemetryConfig configures the OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Stdout       bool   `yaml:"stdout"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      ":8090",
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
		Storage: StorageConfig{
			SyncWrites: true,
		},
		Cost: CostConfig{
			SpikeFloor: 0.01,
		},
		Detection: DetectionConfig{
			BruteForceCount:  10,
			BruteForceWindow: 15 * time.Minute,
			EndpointSpread:   15,
			SpreadWindow:     time.Hour,
			RequestFlood:     1000,
			FloodWindow:      time.Hour,
			Retention:        30 * 24 * time.Hour,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     60 * time.Second,
		},
	}
}

// Load builds the configuration with priority: env > file > defaults.
//
// Inputs:
//
//	path - YAML config file. Empty or missing files fall back to
//	defaults.
//
// Outputs:
//
//	Config - Merged configuration.
//	error - Non-nil if the file exists but is invalid, or validation
//	fails.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	loadEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("AIOPS_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("AIOPS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AIOPS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("AIOPS_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		cfg.Telemetry.Enabled = true
	}
}

// Validate checks structural constraints via validator tags.
func Validate(cfg Config) error {
	return validator.New().Struct(cfg)
}
