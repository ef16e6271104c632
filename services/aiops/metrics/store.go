// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics implements the in-process metrics store for the aiops core.
//
// The store keeps a bounded FIFO buffer of samples per metric name and
// answers window aggregations over them. Percentiles use the nearest-rank
// method. SLO evaluation and threshold alert rules are layered on top of the
// same aggregation path.
//
// Every derived statistic is computed over an explicit window or bounded
// buffer, never over unbounded history.
package metrics

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/verdanthealth/verdant-core/services/aiops/sched"
)

// =============================================================================
// Sample Model
// =============================================================================

// Kind classifies a metric sample.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
	KindSummary   Kind = "summary"
)

// Sample is one recorded metric observation. Immutable once recorded.
type Sample struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
	Kind      Kind              `json:"kind"`
}

// AggregateFn names a reduction over samples in a window.
type AggregateFn string

const (
	AggAvg   AggregateFn = "avg"
	AggSum   AggregateFn = "sum"
	AggMin   AggregateFn = "min"
	AggMax   AggregateFn = "max"
	AggCount AggregateFn = "count"
	AggP50   AggregateFn = "p50"
	AggP95   AggregateFn = "p95"
	AggP99   AggregateFn = "p99"
)

// maxSamplesPerName bounds each metric's buffer (FIFO eviction).
const maxSamplesPerName = 1000

// =============================================================================
// Store
// =============================================================================

// Config configures the metrics Store.
type Config struct {
	// Clock is the time source. If nil, sched.RealClock() is used.
	Clock sched.Clock

	// Logger for diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Store is the bounded in-memory metrics store.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	clock  sched.Clock
	logger *slog.Logger

	mu      sync.RWMutex
	samples map[string][]Sample
	slos    map[string]SLO
	rules   map[string]*AlertRule
}

// NewStore creates an empty Store.
func NewStore(cfg Config) *Store {
	clock := cfg.Clock
	if clock == nil {
		clock = sched.RealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		clock:   clock,
		logger:  logger,
		samples: make(map[string][]Sample),
		slos:    make(map[string]SLO),
		rules:   make(map[string]*AlertRule),
	}
}

// Record appends a sample and trims the metric's buffer to the newest
// maxSamplesPerName entries.
//
// Inputs:
//
//	name - Metric name. Empty names are dropped with a warning.
//	value - Observed value.
//	tags - Optional key/value labels; the map is copied.
//	kind - Sample kind. Empty defaults to KindGauge.
func (s *Store) Record(name string, value float64, tags map[string]string, kind Kind) {
	if name == "" {
		s.logger.Warn("metrics: dropping sample with empty name")
		return
	}
	if kind == "" {
		kind = KindGauge
	}

	sample := Sample{
		Name:      name,
		Value:     value,
		Timestamp: s.clock.Now(),
		Tags:      copyTags(tags),
		Kind:      kind,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.samples[name], sample)
	if len(buf) > maxSamplesPerName {
		buf = buf[len(buf)-maxSamplesPerName:]
	}
	s.samples[name] = buf
}

// CurrentValue returns the most recent sample for a metric.
//
// Outputs:
//
//	Sample - The latest sample, zero value if none.
//	bool - False if the metric has no samples.
func (s *Store) CurrentValue(name string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.samples[name]
	if len(buf) == 0 {
		return Sample{}, false
	}
	return buf[len(buf)-1], true
}

// Aggregate reduces the samples recorded within the trailing window.
//
// Description:
//
//	Filters samples with timestamp >= now-window, then applies fn.
//	Percentiles use the nearest-rank method: sort ascending and index at
//	ceil(n*p)-1, clamped to [0, n-1]. No interpolation.
//
// Outputs:
//
//	float64 - The reduction. Zero when no samples fall in the window
//	          (empty state is not an error).
func (s *Store) Aggregate(name string, fn AggregateFn, window time.Duration) float64 {
	values := s.windowValues(name, window)
	if len(values) == 0 {
		return 0
	}

	switch fn {
	case AggCount:
		return float64(len(values))
	case AggSum:
		return sum(values)
	case AggAvg:
		return sum(values) / float64(len(values))
	case AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case AggP50:
		return percentile(values, 0.50)
	case AggP95:
		return percentile(values, 0.95)
	case AggP99:
		return percentile(values, 0.99)
	default:
		s.logger.Warn("metrics: unknown aggregate function", slog.String("fn", string(fn)))
		return 0
	}
}

// Names returns all metric names with at least one sample.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.samples))
	for name := range s.samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all samples, SLOs, and alert rules. Administrative use only.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = make(map[string][]Sample)
	s.slos = make(map[string]SLO)
	s.rules = make(map[string]*AlertRule)
}

// windowValues snapshots the values inside the trailing window.
func (s *Store) windowValues(name string, window time.Duration) []float64 {
	cutoff := s.clock.Now().Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.samples[name]
	values := make([]float64, 0, len(buf))
	for _, sample := range buf {
		if !sample.Timestamp.Before(cutoff) {
			values = append(values, sample.Value)
		}
	}
	return values
}

// percentile computes the nearest-rank percentile of values.
// The input slice is copied before sorting.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
