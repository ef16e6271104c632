// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metrics

import (
	"runtime"
	"time"
)

// =============================================================================
// Runtime Gauge Collector
// =============================================================================

// RuntimeCollector periodically records process-level gauges into the store.
//
// This is peripheral instrumentation for the operator dashboard, not part of
// the store's core contract. The service facade schedules Collect every 30s.
type RuntimeCollector struct {
	store   *Store
	started time.Time
}

// NewRuntimeCollector creates a collector bound to the store.
func NewRuntimeCollector(store *Store) *RuntimeCollector {
	return &RuntimeCollector{
		store:   store,
		started: store.clock.Now(),
	}
}

// Collect records one round of process gauges.
func (c *RuntimeCollector) Collect() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.store.Record("process.heap_alloc_bytes", float64(mem.HeapAlloc), nil, KindGauge)
	c.store.Record("process.heap_objects", float64(mem.HeapObjects), nil, KindGauge)
	c.store.Record("process.gc_cycles", float64(mem.NumGC), nil, KindCounter)
	c.store.Record("process.goroutines", float64(runtime.NumGoroutine()), nil, KindGauge)
	c.store.Record("process.uptime_seconds",
		c.store.clock.Now().Sub(c.started).Seconds(), nil, KindGauge)
}
