// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tracing implements the in-process span and trace registry.
//
// A trace is the set of spans sharing a trace ID, insertion order preserved.
// Spans are created by StartSpan, mutated exactly once by FinishSpan, and
// never touched afterward. Finishing a span also feeds the service
// dependency map, which is how the service graph is built; there is no
// static service configuration.
//
// The registry holds at most maxTraces traces; once exceeded, the oldest
// traces by insertion order are evicted.
package tracing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verdanthealth/verdant-core/services/aiops/sched"
)

// =============================================================================
// Span Model
// =============================================================================

// SpanStatus is the terminal status of a span.
type SpanStatus string

const (
	StatusSuccess SpanStatus = "success"
	StatusError   SpanStatus = "error"
	StatusTimeout SpanStatus = "timeout"
)

// Span is one timed unit of work inside a trace.
//
// Lifecycle: created by StartSpan with StatusSuccess and no end time,
// mutated exactly once by FinishSpan, immutable afterward.
type Span struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Operation    string            `json:"operation"`
	Tags         map[string]string `json:"tags,omitempty"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	Duration     time.Duration     `json:"duration,omitempty"`
	Status       SpanStatus        `json:"status"`
	Error        string            `json:"error,omitempty"`
}

// SpanContext carries the identifiers needed to parent a child span.
type SpanContext struct {
	TraceID string `json:"trace_id"`
	SpanID  string `json:"span_id"`
}

// Context returns the span's propagation context.
func (s *Span) Context() SpanContext {
	return SpanContext{TraceID: s.TraceID, SpanID: s.SpanID}
}

// Trace is an ordered collection of spans sharing a trace ID.
type Trace struct {
	TraceID string `json:"trace_id"`
	Spans   []Span `json:"spans"`
}

// DependencyStats aggregates calls to one (service, operation) pair.
// Built incrementally from finished spans.
type DependencyStats struct {
	Service       string        `json:"service"`
	Operation     string        `json:"operation"`
	CallCount     int           `json:"call_count"`
	ErrorCount    int           `json:"error_count"`
	TotalDuration time.Duration `json:"total_duration"`
}

// serviceTag is the span tag naming the target service for the
// dependency map. Spans without it aggregate under "unknown".
const serviceTag = "service"

// maxTraces bounds the registry; oldest traces are evicted past this.
const maxTraces = 1000

// =============================================================================
// Store
// =============================================================================

// Config configures the tracing Store.
type Config struct {
	// Clock is the time source. If nil, sched.RealClock() is used.
	Clock sched.Clock

	// Logger for diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Store is the span/trace registry.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	clock  sched.Clock
	logger *slog.Logger

	mu         sync.RWMutex
	traces     map[string][]*Span
	traceOrder []string
	active     map[string]*Span
	deps       map[string]*DependencyStats
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
		clock:  clock,
		logger: logger,
		traces: make(map[string][]*Span),
		active: make(map[string]*Span),
		deps:   make(map[string]*DependencyStats),
	}
}

// StartSpan mints a span and registers it as active.
//
// Description:
//
//	Reuses the parent's trace ID when a parent context is given, otherwise
//	mints a new trace. The span is appended to its trace's ordered span
//	list and tracked in the active table until FinishSpan.
//
// Inputs:
//
//	operation - The operation name.
//	parent - Parent span context, or nil to start a new trace.
//	tags - Optional labels; the map is copied.
//
// Outputs:
//
//	Span - A copy of the created span (callers keep its Context()).
func (s *Store) StartSpan(operation string, parent *SpanContext, tags map[string]string) Span {
	span := &Span{
		SpanID:    uuid.NewString(),
		Operation: operation,
		Tags:      copyTags(tags),
		StartTime: s.clock.Now(),
		Status:    StatusSuccess,
	}
	if parent != nil {
		span.TraceID = parent.TraceID
		span.ParentSpanID = parent.SpanID
	} else {
		span.TraceID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.traces[span.TraceID]; !exists {
		s.traceOrder = append(s.traceOrder, span.TraceID)
	}
	s.traces[span.TraceID] = append(s.traces[span.TraceID], span)
	s.active[span.SpanID] = span
	s.evictLocked()

	return *span
}

// FinishSpan completes an active span.
//
// Description:
//
//	Sets the end time, duration, status, and optional error, removes the
//	span from the active table, and feeds the service dependency map.
//	Finishing an unknown or already-finished span is a logged no-op:
//	this is routinely triggered by normal races and never an error.
//
// Inputs:
//
//	spanID - The span to finish.
//	status - Terminal status.
//	errMsg - Error description for StatusError/StatusTimeout; may be empty.
//	extraTags - Tags merged into the span before finishing.
func (s *Store) FinishSpan(spanID string, status SpanStatus, errMsg string, extraTags map[string]string) {
	s.mu.Lock()
	span, ok := s.active[spanID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("tracing: finish of unknown or finished span",
			slog.String("span_id", spanID))
		return
	}
	delete(s.active, spanID)

	now := s.clock.Now()
	span.EndTime = &now
	span.Duration = now.Sub(span.StartTime)
	span.Status = status
	span.Error = errMsg
	for k, v := range extraTags {
		if span.Tags == nil {
			span.Tags = make(map[string]string)
		}
		span.Tags[k] = v
	}

	s.trackDependencyLocked(span)
	s.mu.Unlock()
}

// trackDependencyLocked folds one finished span into the dependency map.
func (s *Store) trackDependencyLocked(span *Span) {
	service := span.Tags[serviceTag]
	if service == "" {
		service = "unknown"
	}
	key := service + "\x00" + span.Operation

	stats, ok := s.deps[key]
	if !ok {
		stats = &DependencyStats{Service: service, Operation: span.Operation}
		s.deps[key] = stats
	}
	stats.CallCount++
	stats.TotalDuration += span.Duration
	if span.Status != StatusSuccess {
		stats.ErrorCount++
	}
}

// evictLocked drops oldest traces until the registry is at or under cap.
// Eviction is by trace insertion order, not last activity.
func (s *Store) evictLocked() {
	for len(s.traceOrder) > maxTraces {
		oldest := s.traceOrder[0]
		s.traceOrder = s.traceOrder[1:]
		for _, span := range s.traces[oldest] {
			delete(s.active, span.SpanID)
		}
		delete(s.traces, oldest)
	}
}

// GetTrace returns the ordered span list for a trace.
//
// Outputs:
//
//	Trace - Copy of the trace; zero value if unknown.
//	bool - False if the trace does not exist (or was evicted).
func (s *Store) GetTrace(traceID string) (Trace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spans, ok := s.traces[traceID]
	if !ok {
		return Trace{}, false
	}
	return Trace{TraceID: traceID, Spans: copySpans(spans)}, true
}

// ActiveSpanCount returns the number of unfinished spans.
func (s *Store) ActiveSpanCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// TraceCount returns the number of retained traces.
func (s *Store) TraceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.traceOrder)
}

// ServiceDependencies returns the aggregated service dependency map.
//
// Returns an empty (never nil) slice with no finished spans.
func (s *Store) ServiceDependencies() []DependencyStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DependencyStats, 0, len(s.deps))
	for _, stats := range s.deps {
		out = append(out, *stats)
	}
	return out
}

// Reset clears all traces, active spans, and dependency stats.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = make(map[string][]*Span)
	s.traceOrder = nil
	s.active = make(map[string]*Span)
	s.deps = make(map[string]*DependencyStats)
}

// =============================================================================
// Search
// =============================================================================

// SearchCriteria is an AND of optional span filters. Zero-valued fields
// pass everything.
type SearchCriteria struct {
	// Operation matches spans with this exact operation name.
	Operation string

	// Service matches spans whose "service" tag equals this value.
	Service string

	// MinDuration/MaxDuration bound the span duration (finished spans only
	// carry a duration; unfinished spans fail any duration bound).
	MinDuration time.Duration
	MaxDuration time.Duration

	// Status matches the span status.
	Status SpanStatus

	// TagKey/TagValue match one tag equality.
	TagKey   string
	TagValue string

	// StartAfter/StartBefore bound the span start time.
	StartAfter  time.Time
	StartBefore time.Time
}

// SearchTraces returns traces containing at least one span matching all
// provided criteria, in trace insertion order.
func (s *Store) SearchTraces(criteria SearchCriteria) []Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Trace, 0)
	for _, traceID := range s.traceOrder {
		spans := s.traces[traceID]
		for _, span := range spans {
			if criteria.matches(span) {
				results = append(results, Trace{TraceID: traceID, Spans: copySpans(spans)})
				break
			}
		}
	}
	return results
}

// matches applies every provided filter; absent filters default to pass.
func (c SearchCriteria) matches(span *Span) bool {
	if c.Operation != "" && span.Operation != c.Operation {
		return false
	}
	if c.Service != "" && span.Tags[serviceTag] != c.Service {
		return false
	}
	if c.MinDuration > 0 && (span.EndTime == nil || span.Duration < c.MinDuration) {
		return false
	}
	if c.MaxDuration > 0 && (span.EndTime == nil || span.Duration > c.MaxDuration) {
		return false
	}
	if c.Status != "" && span.Status != c.Status {
		return false
	}
	if c.TagKey != "" && span.Tags[c.TagKey] != c.TagValue {
		return false
	}
	if !c.StartAfter.IsZero() && span.StartTime.Before(c.StartAfter) {
		return false
	}
	if !c.StartBefore.IsZero() && span.StartTime.After(c.StartBefore) {
		return false
	}
	return true
}

// =============================================================================
// Helpers
// =============================================================================

func copySpans(spans []*Span) []Span {
	out := make([]Span, len(spans))
	for i, span := range spans {
		out[i] = *span
		out[i].Tags = copyTags(span.Tags)
	}
	return out
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
