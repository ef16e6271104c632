// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracing

import (
	"fmt"
	"testing"
	"time"

	"github.com/verdanthealth/verdant-core/services/aiops/sched"
)

func newTestStore() (*Store, *sched.FakeClock) {
	clock := sched.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewStore(Config{Clock: clock}), clock
}

func TestStartSpan_NewTraceAndChild(t *testing.T) {
	store, _ := newTestStore()

	root := store.StartSpan("chat.request", nil, map[string]string{"service": "ai-router"})
	if root.TraceID == "" || root.SpanID == "" {
		t.Fatal("StartSpan must mint trace and span IDs")
	}
	if root.Status != StatusSuccess {
		t.Errorf("new span status = %s, want success", root.Status)
	}
	if root.EndTime != nil {
		t.Error("new span must have no end time")
	}

	ctx := root.Context()
	child := store.StartSpan("provider.call", &ctx, nil)
	if child.TraceID != root.TraceID {
		t.Errorf("child trace = %s, want parent's %s", child.TraceID, root.TraceID)
	}
	if child.ParentSpanID != root.SpanID {
		t.Errorf("child parent = %s, want %s", child.ParentSpanID, root.SpanID)
	}

	trace, ok := store.GetTrace(root.TraceID)
	if !ok {
		t.Fatal("GetTrace should find the trace")
	}
	if len(trace.Spans) != 2 {
		t.Fatalf("trace has %d spans, want 2", len(trace.Spans))
	}
	// Append order preserved
	if trace.Spans[0].SpanID != root.SpanID || trace.Spans[1].SpanID != child.SpanID {
		t.Error("trace span list must preserve append order")
	}
}

func TestFinishSpan_SetsDurationAndIsIdempotent(t *testing.T) {
	store, clock := newTestStore()

	span := store.StartSpan("op", nil, nil)
	clock.Advance(250 * time.Millisecond)
	store.FinishSpan(span.SpanID, StatusSuccess, "", nil)

	trace, _ := store.GetTrace(span.TraceID)
	finished := trace.Spans[0]
	if finished.EndTime == nil {
		t.Fatal("finished span must have an end time")
	}
	if finished.Duration != 250*time.Millisecond {
		t.Errorf("duration = %v, want 250ms", finished.Duration)
	}
	if finished.Duration < 0 {
		t.Error("duration must be non-negative")
	}
	if store.ActiveSpanCount() != 0 {
		t.Errorf("active spans = %d, want 0", store.ActiveSpanCount())
	}

	// Second finish is a no-op: status must not change
	clock.Advance(time.Second)
	store.FinishSpan(span.SpanID, StatusError, "late", nil)
	trace, _ = store.GetTrace(span.TraceID)
	if trace.Spans[0].Status != StatusSuccess {
		t.Error("second FinishSpan must not mutate the span")
	}
	if trace.Spans[0].Duration != 250*time.Millisecond {
		t.Error("second FinishSpan must not change duration")
	}
}

func TestFinishSpan_UnknownSpanIsNoOp(t *testing.T) {
	store, _ := newTestStore()
	// Must not panic or create state
	store.FinishSpan("no-such-span", StatusError, "x", nil)
	if store.TraceCount() != 0 {
		t.Error("finishing an unknown span must not create traces")
	}
}

func TestFinishSpan_FeedsDependencyMap(t *testing.T) {
	store, clock := newTestStore()

	for i := 0; i < 3; i++ {
		span := store.StartSpan("embed", nil, map[string]string{"service": "openai"})
		clock.Advance(100 * time.Millisecond)
		status := StatusSuccess
		if i == 2 {
			status = StatusError
		}
		store.FinishSpan(span.SpanID, status, "", nil)
	}

	deps := store.ServiceDependencies()
	if len(deps) != 1 {
		t.Fatalf("expected 1 dependency entry, got %d", len(deps))
	}
	d := deps[0]
	if d.Service != "openai" || d.Operation != "embed" {
		t.Errorf("unexpected dependency key: %s/%s", d.Service, d.Operation)
	}
	if d.CallCount != 3 {
		t.Errorf("call count = %d, want 3", d.CallCount)
	}
	if d.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", d.ErrorCount)
	}
	if d.TotalDuration != 300*time.Millisecond {
		t.Errorf("total duration = %v, want 300ms", d.TotalDuration)
	}
}

func TestEviction_OldestTraceDropsPastCap(t *testing.T) {
	store, _ := newTestStore()

	first := store.StartSpan("op", nil, nil)
	for i := 0; i < maxTraces; i++ {
		store.StartSpan("op", nil, nil)
	}

	if store.TraceCount() != maxTraces {
		t.Fatalf("trace count = %d, want %d", store.TraceCount(), maxTraces)
	}
	if _, ok := store.GetTrace(first.TraceID); ok {
		t.Error("earliest-inserted trace should have been evicted")
	}
}

func TestSearchTraces_FiltersAreANDed(t *testing.T) {
	store, clock := newTestStore()

	fast := store.StartSpan("chat", nil, map[string]string{"service": "openai", "tier": "level1"})
	clock.Advance(50 * time.Millisecond)
	store.FinishSpan(fast.SpanID, StatusSuccess, "", nil)

	slow := store.StartSpan("chat", nil, map[string]string{"service": "anthropic"})
	clock.Advance(2 * time.Second)
	store.FinishSpan(slow.SpanID, StatusTimeout, "deadline", nil)

	other := store.StartSpan("report", nil, map[string]string{"service": "openai"})
	store.FinishSpan(other.SpanID, StatusSuccess, "", nil)

	// No criteria: everything matches
	if got := store.SearchTraces(SearchCriteria{}); len(got) != 3 {
		t.Errorf("empty criteria matched %d traces, want 3", len(got))
	}

	// Operation only
	if got := store.SearchTraces(SearchCriteria{Operation: "chat"}); len(got) != 2 {
		t.Errorf("operation filter matched %d, want 2", len(got))
	}

	// Operation AND service
	got := store.SearchTraces(SearchCriteria{Operation: "chat", Service: "openai"})
	if len(got) != 1 || got[0].TraceID != fast.TraceID {
		t.Errorf("operation+service filter matched %d, want the fast trace", len(got))
	}

	// Duration bounds
	if got := store.SearchTraces(SearchCriteria{MinDuration: time.Second}); len(got) != 1 {
		t.Errorf("min duration filter matched %d, want 1", len(got))
	}

	// Status
	if got := store.SearchTraces(SearchCriteria{Status: StatusTimeout}); len(got) != 1 {
		t.Errorf("status filter matched %d, want 1", len(got))
	}

	// Tag equality
	if got := store.SearchTraces(SearchCriteria{TagKey: "tier", TagValue: "level1"}); len(got) != 1 {
		t.Errorf("tag filter matched %d, want 1", len(got))
	}
}

func TestExport_JaegerRoundTrip(t *testing.T) {
	store, clock := newTestStore()

	span := store.StartSpan("analysis", nil, map[string]string{"service": "ai-router"})
	clock.Advance(42 * time.Millisecond)
	store.FinishSpan(span.SpanID, StatusSuccess, "", nil)

	doc, err := store.Export(FormatJaeger)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	jaeger, ok := doc.(JaegerDocument)
	if !ok {
		t.Fatalf("Export(jaeger) returned %T", doc)
	}
	if len(jaeger.Data) != 1 || len(jaeger.Data[0].Spans) != 1 {
		t.Fatal("expected one trace with one span")
	}

	js := jaeger.Data[0].Spans[0]
	if js.TraceID != span.TraceID {
		t.Errorf("traceID = %s, want %s", js.TraceID, span.TraceID)
	}
	if js.SpanID != span.SpanID {
		t.Errorf("spanID = %s, want %s", js.SpanID, span.SpanID)
	}
	if js.OperationName != "analysis" {
		t.Errorf("operationName = %s, want analysis", js.OperationName)
	}
	// Duration is rescaled ms -> µs: 42ms == 42000µs
	if js.Duration != 42_000 {
		t.Errorf("duration = %dµs, want 42000", js.Duration)
	}
}

func TestExport_ZipkinAndOTelShapes(t *testing.T) {
	store, clock := newTestStore()

	root := store.StartSpan("chat", nil, nil)
	ctx := root.Context()
	child := store.StartSpan("provider.call", &ctx, nil)
	clock.Advance(10 * time.Millisecond)
	store.FinishSpan(child.SpanID, StatusSuccess, "", nil)
	store.FinishSpan(root.SpanID, StatusSuccess, "", nil)

	zdoc, err := store.Export(FormatZipkin)
	if err != nil {
		t.Fatalf("Export(zipkin): %v", err)
	}
	zipkin := zdoc.([]ZipkinSpan)
	if len(zipkin) != 2 {
		t.Fatalf("zipkin span count = %d, want 2", len(zipkin))
	}
	var childSpan *ZipkinSpan
	for i := range zipkin {
		if zipkin[i].ID == child.SpanID {
			childSpan = &zipkin[i]
		}
	}
	if childSpan == nil || childSpan.ParentID != root.SpanID {
		t.Error("zipkin child span must carry parentId")
	}

	odoc, err := store.Export(FormatOpenTelemetry)
	if err != nil {
		t.Fatalf("Export(opentelemetry): %v", err)
	}
	otel := odoc.(OTelDocument)
	if len(otel.ResourceSpans) != 1 {
		t.Fatal("otel document must have one resourceSpans entry")
	}
	if got := len(otel.ResourceSpans[0].ScopeSpans[0].Spans); got != 2 {
		t.Errorf("otel span count = %d, want 2", got)
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	store, _ := newTestStore()
	if _, err := store.Export("protobuf"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestReset_ClearsEverything(t *testing.T) {
	store, _ := newTestStore()
	span := store.StartSpan("op", nil, nil)
	store.FinishSpan(span.SpanID, StatusSuccess, "", nil)

	store.Reset()
	if store.TraceCount() != 0 || store.ActiveSpanCount() != 0 {
		t.Error("Reset must clear traces and active spans")
	}
	if len(store.ServiceDependencies()) != 0 {
		t.Error("Reset must clear dependency stats")
	}
}

func TestConcurrentSpans(t *testing.T) {
	store := NewStore(Config{})
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			for i := 0; i < 50; i++ {
				span := store.StartSpan(fmt.Sprintf("op%d", i%3), nil, nil)
				store.FinishSpan(span.SpanID, StatusSuccess, "", nil)
			}
			done <- struct{}{}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
	if store.ActiveSpanCount() != 0 {
		t.Errorf("active spans = %d, want 0", store.ActiveSpanCount())
	}
	if store.TraceCount() != 400 {
		t.Errorf("trace count = %d, want 400", store.TraceCount())
	}
}
