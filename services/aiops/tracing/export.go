// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracing

import (
	"errors"
	"fmt"
)

// =============================================================================
// Exporters
// =============================================================================

// ErrUnknownFormat indicates an unsupported export format. This is a
// dispatch-time configuration error and is allowed to surface.
var ErrUnknownFormat = errors.New("unknown trace export format")

// Export format names.
const (
	FormatOpenTelemetry = "opentelemetry"
	FormatJaeger        = "jaeger"
	FormatZipkin        = "zipkin"
)

// Export translates the retained span set into the named wire format.
//
// Description:
//
//	Pure format translation: every exporter reads the same span set and no
//	core semantics differ by format. Span timestamps and durations are
//	rescaled from the internal representation to microseconds for all
//	three formats, per their conventions.
//
// Outputs:
//
//	any - The format-shaped document, ready for JSON serialization.
//	error - ErrUnknownFormat for unsupported formats.
func (s *Store) Export(format string) (any, error) {
	s.mu.RLock()
	traces := make([]Trace, 0, len(s.traceOrder))
	for _, traceID := range s.traceOrder {
		traces = append(traces, Trace{TraceID: traceID, Spans: copySpans(s.traces[traceID])})
	}
	s.mu.RUnlock()

	switch format {
	case FormatOpenTelemetry:
		return exportOpenTelemetry(traces), nil
	case FormatJaeger:
		return exportJaeger(traces), nil
	case FormatZipkin:
		return exportZipkin(traces), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// -----------------------------------------------------------------------------
// OpenTelemetry
// -----------------------------------------------------------------------------

// OTelDocument is a simplified OTLP-shaped trace document.
type OTelDocument struct {
	ResourceSpans []OTelResourceSpans `json:"resourceSpans"`
}

type OTelResourceSpans struct {
	ScopeSpans []OTelScopeSpans `json:"scopeSpans"`
}

type OTelScopeSpans struct {
	Spans []OTelSpan `json:"spans"`
}

type OTelSpan struct {
	TraceID           string          `json:"traceId"`
	SpanID            string          `json:"spanId"`
	ParentSpanID      string          `json:"parentSpanId,omitempty"`
	Name              string          `json:"name"`
	StartTimeUnixMicro int64          `json:"startTimeUnixMicro"`
	EndTimeUnixMicro   int64          `json:"endTimeUnixMicro,omitempty"`
	Attributes        []OTelAttribute `json:"attributes,omitempty"`
	Status            string          `json:"status"`
}

type OTelAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func exportOpenTelemetry(traces []Trace) OTelDocument {
	scope := OTelScopeSpans{Spans: make([]OTelSpan, 0)}
	for _, trace := range traces {
		for _, span := range trace.Spans {
			out := OTelSpan{
				TraceID:            span.TraceID,
				SpanID:             span.SpanID,
				ParentSpanID:       span.ParentSpanID,
				Name:               span.Operation,
				StartTimeUnixMicro: span.StartTime.UnixMicro(),
				Status:             string(span.Status),
			}
			if span.EndTime != nil {
				out.EndTimeUnixMicro = span.EndTime.UnixMicro()
			}
			for k, v := range span.Tags {
				out.Attributes = append(out.Attributes, OTelAttribute{Key: k, Value: v})
			}
			scope.Spans = append(scope.Spans, out)
		}
	}
	return OTelDocument{
		ResourceSpans: []OTelResourceSpans{{ScopeSpans: []OTelScopeSpans{scope}}},
	}
}

// -----------------------------------------------------------------------------
// Jaeger
// -----------------------------------------------------------------------------

// JaegerDocument mirrors the Jaeger UI JSON layout.
type JaegerDocument struct {
	Data []JaegerTrace `json:"data"`
}

type JaegerTrace struct {
	TraceID string       `json:"traceID"`
	Spans   []JaegerSpan `json:"spans"`
}

type JaegerSpan struct {
	TraceID       string      `json:"traceID"`
	SpanID        string      `json:"spanID"`
	OperationName string      `json:"operationName"`
	References    []JaegerRef `json:"references,omitempty"`
	StartTime     int64       `json:"startTime"` // microseconds
	Duration      int64       `json:"duration"`  // microseconds
	Tags          []JaegerTag `json:"tags,omitempty"`
}

type JaegerRef struct {
	RefType string `json:"refType"`
	TraceID string `json:"traceID"`
	SpanID  string `json:"spanID"`
}

type JaegerTag struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

func exportJaeger(traces []Trace) JaegerDocument {
	doc := JaegerDocument{Data: make([]JaegerTrace, 0, len(traces))}
	for _, trace := range traces {
		jt := JaegerTrace{TraceID: trace.TraceID, Spans: make([]JaegerSpan, 0, len(trace.Spans))}
		for _, span := range trace.Spans {
			js := JaegerSpan{
				TraceID:       span.TraceID,
				SpanID:        span.SpanID,
				OperationName: span.Operation,
				StartTime:     span.StartTime.UnixMicro(),
				Duration:      span.Duration.Microseconds(),
			}
			if span.ParentSpanID != "" {
				js.References = []JaegerRef{{
					RefType: "CHILD_OF",
					TraceID: span.TraceID,
					SpanID:  span.ParentSpanID,
				}}
			}
			for k, v := range span.Tags {
				js.Tags = append(js.Tags, JaegerTag{Key: k, Type: "string", Value: v})
			}
			jt.Spans = append(jt.Spans, js)
		}
		doc.Data = append(doc.Data, jt)
	}
	return doc
}

// -----------------------------------------------------------------------------
// Zipkin
// -----------------------------------------------------------------------------

// ZipkinSpan mirrors the Zipkin v2 span JSON layout. A Zipkin export is a
// flat span array.
type ZipkinSpan struct {
	TraceID   string            `json:"traceId"`
	ID        string            `json:"id"`
	ParentID  string            `json:"parentId,omitempty"`
	Name      string            `json:"name"`
	Timestamp int64             `json:"timestamp"` // microseconds
	Duration  int64             `json:"duration"`  // microseconds
	Tags      map[string]string `json:"tags,omitempty"`
}

func exportZipkin(traces []Trace) []ZipkinSpan {
	out := make([]ZipkinSpan, 0)
	for _, trace := range traces {
		for _, span := range trace.Spans {
			out = append(out, ZipkinSpan{
				TraceID:   span.TraceID,
				ID:        span.SpanID,
				ParentID:  span.ParentSpanID,
				Name:      span.Operation,
				Timestamp: span.StartTime.UnixMicro(),
				Duration:  span.Duration.Microseconds(),
				Tags:      copyTags(span.Tags),
			})
		}
	}
	return out
}
