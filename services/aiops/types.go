// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aiops

import (
	"time"

	"github.com/verdanthealth/verdant-core/services/aiops/cost"
	"github.com/verdanthealth/verdant-core/services/aiops/metrics"
	"github.com/verdanthealth/verdant-core/services/aiops/security"
	"github.com/verdanthealth/verdant-core/services/aiops/synthetic"
	"github.com/verdanthealth/verdant-core/services/aiops/tracing"
)

// =============================================================================
// Shared Response Types
// =============================================================================

// ErrorResponse is the error response body for all endpoints.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}

// StatusResponse acknowledges an operation with no payload of its own.
type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the GET /health response body.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ReadyResponse is the GET /ready response body.
type ReadyResponse struct {
	Ready          bool `json:"ready"`
	ActiveSpans    int  `json:"active_spans"`
	SyntheticTests int  `json:"synthetic_tests"`
	StreamClients  int  `json:"stream_clients"`
}

// =============================================================================
// Metrics
// =============================================================================

// RecordMetricRequest is the POST /metrics request body.
type RecordMetricRequest struct {
	// Name is the metric name.
	Name string `json:"name" binding:"required"`

	// Value is the observation value.
	Value float64 `json:"value"`

	// Kind classifies the sample: counter, gauge, histogram, or summary.
	// Defaults to gauge.
	Kind string `json:"kind,omitempty"`

	// Tags are optional dimension labels.
	Tags map[string]string `json:"tags,omitempty"`
}

// MetricResponse is the GET /metrics/:name response body.
type MetricResponse struct {
	Name string `json:"name"`

	// Current is the most recent sample.
	Current metrics.Sample `json:"current"`

	// Aggregate is populated when the request carried fn/window_seconds
	// query parameters.
	Aggregate *AggregateResult `json:"aggregate,omitempty"`
}

// AggregateResult is one windowed reduction of a metric.
type AggregateResult struct {
	Fn            string  `json:"fn"`
	WindowSeconds int     `json:"window_seconds"`
	Value         float64 `json:"value"`
}

// RegisterSLORequest is the POST /slos request body.
type RegisterSLORequest struct {
	Name   string  `json:"name" binding:"required"`
	Metric string  `json:"metric" binding:"required"`
	Fn     string  `json:"fn,omitempty"`
	Target float64 `json:"target"`

	// WindowSeconds is the trailing evaluation window. Defaults to 300.
	WindowSeconds int `json:"window_seconds,omitempty"`
}

// AddAlertRuleRequest is the POST /alert-rules request body.
type AddAlertRuleRequest struct {
	// ID is minted when empty.
	ID   string `json:"id,omitempty"`
	Name string `json:"name" binding:"required"`

	Metric        string  `json:"metric" binding:"required"`
	Fn            string  `json:"fn,omitempty"`
	WindowSeconds int     `json:"window_seconds,omitempty"`
	Op            string  `json:"op" binding:"required"`
	Threshold     float64 `json:"threshold"`

	// CooldownSeconds suppresses repeat fires. Defaults to 300.
	CooldownSeconds int `json:"cooldown_seconds,omitempty"`
}

// =============================================================================
// Tracing
// =============================================================================

// StartSpanRequest is the POST /traces/spans request body.
type StartSpanRequest struct {
	Operation string `json:"operation" binding:"required"`

	// TraceID and ParentSpanID parent the new span when both are set. A
	// new trace is started when they are empty.
	TraceID      string `json:"trace_id,omitempty"`
	ParentSpanID string `json:"parent_span_id,omitempty"`

	Tags map[string]string `json:"tags,omitempty"`
}

// FinishSpanRequest is the POST /traces/spans/:id/finish request body.
type FinishSpanRequest struct {
	// Status is success, error, or timeout. Defaults to success.
	Status string `json:"status,omitempty"`

	// Error carries the failure message for non-success statuses.
	Error string `json:"error,omitempty"`

	// Tags are merged into the span's tags on finish.
	Tags map[string]string `json:"tags,omitempty"`
}

// SearchTracesRequest is the POST /traces/search request body. Zero-valued
// fields are not applied as filters.
type SearchTracesRequest struct {
	Operation     string    `json:"operation,omitempty"`
	Service       string    `json:"service,omitempty"`
	MinDurationMs int64     `json:"min_duration_ms,omitempty"`
	MaxDurationMs int64     `json:"max_duration_ms,omitempty"`
	Status        string    `json:"status,omitempty"`
	TagKey        string    `json:"tag_key,omitempty"`
	TagValue      string    `json:"tag_value,omitempty"`
	StartAfter    time.Time `json:"start_after,omitempty"`
	StartBefore   time.Time `json:"start_before,omitempty"`
}

// SearchTracesResponse is the POST /traces/search response body.
type SearchTracesResponse struct {
	Traces []tracing.Trace `json:"traces"`
	Count  int             `json:"count"`
}

// =============================================================================
// Security
// =============================================================================

// RecordSecurityEventRequest is the POST /security/events request body.
type RecordSecurityEventRequest struct {
	Type        string            `json:"type" binding:"required"`
	Severity    string            `json:"severity,omitempty"`
	IPAddress   string            `json:"ip_address" binding:"required"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
}

// UpdateEventStatusRequest is the PUT /security/events/:id/status request
// body.
type UpdateEventStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SecurityEventsResponse is the GET /security/events response body.
type SecurityEventsResponse struct {
	Events []security.Event `json:"events"`
	Count  int              `json:"count"`
}

// =============================================================================
// Synthetic Tests
// =============================================================================

// CreateSyntheticTestRequest is the POST /synthetic/tests request body.
type CreateSyntheticTestRequest struct {
	Name string `json:"name" binding:"required"`

	// Type is http, api, database, or external_service. Defaults to http.
	Type string `json:"type,omitempty"`

	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Driver  string            `json:"driver,omitempty"`
	DSN     string            `json:"dsn,omitempty"`

	ExpectedStatus         int `json:"expected_status,omitempty"`
	ExpectedResponseTimeMs int `json:"expected_response_time_ms,omitempty"`
	TimeoutSeconds         int `json:"timeout_seconds,omitempty"`
	IntervalSeconds        int `json:"interval_seconds,omitempty"`

	// Enabled defaults to true.
	Enabled *bool `json:"enabled,omitempty"`

	Tags []string `json:"tags,omitempty"`
}

// ToggleSyntheticTestRequest is the POST /synthetic/tests/:id/toggle
// request body.
type ToggleSyntheticTestRequest struct {
	Enabled bool `json:"enabled"`
}

// SyntheticResultsResponse is the GET /synthetic/tests/:id/results
// response body.
type SyntheticResultsResponse struct {
	Results []synthetic.Result `json:"results"`
	Count   int                `json:"count"`
}

// =============================================================================
// Cost & Routing
// =============================================================================

// RecordUsageRequest is the POST /cost/usage request body.
type RecordUsageRequest struct {
	Provider         string  `json:"provider" binding:"required"`
	Model            string  `json:"model" binding:"required"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	Cost             float64 `json:"cost"`
	UserID           string  `json:"user_id,omitempty"`
	SessionID        string  `json:"session_id,omitempty"`
	Operation        string  `json:"operation,omitempty"`
}

// SetBudgetRequest is the POST /cost/budgets request body.
type SetBudgetRequest struct {
	Name string `json:"name" binding:"required"`

	// Period is daily, weekly, or monthly. Defaults to monthly.
	Period string  `json:"period,omitempty"`
	Limit  float64 `json:"limit"`

	// Provider scopes the budget to one provider when set.
	Provider string `json:"provider,omitempty"`

	// AlertThreshold is the warning percentage. Defaults to 80.
	AlertThreshold float64 `json:"alert_threshold,omitempty"`
}

// SelectProviderRequest is the POST /cost/select request body.
type SelectProviderRequest struct {
	Tier            string  `json:"tier" binding:"required"`
	EstimatedTokens int     `json:"estimated_tokens,omitempty"`
	UserBudget      float64 `json:"user_budget,omitempty"`
}

// BudgetsResponse is the GET /cost/budgets response body.
type BudgetsResponse struct {
	Budgets []cost.BudgetStatus `json:"budgets"`
}

// CostAlertsResponse is the GET /cost/alerts response body.
type CostAlertsResponse struct {
	Alerts []cost.CostAlert `json:"alerts"`
	Count  int              `json:"count"`
}
