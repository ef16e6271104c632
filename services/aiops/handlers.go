// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aiops

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verdanthealth/verdant-core/services/aiops/cost"
	"github.com/verdanthealth/verdant-core/services/aiops/metrics"
	"github.com/verdanthealth/verdant-core/services/aiops/security"
	"github.com/verdanthealth/verdant-core/services/aiops/stream"
	"github.com/verdanthealth/verdant-core/services/aiops/synthetic"
	"github.com/verdanthealth/verdant-core/services/aiops/tracing"
)

// Handlers contains the HTTP handlers for the AI operations service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// getOrCreateRequestID returns the X-Request-ID header, minting one when
// the caller did not send it. The ID is echoed on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// parseKind maps a request token to a metric kind. Empty defaults to gauge.
func parseKind(token string) (metrics.Kind, bool) {
	switch token {
	case "":
		return metrics.KindGauge, true
	case "counter", "gauge", "histogram", "summary":
		return metrics.Kind(token), true
	default:
		return "", false
	}
}

// parseAggregateFn maps a request token to an aggregation function. Empty
// defaults to avg.
func parseAggregateFn(token string) (metrics.AggregateFn, bool) {
	switch token {
	case "":
		return metrics.AggAvg, true
	case "avg", "sum", "min", "max", "count", "p50", "p95", "p99":
		return metrics.AggregateFn(token), true
	default:
		return "", false
	}
}

// =============================================================================
// Metrics Handlers
// =============================================================================

// HandleRecordMetric handles POST /v1/aiops/metrics.
//
// Description:
//
//	Records one metric observation. Samples are held in a bounded
//	in-memory window per metric name; alert rules and SLOs evaluate
//	against the same window.
//
// Request Body:
//
//	RecordMetricRequest
//
// Response:
//
//	200 OK: StatusResponse
//	400 Bad Request: Validation error
func (h *Handlers) HandleRecordMetric(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRecordMetric")

	var req RecordMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	kind, ok := parseKind(req.Kind)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown metric kind: " + req.Kind,
			Code:  "INVALID_KIND",
		})
		return
	}

	h.svc.Metrics.Record(req.Name, req.Value, req.Tags, kind)
	c.JSON(http.StatusOK, StatusResponse{Status: "recorded"})
}

// HandleListMetrics handles GET /v1/aiops/metrics.
func (h *Handlers) HandleListMetrics(c *gin.Context) {
	getOrCreateRequestID(c)
	names := h.svc.Metrics.Names()
	c.JSON(http.StatusOK, gin.H{"metrics": names, "count": len(names)})
}

// HandleGetMetric handles GET /v1/aiops/metrics/:name.
//
// The optional fn and window_seconds query parameters request a windowed
// aggregate alongside the current value.
func (h *Handlers) HandleGetMetric(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetMetric")

	name := c.Param("name")
	current, ok := h.svc.Metrics.CurrentValue(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown metric: " + name,
			Code:  "NOT_FOUND",
		})
		return
	}

	resp := MetricResponse{Name: name, Current: current}

	if fnToken := c.Query("fn"); fnToken != "" || c.Query("window_seconds") != "" {
		fn, ok := parseAggregateFn(fnToken)
		if !ok {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Unknown aggregation function: " + fnToken,
				Code:  "INVALID_FN",
			})
			return
		}
		windowSeconds, err := strconv.Atoi(c.DefaultQuery("window_seconds", "300"))
		if err != nil || windowSeconds <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "window_seconds must be a positive integer",
				Code:  "INVALID_REQUEST",
			})
			return
		}
		window := time.Duration(windowSeconds) * time.Second
		resp.Aggregate = &AggregateResult{
			Fn:            string(fn),
			WindowSeconds: windowSeconds,
			Value:         h.svc.Metrics.Aggregate(name, fn, window),
		}
	}

	logger.Debug("Metric read", "metric", name)
	c.JSON(http.StatusOK, resp)
}

// HandleRegisterSLO handles POST /v1/aiops/slos.
func (h *Handlers) HandleRegisterSLO(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRegisterSLO")

	var req RegisterSLORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	fn, ok := parseAggregateFn(req.Fn)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown aggregation function: " + req.Fn,
			Code:  "INVALID_FN",
		})
		return
	}

	h.svc.Metrics.RegisterSLO(metrics.SLO{
		Name:   req.Name,
		Metric: req.Metric,
		Fn:     fn,
		Target: req.Target,
		Window: time.Duration(req.WindowSeconds) * time.Second,
	})

	logger.Info("SLO registered", "slo", req.Name, "metric", req.Metric, "target", req.Target)
	c.JSON(http.StatusOK, StatusResponse{Status: "registered"})
}

// HandleListSLOs handles GET /v1/aiops/slos.
func (h *Handlers) HandleListSLOs(c *gin.Context) {
	getOrCreateRequestID(c)
	statuses := h.svc.Metrics.AllSLOStatuses()
	c.JSON(http.StatusOK, gin.H{"slos": statuses, "count": len(statuses)})
}

// HandleGetSLO handles GET /v1/aiops/slos/:name.
func (h *Handlers) HandleGetSLO(c *gin.Context) {
	getOrCreateRequestID(c)

	name := c.Param("name")
	status, ok := h.svc.Metrics.CheckSLO(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown SLO: " + name,
			Code:  "NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

// HandleAddAlertRule handles POST /v1/aiops/alert-rules.
func (h *Handlers) HandleAddAlertRule(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAddAlertRule")

	var req AddAlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	op, ok := metrics.ParseOp(req.Op)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown comparison operator: " + req.Op,
			Code:  "INVALID_OP",
		})
		return
	}
	fn, ok := parseAggregateFn(req.Fn)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown aggregation function: " + req.Fn,
			Code:  "INVALID_FN",
		})
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	h.svc.Metrics.AddAlertRule(metrics.AlertRule{
		ID:   id,
		Name: req.Name,
		Condition: metrics.Condition{
			Metric:    req.Metric,
			Fn:        fn,
			Window:    time.Duration(req.WindowSeconds) * time.Second,
			Op:        op,
			Threshold: req.Threshold,
		},
		Cooldown: time.Duration(req.CooldownSeconds) * time.Second,
	})

	logger.Info("Alert rule added", "rule_id", id, "metric", req.Metric)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": "added"})
}

// HandleAlertRuleHistory handles GET /v1/aiops/alert-rules/:id/history.
func (h *Handlers) HandleAlertRuleHistory(c *gin.Context) {
	getOrCreateRequestID(c)

	id := c.Param("id")
	history, ok := h.svc.Metrics.RuleHistory(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown alert rule: " + id,
			Code:  "NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rule_id": id, "history": history, "count": len(history)})
}

// =============================================================================
// Tracing Handlers
// =============================================================================

// HandleStartSpan handles POST /v1/aiops/traces/spans.
//
// Description:
//
//	Starts a span. When the request carries trace_id and parent_span_id
//	the span joins the existing trace as a child; otherwise a new trace
//	is started.
//
// Request Body:
//
//	StartSpanRequest
//
// Response:
//
//	200 OK: tracing.Span
//	400 Bad Request: Validation error
func (h *Handlers) HandleStartSpan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStartSpan")

	var req StartSpanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	var parent *tracing.SpanContext
	if req.TraceID != "" && req.ParentSpanID != "" {
		parent = &tracing.SpanContext{TraceID: req.TraceID, SpanID: req.ParentSpanID}
	}

	span := h.svc.Tracing.StartSpan(req.Operation, parent, req.Tags)
	c.JSON(http.StatusOK, span)
}

// HandleFinishSpan handles POST /v1/aiops/traces/spans/:id/finish.
func (h *Handlers) HandleFinishSpan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleFinishSpan")

	var req FinishSpanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	status := tracing.StatusSuccess
	switch req.Status {
	case "", "success":
	case "error":
		status = tracing.StatusError
	case "timeout":
		status = tracing.StatusTimeout
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown span status: " + req.Status,
			Code:  "INVALID_STATUS",
		})
		return
	}

	h.svc.Tracing.FinishSpan(c.Param("id"), status, req.Error, req.Tags)
	c.JSON(http.StatusOK, StatusResponse{Status: "finished"})
}

// HandleGetTrace handles GET /v1/aiops/traces/:id.
func (h *Handlers) HandleGetTrace(c *gin.Context) {
	getOrCreateRequestID(c)

	id := c.Param("id")
	trace, ok := h.svc.Tracing.GetTrace(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown trace: " + id,
			Code:  "NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, trace)
}

// HandleSearchTraces handles POST /v1/aiops/traces/search.
func (h *Handlers) HandleSearchTraces(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSearchTraces")

	var req SearchTracesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	traces := h.svc.Tracing.SearchTraces(tracing.SearchCriteria{
		Operation:   req.Operation,
		Service:     req.Service,
		MinDuration: time.Duration(req.MinDurationMs) * time.Millisecond,
		MaxDuration: time.Duration(req.MaxDurationMs) * time.Millisecond,
		Status:      tracing.SpanStatus(req.Status),
		TagKey:      req.TagKey,
		TagValue:    req.TagValue,
		StartAfter:  req.StartAfter,
		StartBefore: req.StartBefore,
	})
	c.JSON(http.StatusOK, SearchTracesResponse{Traces: traces, Count: len(traces)})
}

// HandleExportTraces handles GET /v1/aiops/traces/export/:format.
//
// Supported formats: opentelemetry, jaeger, zipkin.
func (h *Handlers) HandleExportTraces(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExportTraces")

	format := c.Param("format")
	doc, err := h.svc.Tracing.Export(format)
	if err != nil {
		if errors.Is(err, tracing.ErrUnknownFormat) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "UNKNOWN_FORMAT",
			})
			return
		}
		logger.Error("Trace export failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "EXPORT_FAILED",
		})
		return
	}

	logger.Info("Traces exported", "format", format)
	c.JSON(http.StatusOK, doc)
}

// HandleTraceDependencies handles GET /v1/aiops/traces/dependencies.
func (h *Handlers) HandleTraceDependencies(c *gin.Context) {
	getOrCreateRequestID(c)
	deps := h.svc.Tracing.ServiceDependencies()
	c.JSON(http.StatusOK, gin.H{"dependencies": deps, "count": len(deps)})
}

// =============================================================================
// Security Handlers
// =============================================================================

// HandleRecordSecurityEvent handles POST /v1/aiops/security/events.
//
// Description:
//
//	Records a security event and evaluates the anomaly rules against the
//	updated activity windows. Anomalies synthesized by the rules are
//	recorded alongside the triggering event and published on the stream.
//
// Request Body:
//
//	RecordSecurityEventRequest
//
// Response:
//
//	200 OK: security.Event
//	400 Bad Request: Validation error
func (h *Handlers) HandleRecordSecurityEvent(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRecordSecurityEvent")

	var req RecordSecurityEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	severity := security.Severity(req.Severity)
	switch severity {
	case "":
		severity = security.SeverityLow
	case security.SeverityLow, security.SeverityMedium, security.SeverityHigh, security.SeverityCritical:
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown severity: " + req.Severity,
			Code:  "INVALID_SEVERITY",
		})
		return
	}

	event := h.svc.Security.Record(security.RecordInput{
		Type:        security.EventType(req.Type),
		Severity:    severity,
		IPAddress:   req.IPAddress,
		Description: req.Description,
		Metadata:    req.Metadata,
		UserID:      req.UserID,
		UserAgent:   req.UserAgent,
		Endpoint:    req.Endpoint,
	})

	logger.Info("Security event recorded",
		"event_id", event.ID,
		"type", event.Type,
		"severity", event.Severity)
	c.JSON(http.StatusOK, event)
}

// HandleListSecurityEvents handles GET /v1/aiops/security/events.
func (h *Handlers) HandleListSecurityEvents(c *gin.Context) {
	getOrCreateRequestID(c)
	events := h.svc.Security.Events()
	c.JSON(http.StatusOK, SecurityEventsResponse{Events: events, Count: len(events)})
}

// HandleGetSecurityEvent handles GET /v1/aiops/security/events/:id.
func (h *Handlers) HandleGetSecurityEvent(c *gin.Context) {
	getOrCreateRequestID(c)

	id := c.Param("id")
	event, ok := h.svc.Security.GetEvent(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown security event: " + id,
			Code:  "NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, event)
}

// HandleUpdateSecurityEventStatus handles PUT /v1/aiops/security/events/:id/status.
func (h *Handlers) HandleUpdateSecurityEventStatus(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateSecurityEventStatus")

	var req UpdateEventStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	status := security.EventStatus(req.Status)
	switch status {
	case security.StatusOpen, security.StatusInvestigating,
		security.StatusResolved, security.StatusFalsePositive:
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown event status: " + req.Status,
			Code:  "INVALID_STATUS",
		})
		return
	}

	id := c.Param("id")
	if !h.svc.Security.UpdateEventStatus(id, status) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown security event: " + id,
			Code:  "NOT_FOUND",
		})
		return
	}

	logger.Info("Security event status updated", "event_id", id, "status", status)
	c.JSON(http.StatusOK, StatusResponse{Status: "updated"})
}

// HandleSecurityDashboard handles GET /v1/aiops/security/dashboard.
func (h *Handlers) HandleSecurityDashboard(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, h.svc.Security.GetDashboard())
}

// =============================================================================
// Synthetic Test Handlers
// =============================================================================

// HandleCreateSyntheticTest handles POST /v1/aiops/synthetic/tests.
func (h *Handlers) HandleCreateSyntheticTest(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateSyntheticTest")

	var req CreateSyntheticTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	test, err := h.svc.Synthetic.AddTest(synthetic.Test{
		Name:    req.Name,
		Type:    synthetic.TestType(req.Type),
		Enabled: enabled,
		Tags:    req.Tags,
		Interval: time.Duration(req.IntervalSeconds) * time.Second,
		Config: synthetic.ProbeConfig{
			URL:                  req.URL,
			Method:               req.Method,
			Headers:              req.Headers,
			Body:                 req.Body,
			Driver:               req.Driver,
			DSN:                  req.DSN,
			ExpectedStatus:       req.ExpectedStatus,
			ExpectedResponseTime: time.Duration(req.ExpectedResponseTimeMs) * time.Millisecond,
			Timeout:              time.Duration(req.TimeoutSeconds) * time.Second,
		},
	})
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "CREATE_FAILED"
		if errors.Is(err, synthetic.ErrUnknownTestType) {
			statusCode = http.StatusBadRequest
			errCode = "UNKNOWN_TEST_TYPE"
		}
		logger.Error("Synthetic test creation failed", "error", err)
		c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	logger.Info("Synthetic test created", "test_id", test.ID, "type", test.Type)
	c.JSON(http.StatusOK, test)
}

// HandleListSyntheticTests handles GET /v1/aiops/synthetic/tests.
func (h *Handlers) HandleListSyntheticTests(c *gin.Context) {
	getOrCreateRequestID(c)
	tests := h.svc.Synthetic.Tests()
	c.JSON(http.StatusOK, gin.H{"tests": tests, "count": len(tests)})
}

// HandleGetSyntheticTest handles GET /v1/aiops/synthetic/tests/:id.
func (h *Handlers) HandleGetSyntheticTest(c *gin.Context) {
	getOrCreateRequestID(c)

	id := c.Param("id")
	test, ok := h.svc.Synthetic.GetTest(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown synthetic test: " + id,
			Code:  "NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, test)
}

// HandleToggleSyntheticTest handles POST /v1/aiops/synthetic/tests/:id/toggle.
func (h *Handlers) HandleToggleSyntheticTest(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleToggleSyntheticTest")

	var req ToggleSyntheticTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	id := c.Param("id")
	if !h.svc.Synthetic.Toggle(id, req.Enabled) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown synthetic test: " + id,
			Code:  "NOT_FOUND",
		})
		return
	}

	logger.Info("Synthetic test toggled", "test_id", id, "enabled", req.Enabled)
	c.JSON(http.StatusOK, StatusResponse{Status: "toggled"})
}

// HandleRunSyntheticTest handles POST /v1/aiops/synthetic/tests/:id/run.
func (h *Handlers) HandleRunSyntheticTest(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRunSyntheticTest")

	id := c.Param("id")
	result, ok := h.svc.Synthetic.RunTest(c.Request.Context(), id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown synthetic test: " + id,
			Code:  "NOT_FOUND",
		})
		return
	}

	logger.Info("Synthetic test run", "test_id", id, "success", result.Success)
	c.JSON(http.StatusOK, result)
}

// HandleRunAllSyntheticTests handles POST /v1/aiops/synthetic/run.
func (h *Handlers) HandleRunAllSyntheticTests(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRunAllSyntheticTests")

	results := h.svc.Synthetic.RunAll(c.Request.Context())
	logger.Info("Synthetic tests run", "count", len(results))
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// HandleSyntheticResults handles GET /v1/aiops/synthetic/tests/:id/results.
func (h *Handlers) HandleSyntheticResults(c *gin.Context) {
	getOrCreateRequestID(c)

	id := c.Param("id")
	if _, ok := h.svc.Synthetic.GetTest(id); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Unknown synthetic test: " + id,
			Code:  "NOT_FOUND",
		})
		return
	}
	results := h.svc.Synthetic.Results(id)
	c.JSON(http.StatusOK, SyntheticResultsResponse{Results: results, Count: len(results)})
}

// HandleSyntheticDashboard handles GET /v1/aiops/synthetic/dashboard.
func (h *Handlers) HandleSyntheticDashboard(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, h.svc.Synthetic.GetDashboard())
}

// =============================================================================
// Cost & Routing Handlers
// =============================================================================

// HandleRecordUsage handles POST /v1/aiops/cost/usage.
//
// Description:
//
//	Records one provider API call's token usage and cost. The record
//	flows through spike detection, quota checks, and budget accounting,
//	and is archived when persistent storage is configured.
//
// Request Body:
//
//	RecordUsageRequest
//
// Response:
//
//	200 OK: cost.UsageRecord
//	400 Bad Request: Validation error
func (h *Handlers) HandleRecordUsage(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRecordUsage")

	var req RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	rec := h.svc.RecordUsage(c.Request.Context(), cost.UsageRecord{
		Provider:         req.Provider,
		Model:            req.Model,
		PromptTokens:     req.PromptTokens,
		CompletionTokens: req.CompletionTokens,
		TotalTokens:      req.TotalTokens,
		Cost:             req.Cost,
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		Operation:        req.Operation,
	})

	logger.Debug("Usage recorded",
		"provider", rec.Provider,
		"model", rec.Model,
		"cost", rec.Cost)
	c.JSON(http.StatusOK, rec)
}

// HandleCostDashboard handles GET /v1/aiops/cost/dashboard.
func (h *Handlers) HandleCostDashboard(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, h.svc.Ledger.GetDashboard())
}

// HandleCostAlerts handles GET /v1/aiops/cost/alerts.
func (h *Handlers) HandleCostAlerts(c *gin.Context) {
	getOrCreateRequestID(c)
	alerts := h.svc.Ledger.Alerts()
	c.JSON(http.StatusOK, CostAlertsResponse{Alerts: alerts, Count: len(alerts)})
}

// HandleSetBudget handles POST /v1/aiops/cost/budgets.
func (h *Handlers) HandleSetBudget(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSetBudget")

	var req SetBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	period := cost.BudgetPeriod(req.Period)
	switch period {
	case "", cost.PeriodDaily, cost.PeriodWeekly, cost.PeriodMonthly:
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown budget period: " + req.Period,
			Code:  "INVALID_PERIOD",
		})
		return
	}

	h.svc.Ledger.SetBudget(cost.Budget{
		Name:           req.Name,
		Period:         period,
		Limit:          req.Limit,
		Provider:       req.Provider,
		AlertThreshold: req.AlertThreshold,
	})

	logger.Info("Budget set", "budget", req.Name, "limit", req.Limit, "period", period)
	c.JSON(http.StatusOK, StatusResponse{Status: "set"})
}

// HandleListBudgets handles GET /v1/aiops/cost/budgets.
func (h *Handlers) HandleListBudgets(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, BudgetsResponse{Budgets: h.svc.Ledger.Budgets()})
}

// HandleSelectProvider handles POST /v1/aiops/cost/select.
//
// Description:
//
//	Scores the routing policy's options for the requested tier and
//	returns the winner with its estimated cost and reasoning. Always
//	returns a selection; unknown tiers fall back to the policy default.
//
// Request Body:
//
//	SelectProviderRequest
//
// Response:
//
//	200 OK: cost.Selection
//	400 Bad Request: Validation error
func (h *Handlers) HandleSelectProvider(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSelectProvider")

	var req SelectProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	selection := h.svc.Selector.Select(req.Tier, req.EstimatedTokens, req.UserBudget)
	logger.Info("Provider selected",
		"tier", req.Tier,
		"provider", selection.Provider,
		"model", selection.Model)
	c.JSON(http.StatusOK, selection)
}

// =============================================================================
// Resilience Handlers
// =============================================================================

// HandleBreakerStatuses handles GET /v1/aiops/resilience/breakers.
func (h *Handlers) HandleBreakerStatuses(c *gin.Context) {
	getOrCreateRequestID(c)
	statuses := h.svc.Breakers.Statuses()
	c.JSON(http.StatusOK, gin.H{"breakers": statuses, "count": len(statuses)})
}

// HandleDegradationLevels handles GET /v1/aiops/resilience/degradation.
func (h *Handlers) HandleDegradationLevels(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, gin.H{"levels": h.svc.Degrader.Levels()})
}

// =============================================================================
// Operational Handlers
// =============================================================================

// HandleHealth handles GET /v1/aiops/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		Version:       ServiceVersion,
		UptimeSeconds: h.svc.Uptime().Seconds(),
	})
}

// HandleReady handles GET /v1/aiops/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, ReadyResponse{
		Ready:          true,
		ActiveSpans:    h.svc.Tracing.ActiveSpanCount(),
		SyntheticTests: len(h.svc.Synthetic.Tests()),
		StreamClients:  h.svc.Hub.ClientCount(),
	})
}

// HandleReset handles POST /v1/aiops/admin/reset.
//
// Clears every in-memory store. Intended for test fixtures and staging
// environments, not production traffic.
func (h *Handlers) HandleReset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleReset")

	h.svc.Reset()
	logger.Warn("All stores reset")
	c.JSON(http.StatusOK, StatusResponse{Status: "reset"})
}

// HandleStream handles GET /v1/aiops/stream.
//
// Upgrades the connection to a websocket and subscribes it to live
// security event and cost alert notifications.
func (h *Handlers) HandleStream(c *gin.Context) {
	stream.Handler(h.svc.Hub, h.svc.logger)(c)
}
