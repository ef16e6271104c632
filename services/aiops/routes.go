// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aiops

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all AI operations routes with the router.
//
// Description:
//
//	Registers all /v1/aiops/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Metrics Endpoints:
//
//	POST /v1/aiops/metrics - Record a metric observation
//	GET  /v1/aiops/metrics - List metric names
//	GET  /v1/aiops/metrics/:name - Current value and optional aggregate
//	POST /v1/aiops/slos - Register an SLO
//	GET  /v1/aiops/slos - Evaluate all SLOs
//	GET  /v1/aiops/slos/:name - Evaluate one SLO
//	POST /v1/aiops/alert-rules - Add an alert rule
//	GET  /v1/aiops/alert-rules/:id/history - Rule firing history
//
// Tracing Endpoints:
//
//	POST /v1/aiops/traces/spans - Start a span
//	POST /v1/aiops/traces/spans/:id/finish - Finish a span
//	GET  /v1/aiops/traces/:id - Get a trace by ID
//	POST /v1/aiops/traces/search - Search traces by criteria
//	GET  /v1/aiops/traces/export/:format - Export all traces
//	GET  /v1/aiops/traces/dependencies - Service dependency stats
//
// Security Endpoints:
//
//	POST /v1/aiops/security/events - Record a security event
//	GET  /v1/aiops/security/events - List security events
//	GET  /v1/aiops/security/events/:id - Get an event by ID
//	PUT  /v1/aiops/security/events/:id/status - Update triage status
//	GET  /v1/aiops/security/dashboard - Security dashboard
//
// Synthetic Test Endpoints:
//
//	POST /v1/aiops/synthetic/tests - Create a synthetic test
//	GET  /v1/aiops/synthetic/tests - List synthetic tests
//	GET  /v1/aiops/synthetic/tests/:id - Get a test by ID
//	POST /v1/aiops/synthetic/tests/:id/toggle - Enable or disable a test
//	POST /v1/aiops/synthetic/tests/:id/run - Run a test immediately
//	GET  /v1/aiops/synthetic/tests/:id/results - Recent results
//	POST /v1/aiops/synthetic/run - Run all enabled tests
//	GET  /v1/aiops/synthetic/dashboard - Synthetic test dashboard
//
// Cost & Routing Endpoints:
//
//	POST /v1/aiops/cost/usage - Record provider usage
//	GET  /v1/aiops/cost/dashboard - Spend dashboard
//	GET  /v1/aiops/cost/alerts - Cost alert history
//	POST /v1/aiops/cost/budgets - Set a budget
//	GET  /v1/aiops/cost/budgets - Budget statuses
//	POST /v1/aiops/cost/select - Select a provider for a tier
//
// Resilience Endpoints:
//
//	GET  /v1/aiops/resilience/breakers - Circuit breaker statuses
//	GET  /v1/aiops/resilience/degradation - Degradation levels
//
// Operational Endpoints:
//
//	GET  /v1/aiops/health - Service health
//	GET  /v1/aiops/ready - Readiness with live counters
//	GET  /v1/aiops/stream - Websocket notification stream
//	POST /v1/aiops/admin/reset - Clear all stores
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	aiops := rg.Group("/aiops")

	aiops.POST("/metrics", handlers.HandleRecordMetric)
	aiops.GET("/metrics", handlers.HandleListMetrics)
	aiops.GET("/metrics/:name", handlers.HandleGetMetric)
	aiops.POST("/slos", handlers.HandleRegisterSLO)
	aiops.GET("/slos", handlers.HandleListSLOs)
	aiops.GET("/slos/:name", handlers.HandleGetSLO)
	aiops.POST("/alert-rules", handlers.HandleAddAlertRule)
	aiops.GET("/alert-rules/:id/history", handlers.HandleAlertRuleHistory)

	aiops.POST("/traces/spans", handlers.HandleStartSpan)
	aiops.POST("/traces/spans/:id/finish", handlers.HandleFinishSpan)
	aiops.GET("/traces/:id", handlers.HandleGetTrace)
	aiops.POST("/traces/search", handlers.HandleSearchTraces)
	aiops.GET("/traces/export/:format", handlers.HandleExportTraces)
	aiops.GET("/traces/dependencies", handlers.HandleTraceDependencies)

	aiops.POST("/security/events", handlers.HandleRecordSecurityEvent)
	aiops.GET("/security/events", handlers.HandleListSecurityEvents)
	aiops.GET("/security/events/:id", handlers.HandleGetSecurityEvent)
	aiops.PUT("/security/events/:id/status", handlers.HandleUpdateSecurityEventStatus)
	aiops.GET("/security/dashboard", handlers.HandleSecurityDashboard)

	aiops.POST("/synthetic/tests", handlers.HandleCreateSyntheticTest)
	aiops.GET("/synthetic/tests", handlers.HandleListSyntheticTests)
	aiops.GET("/synthetic/tests/:id", handlers.HandleGetSyntheticTest)
	aiops.POST("/synthetic/tests/:id/toggle", handlers.HandleToggleSyntheticTest)
	aiops.POST("/synthetic/tests/:id/run", handlers.HandleRunSyntheticTest)
	aiops.GET("/synthetic/tests/:id/results", handlers.HandleSyntheticResults)
	aiops.POST("/synthetic/run", handlers.HandleRunAllSyntheticTests)
	aiops.GET("/synthetic/dashboard", handlers.HandleSyntheticDashboard)

	aiops.POST("/cost/usage", handlers.HandleRecordUsage)
	aiops.GET("/cost/dashboard", handlers.HandleCostDashboard)
	aiops.GET("/cost/alerts", handlers.HandleCostAlerts)
	aiops.POST("/cost/budgets", handlers.HandleSetBudget)
	aiops.GET("/cost/budgets", handlers.HandleListBudgets)
	aiops.POST("/cost/select", handlers.HandleSelectProvider)

	aiops.GET("/resilience/breakers", handlers.HandleBreakerStatuses)
	aiops.GET("/resilience/degradation", handlers.HandleDegradationLevels)

	aiops.GET("/health", handlers.HandleHealth)
	aiops.GET("/ready", handlers.HandleReady)
	aiops.GET("/stream", handlers.HandleStream)
	aiops.POST("/admin/reset", handlers.HandleReset)
}
