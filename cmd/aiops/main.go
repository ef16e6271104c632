// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command aiops starts the Verdant AI operations server.
//
// The server owns the observability and cost-control plane for the AI
// routing stack:
//   - Metrics with SLOs and threshold alerting
//   - Distributed trace collection and export
//   - Security event logging with anomaly detection
//   - Scheduled synthetic probes
//   - Provider cost ledger, budgets, and cost-aware model selection
//   - Circuit breaker and degradation status
//
// Usage:
//
//	go run ./cmd/aiops
//	go run ./cmd/aiops -config config/aiops.yaml
//	go run ./cmd/aiops -listen :9090 -debug
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8090/v1/aiops/health
//
//	# Record a metric
//	curl -X POST http://localhost:8090/v1/aiops/metrics \
//	  -H "Content-Type: application/json" \
//	  -d '{"name": "api_latency_ms", "value": 42.5, "kind": "histogram"}'
//
//	# Pick a provider for a routing tier
//	curl -X POST http://localhost:8090/v1/aiops/cost/select \
//	  -H "Content-Type: application/json" \
//	  -d '{"tier": "level1", "estimated_tokens": 1200}'
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/verdanthealth/verdant-core/pkg/logging"
	"github.com/verdanthealth/verdant-core/services/aiops"
	"github.com/verdanthealth/verdant-core/services/aiops/config"
	badgerstore "github.com/verdanthealth/verdant-core/services/aiops/storage/badger"
	"github.com/verdanthealth/verdant-core/services/aiops/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	listenAddr := flag.String("listen", "", "Listen address override (e.g. :9090)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logging is not configured yet; write directly.
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "aiops",
		JSON:    cfg.Logging.JSON,
	})
	defer logger.Close()
	slogger := logger.Slog()

	// Set Gin mode
	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry is optional; the server runs without it.
	if cfg.Telemetry.Enabled {
		telCfg := telemetry.DefaultConfig()
		if cfg.Telemetry.OTLPEndpoint != "" {
			telCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
		}
		if cfg.Telemetry.Stdout {
			telCfg.TraceExporter = "stdout"
			telCfg.MetricExporter = "stdout"
		}
		shutdown, err := telemetry.Init(ctx, telCfg)
		if err != nil {
			slogger.Error("Failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slogger.Warn("Telemetry shutdown failed", "error", err)
			}
		}()
	}

	// Open the embedded archive when a storage path is configured.
	var archive *badgerstore.Archive
	if cfg.Storage.Path != "" {
		dbCfg := badgerstore.DefaultConfig()
		dbCfg.Path = cfg.Storage.Path
		dbCfg.SyncWrites = cfg.Storage.SyncWrites
		dbCfg.Logger = slogger
		db, err := badgerstore.Open(dbCfg)
		if err != nil {
			slogger.Error("Failed to open storage", "path", cfg.Storage.Path, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		archive = badgerstore.NewArchive(db, slogger)
	}

	svc, err := aiops.NewService(aiops.ServiceConfig{
		Config:  cfg,
		Logger:  slogger,
		Archive: archive,
	})
	if err != nil {
		slogger.Error("Failed to start service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	router := gin.New()
	router.Use(gin.Recovery())
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	aiops.RegisterRoutes(v1, aiops.NewHandlers(svc))

	if handler := telemetry.MetricsHandler(); handler != nil {
		router.GET("/metrics", gin.WrapH(handler))
	}

	// Hot reload applies only the settings that are safe to change at
	// runtime. Address and storage changes need a restart.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, slogger, func(next config.Config) {
			slogger.Info("Configuration reloaded",
				"listen_addr_changed", next.Server.ListenAddr != cfg.Server.ListenAddr)
			svc.ApplyConfig(next)
		})
		if err != nil {
			slogger.Warn("Config watcher unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
	}

	go func() {
		slogger.Info("Starting aiops server", "address", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slogger.Info("Shutting down aiops server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slogger.Error("Graceful shutdown failed", "error", err)
	}
}
