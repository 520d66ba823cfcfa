// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// mendd is the mend service daemon: it watches a project for defect
// reports, drives fix attempts through the pipeline, and serves the
// dashboard and detector HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/tidewater-ai/mend/pkg/logging"
	"github.com/tidewater-ai/mend/services/mend"
	"github.com/tidewater-ai/mend/services/mend/config"
	"github.com/tidewater-ai/mend/services/mend/events"
	"github.com/tidewater-ai/mend/services/mend/generator"
	"github.com/tidewater-ai/mend/services/mend/ledger"
	"github.com/tidewater-ai/mend/services/mend/pipeline"
	"github.com/tidewater-ai/mend/services/mend/registry"
	"github.com/tidewater-ai/mend/services/mend/routes"
	"github.com/tidewater-ai/mend/services/mend/safety"
	"github.com/tidewater-ai/mend/services/mend/telemetry"
	"github.com/tidewater-ai/mend/services/mend/threshold"
	"github.com/tidewater-ai/mend/services/mend/verify"
	"github.com/tidewater-ai/mend/services/mend/watcher"
)

const serviceName = "mendd"

func main() {
	configPath := flag.String("config", os.Getenv("MEND_CONFIG"), "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "mendd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		Service: serviceName,
		JSON:    cfg.Logging.Format == "json",
	})
	defer logger.Close()
	slogger := logger.Slog()

	telemetryShutdown, err := telemetry.Init(serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(); err != nil {
			slogger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics(otel.Meter("mend"))
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	// --- Core components ---

	lg := ledger.New(cfg.Threshold.WindowSize)

	store := threshold.NewStore(lg, threshold.Config{
		Default: threshold.Threshold{
			MemoryMB: cfg.Threshold.DefaultMemoryMB,
			Quota:    cfg.Threshold.DefaultQuota,
			Latency:  cfg.Threshold.DefaultLatency.Std(),
		},
	}, slogger)

	adjuster := threshold.NewAdjuster(store, cfg.Threshold.AdjustInterval.Std(), metrics, slogger)

	validator := safety.NewValidator(safety.Config{})

	gen, err := generator.NewOpenAIGenerator(slogger)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}

	var verifier verify.Verifier
	if len(cfg.Pipeline.VerifyCommand) > 0 {
		verifier = &verify.CommandVerifier{Command: cfg.Pipeline.VerifyCommand}
	} else {
		// Without a configured re-check, an applied fix that passed
		// validation is taken at face value.
		verifier = verify.Func(func(ctx context.Context, filePath string) error { return nil })
		slogger.Warn("no verify_command configured, applied fixes are not re-checked")
	}

	pl := pipeline.New(pipeline.Config{
		ProjectRoot:        cfg.Project.Root,
		GenerationTimeout:  cfg.Pipeline.GenerationTimeout.Std(),
		BackupDir:          cfg.Project.BackupDir,
		IncludeFileContent: cfg.Pipeline.IncludeFileContent,
	}, gen, validator, verifier, store, lg, metrics, slogger)

	bus := events.NewBus()

	reg := registry.New(registry.Config{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	}, pl, bus, metrics, slogger)
	defer reg.Close()

	scheduler := registry.NewScheduler(reg, cfg.Pipeline.ScheduleInterval.Std(), slogger)

	// --- HTTP surface ---

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	routes.SetupRoutes(router, reg, store, lg, bus, slogger)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adjuster.Start(ctx)
	defer adjuster.Stop()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Watcher.Enabled {
		w, err := watcher.New(watcher.Config{
			Root:       cfg.Project.Root,
			Extensions: cfg.Watcher.Extensions,
			IgnoreDirs: cfg.Watcher.IgnoreDirs,
			Debounce:   cfg.Watcher.Debounce.Std(),
		}, commandDetector(cfg.Pipeline.VerifyCommand), reg, slogger)
		if err != nil {
			return fmt.Errorf("init watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer w.Stop()
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slogger.Info("mendd listening", "addr", cfg.Server.ListenAddr, "project_root", cfg.Project.Root)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		slogger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// commandDetector builds a Detector from the verify command: a file
// that fails the check yields one report at the file level. When no
// command is configured the detector reports nothing; reports then
// arrive only through the HTTP API.
func commandDetector(command []string) watcher.Detector {
	verifier := &verify.CommandVerifier{Command: command}
	return func(ctx context.Context, path string) ([]mend.Report, error) {
		if len(command) == 0 {
			return nil, nil
		}
		if err := verifier.Verify(ctx, path); err != nil {
			return []mend.Report{{
				FilePath:  path,
				ErrorType: "CheckFailed",
				Message:   err.Error(),
			}}, nil
		}
		return nil, nil
	}
}
