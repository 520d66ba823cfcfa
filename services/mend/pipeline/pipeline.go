// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline drives one error through admission, generation,
// validation, application and verification, and accounts the run's
// resource usage back into the ledger.
//
// Every internal failure is converted into a typed mend.Outcome before
// it reaches the registry; the registry never observes a raw error from
// a run.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/tidewater-ai/mend/services/mend"
	"github.com/tidewater-ai/mend/services/mend/generator"
	"github.com/tidewater-ai/mend/services/mend/ledger"
	"github.com/tidewater-ai/mend/services/mend/safety"
	"github.com/tidewater-ai/mend/services/mend/telemetry"
	"github.com/tidewater-ai/mend/services/mend/threshold"
	"github.com/tidewater-ai/mend/services/mend/verify"
)

// Config tunes pipeline behavior.
type Config struct {
	// ProjectRoot is the absolute directory all fix targets must
	// resolve within.
	ProjectRoot string

	// GenerationTimeout bounds each external generator call.
	// Zero means DefaultGenerationTimeout.
	GenerationTimeout time.Duration

	// BackupDir, when set, receives a ".bak" copy of each file before
	// it is modified, in addition to the in-memory rollback copy.
	BackupDir string

	// IncludeFileContent sends the target file's current content to the
	// generator along with the defect report.
	IncludeFileContent bool
}

// DefaultGenerationTimeout bounds generator calls when unconfigured.
const DefaultGenerationTimeout = 60 * time.Second

// Hooks lets the dispatching registry observe run phases.
type Hooks struct {
	// OnVerifying fires after a candidate fix has been applied, before
	// verification begins. The registry uses it to move the record from
	// Processing to Verifying.
	OnVerifying func()
}

// Pipeline executes fix attempts. One Pipeline serves all errors; each
// Run call is independent and safe to execute concurrently with others.
type Pipeline struct {
	config    Config
	generator generator.Generator
	validator *safety.Validator
	verifier  verify.Verifier
	store     *threshold.Store
	ledger    *ledger.Ledger
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// New creates a pipeline.
//
// Inputs:
//
//	config - Pipeline configuration. ProjectRoot is required.
//	gen - External fix-content generator.
//	validator - Security validator (nil for defaults).
//	verifier - Post-apply verification collaborator.
//	store - Threshold store consulted for admission.
//	lg - Usage ledger samples are recorded into.
//	metrics - Instrument set (nil disables instrumentation).
//	logger - Logger (nil for default).
func New(
	config Config,
	gen generator.Generator,
	validator *safety.Validator,
	verifier verify.Verifier,
	store *threshold.Store,
	lg *ledger.Ledger,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *Pipeline {
	if config.GenerationTimeout <= 0 {
		config.GenerationTimeout = DefaultGenerationTimeout
	}
	if validator == nil {
		validator = safety.NewValidator(safety.Config{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		config:    config,
		generator: gen,
		validator: validator,
		verifier:  verifier,
		store:     store,
		ledger:    lg,
		metrics:   metrics,
		logger:    logger,
	}
}

// KeyFor derives the resource accounting key for an error, at the
// narrowest granularity the report provided.
func KeyFor(rec *mend.Error) ledger.Key {
	switch {
	case rec.MethodName != "":
		return ledger.Key{Type: ledger.ComponentMethod, Name: rec.MethodName}
	case rec.ClassName != "":
		return ledger.Key{Type: ledger.ComponentClass, Name: rec.ClassName}
	case rec.FunctionName != "":
		return ledger.Key{Type: ledger.ComponentFunction, Name: rec.FunctionName}
	default:
		return ledger.FileKey(rec.FilePath)
	}
}

// Run executes one fix attempt for the error.
//
// # Description
//
// Phases, in order: admission check against the threshold store,
// generation (skipped when manualContent is supplied), security
// validation, application with rollback retention, verification with
// rollback on failure. One usage sample is recorded for the key
// regardless of outcome, and the outcome is returned for the registry
// to act on.
//
// Cancellation is honored at every suspension point. A write already in
// progress completes and is then rolled back; partial writes are never
// left behind.
//
// # Inputs
//
//   - ctx: Cancellation for the run. The per-call generation timeout is
//     layered on top internally.
//   - rec: Snapshot of the error being fixed.
//   - manualContent: Non-empty for the manual ApplyFix path; generation
//     is bypassed and this content goes through validation directly.
//   - hooks: Phase callbacks; zero value is fine.
//
// # Outputs
//
//   - mend.Outcome: The typed result. Never accompanied by a raw error.
func (p *Pipeline) Run(ctx context.Context, rec mend.Error, manualContent string, hooks Hooks) mend.Outcome {
	key := KeyFor(&rec)
	logger := p.logger.With("error_id", rec.ID, "key", key.String())

	start := time.Now()
	memBefore := heapAllocMB()
	usedGenerator := false

	if p.metrics != nil {
		p.metrics.PipelineActiveRuns.Add(ctx, 1)
	}

	outcome := p.run(ctx, &rec, key, manualContent, &usedGenerator, logger, hooks)

	elapsed := time.Since(start)
	p.recordUsage(key, memBefore, usedGenerator, elapsed)
	if p.metrics != nil {
		p.metrics.PipelineActiveRuns.Add(ctx, -1)
		p.metrics.RecordRun(ctx, outcome.Kind.String(), elapsed.Seconds())
	}

	logger.Info("pipeline run finished",
		"outcome", outcome.Kind,
		"detail", outcome.Detail,
		"duration_ms", elapsed.Milliseconds(),
	)
	return outcome
}

// run holds the phase sequence; Run wraps it with accounting.
func (p *Pipeline) run(
	ctx context.Context,
	rec *mend.Error,
	key ledger.Key,
	manualContent string,
	usedGenerator *bool,
	logger *slog.Logger,
	hooks Hooks,
) mend.Outcome {
	// Phase 1: admission.
	if decision := p.store.Admit(key); !decision.Allowed {
		if p.metrics != nil {
			p.metrics.AdmissionDenialsTotal.Add(ctx, 1)
		}
		logger.Warn("admission denied", "reason", decision.Reason)
		return mend.Outcome{Kind: mend.OutcomeResourceExceeded, Detail: decision.Reason}
	}

	if err := ctx.Err(); err != nil {
		return mend.Outcome{Kind: mend.OutcomeCancelled, Detail: err.Error()}
	}

	target, err := p.resolveTarget(rec.FilePath)
	if err != nil {
		return mend.Outcome{Kind: mend.OutcomeSecurityRejected, Detail: err.Error()}
	}

	// Phase 2: generation (bypassed on the manual path).
	content := manualContent
	if content == "" {
		var outcome mend.Outcome
		content, outcome = p.generate(ctx, rec, target, usedGenerator, logger)
		if outcome.Kind != "" {
			return outcome
		}
	}

	// Phase 3: security validation.
	if v := p.validator.ValidateTarget(p.config.ProjectRoot, rec.FilePath); v != nil {
		logger.Warn("fix target rejected", "code", v.Code, "detail", v.Detail)
		return mend.Outcome{Kind: mend.OutcomeSecurityRejected, Detail: v.Error()}
	}
	if v := p.validator.ValidateContent(content); v != nil {
		logger.Warn("fix content rejected", "code", v.Code, "detail", v.Detail)
		return mend.Outcome{Kind: mend.OutcomeSecurityRejected, Detail: v.Error()}
	}

	// Phase 4: application, retaining prior content for rollback. A
	// write failure shares OutcomeVerificationFailed with phase 5 (the
	// "apply failed:" detail distinguishes it); both consume an attempt
	// and leave the target unchanged.
	applied, err := p.apply(target, content)
	if err != nil {
		logger.Error("fix application failed", "error", err)
		return mend.Outcome{Kind: mend.OutcomeVerificationFailed, Detail: "apply failed: " + err.Error()}
	}

	if hooks.OnVerifying != nil {
		hooks.OnVerifying()
	}

	// A cancellation that lands mid-write completes the write above and
	// is honored here, after rollback.
	if err := ctx.Err(); err != nil {
		p.rollback(applied, logger)
		return mend.Outcome{Kind: mend.OutcomeCancelled, Detail: err.Error()}
	}

	// Phase 5: verification, rollback on failure.
	if err := p.verifier.Verify(ctx, target); err != nil {
		p.rollback(applied, logger)
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return mend.Outcome{Kind: mend.OutcomeCancelled, Detail: "cancelled during verification"}
		}
		logger.Warn("verification failed, rolled back", "error", err)
		return mend.Outcome{Kind: mend.OutcomeVerificationFailed, Detail: err.Error()}
	}

	return mend.Outcome{Kind: mend.OutcomeFixed}
}

// generate calls the external generator under the configured timeout.
// A zero-Kind outcome means success and content is usable.
func (p *Pipeline) generate(
	ctx context.Context,
	rec *mend.Error,
	target string,
	usedGenerator *bool,
	logger *slog.Logger,
) (string, mend.Outcome) {
	req := generator.Request{
		FilePath:   rec.FilePath,
		LineNumber: rec.LineNumber,
		ErrorType:  rec.ErrorType,
		Message:    rec.Message,
	}
	if p.config.IncludeFileContent {
		if current, err := readFileString(target); err == nil {
			req.FileContent = current
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, p.config.GenerationTimeout)
	defer cancel()

	*usedGenerator = true
	genStart := time.Now()
	content, err := p.generator.GenerateFix(genCtx, req)
	if p.metrics != nil {
		p.metrics.GenerationDuration.Record(ctx, time.Since(genStart).Seconds())
	}

	if err != nil {
		switch {
		case ctx.Err() != nil:
			return "", mend.Outcome{Kind: mend.OutcomeCancelled, Detail: "cancelled during generation"}
		case errors.Is(err, context.DeadlineExceeded):
			logger.Warn("generator timed out", "timeout", p.config.GenerationTimeout)
			return "", mend.Outcome{Kind: mend.OutcomeGenerationTimeout, Detail: err.Error()}
		default:
			logger.Warn("generator failed", "error", err)
			return "", mend.Outcome{Kind: mend.OutcomeGenerationFailure, Detail: err.Error()}
		}
	}
	if strings.TrimSpace(content) == "" {
		return "", mend.Outcome{Kind: mend.OutcomeGenerationFailure, Detail: "generator returned empty content"}
	}
	return content, mend.Outcome{}
}

// recordUsage appends the run's sample to the ledger.
func (p *Pipeline) recordUsage(key ledger.Key, memBeforeMB float64, usedGenerator bool, elapsed time.Duration) {
	memAfter := heapAllocMB()
	delta := memAfter - memBeforeMB
	if delta < 0 {
		// GC ran mid-pipeline; the run's own allocation is unknowable,
		// so charge zero rather than a negative sample.
		delta = 0
	}

	quota := 0.0
	if usedGenerator {
		quota = 1.0
	}

	p.ledger.RecordUsage(key, ledger.Usage{
		MemoryMB:  delta,
		Quota:     quota,
		Latency:   elapsed,
		Timestamp: time.Now(),
	})
}

// heapAllocMB samples the current heap allocation in megabytes.
func heapAllocMB() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return float64(stats.HeapAlloc) / (1024 * 1024)
}
