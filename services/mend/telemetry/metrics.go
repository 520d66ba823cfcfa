// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics contains the pre-defined instruments for the mend service.
// All metrics use the "mend_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Pipeline Metrics ---

	// PipelineRunsTotal counts pipeline runs by outcome kind.
	PipelineRunsTotal metric.Int64Counter

	// PipelineDuration records full pipeline run duration in seconds.
	PipelineDuration metric.Float64Histogram

	// PipelineActiveRuns tracks currently in-flight pipeline runs.
	PipelineActiveRuns metric.Int64UpDownCounter

	// AdmissionDenialsTotal counts runs denied at the admission gate.
	AdmissionDenialsTotal metric.Int64Counter

	// --- Generator Metrics ---

	// GenerationDuration records external generator call duration.
	GenerationDuration metric.Float64Histogram

	// --- Registry Metrics ---

	// ErrorsAdmittedTotal counts reports accepted into the registry.
	ErrorsAdmittedTotal metric.Int64Counter

	// ErrorsTerminalTotal counts records reaching a terminal status.
	ErrorsTerminalTotal metric.Int64Counter

	// --- Threshold Metrics ---

	// ThresholdAdjustmentsTotal counts adjustment cycles executed.
	ThresholdAdjustmentsTotal metric.Int64Counter
}

// NewMetrics registers all instruments with the provided meter.
//
// Outputs:
//
//	*Metrics - The instrument set, ready for use.
//	error - Non-nil if any registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.PipelineRunsTotal, err = meter.Int64Counter(
		"mend_pipeline_runs_total",
		metric.WithDescription("Total fix pipeline runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline_runs_total: %w", err)
	}

	m.PipelineDuration, err = meter.Float64Histogram(
		"mend_pipeline_duration_seconds",
		metric.WithDescription("Fix pipeline run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline_duration: %w", err)
	}

	m.PipelineActiveRuns, err = meter.Int64UpDownCounter(
		"mend_pipeline_active_runs",
		metric.WithDescription("Currently in-flight pipeline runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline_active_runs: %w", err)
	}

	m.AdmissionDenialsTotal, err = meter.Int64Counter(
		"mend_admission_denials_total",
		metric.WithDescription("Pipeline runs denied by the threshold gate"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create admission_denials_total: %w", err)
	}

	m.GenerationDuration, err = meter.Float64Histogram(
		"mend_generation_duration_seconds",
		metric.WithDescription("External generator call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, fmt.Errorf("create generation_duration: %w", err)
	}

	m.ErrorsAdmittedTotal, err = meter.Int64Counter(
		"mend_errors_admitted_total",
		metric.WithDescription("Defect reports accepted into the registry"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_admitted_total: %w", err)
	}

	m.ErrorsTerminalTotal, err = meter.Int64Counter(
		"mend_errors_terminal_total",
		metric.WithDescription("Error records reaching a terminal status"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_terminal_total: %w", err)
	}

	m.ThresholdAdjustmentsTotal, err = meter.Int64Counter(
		"mend_threshold_adjustments_total",
		metric.WithDescription("Threshold adjustment cycles executed"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create threshold_adjustments_total: %w", err)
	}

	return m, nil
}

// RecordRun is a convenience for the pipeline's per-run bookkeeping.
func (m *Metrics) RecordRun(ctx context.Context, outcome string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.PipelineRunsTotal.Add(ctx, 1, attrs)
	m.PipelineDuration.Record(ctx, seconds, attrs)
}
