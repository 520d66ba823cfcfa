// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry owns the authoritative set of Error records and
// their state machine, and dispatches eligible errors onto the fix
// pipeline.
//
// Concurrency discipline: every status transition for an id happens
// under that id's token (a keyed mutex). A record can only enter
// Processing from New, and only under the token, so at most one
// pipeline run is ever in flight per id. Different ids proceed fully in
// parallel.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tidewater-ai/mend/services/mend"
	"github.com/tidewater-ai/mend/services/mend/events"
	"github.com/tidewater-ai/mend/services/mend/pipeline"
	"github.com/tidewater-ai/mend/services/mend/telemetry"
)

// DefaultMaxAttempts bounds fix attempts per error when unconfigured.
const DefaultMaxAttempts = 3

// Config tunes registry behavior.
type Config struct {
	// MaxAttempts is the attempt budget assigned to new records.
	// Zero means DefaultMaxAttempts.
	MaxAttempts int
}

// Filter narrows ListErrors results. Zero fields match everything.
type Filter struct {
	Status    mend.ErrorStatus `form:"status"`
	ErrorType string           `form:"error_type"`
	FilePath  string           `form:"file_path"`
}

// Registry is the error lifecycle owner.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*mend.Error
	tokens  map[string]*sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool

	sm       *mend.StateMachine
	pipeline *pipeline.Pipeline
	bus      *events.Bus
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	config   Config

	// baseCtx parents every dispatched run, so runs outlive the request
	// that triggered them but not the registry itself.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a registry.
//
// Inputs:
//
//	config - Registry configuration.
//	pl - The fix pipeline runs are dispatched onto.
//	bus - Event bus for dashboard notifications (nil disables events).
//	metrics - Instrument set (nil disables instrumentation).
//	logger - Logger (nil for default).
func New(config Config, pl *pipeline.Pipeline, bus *events.Bus, metrics *telemetry.Metrics, logger *slog.Logger) *Registry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx, cancelBase := context.WithCancel(context.Background())
	return &Registry{
		records:    make(map[string]*mend.Error),
		tokens:     make(map[string]*sync.Mutex),
		cancels:    make(map[string]context.CancelFunc),
		sm:         mend.NewStateMachine(),
		pipeline:   pl,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
		config:     config,
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
	}
}

// AddError admits a defect report as a new Error record.
//
// # Description
//
// A report is rejected with mend.ErrDuplicate when a non-terminal record
// already exists at the same (file_path, line_number, error_type)
// location; a location already being worked on must not accumulate
// concurrent fix attempts. Terminal records at the location do not
// block re-admission.
//
// # Outputs
//
//   - *mend.Error: Read model of the admitted record.
//   - error: mend.ErrDuplicate, or a validation error.
func (r *Registry) AddError(report mend.Report) (*mend.Error, error) {
	if report.FilePath == "" || report.ErrorType == "" || report.Message == "" {
		return nil, fmt.Errorf("report missing file_path, error_type or message")
	}
	if report.LineNumber < 0 {
		return nil, fmt.Errorf("report line_number must be >= 0")
	}
	severity := report.Severity
	if severity == "" {
		severity = mend.SeverityHigh
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, mend.ErrRegistryClosed
	}

	for _, existing := range r.records {
		if existing.Status.Terminal() {
			continue
		}
		if existing.FilePath == report.FilePath &&
			existing.LineNumber == report.LineNumber &&
			existing.ErrorType == report.ErrorType {
			return nil, fmt.Errorf("%w: %s:%d %s",
				mend.ErrDuplicate, report.FilePath, report.LineNumber, report.ErrorType)
		}
	}

	now := mend.Now()
	rec := &mend.Error{
		ID:           uuid.NewString(),
		FilePath:     report.FilePath,
		LineNumber:   report.LineNumber,
		ErrorType:    report.ErrorType,
		Message:      report.Message,
		Severity:     severity,
		Status:       mend.StatusNew,
		MaxAttempts:  r.config.MaxAttempts,
		FunctionName: report.FunctionName,
		ClassName:    report.ClassName,
		MethodName:   report.MethodName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.records[rec.ID] = rec

	if r.metrics != nil {
		r.metrics.ErrorsAdmittedTotal.Add(r.baseCtx, 1)
	}
	r.publish(events.Event{Type: "error_added", ErrorID: rec.ID, To: rec.Status})
	r.logger.Info("error admitted",
		"error_id", rec.ID,
		"file", rec.FilePath,
		"line", rec.LineNumber,
		"error_type", rec.ErrorType,
	)

	copied := *rec
	return &copied, nil
}

// ProcessError dispatches an error onto the fix pipeline.
//
// # Description
//
// Requires the record to be in New. The transition to Processing and
// the dispatch happen under the id's token, so concurrent ProcessError
// calls for one id admit exactly one run; the rest observe Processing
// and fail with mend.ErrInvalidState. The call returns as soon as the
// run is dispatched; the outcome arrives asynchronously.
//
// # Outputs
//
//   - error: mend.ErrNotFound, mend.ErrInvalidState or
//     mend.ErrRegistryClosed. Nil means the run was dispatched.
func (r *Registry) ProcessError(id string) error {
	return r.dispatch(id, "")
}

// ApplyFix dispatches a manually supplied fix for an error.
//
// The run follows the normal validation, application and verification
// path, bypassing only the generation step.
func (r *Registry) ApplyFix(id, content string) error {
	if content == "" {
		return mend.ErrEmptyContent
	}
	return r.dispatch(id, content)
}

// dispatch is the shared admission path for ProcessError and ApplyFix.
func (r *Registry) dispatch(id, manualContent string) error {
	token := r.tokenFor(id)
	if token == nil {
		return fmt.Errorf("%w: %s", mend.ErrNotFound, id)
	}
	token.Lock()
	defer token.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return mend.ErrRegistryClosed
	}
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", mend.ErrNotFound, id)
	}
	if rec.Status != mend.StatusNew {
		status := rec.Status
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, want %s", mend.ErrInvalidState, id, status, mend.StatusNew)
	}

	if err := r.sm.Transition(rec, mend.StatusProcessing); err != nil {
		r.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(r.baseCtx)
	r.cancels[id] = cancel
	snapshot := *rec
	r.wg.Add(1)
	r.mu.Unlock()

	r.publish(events.Event{
		Type: "state_transition", ErrorID: id,
		From: mend.StatusNew, To: mend.StatusProcessing,
	})

	go r.runPipeline(runCtx, snapshot, manualContent)
	return nil
}

// runPipeline executes one run and feeds the outcome back.
func (r *Registry) runPipeline(ctx context.Context, snapshot mend.Error, manualContent string) {
	defer r.wg.Done()

	hooks := pipeline.Hooks{
		OnVerifying: func() {
			if err := r.transition(snapshot.ID, mend.StatusVerifying); err != nil {
				r.logger.Error("verifying transition failed", "error_id", snapshot.ID, "error", err)
			}
		},
	}

	outcome := r.pipeline.Run(ctx, snapshot, manualContent, hooks)
	r.ReportOutcome(snapshot.ID, outcome)
}

// ReportOutcome applies a pipeline outcome to the record's lifecycle.
//
// # Description
//
// Transitions under the id's token:
//
//   - Fixed: Verifying → Fixed (the success does not increment the
//     attempt counter).
//   - SecurityRejected: → Failed immediately, regardless of remaining
//     attempts.
//   - ResourceExceeded, Cancelled: → New without consuming an attempt.
//   - GenerationTimeout, GenerationFailure, VerificationFailed:
//     increment fix_attempts; back to New while attempts remain,
//     otherwise → Failed with the outcome as terminal cause.
func (r *Registry) ReportOutcome(id string, outcome mend.Outcome) {
	token := r.tokenFor(id)
	if token == nil {
		r.logger.Error("outcome for unknown error", "error_id", id, "outcome", outcome.Kind)
		return
	}
	token.Lock()
	defer token.Unlock()

	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Error("outcome for unknown error", "error_id", id, "outcome", outcome.Kind)
		return
	}

	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}

	from := rec.Status
	var target mend.ErrorStatus
	switch outcome.Kind {
	case mend.OutcomeFixed:
		target = mend.StatusFixed

	case mend.OutcomeSecurityRejected:
		target = mend.StatusFailed
		rec.FailureCause = outcome.Detail

	case mend.OutcomeResourceExceeded, mend.OutcomeCancelled:
		target = mend.StatusNew

	default:
		// Attempt-consuming transient failures.
		if outcome.CountsAttempt() {
			rec.FixAttempts++
		}
		if rec.FixAttempts >= rec.MaxAttempts {
			target = mend.StatusFailed
			rec.FailureCause = fmt.Sprintf("%s: %s", outcome.Kind, outcome.Detail)
		} else {
			target = mend.StatusNew
		}
	}

	if err := r.sm.Transition(rec, target); err != nil {
		// A transition outside the table here means the token discipline
		// was violated somewhere; surface it, don't mask it.
		r.mu.Unlock()
		r.logger.Error("outcome transition rejected",
			"error_id", id, "from", from, "to", target, "error", err)
		return
	}

	terminal := rec.Status.Terminal()
	r.mu.Unlock()

	if terminal && r.metrics != nil {
		r.metrics.ErrorsTerminalTotal.Add(r.baseCtx, 1)
	}
	r.publish(events.Event{
		Type: "outcome", ErrorID: id,
		From: from, To: target,
		Outcome: outcome.Kind.String(), Detail: outcome.Detail,
	})
}

// CancelError signals the in-flight run for an error to stop at its
// next suspension point. The record returns to New once the run winds
// down; an apply already in progress completes and is rolled back.
func (r *Registry) CancelError(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", mend.ErrNotFound, id)
	}
	if rec.Status != mend.StatusProcessing && rec.Status != mend.StatusVerifying {
		return fmt.Errorf("%w: %s is %s", mend.ErrInvalidState, id, rec.Status)
	}

	cancel, ok := r.cancels[id]
	if !ok {
		return fmt.Errorf("%w: no run in flight for %s", mend.ErrInvalidState, id)
	}
	cancel()
	r.logger.Info("cancellation requested", "error_id", id)
	return nil
}

// GetError returns a read model of one record.
func (r *Registry) GetError(id string) (mend.Error, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return mend.Error{}, fmt.Errorf("%w: %s", mend.ErrNotFound, id)
	}
	return *rec, nil
}

// ListErrors returns read models matching the filter, unordered.
func (r *Registry) ListErrors(filter Filter) []mend.Error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mend.Error, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.ErrorType != "" && rec.ErrorType != filter.ErrorType {
			continue
		}
		if filter.FilePath != "" && rec.FilePath != filter.FilePath {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

// ProcessEligible dispatches every record currently in New. The
// Scheduler calls this each sweep; it is also safe to call directly.
//
// # Outputs
//
//   - int: Number of runs dispatched.
func (r *Registry) ProcessEligible() int {
	r.mu.RLock()
	var eligible []string
	for id, rec := range r.records {
		if rec.Status == mend.StatusNew {
			eligible = append(eligible, id)
		}
	}
	r.mu.RUnlock()

	dispatched := 0
	for _, id := range eligible {
		if err := r.ProcessError(id); err == nil {
			dispatched++
		}
	}
	return dispatched
}

// Close stops accepting work, cancels in-flight runs and waits for them
// to finish reporting.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancelBase()
	r.wg.Wait()
}

// transition moves a record to a new status under its token. Used by
// the pipeline's phase hook.
func (r *Registry) transition(id string, to mend.ErrorStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", mend.ErrNotFound, id)
	}
	from := rec.Status
	if err := r.sm.Transition(rec, to); err != nil {
		return err
	}
	r.publish(events.Event{Type: "state_transition", ErrorID: id, From: from, To: to})
	return nil
}

// tokenFor returns the id's exclusivity token, creating it on first
// use. Nil when the id has never been seen.
func (r *Registry) tokenFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.records[id]; !known {
		return nil
	}
	token, ok := r.tokens[id]
	if !ok {
		token = &sync.Mutex{}
		r.tokens[id] = token
	}
	return token
}

// publish sends an event when a bus is attached.
func (r *Registry) publish(event events.Event) {
	if r.bus != nil {
		r.bus.Publish(event)
	}
}
