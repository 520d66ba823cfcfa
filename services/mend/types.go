// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mend defines the shared types for the error lifecycle subsystem:
// the Error record, its status enumeration, defect reports, and the typed
// outcomes a fix attempt can produce.
//
// The packages under services/mend build on these types:
//
//   - registry: owns the authoritative Error set and its state machine
//   - pipeline: drives one error through generation, validation, apply, verify
//   - threshold: adaptive per-component resource budgets
//   - ledger: bounded-window usage samples backing threshold adjustment
//   - safety: stateless path and content validation
package mend

import "time"

// ErrorStatus is the lifecycle state of an Error record.
//
// Valid transitions are enforced by the StateMachine in this package:
//
//	New → Processing                 : dispatched to the fix pipeline
//	Processing → Verifying           : candidate fix applied, awaiting verification
//	Processing → New                 : transient failure, attempts remain
//	Processing → Failed              : attempts exhausted or security rejection
//	Verifying → Fixed                : verification passed (terminal)
//	Verifying → New                  : verification failed, attempts remain
//	Verifying → Failed               : verification failed, attempts exhausted (terminal)
type ErrorStatus string

const (
	// StatusNew means the error is awaiting a fix attempt.
	StatusNew ErrorStatus = "new"

	// StatusProcessing means a pipeline run is in flight for this error.
	StatusProcessing ErrorStatus = "processing"

	// StatusVerifying means a candidate fix was applied and is being verified.
	StatusVerifying ErrorStatus = "verifying"

	// StatusFixed is terminal: the fix was applied and verified.
	StatusFixed ErrorStatus = "fixed"

	// StatusFailed is terminal: attempts exhausted or fix rejected.
	StatusFailed ErrorStatus = "failed"
)

// String returns the status name.
func (s ErrorStatus) String() string { return string(s) }

// Terminal reports whether no further transitions occur from this status.
func (s ErrorStatus) Terminal() bool {
	return s == StatusFixed || s == StatusFailed
}

// AllStatuses returns every defined status.
func AllStatuses() []ErrorStatus {
	return []ErrorStatus{StatusNew, StatusProcessing, StatusVerifying, StatusFixed, StatusFailed}
}

// Severity tags a defect report for display and prioritization.
// It is informational; the registry does not order work by it.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Report is an inbound defect report from a detector or the dashboard.
//
// Location resolution happens upstream: FilePath, LineNumber, ErrorType
// and Message arrive already resolved. FunctionName, ClassName and
// MethodName are optional and only refine the component key used for
// resource accounting.
type Report struct {
	// FilePath is the file the defect was detected in, relative to the
	// project root or absolute within it.
	FilePath string `json:"file_path" binding:"required"`

	// LineNumber is the 0-based-tolerant line of the defect (>= 0).
	LineNumber int `json:"line_number" binding:"gte=0"`

	// ErrorType is the defect category tag (e.g. "SyntaxError").
	ErrorType string `json:"error_type" binding:"required"`

	// Message is the human-readable defect description.
	Message string `json:"message" binding:"required"`

	// Severity is an optional display tag. Defaults to high.
	Severity Severity `json:"severity,omitempty"`

	// FunctionName optionally narrows the component key to a function.
	FunctionName string `json:"function_name,omitempty"`

	// ClassName optionally narrows the component key to a class.
	ClassName string `json:"class_name,omitempty"`

	// MethodName optionally narrows the component key to a method.
	MethodName string `json:"method_name,omitempty"`
}

// Error is one tracked defect. Records are never deleted; they transition
// to a terminal status and are retained for audit.
//
// Mutation discipline: only the registry mutates an Error, and only while
// holding that id's exclusivity token. Read models are returned by value.
type Error struct {
	// ID is an opaque unique identifier assigned at admission.
	ID string `json:"id"`

	// FilePath, LineNumber, ErrorType and Message mirror the Report.
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
	ErrorType  string `json:"error_type"`
	Message    string `json:"message"`

	// Severity is the display tag carried from the report.
	Severity Severity `json:"severity"`

	// Status is the current lifecycle state.
	Status ErrorStatus `json:"status"`

	// FixAttempts counts failed fix attempts. A successful attempt does
	// not increment it, nor does admission backpressure.
	FixAttempts int `json:"fix_attempts"`

	// MaxAttempts bounds FixAttempts before the record fails terminally.
	MaxAttempts int `json:"max_attempts"`

	// FailureCause records why a record reached StatusFailed.
	FailureCause string `json:"failure_cause,omitempty"`

	// FunctionName, ClassName and MethodName refine the component key.
	FunctionName string `json:"function_name,omitempty"`
	ClassName    string `json:"class_name,omitempty"`
	MethodName   string `json:"method_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OutcomeKind classifies the result of one pipeline run.
type OutcomeKind string

const (
	// OutcomeFixed means the fix was applied and verified.
	OutcomeFixed OutcomeKind = "fixed"

	// OutcomeResourceExceeded means admission was denied by the threshold
	// store. Backpressure, not a fix failure: the attempt counter is not
	// incremented and the error returns to New.
	OutcomeResourceExceeded OutcomeKind = "resource_exceeded"

	// OutcomeGenerationTimeout means the external generator timed out.
	// Transient; counted against the attempt budget.
	OutcomeGenerationTimeout OutcomeKind = "generation_timeout"

	// OutcomeGenerationFailure means the external generator errored or
	// returned unusable content. Transient; counted against the budget.
	OutcomeGenerationFailure OutcomeKind = "generation_failure"

	// OutcomeSecurityRejected means path or content validation failed.
	// Fatal for the error regardless of remaining attempts.
	OutcomeSecurityRejected OutcomeKind = "security_rejected"

	// OutcomeVerificationFailed means the fix did not survive the apply
	// and verify phases: either verification rejected the applied
	// content (rolled back), or the content could not be written at all
	// (Detail prefixed "apply failed:", nothing to roll back). Counted
	// against the budget either way.
	OutcomeVerificationFailed OutcomeKind = "verification_failed"

	// OutcomeCancelled means the run was cancelled at a suspension point.
	// Not counted against the budget; the error returns to New.
	OutcomeCancelled OutcomeKind = "cancelled"
)

// String returns the outcome kind name.
func (k OutcomeKind) String() string { return string(k) }

// Outcome is the typed result of one pipeline run. The registry only ever
// observes Outcomes; pipeline-internal errors never escape as raw errors.
type Outcome struct {
	// Kind classifies the result.
	Kind OutcomeKind `json:"kind"`

	// Detail carries a human-readable cause for non-fixed outcomes.
	Detail string `json:"detail,omitempty"`
}

// CountsAttempt reports whether this outcome consumes one unit of the
// owning error's attempt budget.
func (o Outcome) CountsAttempt() bool {
	switch o.Kind {
	case OutcomeGenerationTimeout, OutcomeGenerationFailure, OutcomeVerificationFailed:
		return true
	default:
		return false
	}
}
