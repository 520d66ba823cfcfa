// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mend

import "fmt"

// StateMachine validates status transitions for Error records.
//
// The transition table:
//
//	New → Processing          : dispatched to the fix pipeline
//	Processing → Verifying    : candidate fix applied
//	Processing → New          : transient failure or backpressure, retry
//	Processing → Failed       : attempts exhausted or security rejection
//	Verifying → Fixed         : verification passed
//	Verifying → New           : verification failed, attempts remain
//	Verifying → Failed        : verification failed, attempts exhausted
//
// Fixed and Failed are terminal; nothing transitions out of them.
//
// Thread Safety:
//
//	The transition table is built once and never mutated, so StateMachine
//	is safe for concurrent use without locking.
type StateMachine struct {
	transitions map[ErrorStatus]map[ErrorStatus]bool
}

// NewStateMachine creates a state machine with the full transition table.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[ErrorStatus]map[ErrorStatus]bool),
	}

	for _, status := range AllStatuses() {
		sm.transitions[status] = make(map[ErrorStatus]bool)
	}

	sm.addTransition(StatusNew, StatusProcessing)

	sm.addTransition(StatusProcessing, StatusVerifying)
	sm.addTransition(StatusProcessing, StatusNew)
	sm.addTransition(StatusProcessing, StatusFailed)

	sm.addTransition(StatusVerifying, StatusFixed)
	sm.addTransition(StatusVerifying, StatusNew)
	sm.addTransition(StatusVerifying, StatusFailed)

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to ErrorStatus) {
	sm.transitions[from][to] = true
}

// CanTransition checks if moving from one status to another is valid.
func (sm *StateMachine) CanTransition(from, to ErrorStatus) bool {
	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition moves the record to the target status, stamping UpdatedAt.
//
// Inputs:
//
//	rec - The record to transition. Caller must hold the record's token.
//	to - Target status.
//
// Outputs:
//
//	error - ErrInvalidTransition if the move is outside the table.
func (sm *StateMachine) Transition(rec *Error, to ErrorStatus) error {
	if !sm.CanTransition(rec.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, to)
	}
	rec.Status = to
	rec.UpdatedAt = nowFunc()
	return nil
}

// ValidTransitionsFrom returns all valid target statuses from a source.
func (sm *StateMachine) ValidTransitionsFrom(from ErrorStatus) []ErrorStatus {
	var result []ErrorStatus
	if toMap, ok := sm.transitions[from]; ok {
		for status, valid := range toMap {
			if valid {
				result = append(result, status)
			}
		}
	}
	return result
}

// DefaultStateMachine is the shared instance used by the registry.
var DefaultStateMachine = NewStateMachine()
