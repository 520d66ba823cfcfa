// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mend

import "errors"

// Sentinel errors for the error lifecycle subsystem.
var (
	// ErrDuplicate indicates a non-terminal error already exists at the
	// same (file, line, type) location.
	ErrDuplicate = errors.New("duplicate error at location")

	// ErrNotFound indicates the error id is unknown.
	ErrNotFound = errors.New("error not found")

	// ErrInvalidState indicates the operation is not valid in the
	// record's current status.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrInvalidTransition indicates a status transition outside the
	// state machine's table. Always a programming error.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEmptyContent indicates a manual fix was submitted with no content.
	ErrEmptyContent = errors.New("fix content is empty")

	// ErrRegistryClosed indicates the registry is shutting down and no
	// longer accepts dispatches.
	ErrRegistryClosed = errors.New("registry closed")
)
