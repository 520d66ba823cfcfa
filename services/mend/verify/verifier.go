// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package verify defines the post-apply verification collaborator: the
// same check that produced the original detection, re-run against the
// modified file.
package verify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Verifier re-checks a file after a fix has been applied.
//
// A nil return means the defect is gone. A non-nil return means the fix
// did not take; the pipeline rolls the file back.
type Verifier interface {
	Verify(ctx context.Context, filePath string) error
}

// Func adapts a plain function to the Verifier interface.
type Func func(ctx context.Context, filePath string) error

// Verify implements Verifier.
func (f Func) Verify(ctx context.Context, filePath string) error {
	return f(ctx, filePath)
}

// CommandVerifier shells out to the detector's own check command,
// substituting the file path for a "{}" placeholder (appending it when
// no placeholder is present). A non-zero exit is a failed verification.
type CommandVerifier struct {
	// Command is the program and its fixed arguments,
	// e.g. []string{"python3", "-m", "py_compile", "{}"}.
	Command []string
}

// Verify implements Verifier.
func (v *CommandVerifier) Verify(ctx context.Context, filePath string) error {
	if len(v.Command) == 0 {
		return fmt.Errorf("verifier command not configured")
	}

	args := make([]string, 0, len(v.Command))
	substituted := false
	for _, arg := range v.Command[1:] {
		if arg == "{}" {
			args = append(args, filePath)
			substituted = true
			continue
		}
		args = append(args, arg)
	}
	if !substituted {
		args = append(args, filePath)
	}

	cmd := exec.CommandContext(ctx, v.Command[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("verification failed: %s", detail)
	}
	return nil
}

// MockVerifier is an in-memory Verifier for tests. Results are consumed
// in order; when the queue is exhausted the Default result is returned.
type MockVerifier struct {
	mu sync.Mutex

	// Results are returned one per call, in order.
	Results []error

	// Default is returned once Results is exhausted.
	Default error

	// Calls records every verified path.
	Calls []string
}

// Verify implements Verifier.
func (m *MockVerifier) Verify(ctx context.Context, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, filePath)
	if len(m.Results) > 0 {
		result := m.Results[0]
		m.Results = m.Results[1:]
		return result
	}
	return m.Default
}

var (
	_ Verifier = Func(nil)
	_ Verifier = (*CommandVerifier)(nil)
	_ Verifier = (*MockVerifier)(nil)
)
