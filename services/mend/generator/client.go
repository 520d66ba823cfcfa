// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package generator is the boundary to the external fix-content service.
// The pipeline only sees the Generator interface; the production backend
// is an OpenAI-compatible chat completion endpoint.
package generator

import (
	"context"
	"sync"
	"time"
)

// Request carries the defect context the generator needs.
type Request struct {
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
	ErrorType  string `json:"error_type"`
	Message    string `json:"message"`

	// FileContent is the current content of the target file, when the
	// caller already holds it. Improves patch quality; optional.
	FileContent string `json:"file_content,omitempty"`
}

// Generator produces candidate fix content for one defect.
//
// Implementations must honor ctx cancellation and deadline; the pipeline
// wraps every call in a bounded timeout and treats expiry as transient.
type Generator interface {
	GenerateFix(ctx context.Context, req Request) (string, error)
}

// MockGenerator is an in-memory Generator for tests. Safe for
// concurrent use.
type MockGenerator struct {
	mu sync.Mutex

	// GenerateFunc overrides GenerateFix behavior.
	GenerateFunc func(ctx context.Context, req Request) (string, error)

	// Fixed is returned when GenerateFunc is nil.
	Fixed string

	// Delay is slept (context-aware) before responding.
	Delay time.Duration

	// Calls records every request received.
	Calls []Request
}

// GenerateFix implements Generator.
func (m *MockGenerator) GenerateFix(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Delay):
		}
	}

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return m.Fixed, nil
}

var _ Generator = (*MockGenerator)(nil)
