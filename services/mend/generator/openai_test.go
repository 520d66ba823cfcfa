// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generator

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"no fences untouched",
			"def f():\n    pass\n",
			"def f():\n    pass\n",
		},
		{
			"plain fence removed",
			"```\ndef f():\n    pass\n```",
			"def f():\n    pass",
		},
		{
			"language fence removed",
			"```python\ndef f():\n    pass\n```",
			"def f():\n    pass",
		},
		{
			"unterminated fence left alone",
			"```python\ndef f():",
			"```python\ndef f():",
		},
		{
			"interior fences preserved",
			"```\nsample = \"```\"\nmore = 1\n```",
			"sample = \"```\"\nmore = 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFences(tt.in); got != tt.want {
				t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	req := Request{
		FilePath:   "src/app.py",
		LineNumber: 42,
		ErrorType:  "SyntaxError",
		Message:    "unexpected indent",
	}
	prompt := buildPrompt(req)

	for _, want := range []string{"src/app.py", "42", "SyntaxError", "unexpected indent"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Current file content") {
		t.Error("prompt mentions file content without any")
	}

	req.FileContent = "x = 1"
	if !strings.Contains(buildPrompt(req), "x = 1") {
		t.Error("file content not included in prompt")
	}
}

func TestMockGeneratorDelayHonorsContext(t *testing.T) {
	m := &MockGenerator{Fixed: "content", Delay: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.GenerateFix(ctx, Request{})
	if err == nil {
		t.Fatal("GenerateFix = nil error, want context expiry")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("GenerateFix ignored context for %v", elapsed)
	}
}

func TestMockGeneratorRecordsCalls(t *testing.T) {
	m := &MockGenerator{Fixed: "ok"}
	req := Request{FilePath: "a.py", ErrorType: "E"}

	content, err := m.GenerateFix(context.Background(), req)
	if err != nil || content != "ok" {
		t.Fatalf("GenerateFix = %q, %v", content, err)
	}
	if len(m.Calls) != 1 || m.Calls[0].FilePath != "a.py" {
		t.Errorf("Calls = %+v", m.Calls)
	}
}
