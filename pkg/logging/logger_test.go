// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "test",
		Quiet:   true,
	})
	logger.Info("file entry", "key", "value")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "test_") || !strings.HasSuffix(name, ".log") {
		t.Errorf("unexpected log file name %q", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "file entry") {
		t.Errorf("log file missing message: %s", content)
	}
	if !strings.Contains(content, `"service":"test"`) {
		t.Errorf("log file missing service attribute: %s", content)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "filter",
		Quiet:   true,
	})
	logger.Debug("dropped debug")
	logger.Info("dropped info")
	logger.Warn("kept warn")
	logger.Close()

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(entries))
	}
	data, _ := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	content := string(data)
	if strings.Contains(content, "dropped") {
		t.Errorf("filtered entries leaked into file: %s", content)
	}
	if !strings.Contains(content, "kept warn") {
		t.Errorf("warn entry missing: %s", content)
	}
}

func TestBufferedExporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Service:  "export",
		Quiet:    true,
		Exporter: exporter,
	})

	logger.Info("exported message", "attempt", 2)
	logger.Debug("below level, not exported")

	// Export is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for len(exporter.Entries()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 exported entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Message != "exported message" {
		t.Errorf("Message = %q", entry.Message)
	}
	if entry.Service != "export" {
		t.Errorf("Service = %q", entry.Service)
	}
	if entry.Attrs["attempt"] != 2 {
		t.Errorf("Attrs[attempt] = %v", entry.Attrs["attempt"])
	}

	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestWithCarriesAttributes(t *testing.T) {
	dir := t.TempDir()

	parent := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "with",
		Quiet:   true,
	})
	child := parent.With("error_id", "abc-123")
	child.Info("scoped entry")
	parent.Close()

	entries, _ := os.ReadDir(dir)
	data, _ := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if !strings.Contains(string(data), "abc-123") {
		t.Errorf("child attribute missing from output: %s", data)
	}
}

func TestMultiHandlerEnabled(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "out.log"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}}

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(debug) = false, want true when any handler accepts")
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"a", 1, "b", "two", 3, "odd-key-skipped"})
	if got["a"] != 1 || got["b"] != "two" {
		t.Errorf("argsToMap = %v", got)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 entries, got %d", len(got))
	}
}

func TestNopExporter(t *testing.T) {
	var e NopExporter
	if err := e.Export(context.Background(), LogEntry{}); err != nil {
		t.Errorf("Export = %v", err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
