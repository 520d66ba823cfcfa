// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tidewater-ai/mend/services/mend"
)

// mockSubmitter records admitted reports.
type mockSubmitter struct {
	mu      sync.Mutex
	reports []mend.Report
}

func (m *mockSubmitter) AddError(report mend.Report) (*mend.Error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return &mend.Error{ID: "mock-id", FilePath: report.FilePath}, nil
}

func (m *mockSubmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

// reportAll is a detector that flags every file it sees.
func reportAll(ctx context.Context, path string) ([]mend.Report, error) {
	return []mend.Report{{
		FilePath:  path,
		ErrorType: "CheckFailed",
		Message:   "detected",
	}}, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}, reportAll, &mockSubmitter{}, nil); err == nil {
		t.Error("New without root succeeded")
	}
	if _, err := New(Config{Root: t.TempDir()}, nil, &mockSubmitter{}, nil); err == nil {
		t.Error("New without detector succeeded")
	}
}

func TestDetectsChangedFile(t *testing.T) {
	root := t.TempDir()
	sub := &mockSubmitter{}

	w, err := New(Config{Root: root, Debounce: 20 * time.Millisecond}, reportAll, sub, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(root, "main.py")
	if err := os.WriteFile(path, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, func() bool { return sub.count() >= 1 })

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.reports[0].FilePath != path {
		t.Errorf("report path = %q, want %q", sub.reports[0].FilePath, path)
	}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	root := t.TempDir()
	sub := &mockSubmitter{}

	w, err := New(Config{Root: root, Debounce: 150 * time.Millisecond}, reportAll, sub, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Editor-style burst: several writes inside the quiet period.
	path := filepath.Join(root, "burst.py")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("x = 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	waitFor(t, 3*time.Second, func() bool { return sub.count() >= 1 })
	time.Sleep(300 * time.Millisecond)

	if got := sub.count(); got != 1 {
		t.Errorf("burst produced %d detections, want 1", got)
	}
}

func TestExtensionFilter(t *testing.T) {
	root := t.TempDir()
	sub := &mockSubmitter{}

	w, err := New(Config{
		Root:       root,
		Extensions: []string{".py"},
		Debounce:   20 * time.Millisecond,
	}, reportAll, sub, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0o644)
	os.WriteFile(filepath.Join(root, "app.py"), []byte("x = 1\n"), 0o644)

	waitFor(t, 3*time.Second, func() bool { return sub.count() >= 1 })
	time.Sleep(200 * time.Millisecond)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	for _, report := range sub.reports {
		if filepath.Ext(report.FilePath) != ".py" {
			t.Errorf("filtered extension leaked through: %s", report.FilePath)
		}
	}
}

func TestNewDirectoryJoinsWatchTree(t *testing.T) {
	root := t.TempDir()
	sub := &mockSubmitter{}

	w, err := New(Config{Root: root, Debounce: 20 * time.Millisecond}, reportAll, sub, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	subdir := filepath.Join(root, "pkg")
	if err := os.Mkdir(subdir, 0o750); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a beat to register the new directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(subdir, "inner.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, func() bool { return sub.count() >= 1 })
}

func TestIgnoredDirsExcluded(t *testing.T) {
	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	if err := os.Mkdir(gitDir, 0o750); err != nil {
		t.Fatal(err)
	}

	sub := &mockSubmitter{}
	w, err := New(Config{Root: root, Debounce: 20 * time.Millisecond}, reportAll, sub, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	os.WriteFile(filepath.Join(gitDir, "index"), []byte("x"), 0o644)
	time.Sleep(300 * time.Millisecond)

	if got := sub.count(); got != 0 {
		t.Errorf("%d detections under an ignored directory, want 0", got)
	}
}

func TestStopHaltsDetection(t *testing.T) {
	root := t.TempDir()
	sub := &mockSubmitter{}

	w, err := New(Config{Root: root, Debounce: 20 * time.Millisecond}, reportAll, sub, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()

	os.WriteFile(filepath.Join(root, "late.py"), []byte("x"), 0o644)
	time.Sleep(200 * time.Millisecond)

	if got := sub.count(); got != 0 {
		t.Errorf("%d detections after Stop, want 0", got)
	}
}
