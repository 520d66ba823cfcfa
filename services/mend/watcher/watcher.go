// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watcher feeds filesystem changes under the project root into
// the error registry. A pluggable Detector inspects each changed file
// and produces zero or more defect reports; the watcher debounces
// bursty editors and submits what the detector finds.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tidewater-ai/mend/services/mend"
)

// Detector inspects one changed file and reports defects found in it.
// An empty slice with a nil error means the file is clean.
type Detector func(ctx context.Context, path string) ([]mend.Report, error)

// Submitter receives the reports a detector produced. Satisfied by
// *registry.Registry.
type Submitter interface {
	AddError(report mend.Report) (*mend.Error, error)
}

// DefaultDebounce is how long a path must be quiet before detection
// runs on it.
const DefaultDebounce = 500 * time.Millisecond

// Config tunes watcher behavior.
type Config struct {
	// Root is the directory watched recursively.
	Root string

	// Extensions limits detection to matching file suffixes
	// (e.g. ".go", ".py"). Empty means every file.
	Extensions []string

	// IgnoreDirs are directory names skipped during the recursive walk
	// (defaults: .git, node_modules, vendor).
	IgnoreDirs []string

	// Debounce is the per-path quiet period. Zero means DefaultDebounce.
	Debounce time.Duration
}

// Watcher drives filesystem events through detection into the registry.
//
// # Thread Safety
//
// Start may be called once; Stop is safe to call concurrently with a
// running watcher.
type Watcher struct {
	config    Config
	detector  Detector
	submitter Submitter
	logger    *slog.Logger

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher.
//
// Inputs:
//
//	config - Watcher configuration. Root is required.
//	detector - Defect detector invoked per changed file.
//	submitter - Destination for detected reports.
//	logger - Logger (nil for default).
func New(config Config, detector Detector, submitter Submitter, logger *slog.Logger) (*Watcher, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("watcher root not configured")
	}
	if detector == nil {
		return nil, fmt.Errorf("watcher requires a detector")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if len(config.IgnoreDirs) == 0 {
		config.IgnoreDirs = []string{".git", "node_modules", "vendor"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		config:    config,
		detector:  detector,
		submitter: submitter,
		logger:    logger,
		pending:   make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}, nil
}

// Start registers the watch tree and begins processing events until the
// context ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.addTree(w.config.Root); err != nil {
		fsw.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.loop(runCtx)
	w.logger.Info("file watcher started", "root", w.config.Root)
	return nil
}

// Stop halts event processing and releases the watch descriptors.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// loop is the event pump.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			w.drainTimers()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// handleEvent routes one fsnotify event.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		// New directories must join the watch tree.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.ignored(filepath.Base(event.Name)) {
				if err := w.fsw.Add(event.Name); err != nil {
					w.logger.Warn("watch new directory failed", "dir", event.Name, "error", err)
				}
			}
			return
		}
	}

	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}
	if !w.matches(event.Name) {
		return
	}
	w.debounce(ctx, event.Name)
}

// debounce (re)arms the quiet-period timer for a path.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.config.Debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.detect(ctx, path)
	})
}

// detect runs the detector on a settled path and submits its findings.
func (w *Watcher) detect(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}

	reports, err := w.detector(ctx, path)
	if err != nil {
		w.logger.Warn("detection failed", "path", path, "error", err)
		return
	}

	for _, report := range reports {
		rec, err := w.submitter.AddError(report)
		if err != nil {
			// Duplicates are routine while an error is being worked on.
			w.logger.Debug("report not admitted", "path", path, "error", err)
			continue
		}
		w.logger.Info("defect detected",
			"error_id", rec.ID,
			"file", rec.FilePath,
			"line", rec.LineNumber,
			"error_type", rec.ErrorType,
		)
	}
}

// addTree registers the root and all non-ignored subdirectories.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && w.ignored(entry.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// matches reports whether the path passes the extension filter.
func (w *Watcher) matches(path string) bool {
	if len(w.config.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowed := range w.config.Extensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// ignored reports whether a directory name is excluded from the tree.
func (w *Watcher) ignored(name string) bool {
	for _, dir := range w.config.IgnoreDirs {
		if name == dir {
			return true
		}
	}
	return false
}

// drainTimers stops all pending debounce timers on shutdown.
func (w *Watcher) drainTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}
