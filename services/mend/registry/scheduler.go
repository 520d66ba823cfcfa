// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"context"
	"log/slog"
	"time"
)

// DefaultScheduleInterval is how often pending records are swept.
const DefaultScheduleInterval = 1 * time.Second

// Scheduler polls the registry on a fixed interval and dispatches every
// record sitting in New. It is what makes the registry self-driving:
// watcher-admitted reports, records returned to New after a transient
// failure and records bounced by the admission gate are all picked up
// on the next sweep without an explicit process request.
//
// # Thread Safety
//
// Start and Stop must be called from one goroutine; the sweep itself
// goes through the registry's own locking.
type Scheduler struct {
	reg      *Registry
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler for the registry.
func NewScheduler(reg *Registry, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultScheduleInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		reg:      reg,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sweep loop. Calling Start twice is a no-op until
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	if s.done != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("scheduler started", "interval", s.interval)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				if n := s.reg.ProcessEligible(); n > 0 {
					s.logger.Debug("dispatched pending errors", "count", n)
				}
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}
