// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package threshold

import (
	"context"
	"log/slog"
	"time"

	"github.com/tidewater-ai/mend/services/mend/telemetry"
)

// Adjuster runs AdjustThresholds on a fixed interval, independent of any
// individual error's processing.
//
// # Thread Safety
//
// Start and Stop must be called from one goroutine; the adjustment loop
// itself only touches the Store and Ledger through their own locks.
type Adjuster struct {
	store    *Store
	interval time.Duration
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// DefaultAdjustInterval is how often thresholds are re-evaluated.
const DefaultAdjustInterval = 30 * time.Second

// NewAdjuster creates an adjuster for the store. metrics may be nil to
// disable instrumentation.
func NewAdjuster(store *Store, interval time.Duration, metrics *telemetry.Metrics, logger *slog.Logger) *Adjuster {
	if interval <= 0 {
		interval = DefaultAdjustInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adjuster{
		store:    store,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start launches the adjustment loop. Calling Start twice is a no-op
// until Stop is called.
func (a *Adjuster) Start(ctx context.Context) {
	if a.done != nil {
		return
	}

	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})

	go func() {
		defer close(a.done)

		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		a.logger.Info("threshold adjuster started", "interval", a.interval)
		for {
			select {
			case <-ctx.Done():
				a.logger.Info("threshold adjuster stopped")
				return
			case <-ticker.C:
				a.store.AdjustThresholds()
				if a.metrics != nil {
					a.metrics.ThresholdAdjustmentsTotal.Add(ctx, 1)
				}
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit.
func (a *Adjuster) Stop() {
	if a.done == nil {
		return
	}
	a.cancel()
	<-a.done
	a.cancel = nil
	a.done = nil
}
