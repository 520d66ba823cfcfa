// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"iter"
	"sync"
	"time"
)

// Usage is one resource sample for a completed pipeline run.
type Usage struct {
	// MemoryMB is the heap delta of the run in megabytes.
	MemoryMB float64 `json:"memory_mb"`

	// Quota is the number of external-generator calls consumed (0 or 1).
	Quota float64 `json:"quota"`

	// Latency is the wall-clock duration of the whole run.
	Latency time.Duration `json:"latency"`

	// Timestamp is when the sample was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the aggregate view of one key's window, for display.
// Raw samples are never exposed at the query boundary.
type Summary struct {
	Key         Key           `json:"key"`
	Samples     int           `json:"samples"`
	MeanMemMB   float64       `json:"mean_memory_mb"`
	MeanQuota   float64       `json:"mean_quota"`
	MeanLatency time.Duration `json:"mean_latency"`
	MaxLatency  time.Duration `json:"max_latency"`
}

// Ledger is the append-only, bounded-window usage store.
//
// # Description
//
// One ring buffer per key, created lazily on first record. There is no
// deletion API; eviction of the oldest sample when a window is full is
// the only way samples leave. Keys persist for the life of the process.
//
// # Thread Safety
//
// Safe for concurrent use. Writers (pipeline runs) and readers (admission
// checks, the threshold adjuster, the dashboard) go through the mutex;
// reads operate on snapshot copies so an in-progress iteration never
// observes a racing append.
type Ledger struct {
	mu         sync.RWMutex
	windows    map[Key]*ringBuffer[Usage]
	windowSize int
}

// DefaultWindowSize bounds each key's sample window.
const DefaultWindowSize = 100

// New creates a ledger with the given per-key window size.
// Non-positive sizes fall back to DefaultWindowSize.
func New(windowSize int) *Ledger {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Ledger{
		windows:    make(map[Key]*ringBuffer[Usage]),
		windowSize: windowSize,
	}
}

// RecordUsage appends one sample to the key's window, evicting the
// oldest sample if the window is full.
func (l *Ledger) RecordUsage(key Key, sample Usage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	window, ok := l.windows[key]
	if !ok {
		window = newRingBuffer[Usage](l.windowSize)
		l.windows[key] = window
	}
	window.push(sample)
}

// GetUsageHistory returns the key's current window, oldest first, as a
// restartable sequence over a read-only snapshot.
//
// # Description
//
// The snapshot is taken once, when GetUsageHistory is called. Appends
// that race with an in-progress iteration do not appear; they show up
// in the next call. Iterating the returned sequence multiple times
// yields the same samples.
func (l *Ledger) GetUsageHistory(key Key) iter.Seq[Usage] {
	snapshot := l.Snapshot(key)
	return func(yield func(Usage) bool) {
		for _, sample := range snapshot {
			if !yield(sample) {
				return
			}
		}
	}
}

// Snapshot returns a copy of the key's window, oldest first.
func (l *Ledger) Snapshot(key Key) []Usage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	window, ok := l.windows[key]
	if !ok {
		return nil
	}
	return window.slice()
}

// SampleCount returns the number of samples currently held for a key.
func (l *Ledger) SampleCount(key Key) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	window, ok := l.windows[key]
	if !ok {
		return 0
	}
	return window.len()
}

// Keys returns every key that has recorded at least one sample.
func (l *Ledger) Keys() []Key {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]Key, 0, len(l.windows))
	for key := range l.windows {
		keys = append(keys, key)
	}
	return keys
}

// Summarize aggregates one key's window.
func (l *Ledger) Summarize(key Key) Summary {
	samples := l.Snapshot(key)

	summary := Summary{Key: key, Samples: len(samples)}
	if len(samples) == 0 {
		return summary
	}

	var memSum, quotaSum float64
	var latSum time.Duration
	for _, s := range samples {
		memSum += s.MemoryMB
		quotaSum += s.Quota
		latSum += s.Latency
		if s.Latency > summary.MaxLatency {
			summary.MaxLatency = s.Latency
		}
	}

	n := float64(len(samples))
	summary.MeanMemMB = memSum / n
	summary.MeanQuota = quotaSum / n
	summary.MeanLatency = latSum / time.Duration(len(samples))
	return summary
}

// Summaries aggregates every key's window, for the dashboard query API.
func (l *Ledger) Summaries() []Summary {
	keys := l.Keys()
	summaries := make([]Summary, 0, len(keys))
	for _, key := range keys {
		summaries = append(summaries, l.Summarize(key))
	}
	return summaries
}
