// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package threshold holds the current per-component resource limits and
// adapts them from observed usage. Limits tighten slowly (hysteresis with
// a patience counter) and loosen immediately, clamped to a configured
// floor and ceiling per metric.
package threshold

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tidewater-ai/mend/services/mend/ledger"
)

// Threshold is the current {memory, quota, latency} limit set for one key.
// All three limits are always positive and within [floor, ceiling].
type Threshold struct {
	// MemoryMB is the per-run heap budget in megabytes.
	MemoryMB float64 `json:"memory_mb"`

	// Quota is the rolling mean of generator calls allowed per run.
	Quota float64 `json:"quota"`

	// Latency is the rolling mean pipeline latency budget.
	Latency time.Duration `json:"latency"`
}

// Config tunes the store's defaults and the adjustment algorithm.
type Config struct {
	// Default is assigned on first reference to an unseen key.
	Default Threshold

	// Floor and Ceiling clamp every adjustment, per metric.
	Floor   Threshold
	Ceiling Threshold

	// LowWatermark is the fraction of a limit below which usage is
	// considered low. Sustained low usage tightens the limit.
	LowWatermark float64

	// HighWatermark is the fraction of a limit above which usage is
	// considered high. High usage loosens the limit immediately.
	HighWatermark float64

	// ShrinkFactor multiplies a limit when tightening (< 1).
	ShrinkFactor float64

	// GrowFactor multiplies a limit when loosening (> 1).
	GrowFactor float64

	// ShrinkPatience is the number of consecutive low cycles required
	// before tightening. Prevents oscillation on bursty usage.
	ShrinkPatience int

	// MinSamples is the minimum window population before a key is
	// adjusted at all. Sparse keys stay at their current limits.
	MinSamples int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Default: Threshold{
			MemoryMB: 256,
			Quota:    1,
			Latency:  30 * time.Second,
		},
		Floor: Threshold{
			MemoryMB: 32,
			Quota:    0.25,
			Latency:  2 * time.Second,
		},
		Ceiling: Threshold{
			MemoryMB: 2048,
			Quota:    8,
			Latency:  5 * time.Minute,
		},
		LowWatermark:   0.5,
		HighWatermark:  0.9,
		ShrinkFactor:   0.9,
		GrowFactor:     1.1,
		ShrinkPatience: 3,
		MinSamples:     5,
	}
}

// metric indexes the three adjusted limits.
type metric int

const (
	metricMemory metric = iota
	metricQuota
	metricLatency
	metricCount
)

// AdmitDecision is the result of an admission check.
type AdmitDecision struct {
	// Allowed is false when the key's rolling usage is at or above its
	// quota or latency budget.
	Allowed bool

	// Reason names the exceeded metric when Allowed is false.
	Reason string
}

// Store holds the current Threshold per key.
//
// # Thread Safety
//
// Safe for concurrent use. Admission checks read under RLock; the
// periodic adjuster is the single writer. Adjustment of all three
// metrics for a key happens under one write lock, so readers never
// observe a partially updated threshold.
type Store struct {
	mu sync.RWMutex

	config     Config
	ledger     *ledger.Ledger
	thresholds map[ledger.Key]Threshold

	// lowStreaks counts consecutive below-low-watermark cycles per key
	// and metric, feeding the shrink patience gate.
	lowStreaks map[ledger.Key]*[metricCount]int

	logger *slog.Logger
}

// NewStore creates a threshold store backed by the given ledger.
//
// Inputs:
//
//	lg - The usage ledger consulted for admission and adjustment.
//	config - Store configuration. Zero factors fall back to defaults.
//	logger - Logger for adjustment diagnostics (nil for default).
func NewStore(lg *ledger.Ledger, config Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if config.ShrinkFactor <= 0 || config.ShrinkFactor >= 1 {
		config.ShrinkFactor = defaults.ShrinkFactor
	}
	if config.GrowFactor <= 1 {
		config.GrowFactor = defaults.GrowFactor
	}
	if config.LowWatermark <= 0 {
		config.LowWatermark = defaults.LowWatermark
	}
	if config.HighWatermark <= 0 {
		config.HighWatermark = defaults.HighWatermark
	}
	if config.ShrinkPatience <= 0 {
		config.ShrinkPatience = defaults.ShrinkPatience
	}
	if config.MinSamples <= 0 {
		config.MinSamples = defaults.MinSamples
	}
	if config.Default == (Threshold{}) {
		config.Default = defaults.Default
	}
	if config.Floor == (Threshold{}) {
		config.Floor = defaults.Floor
	}
	if config.Ceiling == (Threshold{}) {
		config.Ceiling = defaults.Ceiling
	}

	return &Store{
		config:     config,
		ledger:     lg,
		thresholds: make(map[ledger.Key]Threshold),
		lowStreaks: make(map[ledger.Key]*[metricCount]int),
		logger:     logger,
	}
}

// GetThreshold returns the key's current limits, or the default for an
// unseen key. The default is not persisted until the key is first
// adjusted or set; unseen keys are indistinguishable from default keys.
func (s *Store) GetThreshold(key ledger.Key) Threshold {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.thresholds[key]; ok {
		return t
	}
	return s.config.Default
}

// SetThreshold overrides a key's limits, clamped to [floor, ceiling].
func (s *Store) SetThreshold(key ledger.Key, t Threshold) Threshold {
	clamped := s.clamp(t)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.thresholds[key] = clamped
	return clamped
}

// All returns a copy of every explicitly tracked threshold.
func (s *Store) All() map[ledger.Key]Threshold {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[ledger.Key]Threshold, len(s.thresholds))
	for k, t := range s.thresholds {
		out[k] = t
	}
	return out
}

// Admit decides whether a new pipeline run may proceed for the key.
//
// # Description
//
// The rolling mean of the key's usage window is compared against the
// current quota and latency limits. A mean at or above either budget
// denies admission. Memory is tracked and adjusted but does not gate
// admission: a run's heap delta is only known after it completes.
//
// Keys with an empty window are always admitted.
func (s *Store) Admit(key ledger.Key) AdmitDecision {
	samples := s.ledger.Snapshot(key)
	if len(samples) == 0 {
		return AdmitDecision{Allowed: true}
	}

	var quotaSum float64
	var latSum time.Duration
	for _, smp := range samples {
		quotaSum += smp.Quota
		latSum += smp.Latency
	}
	meanQuota := quotaSum / float64(len(samples))
	meanLatency := latSum / time.Duration(len(samples))

	t := s.GetThreshold(key)
	if meanQuota >= t.Quota {
		return AdmitDecision{Allowed: false, Reason: "quota budget exhausted"}
	}
	if meanLatency >= t.Latency {
		return AdmitDecision{Allowed: false, Reason: "latency budget exhausted"}
	}
	return AdmitDecision{Allowed: true}
}

// AdjustThresholds runs one adjustment cycle over every key the ledger
// has samples for.
//
// # Description
//
// Per key and per metric, independently: compute the mean of the current
// usage window. A mean above HighWatermark x limit loosens the limit by
// GrowFactor immediately, ceiling-clamped. A mean below LowWatermark x
// limit for ShrinkPatience consecutive cycles tightens it by
// ShrinkFactor, floor-clamped. Means between the watermarks leave the
// limit unchanged and reset the low streak. Keys with fewer than
// MinSamples samples are skipped entirely.
func (s *Store) AdjustThresholds() {
	for _, key := range s.ledger.Keys() {
		samples := s.ledger.Snapshot(key)
		if len(samples) < s.config.MinSamples {
			continue
		}

		var memSum, quotaSum float64
		var latSum time.Duration
		for _, smp := range samples {
			memSum += smp.MemoryMB
			quotaSum += smp.Quota
			latSum += smp.Latency
		}
		n := float64(len(samples))
		means := [metricCount]float64{
			metricMemory: memSum / n,
			metricQuota:  quotaSum / n,
			metricLatency: (latSum / time.Duration(len(samples))).
				Seconds(),
		}

		s.adjustKey(key, means)
	}
}

// adjustKey applies one cycle to a single key. All three metrics are
// updated under one write lock so readers see the set atomically.
func (s *Store) adjustKey(key ledger.Key, means [metricCount]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.thresholds[key]
	if !ok {
		current = s.config.Default
	}
	streaks, ok := s.lowStreaks[key]
	if !ok {
		streaks = &[metricCount]int{}
		s.lowStreaks[key] = streaks
	}

	limits := [metricCount]float64{
		metricMemory:  current.MemoryMB,
		metricQuota:   current.Quota,
		metricLatency: current.Latency.Seconds(),
	}
	floors := [metricCount]float64{
		metricMemory:  s.config.Floor.MemoryMB,
		metricQuota:   s.config.Floor.Quota,
		metricLatency: s.config.Floor.Latency.Seconds(),
	}
	ceilings := [metricCount]float64{
		metricMemory:  s.config.Ceiling.MemoryMB,
		metricQuota:   s.config.Ceiling.Quota,
		metricLatency: s.config.Ceiling.Latency.Seconds(),
	}

	changed := false
	for m := metric(0); m < metricCount; m++ {
		limit := limits[m]
		switch {
		case means[m] > s.config.HighWatermark*limit:
			streaks[m] = 0
			next := min(limit*s.config.GrowFactor, ceilings[m])
			if next != limit {
				limits[m] = next
				changed = true
			}
		case means[m] < s.config.LowWatermark*limit:
			streaks[m]++
			if streaks[m] >= s.config.ShrinkPatience {
				streaks[m] = 0
				next := max(limit*s.config.ShrinkFactor, floors[m])
				if next != limit {
					limits[m] = next
					changed = true
				}
			}
		default:
			// Between watermarks: hold steady.
			streaks[m] = 0
		}
	}

	next := Threshold{
		MemoryMB: limits[metricMemory],
		Quota:    limits[metricQuota],
		Latency:  time.Duration(limits[metricLatency] * float64(time.Second)),
	}
	s.thresholds[key] = next

	if changed {
		s.logger.Debug("threshold adjusted",
			"key", key.String(),
			"memory_mb", next.MemoryMB,
			"quota", next.Quota,
			"latency", next.Latency,
		)
	}
}

// clamp bounds every metric of t to [floor, ceiling].
func (s *Store) clamp(t Threshold) Threshold {
	return Threshold{
		MemoryMB: clampFloat(t.MemoryMB, s.config.Floor.MemoryMB, s.config.Ceiling.MemoryMB),
		Quota:    clampFloat(t.Quota, s.config.Floor.Quota, s.config.Ceiling.Quota),
		Latency:  clampDuration(t.Latency, s.config.Floor.Latency, s.config.Ceiling.Latency),
	}
}

func clampFloat(v, floor, ceiling float64) float64 {
	if v < floor {
		return floor
	}
	if v > ceiling {
		return ceiling
	}
	return v
}

func clampDuration(v, floor, ceiling time.Duration) time.Duration {
	if v < floor {
		return floor
	}
	if v > ceiling {
		return ceiling
	}
	return v
}
