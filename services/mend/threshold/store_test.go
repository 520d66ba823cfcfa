// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package threshold

import (
	"testing"
	"time"

	"github.com/tidewater-ai/mend/services/mend/ledger"
)

func testConfig() Config {
	return Config{
		Default: Threshold{
			MemoryMB: 100,
			Quota:    100,
			Latency:  100 * time.Second,
		},
		Floor: Threshold{
			MemoryMB: 10,
			Quota:    10,
			Latency:  10 * time.Second,
		},
		Ceiling: Threshold{
			MemoryMB: 1000,
			Quota:    1000,
			Latency:  1000 * time.Second,
		},
		LowWatermark:   0.5,
		HighWatermark:  0.9,
		ShrinkFactor:   0.9,
		GrowFactor:     1.1,
		ShrinkPatience: 3,
		MinSamples:     5,
	}
}

// fill records n identical samples for the key.
func fill(lg *ledger.Ledger, key ledger.Key, n int, sample ledger.Usage) {
	for i := 0; i < n; i++ {
		lg.RecordUsage(key, sample)
	}
}

func TestGetThresholdDefaultsForUnseenKey(t *testing.T) {
	lg := ledger.New(10)
	store := NewStore(lg, testConfig(), nil)

	got := store.GetThreshold(ledger.FileKey("never-seen.go"))
	if got != testConfig().Default {
		t.Errorf("GetThreshold = %+v, want default %+v", got, testConfig().Default)
	}
	if len(store.All()) != 0 {
		t.Error("default was persisted for an unseen key")
	}
}

func TestSetThresholdClamps(t *testing.T) {
	lg := ledger.New(10)
	store := NewStore(lg, testConfig(), nil)
	key := ledger.FileKey("a.go")

	tests := []struct {
		name string
		set  Threshold
		want Threshold
	}{
		{
			"within bounds unchanged",
			Threshold{MemoryMB: 200, Quota: 50, Latency: 60 * time.Second},
			Threshold{MemoryMB: 200, Quota: 50, Latency: 60 * time.Second},
		},
		{
			"below floor clamped up",
			Threshold{MemoryMB: 1, Quota: 1, Latency: time.Second},
			Threshold{MemoryMB: 10, Quota: 10, Latency: 10 * time.Second},
		},
		{
			"above ceiling clamped down",
			Threshold{MemoryMB: 5000, Quota: 5000, Latency: time.Hour},
			Threshold{MemoryMB: 1000, Quota: 1000, Latency: 1000 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := store.SetThreshold(key, tt.set)
			if got != tt.want {
				t.Errorf("SetThreshold = %+v, want %+v", got, tt.want)
			}
			if stored := store.GetThreshold(key); stored != tt.want {
				t.Errorf("GetThreshold after set = %+v, want %+v", stored, tt.want)
			}
		})
	}
}

// High usage loosens the limit immediately, ceiling-clamped. With a
// quota limit of 100 and a window mean of 95, one cycle must land on
// 100 x 1.1 = 110.
func TestAdjustGrowsAboveHighWatermark(t *testing.T) {
	lg := ledger.New(10)
	store := NewStore(lg, testConfig(), nil)
	key := ledger.FileKey("hot.go")

	fill(lg, key, 6, ledger.Usage{Quota: 95, MemoryMB: 60, Latency: 60 * time.Second})
	store.AdjustThresholds()

	got := store.GetThreshold(key)
	if got.Quota != 110 {
		t.Errorf("Quota after one grow cycle = %v, want 110", got.Quota)
	}
	// Memory mean 60 and latency mean 60s sit between the watermarks
	// (50..90) and must be untouched.
	if got.MemoryMB != 100 {
		t.Errorf("MemoryMB = %v, want unchanged 100", got.MemoryMB)
	}
	if got.Latency != 100*time.Second {
		t.Errorf("Latency = %v, want unchanged 100s", got.Latency)
	}
}

func TestAdjustGrowthIsCeilingClamped(t *testing.T) {
	cfg := testConfig()
	lg := ledger.New(10)
	store := NewStore(lg, cfg, nil)
	key := ledger.FileKey("hot.go")
	store.SetThreshold(key, Threshold{MemoryMB: 950, Quota: 950, Latency: 950 * time.Second})

	fill(lg, key, 6, ledger.Usage{Quota: 949, MemoryMB: 949, Latency: 949 * time.Second})

	// Run far more cycles than needed; the ceiling must hold.
	for i := 0; i < 20; i++ {
		store.AdjustThresholds()
	}

	got := store.GetThreshold(key)
	if got.Quota != cfg.Ceiling.Quota {
		t.Errorf("Quota = %v, want ceiling %v", got.Quota, cfg.Ceiling.Quota)
	}
	if got.MemoryMB != cfg.Ceiling.MemoryMB {
		t.Errorf("MemoryMB = %v, want ceiling %v", got.MemoryMB, cfg.Ceiling.MemoryMB)
	}
	if got.Latency != cfg.Ceiling.Latency {
		t.Errorf("Latency = %v, want ceiling %v", got.Latency, cfg.Ceiling.Latency)
	}
}

func TestAdjustShrinkWaitsForPatience(t *testing.T) {
	lg := ledger.New(10)
	store := NewStore(lg, testConfig(), nil)
	key := ledger.FileKey("cold.go")

	// Means well below the low watermark (50) on every metric.
	fill(lg, key, 6, ledger.Usage{Quota: 10, MemoryMB: 10, Latency: 10 * time.Second})

	store.AdjustThresholds()
	store.AdjustThresholds()
	if got := store.GetThreshold(key).Quota; got != 100 {
		t.Fatalf("Quota shrank after 2 cycles = %v, want 100 until patience of 3", got)
	}

	store.AdjustThresholds()
	got := store.GetThreshold(key)
	if got.Quota != 90 {
		t.Errorf("Quota after patience reached = %v, want 90", got.Quota)
	}
	if got.MemoryMB != 90 {
		t.Errorf("MemoryMB = %v, want 90", got.MemoryMB)
	}
	if got.Latency != 90*time.Second {
		t.Errorf("Latency = %v, want 90s", got.Latency)
	}
}

func TestAdjustShrinkIsFloorClamped(t *testing.T) {
	cfg := testConfig()
	lg := ledger.New(10)
	store := NewStore(lg, cfg, nil)
	key := ledger.FileKey("cold.go")

	fill(lg, key, 6, ledger.Usage{Quota: 0, MemoryMB: 0, Latency: 0})

	for i := 0; i < 200; i++ {
		store.AdjustThresholds()
	}

	got := store.GetThreshold(key)
	if got.Quota != cfg.Floor.Quota {
		t.Errorf("Quota = %v, want floor %v", got.Quota, cfg.Floor.Quota)
	}
	if got.MemoryMB != cfg.Floor.MemoryMB {
		t.Errorf("MemoryMB = %v, want floor %v", got.MemoryMB, cfg.Floor.MemoryMB)
	}
	if got.Latency != cfg.Floor.Latency {
		t.Errorf("Latency = %v, want floor %v", got.Latency, cfg.Floor.Latency)
	}
}

func TestAdjustMidRangeResetsLowStreak(t *testing.T) {
	lg := ledger.New(10)
	store := NewStore(lg, testConfig(), nil)
	key := ledger.FileKey("bursty.go")

	// Two low cycles...
	fill(lg, key, 6, ledger.Usage{Quota: 10, MemoryMB: 60, Latency: 60 * time.Second})
	store.AdjustThresholds()
	store.AdjustThresholds()

	// ...then a mid-range cycle resets the streak.
	fill(lg, key, 10, ledger.Usage{Quota: 70, MemoryMB: 60, Latency: 60 * time.Second})
	store.AdjustThresholds()

	// Two more low cycles must not be enough to shrink.
	fill(lg, key, 10, ledger.Usage{Quota: 10, MemoryMB: 60, Latency: 60 * time.Second})
	store.AdjustThresholds()
	store.AdjustThresholds()

	if got := store.GetThreshold(key).Quota; got != 100 {
		t.Errorf("Quota = %v, want 100 (streak must reset on mid-range cycle)", got)
	}
}

func TestAdjustSkipsSparseKeys(t *testing.T) {
	lg := ledger.New(10)
	store := NewStore(lg, testConfig(), nil)
	key := ledger.FileKey("sparse.go")

	// One below MinSamples.
	fill(lg, key, 4, ledger.Usage{Quota: 99, MemoryMB: 99, Latency: 99 * time.Second})
	store.AdjustThresholds()

	if got := store.GetThreshold(key); got != testConfig().Default {
		t.Errorf("sparse key adjusted: %+v", got)
	}
}

func TestAdmit(t *testing.T) {
	lg := ledger.New(10)
	store := NewStore(lg, testConfig(), nil)

	t.Run("empty window admitted", func(t *testing.T) {
		if d := store.Admit(ledger.FileKey("fresh.go")); !d.Allowed {
			t.Errorf("Admit = %+v, want allowed", d)
		}
	})

	t.Run("quota exhausted denied", func(t *testing.T) {
		key := ledger.FileKey("greedy.go")
		fill(lg, key, 3, ledger.Usage{Quota: 100})
		d := store.Admit(key)
		if d.Allowed {
			t.Fatal("Admit allowed with mean quota at the limit")
		}
		if d.Reason == "" {
			t.Error("denial carries no reason")
		}
	})

	t.Run("latency exhausted denied", func(t *testing.T) {
		key := ledger.FileKey("slow.go")
		fill(lg, key, 3, ledger.Usage{Latency: 200 * time.Second})
		if d := store.Admit(key); d.Allowed {
			t.Fatal("Admit allowed with mean latency above the limit")
		}
	})

	t.Run("under budget admitted", func(t *testing.T) {
		key := ledger.FileKey("fine.go")
		fill(lg, key, 3, ledger.Usage{Quota: 1, Latency: time.Second})
		if d := store.Admit(key); !d.Allowed {
			t.Errorf("Admit = %+v, want allowed", d)
		}
	})

	t.Run("memory does not gate", func(t *testing.T) {
		key := ledger.FileKey("heavy.go")
		fill(lg, key, 3, ledger.Usage{MemoryMB: 10000})
		if d := store.Admit(key); !d.Allowed {
			t.Errorf("Admit = %+v, memory must not gate admission", d)
		}
	})
}

func TestNewStoreFallsBackOnBadConfig(t *testing.T) {
	lg := ledger.New(10)
	store := NewStore(lg, Config{ShrinkFactor: 1.5, GrowFactor: 0.5}, nil)

	defaults := DefaultConfig()
	if store.config.ShrinkFactor != defaults.ShrinkFactor {
		t.Errorf("ShrinkFactor = %v, want default", store.config.ShrinkFactor)
	}
	if store.config.GrowFactor != defaults.GrowFactor {
		t.Errorf("GrowFactor = %v, want default", store.config.GrowFactor)
	}
	if store.config.Default == (Threshold{}) {
		t.Error("zero default threshold not replaced")
	}
}
