// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package threshold

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tidewater-ai/mend/services/mend/ledger"
	"github.com/tidewater-ai/mend/services/mend/telemetry"
)

func TestAdjusterRunsCycles(t *testing.T) {
	lg := ledger.New(10)
	store := NewStore(lg, testConfig(), nil)
	key := ledger.FileKey("hot.py")

	// Hot key: quota mean 95 against limit 100 sits above the high
	// watermark, so the first cycle should grow the quota limit.
	fill(lg, key, 6, ledger.Usage{MemoryMB: 70, Quota: 95, Latency: 70 * time.Second})

	a := NewAdjuster(store, 20*time.Millisecond, nil, nil)
	a.Start(context.Background())
	defer a.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if store.GetThreshold(key).Quota > 100 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("quota never grew: %+v", store.GetThreshold(key))
}

func TestAdjusterStopHaltsLoop(t *testing.T) {
	lg := ledger.New(10)
	store := NewStore(lg, testConfig(), nil)

	a := NewAdjuster(store, 10*time.Millisecond, nil, nil)
	a.Start(context.Background())
	a.Stop()

	key := ledger.FileKey("late.py")
	fill(lg, key, 6, ledger.Usage{Quota: 95})
	time.Sleep(50 * time.Millisecond)

	if got := store.GetThreshold(key).Quota; got != 100 {
		t.Errorf("quota = %v after Stop, want untouched 100", got)
	}
}

func TestAdjusterStopIdempotent(t *testing.T) {
	a := NewAdjuster(NewStore(ledger.New(10), testConfig(), nil), time.Minute, nil, nil)
	a.Stop() // never started
	a.Start(context.Background())
	a.Stop()
	a.Stop()
}

func TestAdjusterRestart(t *testing.T) {
	lg := ledger.New(10)
	store := NewStore(lg, testConfig(), nil)
	a := NewAdjuster(store, 20*time.Millisecond, nil, nil)

	a.Start(context.Background())
	a.Stop()

	key := ledger.FileKey("again.py")
	fill(lg, key, 6, ledger.Usage{Quota: 95})

	a.Start(context.Background())
	defer a.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if store.GetThreshold(key).Quota > 100 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("restarted adjuster never ran a cycle")
}

func TestAdjusterCountsAdjustmentCycles(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	metrics, err := telemetry.NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}

	a := NewAdjuster(NewStore(ledger.New(10), testConfig(), nil), 10*time.Millisecond, metrics, nil)
	a.Start(context.Background())
	defer a.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cycleCount(t, reader) >= 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("adjustment cycle counter never incremented")
}

// cycleCount reads the current mend_threshold_adjustments_total sum.
func cycleCount(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "mend_threshold_adjustments_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestNewAdjusterDefaultInterval(t *testing.T) {
	a := NewAdjuster(NewStore(ledger.New(10), testConfig(), nil), 0, nil, nil)
	if a.interval != DefaultAdjustInterval {
		t.Errorf("interval = %v, want %v", a.interval, DefaultAdjustInterval)
	}
}
