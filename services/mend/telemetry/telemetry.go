// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry wires the OpenTelemetry meter to a Prometheus
// exporter and defines the subsystem's metric instruments.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

var (
	prometheusHandler   http.Handler
	prometheusHandlerMu sync.RWMutex
)

// Init sets up the MeterProvider with a Prometheus reader.
//
// Description:
//
//	After Init returns successfully, otel.Meter() works throughout the
//	process and MetricsHandler() serves the scrape endpoint.
//
// Inputs:
//
//	serviceName - Value of the service.name resource attribute.
//
// Outputs:
//
//	shutdown - Cleanup function to call on exit. Must be called.
//	error - Non-nil if exporter creation fails.
//
// Thread Safety: Call once at application startup.
func Init(serviceName string) (shutdown func() error, err error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", serviceName),
	)

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	prometheusHandlerMu.Lock()
	prometheusHandler = promhttp.Handler()
	prometheusHandlerMu.Unlock()

	return func() error {
		return mp.Shutdown(context.Background())
	}, nil
}

// MetricsHandler returns the HTTP handler for the /metrics endpoint,
// or nil before Init has run.
//
// Thread Safety: Safe for concurrent use.
func MetricsHandler() http.Handler {
	prometheusHandlerMu.RLock()
	defer prometheusHandlerMu.RUnlock()
	return prometheusHandler
}
