// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the mend HTTP API onto a gin engine.
package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/tidewater-ai/mend/services/mend/events"
	"github.com/tidewater-ai/mend/services/mend/handlers"
	"github.com/tidewater-ai/mend/services/mend/ledger"
	"github.com/tidewater-ai/mend/services/mend/registry"
	"github.com/tidewater-ai/mend/services/mend/telemetry"
	"github.com/tidewater-ai/mend/services/mend/threshold"
)

// SetupRoutes registers every endpoint of the mend API.
func SetupRoutes(
	router *gin.Engine,
	reg *registry.Registry,
	store *threshold.Store,
	lg *ledger.Ledger,
	bus *events.Bus,
	logger *slog.Logger,
) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := router.Group("/v1")
	{
		errs := v1.Group("/errors")
		{
			errs.POST("", handlers.AddError(reg))
			errs.GET("", handlers.ListErrors(reg))
			errs.GET("/:id", handlers.GetError(reg))
			errs.POST("/:id/process", handlers.ProcessError(reg))
			errs.POST("/:id/fix", handlers.ApplyFix(reg))
			errs.POST("/:id/cancel", handlers.CancelError(reg))
		}

		v1.GET("/thresholds", handlers.ListThresholds(store))
		v1.PUT("/thresholds", handlers.SetThreshold(store))
		v1.GET("/usage", handlers.ListUsage(lg))

		v1.GET("/events", gin.WrapF(events.WSHandler(bus, logger)))
	}
}
