// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tidewater-ai/mend/services/mend/ledger"
	"github.com/tidewater-ai/mend/services/mend/threshold"
)

// HealthCheck handles GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// thresholdView flattens a keyed threshold for JSON output.
type thresholdView struct {
	ComponentType string  `json:"component_type"`
	Name          string  `json:"name"`
	MemoryMB      float64 `json:"memory_mb"`
	Quota         float64 `json:"quota"`
	LatencyMS     int64   `json:"latency_ms"`
}

// ListThresholds handles GET /v1/thresholds. Only explicitly tracked
// keys appear; unseen keys are at the default and not listed.
func ListThresholds(store *threshold.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		all := store.All()
		views := make([]thresholdView, 0, len(all))
		for key, t := range all {
			views = append(views, thresholdView{
				ComponentType: string(key.Type),
				Name:          key.Name,
				MemoryMB:      t.MemoryMB,
				Quota:         t.Quota,
				LatencyMS:     t.Latency.Milliseconds(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"thresholds": views})
	}
}

// setThresholdRequest is the body for a manual threshold override.
type setThresholdRequest struct {
	ComponentType string  `json:"component_type" binding:"required,oneof=file function class method"`
	Name          string  `json:"name" binding:"required"`
	MemoryMB      float64 `json:"memory_mb" binding:"gt=0"`
	Quota         float64 `json:"quota" binding:"gt=0"`
	LatencyMS     int64   `json:"latency_ms" binding:"gt=0"`
}

// SetThreshold handles PUT /v1/thresholds. The stored value is clamped
// to the configured floor and ceiling; the response carries what was
// actually stored.
func SetThreshold(store *threshold.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setThresholdRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		key := ledger.Key{Type: ledger.ComponentType(req.ComponentType), Name: req.Name}
		stored := store.SetThreshold(key, threshold.Threshold{
			MemoryMB: req.MemoryMB,
			Quota:    req.Quota,
			Latency:  time.Duration(req.LatencyMS) * time.Millisecond,
		})

		c.JSON(http.StatusOK, thresholdView{
			ComponentType: string(key.Type),
			Name:          key.Name,
			MemoryMB:      stored.MemoryMB,
			Quota:         stored.Quota,
			LatencyMS:     stored.Latency.Milliseconds(),
		})
	}
}

// ListUsage handles GET /v1/usage: per-key window aggregates, never raw
// samples.
func ListUsage(lg *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"usage": lg.Summaries()})
	}
}
