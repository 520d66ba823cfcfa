// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the mend HTTP API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tidewater-ai/mend/services/mend"
	"github.com/tidewater-ai/mend/services/mend/registry"
)

// statusFor maps subsystem sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mend.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mend.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, mend.ErrInvalidState), errors.Is(err, mend.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, mend.ErrEmptyContent):
		return http.StatusBadRequest
	case errors.Is(err, mend.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AddError handles POST /v1/errors.
func AddError(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var report mend.Report
		if err := c.ShouldBindJSON(&report); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec, err := reg.AddError(report)
		if err != nil {
			slog.Warn("report rejected", "file", report.FilePath, "error", err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

// ListErrors handles GET /v1/errors with optional status, error_type
// and file_path query filters.
func ListErrors(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter registry.Filter
		if err := c.ShouldBindQuery(&filter); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"errors": reg.ListErrors(filter)})
	}
}

// GetError handles GET /v1/errors/:id.
func GetError(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := reg.GetError(c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// ProcessError handles POST /v1/errors/:id/process. The fix attempt
// runs asynchronously; 202 means it was dispatched.
func ProcessError(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := reg.ProcessError(id); err != nil {
			slog.Warn("process dispatch rejected", "error_id", id, "error", err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "processing", "error_id": id})
	}
}

// applyFixRequest is the body for the manual fix path.
type applyFixRequest struct {
	Content string `json:"content" binding:"required"`
}

// ApplyFix handles POST /v1/errors/:id/fix: a manually supplied fix
// that goes through validation, apply and verify but not generation.
func ApplyFix(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var req applyFixRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := reg.ApplyFix(id, req.Content); err != nil {
			slog.Warn("manual fix rejected", "error_id", id, "error", err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "processing", "error_id": id})
	}
}

// CancelError handles POST /v1/errors/:id/cancel.
func CancelError(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := reg.CancelError(id); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "cancelling", "error_id": id})
	}
}
