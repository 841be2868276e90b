// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the tag engine admin API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tribo-social/tribo/services/tagengine/engine"
)

// TriggerRun starts a reconciliation run synchronously and returns its report.
//
// # Description
//
// Manual trigger for operators. Runs to completion in the request; the
// daily loop stays untouched. A run already in flight yields 409.
func TriggerRun(scheduler *engine.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		slog.Info("Received request to trigger reconciliation run")

		report, err := scheduler.RunOnce(c.Request.Context())
		if err != nil {
			if errors.Is(err, engine.ErrRunInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": "a reconciliation run is already in progress"})
				return
			}
			slog.Error("reconciliation run failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation run failed"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// LatestRun returns the most recent run report, 404 before the first run.
func LatestRun(scheduler *engine.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := scheduler.LastReport()
		if report == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no reconciliation run has completed yet"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
