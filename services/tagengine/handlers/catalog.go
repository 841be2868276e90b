// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tribo-social/tribo/services/tagengine/catalog"
)

// GetCatalog returns the active tag definitions.
func GetCatalog(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tags": cat.Definitions()})
	}
}

// ReloadCatalog re-reads the catalog file.
//
// # Description
//
// A failed reload keeps the previous definitions active, so a bad file
// never degrades a running engine. When the engine runs on the built-in
// catalog there is no file to reload and the request yields 409.
func ReloadCatalog(cat *catalog.Catalog, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if path == "" {
			c.JSON(http.StatusConflict, gin.H{"error": "no catalog file configured"})
			return
		}
		slog.Info("Received request to reload tag catalog", "path", path)

		if err := cat.LoadFile(path); err != nil {
			slog.Error("catalog reload failed, previous definitions remain active",
				"path", path, "error", err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reloaded", "tags": cat.Len()})
	}
}
