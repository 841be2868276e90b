// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the tag engine admin API onto a gin router.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tribo-social/tribo/services/tagengine/catalog"
	"github.com/tribo-social/tribo/services/tagengine/engine"
	"github.com/tribo-social/tribo/services/tagengine/handlers"
)

// Deps carries the collaborators the admin API exposes.
type Deps struct {
	Scheduler   *engine.Scheduler
	Reconciler  *engine.Reconciler
	Store       engine.TagStore
	Catalog     *catalog.Catalog
	CatalogPath string
	Gatherer    prometheus.Gatherer
}

// SetupRoutes registers all admin endpoints.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck(deps.Scheduler))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		runs := v1.Group("/reconciliation/runs")
		{
			runs.POST("", handlers.TriggerRun(deps.Scheduler))
			runs.GET("/latest", handlers.LatestRun(deps.Scheduler))
		}

		users := v1.Group("/users")
		{
			users.GET("/:userId/tags", handlers.ListUserTags(deps.Store))
			users.POST("/:userId/tags/:tagId", handlers.GrantTag(deps.Reconciler))
			users.DELETE("/:userId/tags/:tagId", handlers.RevokeTag(deps.Reconciler))
		}

		cat := v1.Group("/catalog")
		{
			cat.GET("", handlers.GetCatalog(deps.Catalog))
			cat.POST("/reload", handlers.ReloadCatalog(deps.Catalog, deps.CatalogPath))
		}
	}
}
