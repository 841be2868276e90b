// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/tribo-social/tribo/services/tagengine/catalog"
	"github.com/tribo-social/tribo/services/tagengine/config"
	"github.com/tribo-social/tribo/services/tagengine/engine"
	"github.com/tribo-social/tribo/services/tagengine/notify"
	"github.com/tribo-social/tribo/services/tagengine/observability"
	"github.com/tribo-social/tribo/services/tagengine/profile"
	"github.com/tribo-social/tribo/services/tagengine/routes"
	"github.com/tribo-social/tribo/services/tagengine/storage/badgerstore"
)

// engineComponents bundles everything runServe and runOnce share.
type engineComponents struct {
	catalog    *catalog.Catalog
	store      *badgerstore.Store
	scheduler  *engine.Scheduler
	reconciler *engine.Reconciler
	dispatcher *notify.Dispatcher
	metrics    *observability.EngineMetrics
}

// buildEngine wires the reconciliation stack from configuration.
//
// The caller owns the returned components and must call close() during
// shutdown: it stops the notification dispatcher and closes the store.
func buildEngine(cfg config.Config, inMemory bool) (*engineComponents, func(), error) {
	cat := catalog.New()
	if cfg.CatalogPath != "" {
		if err := cat.LoadFile(cfg.CatalogPath); err != nil {
			return nil, nil, fmt.Errorf("failed to load tag catalog: %w", err)
		}
	} else {
		cat.Replace(catalog.DefaultDefinitions())
		slog.Info("No catalog file configured, using built-in catalog", "tags", cat.Len())
	}

	storeCfg := badgerstore.DefaultConfig(cfg.BadgerDir)
	if inMemory {
		storeCfg = badgerstore.InMemoryConfig()
	}
	store, err := badgerstore.Open(storeCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open assignment store: %w", err)
	}

	metrics := observability.NewEngineMetrics(prometheus.DefaultRegisterer)

	var notifier engine.Notifier
	var dispatcher *notify.Dispatcher
	if cfg.WebhookURL != "" {
		sink := notify.NewWebhookSink(cfg.WebhookURL)
		dispatcher = notify.NewDispatcher(sink, metrics, notify.DefaultDispatcherConfig())
		notifier = dispatcher
	} else {
		slog.Info("No webhook URL configured, notifications disabled")
	}

	clock := engine.SystemClock{}
	profileClient := profile.NewClient(cfg.ProfileBaseURL, clock)
	reconciler := engine.NewReconciler(store, cat, notifier, clock)
	scheduler := engine.NewScheduler(profileClient, profileClient, store,
		reconciler, cat, metrics, cfg.Scheduler)

	components := &engineComponents{
		catalog:    cat,
		store:      store,
		scheduler:  scheduler,
		reconciler: reconciler,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
	cleanup := func() {
		if dispatcher != nil {
			dispatcher.Stop()
		}
		if err := store.Close(); err != nil {
			slog.Error("failed to close assignment store", "error", err)
		}
	}
	return components, cleanup, nil
}

// runServe starts the daily scheduler, the catalog watcher, and the
// admin API, then blocks until SIGINT/SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Init the tracer ---
	shutdownTracer, err := initTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to setup the OTLP tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	components, cleanup, err := buildEngine(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.CatalogPath != "" {
		watcher := catalog.NewWatcher(components.catalog, cfg.CatalogPath)
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to watch catalog file: %w", err)
		}
		defer watcher.Stop()
	}

	if err := components.scheduler.Start(ctx); err != nil {
		return err
	}
	defer components.scheduler.Stop()

	router := gin.Default()
	if cfg.OTLPEndpoint != "" {
		router.Use(otelgin.Middleware("tagengine"))
	}
	routes.SetupRoutes(router, routes.Deps{
		Scheduler:   components.scheduler,
		Reconciler:  components.reconciler,
		Store:       components.store,
		Catalog:     components.catalog,
		CatalogPath: cfg.CatalogPath,
		Gatherer:    prometheus.DefaultGatherer,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("Starting tag engine admin API", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("Shutting down tag engine")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
