// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the
// tag engine.
//
// # Description
//
// This package implements Prometheus metrics for monitoring
// reconciliation runs. Metrics include:
//   - Run counters (by outcome)
//   - User processing counters (succeeded/failed)
//   - Transition counters (by kind)
//   - Run duration histograms
//   - Notification delivery counters
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tribo-social/tribo/services/tagengine/engine"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "tribo"

// Subsystem for tag engine metrics
const engineSubsystem = "tagengine"

// EngineMetrics holds all Prometheus metrics for tag reconciliation.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring run outcomes
// and notification delivery. Initialize once at startup via NewEngineMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type EngineMetrics struct {
	// RunsTotal counts reconciliation runs by outcome.
	// Labels: outcome (completed, incomplete, failed)
	RunsTotal *prometheus.CounterVec

	// UsersProcessedTotal counts users examined by result.
	// Labels: result (succeeded, failed)
	UsersProcessedTotal *prometheus.CounterVec

	// TransitionsTotal counts committed tag transitions by kind.
	// Labels: kind (add, remove)
	TransitionsTotal *prometheus.CounterVec

	// RunDurationSeconds measures wall-clock run duration by outcome.
	// Labels: outcome (completed, incomplete, failed)
	RunDurationSeconds *prometheus.HistogramVec

	// ActiveRuns tracks whether a run is currently in flight (0 or 1).
	ActiveRuns prometheus.Gauge

	// NotificationsTotal counts notification outcomes.
	// Labels: result (delivered, queue_full, rate_wait, delivery_failed)
	NotificationsTotal *prometheus.CounterVec
}

// NewEngineMetrics creates and registers all tag engine metrics.
//
// # Description
//
// Registers against the provided registerer. Production code passes
// prometheus.DefaultRegisterer; tests pass a fresh registry to avoid
// duplicate-registration panics.
//
// # Inputs
//
//   - reg: The registry to register metrics with.
//
// # Outputs
//
//   - *EngineMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if the same registerer sees the same metrics twice.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	factory := promauto.With(reg)

	return &EngineMetrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "runs_total",
				Help:      "Total reconciliation runs by outcome",
			},
			[]string{"outcome"},
		),

		UsersProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "users_processed_total",
				Help:      "Total users examined during reconciliation by result",
			},
			[]string{"result"},
		),

		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "transitions_total",
				Help:      "Total committed tag transitions by kind",
			},
			[]string{"kind"},
		),

		RunDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock reconciliation run duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"outcome"},
		),

		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "active_runs",
				Help:      "Whether a reconciliation run is currently in flight",
			},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "notifications_total",
				Help:      "Total notification outcomes by result",
			},
			[]string{"result"},
		),
	}
}

// =============================================================================
// Engine Hooks
// =============================================================================

// RunStarted marks a run as in flight.
func (m *EngineMetrics) RunStarted() {
	m.ActiveRuns.Set(1)
}

// RunCompleted records a finished run from its report.
func (m *EngineMetrics) RunCompleted(report *engine.RunReport) {
	m.ActiveRuns.Set(0)

	outcome := "completed"
	if report.Incomplete {
		outcome = "incomplete"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDurationSeconds.WithLabelValues(outcome).Observe(report.Duration().Seconds())

	m.UsersProcessedTotal.WithLabelValues("succeeded").Add(float64(report.UsersSucceeded))
	m.UsersProcessedTotal.WithLabelValues("failed").Add(float64(report.UsersFailed()))
	m.TransitionsTotal.WithLabelValues(string(engine.KindAdd)).Add(float64(report.Additions))
	m.TransitionsTotal.WithLabelValues(string(engine.KindRemove)).Add(float64(report.Removals))
}

// RunFailed records a run that aborted before processing users.
func (m *EngineMetrics) RunFailed() {
	m.ActiveRuns.Set(0)
	m.RunsTotal.WithLabelValues("failed").Inc()
}

// =============================================================================
// Notification Hooks
// =============================================================================

// NotificationDropped records a dropped or failed notification.
func (m *EngineMetrics) NotificationDropped(reason string) {
	m.NotificationsTotal.WithLabelValues(reason).Inc()
}

// NotificationDelivered records a successful delivery.
func (m *EngineMetrics) NotificationDelivered() {
	m.NotificationsTotal.WithLabelValues("delivered").Inc()
}

// Ensure EngineMetrics satisfies the engine's run recorder contract.
var _ engine.RunRecorder = (*EngineMetrics)(nil)
