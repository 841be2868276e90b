// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tribo-social/tribo/services/tagengine/catalog"
)

// =============================================================================
// Scheduler Configuration
// =============================================================================

// SchedulerConfig holds configuration for the reconciliation scheduler.
type SchedulerConfig struct {
	// BatchSize bounds both partition size and per-batch concurrency.
	// Default: 10.
	BatchSize int

	// SinceDays defines the active-user window: users who posted or
	// were created within this many days. Default: 30.
	SinceDays int

	// RunAtHour is the local hour (0-23) of the daily background run.
	// Default: 3.
	RunAtHour int
}

// DefaultSchedulerConfig returns production defaults.
//
// # Outputs
//
//   - SchedulerConfig: Batch size 10 (bounds DB connections and memory),
//     30-day activity window, daily run at 03:00.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BatchSize: 10,
		SinceDays: 30,
		RunAtHour: 3,
	}
}

// RunRecorder receives run lifecycle events for metrics export. May be nil.
type RunRecorder interface {
	// RunStarted is called when a run enters Processing.
	RunStarted()

	// RunCompleted is called with the finished report, including
	// incomplete (cancelled) runs.
	RunCompleted(report *RunReport)

	// RunFailed is called when the active-user fetch aborts a run.
	RunFailed()
}

// =============================================================================
// Scheduler
// =============================================================================

// Scheduler drives reconciliation runs over the active-user population.
//
// # Description
//
// One run walks the population in fixed-size batches; inside a batch,
// per-user evaluate + reconcile work runs concurrently up to the batch
// size, and the next batch starts only when the whole batch has finished.
// That back-pressure bounds database connection usage and memory.
//
// Per-user failures are recorded in the RunReport and never stop the run;
// only failure to obtain the active-user list aborts it. Overlapping runs
// are refused with ErrRunInProgress: the per-transition idempotence of the
// reconciler makes a race merely wasteful, not unsafe, but overlap is
// still disallowed to bound resource usage.
//
// # Thread Safety
//
// All public methods are safe for concurrent use.
type Scheduler struct {
	provider   MetricsProvider
	source     ActiveUserSource
	store      TagStore
	reconciler *Reconciler
	catalog    *catalog.Catalog
	recorder   RunRecorder
	config     SchedulerConfig
	clock      Clock

	mu         sync.Mutex
	state      RunState
	inProgress bool
	lastReport *RunReport

	done    chan struct{}
	running bool
}

// NewScheduler creates a reconciliation scheduler.
//
// # Inputs
//
//   - provider: Per-user metrics snapshots.
//   - source: Active-user population query.
//   - store: Assignment reads (current tag set per user).
//   - reconciler: Commits transitions and dispatches notifications.
//   - cat: The tag catalog; read once per run for a stable view.
//   - recorder: Run metrics sink. May be nil.
//   - config: Batch size, activity window, daily hour.
func NewScheduler(provider MetricsProvider, source ActiveUserSource, store TagStore,
	reconciler *Reconciler, cat *catalog.Catalog, recorder RunRecorder, config SchedulerConfig) *Scheduler {

	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSchedulerConfig().BatchSize
	}
	if config.SinceDays <= 0 {
		config.SinceDays = DefaultSchedulerConfig().SinceDays
	}
	return &Scheduler{
		provider:   provider,
		source:     source,
		store:      store,
		reconciler: reconciler,
		catalog:    cat,
		recorder:   recorder,
		config:     config,
		clock:      SystemClock{},
		state:      StateIdle,
		done:       make(chan struct{}),
	}
}

// State returns the current run state.
func (s *Scheduler) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastReport returns the most recent run report, or nil before the first
// run.
func (s *Scheduler) LastReport() *RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// RunOnce performs a single reconciliation pass.
//
// # Description
//
// Fetches the active-user population, partitions it into batches, and
// reconciles every user, aggregating a RunReport. Cancelling the context
// is graceful: the in-flight batch finishes, remaining batches are
// skipped, and the report comes back marked Incomplete with a nil error.
//
// # Outputs
//
//   - *RunReport: The aggregate of the pass. Nil only on fatal errors.
//   - error: ErrRunInProgress if a run is active, or an
//     ErrSourceUnavailable-wrapped error when the population query fails
//     (fatal, zero progress). Per-user failures are in the report, never
//     here.
func (s *Scheduler) RunOnce(ctx context.Context) (*RunReport, error) {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	s.inProgress = true
	s.state = StateFetching
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
	}()

	report := &RunReport{
		RunID:     uuid.NewString(),
		StartTime: s.clock.Now(),
		Failures:  make([]UserFailure, 0),
	}

	userIDs, err := s.source.ListActiveUserIDs(ctx, s.config.SinceDays)
	if err != nil {
		s.setState(StateFailed)
		if s.recorder != nil {
			s.recorder.RunFailed()
		}
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		return nil, fmt.Errorf("fetch active users: %w", err)
	}

	report.UsersConsidered = len(userIDs)
	s.setState(StateProcessing)
	if s.recorder != nil {
		s.recorder.RunStarted()
	}

	slog.Info("reconciliation run started",
		"run_id", report.RunID,
		"users", len(userIDs),
		"batch_size", s.config.BatchSize,
	)

	// A stable catalog view for the whole run; a concurrent reload
	// affects the next run, not this one.
	defs := s.catalog.Definitions()

	for _, batch := range partition(userIDs, s.config.BatchSize) {
		if ctx.Err() != nil {
			report.Incomplete = true
			break
		}
		results := processBatch(ctx, batch, s.config.BatchSize, func(ctx context.Context, userID string) userResult {
			return s.reconcileUser(ctx, userID, defs)
		})
		s.aggregate(report, results)
	}

	report.EndTime = s.clock.Now()
	s.mu.Lock()
	s.state = StateCompleted
	s.lastReport = report
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RunCompleted(report)
	}

	slog.Info("reconciliation run completed",
		"run_id", report.RunID,
		"users_considered", report.UsersConsidered,
		"users_succeeded", report.UsersSucceeded,
		"users_failed", report.UsersFailed(),
		"additions", report.Additions,
		"removals", report.Removals,
		"incomplete", report.Incomplete,
		"duration_ms", report.DurationMs(),
	)
	return report, nil
}

// Start begins the daily background run loop.
//
// # Description
//
// Arranges for RunOnce to fire once per day at the configured hour. The
// loop runs until Stop is called or the context is cancelled. A tick that
// finds a run already in progress is skipped with a warning rather than
// queued.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // reset for potential restart
	s.mu.Unlock()

	slog.Info("reconciliation scheduler starting",
		"run_at_hour", s.config.RunAtHour,
		"batch_size", s.config.BatchSize,
		"since_days", s.config.SinceDays,
	)

	go s.runLoop(ctx)
	return nil
}

// Stop gracefully stops the background loop. An in-flight run finishes;
// only future ticks are cancelled. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.done)
	s.running = false
}

// =============================================================================
// Internal
// =============================================================================

func (s *Scheduler) setState(state RunState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// runLoop sleeps until the next daily tick, runs, and repeats.
func (s *Scheduler) runLoop(ctx context.Context) {
	for {
		next := nextRunAt(s.clock.Now(), s.config.RunAtHour)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("reconciliation scheduler stopped (context cancelled)")
			return
		case <-s.done:
			timer.Stop()
			slog.Info("reconciliation scheduler stopped (stop requested)")
			return
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					slog.Warn("scheduled run skipped, previous run still in progress")
				} else {
					slog.Error("scheduled reconciliation run failed", "error", err)
				}
			}
		}
	}
}

// nextRunAt returns the next occurrence of the given local hour strictly
// after now.
func nextRunAt(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// reconcileUser runs the per-user pipeline: snapshot, evaluate, apply.
func (s *Scheduler) reconcileUser(ctx context.Context, userID string, defs []catalog.TagDefinition) userResult {
	m, err := s.provider.Snapshot(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrMetricsUnavailable) {
			err = fmt.Errorf("%w: %v", ErrMetricsUnavailable, err)
		}
		return userResult{userID: userID, err: err}
	}

	held, err := s.store.ListAssignments(ctx, userID)
	if err != nil {
		return userResult{userID: userID, err: fmt.Errorf("%w: list assignments: %v", ErrPersistenceFailure, err)}
	}

	transitions := Evaluate(held, m, defs)
	if len(transitions) == 0 {
		return userResult{userID: userID}
	}

	committed, err := s.reconciler.Apply(ctx, userID, transitions)
	return userResult{userID: userID, committed: committed, err: err}
}

// aggregate folds one batch's results into the report. Called only from
// the run goroutine; the result channel drain in processBatch is the
// concurrency-safe accumulation point.
func (s *Scheduler) aggregate(report *RunReport, results []userResult) {
	for _, r := range results {
		for _, t := range r.committed {
			switch t.Kind {
			case KindAdd:
				report.Additions++
			case KindRemove:
				report.Removals++
			}
		}
		if r.err != nil {
			report.Failures = append(report.Failures, UserFailure{
				UserID: r.userID,
				Reason: r.err.Error(),
			})
			slog.Warn("user reconciliation failed",
				"user_id", r.userID, "error", r.err)
			continue
		}
		report.UsersSucceeded++
	}
}

// partition splits ids into fixed-size batches, preserving order.
func partition(ids []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}
