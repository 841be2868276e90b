// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import "time"

// RunState is the lifecycle state of a reconciliation run.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateFetching   RunState = "fetching"
	StateProcessing RunState = "processing"
	StateCompleted  RunState = "completed"
	StateFailed     RunState = "failed"
)

// UserFailure records one user the run could not reconcile.
type UserFailure struct {
	// UserID is the user that failed.
	UserID string `json:"userId"`

	// Reason is the error cause, human-readable.
	Reason string `json:"reason"`
}

// RunReport aggregates one scheduler pass.
//
// Built during the run and logged after completion; the engine itself
// keeps only the most recent report, long-term persistence is an external
// concern.
type RunReport struct {
	// RunID uniquely identifies the run.
	RunID string `json:"runId"`

	// StartTime and EndTime bound the run's wall clock.
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`

	// UsersConsidered is the size of the active-user population.
	UsersConsidered int `json:"usersConsidered"`

	// UsersSucceeded is the count of users fully reconciled.
	UsersSucceeded int `json:"usersSucceeded"`

	// Failures lists users that could not be reconciled, with causes.
	Failures []UserFailure `json:"failures,omitempty"`

	// Additions and Removals count committed transitions.
	Additions int `json:"additions"`
	Removals  int `json:"removals"`

	// Incomplete is true when the run was cancelled between batches and
	// stopped before considering the whole population.
	Incomplete bool `json:"incomplete"`
}

// Duration returns the run's total wall-clock duration.
func (r *RunReport) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// DurationMs returns the duration in milliseconds for logging.
func (r *RunReport) DurationMs() int64 {
	return r.Duration().Milliseconds()
}

// UsersFailed returns the number of failed users.
func (r *RunReport) UsersFailed() int {
	return len(r.Failures)
}

// HasFailures returns true if any user failed during the run.
func (r *RunReport) HasFailures() bool {
	return len(r.Failures) > 0
}
