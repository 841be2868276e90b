// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the tag reconciliation engine: a periodic pass
// that evaluates every active user against the tag catalog and converges
// each user's persisted tag set to the catalog's current verdict, emitting
// notifications only on state transitions.
package engine

import (
	"context"
	"time"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// MetricsProvider returns the current measurable facts about a user.
//
// # Description
//
// The engine never computes metrics itself; it consumes snapshots
// materialized by the profile storage. Implementations must fail with an
// ErrMetricsUnavailable-wrapped error when the user no longer exists or
// storage is unreachable. They must never return partial or zeroed data:
// a missing field would read as "no activity" and cause incorrect tag
// removal downstream.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the scheduler calls
// Snapshot from multiple per-user workers at once.
type MetricsProvider interface {
	// Snapshot returns the current metrics snapshot for one user.
	Snapshot(ctx context.Context, userID string) (*UserMetrics, error)
}

// TagStore persists user/tag assignments.
//
// # Description
//
// Each mutation is an atomic unit: InsertAssignment is insert-or-ignore,
// DeleteAssignment is delete-if-exists. The boolean results let the
// reconciler distinguish real transitions from no-ops, which is what makes
// re-running the engine idempotent.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use across users. The
// engine never mutates the same (user, tag) row from two workers.
type TagStore interface {
	// ListAssignments returns the user's current assignments keyed by
	// tag ID, with the time each was assigned.
	ListAssignments(ctx context.Context, userID string) (map[string]time.Time, error)

	// InsertAssignment records an assignment. Returns true only if a
	// new row was written.
	InsertAssignment(ctx context.Context, userID, tagID string, assignedAt time.Time) (bool, error)

	// DeleteAssignment removes an assignment. Returns true only if a
	// row existed and was deleted.
	DeleteAssignment(ctx context.Context, userID, tagID string) (bool, error)
}

// ActiveUserSource lists the user population a run should consider.
type ActiveUserSource interface {
	// ListActiveUserIDs returns the IDs of users who posted or were
	// created within the last sinceDays days. A failure here is fatal
	// to the run and must be an ErrSourceUnavailable-wrapped error.
	ListActiveUserIDs(ctx context.Context, sinceDays int) ([]string, error)
}

// Notifier receives committed transitions flagged for notification.
//
// # Description
//
// Delivery is best-effort and asynchronous: Notify must not block the
// reconciler, and a delivery failure must never roll back the committed
// assignment. The engine never retries; retry policy, if any, belongs to
// the notification transport.
type Notifier interface {
	Notify(userID, tagID string, kind TransitionKind)
}

// =============================================================================
// Value Types
// =============================================================================

// UserMetrics is the read-only snapshot one evaluation consumes.
//
// Constructed fresh per evaluation cycle by the MetricsProvider and never
// persisted by the engine. Time-derived fields (age, silencing) are
// precomputed by the provider so evaluation itself never reads a clock.
type UserMetrics struct {
	// UserID identifies the user the snapshot belongs to.
	UserID string

	// AccountAgeDays is full days since account creation.
	AccountAgeDays int

	// Reactions is the lifetime count of reactions received.
	Reactions int64

	// Warnings is the count of official moderation warnings.
	Warnings int

	// DaysSinceLastWarning is full days since the most recent warning.
	// Nil when the user has never been warned.
	DaysSinceLastWarning *int

	// Silenced reports whether a silencing window is currently active.
	Silenced bool

	// Verified reports administrative verification status.
	Verified bool

	// Overrides pins per-user tag state set by administrators: true
	// holds the tag against automatic removal, false suppresses
	// automatic acquisition. Keyed by tag ID.
	Overrides map[string]bool
}

// TransitionKind is the direction of a tag transition.
type TransitionKind string

const (
	// KindAdd proposes acquiring a tag.
	KindAdd TransitionKind = "add"

	// KindRemove proposes removing a tag.
	KindRemove TransitionKind = "remove"
)

// Transition is one proposed Add or Remove of one tag for one user.
//
// Produced fresh each run by the evaluator; never persisted standalone.
// It only triggers a store write and, optionally, a notification.
type Transition struct {
	UserID string         `json:"userId"`
	TagID  string         `json:"tagId"`
	Kind   TransitionKind `json:"kind"`
}
