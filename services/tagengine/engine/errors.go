// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import "errors"

// Error taxonomy for the reconciliation engine. Callers branch with
// errors.Is; implementations wrap these with fmt.Errorf("...: %w", ...).
var (
	// ErrMetricsUnavailable means a user's snapshot could not be
	// obtained (user gone or profile storage unreachable). Per-user,
	// recoverable: the scheduler skips the user and records the failure
	// in the run report.
	ErrMetricsUnavailable = errors.New("user metrics unavailable")

	// ErrPersistenceFailure means a tag assignment write failed.
	// Per-transition, recoverable: the reconciler stops the remaining
	// transitions for that user and reports partial success.
	ErrPersistenceFailure = errors.New("tag persistence failure")

	// ErrSourceUnavailable means the active-user query itself failed.
	// Run-level, fatal: the run aborts with zero progress.
	ErrSourceUnavailable = errors.New("active user source unavailable")

	// ErrRunInProgress means a reconciliation run is already in its
	// Processing state; overlapping runs are refused to bound resource
	// usage.
	ErrRunInProgress = errors.New("reconciliation run already in progress")

	// ErrUnknownTag means a tag ID is not present in the catalog.
	ErrUnknownTag = errors.New("unknown tag")
)
