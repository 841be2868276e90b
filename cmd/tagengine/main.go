// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command tagengine runs the Tribo tag reconciliation engine.
//
// The engine keeps every user's tag set converged with the declarative
// tag catalog: a daily scheduled run (plus an admin trigger) evaluates
// each active user's profile metrics against the catalog rules and
// commits the resulting additions and removals.
//
// # Environment Variables
//
//   - TAGENGINE_LISTEN_ADDR: Admin API bind address (default: :8087)
//   - TAGENGINE_CATALOG_PATH: YAML tag catalog file (default: built-in catalog)
//   - TAGENGINE_BADGER_DIR: Assignment store directory (default: ./data/tagengine)
//   - TAGENGINE_PROFILE_URL: Profile service base URL (default: http://localhost:8081)
//   - TAGENGINE_WEBHOOK_URL: Notification endpoint (default: notifications disabled)
//   - TAGENGINE_OTLP_ENDPOINT: OTLP gRPC collector (default: tracing disabled)
//   - TAGENGINE_BATCH_SIZE: Concurrent users per batch (default: 10)
//   - TAGENGINE_ACTIVE_SINCE_DAYS: Active-user window in days (default: 30)
//   - TAGENGINE_RUN_AT_HOUR: Daily run hour, local time (default: 3)
//
// # Usage
//
//	# Build
//	go build -o tagengine ./cmd/tagengine
//
//	# Serve the admin API with the daily scheduler
//	./tagengine serve
//
//	# Execute a single reconciliation run and exit
//	./tagengine run
package main

import (
	"log/slog"
	"os"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
