// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	inMemoryStore bool

	rootCmd = &cobra.Command{
		Use:   "tagengine",
		Short: "The Tribo tag reconciliation engine",
		Long: `Tagengine keeps user tag assignments converged with the
declarative tag catalog. It runs a daily reconciliation over all
active users and exposes an admin API for manual runs, manual
grants and revokes, and catalog management.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the admin API and the daily reconciliation scheduler",
		RunE:  runServe,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Execute a single reconciliation run and exit",
		RunE:  runOnce,
	}
)

func init() {
	runCmd.Flags().BoolVar(&inMemoryStore, "in-memory", false,
		"use an in-memory assignment store (dry-run against a fresh state)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
}
