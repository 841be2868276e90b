// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads tag engine configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/tribo-social/tribo/services/tagengine/engine"
)

// Config contains all tag engine configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// ListenAddr is the admin API bind address.
	ListenAddr string

	// CatalogPath is the YAML tag catalog file. Empty means the built-in
	// catalog with no hot reload.
	CatalogPath string

	// BadgerDir is the assignment store directory.
	BadgerDir string

	// ProfileBaseURL is the profile service base URL.
	ProfileBaseURL string

	// WebhookURL is the notification endpoint. Empty disables notifications.
	WebhookURL string

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables tracing.
	OTLPEndpoint string

	// Scheduler contains batch sizing and run timing.
	Scheduler engine.SchedulerConfig
}

// Default returns the default configuration.
//
// Outputs:
//   - Config: Default configuration with sensible values.
func Default() Config {
	return Config{
		ListenAddr:     ":8087",
		CatalogPath:    "",
		BadgerDir:      "./data/tagengine",
		ProfileBaseURL: "http://localhost:8081",
		WebhookURL:     "",
		OTLPEndpoint:   "",
		Scheduler:      engine.DefaultSchedulerConfig(),
	}
}

// Load builds the configuration from defaults plus TAGENGINE_* environment
// overrides.
//
// # Outputs
//
//   - Config: The merged configuration.
//   - error: Non-nil when an override fails to parse or validation fails.
func Load() (Config, error) {
	cfg := Default()

	if v := os.Getenv("TAGENGINE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TAGENGINE_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("TAGENGINE_BADGER_DIR"); v != "" {
		cfg.BadgerDir = v
	}
	if v := os.Getenv("TAGENGINE_PROFILE_URL"); v != "" {
		cfg.ProfileBaseURL = v
	}
	if v := os.Getenv("TAGENGINE_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("TAGENGINE_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}

	if v := os.Getenv("TAGENGINE_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TAGENGINE_BATCH_SIZE %q: %w", v, err)
		}
		cfg.Scheduler.BatchSize = n
	}
	if v := os.Getenv("TAGENGINE_ACTIVE_SINCE_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TAGENGINE_ACTIVE_SINCE_DAYS %q: %w", v, err)
		}
		cfg.Scheduler.SinceDays = n
	}
	if v := os.Getenv("TAGENGINE_RUN_AT_HOUR"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TAGENGINE_RUN_AT_HOUR %q: %w", v, err)
		}
		cfg.Scheduler.RunAtHour = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Scheduler.BatchSize)
	}
	if c.Scheduler.SinceDays <= 0 {
		return fmt.Errorf("active window must be positive, got %d days", c.Scheduler.SinceDays)
	}
	if c.Scheduler.RunAtHour < 0 || c.Scheduler.RunAtHour > 23 {
		return fmt.Errorf("run hour must be in [0,23], got %d", c.Scheduler.RunAtHour)
	}
	if c.ProfileBaseURL == "" {
		return fmt.Errorf("profile base URL must not be empty")
	}
	if c.BadgerDir == "" {
		return fmt.Errorf("badger directory must not be empty")
	}
	return nil
}
