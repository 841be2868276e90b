// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package profile is the HTTP client for the profile service's internal
// API. It implements the engine's MetricsProvider and ActiveUserSource
// interfaces; the profile service itself (and the queries that materialize
// the metrics) live outside this repository.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tribo-social/tribo/services/tagengine/engine"
)

// Client talks to the profile service.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying http.Client is shared.
type Client struct {
	baseURL    string
	httpClient *http.Client
	clock      engine.Clock
}

// NewClient creates a profile service client.
//
// # Inputs
//
//   - baseURL: Profile service base URL (e.g. http://profile:8080).
//   - clock: Source of "now" for age and silencing derivation. Nil means
//     system time.
func NewClient(baseURL string, clock engine.Clock) *Client {
	if clock == nil {
		clock = engine.SystemClock{}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      clock,
	}
}

// metricsResponse is the wire shape of the profile service's metrics
// endpoint. Pointer fields distinguish "absent" from zero so a truncated
// response is an error, never silently read as "no activity".
type metricsResponse struct {
	UserID        string          `json:"userId"`
	CreatedAt     *time.Time      `json:"createdAt"`
	Reactions     *int64          `json:"reactions"`
	Warnings      *int            `json:"warnings"`
	LastWarningAt *time.Time      `json:"lastWarningAt"`
	SilencedUntil *time.Time      `json:"silencedUntil"`
	Verified      *bool           `json:"verified"`
	TagOverrides  map[string]bool `json:"tagOverrides"`
}

// Snapshot fetches the current metrics snapshot for a user.
//
// # Description
//
// Calls GET /internal/v1/users/{id}/metrics and derives the time-based
// fields (account age, days since last warning, silencing state) with the
// injected clock, so the evaluator downstream never reads a clock.
//
// # Outputs
//
//   - *engine.UserMetrics: The snapshot.
//   - error: ErrMetricsUnavailable-wrapped when the user does not exist,
//     the service is unreachable, or the response is missing required
//     fields.
func (c *Client) Snapshot(ctx context.Context, userID string) (*engine.UserMetrics, error) {
	endpoint := fmt.Sprintf("%s/internal/v1/users/%s/metrics", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build metrics request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrMetricsUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: user %s not found", engine.ErrMetricsUnavailable, userID)
	default:
		return nil, fmt.Errorf("%w: metrics endpoint returned %d", engine.ErrMetricsUnavailable, resp.StatusCode)
	}

	var body metricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode metrics: %v", engine.ErrMetricsUnavailable, err)
	}

	// A missing field is an error, not a default: zeroed metrics would
	// read as "no activity" and strip tags the user still deserves.
	if body.CreatedAt == nil || body.Reactions == nil || body.Warnings == nil || body.Verified == nil {
		return nil, fmt.Errorf("%w: incomplete metrics for user %s", engine.ErrMetricsUnavailable, userID)
	}

	now := c.clock.Now()

	m := &engine.UserMetrics{
		UserID:         userID,
		AccountAgeDays: fullDaysBetween(*body.CreatedAt, now),
		Reactions:      *body.Reactions,
		Warnings:       *body.Warnings,
		Silenced:       body.SilencedUntil != nil && body.SilencedUntil.After(now),
		Verified:       *body.Verified,
		Overrides:      body.TagOverrides,
	}
	if body.LastWarningAt != nil {
		days := fullDaysBetween(*body.LastWarningAt, now)
		m.DaysSinceLastWarning = &days
	}
	return m, nil
}

// activeUsersResponse is the wire shape of the active-user query.
type activeUsersResponse struct {
	UserIDs []string `json:"userIds"`
}

// ListActiveUserIDs fetches the IDs of users active within the window.
//
// # Outputs
//
//   - []string: Active user IDs, in the service's order.
//   - error: ErrSourceUnavailable-wrapped when the query cannot run; this
//     is fatal to a reconciliation run.
func (c *Client) ListActiveUserIDs(ctx context.Context, sinceDays int) ([]string, error) {
	endpoint := fmt.Sprintf("%s/internal/v1/users/active?since_days=%s",
		c.baseURL, strconv.Itoa(sinceDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build active users request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: active users endpoint returned %d", engine.ErrSourceUnavailable, resp.StatusCode)
	}

	var body activeUsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode active users: %v", engine.ErrSourceUnavailable, err)
	}
	if body.UserIDs == nil {
		return nil, fmt.Errorf("%w: response missing userIds", engine.ErrSourceUnavailable)
	}
	return body.UserIDs, nil
}

// Ensure Client satisfies the engine collaborator interfaces.
var (
	_ engine.MetricsProvider  = (*Client)(nil)
	_ engine.ActiveUserSource = (*Client)(nil)
)

// fullDaysBetween returns complete 24h days from a to b, never negative.
func fullDaysBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}
