// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"sync"
)

// semaphore is a counting semaphore bounding per-batch concurrency.
//
// Thread Safety: safe for concurrent use.
type semaphore struct {
	ch chan struct{}
}

func newSemaphore(capacity int) *semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &semaphore{ch: make(chan struct{}, capacity)}
}

// acquire blocks until a slot is available or the context is cancelled.
func (s *semaphore) acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *semaphore) release() {
	select {
	case <-s.ch:
	default:
		panic("semaphore: release without acquire")
	}
}

// userResult is the outcome of reconciling one user.
type userResult struct {
	userID    string
	committed []Transition
	err       error
}

// userWork reconciles a single user and returns its result.
type userWork func(ctx context.Context, userID string) userResult

// processBatch runs one batch of users with bounded concurrency and waits
// for the whole batch to finish.
//
// # Description
//
// Every user in the batch gets a goroutine gated by a semaphore sized to
// the batch bound, so never more than one batch's worth of evaluate +
// reconcile work is in flight. Results flow through a single channel
// drained here, which is the only place run accounting is aggregated —
// no shared mutable counters between workers.
//
// Per-user failures are returned as results, never propagated; context
// cancellation stops un-started users but lets in-flight ones finish.
func processBatch(ctx context.Context, users []string, bound int, work userWork) []userResult {
	sem := newSemaphore(bound)
	resultCh := make(chan userResult, len(users))

	var wg sync.WaitGroup
	for _, userID := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()

			if err := sem.acquire(ctx); err != nil {
				resultCh <- userResult{userID: userID, err: err}
				return
			}
			defer sem.release()

			resultCh <- work(ctx, userID)
		}(userID)
	}

	wg.Wait()
	close(resultCh)

	results := make([]userResult, 0, len(users))
	for r := range resultCh {
		results = append(results, r)
	}
	return results
}
