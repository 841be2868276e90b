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
	"sync"
	"testing"
	"time"

	"github.com/tribo-social/tribo/services/tagengine/catalog"
)

// =============================================================================
// Fakes
// =============================================================================

// memStore is an in-memory TagStore with optional fault injection.
type memStore struct {
	mu          sync.Mutex
	assignments map[string]map[string]time.Time

	failInsertFor string // tag ID whose insert fails
	failDeleteFor string
	failListFor   string // user ID whose list fails
}

func newMemStore() *memStore {
	return &memStore{assignments: make(map[string]map[string]time.Time)}
}

func (s *memStore) ListAssignments(_ context.Context, userID string) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID == s.failListFor {
		return nil, fmt.Errorf("simulated list failure")
	}
	out := make(map[string]time.Time, len(s.assignments[userID]))
	for k, v := range s.assignments[userID] {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) InsertAssignment(_ context.Context, userID, tagID string, assignedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tagID == s.failInsertFor {
		return false, fmt.Errorf("simulated insert failure")
	}
	if s.assignments[userID] == nil {
		s.assignments[userID] = make(map[string]time.Time)
	}
	if _, exists := s.assignments[userID][tagID]; exists {
		return false, nil
	}
	s.assignments[userID][tagID] = assignedAt
	return true, nil
}

func (s *memStore) DeleteAssignment(_ context.Context, userID, tagID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tagID == s.failDeleteFor {
		return false, fmt.Errorf("simulated delete failure")
	}
	if _, exists := s.assignments[userID][tagID]; !exists {
		return false, nil
	}
	delete(s.assignments[userID], tagID)
	return true, nil
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Transition
}

func (n *recordingNotifier) Notify(userID, tagID string, kind TransitionKind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Transition{UserID: userID, TagID: tagID, Kind: kind})
}

func (n *recordingNotifier) all() []Transition {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Transition(nil), n.events...)
}

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	c.Replace(catalog.DefaultDefinitions())
	return c
}

// =============================================================================
// Apply Tests
// =============================================================================

// TestReconciler_Apply_CommitsAndReportsChanges tests the basic add/remove
// commit path.
func TestReconciler_Apply_CommitsAndReportsChanges(t *testing.T) {
	store := newMemStore()
	clock := &FixedClock{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := NewReconciler(store, defaultCatalog(t), nil, clock)

	committed, err := r.Apply(context.Background(), "u1", []Transition{
		{UserID: "u1", TagID: "veterano", Kind: KindAdd},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(committed) != 1 {
		t.Fatalf("Expected 1 committed transition, got %d", len(committed))
	}

	tags, _ := store.ListAssignments(context.Background(), "u1")
	if at, ok := tags["veterano"]; !ok || !at.Equal(clock.T) {
		t.Errorf("Expected veterano assigned at %v, got %v (present=%v)", clock.T, at, ok)
	}
}

// TestReconciler_Apply_IsIdempotent tests that re-applying the same
// transitions commits nothing the second time.
func TestReconciler_Apply_IsIdempotent(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store, defaultCatalog(t), nil, nil)
	transitions := []Transition{
		{UserID: "u1", TagID: "veterano", Kind: KindAdd},
		{UserID: "u1", TagID: "recem-chegado", Kind: KindRemove},
	}

	first, err := r.Apply(context.Background(), "u1", transitions)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(first) != 1 { // the remove is a no-op, tag was never held
		t.Fatalf("Expected 1 committed transition, got %d", len(first))
	}

	second, err := r.Apply(context.Background(), "u1", transitions)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("Expected re-apply to commit nothing, got %v", second)
	}
}

// TestReconciler_Apply_PartialFailureKeepsEarlierCommits tests that a storage
// failure mid-list returns the transitions committed before it.
func TestReconciler_Apply_PartialFailureKeepsEarlierCommits(t *testing.T) {
	store := newMemStore()
	store.failInsertFor = "querido"
	r := NewReconciler(store, defaultCatalog(t), nil, nil)

	committed, err := r.Apply(context.Background(), "u1", []Transition{
		{UserID: "u1", TagID: "veterano", Kind: KindAdd},
		{UserID: "u1", TagID: "querido", Kind: KindAdd},
		{UserID: "u1", TagID: "silenciado", Kind: KindAdd},
	})
	if !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("Expected ErrPersistenceFailure, got: %v", err)
	}
	if len(committed) != 1 || committed[0].TagID != "veterano" {
		t.Errorf("Expected only veterano committed before failure, got %v", committed)
	}

	tags, _ := store.ListAssignments(context.Background(), "u1")
	if _, held := tags["silenciado"]; held {
		t.Error("Expected transitions after the failure to be skipped")
	}
}

// =============================================================================
// Notification Tests
// =============================================================================

// TestReconciler_NotifiesOnlyFlaggedCommits tests that notifications fire
// for flagged definitions on real state changes only.
func TestReconciler_NotifiesOnlyFlaggedCommits(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	r := NewReconciler(store, defaultCatalog(t), notifier, nil)

	// recem-chegado carries no notification flags, veterano notifies on acquire.
	_, err := r.Apply(context.Background(), "u1", []Transition{
		{UserID: "u1", TagID: "recem-chegado", Kind: KindAdd},
		{UserID: "u1", TagID: "veterano", Kind: KindAdd},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	events := notifier.all()
	if len(events) != 1 || events[0].TagID != "veterano" || events[0].Kind != KindAdd {
		t.Fatalf("Expected exactly one veterano acquire notification, got %v", events)
	}
}

// TestReconciler_NoSpuriousNotificationOnRerun tests that a converged re-run
// produces zero notifications.
func TestReconciler_NoSpuriousNotificationOnRerun(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	r := NewReconciler(store, defaultCatalog(t), notifier, nil)
	transitions := []Transition{{UserID: "u1", TagID: "veterano", Kind: KindAdd}}

	if _, err := r.Apply(context.Background(), "u1", transitions); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := r.Apply(context.Background(), "u1", transitions); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if events := notifier.all(); len(events) != 1 {
		t.Errorf("Expected exactly one notification across re-runs, got %v", events)
	}
}

// =============================================================================
// Grant / Revoke Tests
// =============================================================================

// TestReconciler_GrantVerifiedBadge tests the administrative grant path for
// a manual tag: assigned once, notified once, survives repeats.
func TestReconciler_GrantVerifiedBadge(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	r := NewReconciler(store, defaultCatalog(t), notifier, nil)

	granted, err := r.Grant(context.Background(), "u1", "verificado")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !granted {
		t.Fatal("Expected first grant to assign the tag")
	}

	granted, err = r.Grant(context.Background(), "u1", "verificado")
	if err != nil {
		t.Fatalf("Expected no error on repeat grant, got: %v", err)
	}
	if granted {
		t.Error("Expected repeat grant to be a no-op")
	}

	if events := notifier.all(); len(events) != 1 {
		t.Errorf("Expected exactly one acquisition notification, got %v", events)
	}
}

// TestReconciler_GrantUnknownTag tests that grants of undeclared tags fail
// with ErrUnknownTag.
func TestReconciler_GrantUnknownTag(t *testing.T) {
	r := NewReconciler(newMemStore(), defaultCatalog(t), nil, nil)

	if _, err := r.Grant(context.Background(), "u1", "no-such-tag"); !errors.Is(err, ErrUnknownTag) {
		t.Errorf("Expected ErrUnknownTag, got: %v", err)
	}
	if _, err := r.Revoke(context.Background(), "u1", "no-such-tag"); !errors.Is(err, ErrUnknownTag) {
		t.Errorf("Expected ErrUnknownTag, got: %v", err)
	}
}

// TestReconciler_RevokeIsIdempotent tests that revoking an absent tag is a
// successful no-op.
func TestReconciler_RevokeIsIdempotent(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store, defaultCatalog(t), nil, nil)

	if _, err := r.Grant(context.Background(), "u1", "verificado"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	revoked, err := r.Revoke(context.Background(), "u1", "verificado")
	if err != nil || !revoked {
		t.Fatalf("Expected first revoke to remove the tag, got revoked=%v err=%v", revoked, err)
	}

	revoked, err = r.Revoke(context.Background(), "u1", "verificado")
	if err != nil {
		t.Fatalf("Expected no error on repeat revoke, got: %v", err)
	}
	if revoked {
		t.Error("Expected repeat revoke to be a no-op")
	}
}
