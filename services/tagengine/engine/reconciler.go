// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tribo-social/tribo/services/tagengine/catalog"
)

// Reconciler applies transitions for one user against persisted tag state.
//
// # Description
//
// Each transition is an independent atomic unit: insert-or-ignore for Add,
// delete-if-exists for Remove. Re-applying an already-applied transition
// commits nothing, which is what makes the whole engine safe to re-run at
// any time. A storage failure partway through a user's list leaves the
// already-applied transitions in effect; no multi-transition rollback is
// needed because transitions for different tags are order-independent.
//
// Committed transitions whose definition flags notification are handed to
// the Notifier. Notification delivery is decoupled from tag state: it can
// fail or be dropped without affecting what was committed.
//
// # Thread Safety
//
// Safe for concurrent use across users. The engine never reconciles the
// same user from two workers at once.
type Reconciler struct {
	store    TagStore
	catalog  *catalog.Catalog
	notifier Notifier
	clock    Clock
}

// NewReconciler creates a reconciler.
//
// # Inputs
//
//   - store: Assignment persistence.
//   - cat: The tag catalog, used to look up notification flags.
//   - notifier: Receives committed, notification-flagged transitions.
//     May be nil to disable notifications (tests, one-shot CLI runs).
//   - clock: Source of assignedAt timestamps.
func NewReconciler(store TagStore, cat *catalog.Catalog, notifier Notifier, clock Clock) *Reconciler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Reconciler{
		store:    store,
		catalog:  cat,
		notifier: notifier,
		clock:    clock,
	}
}

// Apply commits a user's transitions.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - userID: The user the transitions belong to.
//   - transitions: Proposed transitions, typically from Evaluate.
//
// # Outputs
//
//   - []Transition: The transitions actually committed, in input order.
//     No-ops (adding a present tag, removing an absent one) are excluded.
//   - error: ErrPersistenceFailure-wrapped on a storage write failure. The
//     committed slice still holds everything applied before the failure;
//     remaining transitions are skipped. The reconciler never retries.
func (r *Reconciler) Apply(ctx context.Context, userID string, transitions []Transition) ([]Transition, error) {
	committed := make([]Transition, 0, len(transitions))

	for _, t := range transitions {
		var changed bool
		var err error

		switch t.Kind {
		case KindAdd:
			changed, err = r.store.InsertAssignment(ctx, userID, t.TagID, r.clock.Now())
		case KindRemove:
			changed, err = r.store.DeleteAssignment(ctx, userID, t.TagID)
		default:
			return committed, fmt.Errorf("%w: unknown transition kind %q", ErrPersistenceFailure, t.Kind)
		}

		if err != nil {
			return committed, fmt.Errorf("%w: %s %s for user %s: %v",
				ErrPersistenceFailure, t.Kind, t.TagID, userID, err)
		}
		if !changed {
			continue
		}

		committed = append(committed, t)
		r.dispatchNotification(t)
	}

	return committed, nil
}

// Grant is the administrative acquisition path for manual tags (and a
// forced grant for any known tag). It commits through the same
// insert-or-ignore path as automatic reconciliation, so repeating a grant
// is a no-op and notifies at most once.
//
// # Outputs
//
//   - bool: True if the tag was newly assigned.
//   - error: ErrUnknownTag if the tag is not in the catalog, or an
//     ErrPersistenceFailure-wrapped storage error.
func (r *Reconciler) Grant(ctx context.Context, userID, tagID string) (bool, error) {
	if _, ok := r.catalog.Lookup(tagID); !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTag, tagID)
	}
	committed, err := r.Apply(ctx, userID, []Transition{{UserID: userID, TagID: tagID, Kind: KindAdd}})
	return len(committed) > 0, err
}

// Revoke is the administrative removal path. Removing an absent tag is a
// no-op.
func (r *Reconciler) Revoke(ctx context.Context, userID, tagID string) (bool, error) {
	if _, ok := r.catalog.Lookup(tagID); !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTag, tagID)
	}
	committed, err := r.Apply(ctx, userID, []Transition{{UserID: userID, TagID: tagID, Kind: KindRemove}})
	return len(committed) > 0, err
}

// dispatchNotification forwards a committed transition to the notifier
// when its definition asks for it. Fire-and-forget: the notifier contract
// guarantees this never blocks.
func (r *Reconciler) dispatchNotification(t Transition) {
	if r.notifier == nil {
		return
	}
	def, ok := r.catalog.Lookup(t.TagID)
	if !ok {
		// Definition removed between evaluate and apply; the commit
		// stands, only the notification decision is lost.
		slog.Warn("committed transition references tag missing from catalog",
			"tag_id", t.TagID, "user_id", t.UserID)
		return
	}
	if (t.Kind == KindAdd && def.NotifyOnAcquire) || (t.Kind == KindRemove && def.NotifyOnRemove) {
		r.notifier.Notify(t.UserID, t.TagID, t.Kind)
	}
}
