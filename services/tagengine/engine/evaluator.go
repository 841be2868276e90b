// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"log/slog"
	"time"

	"github.com/tribo-social/tribo/services/tagengine/catalog"
)

// Evaluate computes the transitions that converge a user's tag set to the
// catalog's current verdict.
//
// # Description
//
// Pure and deterministic: no I/O, no clock reads (time-derived fields are
// precomputed in the snapshot). Transitions are emitted in catalog order
// so output is reproducible.
//
// Rules, per definition:
//
//   - Absent tag, acquisition predicate true: emit Add. Manual-acquisition
//     tags never fire automatically.
//   - Held tag: emit Remove when the explicit removal predicate fires, or
//     when a non-manual tag's acquisition predicate no longer holds.
//   - Administrative overrides pin state: a true override blocks automatic
//     removal, a false override blocks acquisition and sheds the tag if
//     currently held.
//   - Contradictory authoring (acquisition and removal both true): removal
//     takes precedence and the inconsistency is logged as a warning, never
//     a failure.
//
// # Inputs
//
//   - held: Current assignments keyed by tag ID (assignedAt values unused
//     by evaluation, passed as returned by the store).
//   - m: The user's metrics snapshot.
//   - defs: Catalog definitions in stable order.
//
// # Outputs
//
//   - []Transition: Proposed transitions in catalog order. Empty when the
//     user is already converged.
func Evaluate(held map[string]time.Time, m *UserMetrics, defs []catalog.TagDefinition) []Transition {
	transitions := make([]Transition, 0)

	for _, def := range defs {
		_, has := held[def.ID]
		override, pinned := m.Overrides[def.ID]

		acquireFires := predicateMatches(def.Acquire, m)
		removeFires := def.Remove != nil && predicateMatches(def.Remove, m)

		if acquireFires && removeFires {
			slog.Warn("catalog inconsistency: acquisition and removal predicates both satisfied, removal takes precedence",
				"tag_id", def.ID, "user_id", m.UserID)
		}

		if has {
			if pinned && override {
				continue // administratively held
			}
			shedByOverride := pinned && !override
			lapsed := !def.ManualOnly() && !acquireFires
			if removeFires || lapsed || shedByOverride {
				transitions = append(transitions, Transition{
					UserID: m.UserID, TagID: def.ID, Kind: KindRemove,
				})
			}
			continue
		}

		if !acquireFires {
			continue
		}
		if pinned && !override {
			continue // acquisition administratively suppressed
		}
		if removeFires {
			continue // removal precedence: never add a tag that would immediately clear
		}
		transitions = append(transitions, Transition{
			UserID: m.UserID, TagID: def.ID, Kind: KindAdd,
		})
	}

	return transitions
}

// predicateMatches evaluates a structured predicate against a snapshot.
//
// A nil or manual predicate never matches automatically; an empty
// predicate matches nothing (caught at catalog load, but guarded here
// too). All set fields must hold.
func predicateMatches(p *catalog.Predicate, m *UserMetrics) bool {
	if p == nil || p.Manual || p.IsEmpty() {
		return false
	}

	if p.MinAccountAgeDays != nil && m.AccountAgeDays < *p.MinAccountAgeDays {
		return false
	}
	if p.MaxAccountAgeDays != nil && m.AccountAgeDays > *p.MaxAccountAgeDays {
		return false
	}
	if p.MinReactions != nil && m.Reactions < *p.MinReactions {
		return false
	}
	if p.MinWarnings != nil && m.Warnings < *p.MinWarnings {
		return false
	}
	if p.MinDaysSinceWarning != nil {
		if m.DaysSinceLastWarning == nil || *m.DaysSinceLastWarning < *p.MinDaysSinceWarning {
			return false
		}
	}
	if p.Silenced != nil && m.Silenced != *p.Silenced {
		return false
	}
	if p.Verified != nil && m.Verified != *p.Verified {
		return false
	}
	return true
}
