// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"testing"
	"time"

	"github.com/tribo-social/tribo/services/tagengine/catalog"
)

// =============================================================================
// Test Helpers
// =============================================================================

func intPtr(i int) *int       { return &i }
func int64Ptr(i int64) *int64 { return &i }
func boolPtr(b bool) *bool    { return &b }

// held builds an assignment map with arbitrary timestamps.
func held(tagIDs ...string) map[string]time.Time {
	m := make(map[string]time.Time, len(tagIDs))
	for _, id := range tagIDs {
		m[id] = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return m
}

func transitionsEqual(t *testing.T, got, want []Transition) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %d transitions, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Transition %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

// =============================================================================
// Acquisition Tests
// =============================================================================

// TestEvaluate_AcquiresWhenPredicateHolds tests that a user matching an
// acquisition predicate gains the tag.
func TestEvaluate_AcquiresWhenPredicateHolds(t *testing.T) {
	defs := []catalog.TagDefinition{{
		ID: "veterano", Name: "Veterano",
		Category: catalog.CategoryPositive, Visibility: catalog.VisibilityPublic,
		Acquire: &catalog.Predicate{MinAccountAgeDays: intPtr(365)},
	}}
	m := &UserMetrics{UserID: "u1", AccountAgeDays: 400}

	got := Evaluate(held(), m, defs)
	transitionsEqual(t, got, []Transition{{UserID: "u1", TagID: "veterano", Kind: KindAdd}})
}

// TestEvaluate_ConvergedUserEmitsNothing tests that a user whose tag set
// already matches the catalog verdict produces zero transitions.
func TestEvaluate_ConvergedUserEmitsNothing(t *testing.T) {
	defs := []catalog.TagDefinition{{
		ID: "veterano", Name: "Veterano",
		Category: catalog.CategoryPositive, Visibility: catalog.VisibilityPublic,
		Acquire: &catalog.Predicate{MinAccountAgeDays: intPtr(365)},
	}}
	m := &UserMetrics{UserID: "u1", AccountAgeDays: 400}

	got := Evaluate(held("veterano"), m, defs)
	if len(got) != 0 {
		t.Errorf("Expected no transitions for converged user, got %v", got)
	}
}

// TestEvaluate_ManualTagNeverFiresAutomatically tests that manual-acquisition
// tags are never added by evaluation, whatever the metrics.
func TestEvaluate_ManualTagNeverFiresAutomatically(t *testing.T) {
	defs := []catalog.TagDefinition{{
		ID: "verificado", Name: "Verificado",
		Category: catalog.CategoryPositive, Visibility: catalog.VisibilityPublic,
		Acquire: &catalog.Predicate{Manual: true},
	}}
	m := &UserMetrics{UserID: "u1", AccountAgeDays: 5000, Reactions: 1 << 30, Verified: true}

	got := Evaluate(held(), m, defs)
	if len(got) != 0 {
		t.Errorf("Expected no transitions for manual tag, got %v", got)
	}
}

// TestEvaluate_AllPredicateFieldsAreANDed tests that every set field must
// hold for the predicate to match.
func TestEvaluate_AllPredicateFieldsAreANDed(t *testing.T) {
	defs := []catalog.TagDefinition{{
		ID: "querido", Name: "Querido",
		Category: catalog.CategoryPositive, Visibility: catalog.VisibilityPublic,
		Acquire: &catalog.Predicate{
			MinAccountAgeDays: intPtr(30),
			MinReactions:      int64Ptr(1000),
		},
	}}

	// Enough reactions, account too young.
	m := &UserMetrics{UserID: "u1", AccountAgeDays: 10, Reactions: 5000}
	if got := Evaluate(held(), m, defs); len(got) != 0 {
		t.Errorf("Expected no transitions when one conjunct fails, got %v", got)
	}

	// Both hold.
	m = &UserMetrics{UserID: "u1", AccountAgeDays: 40, Reactions: 5000}
	got := Evaluate(held(), m, defs)
	transitionsEqual(t, got, []Transition{{UserID: "u1", TagID: "querido", Kind: KindAdd}})
}

// =============================================================================
// Removal Tests
// =============================================================================

// TestEvaluate_RemovesWhenExplicitPredicateFires tests explicit removal.
func TestEvaluate_RemovesWhenExplicitPredicateFires(t *testing.T) {
	defs := []catalog.TagDefinition{{
		ID: "advertido", Name: "Advertido",
		Category: catalog.CategoryModeration, Visibility: catalog.VisibilityInternal,
		Acquire: &catalog.Predicate{Manual: true},
		Remove:  &catalog.Predicate{MinDaysSinceWarning: intPtr(30)},
	}}
	m := &UserMetrics{UserID: "u1", Warnings: 1, DaysSinceLastWarning: intPtr(45)}

	got := Evaluate(held("advertido"), m, defs)
	transitionsEqual(t, got, []Transition{{UserID: "u1", TagID: "advertido", Kind: KindRemove}})
}

// TestEvaluate_NonManualTagLapsesWithAcquisition tests that a held automatic
// tag is removed when its acquisition predicate stops holding, even without
// an explicit removal rule.
func TestEvaluate_NonManualTagLapsesWithAcquisition(t *testing.T) {
	defs := []catalog.TagDefinition{{
		ID: "silenciado", Name: "Silenciado",
		Category: catalog.CategoryModeration, Visibility: catalog.VisibilityInternal,
		Acquire: &catalog.Predicate{Silenced: boolPtr(true)},
	}}
	m := &UserMetrics{UserID: "u1", Silenced: false}

	got := Evaluate(held("silenciado"), m, defs)
	transitionsEqual(t, got, []Transition{{UserID: "u1", TagID: "silenciado", Kind: KindRemove}})
}

// TestEvaluate_ManualTagWithoutRemoveRuleIsKept tests that held manual tags
// are never lapsed automatically.
func TestEvaluate_ManualTagWithoutRemoveRuleIsKept(t *testing.T) {
	defs := []catalog.TagDefinition{{
		ID: "verificado", Name: "Verificado",
		Category: catalog.CategoryPositive, Visibility: catalog.VisibilityPublic,
		Acquire: &catalog.Predicate{Manual: true},
	}}
	m := &UserMetrics{UserID: "u1"}

	got := Evaluate(held("verificado"), m, defs)
	if len(got) != 0 {
		t.Errorf("Expected manual tag to be kept, got %v", got)
	}
}

// TestEvaluate_MinDaysSinceWarningRequiresAWarning tests that the
// days-since-warning conjunct never matches for users with no warnings
// on record.
func TestEvaluate_MinDaysSinceWarningRequiresAWarning(t *testing.T) {
	defs := []catalog.TagDefinition{{
		ID: "advertido", Name: "Advertido",
		Category: catalog.CategoryModeration, Visibility: catalog.VisibilityInternal,
		Acquire: &catalog.Predicate{Manual: true},
		Remove:  &catalog.Predicate{MinDaysSinceWarning: intPtr(30)},
	}}
	m := &UserMetrics{UserID: "u1", DaysSinceLastWarning: nil}

	got := Evaluate(held("advertido"), m, defs)
	if len(got) != 0 {
		t.Errorf("Expected no removal when user has no warning on record, got %v", got)
	}
}

// =============================================================================
// Precedence and Override Tests
// =============================================================================

// TestEvaluate_RemovalWinsContradiction tests that a definition whose
// acquisition and removal predicates both fire removes (or never adds).
func TestEvaluate_RemovalWinsContradiction(t *testing.T) {
	defs := []catalog.TagDefinition{{
		ID: "contradicao", Name: "Contradição",
		Category: catalog.CategoryPositive, Visibility: catalog.VisibilityPublic,
		Acquire: &catalog.Predicate{MinAccountAgeDays: intPtr(10)},
		Remove:  &catalog.Predicate{MinAccountAgeDays: intPtr(5)},
	}}
	m := &UserMetrics{UserID: "u1", AccountAgeDays: 20}

	// Held: removal wins.
	got := Evaluate(held("contradicao"), m, defs)
	transitionsEqual(t, got, []Transition{{UserID: "u1", TagID: "contradicao", Kind: KindRemove}})

	// Absent: never added.
	got = Evaluate(held(), m, defs)
	if len(got) != 0 {
		t.Errorf("Expected no add under contradiction, got %v", got)
	}
}

// TestEvaluate_TrueOverridePinsTag tests that a true administrative override
// blocks automatic removal.
func TestEvaluate_TrueOverridePinsTag(t *testing.T) {
	defs := []catalog.TagDefinition{{
		ID: "veterano", Name: "Veterano",
		Category: catalog.CategoryPositive, Visibility: catalog.VisibilityPublic,
		Acquire: &catalog.Predicate{MinAccountAgeDays: intPtr(365)},
	}}
	m := &UserMetrics{
		UserID:         "u1",
		AccountAgeDays: 10, // acquisition lapsed
		Overrides:      map[string]bool{"veterano": true},
	}

	got := Evaluate(held("veterano"), m, defs)
	if len(got) != 0 {
		t.Errorf("Expected pinned tag to survive lapse, got %v", got)
	}
}

// TestEvaluate_FalseOverrideSuppressesAndSheds tests that a false override
// blocks acquisition and removes the tag if currently held.
func TestEvaluate_FalseOverrideSuppressesAndSheds(t *testing.T) {
	defs := []catalog.TagDefinition{{
		ID: "veterano", Name: "Veterano",
		Category: catalog.CategoryPositive, Visibility: catalog.VisibilityPublic,
		Acquire: &catalog.Predicate{MinAccountAgeDays: intPtr(365)},
	}}
	m := &UserMetrics{
		UserID:         "u1",
		AccountAgeDays: 400, // acquisition holds
		Overrides:      map[string]bool{"veterano": false},
	}

	// Absent: acquisition suppressed.
	if got := Evaluate(held(), m, defs); len(got) != 0 {
		t.Errorf("Expected suppressed acquisition, got %v", got)
	}

	// Held: shed despite the predicate holding.
	got := Evaluate(held("veterano"), m, defs)
	transitionsEqual(t, got, []Transition{{UserID: "u1", TagID: "veterano", Kind: KindRemove}})
}

// =============================================================================
// Determinism and Scenario Tests
// =============================================================================

// TestEvaluate_DeterministicCatalogOrder tests that repeated evaluation of
// the same inputs yields identical output in catalog order.
func TestEvaluate_DeterministicCatalogOrder(t *testing.T) {
	defs := catalog.DefaultDefinitions()
	m := &UserMetrics{UserID: "u1", AccountAgeDays: 400, Reactions: 2000}

	first := Evaluate(held(), m, defs)
	for i := 0; i < 10; i++ {
		transitionsEqual(t, Evaluate(held(), m, defs), first)
	}

	// veterano precedes querido in the catalog.
	transitionsEqual(t, first, []Transition{
		{UserID: "u1", TagID: "veterano", Kind: KindAdd},
		{UserID: "u1", TagID: "querido", Kind: KindAdd},
	})
}

// TestEvaluate_NewcomerLifecycle tests the newcomer tag across the account
// age boundary: acquired in the first week, swapped out after it.
func TestEvaluate_NewcomerLifecycle(t *testing.T) {
	defs := catalog.DefaultDefinitions()

	// Day 3: gains the newcomer tag.
	young := &UserMetrics{UserID: "u1", AccountAgeDays: 3}
	got := Evaluate(held(), young, defs)
	transitionsEqual(t, got, []Transition{{UserID: "u1", TagID: "recem-chegado", Kind: KindAdd}})

	// Day 9: the explicit removal rule fires.
	older := &UserMetrics{UserID: "u1", AccountAgeDays: 9}
	got = Evaluate(held("recem-chegado"), older, defs)
	transitionsEqual(t, got, []Transition{{UserID: "u1", TagID: "recem-chegado", Kind: KindRemove}})

	// Day 9, already converged.
	if got = Evaluate(held(), older, defs); len(got) != 0 {
		t.Errorf("Expected converged state on day 9, got %v", got)
	}
}
