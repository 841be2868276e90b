// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCatalogYAML = `
tags:
  - id: recem-chegado
    name: Recém-chegado
    category: time
    visibility: public
    acquire:
      max_account_age_days: 7
    remove:
      min_account_age_days: 8
  - id: verificado
    name: Verificado
    category: positive
    visibility: public
    acquire:
      manual: true
    notify_on_acquire: true
`

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// =============================================================================
// Load Tests
// =============================================================================

// TestCatalog_LoadFile tests loading a valid catalog seed.
func TestCatalog_LoadFile(t *testing.T) {
	c := New()
	require.NoError(t, c.LoadFile(writeCatalogFile(t, validCatalogYAML)))

	assert.Equal(t, 2, c.Len())

	def, ok := c.Lookup("recem-chegado")
	require.True(t, ok)
	assert.Equal(t, CategoryTime, def.Category)
	assert.Equal(t, VisibilityPublic, def.Visibility)
	require.NotNil(t, def.Acquire.MaxAccountAgeDays)
	assert.Equal(t, 7, *def.Acquire.MaxAccountAgeDays)
	require.NotNil(t, def.Remove)
	assert.False(t, def.ManualOnly())

	def, ok = c.Lookup("verificado")
	require.True(t, ok)
	assert.True(t, def.ManualOnly())
	assert.True(t, def.NotifyOnAcquire)
}

// TestCatalog_LoadFile_PreservesOrder tests that definitions keep file order.
func TestCatalog_LoadFile_PreservesOrder(t *testing.T) {
	c := New()
	require.NoError(t, c.LoadFile(writeCatalogFile(t, validCatalogYAML)))

	defs := c.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "recem-chegado", defs[0].ID)
	assert.Equal(t, "verificado", defs[1].ID)
}

// TestCatalog_LoadFile_FailureKeepsPrevious tests that a bad reload leaves
// the previously loaded definitions active.
func TestCatalog_LoadFile_FailureKeepsPrevious(t *testing.T) {
	c := New()
	require.NoError(t, c.LoadFile(writeCatalogFile(t, validCatalogYAML)))
	require.Equal(t, 2, c.Len())

	err := c.LoadFile(writeCatalogFile(t, "tags: ["))
	require.Error(t, err)
	assert.Equal(t, 2, c.Len(), "previous definitions must survive a failed reload")
}

// TestCatalog_LoadFile_MissingFile tests the read error path.
func TestCatalog_LoadFile_MissingFile(t *testing.T) {
	c := New()
	assert.Error(t, c.LoadFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

// =============================================================================
// Validation Tests
// =============================================================================

// TestCatalog_Validation rejects structurally broken catalogs.
func TestCatalog_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{
			name: "duplicate tag ids",
			yaml: `
tags:
  - id: dup
    name: A
    category: positive
    visibility: public
    acquire: {min_reactions: 10}
  - id: dup
    name: B
    category: positive
    visibility: public
    acquire: {min_reactions: 20}
`,
		},
		{
			name: "missing name",
			yaml: `
tags:
  - id: sem-nome
    category: positive
    visibility: public
    acquire: {min_reactions: 10}
`,
		},
		{
			name: "invalid category",
			yaml: `
tags:
  - id: x
    name: X
    category: whatever
    visibility: public
    acquire: {min_reactions: 10}
`,
		},
		{
			name: "invalid visibility",
			yaml: `
tags:
  - id: x
    name: X
    category: positive
    visibility: secret
    acquire: {min_reactions: 10}
`,
		},
		{
			name: "empty acquisition predicate",
			yaml: `
tags:
  - id: x
    name: X
    category: positive
    visibility: public
    acquire: {}
`,
		},
		{
			name: "missing acquisition predicate",
			yaml: `
tags:
  - id: x
    name: X
    category: positive
    visibility: public
`,
		},
		{
			name: "manual removal predicate",
			yaml: `
tags:
  - id: x
    name: X
    category: positive
    visibility: public
    acquire: {min_reactions: 10}
    remove: {manual: true}
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New()
			assert.Error(t, c.LoadFile(writeCatalogFile(t, tc.yaml)))
		})
	}
}

// TestCatalog_EmptyRemovePredicateTreatedAsAbsent tests the lenient path:
// an empty removal predicate is dropped with a warning, not rejected.
func TestCatalog_EmptyRemovePredicateTreatedAsAbsent(t *testing.T) {
	c := New()
	err := c.LoadFile(writeCatalogFile(t, `
tags:
  - id: x
    name: X
    category: positive
    visibility: public
    acquire: {min_reactions: 10}
    remove: {}
`))
	require.NoError(t, err)

	def, ok := c.Lookup("x")
	require.True(t, ok)
	assert.Nil(t, def.Remove)
}

// =============================================================================
// Accessor Tests
// =============================================================================

// TestCatalog_DefinitionsReturnsCopy tests that callers cannot mutate the
// catalog through the returned slice.
func TestCatalog_DefinitionsReturnsCopy(t *testing.T) {
	c := New()
	c.Replace(DefaultDefinitions())

	defs := c.Definitions()
	defs[0].ID = "mutated"

	fresh := c.Definitions()
	assert.NotEqual(t, "mutated", fresh[0].ID)
}

// TestCatalog_LookupUnknown tests lookup of an undeclared tag.
func TestCatalog_LookupUnknown(t *testing.T) {
	c := New()
	c.Replace(DefaultDefinitions())

	_, ok := c.Lookup("no-such-tag")
	assert.False(t, ok)
}

// TestDefaultDefinitions_AreValid tests that the built-in seed passes the
// same validation as file catalogs.
func TestDefaultDefinitions_AreValid(t *testing.T) {
	defs := DefaultDefinitions()
	require.NoError(t, validateDefinitions(defs))
	assert.Len(t, defs, 6)

	// The manual badge must never fire automatically.
	for _, d := range defs {
		if d.ID == "verificado" {
			assert.True(t, d.ManualOnly())
		}
	}
}

// TestPredicate_IsEmpty tests the empty-predicate guard.
func TestPredicate_IsEmpty(t *testing.T) {
	assert.True(t, (*Predicate)(nil).IsEmpty())
	assert.True(t, (&Predicate{}).IsEmpty())
	assert.False(t, (&Predicate{Manual: true}).IsEmpty())
	assert.False(t, (&Predicate{MinReactions: int64Ptr(1)}).IsEmpty())
	assert.False(t, (&Predicate{Silenced: boolPtr(false)}).IsEmpty())
}
