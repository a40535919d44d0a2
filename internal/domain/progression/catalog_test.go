package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

func TestCatalog_LevelOf(t *testing.T) {
	catalog := DefaultCatalog()

	level, err := catalog.LevelOf(RoleYear1)
	require.NoError(t, err)
	assert.Equal(t, 1, level)

	level, err = catalog.LevelOf(RoleIntern)
	require.NoError(t, err)
	assert.Equal(t, 7, level)

	_, err = catalog.LevelOf("resident")
	assert.ErrorIs(t, err, shared.ErrUnknownRole)
}

func TestCatalog_Knows(t *testing.T) {
	catalog := DefaultCatalog()

	assert.True(t, catalog.Knows(RoleClerk))
	assert.False(t, catalog.Knows("attending"))
}

func TestCatalog_RequirementsFor(t *testing.T) {
	catalog := DefaultCatalog()

	req, known := catalog.RequirementsFor(RoleYear2)
	require.True(t, known)
	assert.Equal(t, 15, req.SimulationsRequired)
	assert.Equal(t, 70.0, req.AverageScoreRequired)

	req, known = catalog.RequirementsFor("resident")
	assert.False(t, known)
	assert.True(t, req.IsZero())
}

func TestCatalog_AutoRuleFor(t *testing.T) {
	catalog := DefaultCatalog()

	rule := catalog.AutoRuleFor(RoleYear1)
	require.NotNil(t, rule)
	assert.Equal(t, RoleYear2, rule.NextRole)
	assert.Equal(t, 15, rule.Requirements.SimulationsRequired)

	// year5 is the end of the automatic ladder; clerk and intern are
	// manual-only stages.
	assert.Nil(t, catalog.AutoRuleFor(RoleYear5))
	assert.Nil(t, catalog.AutoRuleFor(RoleClerk))
	assert.Nil(t, catalog.AutoRuleFor(RoleIntern))
	assert.Nil(t, catalog.AutoRuleFor("resident"))
}

func TestCatalog_AutoRuleFor_DanglingTarget(t *testing.T) {
	catalog := NewCatalog([]CatalogEntry{
		{Role: "stage1", Level: 1, AutoAdvanceTo: "stage2"},
		// stage2 is never defined.
	})

	assert.Nil(t, catalog.AutoRuleFor("stage1"))
}

func TestCatalog_LaddersAreMonotonic(t *testing.T) {
	catalog := DefaultCatalog()

	for _, role := range catalog.Roles() {
		rule := catalog.AutoRuleFor(role)
		if rule == nil {
			continue
		}
		from, err := catalog.LevelOf(role)
		require.NoError(t, err)
		to, err := catalog.LevelOf(rule.NextRole)
		require.NoError(t, err)
		assert.Equal(t, from+1, to, "auto-advance from %s must go one level up", role)
	}
}

func TestRequirements_IsZero(t *testing.T) {
	assert.True(t, Requirements{}.IsZero())
	assert.False(t, Requirements{SimulationsRequired: 1}.IsZero())
	assert.False(t, Requirements{CertificationsRequired: []string{"bls"}}.IsZero())

	// Time-in-role is reserved and does not count as a defined requirement.
	assert.True(t, Requirements{MinTimeInRole: 24 * 30 * 60}.IsZero())
}
