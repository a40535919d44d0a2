// Package progression contains the role progression domain: the role/level
// catalog, transition records with their approval sub-state, and the pure
// eligibility evaluator. This is core business logic - no I/O.
package progression

import (
	"time"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENTS
// ══════════════════════════════════════════════════════════════════════════════

// Requirements are the thresholds that gate entry into a role.
// A zero/empty field means the dimension is not required.
type Requirements struct {
	// SimulationsRequired is the minimum number of completed simulation cases.
	SimulationsRequired int

	// AverageScoreRequired is the minimum average evaluation score (0-100).
	AverageScoreRequired float64

	// CompetenciesRequired lists competencies that must be achieved.
	CompetenciesRequired []string

	// CertificationsRequired lists certifications that must be earned.
	CertificationsRequired []string

	// MinTimeInRole is declared in configuration but not evaluated by the
	// eligibility check. Reserved; see the catalog documentation.
	MinTimeInRole time.Duration
}

// IsZero reports whether no requirement dimension is defined.
func (r Requirements) IsZero() bool {
	return r.SimulationsRequired == 0 &&
		r.AverageScoreRequired == 0 &&
		len(r.CompetenciesRequired) == 0 &&
		len(r.CertificationsRequired) == 0
}

// ══════════════════════════════════════════════════════════════════════════════
// ROLE LEVEL CATALOG
// Immutable, constructed once at startup and passed explicitly to the
// coordinator. Never referenced as ambient/global state.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogEntry describes one role: its ordinal level, the requirements to
// enter it, and the role the automatic path advances to (empty if the role
// is terminal or has no automatic path).
type CatalogEntry struct {
	Role          learner.Role
	Level         int
	Requirements  Requirements
	AutoAdvanceTo learner.Role
}

// AutoRule is the auto-progression rule for leaving a role: the next role
// and the requirements that gate it.
type AutoRule struct {
	NextRole     learner.Role
	Requirements Requirements
}

// Catalog is the static source of truth mapping role identifiers to levels
// and progression rules. Side-effect free; safe for concurrent use.
type Catalog struct {
	entries map[learner.Role]CatalogEntry
}

// NewCatalog builds a catalog from the given entries. Later entries with
// the same role override earlier ones.
func NewCatalog(entries []CatalogEntry) *Catalog {
	m := make(map[learner.Role]CatalogEntry, len(entries))
	for _, e := range entries {
		m[e.Role] = e
	}
	return &Catalog{entries: m}
}

// LevelOf returns the ordinal level of a role.
// Fails with ErrUnknownRole for roles not in the catalog.
func (c *Catalog) LevelOf(role learner.Role) (int, error) {
	e, ok := c.entries[role]
	if !ok {
		return 0, shared.ErrUnknownRole
	}
	return e.Level, nil
}

// Knows reports whether the role is in the catalog.
func (c *Catalog) Knows(role learner.Role) bool {
	_, ok := c.entries[role]
	return ok
}

// RequirementsFor returns the entry requirements for a target role.
// The second return is false for roles not in the catalog; callers that
// allow unrecognized targets fall back to zero requirements.
func (c *Catalog) RequirementsFor(role learner.Role) (Requirements, bool) {
	e, ok := c.entries[role]
	if !ok {
		return Requirements{}, false
	}
	return e.Requirements, true
}

// AutoRuleFor returns the auto-progression rule for leaving the given role,
// or (nil) if the role is terminal, unknown, or has no automatic path.
func (c *Catalog) AutoRuleFor(role learner.Role) *AutoRule {
	e, ok := c.entries[role]
	if !ok || e.AutoAdvanceTo == "" {
		return nil
	}
	next, ok := c.entries[e.AutoAdvanceTo]
	if !ok {
		return nil
	}
	return &AutoRule{
		NextRole:     next.Role,
		Requirements: next.Requirements,
	}
}

// Roles returns all roles in the catalog. Order is unspecified.
func (c *Catalog) Roles() []learner.Role {
	roles := make([]learner.Role, 0, len(c.entries))
	for r := range c.entries {
		roles = append(roles, r)
	}
	return roles
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Well-known roles of the medical curriculum.
const (
	RoleYear1 learner.Role = "year1"
	RoleYear2 learner.Role = "year2"
	RoleYear3 learner.Role = "year3"
	RoleYear4 learner.Role = "year4"
	RoleYear5 learner.Role = "year5"
	RoleClerk learner.Role = "clinical_clerk"
	RoleIntern learner.Role = "intern"
)

// DefaultCatalog returns the standard curriculum ladder. Pre-clinical
// years advance automatically on measured performance; the clerk and
// intern stages require an instructor-reviewed request.
func DefaultCatalog() *Catalog {
	return NewCatalog([]CatalogEntry{
		{
			Role:  RoleYear1,
			Level: 1,
			// Entry role; nothing is required to hold it.
			AutoAdvanceTo: RoleYear2,
		},
		{
			Role:  RoleYear2,
			Level: 2,
			Requirements: Requirements{
				SimulationsRequired:  15,
				AverageScoreRequired: 70,
			},
			AutoAdvanceTo: RoleYear3,
		},
		{
			Role:  RoleYear3,
			Level: 3,
			Requirements: Requirements{
				SimulationsRequired:  35,
				AverageScoreRequired: 72,
				CompetenciesRequired: []string{"history_taking", "physical_examination"},
			},
			AutoAdvanceTo: RoleYear4,
		},
		{
			Role:  RoleYear4,
			Level: 4,
			Requirements: Requirements{
				SimulationsRequired:  60,
				AverageScoreRequired: 75,
				CompetenciesRequired: []string{"differential_diagnosis", "clinical_reasoning"},
			},
			AutoAdvanceTo: RoleYear5,
		},
		{
			Role:  RoleYear5,
			Level: 5,
			Requirements: Requirements{
				SimulationsRequired:  90,
				AverageScoreRequired: 78,
				CompetenciesRequired: []string{"patient_management"},
			},
		},
		{
			Role:  RoleClerk,
			Level: 6,
			Requirements: Requirements{
				SimulationsRequired:    120,
				AverageScoreRequired:   80,
				CompetenciesRequired:   []string{"patient_management", "clinical_reasoning"},
				CertificationsRequired: []string{"bls"},
			},
		},
		{
			Role:  RoleIntern,
			Level: 7,
			Requirements: Requirements{
				SimulationsRequired:    180,
				AverageScoreRequired:   82,
				CompetenciesRequired:   []string{"patient_management", "clinical_reasoning", "procedural_skills"},
				CertificationsRequired: []string{"bls", "acls"},
			},
		},
	})
}
