// Package learner contains the domain model of a learner on the medical
// simulation platform. This is core business logic - no external dependencies.
package learner

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Role represents an ordinal stage in a learner's progression,
// e.g. "year1", "year2", "clinical_clerk", "intern".
type Role string

// IsValid checks that the role identifier is non-empty and well formed.
func (r Role) IsValid() bool {
	s := string(r)
	return len(s) >= 2 && len(s) <= 50 && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Trailing digits of a role name, e.g. "year2" -> 2.
var roleYearSuffix = regexp.MustCompile(`(\d+)$`)

// YearSuffix parses the trailing numeric suffix of the role name.
// Returns (0, false) when the role name carries no parseable year, in
// which case the caller must leave any derived year-of-study untouched.
func (r Role) YearSuffix() (int, bool) {
	m := roleYearSuffix.FindStringSubmatch(string(r))
	if m == nil {
		return 0, false
	}
	year := 0
	for _, c := range m[1] {
		year = year*10 + int(c-'0')
	}
	if year == 0 {
		return 0, false
	}
	return year, true
}

// ProficiencyTier represents the achieved tier for one competency.
type ProficiencyTier string

const (
	TierNovice     ProficiencyTier = "novice"
	TierCompetent  ProficiencyTier = "competent"
	TierProficient ProficiencyTier = "proficient"
	TierExpert     ProficiencyTier = "expert"
)

// IsValid checks that the tier is one of the known values.
func (t ProficiencyTier) IsValid() bool {
	switch t {
	case TierNovice, TierCompetent, TierProficient, TierExpert:
		return true
	default:
		return false
	}
}

// MeetsOrExceeds reports whether the tier is at least the required tier.
func (t ProficiencyTier) MeetsOrExceeds(required ProficiencyTier) bool {
	return tierRank(t) >= tierRank(required)
}

func tierRank(t ProficiencyTier) int {
	switch t {
	case TierNovice:
		return 1
	case TierCompetent:
		return 2
	case TierProficient:
		return 3
	case TierExpert:
		return 4
	default:
		return 0
	}
}

// SimulationStats holds the aggregated simulation performance a learner
// has accumulated. Produced by the performance pipeline; consumed here.
type SimulationStats struct {
	// TotalCompleted is the number of completed simulation cases.
	TotalCompleted int

	// AverageScore is the mean evaluation score across completed cases (0-100).
	AverageScore float64
}

// IsValid checks the stats are within sane bounds.
func (s SimulationStats) IsValid() bool {
	return s.TotalCompleted >= 0 && s.AverageScore >= 0 && s.AverageScore <= 100
}

// TransitionHistoryEntry is one entry of the append-only role change log.
type TransitionHistoryEntry struct {
	// FromRole is the role the learner held before the change.
	FromRole Role

	// ToRole is the role the learner advanced to.
	ToRole Role

	// TransitionDate is when the change became effective.
	TransitionDate time.Time

	// TransitionType is "manual" or "automatic".
	TransitionType string
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: LEARNER PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile is the central entity representing a learner on the platform.
type Profile struct {
	// ID is the internal unique identifier (UUID in string form).
	ID string

	// Email is the learner's account email.
	Email string

	// PasswordHash is the bcrypt hash of the account password.
	PasswordHash string

	// DisplayName is the learner's display name.
	DisplayName string

	// CurrentRole is the role the learner currently holds.
	CurrentRole Role

	// CurrentLevel is the ordinal level derived from CurrentRole via the
	// role catalog. Denormalized for querying; recomputed on every role change.
	CurrentLevel int

	// Competencies maps competency name to the achieved proficiency tier.
	Competencies map[string]ProficiencyTier

	// Certifications is the set of earned certification names.
	Certifications []string

	// Stats is the aggregated simulation performance.
	Stats SimulationStats

	// TransitionHistory is the append-only ordered log of prior role changes.
	TransitionHistory []TransitionHistoryEntry

	// Version is the optimistic-lock counter. Incremented on every save;
	// a save fails with a conflict if the stored version differs.
	Version int64

	// CreatedAt is when the profile was created.
	CreatedAt time.Time

	// UpdatedAt is when the profile was last updated.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidRole - the role identifier is malformed.
	ErrInvalidRole = errors.New("invalid role: must be 2-50 chars without whitespace")

	// ErrInvalidEmail - the email is malformed.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidDisplayName - the display name is malformed.
	ErrInvalidDisplayName = errors.New("invalid display name: must be 1-100 chars")

	// ErrInvalidStats - the simulation stats are out of bounds.
	ErrInvalidStats = errors.New("invalid simulation stats")

	// ErrProfileNotFound - the learner profile does not exist.
	ErrProfileNotFound = errors.New("learner profile not found")

	// ErrProfileAlreadyExists - a profile with this email already exists.
	ErrProfileAlreadyExists = errors.New("learner profile already exists")

	// ErrStaleProfile - the profile was modified by a concurrent writer.
	ErrStaleProfile = errors.New("learner profile was modified concurrently")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewProfileParams contains the parameters for creating a new learner profile.
type NewProfileParams struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	EntryRole    Role
	EntryLevel   int
}

// NewProfile creates a new learner profile with validation of all fields.
func NewProfile(params NewProfileParams) (*Profile, error) {
	if params.ID == "" {
		return nil, errors.New("learner id is required")
	}

	if !strings.Contains(params.Email, "@") {
		return nil, ErrInvalidEmail
	}

	displayName := strings.TrimSpace(params.DisplayName)
	if len(displayName) == 0 || len(displayName) > 100 {
		return nil, ErrInvalidDisplayName
	}

	if !params.EntryRole.IsValid() {
		return nil, ErrInvalidRole
	}

	now := time.Now().UTC()

	return &Profile{
		ID:                params.ID,
		Email:             strings.ToLower(strings.TrimSpace(params.Email)),
		PasswordHash:      params.PasswordHash,
		DisplayName:       displayName,
		CurrentRole:       params.EntryRole,
		CurrentLevel:      params.EntryLevel,
		Competencies:      make(map[string]ProficiencyTier),
		Certifications:    nil,
		Stats:             SimulationStats{},
		TransitionHistory: nil,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS (Business Logic)
// ══════════════════════════════════════════════════════════════════════════════

// AdvanceRole applies a role change to the profile: appends the history
// entry, sets the new role and level. The caller (the role propagator) is
// responsible for keeping the legacy academic record in step.
func (p *Profile) AdvanceRole(newRole Role, newLevel int, transitionType string, at time.Time) error {
	if !newRole.IsValid() {
		return ErrInvalidRole
	}

	p.TransitionHistory = append(p.TransitionHistory, TransitionHistoryEntry{
		FromRole:       p.CurrentRole,
		ToRole:         newRole,
		TransitionDate: at,
		TransitionType: transitionType,
	})
	p.CurrentRole = newRole
	p.CurrentLevel = newLevel
	p.UpdatedAt = time.Now().UTC()

	return nil
}

// UpdateStats replaces the aggregated simulation stats.
func (p *Profile) UpdateStats(stats SimulationStats) error {
	if !stats.IsValid() {
		return ErrInvalidStats
	}

	p.Stats = stats
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// HasCompetency reports whether the learner has achieved the named
// competency at any tier.
func (p *Profile) HasCompetency(name string) bool {
	_, ok := p.Competencies[name]
	return ok
}

// HasCertification reports whether the learner has earned the named
// certification.
func (p *Profile) HasCertification(name string) bool {
	for _, c := range p.Certifications {
		if c == name {
			return true
		}
	}
	return false
}

// CompetencyNames returns the names of all achieved competencies.
func (p *Profile) CompetencyNames() []string {
	names := make([]string, 0, len(p.Competencies))
	for name := range p.Competencies {
		names = append(names, name)
	}
	return names
}

// LastTransition returns the most recent history entry, or nil if the
// learner has never changed role.
func (p *Profile) LastTransition() *TransitionHistoryEntry {
	if len(p.TransitionHistory) == 0 {
		return nil
	}
	return &p.TransitionHistory[len(p.TransitionHistory)-1]
}

// String returns a string representation of the profile for logging.
func (p *Profile) String() string {
	return fmt.Sprintf(
		"Profile{ID: %s, Role: %s, Level: %d, Simulations: %d, AvgScore: %.1f}",
		p.ID, p.CurrentRole, p.CurrentLevel, p.Stats.TotalCompleted, p.Stats.AverageScore,
	)
}

// Clone creates a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}

	clone := *p
	clone.Competencies = make(map[string]ProficiencyTier, len(p.Competencies))
	for k, v := range p.Competencies {
		clone.Competencies[k] = v
	}
	clone.Certifications = append([]string(nil), p.Certifications...)
	clone.TransitionHistory = append([]TransitionHistoryEntry(nil), p.TransitionHistory...)
	return &clone
}
