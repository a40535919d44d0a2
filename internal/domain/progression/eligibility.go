package progression

import (
	"github.com/medsim-hub/progression-engine/internal/domain/learner"
)

// ══════════════════════════════════════════════════════════════════════════════
// ELIGIBILITY EVALUATOR
// Pure decision functions over requirement snapshots. No I/O; total for
// every input, so a snapshot is never partially computed.
// ══════════════════════════════════════════════════════════════════════════════

// IsAutoApprovalEligible reports whether every required dimension in the
// snapshot's measured values meets or exceeds the corresponding required
// value. An absent requirement (zero count, zero score, empty list) is
// trivially satisfied.
func IsAutoApprovalEligible(snap RequirementSnapshot) bool {
	if snap.SimulationsCompleted < snap.SimulationsRequired {
		return false
	}
	if snap.CurrentAverageScore < snap.AverageScoreRequired {
		return false
	}
	if !isSubset(snap.CompetenciesRequired, snap.CompetenciesAchieved) {
		return false
	}
	if !isSubset(snap.CertificationsRequired, snap.CertificationsEarned) {
		return false
	}
	return true
}

// CompletionPercentage returns normalized progress in [0,100]: the mean of
// min(1, measured/required) across the defined (non-zero) requirement
// dimensions, weighted equally. A snapshot with no defined requirements
// reports 100.
func CompletionPercentage(snap RequirementSnapshot) float64 {
	var sum float64
	var dims int

	if snap.SimulationsRequired > 0 {
		sum += ratio(float64(snap.SimulationsCompleted), float64(snap.SimulationsRequired))
		dims++
	}
	if snap.AverageScoreRequired > 0 {
		sum += ratio(snap.CurrentAverageScore, snap.AverageScoreRequired)
		dims++
	}
	if len(snap.CompetenciesRequired) > 0 {
		sum += ratio(float64(countPresent(snap.CompetenciesRequired, snap.CompetenciesAchieved)), float64(len(snap.CompetenciesRequired)))
		dims++
	}
	if len(snap.CertificationsRequired) > 0 {
		sum += ratio(float64(countPresent(snap.CertificationsRequired, snap.CertificationsEarned)), float64(len(snap.CertificationsRequired)))
		dims++
	}

	if dims == 0 {
		return 100
	}
	return sum / float64(dims) * 100
}

// UnmetRequirements returns the delta between required and measured values
// for every dimension that is not yet satisfied. Satisfied dimensions are
// omitted.
type UnmetRequirements struct {
	SimulationsShort      int
	ScoreShort            float64
	CompetenciesMissing   []string
	CertificationsMissing []string
}

// IsEmpty reports whether every dimension is satisfied.
func (u UnmetRequirements) IsEmpty() bool {
	return u.SimulationsShort == 0 &&
		u.ScoreShort == 0 &&
		len(u.CompetenciesMissing) == 0 &&
		len(u.CertificationsMissing) == 0
}

// Unmet computes the unmet-requirement delta for a snapshot.
func Unmet(snap RequirementSnapshot) UnmetRequirements {
	var u UnmetRequirements

	if snap.SimulationsCompleted < snap.SimulationsRequired {
		u.SimulationsShort = snap.SimulationsRequired - snap.SimulationsCompleted
	}
	if snap.CurrentAverageScore < snap.AverageScoreRequired {
		u.ScoreShort = snap.AverageScoreRequired - snap.CurrentAverageScore
	}
	u.CompetenciesMissing = missing(snap.CompetenciesRequired, snap.CompetenciesAchieved)
	u.CertificationsMissing = missing(snap.CertificationsRequired, snap.CertificationsEarned)

	return u
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTOMATIC ELIGIBILITY CHECK
// ══════════════════════════════════════════════════════════════════════════════

// AutomaticEligibility is the outcome of probing the automatic path for a
// learner's current role. "No automatic path" is a result, not an error.
type AutomaticEligibility struct {
	// Eligible is true when the learner meets the rule's thresholds.
	Eligible bool

	// HasRule is false when the current role has no automatic path.
	HasRule bool

	// Rule is the applicable auto-progression rule (nil when HasRule is false).
	Rule *AutoRule

	// Snapshot holds the thresholds and measured values compared.
	Snapshot RequirementSnapshot

	// Progress is the completion percentage against the rule.
	Progress float64
}

// CheckAutomaticEligibility looks up the catalog's auto-progression rule
// for the learner's current role and compares the profile's measured
// values against it. Time-in-role is declared on rules but intentionally
// not evaluated here.
func CheckAutomaticEligibility(catalog *Catalog, profile *learner.Profile) AutomaticEligibility {
	rule := catalog.AutoRuleFor(profile.CurrentRole)
	if rule == nil {
		return AutomaticEligibility{Eligible: false, HasRule: false}
	}

	snap := SnapshotFor(rule.Requirements, profile)
	return AutomaticEligibility{
		Eligible: IsAutoApprovalEligible(snap),
		HasRule:  true,
		Rule:     rule,
		Snapshot: snap,
		Progress: CompletionPercentage(snap),
	}
}

// SnapshotFor combines a role's requirements with a learner's measured
// values into a requirement snapshot.
func SnapshotFor(req Requirements, profile *learner.Profile) RequirementSnapshot {
	return RequirementSnapshot{
		SimulationsRequired:    req.SimulationsRequired,
		AverageScoreRequired:   req.AverageScoreRequired,
		CompetenciesRequired:   append([]string(nil), req.CompetenciesRequired...),
		CertificationsRequired: append([]string(nil), req.CertificationsRequired...),
		SimulationsCompleted:   profile.Stats.TotalCompleted,
		CurrentAverageScore:    profile.Stats.AverageScore,
		CompetenciesAchieved:   profile.CompetencyNames(),
		CertificationsEarned:   append([]string(nil), profile.Certifications...),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func ratio(measured, required float64) float64 {
	if required <= 0 {
		return 1
	}
	r := measured / required
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}

func isSubset(required, achieved []string) bool {
	return len(missing(required, achieved)) == 0
}

func countPresent(required, achieved []string) int {
	return len(required) - len(missing(required, achieved))
}

func missing(required, achieved []string) []string {
	if len(required) == 0 {
		return nil
	}

	have := make(map[string]struct{}, len(achieved))
	for _, a := range achieved {
		have[a] = struct{}{}
	}

	var out []string
	for _, r := range required {
		if _, ok := have[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}
