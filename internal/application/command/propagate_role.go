// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system: creating
// progression requests, applying reviewer decisions, and propagating
// approved role changes across denormalized learner records.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
	"github.com/medsim-hub/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLE UPDATE PROPAGATOR
// Applies one approved role change to every denormalized representation of
// the learner's role: the profile (role, level, transition history) and the
// legacy academic record (year of study derived from the role name).
//
// This is the only code path that mutates the learner's role. All call
// sites (auto-approval, reviewer approval, automatic progression) serialize
// through the same load -> verify -> write sequence.
// ══════════════════════════════════════════════════════════════════════════════

// RolePropagator applies approved role changes.
type RolePropagator struct {
	learnerRepo  learner.Repository
	academicRepo learner.AcademicRecordRepository
	catalog      *progression.Catalog
	cache        learner.Cache // optional
	logger       *slog.Logger
}

// NewRolePropagator creates a new RolePropagator. The cache may be nil.
func NewRolePropagator(
	learnerRepo learner.Repository,
	academicRepo learner.AcademicRecordRepository,
	catalog *progression.Catalog,
	cache learner.Cache,
	logger *slog.Logger,
) *RolePropagator {
	if logger == nil {
		logger = slog.Default()
	}

	return &RolePropagator{
		learnerRepo:  learnerRepo,
		academicRepo: academicRepo,
		catalog:      catalog,
		cache:        cache,
		logger:       logger.With("component", "role_propagator"),
	}
}

// Apply applies the role change for one approved transition. expectedFrom
// is the role captured at decision time: the write succeeds only if the
// stored profile still holds it (compare-and-set). An optimistic-lock
// conflict is retried once with a fresh read; a second failure surfaces as
// a concurrent-modification error.
//
// The profile write and the academic record write are one logical unit: a
// partial outcome is surfaced as a propagation inconsistency, never hidden.
func (p *RolePropagator) Apply(
	ctx context.Context,
	learnerID string,
	expectedFrom learner.Role,
	newRole learner.Role,
	transitionType progression.TransitionType,
	at time.Time,
) error {
	// Level recomputation. Roles outside the catalog are allowed by the
	// permissive request fallback; they keep the learner's current level.
	newLevel, levelKnown := 0, true
	if lvl, err := p.catalog.LevelOf(newRole); err == nil {
		newLevel = lvl
	} else {
		levelKnown = false
	}

	var updated *learner.Profile

	saveOp := func(ctx context.Context) error {
		profile, err := p.learnerRepo.GetByID(ctx, learnerID)
		if err != nil {
			return retry.Permanent(err)
		}

		// CAS discipline: the decision was made against expectedFrom. If the
		// role moved underneath us, the decision no longer applies.
		if profile.CurrentRole != expectedFrom {
			return retry.Permanent(shared.WrapError("progression", "Propagate",
				shared.ErrConcurrentModification,
				fmt.Sprintf("role changed from %q to %q since decision", expectedFrom, profile.CurrentRole),
				nil))
		}

		if !levelKnown {
			newLevel = profile.CurrentLevel
		}

		if err := profile.AdvanceRole(newRole, newLevel, string(transitionType), at); err != nil {
			return retry.Permanent(err)
		}

		if err := p.learnerRepo.Save(ctx, profile); err != nil {
			if errors.Is(err, learner.ErrStaleProfile) {
				return retry.Retryable(err)
			}
			return retry.Permanent(err)
		}

		updated = profile
		return nil
	}

	if err := retry.ProfileSaveRetrier().Do(ctx, saveOp); err != nil {
		if errors.Is(err, learner.ErrStaleProfile) {
			return shared.WrapError("progression", "Propagate",
				shared.ErrConcurrentModification, "profile save conflicted twice", err)
		}
		return err
	}

	// Legacy academic record: the year of study is embedded in the trailing
	// numeric suffix of the role name. Roles without a parseable suffix
	// leave the record untouched.
	if year, ok := newRole.YearSuffix(); ok {
		if err := p.academicRepo.SetYearOfStudy(ctx, learnerID, year); err != nil {
			// The profile is already updated: this is a partial application
			// across denormalized records. Report it loudly for manual
			// reconciliation instead of retry-looping.
			p.logger.Error("role propagated to profile but academic record update failed",
				"learner_id", learnerID,
				"from_role", string(expectedFrom),
				"to_role", string(newRole),
				"year_of_study", year,
				"error", err,
			)
			return shared.WrapError("progression", "Propagate", shared.ErrInconsistency,
				fmt.Sprintf("profile %s updated but academic record was not", learnerID), err)
		}
	}

	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, learnerID); err != nil {
			// Cache staleness is tolerable; entries expire by TTL.
			p.logger.Warn("failed to invalidate learner cache",
				"learner_id", learnerID, "error", err)
		}
	}

	p.logger.Info("role change propagated",
		"learner_id", learnerID,
		"from_role", string(expectedFrom),
		"to_role", string(newRole),
		"new_level", updated.CurrentLevel,
		"transition_type", string(transitionType),
	)

	return nil
}
