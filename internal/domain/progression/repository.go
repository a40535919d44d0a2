package progression

import (
	"context"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD REPOSITORY
// Persistence boundary for transition records. Implementations live in
// infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// RecordRepository defines the persistence operations for transition records.
type RecordRepository interface {
	// Create persists a new record. The "no existing pending record per
	// learner" check is the serialization point: it must be evaluated
	// atomically with the insert. Returns ErrDuplicateRequest when a
	// pending record already exists for the learner.
	Create(ctx context.Context, record *TransitionRecord) error

	// GetByID returns a record by ID.
	// Returns ErrTransitionNotFound if the record does not exist.
	GetByID(ctx context.Context, id string) (*TransitionRecord, error)

	// FindPending returns the learner's pending record, or nil with no
	// error when none exists. Invariant: at most one per learner.
	FindPending(ctx context.Context, learnerID string) (*TransitionRecord, error)

	// Update persists the record's mutable approval sub-state.
	// Returns ErrTransitionNotFound if the record does not exist.
	Update(ctx context.Context, record *TransitionRecord) error

	// ListPending returns pending records, optionally filtered by target
	// role (empty role means all), for reviewer dashboards.
	ListPending(ctx context.Context, forRole learner.Role, opts learner.ListOptions) ([]*TransitionRecord, error)

	// ListByLearner returns the learner's records ordered by request date
	// descending. Records are never deleted; this is the audit trail.
	ListByLearner(ctx context.Context, learnerID string, opts learner.ListOptions) ([]*TransitionRecord, error)
}
