package learner

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// These interfaces define the contract for the persistence layer.
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the persistence operations for learner profiles.
type Repository interface {
	// Create creates a new learner profile.
	// Returns ErrProfileAlreadyExists if the email is already taken.
	Create(ctx context.Context, profile *Profile) error

	// GetByID returns a learner profile by internal ID.
	// Returns ErrProfileNotFound if the profile does not exist.
	GetByID(ctx context.Context, id string) (*Profile, error)

	// GetByEmail returns a learner profile by email.
	// Returns ErrProfileNotFound if the profile does not exist.
	GetByEmail(ctx context.Context, email string) (*Profile, error)

	// Save persists the profile using optimistic locking: the write succeeds
	// only if the stored version still equals profile.Version, and increments
	// the version on success. Returns ErrStaleProfile on a version mismatch
	// and ErrProfileNotFound if the profile does not exist.
	Save(ctx context.Context, profile *Profile) error

	// GetByRole returns profiles currently holding the given role.
	GetByRole(ctx context.Context, role Role, opts ListOptions) ([]*Profile, error)

	// GetAll returns all profiles with pagination.
	GetAll(ctx context.Context, opts ListOptions) ([]*Profile, error)

	// Count returns the total number of learner profiles.
	Count(ctx context.Context) (int, error)

	// ExistsByEmail checks whether a profile with the email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// AcademicRecordRepository maintains the legacy denormalized academic
// record. It tracks a year-of-study number derived from the role name;
// the role propagator keeps it consistent with the profile.
type AcademicRecordRepository interface {
	// GetYearOfStudy returns the recorded year of study for a learner.
	// Returns 0 with no error if no record exists yet.
	GetYearOfStudy(ctx context.Context, learnerID string) (int, error)

	// SetYearOfStudy upserts the recorded year of study.
	SetYearOfStudy(ctx context.Context, learnerID string, year int) error
}

// ListOptions contains pagination and sorting parameters.
type ListOptions struct {
	// Offset is the pagination offset.
	Offset int

	// Limit is the maximum number of records.
	Limit int

	// SortBy is the field to sort by.
	SortBy string

	// SortDesc sorts in descending order.
	SortDesc bool
}

// DefaultListOptions returns the default list parameters.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Offset:   0,
		Limit:    50,
		SortBy:   "created_at",
		SortDesc: false,
	}
}

// WithOffset sets the offset.
func (o ListOptions) WithOffset(offset int) ListOptions {
	o.Offset = offset
	return o
}

// WithLimit sets the limit.
func (o ListOptions) WithLimit(limit int) ListOptions {
	o.Limit = limit
	return o
}

// WithSort sets the sort field and direction.
func (o ListOptions) WithSort(field string, desc bool) ListOptions {
	o.SortBy = field
	o.SortDesc = desc
	return o
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INTERFACE
// For caching frequently requested profiles (usually backed by Redis).
// ══════════════════════════════════════════════════════════════════════════════

// Cache defines caching operations for learner profiles.
type Cache interface {
	// Get fetches a profile from the cache.
	Get(ctx context.Context, learnerID string) (*Profile, error)

	// Set stores a profile in the cache.
	Set(ctx context.Context, profile *Profile, ttl time.Duration) error

	// Invalidate removes a learner's cache entries.
	Invalidate(ctx context.Context, learnerID string) error

	// InvalidateAll clears the whole profile cache.
	InvalidateAll(ctx context.Context) error
}
