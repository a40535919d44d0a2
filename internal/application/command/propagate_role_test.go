package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

type recordingCache struct {
	invalidated []string
	err         error
}

func (c *recordingCache) Get(context.Context, string) (*learner.Profile, error) {
	return nil, errors.New("miss")
}

func (c *recordingCache) Set(context.Context, *learner.Profile, time.Duration) error { return nil }

func (c *recordingCache) Invalidate(_ context.Context, learnerID string) error {
	c.invalidated = append(c.invalidated, learnerID)
	return c.err
}

func (c *recordingCache) InvalidateAll(context.Context) error { return nil }

func TestPropagator_AppliesRoleLevelAndAcademicYear(t *testing.T) {
	e := newTestEnv()
	e.seedLearner("l1", progression.RoleYear2, 20, 75)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := e.propagator.Apply(context.Background(), "l1",
		progression.RoleYear2, progression.RoleYear3, progression.TransitionManual, at)
	require.NoError(t, err)

	p, err := e.learnerRepo.GetByID(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, progression.RoleYear3, p.CurrentRole)
	assert.Equal(t, 3, p.CurrentLevel)
	require.Len(t, p.TransitionHistory, 1)
	assert.Equal(t, at, p.TransitionHistory[0].TransitionDate)

	year, err := e.academicRepo.GetYearOfStudy(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, 3, year)
}

func TestPropagator_UnknownRoleKeepsLevelAndAcademicRecord(t *testing.T) {
	e := newTestEnv()
	e.seedLearner("l1", progression.RoleYear2, 20, 75)

	err := e.propagator.Apply(context.Background(), "l1",
		progression.RoleYear2, "research_track", progression.TransitionManual, time.Now().UTC())
	require.NoError(t, err)

	p, err := e.learnerRepo.GetByID(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, learner.Role("research_track"), p.CurrentRole)
	assert.Equal(t, 2, p.CurrentLevel, "roles outside the catalog keep the current level")

	// No year suffix, so the academic record is untouched.
	year, err := e.academicRepo.GetYearOfStudy(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, 0, year)
}

func TestPropagator_ExpectedFromMismatch(t *testing.T) {
	e := newTestEnv()
	e.seedLearner("l1", progression.RoleYear3, 40, 75)

	err := e.propagator.Apply(context.Background(), "l1",
		progression.RoleYear2, progression.RoleYear3, progression.TransitionManual, time.Now().UTC())
	assert.True(t, shared.IsConcurrentModification(err))

	p, getErr := e.learnerRepo.GetByID(context.Background(), "l1")
	require.NoError(t, getErr)
	assert.Empty(t, p.TransitionHistory)
}

func TestPropagator_AcademicRecordFailureIsInconsistency(t *testing.T) {
	e := newTestEnv()
	e.seedLearner("l1", progression.RoleYear2, 20, 75)
	e.academicRepo.setErr = errors.New("legacy system offline")

	err := e.propagator.Apply(context.Background(), "l1",
		progression.RoleYear2, progression.RoleYear3, progression.TransitionManual, time.Now().UTC())
	assert.True(t, shared.IsInconsistency(err))

	// The profile write already happened; the error reports the partial
	// application rather than rolling it back.
	p, getErr := e.learnerRepo.GetByID(context.Background(), "l1")
	require.NoError(t, getErr)
	assert.Equal(t, progression.RoleYear3, p.CurrentRole)
}

func TestPropagator_InvalidatesCache(t *testing.T) {
	e := newTestEnv()
	e.seedLearner("l1", progression.RoleYear2, 20, 75)
	cache := &recordingCache{}
	propagator := NewRolePropagator(e.learnerRepo, e.academicRepo, e.catalog, cache, nil)

	err := propagator.Apply(context.Background(), "l1",
		progression.RoleYear2, progression.RoleYear3, progression.TransitionManual, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, []string{"l1"}, cache.invalidated)
}

func TestPropagator_CacheFailureIsTolerated(t *testing.T) {
	e := newTestEnv()
	e.seedLearner("l1", progression.RoleYear2, 20, 75)
	cache := &recordingCache{err: errors.New("redis down")}
	propagator := NewRolePropagator(e.learnerRepo, e.academicRepo, e.catalog, cache, nil)

	err := propagator.Apply(context.Background(), "l1",
		progression.RoleYear2, progression.RoleYear3, progression.TransitionManual, time.Now().UTC())
	assert.NoError(t, err, "cache staleness expires by TTL and never fails the write")
}

func TestPropagator_LearnerNotFound(t *testing.T) {
	e := newTestEnv()

	err := e.propagator.Apply(context.Background(), "ghost",
		progression.RoleYear2, progression.RoleYear3, progression.TransitionManual, time.Now().UTC())
	assert.ErrorIs(t, err, learner.ErrProfileNotFound)
}
