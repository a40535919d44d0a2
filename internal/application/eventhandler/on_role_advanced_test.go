package eventhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

type stubLearnerRepo struct {
	profile *learner.Profile
	err     error
}

func (r *stubLearnerRepo) Create(context.Context, *learner.Profile) error { return nil }

func (r *stubLearnerRepo) GetByID(context.Context, string) (*learner.Profile, error) {
	return r.profile, r.err
}

func (r *stubLearnerRepo) GetByEmail(context.Context, string) (*learner.Profile, error) {
	return nil, learner.ErrProfileNotFound
}

func (r *stubLearnerRepo) Save(context.Context, *learner.Profile) error { return nil }

func (r *stubLearnerRepo) GetByRole(context.Context, learner.Role, learner.ListOptions) ([]*learner.Profile, error) {
	return nil, nil
}

func (r *stubLearnerRepo) GetAll(context.Context, learner.ListOptions) ([]*learner.Profile, error) {
	return nil, nil
}

func (r *stubLearnerRepo) Count(context.Context) (int, error) { return 0, nil }

func (r *stubLearnerRepo) ExistsByEmail(context.Context, string) (bool, error) { return false, nil }

type spyCache struct {
	invalidated []string
	setCalls    []string
	setTTL      time.Duration
	invalidErr  error
	setErr      error
}

func (c *spyCache) Get(context.Context, string) (*learner.Profile, error) {
	return nil, errors.New("miss")
}

func (c *spyCache) Set(_ context.Context, p *learner.Profile, ttl time.Duration) error {
	c.setCalls = append(c.setCalls, p.ID)
	c.setTTL = ttl
	return c.setErr
}

func (c *spyCache) Invalidate(_ context.Context, learnerID string) error {
	c.invalidated = append(c.invalidated, learnerID)
	return c.invalidErr
}

func (c *spyCache) InvalidateAll(context.Context) error { return nil }

func advancedEvent() shared.RoleAdvancedEvent {
	return shared.NewRoleAdvancedEvent("l1", "year1", "year2", 2, true)
}

func TestOnRoleAdvanced_InvalidatesAndRefreshesCache(t *testing.T) {
	repo := &stubLearnerRepo{profile: &learner.Profile{ID: "l1"}}
	cache := &spyCache{}
	h := NewOnRoleAdvancedHandler(repo, cache, nil, DefaultRoleAdvancedConfig())

	require.NoError(t, h.Handle(advancedEvent()))

	assert.Equal(t, []string{"l1"}, cache.invalidated)
	assert.Equal(t, []string{"l1"}, cache.setCalls)
	assert.Equal(t, defaultCacheTTL, cache.setTTL)
}

func TestOnRoleAdvanced_InvalidateOnlyMode(t *testing.T) {
	repo := &stubLearnerRepo{profile: &learner.Profile{ID: "l1"}}
	cache := &spyCache{}
	h := NewOnRoleAdvancedHandler(repo, cache, nil, RoleAdvancedConfig{RefreshCache: false})

	require.NoError(t, h.Handle(advancedEvent()))

	assert.Equal(t, []string{"l1"}, cache.invalidated)
	assert.Empty(t, cache.setCalls)
}

func TestOnRoleAdvanced_NoCacheConfigured(t *testing.T) {
	h := NewOnRoleAdvancedHandler(&stubLearnerRepo{}, nil, nil, DefaultRoleAdvancedConfig())

	assert.NoError(t, h.Handle(advancedEvent()))
}

func TestOnRoleAdvanced_InvalidationFailureIsTolerated(t *testing.T) {
	repo := &stubLearnerRepo{profile: &learner.Profile{ID: "l1"}}
	cache := &spyCache{invalidErr: errors.New("redis down")}
	h := NewOnRoleAdvancedHandler(repo, cache, nil, DefaultRoleAdvancedConfig())

	// Stale cache entries expire by TTL, so a failed invalidation does not
	// fail the handler - and no refresh is attempted on top of it.
	require.NoError(t, h.Handle(advancedEvent()))
	assert.Empty(t, cache.setCalls)
}

func TestOnRoleAdvanced_RefreshLookupFailureIsReported(t *testing.T) {
	repo := &stubLearnerRepo{err: learner.ErrProfileNotFound}
	cache := &spyCache{}
	h := NewOnRoleAdvancedHandler(repo, cache, nil, DefaultRoleAdvancedConfig())

	assert.Error(t, h.Handle(advancedEvent()))
}

func TestOnRoleAdvanced_IgnoresOtherEvents(t *testing.T) {
	cache := &spyCache{}
	h := NewOnRoleAdvancedHandler(&stubLearnerRepo{}, cache, nil, DefaultRoleAdvancedConfig())

	event := shared.NewLearnerEnrolledEvent("l1", "a@b.c", "A", "year1")
	require.NoError(t, h.Handle(event))
	assert.Empty(t, cache.invalidated)
}

func TestOnRoleAdvanced_EventType(t *testing.T) {
	h := NewOnRoleAdvancedHandler(&stubLearnerRepo{}, nil, nil, DefaultRoleAdvancedConfig())
	assert.Equal(t, shared.EventRoleAdvanced, h.EventType())
}
