package redis

import (
	"context"
	"errors"
	"time"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
)

// LearnerCache implements the learner.Cache interface on the generic Cache.
type LearnerCache struct {
	cache *Cache
}

// NewLearnerCache creates a new LearnerCache.
func NewLearnerCache(cache *Cache) *LearnerCache {
	return &LearnerCache{cache: cache}
}

// Get fetches a profile from the cache.
// Returns ErrCacheMiss when the profile is not cached.
func (c *LearnerCache) Get(ctx context.Context, learnerID string) (*learner.Profile, error) {
	var p learner.Profile
	if err := c.cache.Get(ctx, LearnerKey(learnerID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Set stores a profile in the cache.
func (c *LearnerCache) Set(ctx context.Context, p *learner.Profile, ttl time.Duration) error {
	if p == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = TTLLearnerCache
	}
	return c.cache.Set(ctx, LearnerKey(p.ID), p, ttl)
}

// Invalidate removes a learner's cache entry.
func (c *LearnerCache) Invalidate(ctx context.Context, learnerID string) error {
	return c.cache.Delete(ctx, LearnerKey(learnerID))
}

// InvalidateAll clears the whole profile cache.
func (c *LearnerCache) InvalidateAll(ctx context.Context) error {
	return c.cache.DeleteByPattern(ctx, PrefixLearner+"*")
}

// IsMiss reports whether the error is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
