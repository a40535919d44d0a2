// Package eventhandler contains domain event handlers.
// Handlers are the reactive part of the system: they respond to progression
// events with side effects such as cache invalidation and audit logging,
// keeping those concerns out of the command handlers.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

const defaultCacheTTL = 15 * time.Minute

// ═══════════════════════════════════════════════════════════════════════════
// ON ROLE ADVANCED HANDLER
// Reacts to a completed role change: refreshes the cached profile and
// writes the audit log line that the registrar's office greps for.
// ═══════════════════════════════════════════════════════════════════════════

// OnRoleAdvancedHandler processes RoleAdvancedEvent.
type OnRoleAdvancedHandler struct {
	learnerRepo learner.Repository
	cache       learner.Cache // optional

	logger *slog.Logger

	config RoleAdvancedConfig
}

// RoleAdvancedConfig contains configuration for the handler.
type RoleAdvancedConfig struct {
	// RefreshCache re-caches the updated profile after invalidation, so
	// the next read is warm. When false the entry is only invalidated.
	RefreshCache bool

	// CacheTTL is the TTL used when re-caching.
	CacheTTL time.Duration
}

// DefaultRoleAdvancedConfig returns default configuration.
func DefaultRoleAdvancedConfig() RoleAdvancedConfig {
	return RoleAdvancedConfig{
		RefreshCache: true,
		CacheTTL:     defaultCacheTTL,
	}
}

// NewOnRoleAdvancedHandler creates a new role-advanced event handler.
func NewOnRoleAdvancedHandler(
	learnerRepo learner.Repository,
	cache learner.Cache,
	logger *slog.Logger,
	config RoleAdvancedConfig,
) *OnRoleAdvancedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaultCacheTTL
	}

	return &OnRoleAdvancedHandler{
		learnerRepo: learnerRepo,
		cache:       cache,
		logger:      logger.With("handler", "on_role_advanced"),
		config:      config,
	}
}

// Handle processes the role advanced event.
// Implements the shared.EventHandler signature.
func (h *OnRoleAdvancedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	advanced, ok := event.(shared.RoleAdvancedEvent)
	if !ok {
		h.logger.Warn("received non-RoleAdvancedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.logger.Info("learner role advanced",
		"learner_id", advanced.LearnerID,
		"from_role", advanced.FromRole,
		"to_role", advanced.ToRole,
		"new_level", advanced.NewLevel,
		"automatic", advanced.Automatic,
		"correlation_id", advanced.CorrelationID,
	)

	if h.cache == nil {
		return nil
	}

	if err := h.cache.Invalidate(ctx, advanced.LearnerID); err != nil {
		h.logger.Warn("failed to invalidate profile cache",
			"learner_id", advanced.LearnerID,
			"error", err,
		)
		// Stale entries expire by TTL; not worth failing the handler.
		return nil
	}

	if !h.config.RefreshCache {
		return nil
	}

	profile, err := h.learnerRepo.GetByID(ctx, advanced.LearnerID)
	if err != nil {
		return fmt.Errorf("get learner for cache refresh: %w", err)
	}

	if err := h.cache.Set(ctx, profile, h.config.CacheTTL); err != nil {
		h.logger.Warn("failed to refresh profile cache",
			"learner_id", advanced.LearnerID,
			"error", err,
		)
	}

	return nil
}

// EventType returns the event type this handler processes.
func (h *OnRoleAdvancedHandler) EventType() shared.EventType {
	return shared.EventRoleAdvanced
}
