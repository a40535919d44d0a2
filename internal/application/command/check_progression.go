package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK PROGRESSION COMMAND
// Probes the automatic progression path for a learner: if the current role
// has an auto-advance rule and the learner meets its thresholds, the system
// promotes the learner and writes an approved automatic record. Safe to
// invoke repeatedly - an ineligible or already-promoted learner is a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// CheckProgressionCommand contains the data to check automatic progression.
type CheckProgressionCommand struct {
	// LearnerID is the ID of the learner to check.
	LearnerID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CheckProgressionCommand) Validate() error {
	if c.LearnerID == "" {
		return errors.New("check_progression: learner_id is required")
	}
	return nil
}

// CheckProgressionResult contains the outcome of the eligibility probe.
type CheckProgressionResult struct {
	// Advanced is true when the learner was promoted.
	Advanced bool

	// HasRule is false when the current role has no automatic path.
	HasRule bool

	// SkippedPending is true when a pending manual request blocked the
	// automatic path.
	SkippedPending bool

	// LostRace is true when a concurrent writer moved the learner between
	// the eligibility read and the promotion write. No record was created;
	// the next check re-evaluates from scratch.
	LostRace bool

	// TransitionID is the ID of the created record (when Advanced).
	TransitionID string

	// FromRole / ToRole describe the evaluated step.
	FromRole learner.Role
	ToRole   learner.Role

	// Progress is the completion percentage against the auto-advance rule.
	Progress float64

	// Unmet lists the requirement dimensions not yet satisfied.
	Unmet progression.UnmetRequirements

	// Events contains domain events generated.
	Events []shared.Event
}

// CheckProgressionHandler handles the CheckProgressionCommand.
type CheckProgressionHandler struct {
	learnerRepo    learner.Repository
	recordRepo     progression.RecordRepository
	catalog        *progression.Catalog
	propagator     *RolePropagator
	eventPublisher shared.EventPublisher
	logger         *slog.Logger
}

// NewCheckProgressionHandler creates a new CheckProgressionHandler.
func NewCheckProgressionHandler(
	learnerRepo learner.Repository,
	recordRepo progression.RecordRepository,
	catalog *progression.Catalog,
	propagator *RolePropagator,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *CheckProgressionHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &CheckProgressionHandler{
		learnerRepo:    learnerRepo,
		recordRepo:     recordRepo,
		catalog:        catalog,
		propagator:     propagator,
		eventPublisher: eventPublisher,
		logger:         logger.With("handler", "check_progression"),
	}
}

// Handle executes the check progression command.
func (h *CheckProgressionHandler) Handle(ctx context.Context, cmd CheckProgressionCommand) (*CheckProgressionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("progression", "Check", shared.ErrValidation, err.Error(), err)
	}

	profile, err := h.learnerRepo.GetByID(ctx, cmd.LearnerID)
	if err != nil {
		return nil, shared.WrapError("progression", "Check", shared.ErrNotFound,
			"learner not found", err)
	}

	result := &CheckProgressionResult{
		FromRole: profile.CurrentRole,
		Events:   make([]shared.Event, 0),
	}

	eligibility := progression.CheckAutomaticEligibility(h.catalog, profile)
	if !eligibility.HasRule {
		// Terminal role or manual-only stage: nothing to do.
		return result, nil
	}

	result.HasRule = true
	result.ToRole = eligibility.Rule.NextRole
	result.Progress = eligibility.Progress
	result.Unmet = progression.Unmet(eligibility.Snapshot)

	if !eligibility.Eligible {
		return result, nil
	}

	// A pending manual request takes precedence over the automatic path;
	// promoting underneath it would both violate the one-pending rule and
	// pull the rug from under the reviewer.
	pending, err := h.recordRepo.FindPending(ctx, cmd.LearnerID)
	if err != nil {
		return nil, shared.WrapError("progression", "Check", shared.ErrInvalidState,
			"failed to check for pending transitions", err)
	}
	if pending != nil {
		result.SkippedPending = true
		h.logger.Debug("automatic progression skipped: pending transition exists",
			"learner_id", cmd.LearnerID, "pending_id", pending.ID)
		return result, nil
	}

	record, err := progression.NewRecord(progression.NewRecordParams{
		ID:              uuid.New().String(),
		LearnerID:       cmd.LearnerID,
		FromRole:        profile.CurrentRole,
		ToRole:          eligibility.Rule.NextRole,
		TransitionType:  progression.TransitionAutomatic,
		Reason:          "automatic progression: eligibility thresholds met",
		Requirements:    eligibility.Snapshot,
		InitiatedBy:     cmd.LearnerID,
		SystemGenerated: true,
	})
	if err != nil {
		return nil, shared.WrapError("progression", "Check", shared.ErrValidation,
			"failed to build transition record", err)
	}

	now := time.Now().UTC()
	if err := record.Approve("system", "auto-promoted by eligibility check", now); err != nil {
		return nil, err
	}

	if err := h.propagator.Apply(ctx, cmd.LearnerID, profile.CurrentRole,
		record.Details.ToRole, progression.TransitionAutomatic, now); err != nil {
		if shared.IsConcurrentModification(err) {
			// Someone else moved the learner between the eligibility read
			// and the write. The next sweep re-evaluates from scratch.
			h.logger.Debug("automatic progression lost the race, skipping",
				"learner_id", cmd.LearnerID, "error", err)
			result.LostRace = true
			return result, nil
		}
		return nil, err
	}

	if err := h.recordRepo.Create(ctx, record); err != nil {
		// The role is already propagated; the audit record must follow.
		return nil, shared.WrapError("progression", "Check", shared.ErrInconsistency,
			"role advanced but automatic transition record was not persisted", err)
	}

	result.Advanced = true
	result.TransitionID = record.ID

	promoted := shared.NewAutoPromotedEvent(
		record.ID, cmd.LearnerID,
		record.Details.FromRole.String(), record.Details.ToRole.String(),
		eligibility.Snapshot.CurrentAverageScore,
		eligibility.Snapshot.SimulationsCompleted,
	)
	level, _ := h.catalog.LevelOf(record.Details.ToRole)
	advanced := shared.NewRoleAdvancedEvent(
		cmd.LearnerID,
		record.Details.FromRole.String(), record.Details.ToRole.String(),
		level, true,
	)
	if cmd.CorrelationID != "" {
		promoted.BaseEvent = promoted.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		advanced.BaseEvent = advanced.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, promoted, advanced)

	for _, e := range result.Events {
		_ = h.eventPublisher.Publish(e)
	}

	h.logger.Info("learner auto-promoted",
		"learner_id", cmd.LearnerID,
		"from_role", record.Details.FromRole.String(),
		"to_role", record.Details.ToRole.String(),
		"transition_id", record.ID,
	)

	return result, nil
}
