package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST TRANSITION COMMAND
// Creates a manual progression request for a learner. A learner can hold at
// most one pending request at a time. If the learner already satisfies every
// requirement of the target role, the request is approved immediately by the
// system instead of waiting in a reviewer's queue.
// ══════════════════════════════════════════════════════════════════════════════

// RequestTransitionCommand contains the data to request a role transition.
type RequestTransitionCommand struct {
	// LearnerID is the ID of the learner requesting the transition.
	LearnerID string

	// ToRole is the requested target role.
	ToRole learner.Role

	// Reason is the requester's stated reason (optional).
	Reason string

	// InitiatedBy identifies who filed the request: the learner themselves
	// or an instructor acting on their behalf. Defaults to the learner.
	InitiatedBy string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RequestTransitionCommand) Validate() error {
	if c.LearnerID == "" {
		return errors.New("request_transition: learner_id is required")
	}
	if !c.ToRole.IsValid() {
		return fmt.Errorf("request_transition: invalid target role: %q", c.ToRole)
	}
	return nil
}

// RequestTransitionResult contains the result of requesting a transition.
type RequestTransitionResult struct {
	// TransitionID is the ID of the created record.
	TransitionID string

	// Status is the record's approval status after the request. Usually
	// pending; approved when the auto-approval path fired.
	Status progression.ApprovalStatus

	// AutoApproved is true when the system approved the request without a
	// reviewer.
	AutoApproved bool

	// Completion is the completion percentage against the target role's
	// requirements at request time.
	Completion float64

	// Unmet lists the requirement dimensions not yet satisfied.
	Unmet progression.UnmetRequirements

	// Events contains domain events generated.
	Events []shared.Event

	// CreatedAt is when the record was created.
	CreatedAt time.Time
}

// RequestTransitionHandler handles the RequestTransitionCommand.
type RequestTransitionHandler struct {
	learnerRepo    learner.Repository
	recordRepo     progression.RecordRepository
	catalog        *progression.Catalog
	propagator     *RolePropagator
	eventPublisher shared.EventPublisher

	// Configuration
	autoApprovalEnabled bool
}

// RequestTransitionHandlerConfig contains configuration for the handler.
type RequestTransitionHandlerConfig struct {
	AutoApprovalEnabled bool // Approve immediately when all requirements are met
}

// DefaultRequestTransitionHandlerConfig returns default configuration.
func DefaultRequestTransitionHandlerConfig() RequestTransitionHandlerConfig {
	return RequestTransitionHandlerConfig{
		AutoApprovalEnabled: true,
	}
}

// NewRequestTransitionHandler creates a new RequestTransitionHandler.
func NewRequestTransitionHandler(
	learnerRepo learner.Repository,
	recordRepo progression.RecordRepository,
	catalog *progression.Catalog,
	propagator *RolePropagator,
	eventPublisher shared.EventPublisher,
	config RequestTransitionHandlerConfig,
) *RequestTransitionHandler {
	return &RequestTransitionHandler{
		learnerRepo:         learnerRepo,
		recordRepo:          recordRepo,
		catalog:             catalog,
		propagator:          propagator,
		eventPublisher:      eventPublisher,
		autoApprovalEnabled: config.AutoApprovalEnabled,
	}
}

// Handle executes the request transition command.
func (h *RequestTransitionHandler) Handle(ctx context.Context, cmd RequestTransitionCommand) (*RequestTransitionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("progression", "Request", shared.ErrValidation, err.Error(), err)
	}

	profile, err := h.learnerRepo.GetByID(ctx, cmd.LearnerID)
	if err != nil {
		return nil, shared.WrapError("progression", "Request", shared.ErrNotFound,
			fmt.Sprintf("learner %s not found", cmd.LearnerID), err)
	}

	// One pending request per learner. The database constraint is the
	// serialization point; this read gives a friendly early answer.
	if pending, err := h.recordRepo.FindPending(ctx, cmd.LearnerID); err != nil {
		return nil, shared.WrapError("progression", "Request", shared.ErrInvalidState,
			"failed to check for pending transitions", err)
	} else if pending != nil {
		return nil, shared.WrapError("progression", "Request", shared.ErrDuplicate,
			fmt.Sprintf("pending transition %s already exists", pending.ID), nil)
	}

	// Unrecognized target roles are allowed with zero requirements: the
	// catalog gates the curriculum ladder, not experimental pilot roles.
	// With nothing required, the request still routes through a reviewer.
	req, known := h.catalog.RequirementsFor(cmd.ToRole)
	if !known {
		req = progression.Requirements{}
	}

	snap := progression.SnapshotFor(req, profile)

	initiatedBy := cmd.InitiatedBy
	if initiatedBy == "" {
		initiatedBy = cmd.LearnerID
	}

	record, err := progression.NewRecord(progression.NewRecordParams{
		ID:             uuid.New().String(),
		LearnerID:      cmd.LearnerID,
		FromRole:       profile.CurrentRole,
		ToRole:         cmd.ToRole,
		TransitionType: progression.TransitionManual,
		Reason:         cmd.Reason,
		Requirements:   snap,
		InitiatedBy:    initiatedBy,
	})
	if err != nil {
		return nil, shared.WrapError("progression", "Request", shared.ErrValidation,
			"failed to build transition record", err)
	}

	result := &RequestTransitionResult{
		TransitionID: record.ID,
		Completion:   progression.CompletionPercentage(snap),
		Unmet:        progression.Unmet(snap),
		Events:       make([]shared.Event, 0),
		CreatedAt:    record.CreatedAt,
	}

	autoApprove := h.autoApprovalEnabled && known && !req.IsZero() &&
		progression.IsAutoApprovalEligible(snap)

	if autoApprove {
		if err := h.autoApproveAndPropagate(ctx, record, profile); err != nil {
			return nil, err
		}
		result.AutoApproved = true
		result.Events = append(result.Events, h.decidedEvents(cmd, record)...)
	} else {
		if err := h.recordRepo.Create(ctx, record); err != nil {
			if shared.IsDuplicate(err) {
				return nil, err
			}
			return nil, shared.WrapError("progression", "Request", shared.ErrInvalidState,
				"failed to save transition record", err)
		}
	}

	result.Status = record.Approval.Status

	requested := shared.NewTransitionRequestedEvent(
		record.ID, cmd.LearnerID,
		record.Details.FromRole.String(), record.Details.ToRole.String(),
		false,
	)
	if cmd.CorrelationID != "" {
		requested.BaseEvent = requested.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, requested)

	for _, e := range result.Events {
		_ = h.eventPublisher.Publish(e)
	}

	return result, nil
}

// autoApproveAndPropagate approves the record as a system decision and
// applies the role change. The profile update is written first; the record
// follows. A failure between the two writes is surfaced as a propagation
// inconsistency, never silently absorbed.
func (h *RequestTransitionHandler) autoApproveAndPropagate(
	ctx context.Context,
	record *progression.TransitionRecord,
	profile *learner.Profile,
) error {
	now := time.Now().UTC()

	if err := record.Approve("system", "auto-approved: all requirements met", now); err != nil {
		return err
	}

	if err := h.propagator.Apply(ctx, record.LearnerID, record.Details.FromRole,
		record.Details.ToRole, progression.TransitionManual, now); err != nil {
		return err
	}

	if err := h.recordRepo.Create(ctx, record); err != nil {
		// The role is already propagated. A duplicate here means another
		// request slipped in between the pending check and this insert;
		// either way the audit trail is now missing the applied change.
		return shared.WrapError("progression", "Request", shared.ErrInconsistency,
			fmt.Sprintf("role advanced to %s but transition record was not persisted", record.Details.ToRole), err)
	}

	return nil
}

// decidedEvents builds the approval and role-advanced events for an
// auto-approved request.
func (h *RequestTransitionHandler) decidedEvents(
	cmd RequestTransitionCommand,
	record *progression.TransitionRecord,
) []shared.Event {
	level, _ := h.catalog.LevelOf(record.Details.ToRole)

	approved := shared.NewTransitionDecidedEvent(
		shared.EventTransitionApproved,
		record.ID, record.LearnerID,
		record.Details.FromRole.String(), record.Details.ToRole.String(),
		"system", record.Approval.ReviewNotes,
	)
	advanced := shared.NewRoleAdvancedEvent(
		record.LearnerID,
		record.Details.FromRole.String(), record.Details.ToRole.String(),
		level, false,
	)
	if cmd.CorrelationID != "" {
		approved.BaseEvent = approved.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		advanced.BaseEvent = advanced.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}

	return []shared.Event{approved, advanced}
}
