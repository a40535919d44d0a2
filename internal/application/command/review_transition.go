package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW TRANSITION COMMAND
// Applies a reviewer decision to a pending transition record. A record is
// decided at most once; re-reviewing a terminal record fails.
// ══════════════════════════════════════════════════════════════════════════════

// Decision is the reviewer's verdict on a pending transition.
type Decision string

const (
	DecisionApprove     Decision = "approve"
	DecisionReject      Decision = "reject"
	DecisionConditional Decision = "conditional"
)

// IsValid checks that the decision is known.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionConditional:
		return true
	default:
		return false
	}
}

// ReviewTransitionCommand contains the reviewer's decision.
type ReviewTransitionCommand struct {
	// TransitionID is the ID of the record under review.
	TransitionID string

	// ReviewerID is the ID of the deciding reviewer.
	ReviewerID string

	// Decision is the verdict: approve, reject or conditional.
	Decision Decision

	// Notes are the reviewer's notes. For a rejection they double as the
	// rejection reason.
	Notes string

	// Conditions are required for a conditional decision: the out-of-band
	// obligations attached to the approval.
	Conditions []string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ReviewTransitionCommand) Validate() error {
	if c.TransitionID == "" {
		return errors.New("review_transition: transition_id is required")
	}
	if c.ReviewerID == "" {
		return errors.New("review_transition: reviewer_id is required")
	}
	if !c.Decision.IsValid() {
		return fmt.Errorf("review_transition: unknown decision: %q", c.Decision)
	}
	if c.Decision == DecisionConditional && len(c.Conditions) == 0 {
		return errors.New("review_transition: conditional decision requires at least one condition")
	}
	return nil
}

// ReviewTransitionResult contains the result of the review.
type ReviewTransitionResult struct {
	// TransitionID is the ID of the decided record.
	TransitionID string

	// Status is the record's terminal status after the decision.
	Status progression.ApprovalStatus

	// EffectiveDate is set only for an approval.
	EffectiveDate *time.Time

	// Events contains domain events generated.
	Events []shared.Event
}

// ReviewTransitionHandler handles the ReviewTransitionCommand.
type ReviewTransitionHandler struct {
	recordRepo     progression.RecordRepository
	catalog        *progression.Catalog
	propagator     *RolePropagator
	eventPublisher shared.EventPublisher
}

// NewReviewTransitionHandler creates a new ReviewTransitionHandler.
func NewReviewTransitionHandler(
	recordRepo progression.RecordRepository,
	catalog *progression.Catalog,
	propagator *RolePropagator,
	eventPublisher shared.EventPublisher,
) *ReviewTransitionHandler {
	return &ReviewTransitionHandler{
		recordRepo:     recordRepo,
		catalog:        catalog,
		propagator:     propagator,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the review transition command.
//
// For an approval, the role change is propagated to the learner's records
// before the decision is persisted: if propagation fails, the record stays
// pending and the reviewer can retry. Rejection and conditional decisions
// leave the learner's role untouched.
func (h *ReviewTransitionHandler) Handle(ctx context.Context, cmd ReviewTransitionCommand) (*ReviewTransitionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("progression", "Review", shared.ErrValidation, err.Error(), err)
	}

	record, err := h.recordRepo.GetByID(ctx, cmd.TransitionID)
	if err != nil {
		return nil, shared.WrapError("progression", "Review", shared.ErrNotFound,
			fmt.Sprintf("transition %s not found", cmd.TransitionID), err)
	}

	if record.IsDecided() {
		return nil, shared.WrapError("progression", "Review", shared.ErrAlreadyDecided,
			fmt.Sprintf("transition %s is already %s", record.ID, record.Approval.Status), nil)
	}

	now := time.Now().UTC()

	var outcome shared.EventType
	switch cmd.Decision {
	case DecisionApprove:
		if err := h.propagator.Apply(ctx, record.LearnerID, record.Details.FromRole,
			record.Details.ToRole, record.Details.TransitionType, now); err != nil {
			return nil, err
		}
		if err := record.Approve(cmd.ReviewerID, cmd.Notes, now); err != nil {
			return nil, err
		}
		outcome = shared.EventTransitionApproved

	case DecisionReject:
		if err := record.Reject(cmd.ReviewerID, cmd.Notes, now); err != nil {
			return nil, err
		}
		outcome = shared.EventTransitionRejected

	case DecisionConditional:
		if err := record.MakeConditional(cmd.ReviewerID, cmd.Notes, cmd.Conditions, now); err != nil {
			return nil, err
		}
		outcome = shared.EventTransitionConditional
	}

	if err := h.recordRepo.Update(ctx, record); err != nil {
		if cmd.Decision == DecisionApprove {
			// The role is already propagated but the decision did not land.
			return nil, shared.WrapError("progression", "Review", shared.ErrInconsistency,
				fmt.Sprintf("role advanced for learner %s but transition %s was not marked approved",
					record.LearnerID, record.ID), err)
		}
		return nil, shared.WrapError("progression", "Review", shared.ErrInvalidState,
			"failed to save decision", err)
	}

	result := &ReviewTransitionResult{
		TransitionID:  record.ID,
		Status:        record.Approval.Status,
		EffectiveDate: record.Timeline.EffectiveDate,
		Events:        make([]shared.Event, 0, 2),
	}

	decided := shared.NewTransitionDecidedEvent(
		outcome,
		record.ID, record.LearnerID,
		record.Details.FromRole.String(), record.Details.ToRole.String(),
		cmd.ReviewerID, cmd.Notes,
	)
	if cmd.CorrelationID != "" {
		decided.BaseEvent = decided.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, decided)

	if cmd.Decision == DecisionApprove {
		level, _ := h.catalog.LevelOf(record.Details.ToRole)
		advanced := shared.NewRoleAdvancedEvent(
			record.LearnerID,
			record.Details.FromRole.String(), record.Details.ToRole.String(),
			level, record.Details.TransitionType == progression.TransitionAutomatic,
		)
		if cmd.CorrelationID != "" {
			advanced.BaseEvent = advanced.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		result.Events = append(result.Events, advanced)
	}

	for _, e := range result.Events {
		_ = h.eventPublisher.Publish(e)
	}

	return result, nil
}
