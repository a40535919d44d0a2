// Package query contains read operations (CQRS - Queries).
// Queries never mutate state; they shape domain objects into DTOs for
// reviewer dashboards and audit views.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST PENDING TRANSITIONS QUERY
// The reviewer's work queue: every pending progression request, optionally
// narrowed to a target role.
// ══════════════════════════════════════════════════════════════════════════════

// ListPendingQuery contains parameters for listing pending transitions.
type ListPendingQuery struct {
	// ForRole narrows the list to requests targeting this role.
	// Empty means all pending requests.
	ForRole learner.Role

	// Offset is the pagination offset.
	Offset int

	// Limit is the maximum number of records (default 50, cap 200).
	Limit int
}

// Validate validates the query parameters.
func (q *ListPendingQuery) Validate() error {
	if q.Offset < 0 {
		return errors.New("list_pending: offset cannot be negative")
	}
	if q.Limit < 0 {
		return errors.New("list_pending: limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	return nil
}

// PendingTransitionDTO is one entry of the reviewer queue.
type PendingTransitionDTO struct {
	// TransitionID is the record ID.
	TransitionID string `json:"transition_id"`

	// LearnerID is the requesting learner.
	LearnerID string `json:"learner_id"`

	// FromRole is the learner's role when the request was filed.
	FromRole string `json:"from_role"`

	// ToRole is the requested target role.
	ToRole string `json:"to_role"`

	// TransitionType is manual or automatic.
	TransitionType string `json:"transition_type"`

	// Reason is the requester's stated reason.
	Reason string `json:"reason,omitempty"`

	// Completion is the completion percentage against the snapshot taken
	// at request time.
	Completion float64 `json:"completion"`

	// RequestedAt is when the request was filed.
	RequestedAt time.Time `json:"requested_at"`

	// WaitingFor is how long the request has been in the queue.
	WaitingFor time.Duration `json:"waiting_for"`
}

// ListPendingResult contains the result of the pending-transitions query.
type ListPendingResult struct {
	// Transitions is the pending queue, oldest first.
	Transitions []PendingTransitionDTO `json:"transitions"`

	// ForRole echoes the applied role filter (empty = all).
	ForRole string `json:"for_role,omitempty"`

	// GeneratedAt is when the result was produced.
	GeneratedAt time.Time `json:"generated_at"`
}

// ListPendingHandler handles the ListPendingQuery.
type ListPendingHandler struct {
	recordRepo progression.RecordRepository
}

// NewListPendingHandler creates a new ListPendingHandler.
func NewListPendingHandler(recordRepo progression.RecordRepository) *ListPendingHandler {
	return &ListPendingHandler{recordRepo: recordRepo}
}

// Handle executes the pending-transitions query.
func (h *ListPendingHandler) Handle(ctx context.Context, query ListPendingQuery) (*ListPendingResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "ListPending", shared.ErrValidation, err.Error(), err)
	}

	opts := learner.DefaultListOptions().
		WithOffset(query.Offset).
		WithLimit(query.Limit).
		WithSort("requested_date", false)

	records, err := h.recordRepo.ListPending(ctx, query.ForRole, opts)
	if err != nil {
		return nil, shared.WrapError("query", "ListPending", shared.ErrInvalidState,
			"failed to list pending transitions", err)
	}

	now := time.Now().UTC()
	dtos := make([]PendingTransitionDTO, 0, len(records))
	for _, r := range records {
		dtos = append(dtos, PendingTransitionDTO{
			TransitionID:   r.ID,
			LearnerID:      r.LearnerID,
			FromRole:       r.Details.FromRole.String(),
			ToRole:         r.Details.ToRole.String(),
			TransitionType: string(r.Details.TransitionType),
			Reason:         r.Details.Reason,
			Completion:     progression.CompletionPercentage(r.Requirements),
			RequestedAt:    r.Timeline.RequestedDate,
			WaitingFor:     now.Sub(r.Timeline.RequestedDate),
		})
	}

	return &ListPendingResult{
		Transitions: dtos,
		ForRole:     query.ForRole.String(),
		GeneratedAt: now,
	}, nil
}
