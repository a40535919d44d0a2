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
// LIST HISTORY QUERY
// A learner's full progression audit trail, most recent request first.
// Records are never deleted, so this is the complete history.
// ══════════════════════════════════════════════════════════════════════════════

// ListHistoryQuery contains parameters for listing a learner's transitions.
type ListHistoryQuery struct {
	// LearnerID is the learner whose history is requested.
	LearnerID string

	// Offset is the pagination offset.
	Offset int

	// Limit is the maximum number of records (default 50, cap 200).
	Limit int
}

// Validate validates the query parameters.
func (q *ListHistoryQuery) Validate() error {
	if q.LearnerID == "" {
		return errors.New("list_history: learner_id is required")
	}
	if q.Offset < 0 {
		return errors.New("list_history: offset cannot be negative")
	}
	if q.Limit < 0 {
		return errors.New("list_history: limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	return nil
}

// TransitionHistoryDTO is one entry of a learner's audit trail.
type TransitionHistoryDTO struct {
	// TransitionID is the record ID.
	TransitionID string `json:"transition_id"`

	// FromRole / ToRole describe the requested change.
	FromRole string `json:"from_role"`
	ToRole   string `json:"to_role"`

	// TransitionType is manual or automatic.
	TransitionType string `json:"transition_type"`

	// Status is the record's approval status.
	Status string `json:"status"`

	// DecidedBy is the reviewer (or "system"), empty while pending.
	DecidedBy string `json:"decided_by,omitempty"`

	// ReviewNotes are the reviewer's notes.
	ReviewNotes string `json:"review_notes,omitempty"`

	// RejectionReason is set for rejected records.
	RejectionReason string `json:"rejection_reason,omitempty"`

	// Conditions are set for conditional records.
	Conditions []string `json:"conditions,omitempty"`

	// RequestedAt is when the request was filed.
	RequestedAt time.Time `json:"requested_at"`

	// EffectiveAt is when the role change took effect (approved only).
	EffectiveAt *time.Time `json:"effective_at,omitempty"`

	// SystemGenerated is true for records created by the eligibility sweep.
	SystemGenerated bool `json:"system_generated"`
}

// ListHistoryResult contains the result of the history query.
type ListHistoryResult struct {
	// LearnerID echoes the queried learner.
	LearnerID string `json:"learner_id"`

	// Transitions is the audit trail, newest first.
	Transitions []TransitionHistoryDTO `json:"transitions"`

	// GeneratedAt is when the result was produced.
	GeneratedAt time.Time `json:"generated_at"`
}

// ListHistoryHandler handles the ListHistoryQuery.
type ListHistoryHandler struct {
	learnerRepo learner.Repository
	recordRepo  progression.RecordRepository
}

// NewListHistoryHandler creates a new ListHistoryHandler.
func NewListHistoryHandler(
	learnerRepo learner.Repository,
	recordRepo progression.RecordRepository,
) *ListHistoryHandler {
	return &ListHistoryHandler{
		learnerRepo: learnerRepo,
		recordRepo:  recordRepo,
	}
}

// Handle executes the history query.
func (h *ListHistoryHandler) Handle(ctx context.Context, query ListHistoryQuery) (*ListHistoryResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "ListHistory", shared.ErrValidation, err.Error(), err)
	}

	// Fail with NotFound for unknown learners instead of an empty list.
	if _, err := h.learnerRepo.GetByID(ctx, query.LearnerID); err != nil {
		return nil, shared.WrapError("query", "ListHistory", shared.ErrNotFound,
			"learner not found", err)
	}

	opts := learner.DefaultListOptions().
		WithOffset(query.Offset).
		WithLimit(query.Limit).
		WithSort("requested_date", true)

	records, err := h.recordRepo.ListByLearner(ctx, query.LearnerID, opts)
	if err != nil {
		return nil, shared.WrapError("query", "ListHistory", shared.ErrInvalidState,
			"failed to list transition history", err)
	}

	dtos := make([]TransitionHistoryDTO, 0, len(records))
	for _, r := range records {
		dtos = append(dtos, TransitionHistoryDTO{
			TransitionID:    r.ID,
			FromRole:        r.Details.FromRole.String(),
			ToRole:          r.Details.ToRole.String(),
			TransitionType:  string(r.Details.TransitionType),
			Status:          string(r.Approval.Status),
			DecidedBy:       r.Approval.ApprovedBy,
			ReviewNotes:     r.Approval.ReviewNotes,
			RejectionReason: r.Approval.RejectionReason,
			Conditions:      r.Approval.Conditions,
			RequestedAt:     r.Timeline.RequestedDate,
			EffectiveAt:     r.Timeline.EffectiveDate,
			SystemGenerated: r.Metadata.SystemGenerated,
		})
	}

	return &ListHistoryResult{
		LearnerID:   query.LearnerID,
		Transitions: dtos,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
