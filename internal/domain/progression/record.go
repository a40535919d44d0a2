package progression

import (
	"time"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// TransitionType distinguishes how a transition was initiated.
type TransitionType string

const (
	// TransitionManual - requested by a learner or instructor.
	TransitionManual TransitionType = "manual"
	// TransitionAutomatic - initiated by the system from an eligibility check.
	TransitionAutomatic TransitionType = "automatic"
)

// IsValid checks that the transition type is known.
func (t TransitionType) IsValid() bool {
	return t == TransitionManual || t == TransitionAutomatic
}

// ApprovalStatus is the approval sub-state of a transition record.
type ApprovalStatus string

const (
	// StatusPending - awaiting a reviewer decision.
	StatusPending ApprovalStatus = "pending"
	// StatusApproved - approved; the role change is effective.
	StatusApproved ApprovalStatus = "approved"
	// StatusRejected - rejected by a reviewer.
	StatusRejected ApprovalStatus = "rejected"
	// StatusConditional - approved subject to conditions resolved out of band.
	StatusConditional ApprovalStatus = "conditional"
)

// IsValid checks that the status is known.
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusConditional:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status can no longer change.
// Once a record leaves pending it never returns.
func (s ApprovalStatus) IsTerminal() bool {
	return s != StatusPending
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION RECORD
// ══════════════════════════════════════════════════════════════════════════════

// TransitionDetails describes the requested role change.
// Immutable after the record is created.
type TransitionDetails struct {
	// FromRole is the learner's role at the moment the record was created.
	// A snapshot, not a live reference.
	FromRole learner.Role

	// ToRole is the requested target role.
	ToRole learner.Role

	// TransitionType is manual or automatic.
	TransitionType TransitionType

	// Reason is the requester's stated reason.
	Reason string
}

// RequirementSnapshot captures both the thresholds that applied at
// creation time and the learner's measured values at that moment.
// Taken once and never re-derived, so completion-percentage calculations
// stay reproducible even if the learner's live stats later change.
type RequirementSnapshot struct {
	// Required thresholds.
	SimulationsRequired    int
	AverageScoreRequired   float64
	CompetenciesRequired   []string
	CertificationsRequired []string

	// Measured values at creation.
	SimulationsCompleted int
	CurrentAverageScore  float64
	CompetenciesAchieved []string
	CertificationsEarned []string
}

// Approval is the mutable decision sub-state of a transition record.
// Mutated only through the record's decision methods.
type Approval struct {
	Status          ApprovalStatus
	ApprovedBy      string
	ApprovalDate    *time.Time
	ReviewNotes     string
	RejectionReason string
	Conditions      []string
}

// Timeline holds the record's lifecycle timestamps.
// EffectiveDate is set if and only if the record is approved.
type Timeline struct {
	RequestedDate time.Time
	EffectiveDate *time.Time
}

// Metadata records who and what initiated the transition.
type Metadata struct {
	InitiatedBy     string
	SystemGenerated bool
}

// TransitionRecord represents one progression attempt. Records are never
// deleted; they form the audit trail of role changes.
type TransitionRecord struct {
	// ID is the unique record identifier (UUID in string form).
	ID string

	// LearnerID references the owning learner. Immutable once created.
	LearnerID string

	// Details is the requested change. Immutable after creation.
	Details TransitionDetails

	// Requirements is the snapshot taken at creation time.
	Requirements RequirementSnapshot

	// Approval is the decision sub-state.
	Approval Approval

	// Timeline holds request and effective timestamps.
	Timeline Timeline

	// Metadata records initiation provenance.
	Metadata Metadata

	// CreatedAt / UpdatedAt are record bookkeeping timestamps.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecordParams contains the parameters for creating a transition record.
type NewRecordParams struct {
	ID              string
	LearnerID       string
	FromRole        learner.Role
	ToRole          learner.Role
	TransitionType  TransitionType
	Reason          string
	Requirements    RequirementSnapshot
	InitiatedBy     string
	SystemGenerated bool
}

// NewRecord creates a pending transition record.
func NewRecord(params NewRecordParams) (*TransitionRecord, error) {
	if params.ID == "" || params.LearnerID == "" {
		return nil, shared.ErrInvalidID
	}
	if !params.ToRole.IsValid() {
		return nil, learner.ErrInvalidRole
	}
	if !params.TransitionType.IsValid() {
		return nil, shared.ErrInvalidInput
	}

	now := time.Now().UTC()

	return &TransitionRecord{
		ID:        params.ID,
		LearnerID: params.LearnerID,
		Details: TransitionDetails{
			FromRole:       params.FromRole,
			ToRole:         params.ToRole,
			TransitionType: params.TransitionType,
			Reason:         params.Reason,
		},
		Requirements: params.Requirements,
		Approval: Approval{
			Status: StatusPending,
		},
		Timeline: Timeline{
			RequestedDate: now,
		},
		Metadata: Metadata{
			InitiatedBy:     params.InitiatedBy,
			SystemGenerated: params.SystemGenerated,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DECISION METHODS
// A record transitions at most once from pending to a terminal status.
// ══════════════════════════════════════════════════════════════════════════════

// IsDecided reports whether the record has left pending.
func (r *TransitionRecord) IsDecided() bool {
	return r.Approval.Status.IsTerminal()
}

// Approve marks the record approved and stamps both the approval and
// effective dates. Fails with ErrTransitionDecided on a terminal record.
func (r *TransitionRecord) Approve(reviewerID, notes string, at time.Time) error {
	if r.IsDecided() {
		return shared.ErrTransitionDecided
	}

	r.Approval.Status = StatusApproved
	r.Approval.ApprovedBy = reviewerID
	r.Approval.ApprovalDate = &at
	r.Approval.ReviewNotes = notes
	r.Timeline.EffectiveDate = &at
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Reject marks the record rejected, recording the reviewer's notes as the
// rejection reason. Fails with ErrTransitionDecided on a terminal record.
func (r *TransitionRecord) Reject(reviewerID, notes string, at time.Time) error {
	if r.IsDecided() {
		return shared.ErrTransitionDecided
	}

	r.Approval.Status = StatusRejected
	r.Approval.ApprovedBy = reviewerID
	r.Approval.ApprovalDate = &at
	r.Approval.ReviewNotes = notes
	r.Approval.RejectionReason = notes
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// MakeConditional marks the record conditional: a distinct terminal state
// whose conditions are resolved out of band. The learner's role stays
// unchanged. Fails with ErrTransitionDecided on a terminal record.
func (r *TransitionRecord) MakeConditional(reviewerID, notes string, conditions []string, at time.Time) error {
	if r.IsDecided() {
		return shared.ErrTransitionDecided
	}

	r.Approval.Status = StatusConditional
	r.Approval.ApprovedBy = reviewerID
	r.Approval.ApprovalDate = &at
	r.Approval.ReviewNotes = notes
	r.Approval.Conditions = append([]string(nil), conditions...)
	r.UpdatedAt = time.Now().UTC()
	return nil
}
