package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION RECORD REPOSITORY IMPLEMENTATION
// The partial unique index uq_transition_pending_per_learner makes the
// "one pending record per learner" check atomic with the insert; Create
// translates the violation into the domain's duplicate-request error.
// ══════════════════════════════════════════════════════════════════════════════

const transitionColumns = `id, learner_id, from_role, to_role, transition_type, reason,
	   requirements, status, approved_by, approval_date, review_notes,
	   rejection_reason, conditions, requested_date, effective_date,
	   initiated_by, system_generated, created_at, updated_at`

// TransitionRepository implements progression.RecordRepository for PostgreSQL.
type TransitionRepository struct {
	conn *Connection
}

// NewTransitionRepository creates a new TransitionRepository.
func NewTransitionRepository(conn *Connection) *TransitionRepository {
	return &TransitionRepository{conn: conn}
}

// Create persists a new record. Returns ErrDuplicateRequest when the
// learner already has a pending record.
func (r *TransitionRepository) Create(ctx context.Context, rec *progression.TransitionRecord) error {
	query := `
		INSERT INTO transition_records (
			id, learner_id, from_role, to_role, transition_type, reason,
			requirements, status, approved_by, approval_date, review_notes,
			rejection_reason, conditions, requested_date, effective_date,
			initiated_by, system_generated, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	requirementsJSON, conditionsJSON, err := marshalRecordJSON(rec)
	if err != nil {
		return err
	}

	_, err = r.conn.Exec(ctx, query,
		rec.ID,
		rec.LearnerID,
		string(rec.Details.FromRole),
		string(rec.Details.ToRole),
		string(rec.Details.TransitionType),
		rec.Details.Reason,
		requirementsJSON,
		string(rec.Approval.Status),
		rec.Approval.ApprovedBy,
		rec.Approval.ApprovalDate,
		rec.Approval.ReviewNotes,
		rec.Approval.RejectionReason,
		conditionsJSON,
		rec.Timeline.RequestedDate,
		rec.Timeline.EffectiveDate,
		rec.Metadata.InitiatedBy,
		rec.Metadata.SystemGenerated,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateRequest
		}
		return fmt.Errorf("failed to create transition record: %w", err)
	}

	return nil
}

// GetByID returns a record by ID.
func (r *TransitionRepository) GetByID(ctx context.Context, id string) (*progression.TransitionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM transition_records WHERE id = $1`, transitionColumns)

	rec, err := scanRecordFrom(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTransitionNotFound
		}
		return nil, fmt.Errorf("failed to get transition record: %w", err)
	}
	return rec, nil
}

// FindPending returns the learner's pending record, or nil when none exists.
func (r *TransitionRepository) FindPending(ctx context.Context, learnerID string) (*progression.TransitionRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM transition_records WHERE learner_id = $1 AND status = 'pending'`,
		transitionColumns,
	)

	rec, err := scanRecordFrom(r.conn.QueryRow(ctx, query, learnerID))
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pending transition: %w", err)
	}
	return rec, nil
}

// Update persists the record's mutable approval sub-state. The identity and
// details columns are immutable after creation and are not touched.
func (r *TransitionRepository) Update(ctx context.Context, rec *progression.TransitionRecord) error {
	query := `
		UPDATE transition_records SET
			status = $1,
			approved_by = $2,
			approval_date = $3,
			review_notes = $4,
			rejection_reason = $5,
			conditions = $6,
			effective_date = $7,
			updated_at = $8
		WHERE id = $9
	`

	conditions := rec.Approval.Conditions
	if conditions == nil {
		conditions = []string{}
	}
	conditionsJSON, err := json.Marshal(conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	result, err := r.conn.Exec(ctx, query,
		string(rec.Approval.Status),
		rec.Approval.ApprovedBy,
		rec.Approval.ApprovalDate,
		rec.Approval.ReviewNotes,
		rec.Approval.RejectionReason,
		conditionsJSON,
		rec.Timeline.EffectiveDate,
		time.Now().UTC(),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transition record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrTransitionNotFound
	}

	return nil
}

// ListPending returns pending records, optionally filtered by target role.
func (r *TransitionRepository) ListPending(ctx context.Context, forRole learner.Role, opts learner.ListOptions) ([]*progression.TransitionRecord, error) {
	condition := "status = 'pending'"
	args := []interface{}{opts.Limit, opts.Offset}
	if forRole != "" {
		condition += " AND to_role = $3"
		args = append(args, string(forRole))
	}

	query := buildTransitionListQuery(opts, condition)
	return r.queryRecords(ctx, query, args...)
}

// ListByLearner returns the learner's records.
func (r *TransitionRepository) ListByLearner(ctx context.Context, learnerID string, opts learner.ListOptions) ([]*progression.TransitionRecord, error) {
	query := buildTransitionListQuery(opts, "learner_id = $3")
	return r.queryRecords(ctx, query, opts.Limit, opts.Offset, learnerID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildTransitionListQuery(opts learner.ListOptions, condition string) string {
	sortColumn := "requested_date"
	switch opts.SortBy {
	case "requested_date", "effective_date", "created_at", "updated_at":
		sortColumn = opts.SortBy
	}

	direction := "ASC"
	if opts.SortDesc {
		direction = "DESC"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`SELECT %s FROM transition_records`, transitionColumns))
	if condition != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(condition)
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s %s LIMIT $1 OFFSET $2", sortColumn, direction))

	return sb.String()
}

func (r *TransitionRepository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*progression.TransitionRecord, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transition records: %w", err)
	}
	defer rows.Close()

	var records []*progression.TransitionRecord
	for rows.Next() {
		rec, err := scanRecordFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// scanRecordFrom scans one transition record from a pgx.Row or pgx.Rows.
func scanRecordFrom(row pgx.Row) (*progression.TransitionRecord, error) {
	var (
		rec              progression.TransitionRecord
		fromRole         string
		toRole           string
		transitionType   string
		status           string
		requirementsJSON []byte
		conditionsJSON   []byte
	)

	err := row.Scan(
		&rec.ID,
		&rec.LearnerID,
		&fromRole,
		&toRole,
		&transitionType,
		&rec.Details.Reason,
		&requirementsJSON,
		&status,
		&rec.Approval.ApprovedBy,
		&rec.Approval.ApprovalDate,
		&rec.Approval.ReviewNotes,
		&rec.Approval.RejectionReason,
		&conditionsJSON,
		&rec.Timeline.RequestedDate,
		&rec.Timeline.EffectiveDate,
		&rec.Metadata.InitiatedBy,
		&rec.Metadata.SystemGenerated,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Details.FromRole = learner.Role(fromRole)
	rec.Details.ToRole = learner.Role(toRole)
	rec.Details.TransitionType = progression.TransitionType(transitionType)
	rec.Approval.Status = progression.ApprovalStatus(status)

	if err := json.Unmarshal(requirementsJSON, &rec.Requirements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal requirements snapshot: %w", err)
	}
	if err := json.Unmarshal(conditionsJSON, &rec.Approval.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	return &rec, nil
}

// marshalRecordJSON serializes the record's JSONB columns.
func marshalRecordJSON(rec *progression.TransitionRecord) (requirements, conditions []byte, err error) {
	requirements, err = json.Marshal(rec.Requirements)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal requirements snapshot: %w", err)
	}

	conds := rec.Approval.Conditions
	if conds == nil {
		conds = []string{}
	}
	conditions, err = json.Marshal(conds)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}

	return requirements, conditions, nil
}
