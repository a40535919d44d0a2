package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// The role column is named role, not current_role: CURRENT_ROLE is a fully
// reserved word in PostgreSQL.
const learnerColumns = `id, email, password_hash, display_name, role, current_level,
	   competencies, certifications, total_completed, average_score,
	   transition_history, version, created_at, updated_at`

// LearnerRepository implements learner.Repository for PostgreSQL.
type LearnerRepository struct {
	conn *Connection
}

// NewLearnerRepository creates a new LearnerRepository.
func NewLearnerRepository(conn *Connection) *LearnerRepository {
	return &LearnerRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create creates a new learner profile.
func (r *LearnerRepository) Create(ctx context.Context, p *learner.Profile) error {
	query := `
		INSERT INTO learners (
			id, email, password_hash, display_name, role, current_level,
			competencies, certifications, total_completed, average_score,
			transition_history, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	competenciesJSON, certificationsJSON, historyJSON, err := marshalProfileJSON(p)
	if err != nil {
		return err
	}

	_, err = r.conn.Exec(ctx, query,
		p.ID,
		p.Email,
		p.PasswordHash,
		p.DisplayName,
		string(p.CurrentRole),
		p.CurrentLevel,
		competenciesJSON,
		certificationsJSON,
		p.Stats.TotalCompleted,
		p.Stats.AverageScore,
		historyJSON,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return learner.ErrProfileAlreadyExists
		}
		return fmt.Errorf("failed to create learner: %w", err)
	}

	return nil
}

// GetByID returns a learner profile by internal ID.
func (r *LearnerRepository) GetByID(ctx context.Context, id string) (*learner.Profile, error) {
	query := fmt.Sprintf(`SELECT %s FROM learners WHERE id = $1`, learnerColumns)

	row := r.conn.QueryRow(ctx, query, id)
	return r.scanLearner(row)
}

// GetByEmail returns a learner profile by email.
func (r *LearnerRepository) GetByEmail(ctx context.Context, email string) (*learner.Profile, error) {
	query := fmt.Sprintf(`SELECT %s FROM learners WHERE email = $1`, learnerColumns)

	row := r.conn.QueryRow(ctx, query, email)
	return r.scanLearner(row)
}

// Save persists the profile with optimistic locking. The UPDATE matches on
// both id and the version the caller loaded; zero rows affected means either
// a concurrent writer bumped the version or the profile is gone, and the two
// are distinguished with a follow-up existence check.
func (r *LearnerRepository) Save(ctx context.Context, p *learner.Profile) error {
	query := `
		UPDATE learners SET
			email = $1,
			password_hash = $2,
			display_name = $3,
			role = $4,
			current_level = $5,
			competencies = $6,
			certifications = $7,
			total_completed = $8,
			average_score = $9,
			transition_history = $10,
			version = version + 1,
			updated_at = $11
		WHERE id = $12 AND version = $13
	`

	competenciesJSON, certificationsJSON, historyJSON, err := marshalProfileJSON(p)
	if err != nil {
		return err
	}

	result, err := r.conn.Exec(ctx, query,
		p.Email,
		p.PasswordHash,
		p.DisplayName,
		string(p.CurrentRole),
		p.CurrentLevel,
		competenciesJSON,
		certificationsJSON,
		p.Stats.TotalCompleted,
		p.Stats.AverageScore,
		historyJSON,
		time.Now().UTC(),
		p.ID,
		p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save learner: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		checkErr := r.conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM learners WHERE id = $1)`, p.ID,
		).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("failed to check learner existence: %w", checkErr)
		}
		if !exists {
			return learner.ErrProfileNotFound
		}
		return learner.ErrStaleProfile
	}

	p.Version++
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Bulk Operations
// ─────────────────────────────────────────────────────────────────────────────

// GetByRole returns profiles currently holding the given role.
func (r *LearnerRepository) GetByRole(ctx context.Context, role learner.Role, opts learner.ListOptions) ([]*learner.Profile, error) {
	query := r.buildListQuery(opts, "role = $3")
	return r.queryLearners(ctx, query, opts.Limit, opts.Offset, string(role))
}

// GetAll returns all profiles with pagination.
func (r *LearnerRepository) GetAll(ctx context.Context, opts learner.ListOptions) ([]*learner.Profile, error) {
	query := r.buildListQuery(opts, "")
	return r.queryLearners(ctx, query, opts.Limit, opts.Offset)
}

// Count returns the total number of learner profiles.
func (r *LearnerRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM learners`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count learners: %w", err)
	}
	return count, nil
}

// ExistsByEmail checks whether a profile with the email exists.
func (r *LearnerRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM learners WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// buildListQuery builds a paginated SELECT with an optional extra condition.
func (r *LearnerRepository) buildListQuery(opts learner.ListOptions, condition string) string {
	sortColumn := "created_at"
	switch opts.SortBy {
	case "created_at", "updated_at", "email", "current_level", "average_score":
		sortColumn = opts.SortBy
	}

	direction := "ASC"
	if opts.SortDesc {
		direction = "DESC"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`SELECT %s FROM learners`, learnerColumns))
	if condition != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(condition)
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s %s LIMIT $1 OFFSET $2", sortColumn, direction))

	return sb.String()
}

func (r *LearnerRepository) queryLearners(ctx context.Context, query string, limit, offset int, extraArgs ...interface{}) ([]*learner.Profile, error) {
	args := append([]interface{}{limit, offset}, extraArgs...)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query learners: %w", err)
	}
	defer rows.Close()

	var profiles []*learner.Profile
	for rows.Next() {
		p, err := r.scanLearnerRow(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

func (r *LearnerRepository) scanLearner(row pgx.Row) (*learner.Profile, error) {
	p, err := scanProfileFrom(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, learner.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to scan learner: %w", err)
	}
	return p, nil
}

func (r *LearnerRepository) scanLearnerRow(rows pgx.Rows) (*learner.Profile, error) {
	p, err := scanProfileFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan learner row: %w", err)
	}
	return p, nil
}

// scanProfileFrom scans one learner row from a pgx.Row or pgx.Rows.
func scanProfileFrom(row pgx.Row) (*learner.Profile, error) {
	var (
		p                  learner.Profile
		role               string
		competenciesJSON   []byte
		certificationsJSON []byte
		historyJSON        []byte
	)

	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&p.DisplayName,
		&role,
		&p.CurrentLevel,
		&competenciesJSON,
		&certificationsJSON,
		&p.Stats.TotalCompleted,
		&p.Stats.AverageScore,
		&historyJSON,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.CurrentRole = learner.Role(role)

	if err := json.Unmarshal(competenciesJSON, &p.Competencies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal competencies: %w", err)
	}
	if err := json.Unmarshal(certificationsJSON, &p.Certifications); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certifications: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &p.TransitionHistory); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transition history: %w", err)
	}
	if p.Competencies == nil {
		p.Competencies = make(map[string]learner.ProficiencyTier)
	}

	return &p, nil
}

// marshalProfileJSON serializes the profile's JSONB columns.
func marshalProfileJSON(p *learner.Profile) (competencies, certifications, history []byte, err error) {
	competencies, err = json.Marshal(p.Competencies)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal competencies: %w", err)
	}

	certs := p.Certifications
	if certs == nil {
		certs = []string{}
	}
	certifications, err = json.Marshal(certs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal certifications: %w", err)
	}

	entries := p.TransitionHistory
	if entries == nil {
		entries = []learner.TransitionHistoryEntry{}
	}
	history, err = json.Marshal(entries)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal transition history: %w", err)
	}

	return competencies, certifications, history, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMIC RECORD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AcademicRecordRepository implements learner.AcademicRecordRepository.
type AcademicRecordRepository struct {
	conn *Connection
}

// NewAcademicRecordRepository creates a new AcademicRecordRepository.
func NewAcademicRecordRepository(conn *Connection) *AcademicRecordRepository {
	return &AcademicRecordRepository{conn: conn}
}

// GetYearOfStudy returns the recorded year of study for a learner.
// Returns 0 with no error if no record exists yet.
func (r *AcademicRecordRepository) GetYearOfStudy(ctx context.Context, learnerID string) (int, error) {
	var year int
	err := r.conn.QueryRow(ctx,
		`SELECT year_of_study FROM academic_records WHERE learner_id = $1`, learnerID,
	).Scan(&year)
	if err != nil {
		if IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get year of study: %w", err)
	}
	return year, nil
}

// SetYearOfStudy upserts the recorded year of study.
func (r *AcademicRecordRepository) SetYearOfStudy(ctx context.Context, learnerID string, year int) error {
	query := `
		INSERT INTO academic_records (learner_id, year_of_study, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (learner_id)
		DO UPDATE SET year_of_study = EXCLUDED.year_of_study, updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query, learnerID, year, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set year of study: %w", err)
	}
	return nil
}
