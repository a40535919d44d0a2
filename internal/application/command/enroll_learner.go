package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL LEARNER COMMAND
// Creates a learner account at the entry role of the curriculum and seeds
// the legacy academic record.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollLearnerCommand contains the data to enroll a new learner.
type EnrollLearnerCommand struct {
	// Email is the learner's account email. Unique across the platform.
	Email string

	// Password is the plaintext account password; stored as a bcrypt hash.
	Password string

	// DisplayName is the learner's display name.
	DisplayName string

	// EntryRole is the starting role. Defaults to the first curriculum year.
	EntryRole learner.Role

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EnrollLearnerCommand) Validate() error {
	if !strings.Contains(c.Email, "@") {
		return errors.New("enroll_learner: a valid email is required")
	}
	if len(c.Password) < 8 {
		return errors.New("enroll_learner: password must be at least 8 characters")
	}
	if strings.TrimSpace(c.DisplayName) == "" {
		return errors.New("enroll_learner: display_name is required")
	}
	return nil
}

// EnrollLearnerResult contains the result of enrolling a learner.
type EnrollLearnerResult struct {
	// LearnerID is the ID of the created profile.
	LearnerID string

	// EntryRole is the role the learner starts at.
	EntryRole learner.Role

	// EntryLevel is the ordinal level of the entry role.
	EntryLevel int

	// Events contains domain events generated.
	Events []shared.Event
}

// EnrollLearnerHandler handles the EnrollLearnerCommand.
type EnrollLearnerHandler struct {
	learnerRepo    learner.Repository
	academicRepo   learner.AcademicRecordRepository
	catalog        *progression.Catalog
	eventPublisher shared.EventPublisher
}

// NewEnrollLearnerHandler creates a new EnrollLearnerHandler.
func NewEnrollLearnerHandler(
	learnerRepo learner.Repository,
	academicRepo learner.AcademicRecordRepository,
	catalog *progression.Catalog,
	eventPublisher shared.EventPublisher,
) *EnrollLearnerHandler {
	return &EnrollLearnerHandler{
		learnerRepo:    learnerRepo,
		academicRepo:   academicRepo,
		catalog:        catalog,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the enroll learner command.
func (h *EnrollLearnerHandler) Handle(ctx context.Context, cmd EnrollLearnerCommand) (*EnrollLearnerResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("learner", "Enroll", shared.ErrValidation, err.Error(), err)
	}

	entryRole := cmd.EntryRole
	if entryRole == "" {
		entryRole = progression.RoleYear1
	}
	entryLevel, err := h.catalog.LevelOf(entryRole)
	if err != nil {
		return nil, shared.WrapError("learner", "Enroll", shared.ErrInvalidInput,
			fmt.Sprintf("entry role %q is not in the catalog", entryRole), err)
	}

	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	exists, err := h.learnerRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, shared.WrapError("learner", "Enroll", shared.ErrInvalidState,
			"failed to check email uniqueness", err)
	}
	if exists {
		return nil, shared.ErrLearnerAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, shared.WrapError("learner", "Enroll", shared.ErrInvalidInput,
			"failed to hash password", err)
	}

	profile, err := learner.NewProfile(learner.NewProfileParams{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  cmd.DisplayName,
		EntryRole:    entryRole,
		EntryLevel:   entryLevel,
	})
	if err != nil {
		return nil, shared.WrapError("learner", "Enroll", shared.ErrValidation,
			"invalid profile", err)
	}

	if err := h.learnerRepo.Create(ctx, profile); err != nil {
		if errors.Is(err, learner.ErrProfileAlreadyExists) {
			return nil, shared.ErrLearnerAlreadyExists
		}
		return nil, shared.WrapError("learner", "Enroll", shared.ErrInvalidState,
			"failed to create profile", err)
	}

	// Seed the legacy academic record for entry roles that carry a year.
	if year, ok := entryRole.YearSuffix(); ok {
		if err := h.academicRepo.SetYearOfStudy(ctx, profile.ID, year); err != nil {
			return nil, shared.WrapError("learner", "Enroll", shared.ErrInconsistency,
				"profile created but academic record was not seeded", err)
		}
	}

	enrolled := shared.NewLearnerEnrolledEvent(profile.ID, profile.Email, profile.DisplayName, entryRole.String())
	if cmd.CorrelationID != "" {
		enrolled.BaseEvent = enrolled.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(enrolled)

	return &EnrollLearnerResult{
		LearnerID:  profile.ID,
		EntryRole:  entryRole,
		EntryLevel: entryLevel,
		Events:     []shared.Event{enrolled},
	}, nil
}
