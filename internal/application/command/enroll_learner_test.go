package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

func newEnrollHandler(e *testEnv) *EnrollLearnerHandler {
	return NewEnrollLearnerHandler(e.learnerRepo, e.academicRepo, e.catalog, e.publisher)
}

func TestEnrollLearner(t *testing.T) {
	e := newTestEnv()
	h := newEnrollHandler(e)

	result, err := h.Handle(context.Background(), EnrollLearnerCommand{
		Email:       "Dana@MedSim.Example",
		Password:    "correct horse battery",
		DisplayName: "Dana",
	})
	require.NoError(t, err)

	assert.Equal(t, progression.RoleYear1, result.EntryRole)
	assert.Equal(t, 1, result.EntryLevel)

	p, err := e.learnerRepo.GetByID(context.Background(), result.LearnerID)
	require.NoError(t, err)
	assert.Equal(t, "dana@medsim.example", p.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("correct horse battery")))

	year, err := e.academicRepo.GetYearOfStudy(context.Background(), result.LearnerID)
	require.NoError(t, err)
	assert.Equal(t, 1, year)

	assert.Equal(t, []shared.EventType{shared.EventLearnerEnrolled}, e.publisher.typesSeen())
}

func TestEnrollLearner_ExplicitEntryRole(t *testing.T) {
	e := newTestEnv()
	h := newEnrollHandler(e)

	result, err := h.Handle(context.Background(), EnrollLearnerCommand{
		Email:       "transfer@medsim.example",
		Password:    "long enough password",
		DisplayName: "Transfer Student",
		EntryRole:   progression.RoleYear3,
	})
	require.NoError(t, err)

	assert.Equal(t, progression.RoleYear3, result.EntryRole)
	assert.Equal(t, 3, result.EntryLevel)

	year, err := e.academicRepo.GetYearOfStudy(context.Background(), result.LearnerID)
	require.NoError(t, err)
	assert.Equal(t, 3, year)
}

func TestEnrollLearner_DuplicateEmail(t *testing.T) {
	e := newTestEnv()
	h := newEnrollHandler(e)

	cmd := EnrollLearnerCommand{
		Email:       "dana@medsim.example",
		Password:    "long enough password",
		DisplayName: "Dana",
	}
	_, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)

	// A second enrollment with the same email (any casing) is refused.
	cmd.Email = "DANA@medsim.example"
	_, err = h.Handle(context.Background(), cmd)
	assert.ErrorIs(t, err, shared.ErrLearnerAlreadyExists)

	count, err := e.learnerRepo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEnrollLearner_UnknownEntryRole(t *testing.T) {
	e := newTestEnv()
	h := newEnrollHandler(e)

	_, err := h.Handle(context.Background(), EnrollLearnerCommand{
		Email:       "dana@medsim.example",
		Password:    "long enough password",
		DisplayName: "Dana",
		EntryRole:   "attending",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestEnrollLearner_Validation(t *testing.T) {
	e := newTestEnv()
	h := newEnrollHandler(e)
	ctx := context.Background()

	_, err := h.Handle(ctx, EnrollLearnerCommand{
		Email: "no-at-sign", Password: "long enough password", DisplayName: "Dana",
	})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, EnrollLearnerCommand{
		Email: "dana@medsim.example", Password: "short", DisplayName: "Dana",
	})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, EnrollLearnerCommand{
		Email: "dana@medsim.example", Password: "long enough password", DisplayName: "   ",
	})
	assert.True(t, shared.IsValidation(err))
}
