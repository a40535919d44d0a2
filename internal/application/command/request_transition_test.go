package command

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

func newRequestHandler(e *testEnv, cfg RequestTransitionHandlerConfig) *RequestTransitionHandler {
	return NewRequestTransitionHandler(
		e.learnerRepo, e.recordRepo, e.catalog, e.propagator, e.publisher, cfg,
	)
}

func TestRequestTransition_LearnerNotFound(t *testing.T) {
	e := newTestEnv()
	h := newRequestHandler(e, DefaultRequestTransitionHandlerConfig())

	_, err := h.Handle(context.Background(), RequestTransitionCommand{
		LearnerID: "ghost",
		ToRole:    progression.RoleClerk,
	})

	assert.True(t, shared.IsNotFound(err))
}

func TestRequestTransition_PendingWhenRequirementsUnmet(t *testing.T) {
	e := newTestEnv()
	e.seedLearner("l1", progression.RoleYear5, 100, 78)
	h := newRequestHandler(e, DefaultRequestTransitionHandlerConfig())

	result, err := h.Handle(context.Background(), RequestTransitionCommand{
		LearnerID: "l1",
		ToRole:    progression.RoleClerk,
		Reason:    "ready for the wards",
	})
	require.NoError(t, err)

	assert.Equal(t, progression.StatusPending, result.Status)
	assert.False(t, result.AutoApproved)
	assert.Less(t, result.Completion, 100.0)
	assert.False(t, result.Unmet.IsEmpty())

	// The record is persisted pending with a snapshot of the thresholds.
	rec, err := e.recordRepo.GetByID(context.Background(), result.TransitionID)
	require.NoError(t, err)
	assert.Equal(t, progression.StatusPending, rec.Approval.Status)
	assert.Equal(t, progression.RoleYear5, rec.Details.FromRole)
	assert.Equal(t, 120, rec.Requirements.SimulationsRequired)
	assert.Equal(t, 100, rec.Requirements.SimulationsCompleted)

	// The learner's role is untouched.
	p, err := e.learnerRepo.GetByID(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, progression.RoleYear5, p.CurrentRole)

	assert.Equal(t, []shared.EventType{shared.EventTransitionRequested}, e.publisher.typesSeen())
}

func TestRequestTransition_AutoApprovedWhenEligible(t *testing.T) {
	e := newTestEnv()
	p := e.seedLearner("l1", progression.RoleYear5, 130, 85)
	p.Competencies["patient_management"] = learner.TierProficient
	p.Competencies["clinical_reasoning"] = learner.TierCompetent
	p.Certifications = []string{"bls"}
	e.learnerRepo.put(p)

	h := newRequestHandler(e, DefaultRequestTransitionHandlerConfig())

	result, err := h.Handle(context.Background(), RequestTransitionCommand{
		LearnerID: "l1",
		ToRole:    progression.RoleClerk,
	})
	require.NoError(t, err)

	assert.True(t, result.AutoApproved)
	assert.Equal(t, progression.StatusApproved, result.Status)
	assert.Equal(t, 100.0, result.Completion)

	rec, err := e.recordRepo.GetByID(context.Background(), result.TransitionID)
	require.NoError(t, err)
	assert.Equal(t, "system", rec.Approval.ApprovedBy)
	require.NotNil(t, rec.Timeline.EffectiveDate)

	updated, err := e.learnerRepo.GetByID(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, progression.RoleClerk, updated.CurrentRole)
	assert.Equal(t, 6, updated.CurrentLevel)
	require.Len(t, updated.TransitionHistory, 1)
	assert.Equal(t, progression.RoleYear5, updated.TransitionHistory[0].FromRole)

	assert.ElementsMatch(t,
		[]shared.EventType{
			shared.EventTransitionRequested,
			shared.EventTransitionApproved,
			shared.EventRoleAdvanced,
		},
		e.publisher.typesSeen(),
	)
}

func TestRequestTransition_AutoApprovalDisabled(t *testing.T) {
	e := newTestEnv()
	p := e.seedLearner("l1", progression.RoleYear5, 130, 85)
	p.Competencies["patient_management"] = learner.TierProficient
	p.Competencies["clinical_reasoning"] = learner.TierCompetent
	p.Certifications = []string{"bls"}
	e.learnerRepo.put(p)

	h := newRequestHandler(e, RequestTransitionHandlerConfig{AutoApprovalEnabled: false})

	result, err := h.Handle(context.Background(), RequestTransitionCommand{
		LearnerID: "l1",
		ToRole:    progression.RoleClerk,
	})
	require.NoError(t, err)

	assert.False(t, result.AutoApproved)
	assert.Equal(t, progression.StatusPending, result.Status)
}

func TestRequestTransition_UnknownRoleRoutesToReviewer(t *testing.T) {
	e := newTestEnv()
	e.seedLearner("l1", progression.RoleYear2, 500, 99)
	h := newRequestHandler(e, DefaultRequestTransitionHandlerConfig())

	result, err := h.Handle(context.Background(), RequestTransitionCommand{
		LearnerID: "l1",
		ToRole:    "research_track",
	})
	require.NoError(t, err)

	// No requirements exist, so everything is "met" - but an unrecognized
	// role never auto-approves; a reviewer has to look at it.
	assert.False(t, result.AutoApproved)
	assert.Equal(t, progression.StatusPending, result.Status)
	assert.Equal(t, 100.0, result.Completion)
	assert.True(t, result.Unmet.IsEmpty())
}

func TestRequestTransition_DuplicatePending(t *testing.T) {
	e := newTestEnv()
	e.seedLearner("l1", progression.RoleYear5, 10, 50)
	h := newRequestHandler(e, DefaultRequestTransitionHandlerConfig())

	first, err := h.Handle(context.Background(), RequestTransitionCommand{
		LearnerID: "l1",
		ToRole:    progression.RoleClerk,
	})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), RequestTransitionCommand{
		LearnerID: "l1",
		ToRole:    progression.RoleIntern,
	})
	assert.True(t, shared.IsDuplicate(err))

	// The original request is untouched by the rejected duplicate.
	rec, err := e.recordRepo.GetByID(context.Background(), first.TransitionID)
	require.NoError(t, err)
	assert.Equal(t, progression.RoleClerk, rec.Details.ToRole)
	assert.Equal(t, 1, e.recordRepo.count())
}

func TestRequestTransition_ConcurrentRequestsSingleWinner(t *testing.T) {
	e := newTestEnv()
	e.seedLearner("l1", progression.RoleYear5, 10, 50)
	h := newRequestHandler(e, DefaultRequestTransitionHandlerConfig())

	const n = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := h.Handle(context.Background(), RequestTransitionCommand{
				LearnerID: "l1",
				ToRole:    progression.RoleClerk,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case shared.IsDuplicate(err):
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, duplicates)
	assert.Equal(t, 1, e.recordRepo.count())
}

func TestRequestTransition_Validation(t *testing.T) {
	e := newTestEnv()
	h := newRequestHandler(e, DefaultRequestTransitionHandlerConfig())

	_, err := h.Handle(context.Background(), RequestTransitionCommand{ToRole: progression.RoleClerk})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), RequestTransitionCommand{LearnerID: "l1", ToRole: "bad role"})
	assert.True(t, shared.IsValidation(err))
}
