package jobs

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsim-hub/progression-engine/internal/application/command"
	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

type memLearnerRepo struct {
	mu       sync.Mutex
	profiles map[string]*learner.Profile
}

func newMemLearnerRepo() *memLearnerRepo {
	return &memLearnerRepo{profiles: make(map[string]*learner.Profile)}
}

func (r *memLearnerRepo) put(p *learner.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p.Clone()
}

func (r *memLearnerRepo) Create(_ context.Context, p *learner.Profile) error {
	r.put(p)
	return nil
}

func (r *memLearnerRepo) GetByID(_ context.Context, id string) (*learner.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, learner.ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (r *memLearnerRepo) GetByEmail(context.Context, string) (*learner.Profile, error) {
	return nil, learner.ErrProfileNotFound
}

func (r *memLearnerRepo) Save(_ context.Context, p *learner.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.profiles[p.ID]
	if !ok {
		return learner.ErrProfileNotFound
	}
	if stored.Version != p.Version {
		return learner.ErrStaleProfile
	}
	p.Version++
	r.profiles[p.ID] = p.Clone()
	return nil
}

func (r *memLearnerRepo) GetByRole(_ context.Context, role learner.Role, opts learner.ListOptions) ([]*learner.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*learner.Profile
	for _, p := range r.profiles {
		if p.CurrentRole == role {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (r *memLearnerRepo) GetAll(context.Context, learner.ListOptions) ([]*learner.Profile, error) {
	return nil, nil
}

func (r *memLearnerRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.profiles), nil
}

func (r *memLearnerRepo) ExistsByEmail(context.Context, string) (bool, error) { return false, nil }

type memAcademicRepo struct {
	mu    sync.Mutex
	years map[string]int
}

func (r *memAcademicRepo) GetYearOfStudy(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.years[id], nil
}

func (r *memAcademicRepo) SetYearOfStudy(_ context.Context, id string, year int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.years[id] = year
	return nil
}

type memRecordRepo struct {
	mu      sync.Mutex
	records map[string]*progression.TransitionRecord
}

func newMemRecordRepo() *memRecordRepo {
	return &memRecordRepo{records: make(map[string]*progression.TransitionRecord)}
}

func (r *memRecordRepo) Create(_ context.Context, rec *progression.TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Approval.Status == progression.StatusPending {
		for _, existing := range r.records {
			if existing.LearnerID == rec.LearnerID && existing.Approval.Status == progression.StatusPending {
				return shared.ErrDuplicateRequest
			}
		}
	}
	clone := *rec
	r.records[rec.ID] = &clone
	return nil
}

func (r *memRecordRepo) GetByID(_ context.Context, id string) (*progression.TransitionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, shared.ErrTransitionNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *memRecordRepo) FindPending(_ context.Context, learnerID string) (*progression.TransitionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.LearnerID == learnerID && rec.Approval.Status == progression.StatusPending {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memRecordRepo) Update(_ context.Context, rec *progression.TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *rec
	r.records[rec.ID] = &clone
	return nil
}

func (r *memRecordRepo) ListPending(context.Context, learner.Role, learner.ListOptions) ([]*progression.TransitionRecord, error) {
	return nil, nil
}

func (r *memRecordRepo) ListByLearner(context.Context, string, learner.ListOptions) ([]*progression.TransitionRecord, error) {
	return nil, nil
}

func (r *memRecordRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type memPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *memPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *memPublisher) byType(et shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == et {
			out = append(out, e)
		}
	}
	return out
}

type sweepEnv struct {
	learnerRepo *memLearnerRepo
	recordRepo  *memRecordRepo
	publisher   *memPublisher
	job         *SweepProgressionsJob
}

func newSweepEnv(config SweepConfig) *sweepEnv {
	learnerRepo := newMemLearnerRepo()
	academicRepo := &memAcademicRepo{years: make(map[string]int)}
	recordRepo := newMemRecordRepo()
	catalog := progression.DefaultCatalog()
	publisher := &memPublisher{}

	propagator := command.NewRolePropagator(learnerRepo, academicRepo, catalog, nil, nil)
	checkHandler := command.NewCheckProgressionHandler(
		learnerRepo, recordRepo, catalog, propagator, publisher, nil,
	)

	return &sweepEnv{
		learnerRepo: learnerRepo,
		recordRepo:  recordRepo,
		publisher:   publisher,
		job:         NewSweepProgressionsJob(learnerRepo, checkHandler, catalog, publisher, nil, config),
	}
}

func (e *sweepEnv) seed(id string, role learner.Role, completed int, avg float64, competencies ...string) {
	comps := make(map[string]learner.ProficiencyTier, len(competencies))
	for _, c := range competencies {
		comps[c] = learner.TierCompetent
	}

	e.learnerRepo.put(&learner.Profile{
		ID:           id,
		Email:        id + "@medsim.example",
		PasswordHash: "x",
		DisplayName:  id,
		CurrentRole:  role,
		CurrentLevel: 1,
		Competencies: comps,
		Stats: learner.SimulationStats{
			TotalCompleted: completed,
			AverageScore:   avg,
		},
		Version:   1,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
}

func TestSweepProgressionsJob_PromotesEligibleLearners(t *testing.T) {
	e := newSweepEnv(DefaultSweepConfig())

	// year4 promotes into year5, which ends the automatic ladder - so a
	// promoted learner is not re-listed later in the same run regardless
	// of the role iteration order.
	e.seed("ready-1", progression.RoleYear4, 95, 80, "patient_management")
	e.seed("ready-2", progression.RoleYear4, 90, 78, "patient_management")
	e.seed("behind", progression.RoleYear4, 40, 60)
	e.seed("manual-stage", progression.RoleIntern, 500, 95)

	require.NoError(t, e.job.Run(context.Background()))

	stats := e.job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Evaluated, "intern holds a manual-only role and is never listed")
	assert.Equal(t, 2, stats.Advanced)
	assert.Equal(t, 0, stats.Failed)

	for _, id := range []string{"ready-1", "ready-2"} {
		p, err := e.learnerRepo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, progression.RoleYear5, p.CurrentRole, id)
	}
	p, err := e.learnerRepo.GetByID(context.Background(), "behind")
	require.NoError(t, err)
	assert.Equal(t, progression.RoleYear4, p.CurrentRole)

	assert.Equal(t, 2, e.recordRepo.count())
	assert.Len(t, e.publisher.byType(shared.EventSweepFinished), 1)
	assert.Len(t, e.publisher.byType(shared.EventAutoPromoted), 2)
}

func TestSweepProgressionsJob_PagesThroughLargeRoles(t *testing.T) {
	cfg := DefaultSweepConfig()
	cfg.BatchSize = 2
	cfg.Concurrency = 2
	e := newSweepEnv(cfg)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		e.seed(id, progression.RoleYear1, 2, 40)
	}

	require.NoError(t, e.job.Run(context.Background()))

	stats := e.job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 5, stats.Evaluated)
	assert.Equal(t, 0, stats.Advanced)
}

func TestSweepProgressionsJob_PagingUnaffectedByPromotions(t *testing.T) {
	cfg := DefaultSweepConfig()
	cfg.BatchSize = 2
	cfg.Concurrency = 2
	e := newSweepEnv(cfg)

	// Every learner on a page is promoted out of year1, so the remainder
	// shift left into the vacated slots. The next page must pick them up
	// rather than skipping past them, and a promoted learner must not be
	// evaluated again under year2 later in the same run.
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		e.seed(id, progression.RoleYear1, 20, 80)
	}

	require.NoError(t, e.job.Run(context.Background()))

	stats := e.job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 5, stats.Evaluated)
	assert.Equal(t, 5, stats.Advanced)
	assert.Equal(t, 0, stats.Failed)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		p, err := e.learnerRepo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, progression.RoleYear2, p.CurrentRole, id)
	}
	assert.Len(t, e.publisher.byType(shared.EventAutoPromoted), 5)
}

func TestSweepProgressionsJob_PendingRequestsAreSkipped(t *testing.T) {
	e := newSweepEnv(DefaultSweepConfig())
	e.seed("l1", progression.RoleYear1, 20, 80)

	rec, err := progression.NewRecord(progression.NewRecordParams{
		ID:             "t1",
		LearnerID:      "l1",
		FromRole:       progression.RoleYear1,
		ToRole:         progression.RoleClerk,
		TransitionType: progression.TransitionManual,
		Reason:         "wants the wards early",
		InitiatedBy:    "l1",
	})
	require.NoError(t, err)
	require.NoError(t, e.recordRepo.Create(context.Background(), rec))

	require.NoError(t, e.job.Run(context.Background()))

	stats := e.job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Evaluated)
	assert.Equal(t, 0, stats.Advanced)
	assert.Equal(t, 1, stats.Skipped)

	p, err := e.learnerRepo.GetByID(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, progression.RoleYear1, p.CurrentRole)
}

func TestSweepProgressionsJob_EmptyPlatform(t *testing.T) {
	e := newSweepEnv(DefaultSweepConfig())

	require.NoError(t, e.job.Run(context.Background()))

	stats := e.job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 0, stats.Evaluated)
	assert.Len(t, e.publisher.byType(shared.EventSweepFinished), 1)
}
