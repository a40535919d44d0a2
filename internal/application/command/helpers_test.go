package command

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

// In-memory fakes for the persistence and messaging boundaries. They mirror
// the contracts the real implementations honor: email uniqueness, CAS saves,
// and the atomic one-pending-record-per-learner check.

// ─────────────────────────────────────────────────────────────────────────────
// Learner repository fake
// ─────────────────────────────────────────────────────────────────────────────

type fakeLearnerRepo struct {
	mu       sync.Mutex
	profiles map[string]*learner.Profile

	// staleSaves makes the next N Save calls fail with ErrStaleProfile.
	staleSaves int
}

func newFakeLearnerRepo() *fakeLearnerRepo {
	return &fakeLearnerRepo{profiles: make(map[string]*learner.Profile)}
}

func (r *fakeLearnerRepo) put(p *learner.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p.Clone()
}

func (r *fakeLearnerRepo) Create(_ context.Context, p *learner.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.profiles {
		if existing.Email == p.Email {
			return learner.ErrProfileAlreadyExists
		}
	}
	r.profiles[p.ID] = p.Clone()
	return nil
}

func (r *fakeLearnerRepo) GetByID(_ context.Context, id string) (*learner.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, learner.ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (r *fakeLearnerRepo) GetByEmail(_ context.Context, email string) (*learner.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.profiles {
		if p.Email == strings.ToLower(email) {
			return p.Clone(), nil
		}
	}
	return nil, learner.ErrProfileNotFound
}

func (r *fakeLearnerRepo) Save(_ context.Context, p *learner.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.profiles[p.ID]
	if !ok {
		return learner.ErrProfileNotFound
	}
	if r.staleSaves > 0 {
		r.staleSaves--
		return learner.ErrStaleProfile
	}
	if stored.Version != p.Version {
		return learner.ErrStaleProfile
	}

	p.Version++
	r.profiles[p.ID] = p.Clone()
	return nil
}

func (r *fakeLearnerRepo) GetByRole(_ context.Context, role learner.Role, opts learner.ListOptions) ([]*learner.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*learner.Profile
	for _, p := range r.profiles {
		if p.CurrentRole == role {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, opts), nil
}

func (r *fakeLearnerRepo) GetAll(_ context.Context, opts learner.ListOptions) ([]*learner.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*learner.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, opts), nil
}

func (r *fakeLearnerRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.profiles), nil
}

func (r *fakeLearnerRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.profiles {
		if p.Email == strings.ToLower(email) {
			return true, nil
		}
	}
	return false, nil
}

func page(profiles []*learner.Profile, opts learner.ListOptions) []*learner.Profile {
	if opts.Offset >= len(profiles) {
		return nil
	}
	profiles = profiles[opts.Offset:]
	if opts.Limit > 0 && len(profiles) > opts.Limit {
		profiles = profiles[:opts.Limit]
	}
	return profiles
}

// ─────────────────────────────────────────────────────────────────────────────
// Academic record repository fake
// ─────────────────────────────────────────────────────────────────────────────

type fakeAcademicRepo struct {
	mu    sync.Mutex
	years map[string]int

	setErr error
}

func newFakeAcademicRepo() *fakeAcademicRepo {
	return &fakeAcademicRepo{years: make(map[string]int)}
}

func (r *fakeAcademicRepo) GetYearOfStudy(_ context.Context, learnerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.years[learnerID], nil
}

func (r *fakeAcademicRepo) SetYearOfStudy(_ context.Context, learnerID string, year int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.setErr != nil {
		return r.setErr
	}
	r.years[learnerID] = year
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Transition record repository fake
// ─────────────────────────────────────────────────────────────────────────────

type fakeRecordRepo struct {
	mu      sync.Mutex
	records map[string]*progression.TransitionRecord
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[string]*progression.TransitionRecord)}
}

func cloneRecord(r *progression.TransitionRecord) *progression.TransitionRecord {
	c := *r
	c.Approval.Conditions = append([]string(nil), r.Approval.Conditions...)
	return &c
}

func (r *fakeRecordRepo) Create(_ context.Context, rec *progression.TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The pending-uniqueness check happens atomically with the insert,
	// like the partial unique index in the real store.
	if rec.Approval.Status == progression.StatusPending {
		for _, existing := range r.records {
			if existing.LearnerID == rec.LearnerID && existing.Approval.Status == progression.StatusPending {
				return shared.ErrDuplicateRequest
			}
		}
	}
	r.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (r *fakeRecordRepo) GetByID(_ context.Context, id string) (*progression.TransitionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, shared.ErrTransitionNotFound
	}
	return cloneRecord(rec), nil
}

func (r *fakeRecordRepo) FindPending(_ context.Context, learnerID string) (*progression.TransitionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.LearnerID == learnerID && rec.Approval.Status == progression.StatusPending {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

func (r *fakeRecordRepo) Update(_ context.Context, rec *progression.TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.ID]; !ok {
		return shared.ErrTransitionNotFound
	}
	r.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (r *fakeRecordRepo) ListPending(_ context.Context, forRole learner.Role, opts learner.ListOptions) ([]*progression.TransitionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*progression.TransitionRecord
	for _, rec := range r.records {
		if rec.Approval.Status != progression.StatusPending {
			continue
		}
		if forRole != "" && rec.Details.ToRole != forRole {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sortRecords(out, opts)
	return out, nil
}

func (r *fakeRecordRepo) ListByLearner(_ context.Context, learnerID string, opts learner.ListOptions) ([]*progression.TransitionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*progression.TransitionRecord
	for _, rec := range r.records {
		if rec.LearnerID == learnerID {
			out = append(out, cloneRecord(rec))
		}
	}
	sortRecords(out, opts)
	return out, nil
}

func sortRecords(records []*progression.TransitionRecord, opts learner.ListOptions) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Timeline.RequestedDate, records[j].Timeline.RequestedDate
		if opts.SortDesc {
			return a.After(b)
		}
		return a.Before(b)
	})
}

func (r *fakeRecordRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// ─────────────────────────────────────────────────────────────────────────────
// Event publisher fake
// ─────────────────────────────────────────────────────────────────────────────

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) typesSeen() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType())
	}
	return types
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

type testEnv struct {
	learnerRepo  *fakeLearnerRepo
	academicRepo *fakeAcademicRepo
	recordRepo   *fakeRecordRepo
	catalog      *progression.Catalog
	publisher    *capturingPublisher
	propagator   *RolePropagator
}

func newTestEnv() *testEnv {
	learnerRepo := newFakeLearnerRepo()
	academicRepo := newFakeAcademicRepo()
	catalog := progression.DefaultCatalog()

	return &testEnv{
		learnerRepo:  learnerRepo,
		academicRepo: academicRepo,
		recordRepo:   newFakeRecordRepo(),
		catalog:      catalog,
		publisher:    &capturingPublisher{},
		propagator:   NewRolePropagator(learnerRepo, academicRepo, catalog, nil, nil),
	}
}

// seedLearner stores a profile with the given role and performance.
func (e *testEnv) seedLearner(id string, role learner.Role, completed int, avg float64) *learner.Profile {
	level := 1
	if lvl, err := e.catalog.LevelOf(role); err == nil {
		level = lvl
	}

	p := &learner.Profile{
		ID:           id,
		Email:        id + "@medsim.example",
		PasswordHash: "x",
		DisplayName:  id,
		CurrentRole:  role,
		CurrentLevel: level,
		Competencies: make(map[string]learner.ProficiencyTier),
		Stats: learner.SimulationStats{
			TotalCompleted: completed,
			AverageScore:   avg,
		},
		Version:   1,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	e.learnerRepo.put(p)
	return p
}
