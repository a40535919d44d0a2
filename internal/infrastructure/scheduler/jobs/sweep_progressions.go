// Package jobs contains implementations of scheduled jobs for the progression
// engine. The sweep job is what makes automatic progression "automatic": it
// re-evaluates every learner in an auto-advancing role on a fixed cadence.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/medsim-hub/progression-engine/internal/application/command"
	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP PROGRESSIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SweepProgressionsJob walks every learner whose current role has an
// automatic progression rule and runs the eligibility probe for each.
// A learner who has crossed the thresholds is promoted; everyone else is
// a no-op, so the sweep is safe to run as often as the schedule allows.
// Each learner is evaluated at most once per run, under the role they held
// when first listed.
type SweepProgressionsJob struct {
	learnerRepo    learner.Repository
	checkHandler   *command.CheckProgressionHandler
	catalog        *progression.Catalog
	eventPublisher shared.EventPublisher
	logger         *slog.Logger

	config SweepConfig

	lastStats atomic.Value // *SweepStats
}

// SweepConfig contains configuration for the sweep job.
type SweepConfig struct {
	// Concurrency is the number of learners evaluated in parallel.
	Concurrency int

	// BatchSize is the page size used when listing learners per role.
	BatchSize int

	// Timeout is the maximum duration for the entire sweep.
	Timeout time.Duration
}

// DefaultSweepConfig returns sensible defaults.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Concurrency: 5,
		BatchSize:   100,
		Timeout:     10 * time.Minute,
	}
}

// SweepStats contains statistics from one sweep run.
type SweepStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Evaluated   int
	Advanced    int
	Skipped     int
	Failed      int
	Errors      []SweepError
}

// SweepError records one failed evaluation.
type SweepError struct {
	LearnerID  string
	Error      error
	OccurredAt time.Time
}

// NewSweepProgressionsJob creates a new sweep job.
func NewSweepProgressionsJob(
	learnerRepo learner.Repository,
	checkHandler *command.CheckProgressionHandler,
	catalog *progression.Catalog,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
	config SweepConfig,
) *SweepProgressionsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	return &SweepProgressionsJob{
		learnerRepo:    learnerRepo,
		checkHandler:   checkHandler,
		catalog:        catalog,
		eventPublisher: eventPublisher,
		logger:         logger.With("job", "sweep_progressions"),
		config:         config,
	}
}

// Name returns the job name.
func (j *SweepProgressionsJob) Name() string {
	return "sweep_progressions"
}

// Description returns a human-readable description.
func (j *SweepProgressionsJob) Description() string {
	return "Evaluates automatic progression eligibility for all learners"
}

// Run executes the sweep.
func (j *SweepProgressionsJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &SweepStats{
		StartedAt: startedAt,
		Errors:    make([]SweepError, 0),
	}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	// Promotions move learners between roles while the run is iterating
	// them; the seen set keeps a promoted learner from being evaluated a
	// second time under the new role.
	seen := make(map[string]struct{})

	for _, role := range j.catalog.Roles() {
		if j.catalog.AutoRuleFor(role) == nil {
			continue
		}
		if err := j.sweepRole(ctx, role, stats, seen); err != nil {
			return fmt.Errorf("sweep of role %s failed: %w", role, err)
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	event := shared.NewSweepFinishedEvent(
		stats.Evaluated, stats.Advanced, stats.Skipped, stats.Failed, stats.Duration,
	)
	if err := j.eventPublisher.Publish(event); err != nil {
		j.logger.Warn("failed to publish sweep finished event", "error", err)
	}

	j.logger.Info("progression sweep finished",
		"duration", stats.Duration.String(),
		"evaluated", stats.Evaluated,
		"advanced", stats.Advanced,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)

	// A few individual failures are tolerable; a mostly-failing sweep is not.
	if stats.Evaluated > 0 {
		failureRate := float64(stats.Failed) / float64(stats.Evaluated)
		if failureRate > 0.5 {
			return fmt.Errorf("sweep failed for more than 50%% of learners (%d/%d)",
				stats.Failed, stats.Evaluated)
		}
	}

	return nil
}

// sweepRole pages through the learners holding one role and evaluates each.
func (j *SweepProgressionsJob) sweepRole(ctx context.Context, role learner.Role, stats *SweepStats, seen map[string]struct{}) error {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		opts := learner.DefaultListOptions().
			WithOffset(offset).
			WithLimit(j.config.BatchSize).
			WithSort("created_at", false)

		profiles, err := j.learnerRepo.GetByRole(ctx, role, opts)
		if err != nil {
			return fmt.Errorf("failed to list learners for role %s: %w", role, err)
		}
		if len(profiles) == 0 {
			return nil
		}

		advanced := j.evaluateBatch(ctx, profiles, stats, seen)

		if len(profiles) < j.config.BatchSize {
			return nil
		}
		// Promoted learners drop out of this role's listing and the rest
		// shift left to fill the vacated slots, so only the learners still
		// holding the role consume offset positions.
		offset += len(profiles) - advanced
	}
}

// evaluateBatch runs the eligibility probe for a page of learners using a
// bounded worker pool. It returns the number of learners promoted out of
// the page's role, which is exactly how many rows the next page shifts by.
func (j *SweepProgressionsJob) evaluateBatch(ctx context.Context, profiles []*learner.Profile, stats *SweepStats, seen map[string]struct{}) int {
	var (
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, j.config.Concurrency)
		mu        sync.Mutex
		advanced  int
	)

	for _, p := range profiles {
		select {
		case <-ctx.Done():
			wg.Wait()
			return advanced
		default:
		}

		// Already evaluated earlier in this run, under a previous role.
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(learnerID string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			result, err := j.checkHandler.Handle(ctx, command.CheckProgressionCommand{
				LearnerID: learnerID,
			})

			mu.Lock()
			defer mu.Unlock()

			stats.Evaluated++
			if err != nil {
				stats.Failed++
				stats.Errors = append(stats.Errors, SweepError{
					LearnerID:  learnerID,
					Error:      err,
					OccurredAt: time.Now(),
				})
				j.logger.Error("eligibility check failed",
					"learner_id", learnerID,
					"error", err,
				)
				return
			}

			switch {
			case result.Advanced:
				stats.Advanced++
				advanced++
			case result.SkippedPending, result.LostRace:
				stats.Skipped++
			}
		}(p.ID)
	}

	wg.Wait()
	return advanced
}

// LastStats returns statistics from the most recent sweep, or nil if the
// job has not run yet.
func (j *SweepProgressionsJob) LastStats() *SweepStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*SweepStats)
}
