// Package main is the entry point for the progression engine worker.
//
// The worker owns the background half of role progression: it runs the
// periodic eligibility sweep that auto-promotes learners, and it hosts the
// event handlers that keep the profile cache in step with role changes.
// The interactive half (enrollment, manual requests, reviews) shares the
// same application handlers and is wired the same way.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/medsim-hub/progression-engine/config"
	"github.com/medsim-hub/progression-engine/internal/application/command"
	"github.com/medsim-hub/progression-engine/internal/application/eventhandler"
	"github.com/medsim-hub/progression-engine/internal/domain/learner"
	"github.com/medsim-hub/progression-engine/internal/domain/progression"
	"github.com/medsim-hub/progression-engine/internal/domain/shared"
	"github.com/medsim-hub/progression-engine/internal/infrastructure/messaging"
	"github.com/medsim-hub/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/medsim-hub/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/medsim-hub/progression-engine/internal/infrastructure/scheduler"
	"github.com/medsim-hub/progression-engine/internal/infrastructure/scheduler/jobs"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting progression engine worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.PoolSettings{
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MinIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.MigrateOnStart {
		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional profile cache)
	// ─────────────────────────────────────────────────────────────────────────
	var profileCache learner.Cache
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, profile caching disabled", "error", err)
		} else {
			defer redisCache.Close()
			profileCache = redis.NewLearnerCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Repositories and catalog
	// ─────────────────────────────────────────────────────────────────────────
	learnerRepo := postgres.NewLearnerRepository(dbConn)
	academicRepo := postgres.NewAcademicRecordRepository(dbConn)
	recordRepo := postgres.NewTransitionRepository(dbConn)
	catalog := progression.DefaultCatalog()

	// ─────────────────────────────────────────────────────────────────────────
	// Event bus and handlers
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	roleAdvanced := eventhandler.NewOnRoleAdvancedHandler(
		learnerRepo, profileCache, log, eventhandler.DefaultRoleAdvancedConfig(),
	)
	if err := eventBus.Subscribe(shared.EventRoleAdvanced, roleAdvanced.Handle); err != nil {
		return fmt.Errorf("failed to subscribe role-advanced handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Application layer
	// ─────────────────────────────────────────────────────────────────────────
	propagator := command.NewRolePropagator(learnerRepo, academicRepo, catalog, profileCache, log)
	checkHandler := command.NewCheckProgressionHandler(
		learnerRepo, recordRepo, catalog, propagator, eventBus, log,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		schedConfig := scheduler.DefaultSchedulerConfig()
		schedConfig.Logger = log
		sched = scheduler.NewScheduler(schedConfig)

		sweepJob := jobs.NewSweepProgressionsJob(
			learnerRepo, checkHandler, catalog, eventBus, log,
			jobs.SweepConfig{
				Concurrency: cfg.Scheduler.SweepConcurrency,
				BatchSize:   cfg.Scheduler.SweepBatchSize,
				Timeout:     cfg.Scheduler.SweepTimeout,
			},
		)
		if err := sched.Register(sweepJob, scheduler.NewIntervalSchedule(cfg.Scheduler.SweepInterval)); err != nil {
			return fmt.Errorf("failed to register sweep job: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		log.Info("scheduler running", "sweep_interval", cfg.Scheduler.SweepInterval.String())
	} else {
		log.Warn("scheduler disabled, automatic progression will not run")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("progression engine worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Error("scheduler shutdown failed", "error", err)
		}
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger configures structured logging per the observability config.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
