package postgres

// Embedded SQL migrations. Applied by the Migrator in version order, each
// inside its own transaction.

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_learners",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_transition_records",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_academic_records",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Migration 001: learners
// The role column is deliberately not named current_role: CURRENT_ROLE is a
// fully reserved word in PostgreSQL and cannot be an unquoted identifier.
// ──────────────────────────────────────────────────────────────────────────────

const migration001Up = `
CREATE TABLE IF NOT EXISTS learners (
    id                 TEXT PRIMARY KEY,
    email              TEXT NOT NULL UNIQUE,
    password_hash      TEXT NOT NULL,
    display_name       TEXT NOT NULL,
    role               TEXT NOT NULL,
    current_level      INTEGER NOT NULL DEFAULT 1,
    competencies       JSONB NOT NULL DEFAULT '{}'::jsonb,
    certifications     JSONB NOT NULL DEFAULT '[]'::jsonb,
    total_completed    INTEGER NOT NULL DEFAULT 0,
    average_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
    transition_history JSONB NOT NULL DEFAULT '[]'::jsonb,
    version            BIGINT NOT NULL DEFAULT 1,
    created_at         TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_learners_role ON learners(role);
CREATE INDEX IF NOT EXISTS idx_learners_created_at ON learners(created_at);
`

const migration001Down = `
DROP TABLE IF EXISTS learners;
`

// ──────────────────────────────────────────────────────────────────────────────
// Migration 002: transition_records
// The partial unique index is the serialization point for the one-pending-
// record-per-learner rule: the check is atomic with the insert.
// ──────────────────────────────────────────────────────────────────────────────

const migration002Up = `
CREATE TABLE IF NOT EXISTS transition_records (
    id               TEXT PRIMARY KEY,
    learner_id       TEXT NOT NULL REFERENCES learners(id),
    from_role        TEXT NOT NULL,
    to_role          TEXT NOT NULL,
    transition_type  TEXT NOT NULL,
    reason           TEXT NOT NULL DEFAULT '',
    requirements     JSONB NOT NULL DEFAULT '{}'::jsonb,
    status           TEXT NOT NULL DEFAULT 'pending',
    approved_by      TEXT NOT NULL DEFAULT '',
    approval_date    TIMESTAMP WITH TIME ZONE,
    review_notes     TEXT NOT NULL DEFAULT '',
    rejection_reason TEXT NOT NULL DEFAULT '',
    conditions       JSONB NOT NULL DEFAULT '[]'::jsonb,
    requested_date   TIMESTAMP WITH TIME ZONE NOT NULL,
    effective_date   TIMESTAMP WITH TIME ZONE,
    initiated_by     TEXT NOT NULL DEFAULT '',
    system_generated BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT chk_transition_status
        CHECK (status IN ('pending', 'approved', 'rejected', 'conditional')),
    CONSTRAINT chk_transition_type
        CHECK (transition_type IN ('manual', 'automatic')),
    CONSTRAINT chk_effective_iff_approved
        CHECK ((status = 'approved') = (effective_date IS NOT NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_transition_pending_per_learner
    ON transition_records(learner_id)
    WHERE status = 'pending';

CREATE INDEX IF NOT EXISTS idx_transition_records_learner
    ON transition_records(learner_id, requested_date DESC);

CREATE INDEX IF NOT EXISTS idx_transition_records_pending_role
    ON transition_records(to_role, requested_date)
    WHERE status = 'pending';
`

const migration002Down = `
DROP TABLE IF EXISTS transition_records;
`

// ──────────────────────────────────────────────────────────────────────────────
// Migration 003: academic_records
// Legacy denormalized year-of-study, kept in step with the profile by the
// role propagator.
// ──────────────────────────────────────────────────────────────────────────────

const migration003Up = `
CREATE TABLE IF NOT EXISTS academic_records (
    learner_id    TEXT PRIMARY KEY REFERENCES learners(id),
    year_of_study INTEGER NOT NULL,
    updated_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS academic_records;
`
