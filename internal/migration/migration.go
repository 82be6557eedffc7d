package migration

import (
	"context"

	"sheetrelay/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order. Every step is
// safe to repeat.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createTrainingRecordsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create training_records table")
	}

	if err := r.createTrainingAnswersTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create training_answers table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createTrainingRecordsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS training_records (
			id UUID PRIMARY KEY,
			date VARCHAR(50) NOT NULL DEFAULT '',
			time VARCHAR(50) NOT NULL DEFAULT '',
			subject VARCHAR(255) NOT NULL DEFAULT '',
			student_name VARCHAR(255) NOT NULL DEFAULT '',
			gender VARCHAR(50) NOT NULL DEFAULT '',
			grade VARCHAR(50) NOT NULL DEFAULT '',
			user_role VARCHAR(100) NOT NULL DEFAULT '',
			school_operation_region VARCHAR(255) NOT NULL DEFAULT '',
			school_name VARCHAR(255) NOT NULL DEFAULT '',
			class_name VARCHAR(100) NOT NULL DEFAULT '',
			teacher_name VARCHAR(255) NOT NULL DEFAULT '',
			auto_correct_score_points INTEGER,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createTrainingAnswersTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS training_answers (
			training_id UUID NOT NULL REFERENCES training_records(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			question_number VARCHAR(50) NOT NULL,
			answer_value TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (training_id, position)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_training_records_school ON training_records(school_name);
		CREATE INDEX IF NOT EXISTS idx_training_records_subject ON training_records(subject);
		CREATE INDEX IF NOT EXISTS idx_training_records_created_at ON training_records(created_at DESC);
	`)
	return err
}
