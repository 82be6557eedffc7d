package postgres

import (
	"context"
	"time"

	"sheetrelay/internal/errors"
	"sheetrelay/models"
	"sheetrelay/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SubmissionRepositoryImpl implements SubmissionRepository for PostgreSQL
type SubmissionRepositoryImpl struct {
	db *sqlx.DB
}

// NewSubmissionRepository creates a new PostgreSQL submission repository
func NewSubmissionRepository(db *sqlx.DB) ports.SubmissionRepository {
	return &SubmissionRepositoryImpl{db: db}
}

const insertTrainingRecord = `
	INSERT INTO training_records (
		id, date, time, subject, student_name, gender, grade, user_role,
		school_operation_region, school_name, class_name, teacher_name,
		auto_correct_score_points, created_at
	) VALUES (
		:id, :date, :time, :subject, :student_name, :gender, :grade, :user_role,
		:school_operation_region, :school_name, :class_name, :teacher_name,
		:auto_correct_score_points, :created_at
	)
`

const insertTrainingAnswer = `
	INSERT INTO training_answers (training_id, position, question_number, answer_value)
	VALUES (:training_id, :position, :question_number, :answer_value)
`

// Create stores the record and its answers in one transaction, assigning
// the record id when it is unset.
func (r *SubmissionRepositoryImpl) Create(ctx context.Context, s *models.Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, insertTrainingRecord, s); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, err)
	}

	for i := range s.Answers {
		s.Answers[i].TrainingID = s.ID
		s.Answers[i].Position = i
		if _, err := tx.NamedExecContext(ctx, insertTrainingAnswer, &s.Answers[i]); err != nil {
			return errors.WithCode(errors.CodeDatabaseError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, err)
	}
	return nil
}
