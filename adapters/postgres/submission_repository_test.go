package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetrelay/internal/migration"
	"sheetrelay/models"
)

// Runs against a disposable database named by TEST_DATABASE_URL.
func TestSubmissionRepositoryCreate(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	runner := migration.NewRunner()
	require.NoError(t, runner.Run(ctx, db))
	require.NoError(t, runner.Run(ctx, db), "migrations are idempotent")

	score := 9
	s := &models.Submission{
		Subject:                "Math",
		StudentName:            "Ana",
		SchoolName:             "Alpha",
		AutoCorrectScorePoints: &score,
		Answers: []models.Answer{
			{QuestionNumber: "Q1", AnswerValue: "yes"},
			{QuestionNumber: "Q2", AnswerValue: "no"},
		},
	}
	repo := NewSubmissionRepository(db)
	require.NoError(t, repo.Create(ctx, s))
	assert.NotEmpty(t, s.ID)

	var answers []models.Answer
	require.NoError(t, db.SelectContext(ctx, &answers, `
		SELECT training_id, position, question_number, answer_value
		FROM training_answers WHERE training_id = $1 ORDER BY position
	`, s.ID))
	require.Len(t, answers, 2)
	assert.Equal(t, "Q2", answers[1].QuestionNumber)
	assert.Equal(t, 1, answers[1].Position)

	var stored *int
	require.NoError(t, db.GetContext(ctx, &stored, `SELECT auto_correct_score_points FROM training_records WHERE id = $1`, s.ID))
	require.NotNil(t, stored)
	assert.Equal(t, 9, *stored)
}
