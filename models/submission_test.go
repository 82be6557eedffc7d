package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubmission(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantScore *int
		wantErr   bool
		check     func(t *testing.T, s *Submission)
	}{
		{
			name:      "numeric score and mixed answer types",
			body:      `{"school_name":" Alpha High ","subject":"Math","auto_correct_score_points":9,"answers":[{"question_number":"Q1","answer_value":2.5},{"question_number":"Q2","answer_value":false}]}`,
			wantScore: intPtr(9),
			check: func(t *testing.T, s *Submission) {
				assert.Equal(t, "Alpha High", s.SchoolName)
				require.Len(t, s.Answers, 2)
				assert.Equal(t, "2.5", s.Answers[0].AnswerValue)
				assert.Equal(t, "false", s.Answers[1].AnswerValue)
				assert.Equal(t, 1, s.Answers[1].Position)
			},
		},
		{
			name:      "string score",
			body:      `{"auto_correct_score_points":" 14 "}`,
			wantScore: intPtr(14),
		},
		{
			name: "unparseable score is left empty",
			body: `{"auto_correct_score_points":"n/a","answers":null}`,
			check: func(t *testing.T, s *Submission) {
				assert.Empty(t, s.Answers)
			},
		},
		{
			name: "missing fields stay empty",
			body: `{}`,
			check: func(t *testing.T, s *Submission) {
				assert.Equal(t, "", s.StudentName)
				assert.Equal(t, "", s.Subject)
			},
		},
		{name: "invalid json", body: `{"a":`, wantErr: true},
		{name: "array payload", body: `[]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSubmission([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, s.AutoCorrectScorePoints)
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}

func TestSubmitResultAccepted(t *testing.T) {
	assert.False(t, (&SubmitResult{}).Accepted())
	assert.True(t, (&SubmitResult{DBSaved: true}).Accepted())
	assert.True(t, (&SubmitResult{ExcelSaved: true, RemoteError: "locked"}).Accepted())
}

func intPtr(v int) *int { return &v }
