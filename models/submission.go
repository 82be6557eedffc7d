package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Answer is one (question identifier, answer value) pair of a submission
type Answer struct {
	TrainingID     uuid.UUID `json:"-" db:"training_id"`
	Position       int       `json:"-" db:"position"`
	QuestionNumber string    `json:"question_number" db:"question_number" validate:"required,max=10"`
	AnswerValue    string    `json:"answer_value" db:"answer_value" validate:"max=500"`
}

// Submission is a training/quiz record as posted by the e-learning player
type Submission struct {
	ID                     uuid.UUID `json:"id" db:"id"`
	Date                   string    `json:"date" db:"date"`
	Time                   string    `json:"time" db:"time"`
	Subject                string    `json:"subject" db:"subject" validate:"max=100"`
	StudentName            string    `json:"student_name" db:"student_name" validate:"max=200"`
	Gender                 string    `json:"gender" db:"gender"`
	Grade                  string    `json:"grade" db:"grade"`
	UserRole               string    `json:"user_role" db:"user_role"`
	SchoolOperationRegion  string    `json:"school_operation_region" db:"school_operation_region" validate:"max=200"`
	SchoolName             string    `json:"school_name" db:"school_name" validate:"max=200"`
	ClassName              string    `json:"class_name" db:"class_name" validate:"max=100"`
	TeacherName            string    `json:"teacher_name" db:"teacher_name" validate:"max=200"`
	AutoCorrectScorePoints *int      `json:"auto_correct_score_points" db:"auto_correct_score_points"`
	Answers                []Answer  `json:"answers" db:"-" validate:"dive"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
}

// ParseSubmission decodes a submission payload. Missing fields stay empty and
// scalar answer values of any JSON type are kept in their textual form.
func ParseSubmission(body []byte) (*Submission, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("payload must be a JSON object")
	}

	s := &Submission{
		Date:                  text(root, "date"),
		Time:                  text(root, "time"),
		Subject:               text(root, "subject"),
		StudentName:           text(root, "student_name"),
		Gender:                text(root, "gender"),
		Grade:                 text(root, "grade"),
		UserRole:              text(root, "user_role"),
		SchoolOperationRegion: text(root, "school_operation_region"),
		SchoolName:            text(root, "school_name"),
		ClassName:             text(root, "class_name"),
		TeacherName:           text(root, "teacher_name"),
	}

	if score := root.Get("auto_correct_score_points"); score.Exists() {
		switch score.Type {
		case gjson.Number:
			v := int(score.Int())
			s.AutoCorrectScorePoints = &v
		case gjson.String:
			if v, err := strconv.Atoi(strings.TrimSpace(score.Str)); err == nil {
				s.AutoCorrectScorePoints = &v
			}
		}
	}

	for i, item := range root.Get("answers").Array() {
		s.Answers = append(s.Answers, Answer{
			Position:       i,
			QuestionNumber: text(item, "question_number"),
			AnswerValue:    text(item, "answer_value"),
		})
	}
	return s, nil
}

func text(r gjson.Result, path string) string {
	v := r.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	return strings.TrimSpace(v.String())
}

// SubmitResult is the per-submission report returned to the caller. The
// submission is accepted when either authoritative write succeeded.
type SubmitResult struct {
	TrainingID    *uuid.UUID `json:"training_id"`
	DBSaved       bool       `json:"db_saved"`
	DBError       string     `json:"db_error,omitempty"`
	ExcelSaved    bool       `json:"excel_saved"`
	ExcelError    string     `json:"excel_error,omitempty"`
	RemoteSynced  bool       `json:"remote_synced"`
	RemotePending bool       `json:"remote_pending"`
	RemoteError   string     `json:"remote_error,omitempty"`
}

// Accepted reports whether the submission was durably recorded somewhere.
func (r *SubmitResult) Accepted() bool {
	return r.DBSaved || r.ExcelSaved
}
