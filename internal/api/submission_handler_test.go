package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"sheetrelay/internal"
	"sheetrelay/models"
)

type recordingSubmitter struct {
	result *models.SubmitResult
	got    *models.Submission
}

func (r *recordingSubmitter) Submit(_ context.Context, record *models.Submission) *models.SubmitResult {
	r.got = record
	return r.result
}

func newTestRouter(sub Submitter, maxBody int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewSubmissionHandler(sub, maxBody, internal.NewLogger(internal.LogLevelError)))
}

func post(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/submit-training/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const samplePayload = `{
	"date": "2024-05-01", "time": "09:30", "subject": "Math",
	"student_name": "Ana", "school_name": "Alpha High",
	"auto_correct_score_points": "12",
	"answers": [
		{"question_number": "Q1", "answer_value": 3},
		{"question_number": "Q2", "answer_value": true},
		{"question_number": "Q3", "answer_value": null}
	]
}`

func TestSubmitTrainingCreated(t *testing.T) {
	id := uuid.New()
	sub := &recordingSubmitter{result: &models.SubmitResult{
		TrainingID:    &id,
		DBSaved:       true,
		ExcelSaved:    true,
		RemotePending: true,
	}}

	w := post(newTestRouter(sub, 1<<20), samplePayload)

	require.Equal(t, http.StatusCreated, w.Code)
	body := w.Body.String()
	assert.Equal(t, "Processed successfully", gjson.Get(body, "message").String())
	assert.Equal(t, id.String(), gjson.Get(body, "training_id").String())
	assert.True(t, gjson.Get(body, "remote_pending").Bool())
	assert.Equal(t, gjson.Null, gjson.Get(body, "db_error").Type)

	require.NotNil(t, sub.got)
	assert.Equal(t, "Alpha High", sub.got.SchoolName)
	require.NotNil(t, sub.got.AutoCorrectScorePoints)
	assert.Equal(t, 12, *sub.got.AutoCorrectScorePoints)
	require.Len(t, sub.got.Answers, 3)
	assert.Equal(t, "3", sub.got.Answers[0].AnswerValue)
	assert.Equal(t, "true", sub.got.Answers[1].AnswerValue)
	assert.Equal(t, "", sub.got.Answers[2].AnswerValue)
}

func TestSubmitTrainingDegradedSuccess(t *testing.T) {
	sub := &recordingSubmitter{result: &models.SubmitResult{
		DBError:     "database disabled",
		ExcelSaved:  true,
		RemoteError: "upload failed after 1 attempt(s)",
	}}

	w := post(newTestRouter(sub, 1<<20), samplePayload)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, gjson.Null, gjson.Get(w.Body.String(), "training_id").Type)
	assert.Equal(t, "database disabled", gjson.Get(w.Body.String(), "db_error").String())
	assert.False(t, gjson.Get(w.Body.String(), "remote_synced").Bool())
}

func TestSubmitTrainingFailsWhenNothingWritten(t *testing.T) {
	sub := &recordingSubmitter{result: &models.SubmitResult{DBError: "down", ExcelError: "disk full"}}

	w := post(newTestRouter(sub, 1<<20), samplePayload)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "disk full", gjson.Get(w.Body.String(), "excel_error").String())
}

func TestSubmitTrainingRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		maxBody int64
		status  int
	}{
		{"invalid json", `{"date":`, 1 << 20, http.StatusBadRequest},
		{"not an object", `[1,2]`, 1 << 20, http.StatusBadRequest},
		{"too large", samplePayload, 16, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &recordingSubmitter{}
			w := post(newTestRouter(sub, tt.maxBody), tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Nil(t, sub.got)
		})
	}
}

func TestStaticRoutes(t *testing.T) {
	router := newTestRouter(&recordingSubmitter{}, 1<<20)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/azure/callback/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Azure callback")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
