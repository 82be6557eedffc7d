package api

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"sheetrelay/internal"
	"sheetrelay/models"
)

// Submitter records a parsed submission
type Submitter interface {
	Submit(ctx context.Context, record *models.Submission) *models.SubmitResult
}

// SubmissionHandler serves the training submission endpoint
type SubmissionHandler struct {
	submitter    Submitter
	maxBodyBytes int64
	logger       *internal.Logger
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(submitter Submitter, maxBodyBytes int64, logger *internal.Logger) *SubmissionHandler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &SubmissionHandler{
		submitter:    submitter,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With("api"),
	}
}

// SubmitTraining accepts one training record. The response is 201 when the
// database or the local workbook took the record and 500 when neither did.
func (h *SubmissionHandler) SubmitTraining(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "Payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "Could not read request body"})
		return
	}

	record, err := models.ParseSubmission(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid payload", "error": err.Error()})
		return
	}

	result := h.submitter.Submit(c.Request.Context(), record)
	status, message := http.StatusCreated, "Processed successfully"
	if !result.Accepted() {
		status, message = http.StatusInternalServerError, "Processed, but no write succeeded"
		h.logger.Error("submission for %s rejected: db=%q excel=%q", record.SchoolName, result.DBError, result.ExcelError)
	}

	c.JSON(status, gin.H{
		"message":        message,
		"training_id":    result.TrainingID,
		"db_saved":       result.DBSaved,
		"db_error":       nullable(result.DBError),
		"excel_saved":    result.ExcelSaved,
		"excel_error":    nullable(result.ExcelError),
		"remote_synced":  result.RemoteSynced,
		"remote_pending": result.RemotePending,
		"remote_error":   nullable(result.RemoteError),
	})
}

// AzureCallback acknowledges the app registration redirect URI
func (h *SubmissionHandler) AzureCallback(c *gin.Context) {
	c.String(http.StatusOK, "Azure callback endpoint is configured.")
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
