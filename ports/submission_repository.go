package ports

import (
	"context"

	"sheetrelay/models"
)

// SubmissionRepository persists submissions to the relational database
type SubmissionRepository interface {
	// Create stores the record and its answers, assigning an ID when unset
	Create(ctx context.Context, submission *models.Submission) error
}

// SubmissionSyncer records a submission locally and mirrors it remotely
type SubmissionSyncer interface {
	Submit(ctx context.Context, schoolKey, subject string, record *models.Submission) (*models.SyncOutcome, error)
}
