package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"sheetrelay/internal"
	"sheetrelay/models"
	"sheetrelay/ports"
)

// ErrDatabaseDisabled is reported as the database outcome when no repository
// is configured
var ErrDatabaseDisabled = stderrors.New("database disabled")

// SubmissionService runs the best-effort database write and the spreadsheet
// pipeline for each submission. The two run side by side and neither blocks
// nor rolls back the other.
type SubmissionService struct {
	repo     ports.SubmissionRepository
	syncer   ports.SubmissionSyncer
	validate *validator.Validate
	logger   *internal.Logger
}

// NewSubmissionService creates the service. repo may be nil.
func NewSubmissionService(repo ports.SubmissionRepository, syncer ports.SubmissionSyncer, logger *internal.Logger) *SubmissionService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &SubmissionService{
		repo:     repo,
		syncer:   syncer,
		validate: validator.New(),
		logger:   logger.With("submissions"),
	}
}

// Submit records one submission and reports each write separately
func (s *SubmissionService) Submit(ctx context.Context, record *models.Submission) *models.SubmitResult {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	result := &models.SubmitResult{}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.saveToDatabase(ctx, record); err != nil {
			result.DBError = err.Error()
			return
		}
		id := record.ID
		result.TrainingID = &id
		result.DBSaved = true
	}()

	var outcome *models.SyncOutcome
	var syncErr error
	go func() {
		defer wg.Done()
		outcome, syncErr = s.syncer.Submit(ctx, record.SchoolName, record.Subject, record)
	}()
	wg.Wait()

	switch {
	case syncErr != nil:
		result.ExcelError = syncErr.Error()
		s.logger.Error("local workbook write failed for %s: %v", record.ID, syncErr)
	default:
		result.ExcelSaved = outcome.CacheSaved
		result.RemoteSynced = outcome.RemoteSynced
		result.RemotePending = outcome.RemotePending
		if outcome.RemoteErr != nil {
			result.RemoteError = outcome.RemoteErr.Error()
		}
	}
	if result.DBError != "" && result.DBError != ErrDatabaseDisabled.Error() {
		s.logger.Warn("database write failed for %s: %s", record.ID, result.DBError)
	}
	return result
}

// saveToDatabase validates against the column limits and stores a private
// copy of the record so the repository never races the spreadsheet pipeline
func (s *SubmissionService) saveToDatabase(ctx context.Context, record *models.Submission) error {
	if s.repo == nil {
		return ErrDatabaseDisabled
	}
	if err := s.validate.Struct(record); err != nil {
		return describeValidation(err)
	}

	row := *record
	row.Answers = append([]models.Answer(nil), record.Answers...)
	return s.repo.Create(ctx, &row)
}

func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return err
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		problems = append(problems, fe.Namespace()+" failed "+rule)
	}
	return fmt.Errorf("invalid record: %s", strings.Join(problems, "; "))
}
