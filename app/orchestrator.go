package app

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"sheetrelay/domain/workbook"
	"sheetrelay/internal"
	"sheetrelay/internal/config"
	"sheetrelay/internal/errors"
	"sheetrelay/internal/fsutil"
	"sheetrelay/internal/keylock"
	"sheetrelay/models"
	"sheetrelay/ports"
)

// journalSuffix names the local workbook that collects rows written while the
// remote copy could not be fetched
const journalSuffix = ".unsynced.xlsx"

// OrchestratorOptions selects how submissions reach the remote drive
type OrchestratorOptions struct {
	Strategy          string
	Mode              string
	CacheDir          string
	RootFolder        string
	ChunkSize         int64
	MaxRetries        int
	BackgroundWorkers int
}

// Orchestrator records each submission in the school's local workbook and
// mirrors it to the remote drive. Work for one school is serialized by a
// per-school lock held across the whole pipeline.
type Orchestrator struct {
	opts       OrchestratorOptions
	builder    ports.SpreadsheetBuilder
	drive      ports.DriveDirectory
	uploader   ports.FileUploader
	downloader ports.FileDownloader
	tables     ports.TableAppender

	locks   *keylock.Registry
	workers *semaphore.Weighted
	pending sync.WaitGroup
	logger  *internal.Logger
}

// NewOrchestrator creates an orchestrator. tables may be nil unless the
// table strategy is selected.
func NewOrchestrator(
	opts OrchestratorOptions,
	builder ports.SpreadsheetBuilder,
	drive ports.DriveDirectory,
	uploader ports.FileUploader,
	downloader ports.FileDownloader,
	tables ports.TableAppender,
	logger *internal.Logger,
) *Orchestrator {
	if opts.Strategy == "" {
		opts.Strategy = config.StrategyUpload
	}
	if opts.Mode == "" {
		opts.Mode = config.ModeSync
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.BackgroundWorkers < 1 {
		opts.BackgroundWorkers = 1
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Orchestrator{
		opts:       opts,
		builder:    builder,
		drive:      drive,
		uploader:   uploader,
		downloader: downloader,
		tables:     tables,
		locks:      keylock.New(),
		workers:    semaphore.NewWeighted(int64(opts.BackgroundWorkers)),
		logger:     logger.With("orchestrator"),
	}
}

// localReport is called exactly once per pipeline run, as soon as the local
// workbook write has either succeeded or failed
type localReport func(out *models.SyncOutcome, err error)

// Submit records one submission. In sync mode it returns once the remote step
// has finished; in async mode it returns as soon as the local workbook is
// durable and reports the remote step as pending. A local persistence failure
// is returned as an error; remote failures are reported in the outcome.
func (o *Orchestrator) Submit(ctx context.Context, schoolKey, subject string, record *models.Submission) (*models.SyncOutcome, error) {
	school := workbook.SafeSchoolName(schoolKey)
	if o.opts.Mode == config.ModeAsync {
		return o.submitAsync(ctx, school, subject, record)
	}

	unlock := o.locks.Lock(school)
	defer unlock()
	return o.run(ctx, school, subject, record, func(*models.SyncOutcome, error) {})
}

func (o *Orchestrator) submitAsync(ctx context.Context, school, subject string, record *models.Submission) (*models.SyncOutcome, error) {
	if err := o.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	type local struct {
		out *models.SyncOutcome
		err error
	}
	done := make(chan local, 1)
	background := context.WithoutCancel(ctx)

	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		defer o.workers.Release(1)

		unlock := o.locks.Lock(school)
		defer unlock()

		out, err := o.run(background, school, subject, record, func(out *models.SyncOutcome, err error) {
			if out != nil {
				snapshot := *out
				out = &snapshot
			}
			done <- local{out: out, err: err}
		})
		switch {
		case err != nil:
			// already handed to the caller
		case out.RemoteErr != nil:
			o.logger.Warn("background sync for %s finished with error: %v", school, out.RemoteErr)
		default:
			o.logger.Info("background sync for %s finished", school)
		}
	}()

	select {
	case l := <-done:
		if l.err != nil {
			return nil, l.err
		}
		l.out.RemotePending = true
		return l.out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait blocks until background submissions have finished or ctx is done
func (o *Orchestrator) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		o.pending.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LockCount reports how many schools have been seen
func (o *Orchestrator) LockCount() int {
	return o.locks.Len()
}

// CachePath is the local workbook kept for a school
func (o *Orchestrator) CachePath(schoolKey string) string {
	return filepath.Join(o.opts.CacheDir, workbook.WorkbookFileName(workbook.SafeSchoolName(schoolKey)))
}

// JournalPath is the local workbook that collects a school's rows written
// while its remote copy could not be fetched
func (o *Orchestrator) JournalPath(schoolKey string) string {
	return strings.TrimSuffix(o.CachePath(schoolKey), ".xlsx") + journalSuffix
}

func (o *Orchestrator) run(ctx context.Context, school, subject string, record *models.Submission, report localReport) (*models.SyncOutcome, error) {
	if o.opts.Strategy == config.StrategyTable {
		return o.runTable(ctx, school, subject, record, report)
	}
	return o.runUpload(ctx, school, subject, record, report)
}

// runUpload keeps the remote workbook as the source of truth: fetch it when
// there is no local copy, append locally, push the whole file back.
func (o *Orchestrator) runUpload(ctx context.Context, school, subject string, record *models.Submission, report localReport) (*models.SyncOutcome, error) {
	folder := workbook.FolderPath(o.opts.RootFolder, school)
	name := workbook.WorkbookFileName(school)
	out := &models.SyncOutcome{CachePath: o.CachePath(school)}

	var fetchErr error
	if !fsutil.Exists(out.CachePath) {
		found, err := o.downloader.DownloadFile(ctx, folder, name, out.CachePath)
		switch {
		case err != nil:
			fetchErr = err
			out.CachePath = o.JournalPath(school)
			o.logger.Warn("could not fetch %s/%s, journaling locally to %s: %v", folder, name, out.CachePath, err)
		case !found:
			o.logger.Info("no remote workbook for %s yet, starting a fresh one", school)
		}
	}

	if _, err := o.builder.AppendSubmission(out.CachePath, subject, record); err != nil {
		report(nil, err)
		return nil, err
	}
	out.CacheSaved = true
	report(out, nil)

	if fetchErr != nil {
		out.RemoteErr = fetchErr
		return out, nil
	}

	if err := o.drive.EnsureFolderPath(ctx, folder); err != nil {
		out.RemoteErr = errors.ProvisioningError(StepFolder, err)
		o.logger.Warn("upload of %s skipped: %v", name, out.RemoteErr)
		return out, nil
	}

	item, err := o.uploader.UploadLargeFile(ctx, out.CachePath, folder, name, o.opts.ChunkSize, o.opts.MaxRetries)
	if err != nil {
		out.RemoteErr = err
		if errors.HasCode(err, errors.CodeConflictOrLocked) {
			o.logger.Warn("%s is locked, will retry with next submission", name)
		} else {
			o.logger.Warn("upload of %s failed, keeping local cache: %v", name, err)
		}
		return out, nil
	}

	out.RemoteSynced = true
	out.Item = item
	if err := fsutil.RemoveIfExists(out.CachePath); err != nil {
		o.logger.Warn("uploaded %s but could not remove local cache: %v", name, err)
	}
	o.logger.Info("synced %s (%s)", name, item.WebURL)
	return out, nil
}

// runTable keeps the local workbook as a journal and appends the row to the
// remote table directly.
func (o *Orchestrator) runTable(ctx context.Context, school, subject string, record *models.Submission, report localReport) (*models.SyncOutcome, error) {
	out := &models.SyncOutcome{CachePath: o.CachePath(school)}
	if _, err := o.builder.AppendSubmission(out.CachePath, subject, record); err != nil {
		report(nil, err)
		return nil, err
	}
	out.CacheSaved = true
	report(out, nil)

	if o.tables == nil {
		out.RemoteErr = errors.ConfigInvalid("table strategy has no table appender")
		return out, nil
	}
	res, err := o.tables.EnsureAndAppend(ctx, school, subject, workbook.HeaderRow(record), workbook.DataRow(record))
	if err != nil {
		out.RemoteErr = err
		o.logger.Warn("table append for %s failed: %v", school, err)
		return out, nil
	}
	out.RemoteSynced = true
	out.Append = res
	return out, nil
}
