package app

import (
	"context"
	"strings"
	"time"

	"sheetrelay/domain/workbook"
	"sheetrelay/internal"
	"sheetrelay/internal/errors"
	"sheetrelay/models"
	"sheetrelay/ports"
)

// Provisioning steps named in PROVISIONING_ERROR messages
const (
	StepFolder   = "folder"
	StepWorkbook = "workbook"
	StepSheet    = "sheet"
	StepTable    = "table"
)

// TableProvisioner ensures a school's remote workbook has a table for the
// subject and appends rows to it through the workbook API.
type TableProvisioner struct {
	drive            ports.DriveDirectory
	workbooks        ports.WorkbookAPI
	seeder           ports.WorkbookSeeder
	rootFolder       string
	appendRetryDelay time.Duration
	sleep            func(ctx context.Context, d time.Duration) error
	logger           *internal.Logger
}

// NewTableProvisioner creates a provisioner rooted at rootFolder
func NewTableProvisioner(drive ports.DriveDirectory, workbooks ports.WorkbookAPI, seeder ports.WorkbookSeeder, rootFolder string, appendRetryDelay time.Duration, logger *internal.Logger) *TableProvisioner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &TableProvisioner{
		drive:            drive,
		workbooks:        workbooks,
		seeder:           seeder,
		rootFolder:       rootFolder,
		appendRetryDelay: appendRetryDelay,
		sleep:            sleepContext,
		logger:           logger.With("provisioner"),
	}
}

// EnsureAndAppend creates whatever is missing of folder, workbook, sheet and
// table, then appends row. Existing objects are reused, so repeating a call
// creates nothing new.
func (p *TableProvisioner) EnsureAndAppend(ctx context.Context, schoolKey, subject string, headers []string, row []interface{}) (*models.AppendResult, error) {
	school := workbook.SafeSchoolName(schoolKey)
	sheet := workbook.SanitizeSheetName(subject)
	folder := workbook.FolderPath(p.rootFolder, school)
	result := &models.AppendResult{
		Workbook: workbook.WorkbookPath(p.rootFolder, school),
		Sheet:    sheet,
		Table:    workbook.TableName(sheet),
	}

	// 1. folder
	if err := p.drive.EnsureFolderPath(ctx, folder); err != nil {
		return nil, errors.ProvisioningError(StepFolder, err)
	}

	// 2. workbook
	item, err := p.ensureWorkbook(ctx, result, headers)
	if err != nil {
		return nil, errors.ProvisioningError(StepWorkbook, err)
	}

	// 3. worksheet
	if err := p.ensureSheet(ctx, item.ID, result, headers); err != nil {
		return nil, errors.ProvisioningError(StepSheet, err)
	}

	// 4. table
	tableRef, err := p.ensureTable(ctx, item.ID, result, len(headers))
	if err != nil {
		return nil, errors.ProvisioningError(StepTable, err)
	}

	// 5. row
	if err := p.appendRow(ctx, item.ID, tableRef, row); err != nil {
		return nil, errors.Wrapf(err, "failed to append row to %s", result.Table)
	}

	p.logger.Info("appended row to %s [%s/%s]", result.Workbook, result.Sheet, result.Table)
	return result, nil
}

func (p *TableProvisioner) ensureWorkbook(ctx context.Context, result *models.AppendResult, headers []string) (*models.DriveItem, error) {
	item, err := p.drive.Resolve(ctx, result.Workbook)
	if err == nil {
		return item, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	seed, err := p.seeder.SeedWorkbook(result.Sheet, headers)
	if err != nil {
		return nil, err
	}
	item, err = p.drive.PutContent(ctx, result.Workbook, seed)
	if err != nil {
		return nil, err
	}
	result.CreatedWorkbook = true
	p.logger.Info("created workbook %s", result.Workbook)
	return item, nil
}

func (p *TableProvisioner) ensureSheet(ctx context.Context, itemID string, result *models.AppendResult, headers []string) error {
	sheets, err := p.workbooks.ListWorksheets(ctx, itemID)
	if err != nil {
		return err
	}
	// Excel sheet names are case-insensitive
	for _, s := range sheets {
		if strings.EqualFold(s.Name, result.Sheet) {
			result.Sheet = s.Name
			return nil
		}
	}

	created, err := p.workbooks.AddWorksheet(ctx, itemID, result.Sheet)
	if err != nil {
		return err
	}
	if !created {
		p.logger.Debug("sheet %s was added concurrently, keeping its header", result.Sheet)
		return nil
	}
	address, err := headerRange(len(headers))
	if err != nil {
		return err
	}
	values := make([]interface{}, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := p.workbooks.WriteRange(ctx, itemID, result.Sheet, address, [][]interface{}{values}); err != nil {
		return err
	}
	result.CreatedSheet = true
	return nil
}

func (p *TableProvisioner) ensureTable(ctx context.Context, itemID string, result *models.AppendResult, columns int) (string, error) {
	tables, err := p.workbooks.ListTables(ctx, itemID)
	if err != nil {
		return "", err
	}
	for _, t := range tables {
		if strings.EqualFold(t.Name, result.Table) {
			result.Table = t.Name
			return t.ID, nil
		}
	}

	address, err := workbook.HeaderAddress(result.Sheet, columns)
	if err != nil {
		return "", err
	}
	table, err := p.workbooks.AddTable(ctx, itemID, result.Sheet, address)
	if err != nil {
		return "", err
	}
	if table.Name != result.Table {
		if err := p.workbooks.RenameTable(ctx, itemID, table.ID, result.Table); err != nil {
			return "", err
		}
	}
	result.CreatedTable = true
	return table.ID, nil
}

// appendRow retries once, after a fixed delay, when the workbook is busy or
// the service is throttling.
func (p *TableProvisioner) appendRow(ctx context.Context, itemID, tableRef string, row []interface{}) error {
	err := p.workbooks.AddTableRow(ctx, itemID, tableRef, row)
	if err == nil || !errors.IsTransient(err) {
		return err
	}
	p.logger.Warn("row append busy, retrying in %s: %v", p.appendRetryDelay, err)
	if err := p.sleep(ctx, p.appendRetryDelay); err != nil {
		return err
	}
	return p.workbooks.AddTableRow(ctx, itemID, tableRef, row)
}

// headerRange is the sheet-local header range, e.g. A1:I1
func headerRange(columns int) (string, error) {
	if columns < 1 {
		return "", errors.InvalidInput("header needs at least one column")
	}
	last, err := workbook.ColumnLetter(columns)
	if err != nil {
		return "", err
	}
	return "A1:" + last + "1", nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
