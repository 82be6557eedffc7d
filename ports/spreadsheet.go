package ports

import "sheetrelay/models"

// SpreadsheetBuilder maintains the local per-school workbook cache
type SpreadsheetBuilder interface {
	// AppendSubmission adds one row to the subject's sheet and persists the
	// workbook durably at cachePath
	AppendSubmission(cachePath, subject string, record *models.Submission) (string, error)
}

// WorkbookSeeder renders a minimal workbook used to create a remote file
type WorkbookSeeder interface {
	SeedWorkbook(sheet string, headers []string) ([]byte, error)
}
