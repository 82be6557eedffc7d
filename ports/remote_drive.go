package ports

import (
	"context"

	"sheetrelay/models"
)

// TokenSource provides bearer credentials for the remote drive API
type TokenSource interface {
	// Token returns a cached unexpired credential or obtains a fresh one
	Token(ctx context.Context) (string, error)

	// Invalidate drops the cached credential so the next Token call refreshes
	Invalidate()
}

// DriveDirectory resolves and creates remote objects by slash-delimited path
type DriveDirectory interface {
	// Resolve looks up an item; a missing item yields a NOT_FOUND error
	Resolve(ctx context.Context, path string) (*models.DriveItem, error)

	// EnsureFolder creates name under parentPath, treating "already exists" as success
	EnsureFolder(ctx context.Context, parentPath, name string) error

	// EnsureFolderPath walks fullPath root to leaf creating missing folders
	EnsureFolderPath(ctx context.Context, fullPath string) error

	// PutContent creates or replaces a small file in one request
	PutContent(ctx context.Context, path string, content []byte) (*models.DriveItem, error)
}

// FileUploader pushes a local file to the drive through a resumable session
type FileUploader interface {
	UploadLargeFile(ctx context.Context, localPath, remoteFolder, remoteFilename string, chunkSize int64, maxRetries int) (*models.DriveItem, error)
}

// FileDownloader fetches remote bytes into a local file. It reports false
// without error when the remote object does not exist.
type FileDownloader interface {
	DownloadFile(ctx context.Context, remoteFolder, remoteFilename, localPath string) (bool, error)
}

// WorkbookAPI manipulates sheets and structured tables of a remote workbook
type WorkbookAPI interface {
	ListWorksheets(ctx context.Context, itemID string) ([]models.Worksheet, error)
	// AddWorksheet reports false when a sheet of that name already existed
	AddWorksheet(ctx context.Context, itemID, name string) (bool, error)
	ListTables(ctx context.Context, itemID string) ([]models.Table, error)
	AddTable(ctx context.Context, itemID, sheet, address string) (*models.Table, error)
	RenameTable(ctx context.Context, itemID, tableID, name string) error
	// WriteRange sets cell values of a sheet-local A1 range such as A1:I1
	WriteRange(ctx context.Context, itemID, sheet, address string, values [][]interface{}) error
	AddTableRow(ctx context.Context, itemID, tableIDOrName string, values []interface{}) error
}

// TableAppender provisions the remote workbook, sheet and table for a school
// and subject, then appends one row to the table
type TableAppender interface {
	EnsureAndAppend(ctx context.Context, schoolKey, subject string, headers []string, row []interface{}) (*models.AppendResult, error)
}
