package models

// DriveItem is the subset of driveItem metadata the relay relies on
type DriveItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	WebURL   string `json:"webUrl"`
	Size     int64  `json:"size"`
	ETag     string `json:"eTag"`
	IsFolder bool   `json:"isFolder"`
}

// Worksheet is a sheet inside a remote workbook
type Worksheet struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// Table is a structured table inside a remote workbook
type Table struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AppendResult describes where a row was appended and what had to be created
type AppendResult struct {
	Workbook        string `json:"workbook"`
	Sheet           string `json:"sheet"`
	Table           string `json:"table"`
	CreatedWorkbook bool   `json:"created_workbook"`
	CreatedSheet    bool   `json:"created_sheet"`
	CreatedTable    bool   `json:"created_table"`
}

// SyncOutcome is the orchestrator's report for one submission
type SyncOutcome struct {
	CachePath     string
	CacheSaved    bool
	RemoteSynced  bool
	RemotePending bool
	RemoteErr     error
	Item          *DriveItem
	Append        *AppendResult
}
