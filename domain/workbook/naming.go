// Package workbook holds the naming rules and row layout shared by the local
// cache and the remote workbook.
package workbook

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	// MaxSheetNameLength is the spreadsheet limit on worksheet names.
	MaxSheetNameLength = 31
	// DefaultSheetName is used when a subject sanitizes to nothing.
	DefaultSheetName = "Sheet1"
	// DefaultSchoolName is used when a school name sanitizes to nothing.
	DefaultSchoolName = "UnknownSchool"

	maxSchoolNameLength = 120
	maxTableNameLength  = 50
)

var (
	schoolNameReplacer = strings.NewReplacer(
		"/", "-", `\`, "-", ":", "-", "*", "-", "?", "-",
		`"`, "-", "<", "-", ">", "-", "|", "-",
	)
	sheetNameReplacer = strings.NewReplacer(
		`\`, "-", "/", "-", "?", "-", "*", "-", "[", "-", "]", "-", ":", "-",
	)
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonTableChar  = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// MetadataHeaders are the fixed leading columns of every sheet.
var MetadataHeaders = []string{
	"date",
	"time",
	"student_name",
	"class_name",
	"teacher_name",
	"school_operation_region",
	"auto_correct_score_points",
}

// SafeSchoolName makes a school name usable as a drive folder and file name.
func SafeSchoolName(name string) string {
	name = strings.TrimSpace(schoolNameReplacer.Replace(name))
	name = strings.TrimSpace(truncateRunes(name, maxSchoolNameLength))
	if name == "" {
		return DefaultSchoolName
	}
	return name
}

// SanitizeSheetName makes a subject usable as a worksheet name: no
// \ / ? * [ ] : characters, no leading or trailing apostrophe, at most 31
// characters and never empty.
func SanitizeSheetName(name string) string {
	name = sheetNameReplacer.Replace(name)
	name = strings.Trim(strings.TrimSpace(name), "'")
	name = truncateRunes(name, MaxSheetNameLength)
	name = strings.Trim(strings.TrimSpace(name), "'")
	if name == "" {
		return DefaultSheetName
	}
	return name
}

// TableName derives the structured table name for a sheet. Table names hold
// only ASCII word characters; the tbl_ prefix keeps the first one a letter.
// Names that lose characters get a hash suffix so distinct non-Latin sheet
// names never share a table.
func TableName(sheet string) string {
	name := whitespaceRun.ReplaceAllString(strings.TrimSpace("tbl_"+sheet), "_")
	lossy := nonTableChar.MatchString(name)
	name = nonTableChar.ReplaceAllString(name, "_")

	limit := maxTableNameLength
	suffix := ""
	if lossy {
		h := fnv.New32a()
		_, _ = h.Write([]byte(sheet))
		suffix = fmt.Sprintf("_%08x", h.Sum32())
		limit -= len(suffix)
	}
	if len(name) > limit {
		name = name[:limit]
	}
	return name + suffix
}

// ColumnLetter converts a 1-based column index to its letter form
// (1 -> A, 27 -> AA, 702 -> ZZ).
func ColumnLetter(n int) (string, error) {
	return excelize.ColumnNumberToName(n)
}

// HeaderAddress is the A1-style range of a sheet's header row,
// e.g. 'Math 1'!A1:I1.
func HeaderAddress(sheet string, columns int) (string, error) {
	if columns < 1 {
		return "", fmt.Errorf("header needs at least one column")
	}
	last, err := ColumnLetter(columns)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("'%s'!A1:%s1", strings.ReplaceAll(sheet, "'", "''"), last), nil
}

// WorkbookFileName is the cache and remote file name for a school.
func WorkbookFileName(safeSchool string) string {
	return safeSchool + ".xlsx"
}

// FolderPath is the remote folder holding a school's workbook.
func FolderPath(root, safeSchool string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return safeSchool
	}
	return root + "/" + safeSchool
}

// WorkbookPath is the remote path of a school's workbook.
func WorkbookPath(root, safeSchool string) string {
	return FolderPath(root, safeSchool) + "/" + WorkbookFileName(safeSchool)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
