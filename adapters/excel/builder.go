package excel

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"sheetrelay/domain/workbook"
	"sheetrelay/internal"
	"sheetrelay/internal/errors"
	"sheetrelay/internal/fsutil"
	"sheetrelay/models"
)

// Builder maintains the local per-school workbook cache
type Builder struct {
	style  StyleConfig
	logger *internal.Logger
}

// NewBuilder creates a builder with the given formatting
func NewBuilder(style StyleConfig, logger *internal.Logger) *Builder {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if style.ColumnWidth <= 0 {
		style = DefaultStyleConfig()
	}
	return &Builder{style: style, logger: logger.With("excel")}
}

// AppendSubmission adds record as a new row on the subject's sheet of the
// workbook at cachePath, creating the workbook and sheet on first use. The
// header is written only when the sheet is created. The file is durable on
// disk when this returns.
func (b *Builder) AppendSubmission(cachePath, subject string, record *models.Submission) (string, error) {
	sheet := workbook.SanitizeSheetName(subject)

	f, created, err := openOrCreate(cachePath)
	if err != nil {
		return "", errors.LocalPersistenceError(cachePath, err)
	}
	defer f.Close()

	if err := ensureSheet(f, sheet, created); err != nil {
		return "", errors.LocalPersistenceError(cachePath, err)
	}

	used, width, err := usedRows(f, sheet)
	if err != nil {
		return "", errors.LocalPersistenceError(cachePath, err)
	}
	next := used + 1

	if used == 0 {
		header := workbook.HeaderRow(record)
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return "", errors.LocalPersistenceError(cachePath, err)
		}
		width = len(header)
		next = 2
	}

	data := workbook.DataRow(record)
	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return "", errors.LocalPersistenceError(cachePath, err)
	}
	if err := f.SetSheetRow(sheet, cell, &data); err != nil {
		return "", errors.LocalPersistenceError(cachePath, err)
	}
	width = max(width, len(data))

	if err := b.applyFormatting(f, sheet, next, width); err != nil {
		return "", errors.LocalPersistenceError(cachePath, err)
	}
	if err := save(f, cachePath); err != nil {
		return "", errors.LocalPersistenceError(cachePath, err)
	}

	b.logger.Debug("appended row %d to %s!%s", next, cachePath, sheet)
	return cachePath, nil
}

// SeedWorkbook renders a single-sheet workbook holding only the header row
func (b *Builder) SeedWorkbook(sheet string, headers []string) ([]byte, error) {
	sheet = workbook.SanitizeSheetName(sheet)
	f := excelize.NewFile()
	defer f.Close()

	if err := ensureSheet(f, sheet, true); err != nil {
		return nil, errors.Wrap(err, "failed to create seed sheet")
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return nil, errors.Wrap(err, "failed to write seed header")
	}
	if err := b.applyFormatting(f, sheet, 1, len(headers)); err != nil {
		return nil, errors.Wrap(err, "failed to format seed workbook")
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "failed to render seed workbook")
	}
	return buf.Bytes(), nil
}

func openOrCreate(path string) (*excelize.File, bool, error) {
	if !fsutil.Exists(path) {
		return excelize.NewFile(), true, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("open cached workbook: %w", err)
	}
	return f, false, nil
}

// ensureSheet adds sheet when missing. A fresh workbook loses its default
// sheet so the file holds only subject sheets.
func ensureSheet(f *excelize.File, sheet string, fresh bool) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return err
	}
	if idx >= 0 {
		return nil
	}
	idx, err = f.NewSheet(sheet)
	if err != nil {
		return err
	}
	if fresh {
		f.SetActiveSheet(idx)
		if err := f.DeleteSheet(workbook.DefaultSheetName); err != nil {
			return err
		}
	}
	return nil
}

// usedRows counts every row element of sheet, blank rows included, and the
// widest row. GetRows trims trailing rows without values, which would let the
// next append overwrite a submission that carried no values.
func usedRows(f *excelize.File, sheet string) (int, int, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	count, width := 0, 0
	for rows.Next() {
		count++
		cols, err := rows.Columns()
		if err != nil {
			return 0, 0, err
		}
		width = max(width, len(cols))
	}
	return count, width, rows.Error()
}

func (b *Builder) applyFormatting(f *excelize.File, sheet string, lastRow, width int) error {
	if width < 1 || lastRow < 1 {
		return nil
	}
	border := []excelize.Border{
		{Type: "left", Color: b.style.BorderColor, Style: 1},
		{Type: "top", Color: b.style.BorderColor, Style: 1},
		{Type: "right", Color: b.style.BorderColor, Style: 1},
		{Type: "bottom", Color: b.style.BorderColor, Style: 1},
	}
	align := &excelize.Alignment{Horizontal: "center", Vertical: "center"}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Border:    border,
		Font:      &excelize.Font{Bold: true, Color: b.style.HeaderFont},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{b.style.HeaderFill}, Pattern: 1},
		Alignment: align,
	})
	if err != nil {
		return err
	}
	evenStyle, err := f.NewStyle(&excelize.Style{
		Border:    border,
		Fill:      excelize.Fill{Type: "pattern", Color: []string{b.style.EvenRowFill}, Pattern: 1},
		Alignment: align,
	})
	if err != nil {
		return err
	}
	oddStyle, err := f.NewStyle(&excelize.Style{
		Border:    border,
		Fill:      excelize.Fill{Type: "pattern", Color: []string{b.style.OddRowFill}, Pattern: 1},
		Alignment: align,
	})
	if err != nil {
		return err
	}

	lastCol, err := excelize.ColumnNumberToName(width)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}
	for row := 2; row <= lastRow; row++ {
		style := oddStyle
		if row%2 == 0 {
			style = evenStyle
		}
		if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row), style); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", lastCol, b.style.ColumnWidth)
}

func save(f *excelize.File, path string) error {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, buf.Bytes(), os.FileMode(0o644))
}
