package excel

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/xuri/excelize/v2"
)

const scoreColumn = "auto_correct_score_points"

// ReadSheets returns every worksheet of the workbook at path in tab order
func ReadSheets(path string) ([]SheetData, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("workbook not found: %s", path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var out []SheetData
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
		}
		sheet := SheetData{Name: name}
		if len(rows) > 0 {
			sheet.Header = rows[0]
			sheet.Rows = rows[1:]
		}
		out = append(out, sheet)
	}
	return out, nil
}

// SummarizeScores computes score statistics per sheet. Rows without a
// numeric score are counted as skipped.
func SummarizeScores(path string) ([]ScoreSummary, error) {
	sheets, err := ReadSheets(path)
	if err != nil {
		return nil, err
	}

	summaries := make([]ScoreSummary, 0, len(sheets))
	for _, sheet := range sheets {
		summary := ScoreSummary{Sheet: sheet.Name, Rows: len(sheet.Rows)}
		col := indexOf(sheet.Header, scoreColumn)

		var scores stats.Float64Data
		for _, row := range sheet.Rows {
			if col < 0 || col >= len(row) {
				summary.Skipped++
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
			if err != nil {
				summary.Skipped++
				continue
			}
			scores = append(scores, v)
		}

		summary.Scored = len(scores)
		if len(scores) > 0 {
			summary.Mean, _ = scores.Mean()
			summary.Median, _ = scores.Median()
			summary.Min, _ = scores.Min()
			summary.Max, _ = scores.Max()
			summary.StdDev, _ = scores.StandardDeviation()
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
