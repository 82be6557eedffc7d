package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetrelay/internal/errors"
	"sheetrelay/internal/testkit"
)

const alphaWorkbook = "Schools/Alpha High/Alpha High.xlsx"

func TestEnsureAndAppendIsIdempotent(t *testing.T) {
	fake := testkit.NewFakeGraph(t)
	p, _ := newTestProvisioner(t, fake)
	ctx := context.Background()
	headers := []string{"student_name", "q1"}

	first, err := p.EnsureAndAppend(ctx, "Alpha High", "Math", headers, []interface{}{"Ana", "B"})
	require.NoError(t, err)
	assert.True(t, first.CreatedWorkbook)
	assert.False(t, first.CreatedSheet, "seed workbook already holds the subject sheet")
	assert.True(t, first.CreatedTable)
	assert.Equal(t, alphaWorkbook, first.Workbook)
	assert.Equal(t, "tbl_Math", first.Table)

	afterFirst := fake.Counts()
	assert.Equal(t, 2, afterFirst.Folders)
	assert.Equal(t, 1, afterFirst.Workbooks)
	assert.Equal(t, 1, afterFirst.Tables)

	second, err := p.EnsureAndAppend(ctx, "Alpha High", "Math", headers, []interface{}{"Ben", "C"})
	require.NoError(t, err)
	assert.False(t, second.CreatedWorkbook)
	assert.False(t, second.CreatedSheet)
	assert.False(t, second.CreatedTable)

	afterSecond := fake.Counts()
	assert.Equal(t, afterFirst.Folders, afterSecond.Folders)
	assert.Equal(t, afterFirst.Workbooks, afterSecond.Workbooks)
	assert.Equal(t, afterFirst.Sheets, afterSecond.Sheets)
	assert.Equal(t, afterFirst.Tables, afterSecond.Tables)

	rows := fake.TableRows(alphaWorkbook, "tbl_Math")
	require.Len(t, rows, 2)
	assert.Equal(t, []interface{}{"Ana", "B"}, rows[0])
	assert.Equal(t, []interface{}{"Ben", "C"}, rows[1])
}

func TestEnsureAndAppendAddsSheetForNewSubject(t *testing.T) {
	fake := testkit.NewFakeGraph(t)
	p, _ := newTestProvisioner(t, fake)
	ctx := context.Background()
	headers := []string{"student_name", "q1"}

	_, err := p.EnsureAndAppend(ctx, "Alpha High", "Math", headers, []interface{}{"Ana", "B"})
	require.NoError(t, err)

	res, err := p.EnsureAndAppend(ctx, "Alpha High", "Science/Physics", headers, []interface{}{"Ana", "D"})
	require.NoError(t, err)
	assert.False(t, res.CreatedWorkbook)
	assert.True(t, res.CreatedSheet)
	assert.True(t, res.CreatedTable)
	assert.Equal(t, "Science-Physics", res.Sheet)

	assert.Equal(t, []string{"Math", "Science-Physics"}, fake.Sheets(alphaWorkbook))
	assert.Equal(t, [][]interface{}{{"student_name", "q1"}}, fake.Cells(alphaWorkbook, "Science-Physics", "A1:B1"))
	assert.Len(t, fake.TableRows(alphaWorkbook, res.Table), 1)
	assert.Len(t, fake.TableRows(alphaWorkbook, "tbl_Math"), 1)
}

func TestEnsureAndAppendKeepsHeaderOfConcurrentSheet(t *testing.T) {
	fake := testkit.NewFakeGraph(t)
	p, _ := newTestProvisioner(t, fake)
	ctx := context.Background()
	headers := []string{"student_name", "q1"}

	_, err := p.EnsureAndAppend(ctx, "Alpha High", "Math", headers, []interface{}{"Ana", "B"})
	require.NoError(t, err)

	existing := []interface{}{"student_name", "q1", "q2"}
	fake.OnCall(testkit.OpAddWorksheet, func() {
		fake.AddSheet(alphaWorkbook, "Science-Physics", "A1:C1", existing)
	})

	res, err := p.EnsureAndAppend(ctx, "Alpha High", "Science/Physics", headers, []interface{}{"Ben", "D"})
	require.NoError(t, err)
	assert.False(t, res.CreatedSheet)
	assert.True(t, res.CreatedTable)
	assert.Nil(t, fake.Cells(alphaWorkbook, "Science-Physics", "A1:B1"), "header of an existing sheet is not rewritten")
	assert.Equal(t, [][]interface{}{existing}, fake.Cells(alphaWorkbook, "Science-Physics", "A1:C1"))
	assert.Len(t, fake.TableRows(alphaWorkbook, res.Table), 1)
}

func TestEnsureAndAppendMatchesNamesIgnoringCase(t *testing.T) {
	fake := testkit.NewFakeGraph(t)
	p, _ := newTestProvisioner(t, fake)
	ctx := context.Background()
	headers := []string{"student_name", "q1"}

	_, err := p.EnsureAndAppend(ctx, "Alpha High", "Math", headers, []interface{}{"Ana", "B"})
	require.NoError(t, err)
	before := fake.Counts()

	res, err := p.EnsureAndAppend(ctx, "Alpha High", "math", headers, []interface{}{"Ben", "C"})
	require.NoError(t, err)
	assert.False(t, res.CreatedSheet)
	assert.False(t, res.CreatedTable)
	assert.Equal(t, "Math", res.Sheet)
	assert.Equal(t, "tbl_Math", res.Table)

	after := fake.Counts()
	assert.Equal(t, before.Sheets, after.Sheets)
	assert.Equal(t, before.Tables, after.Tables)
	assert.Equal(t, []string{"Math"}, fake.Sheets(alphaWorkbook))
	assert.Len(t, fake.TableRows(alphaWorkbook, "tbl_Math"), 2)
}

func TestEnsureAndAppendRetriesBusyRowOnce(t *testing.T) {
	fake := testkit.NewFakeGraph(t)
	p, delays := newTestProvisioner(t, fake)
	fake.FailNext(testkit.OpAddRow, http.StatusConflict)

	_, err := p.EnsureAndAppend(context.Background(), "Alpha High", "Math", []string{"q1"}, []interface{}{"A"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, *delays)
	assert.Len(t, fake.TableRows(alphaWorkbook, "tbl_Math"), 1)
}

func TestEnsureAndAppendGivesUpAfterSecondBusyRow(t *testing.T) {
	fake := testkit.NewFakeGraph(t)
	p, delays := newTestProvisioner(t, fake)
	fake.FailNext(testkit.OpAddRow, http.StatusServiceUnavailable, http.StatusConflict)

	_, err := p.EnsureAndAppend(context.Background(), "Alpha High", "Math", []string{"q1"}, []interface{}{"A"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConflictOrLocked))
	assert.Len(t, *delays, 1)
	assert.Empty(t, fake.TableRows(alphaWorkbook, "tbl_Math"))
}

func TestEnsureAndAppendDoesNotRetryFatalRow(t *testing.T) {
	fake := testkit.NewFakeGraph(t)
	p, delays := newTestProvisioner(t, fake)
	fake.FailNext(testkit.OpAddRow, http.StatusBadRequest)

	_, err := p.EnsureAndAppend(context.Background(), "Alpha High", "Math", []string{"q1"}, []interface{}{"A"})
	require.Error(t, err)
	assert.Empty(t, *delays)
}

func TestEnsureAndAppendReportsFailedStep(t *testing.T) {
	tests := []struct {
		name string
		op   string
		step string
	}{
		{"folder", testkit.OpCreateFolder, StepFolder},
		{"workbook", testkit.OpPutContent, StepWorkbook},
		{"table", testkit.OpAddTable, StepTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testkit.NewFakeGraph(t)
			p, _ := newTestProvisioner(t, fake)
			fake.FailNext(tt.op, http.StatusBadRequest)

			_, err := p.EnsureAndAppend(context.Background(), "Alpha High", "Math", []string{"q1"}, []interface{}{"A"})
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeProvisioning))
			assert.Contains(t, err.Error(), tt.step)
		})
	}
}
