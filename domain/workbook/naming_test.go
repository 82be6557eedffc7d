package workbook

import (
	"strings"
	"testing"
	"unicode/utf8"

	"sheetrelay/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnLetter(t *testing.T) {
	cases := map[int]string{1: "A", 26: "Z", 27: "AA", 52: "AZ", 702: "ZZ", 703: "AAA"}
	for n, want := range cases {
		got, err := ColumnLetter(n)
		require.NoError(t, err)
		assert.Equal(t, want, got, "column %d", n)
	}

	_, err := ColumnLetter(0)
	assert.Error(t, err)
}

func TestSanitizeSheetName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Math", want: "Math"},
		{name: "forbidden characters", in: `a\b/c?d*e[f]g:h`, want: "a-b-c-d-e-f-g-h"},
		{name: "empty", in: "   ", want: DefaultSheetName},
		{name: "only apostrophes", in: "''", want: DefaultSheetName},
		{name: "trimmed", in: "  Science  ", want: "Science"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeSheetName(tt.in))
		})
	}
}

func TestSanitizeSheetNameProperties(t *testing.T) {
	inputs := []string{
		strings.Repeat("x", 80),
		"[Grade 8] Mathematics / Algebra * Review?",
		strings.Repeat("علوم", 20),
		`\/?*[]`,
	}
	for _, in := range inputs {
		got := SanitizeSheetName(in)
		assert.NotEmpty(t, got)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxSheetNameLength)
		assert.False(t, strings.ContainsAny(got, `\/?*[]`), "sanitized %q still has forbidden characters", got)
	}
}

func TestSafeSchoolName(t *testing.T) {
	assert.Equal(t, "North-East School", SafeSchoolName("North/East School"))
	assert.Equal(t, DefaultSchoolName, SafeSchoolName(" "))
	assert.Equal(t, 120, utf8.RuneCountInString(SafeSchoolName(strings.Repeat("s", 300))))
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "tbl_Math_1", TableName("Math 1"))
	assert.Equal(t, TableName("Math 1"), TableName("Math 1"))

	arabicA := TableName("رياضيات")
	arabicB := TableName("علومات")
	assert.NotEqual(t, arabicA, arabicB)
	assert.Regexp(t, `^tbl_[A-Za-z0-9_]+$`, arabicA)
	assert.LessOrEqual(t, len(TableName(strings.Repeat("ب", 31))), 50)
}

func TestHeaderAddress(t *testing.T) {
	addr, err := HeaderAddress("Teacher's Math", 9)
	require.NoError(t, err)
	assert.Equal(t, "'Teacher''s Math'!A1:I1", addr)

	_, err = HeaderAddress("Math", 0)
	assert.Error(t, err)
}

func TestWorkbookPath(t *testing.T) {
	assert.Equal(t, "TIMSS/Alpha/Alpha.xlsx", WorkbookPath("TIMSS", "Alpha"))
	assert.Equal(t, "Alpha", FolderPath("", "Alpha"))
}

func TestHeaderAndDataRows(t *testing.T) {
	score := 7
	s := &models.Submission{
		Date:                   "2024-01-01",
		StudentName:            "Ana",
		AutoCorrectScorePoints: &score,
		Answers: []models.Answer{
			{QuestionNumber: "Q1", AnswerValue: "yes"},
			{QuestionNumber: "Q2", AnswerValue: "no"},
		},
	}

	assert.Equal(t, []string{
		"date", "time", "student_name", "class_name", "teacher_name",
		"school_operation_region", "auto_correct_score_points", "Q1", "Q2",
	}, HeaderRow(s))

	row := DataRow(s)
	require.Len(t, row, 9)
	assert.Equal(t, "2024-01-01", row[0])
	assert.Equal(t, "Ana", row[2])
	assert.Equal(t, 7, row[6])
	assert.Equal(t, "yes", row[7])
	assert.Equal(t, "no", row[8])

	s.AutoCorrectScorePoints = nil
	assert.Equal(t, "", DataRow(s)[6])
}
