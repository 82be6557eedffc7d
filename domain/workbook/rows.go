package workbook

import "sheetrelay/models"

// HeaderRow is the header written when a sheet is first created: the fixed
// metadata columns followed by the question identifiers in submitted order.
func HeaderRow(s *models.Submission) []string {
	headers := make([]string, 0, len(MetadataHeaders)+len(s.Answers))
	headers = append(headers, MetadataHeaders...)
	for _, ans := range s.Answers {
		headers = append(headers, ans.QuestionNumber)
	}
	return headers
}

// DataRow lines up a submission positionally with HeaderRow. Rows whose
// answer set differs from the sheet header are kept as-is (ragged).
func DataRow(s *models.Submission) []interface{} {
	row := make([]interface{}, 0, len(MetadataHeaders)+len(s.Answers))
	var score interface{} = ""
	if s.AutoCorrectScorePoints != nil {
		score = *s.AutoCorrectScorePoints
	}
	row = append(row,
		s.Date,
		s.Time,
		s.StudentName,
		s.ClassName,
		s.TeacherName,
		s.SchoolOperationRegion,
		score,
	)
	for _, ans := range s.Answers {
		row = append(row, ans.AnswerValue)
	}
	return row
}
