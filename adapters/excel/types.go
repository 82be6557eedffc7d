package excel

// SheetData is the raw content of one worksheet
type SheetData struct {
	Name   string     `json:"name"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// ScoreSummary describes the auto-correct scores recorded on one sheet
type ScoreSummary struct {
	Sheet   string  `json:"sheet"`
	Rows    int     `json:"rows"`
	Scored  int     `json:"scored"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	StdDev  float64 `json:"std_dev"`
	Skipped int     `json:"skipped"`
}
