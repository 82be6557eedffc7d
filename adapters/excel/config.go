package excel

// StyleConfig holds the sheet formatting applied after every append
type StyleConfig struct {
	HeaderFill  string  `json:"header_fill"`
	HeaderFont  string  `json:"header_font"`
	EvenRowFill string  `json:"even_row_fill"`
	OddRowFill  string  `json:"odd_row_fill"`
	BorderColor string  `json:"border_color"`
	ColumnWidth float64 `json:"column_width"`
}

// DefaultStyleConfig returns the blue header / zebra row look
func DefaultStyleConfig() StyleConfig {
	return StyleConfig{
		HeaderFill:  "#4F81BD",
		HeaderFont:  "#FFFFFF",
		EvenRowFill: "#DCE6F1",
		OddRowFill:  "#FFFFFF",
		BorderColor: "#000000",
		ColumnWidth: 25,
	}
}
