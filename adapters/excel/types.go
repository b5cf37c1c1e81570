package excel

// ReaderOptions selects what part of a file is read
type ReaderOptions struct {
	// Sheet is the workbook sheet to read; the first sheet when empty.
	Sheet string
	// SkipRows drops preamble rows above the header.
	SkipRows int
	// Separator is the CSV field delimiter; detected from the header when 0.
	Separator rune
}

// Sheet names of the results workbook
const (
	SheetModelResults  = "Model Results"
	SheetFitStatistics = "Fit Statistics"
	SheetComparison    = "Model Comparison"
	SheetData          = "Data"
)
