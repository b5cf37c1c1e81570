package ports

import "kickchoice/internal/dataset"

// TableReader loads a raw shot table from some source (workbook, CSV,
// request body)
type TableReader interface {
	ReadTable() (*dataset.RawTable, error)
}
