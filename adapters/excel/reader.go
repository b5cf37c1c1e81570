package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kickchoice/internal/dataset"
	"kickchoice/internal/errors"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	opts     ReaderOptions
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string, opts ReaderOptions) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" || ext == ".txt" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType, opts: opts}
}

// ReadTable reads the configured sheet or CSV file into a raw table
func (r *DataReader) ReadTable() (*dataset.RawTable, error) {
	log.Printf("[DataReader] Starting to read %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.NotFound(fmt.Sprintf("%s file %s", strings.ToUpper(r.fileType), r.filePath))
	}

	switch r.fileType {
	case "csv":
		file, err := os.Open(r.filePath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open CSV file %s", r.filePath)
		}
		defer file.Close()
		return ReadCSV(file, r.opts)
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported file type: %s", r.fileType))
	}
}

// readExcelData reads the configured sheet, or the first one
func (r *DataReader) readExcelData() (*dataset.RawTable, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open Excel file %s", r.filePath)
	}
	defer f.Close()
	log.Printf("[DataReader] Excel file opened in %.2fms", float64(time.Since(startTime).Nanoseconds())/1e6)

	sheet := r.opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.InvalidInput("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	readStart := time.Now()
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(errors.InvalidInput(err.Error()), "failed to read sheet %q", sheet)
	}
	log.Printf("[DataReader] %s read in %.2fms (%d rows)", sheet, float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	return r.opts.processRows(rows, "XLSX")
}

// ReadCSV reads delimited text. With no separator configured, ';' is used
// when the header contains it and ',' does not.
func ReadCSV(src io.Reader, opts ReaderOptions) (*dataset.RawTable, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV data")
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.Comma = opts.separator(string(data))

	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(errors.InvalidInput(err.Error()), "failed to parse CSV data")
	}
	log.Printf("[DataReader] CSV data read in %.2fms (%d rows)", float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	return opts.processRows(rows, "CSV")
}

func (o ReaderOptions) separator(data string) rune {
	if o.Separator != 0 {
		return o.Separator
	}
	header := data
	if i := strings.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}
	if strings.Contains(header, ";") && !strings.Contains(header, ",") {
		return ';'
	}
	return ','
}

// processRows drops the skipped preamble and blank rows, then converts the
// rest into a raw table
func (o ReaderOptions) processRows(rows [][]string, kind string) (*dataset.RawTable, error) {
	if o.SkipRows > 0 {
		if o.SkipRows >= len(rows) {
			return nil, errors.InvalidInput(fmt.Sprintf("cannot skip %d rows of a %d-row file", o.SkipRows, len(rows)))
		}
		rows = rows[o.SkipRows:]
	}

	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		if !blank(row) {
			kept = append(kept, row)
		}
	}
	if len(kept) < 2 {
		return nil, errors.InvalidInput(fmt.Sprintf("%s file must have at least a header row and one data row", kind))
	}

	table := dataset.NewRawTable(kept[0], kept[1:])
	log.Printf("[DataReader] %s file processed (%d columns, %d rows)", kind, len(table.Headers), table.Len())
	return table, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
