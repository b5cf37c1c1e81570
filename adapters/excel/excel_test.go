package excel

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kickchoice/domain/choice"
	"kickchoice/internal/dataset"
	"kickchoice/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV_DetectsSemicolon(t *testing.T) {
	data := "ID;Choice;foot\np1;1;0,5\n;;\np2;6;1\n"
	table, err := ReadCSV(strings.NewReader(data), ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Choice", "foot"}, table.Headers)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "0,5", table.Rows[0]["foot"])
	assert.Equal(t, "p2", table.Rows[1]["ID"])
}

func TestReadCSV_SkipRows(t *testing.T) {
	data := "exported 2024-06-01\nID,Choice\np1,3\n"
	table, err := ReadCSV(strings.NewReader(data), ReaderOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Choice"}, table.Headers)
	assert.Equal(t, "3", table.Rows[0]["Choice"])

	_, err = ReadCSV(strings.NewReader(data), ReaderOptions{SkipRows: 5})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = ReadCSV(strings.NewReader("ID,Choice\n"), ReaderOptions{})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestDataReader_XLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shots.xlsx")
	table := dataset.NewRawTable([]string{"ID", "Choice", "foot"}, [][]string{
		{"p1", "1", "R"},
		{"p1", "4", "R"},
		{"p2", "6", "L"},
	})
	require.NoError(t, WriteTable(path, table))

	got, err := NewDataReader(path, ReaderOptions{Sheet: SheetData}).ReadTable()
	require.NoError(t, err)
	assert.Equal(t, table.Headers, got.Headers)
	assert.Equal(t, table.Records(), got.Records())

	first, err := NewDataReader(path, ReaderOptions{}).ReadTable()
	require.NoError(t, err)
	assert.Equal(t, 3, first.Len())

	_, err = NewDataReader(path, ReaderOptions{Sheet: "Nope"}).ReadTable()
	assert.Error(t, err)
}

func TestDataReader_MissingFile(t *testing.T) {
	_, err := NewDataReader(filepath.Join(t.TempDir(), "none.csv"), ReaderOptions{}).ReadTable()
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func sampleResult() *choice.Result {
	return &choice.Result{
		ModelName: "asc_only",
		Estimates: []choice.ParameterEstimate{
			{Name: "ASC1", Value: 0.4, StdErr: 0.1, TStat: 4, PValue: 6e-5, RobustStdErr: 0.12, RobustTStat: 3.3, RobustPValue: 1e-3},
			{Name: "ASC2", Value: 0, Fixed: true, StdErr: math.NaN(), TStat: math.NaN(), PValue: math.NaN(),
				RobustStdErr: math.NaN(), RobustTStat: math.NaN(), RobustPValue: math.NaN()},
		},
		LogLikelihood:     -100,
		NullLogLikelihood: -120,
		NumParameters:     1,
		NumGroups:         50,
		NumObservations:   70,
		AIC:               202,
		BIC:               204,
		Converged:         true,
		Status:            "GradientThreshold",
		Warnings:          []choice.Warning{{Code: errors.CodeSingularHessian, Message: "test"}},
	}
}

func TestResultWriter_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, NewResultWriter().Write(path, sampleResult()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetModelResults, SheetFitStatistics}, f.GetSheetList())

	rows, err := f.GetRows(SheetModelResults)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Name", rows[0][0])
	assert.Equal(t, "Rob. p-value", rows[0][7])
	assert.Equal(t, "ASC1", rows[1][0])
	assert.Equal(t, "0.4", rows[1][1])
	assert.Equal(t, "Estimated", rows[1][8])
	assert.Equal(t, "Fixed", rows[2][8])
	assert.Equal(t, "", rows[2][2])

	fit, err := f.GetRows(SheetFitStatistics)
	require.NoError(t, err)
	assert.Equal(t, "asc_only", fit[0][1])
	assert.Equal(t, "-100", fit[8][1])
	assert.Equal(t, "Warning", fit[len(fit)-1][0])
	assert.Contains(t, fit[len(fit)-1][1], errors.CodeSingularHessian)
}

func TestResultWriter_WriteComparison(t *testing.T) {
	a := sampleResult()
	b := sampleResult()
	b.ModelName = "asc_and_covariates"
	b.AIC = 190

	path := filepath.Join(t.TempDir(), "compare.xlsx")
	require.NoError(t, NewResultWriter().WriteComparison(path, []*choice.Result{a, b}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetComparison)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "asc_and_covariates", rows[2][0])
	assert.Equal(t, "190", rows[2][3])

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestResultWriter_NilResult(t *testing.T) {
	err := NewResultWriter().Write(filepath.Join(t.TempDir(), "x.xlsx"), nil)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}
