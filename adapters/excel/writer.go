package excel

import (
	"fmt"
	"io"
	"log"
	"math"

	"kickchoice/domain/choice"
	"kickchoice/internal/dataset"
	"kickchoice/internal/errors"

	"github.com/xuri/excelize/v2"
)

var resultHeaders = []interface{}{
	"Name", "Value", "Std err", "t-test", "p-value",
	"Rob. Std err", "Rob. t-test", "Rob. p-value", "Status",
}

var comparisonHeaders = []interface{}{
	"Model", "Parameters", "Log-likelihood", "AIC", "BIC", "Rho-square", "Adj. rho-square", "Converged",
}

// ResultWriter exports estimation results as xlsx workbooks
type ResultWriter struct{}

// NewResultWriter creates a result writer
func NewResultWriter() *ResultWriter {
	return &ResultWriter{}
}

// Write saves the estimates and fit statistics of one result to path
func (w *ResultWriter) Write(path string, result *choice.Result) error {
	f, err := w.workbook(result)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save results workbook %s", path)
	}
	log.Printf("[ResultWriter] %s results written to %s", result.ModelName, path)
	return nil
}

// WriteTo streams the workbook of one result
func (w *ResultWriter) WriteTo(dst io.Writer, result *choice.Result) error {
	f, err := w.workbook(result)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(dst)
}

// WriteComparison saves one row of fit statistics per result, in the given
// order
func (w *ResultWriter) WriteComparison(path string, results []*choice.Result) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetComparison); err != nil {
		return errors.Wrap(err, "failed to create comparison sheet")
	}
	if err := f.SetSheetRow(SheetComparison, "A1", &comparisonHeaders); err != nil {
		return err
	}
	for i, r := range results {
		row := []interface{}{
			r.ModelName, r.NumParameters, number(r.LogLikelihood), number(r.AIC), number(r.BIC),
			number(r.RhoSquare), number(r.AdjRhoSquare), r.Converged,
		}
		if err := f.SetSheetRow(SheetComparison, cell(1, i+2), &row); err != nil {
			return err
		}
	}
	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save comparison workbook %s", path)
	}
	return nil
}

// WriteTable saves a raw table as a single sheet workbook
func WriteTable(path string, table *dataset.RawTable) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetData); err != nil {
		return err
	}
	header := make([]interface{}, len(table.Headers))
	for i, h := range table.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetData, "A1", &header); err != nil {
		return err
	}
	for i, rec := range table.Records() {
		if err := f.SetSheetRow(SheetData, cell(1, i+2), &rec); err != nil {
			return err
		}
	}
	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save %s", path)
	}
	return nil
}

func (w *ResultWriter) workbook(result *choice.Result) (*excelize.File, error) {
	if result == nil {
		return nil, errors.InvalidInput("nil result")
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetModelResults); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to create results sheet")
	}
	if err := writeEstimates(f, result); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(SheetFitStatistics); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to create fit statistics sheet")
	}
	if err := writeFitStatistics(f, result); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeEstimates(f *excelize.File, result *choice.Result) error {
	if err := f.SetSheetRow(SheetModelResults, "A1", &resultHeaders); err != nil {
		return err
	}
	for i, e := range result.Estimates {
		status := "Estimated"
		if e.Fixed {
			status = "Fixed"
		}
		row := []interface{}{
			e.Name, number(e.Value), number(e.StdErr), number(e.TStat), number(e.PValue),
			number(e.RobustStdErr), number(e.RobustTStat), number(e.RobustPValue), status,
		}
		if err := f.SetSheetRow(SheetModelResults, cell(1, i+2), &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(SheetModelResults, "A", "A", 18)
}

func writeFitStatistics(f *excelize.File, r *choice.Result) error {
	rows := [][]interface{}{
		{"Model", r.ModelName},
		{"Number of estimated parameters", r.NumParameters},
		{"Number of individuals", r.NumGroups},
		{"Number of observations", r.NumObservations},
		{"Number of draws", r.NumDraws},
		{"Draw method", r.DrawMethod},
		{"Null log likelihood", number(r.NullLogLikelihood)},
		{"Initial log likelihood", number(r.InitialLogLikelihood)},
		{"Final log likelihood", number(r.LogLikelihood)},
		{"Rho-square for the null model", number(r.RhoSquare)},
		{"Rho-square-bar for the null model", number(r.AdjRhoSquare)},
		{"Akaike Information Criterion", number(r.AIC)},
		{"Bayesian Information Criterion", number(r.BIC)},
		{"Converged", r.Converged},
		{"Iterations", r.Iterations},
		{"Optimizer status", r.Status},
	}
	for i := range rows {
		if err := f.SetSheetRow(SheetFitStatistics, cell(1, i+1), &rows[i]); err != nil {
			return err
		}
	}
	for i, w := range r.Warnings {
		row := []interface{}{"Warning", fmt.Sprintf("%s: %s", w.Code, w.Message)}
		if err := f.SetSheetRow(SheetFitStatistics, cell(1, len(rows)+i+2), &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(SheetFitStatistics, "A", "A", 36)
}

// number leaves NaN and infinite values as empty cells
func number(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
