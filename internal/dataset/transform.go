package dataset

import (
	"sort"

	"kickchoice/internal/errors"

	"github.com/montanaflynn/stats"
)

// scaleEpsilon keeps constant columns from dividing by zero
const scaleEpsilon = 1e-6

// Scaling records the moments used to standardize one column
type Scaling struct {
	Column string  `json:"column"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Standardize replaces each column by (x - mean) / (sd + 1e-6), using the
// sample standard deviation
func Standardize(t *RawTable, cols ...string) ([]Scaling, error) {
	out := make([]Scaling, 0, len(cols))
	for _, col := range cols {
		values, err := t.Float(col)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot standardize %q", col)
		}
		if len(values) < 2 {
			return nil, errors.Wrapf(errors.ErrDataInvalid, "cannot standardize %q: need at least two rows", col)
		}
		data := stats.Float64Data(values)
		mean, err := stats.Mean(data)
		if err != nil {
			return nil, errors.Wrapf(err, "mean of %q", col)
		}
		sd, err := stats.StandardDeviationSample(data)
		if err != nil {
			return nil, errors.Wrapf(err, "standard deviation of %q", col)
		}
		for i, v := range values {
			t.Rows[i][col] = formatNumber((v - mean) / (sd + scaleEpsilon))
		}
		out = append(out, Scaling{Column: col, Mean: mean, StdDev: sd})
	}
	return out, nil
}

// AddLag writes into lagCol the value col had on the previous record of the
// same individual, "0" on an individual's first record. Records are ordered
// by the numeric orderCol, or by row position when orderCol is empty.
func AddLag(t *RawTable, idCol, orderCol, col, lagCol string) error {
	for _, c := range []string{idCol, col} {
		if !t.HasColumn(c) {
			return errors.Wrapf(errors.ErrDataInvalid, "column %q not found", c)
		}
	}
	order := make([]float64, t.Len())
	if orderCol != "" {
		var err error
		if order, err = t.Float(orderCol); err != nil {
			return err
		}
	} else {
		for i := range order {
			order[i] = float64(i)
		}
	}

	byID := make(map[string][]int)
	for i, row := range t.Rows {
		byID[row[idCol]] = append(byID[row[idCol]], i)
	}
	for _, idx := range byID {
		sort.SliceStable(idx, func(a, b int) bool { return order[idx[a]] < order[idx[b]] })
		prev := "0"
		for _, i := range idx {
			current := t.Rows[i][col]
			t.Rows[i][lagCol] = prev
			prev = current
		}
	}
	t.addColumn(lagCol)
	return nil
}

// FillMissing replaces empty or non-numeric cells of cols with value
func FillMissing(t *RawTable, value string, cols ...string) {
	for _, col := range cols {
		for _, row := range t.Rows {
			if _, ok := parseNumber(row[col]); !ok {
				row[col] = value
			}
		}
	}
}
