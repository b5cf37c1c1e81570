package report

import (
	"fmt"
	"sort"
	"strings"

	"kickchoice/domain/choice"
	"kickchoice/internal/errors"

	"gonum.org/v1/gonum/stat/distuv"
)

// ComparisonRow holds the fit of one model and its AIC/BIC rank (1 = best)
type ComparisonRow struct {
	Model         string  `json:"model"`
	NumParameters int     `json:"n_parameters"`
	LogLikelihood float64 `json:"log_likelihood"`
	AIC           float64 `json:"aic"`
	BIC           float64 `json:"bic"`
	RhoSquare     float64 `json:"rho_square"`
	AICRank       int     `json:"aic_rank"`
	BICRank       int     `json:"bic_rank"`
	Converged     bool    `json:"converged"`
}

// LRTest is a likelihood-ratio test of a restricted model against a more
// general one. It is only meaningful when the models are nested.
type LRTest struct {
	Restricted string  `json:"restricted"`
	General    string  `json:"general"`
	Statistic  float64 `json:"statistic"`
	DF         int     `json:"df"`
	PValue     float64 `json:"p_value"`
}

// Comparison ranks several models fitted on the same observations
type Comparison struct {
	Rows  []ComparisonRow `json:"rows"`
	Tests []LRTest        `json:"tests"`
}

// LikelihoodRatio computes 2 (LL_general - LL_restricted) against a
// chi-square with the difference in free parameters as degrees of freedom
func LikelihoodRatio(restricted, general *choice.Result) (LRTest, error) {
	df := general.NumParameters - restricted.NumParameters
	if df <= 0 {
		return LRTest{}, errors.InvalidInput(fmt.Sprintf("%s must have more parameters than %s", general.ModelName, restricted.ModelName))
	}
	if general.NumObservations != restricted.NumObservations {
		return LRTest{}, errors.InvalidInput(fmt.Sprintf("%s and %s were fitted on different data (%d vs %d observations)",
			general.ModelName, restricted.ModelName, general.NumObservations, restricted.NumObservations))
	}
	stat := 2 * (general.LogLikelihood - restricted.LogLikelihood)
	if stat < 0 {
		stat = 0
	}
	return LRTest{
		Restricted: restricted.ModelName,
		General:    general.ModelName,
		Statistic:  stat,
		DF:         df,
		PValue:     distuv.ChiSquared{K: float64(df)}.Survival(stat),
	}, nil
}

// Compare ranks results by AIC and BIC and tests every pair that differs
// in parameter count and shares the observation count
func Compare(results []*choice.Result) *Comparison {
	c := &Comparison{Rows: make([]ComparisonRow, len(results))}
	for i, r := range results {
		c.Rows[i] = ComparisonRow{
			Model:         r.ModelName,
			NumParameters: r.NumParameters,
			LogLikelihood: r.LogLikelihood,
			AIC:           r.AIC,
			BIC:           r.BIC,
			RhoSquare:     r.RhoSquare,
			Converged:     r.Converged,
		}
	}
	rank(c.Rows, func(r ComparisonRow) float64 { return r.AIC }, func(r *ComparisonRow, k int) { r.AICRank = k })
	rank(c.Rows, func(r ComparisonRow) float64 { return r.BIC }, func(r *ComparisonRow, k int) { r.BICRank = k })

	byK := append([]*choice.Result(nil), results...)
	sort.SliceStable(byK, func(i, j int) bool { return byK[i].NumParameters < byK[j].NumParameters })
	for i := range byK {
		for j := i + 1; j < len(byK); j++ {
			if t, err := LikelihoodRatio(byK[i], byK[j]); err == nil {
				c.Tests = append(c.Tests, t)
			}
		}
	}
	return c
}

func rank(rows []ComparisonRow, key func(ComparisonRow) float64, set func(*ComparisonRow, int)) {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return key(rows[idx[a]]) < key(rows[idx[b]]) })
	for k, i := range idx {
		set(&rows[i], k+1)
	}
}

// Best returns the model with the lowest AIC
func (c *Comparison) Best() string {
	for _, r := range c.Rows {
		if r.AICRank == 1 {
			return r.Model
		}
	}
	return ""
}

// Markdown renders the comparison tables
func (c *Comparison) Markdown() string {
	var b strings.Builder
	b.WriteString("# Model comparison\n\n")
	b.WriteString("| Model | Parameters | Log likelihood | AIC | BIC | Rho-square | AIC rank | BIC rank | Converged |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|---|\n")
	for _, r := range c.Rows {
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s | %d | %d | %t |\n",
			r.Model, r.NumParameters, num(r.LogLikelihood), num(r.AIC), num(r.BIC), num(r.RhoSquare),
			r.AICRank, r.BICRank, r.Converged)
	}
	if len(c.Tests) > 0 {
		b.WriteString("\n## Likelihood-ratio tests\n\nValid only where the restricted model is nested in the general one.\n\n")
		b.WriteString("| Restricted | General | Statistic | df | p-value |\n|---|---|---:|---:|---:|\n")
		for _, t := range c.Tests {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n", t.Restricted, t.General, num(t.Statistic), t.DF, pval(t.PValue))
		}
	}
	return b.String()
}
