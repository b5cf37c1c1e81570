package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"kickchoice/domain/choice"
)

// WriteConsole prints the estimates and headline fit statistics as an
// aligned plain-text table
func WriteConsole(w io.Writer, r *choice.Result) error {
	fmt.Fprintf(w, "Model: %s\n", r.ModelName)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Name\tValue\tRob. Std err\tRob. t-test\tRob. p-value\tStatus\t")
	for _, e := range r.Estimates {
		status := "Estimated"
		if e.Fixed {
			status = "Fixed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			e.Name, num(e.Value), num(e.RobustStdErr), num(e.RobustTStat), pval(e.RobustPValue), status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "LL = %s  LL0 = %s  rho2 = %s  AIC = %s  BIC = %s  converged = %t (%s)\n",
		num(r.LogLikelihood), num(r.NullLogLikelihood), num(r.RhoSquare), num(r.AIC), num(r.BIC), r.Converged, r.Status)
	if err != nil {
		return err
	}
	for _, warning := range r.Warnings {
		if _, err := fmt.Fprintf(w, "warning %s: %s\n", warning.Code, warning.Message); err != nil {
			return err
		}
	}
	return nil
}

// WriteComparisonConsole prints a comparison as a plain-text table
func WriteComparisonConsole(w io.Writer, c *Comparison) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Model\tK\tLL\tAIC\tBIC\tAIC rank\tBIC rank")
	for _, r := range c.Rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%d\n", r.Model, r.NumParameters, num(r.LogLikelihood), num(r.AIC), num(r.BIC), r.AICRank, r.BICRank)
	}
	for _, t := range c.Tests {
		fmt.Fprintf(tw, "LR %s vs %s\tdf=%d\tstat=%s\tp=%s\t\t\t\n", t.Restricted, t.General, t.DF, num(t.Statistic), pval(t.PValue))
	}
	return tw.Flush()
}
