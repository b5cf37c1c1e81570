// Package report renders estimation results as markdown, HTML and console
// tables, and compares fitted models.
package report

import (
	"fmt"
	"math"
	"strings"

	"kickchoice/domain/choice"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Markdown renders the estimates, fit statistics and warnings of r
func Markdown(r *choice.Result) string {
	var b strings.Builder
	name := r.ModelName
	if name == "" {
		name = "Model"
	}
	fmt.Fprintf(&b, "# %s\n\n", name)

	b.WriteString("## Estimated parameters\n\n")
	b.WriteString("| Name | Value | Std err | t-test | p-value | Rob. Std err | Rob. t-test | Rob. p-value | Status |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|---|\n")
	for _, e := range r.Estimates {
		status := "Estimated"
		if e.Fixed {
			status = "Fixed"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			e.Name, num(e.Value), num(e.StdErr), num(e.TStat), pval(e.PValue),
			num(e.RobustStdErr), num(e.RobustTStat), pval(e.RobustPValue), status)
	}

	b.WriteString("\n## Fit statistics\n\n")
	b.WriteString("| Statistic | Value |\n|---|---:|\n")
	for _, s := range fitRows(r) {
		fmt.Fprintf(&b, "| %s | %s |\n", s[0], s[1])
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- **%s**: %s\n", w.Code, w.Message)
		}
	}
	return b.String()
}

// HTML converts markdown to an HTML fragment
func HTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML([]byte(md), p, renderer)
}

// ResultHTML renders r as an HTML fragment
func ResultHTML(r *choice.Result) []byte {
	return HTML(Markdown(r))
}

func fitRows(r *choice.Result) [][2]string {
	rows := [][2]string{
		{"Estimated parameters", fmt.Sprintf("%d", r.NumParameters)},
		{"Individuals", fmt.Sprintf("%d", r.NumGroups)},
		{"Observations", fmt.Sprintf("%d", r.NumObservations)},
	}
	if r.NumDraws > 0 {
		rows = append(rows, [2]string{"Draws", fmt.Sprintf("%d (%s)", r.NumDraws, r.DrawMethod)})
	}
	rows = append(rows,
		[2]string{"Null log likelihood", num(r.NullLogLikelihood)},
		[2]string{"Initial log likelihood", num(r.InitialLogLikelihood)},
		[2]string{"Final log likelihood", num(r.LogLikelihood)},
		[2]string{"Rho-square", num(r.RhoSquare)},
		[2]string{"Adjusted rho-square", num(r.AdjRhoSquare)},
		[2]string{"AIC", num(r.AIC)},
		[2]string{"BIC", num(r.BIC)},
		[2]string{"Converged", fmt.Sprintf("%t (%s, %d iterations)", r.Converged, r.Status, r.Iterations)},
	)
	return rows
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

func pval(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	if v < 1e-4 {
		return fmt.Sprintf("%.2e", v)
	}
	return fmt.Sprintf("%.4f", v)
}
