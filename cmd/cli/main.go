package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"kickchoice/adapters/excel"
	"kickchoice/app"
	"kickchoice/domain/choice"
	"kickchoice/domain/core"
	"kickchoice/domain/run"
	"kickchoice/internal/config"
	"kickchoice/internal/container"
	"kickchoice/internal/dataset"
	"kickchoice/internal/model"
	"kickchoice/internal/penalty"
	"kickchoice/internal/report"
	"kickchoice/internal/testkit"
	"kickchoice/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "kickchoice",
		Short:         "Estimate penalty-kick zone choice models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newPrepareCmd(),
		newEstimateCmd(),
		newCompareCmd(),
		newSimulateCmd(),
		newModelsCmd(),
		newRunsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dataFlags are the input options shared by the data-reading commands
type dataFlags struct {
	sheet    string
	skipRows int
	recode   bool
}

func (f *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "Excel sheet to read (default: first sheet)")
	cmd.Flags().IntVar(&f.skipRows, "skip-rows", 0, "rows to skip before the header row")
	cmd.Flags().BoolVar(&f.recode, "recode", false, "apply the shot sheet recodes before estimating")
}

func (f *dataFlags) reader(path string) ports.TableReader {
	return excel.NewDataReader(path, excel.ReaderOptions{Sheet: f.sheet, SkipRows: f.skipRows})
}

func (f *dataFlags) read(cmd *cobra.Command, path string) (*dataset.RawTable, error) {
	table, err := f.reader(path).ReadTable()
	if err != nil {
		return nil, err
	}
	if f.recode {
		var prep *dataset.PrepReport
		table, prep = dataset.ShotSheetRecoder().Apply(table)
		printPrepReport(cmd, prep)
	}
	return table, nil
}

func newPrepareCmd() *cobra.Command {
	var flags dataFlags
	var output string

	cmd := &cobra.Command{
		Use:   "prepare [shot-sheet]",
		Short: "Recode a raw shot sheet into estimation columns",
		Long: `Apply the shot sheet recodes and write the prepared table as CSV or xlsx.

Example: kickchoice prepare penalties.xlsx --sheet Shots -o prepared.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			flags.recode = true
			table, err := flags.read(cmd, args[0])
			if err != nil {
				return err
			}
			if err := writeTable(output, table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", table.Len(), output)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.csv or .xlsx)")
	return cmd
}

func newEstimateCmd() *cobra.Command {
	var flags dataFlags
	var (
		modelName  string
		definition string
		panel      bool
		draws      int
		drawMethod string
		seed       int64
		maxIter    int
		xlsxOut    string
		reportOut  string
	)

	cmd := &cobra.Command{
		Use:   "estimate [data-file]",
		Short: "Estimate one model on prepared shot data",
		Long: `Estimate a catalogue model, or a model definition file, by simulated maximum likelihood.

Example: kickchoice estimate shots.csv --model panel_logit_alt_specific --draws 1000 --seed 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := flags.read(cmd, args[0])
			if err != nil {
				return err
			}
			c, err := newContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			req := app.EstimateRequest{
				Model:         modelName,
				Panel:         panel,
				Table:         table,
				DataSource:    filepath.Base(args[0]),
				DrawMethod:    drawMethod,
				Draws:         draws,
				MaxIterations: maxIter,
			}
			if definition != "" {
				def, err := model.LoadDefinition(definition)
				if err != nil {
					return err
				}
				req.Definition = &def
			}
			if cmd.Flags().Changed("seed") {
				s := uint64(seed)
				req.Seed = &s
			}

			r, err := c.EstimationService.Estimate(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s (%s)\n", r.ID, r.Result.Duration)
			if err := report.WriteConsole(out, r.Result); err != nil {
				return err
			}
			if xlsxOut != "" {
				if err := excel.NewResultWriter().Write(xlsxOut, r.Result); err != nil {
					return err
				}
			}
			if reportOut != "" {
				if err := os.WriteFile(reportOut, []byte(report.Markdown(r.Result)), 0o644); err != nil {
					return fmt.Errorf("failed to write report: %w", err)
				}
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "catalogue model (default: ESTIMATION_MODEL)")
	cmd.Flags().StringVar(&definition, "definition", "", "YAML or JSON model definition file")
	cmd.Flags().BoolVar(&panel, "panel", false, "group shots by shooter (definition models only)")
	cmd.Flags().IntVar(&draws, "draws", 0, "simulation draws per shooter")
	cmd.Flags().StringVar(&drawMethod, "draw-method", "", "halton, pseudo or antithetic")
	cmd.Flags().Int64Var(&seed, "seed", 0, "draw seed")
	cmd.Flags().IntVar(&maxIter, "max-iter", 0, "optimizer iteration limit")
	cmd.Flags().StringVar(&xlsxOut, "xlsx", "", "write estimates to an xlsx workbook")
	cmd.Flags().StringVar(&reportOut, "report", "", "write a markdown report")
	return cmd
}

func newCompareCmd() *cobra.Command {
	var flags dataFlags
	var (
		models  []string
		draws   int
		xlsxOut string
	)

	cmd := &cobra.Command{
		Use:   "compare [data-file]",
		Short: "Estimate several models on the same data and compare their fit",
		Long: `Estimate each model and report AIC, BIC and likelihood-ratio tests between nested models.

Example: kickchoice compare shots.csv -m asc_only -m asc_and_covariates`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(models) < 2 {
				return fmt.Errorf("compare needs at least two --model flags")
			}
			table, err := flags.read(cmd, args[0])
			if err != nil {
				return err
			}
			c, err := newContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			results := make([]*choice.Result, 0, len(models))
			for _, name := range models {
				r, err := c.EstimationService.Estimate(cmd.Context(), app.EstimateRequest{
					Model:      name,
					Table:      table,
					DataSource: filepath.Base(args[0]),
					Draws:      draws,
				})
				if err != nil {
					return fmt.Errorf("model %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: LL %.4f (run %s)\n", name, r.Result.LogLikelihood, r.ID)
				results = append(results, r.Result)
			}

			cmp := report.Compare(results)
			if err := report.WriteComparisonConsole(cmd.OutOrStdout(), cmp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "best by AIC: %s\n", cmp.Best())
			if xlsxOut != "" {
				return excel.NewResultWriter().WriteComparison(xlsxOut, results)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringArrayVarP(&models, "model", "m", nil, "model to include (repeatable)")
	cmd.Flags().IntVar(&draws, "draws", 0, "simulation draws per shooter")
	cmd.Flags().StringVar(&xlsxOut, "xlsx", "", "write the comparison to an xlsx workbook")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	var (
		shooters  int
		minShots  int
		maxShots  int
		intercept float64
		seed      int64
		output    string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate synthetic shots with a known shooter random intercept",
		Long: `Draw a synthetic panel of shots over the six zones. Top-row zones share a
shooter-level random intercept, so panel models can be checked against known values.

Example: kickchoice simulate --shooters 300 --intercept 1.5 -o synthetic.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := testkit.PanelGeneratorConfig{
				Individuals:        shooters,
				MinOccasions:       minShots,
				MaxOccasions:       maxShots,
				Alternatives:       dataset.Zones,
				Constants:          map[choice.AltID]float64{penalty.TopLeft: 0.4, penalty.TopRight: 0.4, penalty.BottomLeft: 0.9, penalty.BottomRight: 0.9},
				Covariate:          "x",
				Slopes:             map[choice.AltID]float64{penalty.TopLeft: 0.5, penalty.BottomRight: -0.5},
				RandomIntercept:    intercept,
				RandomAlternatives: []choice.AltID{penalty.TopLeft, penalty.TopCentre, penalty.TopRight},
				Seed:               seed,
			}
			panel, err := testkit.NewPanelGenerator(cfg).Generate()
			if err != nil {
				return err
			}
			headers, rows := testkit.Records(panel, []string{"x"})
			headers[0], headers[2] = penalty.ColumnID, penalty.ColumnChoice

			if output == "" {
				w := csv.NewWriter(cmd.OutOrStdout())
				w.Write(headers)
				w.WriteAll(rows)
				return w.Error()
			}
			if err := writeTable(output, dataset.NewRawTable(headers, rows)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d shots by %d shooters to %s\n", len(rows), panel.NumGroups(), output)
			return nil
		},
	}
	cmd.Flags().IntVar(&shooters, "shooters", 200, "number of shooters")
	cmd.Flags().IntVar(&minShots, "min-shots", 1, "fewest shots per shooter")
	cmd.Flags().IntVar(&maxShots, "max-shots", 8, "most shots per shooter")
	cmd.Flags().Float64Var(&intercept, "intercept", 1.0, "standard deviation of the top-row random intercept")
	cmd.Flags().Int64Var(&seed, "seed", 42, "generator seed")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.csv or .xlsx, default stdout)")
	return cmd
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPANEL\tCOVARIATES\tDESCRIPTION")
			for _, name := range penalty.Names() {
				v, err := penalty.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", v.Name, v.Panel, strings.Join(v.Covariates, ","), v.Description)
			}
			return tw.Flush()
		},
	}
}

func newRunsCmd() *cobra.Command {
	var (
		modelName string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored runs, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			if c.RunRepo == nil {
				return fmt.Errorf("DATABASE_URL is not set, no runs are stored")
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				id, err := core.ParseRunID(args[0])
				if err != nil {
					return err
				}
				r, err := c.EstimationService.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "run %s  %s  %s  data %s\n", r.ID, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Manifest.DataSource)
				if r.Status == run.StatusFailed {
					fmt.Fprintf(out, "error: %s\n", r.Error)
					return nil
				}
				return report.WriteConsole(out, r.Result)
			}

			runs, err := c.EstimationService.List(cmd.Context(), ports.RunFilters{ModelName: modelName, Limit: limit})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMODEL\tSTATUS\tLL\tCREATED")
			for _, s := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%s\n", s.ID, s.ModelName, s.Status, s.LogLikelihood, s.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "only runs of this model")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func newContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c, err := container.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func writeTable(path string, table *dataset.RawTable) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return excel.WriteTable(path, table)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Write(table.Headers)
	w.WriteAll(table.Records())
	return w.Error()
}

func printPrepReport(cmd *cobra.Command, prep *dataset.PrepReport) {
	fmt.Fprintf(cmd.ErrOrStderr(), "recoded: %d of %d rows kept\n", prep.OutputRows, prep.InputRows)
	for target, n := range prep.Dropped {
		fmt.Fprintf(cmd.ErrOrStderr(), "  dropped %d rows missing %s\n", n, target)
	}
	for _, rule := range prep.SkippedRules {
		fmt.Fprintf(cmd.ErrOrStderr(), "  skipped %s (source column absent)\n", rule)
	}
}
