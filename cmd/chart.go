package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/lifeos/internal/analyze"
	"github.com/derickschaefer/lifeos/internal/chart"
	"github.com/derickschaefer/lifeos/internal/pipeline"
	"github.com/derickschaefer/lifeos/internal/transform"
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render a stored variable as an ASCII chart",
	Long: `Chart commands read stored records, organize them into daily series and
render one variable to the terminal.

Examples:
  lifeos chart weekday sleep_duration
  lifeos chart plot readiness --days 90 --rolling 7`,
}

var (
	chartDays  int
	chartWidth int
)

// chartWidthOrDefault pins the width to 80 when stdout is piped and no
// --width was given, so redirected output does not depend on $COLUMNS.
func chartWidthOrDefault() int {
	if chartWidth == 0 && !pipeline.IsTTY() {
		return 80
	}
	return chartWidth
}

// ─── chart weekday ───────────────────────────────────────────────────────────

var chartWeekdayCmd = &cobra.Command{
	Use:   "weekday <variable>",
	Short: "Horizontal bar chart of the average per weekday",
	Long: `Renders one bar per weekday, Monday first, showing the variable's mean on
that weekday and the number of days behind it. Weekdays with no data are
omitted.`,
	Example: `  lifeos chart weekday sleep_duration
  lifeos chart weekday energy --days 56`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeVariables,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := validVariable(name); err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		o, err := loadOrganized(deps, chartDays)
		if err != nil {
			return err
		}
		return chart.Bar(cmd.OutOrStdout(), analyze.Label(name)+" by weekday", chart.WeekdayBars(o, name),
			chart.BarOptions{Width: chartWidthOrDefault()})
	},
}

// ─── chart plot ──────────────────────────────────────────────────────────────

var (
	chartPlotHeight    int
	chartPlotTitle     string
	chartPlotRolling   int
	chartPlotResample  string
	chartPlotNormalize string
)

var chartPlotCmd = &cobra.Command{
	Use:   "plot <variable>",
	Short: "Multi-line ASCII chart of the daily series with labeled axes",
	Long: `Renders a multi-line chart with Y-axis tick labels and X-axis date labels.

Days without a value appear as gaps in the curve, not zeros. Width
auto-detects from $COLUMNS (falls back to 80). Override with --width and
--height.

The series can be smoothed before plotting: --rolling N plots the N-day
rolling mean, --resample weekly|monthly averages per period, and
--normalize zscore|minmax rescales the values. They apply in that order.`,
	Example: `  lifeos chart plot readiness
  lifeos chart plot sleep_duration --days 90 --rolling 7
  lifeos chart plot activity --resample weekly --height 8
  lifeos chart plot energy --normalize zscore --title "Energy (z)"`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeVariables,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := validVariable(name); err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		o, err := loadOrganized(deps, chartDays)
		if err != nil {
			return err
		}

		dates, samples := o.Dates, o.Series[name]
		title := chartPlotTitle
		if title == "" {
			title = analyze.Label(name)
		}

		if chartPlotRolling > 1 {
			samples, err = transform.Roll(samples, chartPlotRolling, 1, transform.RollMean)
			if err != nil {
				return err
			}
			if chartPlotTitle == "" {
				title += fmt.Sprintf(" (%d-day mean)", chartPlotRolling)
			}
		}
		if chartPlotResample != "" {
			dates, samples, err = transform.Resample(dates, samples, transform.ResampleFreq(chartPlotResample))
			if err != nil {
				return err
			}
			if chartPlotTitle == "" {
				title += ", " + chartPlotResample
			}
		}
		if chartPlotNormalize != "" {
			samples, err = transform.Normalize(samples, transform.NormalizeMethod(chartPlotNormalize))
			if err != nil {
				return err
			}
		}

		return chart.Plot(cmd.OutOrStdout(), name, dates, samples, chart.PlotOptions{
			Width:  chartWidthOrDefault(),
			Height: chartPlotHeight,
			Title:  title,
		})
	},
}

// ─── chart diff ──────────────────────────────────────────────────────────────

var chartDiffCmd = &cobra.Command{
	Use:               "diff <variable>",
	Short:             "Plot the day-over-day change of a variable",
	Example:           `  lifeos chart diff readiness --days 30`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeVariables,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := validVariable(name); err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		o, err := loadOrganized(deps, chartDays)
		if err != nil {
			return err
		}
		return chart.Plot(cmd.OutOrStdout(), name, o.Dates, transform.Diff(o.Series[name]), chart.PlotOptions{
			Width:  chartWidthOrDefault(),
			Height: chartPlotHeight,
			Title:  analyze.Label(name) + " day-over-day change",
		})
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartWeekdayCmd)
	chartCmd.AddCommand(chartPlotCmd)
	chartCmd.AddCommand(chartDiffCmd)

	pf := chartCmd.PersistentFlags()
	pf.IntVar(&chartDays, "days", 0,
		"only chart the last N days of records (default: all)")
	pf.IntVar(&chartWidth, "width", 0,
		"chart width in characters (default: auto-detect from $COLUMNS, fallback 80)")

	for _, c := range []*cobra.Command{chartPlotCmd, chartDiffCmd} {
		c.Flags().IntVar(&chartPlotHeight, "height", 12,
			"chart height in rows (default 12)")
	}
	chartPlotCmd.Flags().StringVar(&chartPlotTitle, "title", "",
		"chart title (default: variable label)")
	chartPlotCmd.Flags().IntVar(&chartPlotRolling, "rolling", 0,
		"plot the N-day rolling mean instead of raw values")
	chartPlotCmd.Flags().StringVar(&chartPlotResample, "resample", "",
		"average per period: weekly|monthly")
	chartPlotCmd.Flags().StringVar(&chartPlotNormalize, "normalize", "",
		"rescale values: zscore|minmax")
}
