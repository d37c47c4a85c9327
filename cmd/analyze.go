package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/lifeos/internal/analyze"
	"github.com/derickschaefer/lifeos/internal/app"
	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/pattern"
	"github.com/derickschaefer/lifeos/internal/series"
	"github.com/derickschaefer/lifeos/internal/stats"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis engine over stored records",
	Long: `Analyze commands run a single engine over one variable (or pair) and print
the result without storing it. Use 'lifeos patterns detect' to run every engine.

Variables: sleep_duration, deep_sleep, rem_sleep, sleep_efficiency, sleep_score,
readiness, activity, energy`,
}

var analyzeDays int

// ─── analyze summary ─────────────────────────────────────────────────────────

var analyzeSummaryCmd = &cobra.Command{
	Use:   "summary <variable>",
	Short: "Descriptive statistics: count, mean, std, min, max, median, skew",
	Example: `  lifeos analyze summary sleep_duration
  lifeos analyze summary readiness --days 90 --format json`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeVariables,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := validVariable(name); err != nil {
			return err
		}
		started := time.Now()

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		o, err := loadOrganized(deps, analyzeDays)
		if err != nil {
			return err
		}
		s := analyze.Summarize(name, o.Series[name])
		return emit(cmd, deps, newResult(model.KindSummary, "analyze summary", s, s.Count), started)
	},
}

// ─── analyze trend / weekday / window ────────────────────────────────────────

// singleEngine builds a command that runs one per-variable engine.
func singleEngine(use, short string, run func(a *analyze.Analyzer, o *series.Organized, name string) (pattern.Pattern, error)) *cobra.Command {
	return &cobra.Command{
		Use:               use + " <variable>",
		Short:             short,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeVariables,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validVariable(name); err != nil {
				return err
			}
			return runEngine(cmd, "analyze "+use, func(deps *app.Deps, o *series.Organized) (pattern.Pattern, error) {
				return run(deps.Analyzer(), o, name)
			})
		},
	}
}

var analyzeTrendCmd = singleEngine("trend", "Fit a linear trend and report its direction",
	(*analyze.Analyzer).Trend)

var analyzeWeekdayCmd = singleEngine("weekday", "Compare the best and worst weekday with a t-test",
	(*analyze.Analyzer).DayOfWeek)

var analyzeWindowCmd = singleEngine("window", "Compare the latest window against the one before it",
	(*analyze.Analyzer).WindowChange)

// ─── analyze correlate ───────────────────────────────────────────────────────

var analyzeCorrelateCmd = &cobra.Command{
	Use:   "correlate <variable> <variable>",
	Short: "Pearson correlation between two variables on shared days",
	Example: `  lifeos analyze correlate sleep_duration readiness
  lifeos analyze correlate deep_sleep energy --days 60`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h := analyze.Hypothesis{A: args[0], B: args[1]}
		for _, name := range args {
			if err := validVariable(name); err != nil {
				return err
			}
		}
		for _, known := range analyze.Hypotheses {
			if known.A == h.A && known.B == h.B {
				h.Label = known.Label
			}
		}
		if h.Label == "" {
			h.Label = fmt.Sprintf("%s relates to %s", analyze.CorrelationLabel(h.A), analyze.CorrelationLabel(h.B))
		}
		return runEngine(cmd, "analyze correlate", func(deps *app.Deps, o *series.Organized) (pattern.Pattern, error) {
			return deps.Analyzer().Correlate(o, h)
		})
	},
}

// runEngine loads the detection window, runs one engine and renders the
// single pattern. A candidate that is skipped is reported, not an error.
func runEngine(cmd *cobra.Command, command string, run func(*app.Deps, *series.Organized) (pattern.Pattern, error)) error {
	started := time.Now()
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	o, err := loadOrganized(deps, analyzeDays)
	if err != nil {
		return err
	}

	p, err := run(deps, o)
	switch {
	case errors.Is(err, analyze.ErrNotPromoted),
		errors.Is(err, stats.ErrInsufficientData),
		errors.Is(err, stats.ErrDegenerate):
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "No pattern over %d days: %v\n", o.Len(), err)
		}
		return nil
	case err != nil:
		return err
	}
	return emit(cmd, deps, newResult(model.KindPatterns, command, []pattern.Pattern{p}, 1), started)
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeSummaryCmd)
	analyzeCmd.AddCommand(analyzeTrendCmd)
	analyzeCmd.AddCommand(analyzeWeekdayCmd)
	analyzeCmd.AddCommand(analyzeWindowCmd)
	analyzeCmd.AddCommand(analyzeCorrelateCmd)

	analyzeCmd.PersistentFlags().IntVar(&analyzeDays, "days", 0,
		"only use the last N days of records (default: all)")
}
