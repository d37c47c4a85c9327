package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/lifeos/internal/app"
	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/pattern"
	"github.com/derickschaefer/lifeos/internal/pipeline"
	"github.com/derickschaefer/lifeos/internal/series"
	"github.com/derickschaefer/lifeos/internal/store"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Detect, store and review health patterns",
	Long: `Pattern commands run every analysis engine (correlation, trend, day-of-week
and sliding-window) over recent records, deduplicate and rank the results, and
store them as the active pattern set.`,
}

// ─── patterns detect ─────────────────────────────────────────────────────────

var (
	detectDays   int
	detectMerge  string
	detectDryRun bool
)

var patternsDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run every engine and store the ranked patterns",
	Long: `Runs the full analysis over the last --days of stored records (default:
window_days from config, 30). At least min_days distinct dates are required.

--merge reads extra pattern candidates as JSONL (for example from a free-text
review of journal notes) and ranks them together with the detected ones. When
two candidates share a type and variables, the more confident one is kept.

The result replaces the active pattern set unless --dry-run is given.`,
	Example: `  lifeos patterns detect
  lifeos patterns detect --days 90 --format json
  lifeos patterns detect --merge llm-patterns.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		days := deps.Config.WindowDays
		if cmd.Flags().Changed("days") {
			days = detectDays
		}

		var extra []pattern.Pattern
		if detectMerge != "" {
			f, err := os.Open(detectMerge)
			if err != nil {
				return fmt.Errorf("opening merge file: %w", err)
			}
			extra, err = pipeline.ReadPatterns(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("reading %s: %w", detectMerge, err)
			}
		}

		run, err := detectPatterns(deps, days, extra)
		if err != nil {
			return err
		}
		if run == nil {
			if !deps.Config.Quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Not enough data: need at least %d days of records in the window.\n",
					deps.Config.Analysis.MinDays)
			}
			return nil
		}

		if !detectDryRun {
			stored, err := deps.Store.PutPatternRun(*run)
			if err != nil {
				return fmt.Errorf("storing patterns: %w", err)
			}
			deps.Logger.Info("pattern run stored", "run", stored.ID, "patterns", len(stored.Patterns))
		}

		result := newResult(model.KindPatterns, "patterns detect", run.Patterns, len(run.Patterns))
		if len(run.Patterns) == 0 {
			result.Warnings = append(result.Warnings, "no pattern passed the significance thresholds")
		}
		return emit(cmd, deps, result, started)
	},
}

// detectPatterns analyzes the last days of records and merges extra
// candidates. It returns nil when the window holds fewer than min_days dates.
func detectPatterns(deps *app.Deps, days int, extra []pattern.Pattern) (*store.PatternRun, error) {
	records, err := deps.Store.ListRecords(windowStart(time.Now(), days), time.Time{})
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	o := series.Organize(records)
	if o.Len() < deps.Config.Analysis.MinDays {
		return nil, nil
	}

	ps := deps.Analyzer().Analyze(o)
	if len(extra) > 0 {
		ps = pattern.Dedupe(append(ps, extra...))
	}
	return &store.PatternRun{
		CreatedAt:  time.Now().UTC(),
		WindowFrom: o.Dates[0],
		WindowTo:   o.Dates[len(o.Dates)-1],
		Patterns:   ps,
	}, nil
}

// ─── patterns list ───────────────────────────────────────────────────────────

var (
	listType       string
	listActionable bool
)

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the active pattern set",
	Example: `  lifeos patterns list
  lifeos patterns list --type day_of_week --actionable`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		ps, deps, err := activePatterns()
		if err != nil {
			return err
		}
		defer deps.Close()

		out := ps[:0]
		for _, p := range ps {
			if listType != "" && string(p.Type) != listType {
				continue
			}
			if listActionable && !p.Actionable {
				continue
			}
			out = append(out, p)
		}
		return emit(cmd, deps, newResult(model.KindPatterns, "patterns list", out, len(out)), started)
	},
}

// activePatterns opens the store and reads the newest pattern run.
func activePatterns() ([]pattern.Pattern, *app.Deps, error) {
	deps, err := buildDeps()
	if err != nil {
		return nil, nil, err
	}
	if err := deps.RequireStore(); err != nil {
		return nil, nil, err
	}
	run, ok, err := deps.Store.ActivePatternRun()
	if err != nil {
		deps.Close()
		return nil, nil, fmt.Errorf("reading patterns: %w", err)
	}
	if !ok {
		deps.Close()
		return nil, nil, fmt.Errorf("no stored patterns\n\n  Use: lifeos patterns detect")
	}
	return run.Patterns, deps, nil
}

// ─── patterns export ─────────────────────────────────────────────────────────

var patternsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the active pattern set as JSONL",
	Long: `Writes the active patterns in the same JSONL shape that 'patterns detect
--merge' reads, so a set can be reviewed, edited and merged back.`,
	Example: `  lifeos patterns export > patterns.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, deps, err := activePatterns()
		if err != nil {
			return err
		}
		defer deps.Close()

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		return pipeline.WritePatterns(w, ps)
	},
}

// ─── patterns history ────────────────────────────────────────────────────────

var patternsHistoryCmd = &cobra.Command{
	Use:     "history",
	Short:   "List every stored detection run, oldest first",
	Example: `  lifeos patterns history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		runs, err := deps.Store.ListPatternRuns()
		if err != nil {
			return fmt.Errorf("reading pattern runs: %w", err)
		}
		return emit(cmd, deps, newResult(model.KindRuns, "patterns history", runs, len(runs)), started)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsDetectCmd)
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsExportCmd)
	patternsCmd.AddCommand(patternsHistoryCmd)

	patternsDetectCmd.Flags().IntVar(&detectDays, "days", 0,
		"analyze the last N days of records; 0 = all (default: window_days from config)")
	patternsDetectCmd.Flags().StringVar(&detectMerge, "merge", "",
		"JSONL file of extra pattern candidates to rank with the detected ones")
	patternsDetectCmd.Flags().BoolVar(&detectDryRun, "dry-run", false,
		"print the patterns without storing them")

	patternsListCmd.Flags().StringVar(&listType, "type", "",
		"only this type: correlation|trend|day_of_week|window_change")
	patternsListCmd.Flags().BoolVar(&listActionable, "actionable", false,
		"only actionable patterns")
}
