package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/lifeos/internal/energy"
	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/stats"
	"github.com/derickschaefer/lifeos/internal/util"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Score model forecasts against an alternative source",
	Long: `Compare commands keep a ledger of energy forecasts from the regression
model (ml) and an alternative source such as an LLM (llm), plus the energy
levels actually observed. Each forecast is scored against the latest actual
recorded for its date.

Model forecasts are recorded automatically by 'lifeos energy predict'.`,
}

// parseEnergy parses a 1-10 energy level.
func parseEnergy(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 1 || v > 10 {
		return 0, fmt.Errorf("invalid energy %q: expected a number from 1 to 10", s)
	}
	return v, nil
}

// ─── compare record-llm ──────────────────────────────────────────────────────

var recordLLMConfidence float64

var compareRecordLLMCmd = &cobra.Command{
	Use:   "record-llm <date> <energy>",
	Short: "Record a forecast from the alternative source",
	Example: `  lifeos compare record-llm 2024-03-15 6
  lifeos compare record-llm 2024-03-16 7.5 --confidence 0.6`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := util.ParseDate(args[0])
		if err != nil {
			return err
		}
		level, err := parseEnergy(args[1])
		if err != nil {
			return err
		}
		if recordLLMConfidence < 0 || recordLLMConfidence > 1 {
			return fmt.Errorf("--confidence must be in [0, 1], got %g", recordLLMConfidence)
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		pred := energy.Prediction{
			Date:            util.Day(date),
			Source:          energy.SourceLLM,
			PredictedEnergy: level,
			Confidence:      recordLLMConfidence,
		}
		if err := deps.Store.PutPrediction(pred); err != nil {
			return fmt.Errorf("recording forecast: %w", err)
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Recorded llm forecast %.1f for %s\n", level, util.FormatDate(date))
		}
		return nil
	},
}

// ─── compare record-actual ───────────────────────────────────────────────────

var compareRecordActualCmd = &cobra.Command{
	Use:   "record-actual <date> <energy>",
	Short: "Record the energy level actually observed on a date",
	Long: `Records an observed energy level on the 1-10 scale. Recording a date again
adds a new entry; the latest one is used for scoring.

Journal entries can be recorded as actuals at ingest time with
'lifeos records ingest --actuals'.`,
	Example: `  lifeos compare record-actual 2024-03-15 7`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := util.ParseDate(args[0])
		if err != nil {
			return err
		}
		level, err := parseEnergy(args[1])
		if err != nil {
			return err
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if err := deps.Store.PutActual(energy.Actual{Date: util.Day(date), Energy: level}); err != nil {
			return fmt.Errorf("recording actual: %w", err)
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Recorded actual energy %.1f for %s\n", level, util.FormatDate(date))
		}
		return nil
	},
}

// ─── compare accuracy ────────────────────────────────────────────────────────

var compareAccuracyCmd = &cobra.Command{
	Use:   "accuracy <ml|llm>",
	Short: "MAE, RMSE and correlation of one source against actuals",
	Long: fmt.Sprintf(`Scores one source's forecasts against observed actuals. At least %d
forecasts must match an actual.`, energy.MinPairs),
	Example: `  lifeos compare accuracy ml
  lifeos compare accuracy llm --format json`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(energy.SourceML), string(energy.SourceLLM)},
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		source, err := energy.ParseSource(args[0])
		if err != nil {
			return err
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		c, err := deps.Store.Comparator()
		if err != nil {
			return fmt.Errorf("reading ledger: %w", err)
		}
		acc, err := c.Accuracy(source)
		if errors.Is(err, stats.ErrInsufficientData) {
			return fmt.Errorf("%s: need %d forecasts matched with actuals: %w", source, energy.MinPairs, err)
		}
		if err != nil {
			return err
		}
		return emit(cmd, deps, newResult(model.KindAccuracy, "compare accuracy", acc, acc.SampleSize), started)
	},
}

// ─── compare sources ─────────────────────────────────────────────────────────

var compareSourcesCmd = &cobra.Command{
	Use:     "sources",
	Short:   "Compare both sources and name the more accurate one",
	Example: `  lifeos compare sources`,
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

		c, err := deps.Store.Comparator()
		if err != nil {
			return fmt.Errorf("reading ledger: %w", err)
		}
		cmp := c.Compare()
		items := 0
		for _, a := range []*energy.Accuracy{cmp.ML, cmp.LLM} {
			if a != nil {
				items++
			}
		}
		return emit(cmd, deps, newResult(model.KindComparison, "compare sources", cmp, items), started)
	},
}

// ─── compare ledger ──────────────────────────────────────────────────────────

var compareLedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List every recorded forecast and actual",
	Example: `  lifeos compare ledger
  lifeos compare ledger --format jsonl`,
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

		l, err := deps.Store.Ledger()
		if err != nil {
			return fmt.Errorf("reading ledger: %w", err)
		}
		n := len(l.ML) + len(l.LLM) + len(l.Actuals)
		return emit(cmd, deps, newResult(model.KindLedger, "compare ledger", l, n), started)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.AddCommand(compareRecordLLMCmd)
	compareCmd.AddCommand(compareRecordActualCmd)
	compareCmd.AddCommand(compareAccuracyCmd)
	compareCmd.AddCommand(compareSourcesCmd)
	compareCmd.AddCommand(compareLedgerCmd)

	compareRecordLLMCmd.Flags().Float64Var(&recordLLMConfidence, "confidence", 0.5,
		"confidence of the forecast in [0, 1]")
}
