package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/lifeos/internal/app"
	"github.com/derickschaefer/lifeos/internal/energy"
	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/stats"
	"github.com/derickschaefer/lifeos/internal/util"
)

var energyCmd = &cobra.Command{
	Use:   "energy",
	Short: "Train the energy model and forecast daily energy",
	Long: `Energy commands fit a linear regression from sleep, deep sleep, readiness,
weekday, the previous day's energy and meeting load to journal energy (scaled
to 1-10), and use it to forecast.

The trained model is stored in the local database and replaced on every
'energy train'.`,
}

// ─── energy train ────────────────────────────────────────────────────────────

var trainDays int

var energyTrainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the model on stored records and journal entries",
	Long: `Builds one training row per day that has a journal energy entry, a sleep
record and a readiness record, fits the model and stores it.

At least energy.min_training_samples rows (default 7) are required.`,
	Example: `  lifeos energy train
  lifeos energy train --days 120 --format json`,
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

		from := windowStart(time.Now(), trainDays)
		records, err := deps.Store.ListRecords(from, time.Time{})
		if err != nil {
			return fmt.Errorf("reading records: %w", err)
		}
		journal, err := deps.Store.ListJournal(from, time.Time{})
		if err != nil {
			return fmt.Errorf("reading journal: %w", err)
		}

		p := deps.Predictor()
		td, err := p.PrepareTrainingData(records, journal)
		if errors.Is(err, stats.ErrInsufficientData) {
			return fmt.Errorf("%w\n\n  Log energy in the journal: lifeos records ingest < journal.jsonl", err)
		}
		if err != nil {
			return err
		}
		report, err := p.Train(td)
		if err != nil {
			return err
		}

		params, err := p.Params()
		if err != nil {
			return err
		}
		if err := deps.Store.PutModelParams(params); err != nil {
			return fmt.Errorf("storing model: %w", err)
		}
		return emit(cmd, deps, newResult(model.KindTraining, "energy train", report, report.SampleCount), started)
	},
}

// ─── energy predict ──────────────────────────────────────────────────────────

var (
	predictPrev     float64
	predictSleep    float64
	predictDeep     float64
	predictReady    float64
	predictMeetings float64
	predictNoRecord bool
)

var energyPredictCmd = &cobra.Command{
	Use:   "predict [date]",
	Short: "Forecast energy for a date (default: today)",
	Long: `Forecasts energy on the 1-10 scale from the date's stored sleep and
readiness records, or from --sleep and --readiness when both are given.

The previous day's energy comes from the journal (scaled to 1-10); without a
journal entry, or with --prev-energy 0, the neutral level is used.

Every forecast is added to the prediction ledger so it can later be scored
against actuals. Use --no-record to skip that.`,
	Example: `  lifeos energy predict
  lifeos energy predict 2024-03-15 --format json
  lifeos energy predict --sleep 6.5 --readiness 71 --meetings 4 --no-record`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		date, err := parseDateArg(args, 0)
		if err != nil {
			return err
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		p, err := deps.LoadPredictor()
		if err != nil {
			return err
		}

		prev := predictPrev
		if !cmd.Flags().Changed("prev-energy") {
			if prev, err = previousEnergy(deps, date); err != nil {
				return err
			}
		}

		var pred energy.Prediction
		manual := cmd.Flags().Changed("sleep") || cmd.Flags().Changed("readiness")
		if manual {
			if !cmd.Flags().Changed("sleep") || !cmd.Flags().Changed("readiness") {
				return fmt.Errorf("--sleep and --readiness must be given together")
			}
			f := energy.Features{
				SleepDuration:  predictSleep,
				DeepSleep:      predictDeep,
				ReadinessScore: predictReady,
				DayOfWeek:      util.WeekdayIndex(date),
				PrevDayEnergy:  prev,
				MeetingHours:   predictMeetings,
			}
			if prev <= 0 {
				f.PrevDayEnergy = deps.Config.Energy.NeutralEnergy
			}
			pred, err = p.Predict(date, f)
		} else {
			var records []model.MetricRecord
			records, err = deps.Store.ListRecords(date, date)
			if err != nil {
				return fmt.Errorf("reading records: %w", err)
			}
			pred, err = p.PredictFromData(records, date, prev)
		}
		if err != nil {
			return err
		}

		if !predictNoRecord {
			if err := deps.Store.PutPrediction(pred); err != nil {
				return fmt.Errorf("recording prediction: %w", err)
			}
		}
		return emit(cmd, deps, newResult(model.KindPrediction, "energy predict", pred, 1), started)
	},
}

// previousEnergy returns the journal energy of the day before date on the
// model scale, or 0 when none is logged.
func previousEnergy(deps *app.Deps, date time.Time) (float64, error) {
	day := util.Day(date).AddDate(0, 0, -1)
	entries, err := deps.Store.ListJournal(day, day)
	if err != nil {
		return 0, fmt.Errorf("reading journal: %w", err)
	}
	if len(entries) == 0 {
		deps.Logger.Info("no journal entry for previous day, using neutral energy", "date", util.FormatDate(day))
		return 0, nil
	}
	return entries[len(entries)-1].Energy * deps.Config.Energy.JournalScale, nil
}

// ─── energy params ───────────────────────────────────────────────────────────

var energyParamsCmd = &cobra.Command{
	Use:   "params",
	Short: "Export or import the trained model parameters",
}

var energyParamsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored model parameters as JSON",
	Example: `  lifeos energy params export > model.json
  lifeos energy params export --out model.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		p, err := deps.LoadPredictor()
		if err != nil {
			return err
		}
		params, err := p.Params()
		if err != nil {
			return err
		}

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(params)
	},
}

var energyParamsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the stored model with parameters from a JSON file",
	Long: `Validates the parameters by loading them into a fresh model before storing
them, so a malformed file never replaces a working model.`,
	Example: `  lifeos energy params import model.json`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading params: %w", err)
		}
		var params energy.Params
		if err := json.Unmarshal(data, &params); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if err := deps.Predictor().LoadParams(params); err != nil {
			return err
		}
		if err := deps.Store.PutModelParams(params); err != nil {
			return fmt.Errorf("storing model: %w", err)
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported model v%s (%d samples, r²=%.3f)\n",
				params.Version, params.SampleCount, params.RSquared)
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(energyCmd)
	energyCmd.AddCommand(energyTrainCmd)
	energyCmd.AddCommand(energyPredictCmd)
	energyCmd.AddCommand(energyParamsCmd)
	energyParamsCmd.AddCommand(energyParamsExportCmd)
	energyParamsCmd.AddCommand(energyParamsImportCmd)

	energyTrainCmd.Flags().IntVar(&trainDays, "days", 0,
		"train on the last N days only (default: all)")

	f := energyPredictCmd.Flags()
	f.Float64Var(&predictPrev, "prev-energy", 0, "previous day's energy on the 1-10 scale (0 = neutral)")
	f.Float64Var(&predictSleep, "sleep", 0, "sleep duration in hours")
	f.Float64Var(&predictDeep, "deep-sleep", 0, "deep sleep in hours")
	f.Float64Var(&predictReady, "readiness", 0, "readiness score")
	f.Float64Var(&predictMeetings, "meetings", 0, "meeting hours")
	f.BoolVar(&predictNoRecord, "no-record", false, "do not add the forecast to the prediction ledger")
}
