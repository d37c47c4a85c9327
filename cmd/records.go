package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/lifeos/internal/app"
	"github.com/derickschaefer/lifeos/internal/energy"
	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/pipeline"
	"github.com/derickschaefer/lifeos/internal/util"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Load and inspect stored metric records",
	Long: `Commands for loading metric records and journal entries into the local
database and reading them back.

A record is keyed by date, type and source; ingesting the same key again
replaces the stored value. Journal entries are keyed by date.`,
}

// ─── records ingest ──────────────────────────────────────────────────────────

var (
	ingestFile    string
	ingestStrict  bool
	ingestActuals bool
)

var recordsIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Store records and journal entries from JSONL",
	Long: `Reads JSONL from stdin (or --file) and stores every valid line.

Record lines carry date, type, value and optional source and metadata.
Journal lines carry date, energy (1-5) and optional notes. Invalid lines are
reported as warnings and skipped unless --strict is set.

With --actuals, each journal entry is also recorded as an observed energy
level (scaled to 1-10) for 'lifeos compare accuracy'.`,
	Example: `  lifeos records ingest < oura-export.jsonl
  lifeos records ingest --file journal.jsonl --actuals
  lifeos records export --from 2024-01-01 | lifeos records ingest --db other.db`,
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

		var r io.Reader = cmd.InOrStdin()
		if ingestFile != "" {
			f, err := os.Open(ingestFile)
			if err != nil {
				return fmt.Errorf("opening input: %w", err)
			}
			defer f.Close()
			r = f
		}

		in, err := pipeline.ReadInput(r)
		var lineErrs *util.MultiError
		switch {
		case errors.As(err, &lineErrs) && !ingestStrict:
			for _, e := range lineErrs.Errors {
				deps.Logger.Warn("skipping input line", "err", e)
			}
		case err != nil:
			return err
		}

		if err := deps.Store.PutRecords(in.Records); err != nil {
			return fmt.Errorf("storing records: %w", err)
		}
		if err := deps.Store.PutJournal(in.Journal); err != nil {
			return fmt.Errorf("storing journal: %w", err)
		}
		if ingestActuals {
			scale := deps.Config.Energy.JournalScale
			for _, j := range in.Journal {
				if err := deps.Store.PutActual(energy.Actual{Date: j.Date, Energy: j.Energy * scale}); err != nil {
					return fmt.Errorf("storing actual: %w", err)
				}
			}
		}
		deps.Logger.Info("ingest complete",
			"records", len(in.Records), "journal", len(in.Journal),
			"elapsed", time.Since(started).Round(time.Millisecond))

		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Stored %d records and %d journal entries\n", len(in.Records), len(in.Journal))
			if lineErrs != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "  Skipped %d invalid lines\n", len(lineErrs.Errors))
			}
		}
		return nil
	},
}

// ─── records list ────────────────────────────────────────────────────────────

var (
	recordsFrom string
	recordsTo   string
	recordsType string
)

// recordRange validates --from, --to and --type.
func recordRange() (from, to time.Time, err error) {
	if from, err = parseDateFlag("from", recordsFrom); err != nil {
		return
	}
	if to, err = parseDateFlag("to", recordsTo); err != nil {
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		err = fmt.Errorf("--to (%s) is before --from (%s)", recordsTo, recordsFrom)
		return
	}
	if recordsType != "" && !model.MetricType(recordsType).Valid() {
		err = fmt.Errorf("unknown record type %q", recordsType)
	}
	return
}

// readRecords lists stored records in range, filtered by --type.
func readRecords(deps *app.Deps, from, to time.Time) ([]model.MetricRecord, error) {
	records, err := deps.Store.ListRecords(from, to)
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}
	if recordsType == "" {
		return records, nil
	}
	out := records[:0]
	for _, r := range records {
		if string(r.Type) == recordsType {
			out = append(out, r)
		}
	}
	return out, nil
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records",
	Example: `  lifeos records list --from 2024-03-01
  lifeos records list --type sleep --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		from, to, err := recordRange()
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

		records, err := readRecords(deps, from, to)
		if err != nil {
			return err
		}
		return emit(cmd, deps, newResult(model.KindRecords, "records list", records, len(records)), started)
	},
}

// ─── records export ──────────────────────────────────────────────────────────

var recordsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write stored records as ingestible JSONL",
	Example: `  lifeos records export > backup.jsonl
  lifeos records export --type readiness --from 2024-01-01 --out readiness.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := recordRange()
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

		records, err := readRecords(deps, from, to)
		if err != nil {
			return err
		}
		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		return pipeline.WriteRecords(w, records)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsIngestCmd)
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsExportCmd)

	recordsIngestCmd.Flags().StringVar(&ingestFile, "file", "", "read JSONL from a file instead of stdin")
	recordsIngestCmd.Flags().BoolVar(&ingestStrict, "strict", false, "fail if any line is invalid instead of skipping invalid lines")
	recordsIngestCmd.Flags().BoolVar(&ingestActuals, "actuals", false, "also record journal energy as observed actuals")

	for _, c := range []*cobra.Command{recordsListCmd, recordsExportCmd} {
		c.Flags().StringVar(&recordsFrom, "from", "", "first date YYYY-MM-DD (inclusive)")
		c.Flags().StringVar(&recordsTo, "to", "", "last date YYYY-MM-DD (inclusive)")
		c.Flags().StringVar(&recordsType, "type", "", "only this type: sleep|readiness|activity|energy|meeting_density")
	}
}
