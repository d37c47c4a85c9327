package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/lifeos/internal/app"
	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/render"
	"github.com/derickschaefer/lifeos/internal/series"
	"github.com/derickschaefer/lifeos/internal/util"
)

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// outputWriter returns def, or a file writer when --out is set. The returned
// close function must always be called.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// newResult wraps a payload in a Result envelope.
func newResult(kind, command string, data interface{}, items int) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        data,
		Stats:       model.ResultStats{Items: items},
	}
}

// emit renders result in the configured format to stdout or --out, then
// prints warnings and (with --verbose) the stats footer to stderr.
func emit(cmd *cobra.Command, deps *app.Deps, result *model.Result, started time.Time) error {
	if deps.Config.Quiet {
		return nil
	}
	result.Stats.DurationMs = time.Since(started).Milliseconds()

	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeFn()

	if err := render.Render(w, result, resolveFormat(deps.Config.Format)); err != nil {
		return err
	}
	render.PrintFooter(cmd.ErrOrStderr(), result, deps.Config.Verbose)
	return nil
}

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

// printKVTableTo renders a two-column key/value list with aligned keys.
func printKVTableTo(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := strings.Repeat(" ", maxKey-len(r[0]))
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}

// parseDateFlag parses an optional YYYY-MM-DD flag value. Empty means zero.
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := util.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

// parseDateArg parses an optional date argument, defaulting to today.
func parseDateArg(args []string, i int) (time.Time, error) {
	if len(args) <= i {
		return util.Day(time.Now()), nil
	}
	return util.ParseDate(args[i])
}

// windowStart returns the first day of a window of n days ending at end.
// n <= 0 means no lower bound.
func windowStart(end time.Time, n int) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	return util.Day(end).AddDate(0, 0, -(n - 1))
}

// validVariable rejects names that are not organized series variables.
func validVariable(name string) error {
	for _, v := range series.Variables {
		if v == name {
			return nil
		}
	}
	return fmt.Errorf("unknown variable %q\n\nVariables: %s", name, strings.Join(series.Variables, ", "))
}

// loadOrganized reads stored records within the last days (0 = all) and
// organizes them into daily series.
func loadOrganized(deps *app.Deps, days int) (*series.Organized, error) {
	if err := deps.RequireStore(); err != nil {
		return nil, err
	}
	records, err := deps.Store.ListRecords(windowStart(time.Now(), days), time.Time{})
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no stored records\n\n  Use: lifeos records ingest < export.jsonl")
	}
	return series.Organize(records), nil
}

// completeVariables offers variable names for shell completion.
func completeVariables(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, v := range series.Variables {
		if strings.HasPrefix(v, toComplete) {
			out = append(out, v)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
