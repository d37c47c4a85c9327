// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/lifeos/internal/analyze"
	"github.com/derickschaefer/lifeos/internal/energy"
	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/pattern"
	"github.com/derickschaefer/lifeos/internal/store"
	"github.com/derickschaefer/lifeos/internal/util"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Formats lists every accepted --format value.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// renderJSONL writes one line per list element; single values take one line.
func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch data := result.Data.(type) {
	case []model.MetricRecord:
		for _, r := range data {
			if err := enc.Encode(recordLine(r)); err != nil {
				return err
			}
		}
		return nil
	case []pattern.Pattern:
		for _, p := range data {
			if err := enc.Encode(p); err != nil {
				return err
			}
		}
		return nil
	case energy.Ledger:
		for _, p := range data.ML {
			if err := enc.Encode(p); err != nil {
				return err
			}
		}
		for _, p := range data.LLM {
			if err := enc.Encode(p); err != nil {
				return err
			}
		}
		for _, a := range data.Actuals {
			if err := enc.Encode(map[string]interface{}{"source": "actual", "date": a.Date, "energy": a.Energy}); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(result.Data)
	}
}

// recordLine is the canonical JSONL shape of a record (NaN → null).
func recordLine(r model.MetricRecord) map[string]interface{} {
	var val interface{}
	if !math.IsNaN(r.Value) {
		val = r.Value
	}
	line := map[string]interface{}{
		"date":  util.FormatDate(r.Date),
		"type":  r.Type,
		"value": val,
	}
	if r.Source != "" {
		line["source"] = r.Source
	}
	if len(r.Metadata) > 0 {
		line["metadata"] = r.Metadata
	}
	return line
}

// ─── Tabular view ─────────────────────────────────────────────────────────────

// grid is the row/column view shared by the table, CSV and Markdown formats.
type grid struct {
	header []string
	rows   [][]string
	right  map[int]bool // right-aligned numeric columns
}

// tabulate converts a result payload into a grid. ok is false for payloads
// with no tabular form.
func tabulate(result *model.Result) (g grid, ok bool) {
	switch data := result.Data.(type) {
	case []model.MetricRecord:
		g.header = []string{"DATE", "TYPE", "VALUE", "SOURCE", "METADATA"}
		g.right = map[int]bool{2: true}
		for _, r := range data {
			g.rows = append(g.rows, []string{
				util.FormatDate(r.Date), string(r.Type), formatValue(r.Value), r.Source, formatMeta(r.Metadata),
			})
		}
	case []pattern.Pattern:
		g.header = []string{"#", "TYPE", "NAME", "STRENGTH", "CONFIDENCE", "N", "DESCRIPTION"}
		g.right = map[int]bool{0: true, 3: true, 4: true, 5: true}
		for i, p := range data {
			g.rows = append(g.rows, []string{
				fmt.Sprintf("%d", i+1), string(p.Type), p.Name,
				fmt.Sprintf("%.2f", p.Strength), fmt.Sprintf("%.2f", p.Confidence),
				fmt.Sprintf("%d", p.SampleSize), p.Description,
			})
		}
	case []store.PatternRun:
		g.header = []string{"RUN", "CREATED AT", "WINDOW", "PATTERNS"}
		g.right = map[int]bool{3: true}
		for _, r := range data {
			g.rows = append(g.rows, []string{
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"),
				formatPeriod(r.WindowFrom, r.WindowTo), fmt.Sprintf("%d", len(r.Patterns)),
			})
		}
	case energy.Prediction:
		g.header = []string{"FIELD", "VALUE"}
		g.rows = [][]string{
			{"Date", util.FormatDate(data.Date)},
			{"Source", string(data.Source)},
			{"Predicted energy", fmt.Sprintf("%.1f", data.PredictedEnergy)},
			{"Confidence", fmt.Sprintf("%.2f", data.Confidence)},
			{"Model version", data.ModelVersion},
		}
		for _, name := range energy.FeatureNames {
			if v, ok := data.FeaturesUsed[name]; ok {
				g.rows = append(g.rows, []string{"  " + name, formatValue(v)})
			}
		}
	case energy.TrainingReport:
		g.header = []string{"FEATURE", "COEFFICIENT", "IMPORTANCE"}
		g.right = map[int]bool{1: true, 2: true}
		for i, fw := range data.FeatureImportance {
			g.rows = append(g.rows, []string{
				fw.Name, fmt.Sprintf("%.4f", data.Coefficients[fw.Name]), fmt.Sprintf("#%d", i+1),
			})
		}
		g.rows = append(g.rows,
			[]string{"(intercept)", fmt.Sprintf("%.4f", data.Intercept), ""},
			[]string{"(r²)", fmt.Sprintf("%.4f", data.RSquared), ""},
			[]string{"(samples)", fmt.Sprintf("%d", data.SampleCount), data.Solver},
		)
	case energy.Accuracy:
		g = accuracyGrid([]*energy.Accuracy{&data})
	case energy.Comparison:
		g = accuracyGrid([]*energy.Accuracy{data.ML, data.LLM})
	case energy.Ledger:
		g.header = []string{"DATE", "SOURCE", "ENERGY", "CONFIDENCE"}
		g.right = map[int]bool{2: true, 3: true}
		for _, p := range append(append([]energy.Prediction(nil), data.ML...), data.LLM...) {
			g.rows = append(g.rows, []string{
				util.FormatDate(p.Date), string(p.Source),
				fmt.Sprintf("%.1f", p.PredictedEnergy), fmt.Sprintf("%.2f", p.Confidence),
			})
		}
		for _, a := range data.Actuals {
			g.rows = append(g.rows, []string{util.FormatDate(a.Date), "actual", fmt.Sprintf("%.1f", a.Energy), ""})
		}
		sort.SliceStable(g.rows, func(i, j int) bool { return g.rows[i][0] < g.rows[j][0] })
	case analyze.Summary:
		g.header = []string{"FIELD", "VALUE"}
		g.right = map[int]bool{1: true}
		g.rows = [][]string{
			{"Variable", data.Variable},
			{"Days", fmt.Sprintf("%d", data.Count)},
			{"Missing", fmt.Sprintf("%d (%.1f%%)", data.Missing, data.MissingPct)},
			{"Mean", formatValue(data.Mean)},
			{"Std", formatValue(data.Std)},
			{"Min", formatValue(data.Min)},
			{"P25", formatValue(data.P25)},
			{"Median", formatValue(data.Median)},
			{"P75", formatValue(data.P75)},
			{"Max", formatValue(data.Max)},
			{"Skew", formatValue(data.Skew)},
			{"First", formatValue(data.First)},
			{"Last", formatValue(data.Last)},
			{"Change", formatValue(data.Change)},
			{"Change %", formatValue(data.ChangePct)},
		}
	default:
		return grid{}, false
	}
	return g, true
}

func accuracyGrid(accs []*energy.Accuracy) grid {
	g := grid{
		header: []string{"SOURCE", "MAE", "RMSE", "CORRELATION", "PAIRS", "PERIOD"},
		right:  map[int]bool{1: true, 2: true, 3: true, 4: true},
	}
	for _, a := range accs {
		if a == nil {
			continue
		}
		g.rows = append(g.rows, []string{
			string(a.Source),
			fmt.Sprintf("%.2f", a.MAE), fmt.Sprintf("%.2f", a.RMSE), fmt.Sprintf("%.2f", a.Correlation),
			fmt.Sprintf("%d", a.SampleSize), formatPeriod(a.PeriodStart, a.PeriodEnd),
		})
	}
	return g
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	g, ok := tabulate(result)
	if !ok {
		return renderJSON(w, result)
	}
	if len(g.rows) == 0 {
		fmt.Fprintln(w, "(no results)")
	} else {
		tw := tablewriter.NewWriter(w)
		tw.SetHeader(g.header)
		tw.SetBorder(true)
		tw.SetRowLine(false)
		tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		tw.SetAlignment(tablewriter.ALIGN_LEFT)
		align := make([]int, len(g.header))
		for i := range align {
			align[i] = tablewriter.ALIGN_LEFT
			if g.right[i] {
				align[i] = tablewriter.ALIGN_RIGHT
			}
		}
		tw.SetColumnAlignment(align)
		tw.SetAutoWrapText(false)
		tw.AppendBulk(g.rows)
		tw.Render()
	}
	if cmp, ok := result.Data.(energy.Comparison); ok {
		switch {
		case cmp.Winner != "":
			fmt.Fprintf(w, "\nWinner: %s (%s)\n", cmp.Winner, cmp.Summary)
		default:
			fmt.Fprintf(w, "\nNo winner: each source needs %d predictions matched with actuals.\n", energy.MinPairs)
		}
	}
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	if g, ok := tabulate(result); ok {
		header := make([]string, len(g.header))
		for i, h := range g.header {
			header[i] = strings.ToLower(strings.ReplaceAll(h, " ", "_"))
		}
		_ = cw.Write(header)
		for _, r := range g.rows {
			_ = cw.Write(r)
		}
	} else {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	g, ok := tabulate(result)
	if !ok {
		return renderJSON(w, result)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(g.header, " | "))
	seps := make([]string, len(g.header))
	for i := range seps {
		seps[i] = "---"
		if g.right[i] {
			seps[i] = "--:"
		}
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
	for _, r := range g.rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "\n[%s • %d items • %dms]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatValue formats a value for display.
// Always shows at least one decimal place (e.g. 4.0, not 4).
// Trims unnecessary trailing zeros beyond the first (e.g. 3.400000 → 3.4).
// Missing values (NaN) render as ".".
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	s := strings.TrimRight(fmt.Sprintf("%.4f", v), "0")
	if strings.HasSuffix(s, ".") {
		s += "0" // "4." → "4.0"
	}
	return s
}

func formatMeta(m map[string]float64) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + formatValue(m[k])
	}
	return strings.Join(parts, " ")
}

func formatPeriod(from, to time.Time) string {
	if from.IsZero() && to.IsZero() {
		return "all"
	}
	return util.FormatDate(from) + " → " + util.FormatDate(to)
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
