package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/derickschaefer/lifeos/internal/config"
	"github.com/derickschaefer/lifeos/internal/energy"
	"github.com/derickschaefer/lifeos/internal/util"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// sandbox isolates a test from config.json and env, and returns a database
// path inside a temp dir.
func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
	t.Setenv(config.EnvDBPath, "")
	t.Setenv(config.EnvFormat, "")
	return filepath.Join(dir, "lifeos.db")
}

// resetFlags restores every flag in the tree to its default. Flag values
// outlive Execute, so each run starts from a clean tree.
func resetFlags(c *cobra.Command) {
	for _, fs := range []*pflag.FlagSet{c.PersistentFlags(), c.Flags()} {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) string {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("lifeos %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

// fourWeeks writes 28 days of sleep, readiness and journal lines starting
// Monday 2024-01-01 and returns the file path.
func fourWeeks(t *testing.T) string {
	t.Helper()
	sleep := []float64{6, 7, 8, 9, 7, 6, 8, 9, 6, 7, 9, 8, 7, 6}
	var sb strings.Builder
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 28; i++ {
		d := util.FormatDate(start.AddDate(0, 0, i))
		s := sleep[i%len(sleep)]
		fmt.Fprintf(&sb, `{"date":%q,"type":"sleep","value":%g,"source":"oura","metadata":{"deep_sleep_hours":%g}}`+"\n", d, s, s/5)
		fmt.Fprintf(&sb, `{"date":%q,"type":"readiness","value":%g}`+"\n", d, 60+4*s+float64(i%3))
		fmt.Fprintf(&sb, `{"date":%q,"energy":%g}`+"\n", d, s/2)
	}
	path := filepath.Join(t.TempDir(), "export.jsonl")
	if err := os.WriteFile(path, []byte(sb.String()), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// envelope decodes the data field of a JSON result.
func envelope(t *testing.T, out string, data interface{}) string {
	t.Helper()
	var res struct {
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decoding result: %v\n%s", err, out)
	}
	if data != nil {
		if err := json.Unmarshal(res.Data, data); err != nil {
			t.Fatalf("decoding data: %v\n%s", err, res.Data)
		}
	}
	return res.Kind
}

// ─── Routing ──────────────────────────────────────────────────────────────────

func TestSubcommandRouting(t *testing.T) {
	pairs := [][]string{
		{"records", "ingest"},
		{"records", "list"},
		{"records", "export"},
		{"analyze", "summary"},
		{"analyze", "trend"},
		{"analyze", "weekday"},
		{"analyze", "window"},
		{"analyze", "correlate"},
		{"patterns", "detect"},
		{"patterns", "list"},
		{"patterns", "export"},
		{"patterns", "history"},
		{"energy", "train"},
		{"energy", "predict"},
		{"energy", "params", "export"},
		{"energy", "params", "import"},
		{"compare", "record-llm"},
		{"compare", "record-actual"},
		{"compare", "accuracy"},
		{"compare", "sources"},
		{"compare", "ledger"},
		{"chart", "weekday"},
		{"chart", "plot"},
		{"chart", "diff"},
		{"db", "stats"},
		{"db", "clear"},
		{"db", "compact"},
		{"config", "init"},
		{"config", "get"},
		{"config", "set"},
		{"version"},
		{"completion"},
	}
	for _, pair := range pairs {
		c, rest, err := rootCmd.Find(pair)
		if err != nil {
			t.Errorf("%v: %v", pair, err)
			continue
		}
		if len(rest) != 0 || c.Name() != pair[len(pair)-1] {
			t.Errorf("%v resolved to %q (rest %v)", pair, c.Name(), rest)
		}
	}
}

// ─── End to end ───────────────────────────────────────────────────────────────

func TestIngestDetectTrainPredict(t *testing.T) {
	db := sandbox(t)
	input := fourWeeks(t)

	out := run(t, "records", "ingest", "--db", db, "--file", input)
	if !strings.Contains(out, "Stored 56 records and 28 journal entries") {
		t.Fatalf("unexpected ingest output %q", out)
	}

	out = run(t, "records", "list", "--db", db, "--type", "sleep", "--format", "csv")
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 29 {
		t.Errorf("expected header + 28 sleep rows, got %d", len(lines))
	}

	out = run(t, "patterns", "detect", "--db", db, "--days", "0", "--format", "json")
	if kind := envelope(t, out, nil); kind != "patterns" {
		t.Errorf("expected patterns result, got %q", kind)
	}
	out = run(t, "patterns", "history", "--db", db, "--format", "json")
	var runs []json.RawMessage
	envelope(t, out, &runs)
	if len(runs) != 1 {
		t.Errorf("expected one stored run, got %d", len(runs))
	}

	out = run(t, "energy", "train", "--db", db, "--format", "json")
	var report energy.TrainingReport
	envelope(t, out, &report)
	if report.SampleCount != 28 || report.RSquared < 0.5 {
		t.Errorf("unexpected training report %+v", report)
	}

	out = run(t, "energy", "predict", "2024-01-28", "--db", db, "--format", "json")
	var pred energy.Prediction
	envelope(t, out, &pred)
	if pred.Source != energy.SourceML || pred.PredictedEnergy < 1 || pred.PredictedEnergy > 10 {
		t.Errorf("unexpected prediction %+v", pred)
	}

	out = run(t, "compare", "ledger", "--db", db, "--format", "json")
	var ledger energy.Ledger
	envelope(t, out, &ledger)
	if len(ledger.ML) != 1 || !ledger.ML[0].Date.Equal(time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("prediction should be recorded in the ledger, got %+v", ledger.ML)
	}
}

func TestCompareAccuracy(t *testing.T) {
	db := sandbox(t)
	for i, pair := range [][2]string{{"6", "6"}, {"7", "8"}, {"8", "8"}} {
		date := fmt.Sprintf("2024-02-0%d", i+1)
		run(t, "compare", "record-llm", date, pair[0], "--db", db, "--quiet")
		run(t, "compare", "record-actual", date, pair[1], "--db", db, "--quiet")
	}

	out := run(t, "compare", "accuracy", "llm", "--db", db, "--format", "json")
	var acc energy.Accuracy
	envelope(t, out, &acc)
	if acc.SampleSize != 3 || acc.MAE < 0.333 || acc.MAE > 0.334 {
		t.Errorf("unexpected accuracy %+v", acc)
	}

	out = run(t, "compare", "sources", "--db", db, "--format", "json")
	var cmp energy.Comparison
	envelope(t, out, &cmp)
	if cmp.Winner != "" || cmp.LLM == nil || cmp.ML != nil {
		t.Errorf("without ml forecasts there is no winner, got %+v", cmp)
	}
}

func TestParamsExportImport(t *testing.T) {
	db := sandbox(t)
	run(t, "records", "ingest", "--db", db, "--file", fourWeeks(t), "--quiet")
	run(t, "energy", "train", "--db", db, "--quiet")

	path := filepath.Join(t.TempDir(), "model.json")
	run(t, "energy", "params", "export", "--db", db, "--out", path)

	other := filepath.Join(t.TempDir(), "other.db")
	out := run(t, "energy", "params", "import", path, "--db", other)
	if !strings.Contains(out, "Imported model") {
		t.Fatalf("unexpected import output %q", out)
	}
	out = run(t, "energy", "predict", "--db", other, "--sleep", "8", "--readiness", "92", "--no-record", "--format", "json")
	var pred energy.Prediction
	envelope(t, out, &pred)
	if pred.ModelVersion != energy.ModelVersion {
		t.Errorf("imported model should predict, got %+v", pred)
	}
}

func TestConfigGetJSON(t *testing.T) {
	sandbox(t)
	out := run(t, "config", "get", "--format", "json")
	var got struct {
		WindowDays int    `json:"window_days"`
		ConfigFile string `json:"config_file"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding config: %v\n%s", err, out)
	}
	if got.WindowDays != config.DefaultWindowDays || got.ConfigFile != "(not found)" {
		t.Errorf("unexpected config %+v", got)
	}
}
