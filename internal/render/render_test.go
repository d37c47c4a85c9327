package render

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/lifeos/internal/energy"
	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/pattern"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func records() *model.Result {
	return &model.Result{
		Kind: model.KindRecords,
		Data: []model.MetricRecord{
			{Date: day, Type: model.TypeSleep, Value: 7.5, Source: "oura",
				Metadata: map[string]float64{model.MetaREMSleepHours: 1.5, model.MetaDeepSleepHours: 1.2}},
			{Date: day.AddDate(0, 0, 1), Type: model.TypeSleep, Value: math.NaN()},
		},
	}
}

func render(t *testing.T, result *model.Result, format string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Render(&buf, result, format); err != nil {
		t.Fatalf("render %s: %v", format, err)
	}
	return buf.String()
}

func TestFormatValue(t *testing.T) {
	cases := map[float64]string{4: "4.0", 3.4: "3.4", 0.12344: "0.1234", -2.5: "-2.5"}
	for v, want := range cases {
		if got := formatValue(v); got != want {
			t.Errorf("formatValue(%g) = %q, want %q", v, got, want)
		}
	}
	if got := formatValue(math.NaN()); got != "." {
		t.Errorf("NaN should render as '.', got %q", got)
	}
}

func TestRecordsCSV(t *testing.T) {
	out := render(t, records(), FormatCSV)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %q", out)
	}
	if lines[0] != "date,type,value,source,metadata" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "2024-03-01,sleep,7.5,oura,deep_sleep_hours=1.2 rem_sleep_hours=1.5" {
		t.Errorf("unexpected row %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "2024-03-02,sleep,.,") {
		t.Errorf("missing value should render as '.', got %q", lines[2])
	}
}

func TestRecordsTSV(t *testing.T) {
	out := render(t, records(), FormatTSV)
	if !strings.HasPrefix(out, "date\ttype\tvalue\t") {
		t.Errorf("expected tab-separated header, got %q", out)
	}
}

func TestRecordsJSONLWritesNull(t *testing.T) {
	out := render(t, records(), FormatJSONL)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one line per record, got %q", out)
	}
	if !strings.Contains(lines[1], `"value":null`) {
		t.Errorf("NaN should encode as null, got %q", lines[1])
	}
	if !strings.Contains(lines[0], `"date":"2024-03-01"`) {
		t.Errorf("dates should be calendar days, got %q", lines[0])
	}
}

func TestPatternsMarkdown(t *testing.T) {
	result := &model.Result{
		Kind: model.KindPatterns,
		Data: []pattern.Pattern{{
			Name:        "sleep_readiness",
			Description: "Sleep | readiness move together",
			Type:        pattern.TypeCorrelation,
			Variables:   []string{"sleep_duration", "readiness_score"},
			Strength:    0.81,
			Confidence:  0.95,
			SampleSize:  30,
		}},
	}
	out := render(t, result, FormatMD)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, separator and one row, got %q", out)
	}
	if lines[1] != "|--:|---|---|--:|--:|--:|---|" {
		t.Errorf("numeric columns should be right-aligned, got %q", lines[1])
	}
	if !strings.Contains(lines[2], `Sleep \| readiness`) {
		t.Errorf("pipes in cells should be escaped, got %q", lines[2])
	}
	if !strings.Contains(lines[2], "| 0.81 | 0.95 | 30 |") {
		t.Errorf("unexpected row %q", lines[2])
	}
}

func TestTableEmpty(t *testing.T) {
	out := render(t, &model.Result{Data: []pattern.Pattern{}}, FormatTable)
	if strings.TrimSpace(out) != "(no results)" {
		t.Errorf("unexpected empty table %q", out)
	}
}

func TestTableRecords(t *testing.T) {
	out := render(t, records(), FormatTable)
	for _, want := range []string{"DATE", "2024-03-01", "7.5", "oura"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestComparisonWinnerLine(t *testing.T) {
	ml := &energy.Accuracy{Source: energy.SourceML, MAE: 0.5, SampleSize: 4}
	llm := &energy.Accuracy{Source: energy.SourceLLM, MAE: 1.0, SampleSize: 4}

	out := render(t, &model.Result{Data: energy.Comparison{ML: ml, LLM: llm, Winner: "ml", Summary: "ml is 50.0% more accurate"}}, FormatTable)
	if !strings.Contains(out, "Winner: ml (ml is 50.0% more accurate)") {
		t.Errorf("expected winner line:\n%s", out)
	}

	out = render(t, &model.Result{Data: energy.Comparison{LLM: llm}}, FormatTable)
	if !strings.Contains(out, "No winner") {
		t.Errorf("expected no-winner line:\n%s", out)
	}
}

func TestLedgerSortedByDate(t *testing.T) {
	l := energy.Ledger{
		ML:      []energy.Prediction{{Date: day.AddDate(0, 0, 1), Source: energy.SourceML, PredictedEnergy: 6}},
		LLM:     []energy.Prediction{{Date: day, Source: energy.SourceLLM, PredictedEnergy: 7}},
		Actuals: []energy.Actual{{Date: day, Energy: 8}},
	}
	out := render(t, &model.Result{Data: l}, FormatCSV)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %q", out)
	}
	if !strings.HasPrefix(lines[1], "2024-03-01,llm") || !strings.HasPrefix(lines[2], "2024-03-01,actual") ||
		!strings.HasPrefix(lines[3], "2024-03-02,ml") {
		t.Errorf("rows should be ordered by date:\n%s", out)
	}
}

func TestUntabulatedFallsBackToJSON(t *testing.T) {
	out := render(t, &model.Result{Kind: "other", Data: map[string]int{"n": 1}}, FormatTable)
	if !strings.Contains(out, `"n": 1`) {
		t.Errorf("expected JSON fallback, got %q", out)
	}
}

func TestPrintFooter(t *testing.T) {
	var buf bytes.Buffer
	result := &model.Result{Warnings: []string{"thin data"}, Stats: model.ResultStats{Items: 3, DurationMs: 12}}
	PrintFooter(&buf, result, false)
	if buf.String() != "⚠  thin data\n" {
		t.Errorf("unexpected quiet footer %q", buf.String())
	}
	buf.Reset()
	PrintFooter(&buf, result, true)
	if !strings.Contains(buf.String(), "3 items • 12ms") {
		t.Errorf("verbose footer should carry stats, got %q", buf.String())
	}
}
