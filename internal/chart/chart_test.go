package chart_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/lifeos/internal/chart"
	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/series"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// daily builds consecutive dates starting at 2024-01-01 (a Monday) and one
// sample per value. NaN values become absent samples.
func daily(values ...float64) ([]time.Time, []series.Sample) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, len(values))
	samples := make([]series.Sample, len(values))
	for i, v := range values {
		dates[i] = start.AddDate(0, 0, i)
		if !math.IsNaN(v) {
			samples[i] = series.Present(v)
		}
	}
	return dates, samples
}

// ─── Bar tests ────────────────────────────────────────────────────────────────

func TestBarBasic(t *testing.T) {
	items := []chart.BarItem{
		{Label: "Mon", Value: 7.0, N: 4},
		{Label: "Tue", Value: 7.2, N: 4},
		{Label: "Sat", Value: 8.5, N: 3},
	}
	var buf strings.Builder
	if err := chart.Bar(&buf, "sleep_duration by weekday", items, chart.BarOptions{Width: 60}); err != nil {
		t.Fatalf("Bar returned error: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "sleep_duration by weekday") {
		t.Error("output missing title")
	}
	lines := nonEmptyLines(out)
	if len(lines) != 4 { // 1 header + 3 bars
		t.Errorf("expected 4 lines, got %d:\n%s", len(lines), out)
	}
	for _, line := range lines[1:] {
		if !strings.Contains(line, "█") {
			t.Errorf("bar line missing block character: %q", line)
		}
	}
	if !strings.Contains(out, "(n=3)") {
		t.Error("expected sample count label")
	}
}

func TestBarLongestIsMax(t *testing.T) {
	items := []chart.BarItem{
		{Label: "Mon", Value: 2},
		{Label: "Tue", Value: 10},
	}
	var buf strings.Builder
	if err := chart.Bar(&buf, "T", items, chart.BarOptions{Width: 40}); err != nil {
		t.Fatal(err)
	}
	lines := nonEmptyLines(buf.String())
	mon := strings.Count(lines[1], "█")
	tue := strings.Count(lines[2], "█")
	if tue <= mon {
		t.Errorf("expected larger value to draw longer bar: mon=%d tue=%d", mon, tue)
	}
}

func TestBarAllNaN(t *testing.T) {
	items := []chart.BarItem{{Label: "Mon", Value: math.NaN()}}
	var buf strings.Builder
	err := chart.Bar(&buf, "TEST", items, chart.BarOptions{Width: 60})
	if err == nil {
		t.Fatal("expected error for all-NaN input, got nil")
	}
	if !strings.Contains(err.Error(), "no values") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestBarNegativeValues(t *testing.T) {
	items := []chart.BarItem{
		{Label: "Mon", Value: 2.9},
		{Label: "Tue", Value: -3.4},
		{Label: "Wed", Value: 5.7},
	}
	var buf strings.Builder
	if err := chart.Bar(&buf, "change", items, chart.BarOptions{Width: 80}); err != nil {
		t.Fatalf("Bar returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "│") {
		t.Error("bidirectional bar missing zero-line │ character")
	}
}

func TestBarFlatSeries(t *testing.T) {
	items := []chart.BarItem{{Label: "Mon", Value: 5}, {Label: "Tue", Value: 5}}
	var buf strings.Builder
	if err := chart.Bar(&buf, "TEST", items, chart.BarOptions{Width: 60}); err != nil {
		t.Fatalf("Bar with flat series returned error: %v", err)
	}
}

func TestWeekdayBars(t *testing.T) {
	var records []model.MetricRecord
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) // Monday
	for i := 0; i < 14; i++ {
		d := start.AddDate(0, 0, i)
		v := 7.0
		if d.Weekday() == time.Saturday {
			v = 9.0
		}
		if d.Weekday() == time.Wednesday {
			continue
		}
		records = append(records, model.MetricRecord{Date: d, Type: model.TypeSleep, Value: v})
	}
	bars := chart.WeekdayBars(series.Organize(records), series.SleepDuration)
	if len(bars) != 6 {
		t.Fatalf("expected 6 weekdays (Wednesday missing), got %d", len(bars))
	}
	if bars[0].Label != "Mon" {
		t.Errorf("expected Monday first, got %s", bars[0].Label)
	}
	for _, b := range bars {
		if b.N != 2 {
			t.Errorf("%s: expected n=2, got %d", b.Label, b.N)
		}
		if b.Label == "Sat" && b.Value != 9 {
			t.Errorf("Sat: expected 9, got %v", b.Value)
		}
	}
}

// ─── Plot tests ───────────────────────────────────────────────────────────────

func TestPlotBasic(t *testing.T) {
	dates, samples := daily(7.1, 6.8, 7.5, 8.0, 6.2, 8.4, 8.9, 7.0, 7.2, 6.9)
	var buf strings.Builder
	err := chart.Plot(&buf, "sleep_duration", dates, samples, chart.PlotOptions{Width: 80, Height: 8})
	if err != nil {
		t.Fatalf("Plot returned error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "sleep_duration") {
		t.Error("output missing variable name")
	}
	if !strings.Contains(out, "2024-01-01") {
		t.Error("output missing start date")
	}
	if !strings.Contains(out, "└") {
		t.Error("output missing bottom-left corner └")
	}
}

func TestPlotLineCount(t *testing.T) {
	dates, samples := daily(1, 2, 3, 4, 5, 6)
	height := 8
	var buf strings.Builder
	if err := chart.Plot(&buf, "TEST", dates, samples, chart.PlotOptions{Width: 80, Height: height}); err != nil {
		t.Fatalf("Plot returned error: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// header + height data rows + bottom axis + x labels
	if want := height + 3; len(lines) != want {
		t.Errorf("expected %d lines, got %d:\n%s", want, len(lines), buf.String())
	}
}

func TestPlotTitleOverride(t *testing.T) {
	dates, samples := daily(1, 2, 3)
	var buf strings.Builder
	_ = chart.Plot(&buf, "readiness", dates, samples, chart.PlotOptions{Width: 60, Height: 6, Title: "Custom Title"})
	first := strings.Split(buf.String(), "\n")[0]
	if !strings.Contains(first, "Custom Title") {
		t.Error("custom title not present in header")
	}
	if strings.Contains(first, "readiness") {
		t.Error("variable name should be replaced by custom title")
	}
}

func TestPlotAllAbsent(t *testing.T) {
	dates, samples := daily(math.NaN(), math.NaN(), math.NaN())
	var buf strings.Builder
	err := chart.Plot(&buf, "TEST", dates, samples, chart.PlotOptions{Width: 80, Height: 8})
	if err == nil {
		t.Fatal("expected error for all-absent input, got nil")
	}
	if !strings.Contains(err.Error(), "present values") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestPlotLengthMismatch(t *testing.T) {
	dates, samples := daily(1, 2, 3)
	var buf strings.Builder
	if err := chart.Plot(&buf, "TEST", dates[:2], samples, chart.PlotOptions{}); err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}

func TestPlotGaps(t *testing.T) {
	dates, samples := daily(3.5, math.NaN(), math.NaN(), 4.1, 4.5)
	var buf strings.Builder
	if err := chart.Plot(&buf, "TEST", dates, samples, chart.PlotOptions{Width: 60, Height: 6}); err != nil {
		t.Fatalf("Plot with gaps returned error: %v", err)
	}
}

func TestPlotFlatSeries(t *testing.T) {
	dates, samples := daily(5, 5, 5, 5, 5)
	var buf strings.Builder
	if err := chart.Plot(&buf, "TEST", dates, samples, chart.PlotOptions{Width: 60, Height: 6}); err != nil {
		t.Fatalf("Plot with flat series returned error: %v", err)
	}
}

func TestPlotWidthRespected(t *testing.T) {
	dates, samples := daily(1, 2, 3, 4, 5, 6, 7, 8)
	width := 60
	var buf strings.Builder
	_ = chart.Plot(&buf, "TEST", dates, samples, chart.PlotOptions{Width: width, Height: 6})
	for i, line := range strings.Split(buf.String(), "\n")[1:] {
		if n := len([]rune(line)); n > width+2 {
			t.Errorf("line %d exceeds width %d: runes=%d %q", i, width, n, line)
		}
	}
}

func TestPlotXAxisLabels(t *testing.T) {
	vals := make([]float64, 31)
	for i := range vals {
		vals[i] = float64(i%5) + 1
	}
	dates, samples := daily(vals...)
	var buf strings.Builder
	_ = chart.Plot(&buf, "TEST", dates, samples, chart.PlotOptions{Width: 80, Height: 8})
	out := buf.String()
	if !strings.Contains(out, "01-01") {
		t.Error("x-axis missing start label 01-01")
	}
	if !strings.Contains(out, "01-31") {
		t.Error("x-axis missing end label 01-31")
	}
}

// ─── Utilities ────────────────────────────────────────────────────────────────

// nonEmptyLines returns lines with at least one non-space character.
func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
