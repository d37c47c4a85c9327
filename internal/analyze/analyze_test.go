package analyze_test

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/lifeos/internal/analyze"
	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/pattern"
	"github.com/derickschaefer/lifeos/internal/series"
	"github.com/derickschaefer/lifeos/internal/stats"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// monday is the first day of every generated history.
var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// sleepDays builds one sleep record per day starting on a Monday.
func sleepDays(values ...float64) []model.MetricRecord {
	out := make([]model.MetricRecord, len(values))
	for i, v := range values {
		out[i] = model.MetricRecord{Date: monday.AddDate(0, 0, i), Type: model.TypeSleep, Value: v}
	}
	return out
}

// samples wraps values as samples; NaN becomes absent.
func samples(values ...float64) []series.Sample {
	out := make([]series.Sample, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			out[i] = series.Present(v)
		}
	}
	return out
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func isNaN(v float64) bool { return math.IsNaN(v) }

func find(ps []pattern.Pattern, typ pattern.Type, vars ...string) (pattern.Pattern, bool) {
	probe := pattern.Pattern{Type: typ, Variables: vars}
	for _, p := range ps {
		if p.Key() == probe.Key() {
			return p, true
		}
	}
	return pattern.Pattern{}, false
}

func newAnalyzer() *analyze.Analyzer {
	return analyze.New(analyze.DefaultParams(), nil)
}

// ─── Params ───────────────────────────────────────────────────────────────────

func TestDefaultParamsValid(t *testing.T) {
	if err := analyze.DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
}

func TestParamsValidateRejects(t *testing.T) {
	cases := map[string]func(*analyze.Params){
		"alpha zero":      func(p *analyze.Params) { p.SignificanceLevel = 0 },
		"alpha one":       func(p *analyze.Params) { p.SignificanceLevel = 1 },
		"tiny window":     func(p *analyze.Params) { p.WindowSize = 1 },
		"bands unordered": func(p *analyze.Params) { p.StrongCorrelation = 0.2 },
		"weekdays > 7":    func(p *analyze.Params) { p.MinWeekdays = 8 },
	}
	for name, mutate := range cases {
		p := analyze.DefaultParams()
		mutate(&p)
		if err := p.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

// ─── Summarize ────────────────────────────────────────────────────────────────

func TestSummarizeBasicCounts(t *testing.T) {
	s := analyze.Summarize("sleep_duration", samples(1, 2, math.NaN(), 4, 5))
	if s.Variable != "sleep_duration" {
		t.Errorf("Variable: got %q", s.Variable)
	}
	if s.Count != 5 || s.Missing != 1 {
		t.Errorf("Count/Missing: got %d/%d", s.Count, s.Missing)
	}
	if !approxEqual(s.MissingPct, 20, 1e-9) {
		t.Errorf("MissingPct: expected 20, got %g", s.MissingPct)
	}
}

func TestSummarizeMoments(t *testing.T) {
	s := analyze.Summarize("x", samples(1, 2, 3, 4, 5))
	if !approxEqual(s.Mean, 3, 1e-9) {
		t.Errorf("Mean: expected 3, got %g", s.Mean)
	}
	if !approxEqual(s.Std, math.Sqrt(2.5), 1e-9) {
		t.Errorf("Std: expected %g, got %g", math.Sqrt(2.5), s.Std)
	}
	if s.Median != 3 || s.P25 != 2 || s.P75 != 4 {
		t.Errorf("percentiles: got p25=%g median=%g p75=%g", s.P25, s.Median, s.P75)
	}
	if !approxEqual(s.Skew, 0, 1e-9) {
		t.Errorf("Skew: expected 0 for symmetric data, got %g", s.Skew)
	}
}

func TestSummarizeFirstLastChange(t *testing.T) {
	s := analyze.Summarize("x", samples(math.NaN(), 4, 6, 5, math.NaN()))
	if s.First != 4 || s.Last != 5 {
		t.Errorf("First/Last: got %g/%g", s.First, s.Last)
	}
	if !approxEqual(s.ChangePct, 25, 1e-9) {
		t.Errorf("ChangePct: expected 25, got %g", s.ChangePct)
	}
}

func TestSummarizeChangeZeroFirst(t *testing.T) {
	s := analyze.Summarize("x", samples(0, 1, 2))
	if !isNaN(s.ChangePct) {
		t.Errorf("ChangePct from zero should be NaN, got %g", s.ChangePct)
	}
}

func TestSummarizeAllAbsent(t *testing.T) {
	s := analyze.Summarize("x", samples(math.NaN(), math.NaN()))
	if s.Missing != 2 || !isNaN(s.Mean) || !isNaN(s.Median) {
		t.Errorf("expected NaN stats for all-absent input, got %+v", s)
	}
}

func TestSummaryJSONWritesNaNAsNull(t *testing.T) {
	data, err := json.Marshal(analyze.Summarize("x", samples(0, math.NaN(), 3)))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]interface{}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back["mean"] != 1.5 || back["count"] != 3.0 {
		t.Errorf("unexpected values %v", back)
	}
	if v, ok := back["change_pct"]; !ok || v != nil {
		t.Errorf("change_pct from zero should be null, got %v", v)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := analyze.Summarize("x", nil)
	if s.Count != 0 || s.Missing != 0 {
		t.Errorf("expected zero counts, got %+v", s)
	}
}

// ─── Correlation ──────────────────────────────────────────────────────────────

func TestCorrelatePerfectLinear(t *testing.T) {
	var records []model.MetricRecord
	for i := 0; i < 10; i++ {
		d := monday.AddDate(0, 0, i)
		x := 6 + float64(i%5)*0.5
		records = append(records,
			model.MetricRecord{Date: d, Type: model.TypeSleep, Value: x},
			model.MetricRecord{Date: d, Type: model.TypeReadiness, Value: 2 * x},
		)
	}
	o := series.Organize(records)
	p, err := newAnalyzer().Correlate(o, analyze.Hypotheses[0])
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if math.Abs(p.Strength) <= 0.99 {
		t.Errorf("expected |r| > 0.99, got %g", p.Strength)
	}
	if p.Name != "Strong positive correlation: sleep duration → readiness score" {
		t.Errorf("unexpected name %q", p.Name)
	}
	if !strings.HasPrefix(p.Description, "Higher sleep duration correlates with higher readiness score (r=") {
		t.Errorf("unexpected description %q", p.Description)
	}
	if p.SampleSize != 10 {
		t.Errorf("SampleSize: expected 10, got %d", p.SampleSize)
	}
	d, ok := p.Details.(pattern.CorrelationDetails)
	if !ok {
		t.Fatalf("expected CorrelationDetails, got %T", p.Details)
	}
	if d.Hypothesis != analyze.Hypotheses[0].Label {
		t.Errorf("hypothesis label not carried: %q", d.Hypothesis)
	}
	if !approxEqual(p.Confidence, 1-d.PValue, 1e-12) {
		t.Errorf("confidence should be 1-p")
	}
}

func TestCorrelateNegative(t *testing.T) {
	var records []model.MetricRecord
	for i := 0; i < 8; i++ {
		d := monday.AddDate(0, 0, i)
		x := float64(i)
		records = append(records,
			model.MetricRecord{Date: d, Type: model.TypeSleep, Value: 5 + x},
			model.MetricRecord{Date: d, Type: model.TypeActivity, Value: 500 - 20*x},
		)
	}
	p, err := newAnalyzer().Correlate(series.Organize(records), analyze.Hypotheses[1])
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if p.Strength >= 0 {
		t.Errorf("expected negative strength, got %g", p.Strength)
	}
	if !strings.Contains(p.Description, "lower activity") {
		t.Errorf("description should mention lower activity: %q", p.Description)
	}
}

func TestCorrelateTooFewPairs(t *testing.T) {
	var records []model.MetricRecord
	for i := 0; i < 6; i++ {
		d := monday.AddDate(0, 0, i)
		records = append(records,
			model.MetricRecord{Date: d, Type: model.TypeSleep, Value: float64(i)},
			model.MetricRecord{Date: d, Type: model.TypeReadiness, Value: float64(i)},
		)
	}
	_, err := newAnalyzer().Correlate(series.Organize(records), analyze.Hypotheses[0])
	if !errors.Is(err, stats.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestCorrelateUncorrelatedNotPromoted(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	ys := []float64{5, 3, 6, 2, 6, 3, 5, 4}
	var records []model.MetricRecord
	for i := range xs {
		d := monday.AddDate(0, 0, i)
		records = append(records,
			model.MetricRecord{Date: d, Type: model.TypeSleep, Value: xs[i]},
			model.MetricRecord{Date: d, Type: model.TypeReadiness, Value: ys[i]},
		)
	}
	_, err := newAnalyzer().Correlate(series.Organize(records), analyze.Hypotheses[0])
	if !errors.Is(err, analyze.ErrNotPromoted) {
		t.Errorf("expected ErrNotPromoted, got %v", err)
	}
}

// ─── Trend ────────────────────────────────────────────────────────────────────

func TestTrendImproving(t *testing.T) {
	vals := make([]float64, 14)
	for i := range vals {
		vals[i] = 6 + 0.1*float64(i)
	}
	p, err := newAnalyzer().Trend(series.Organize(sleepDays(vals...)), series.SleepDuration)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if p.Name != "Improving sleep duration" {
		t.Errorf("unexpected name %q", p.Name)
	}
	d := p.Details.(pattern.TrendDetails)
	if d.Direction != analyze.DirectionIncreasing {
		t.Errorf("Direction: got %q", d.Direction)
	}
	// 6.0 → 7.3 over the fitted line
	if !approxEqual(d.ChangePercent, 1.3/6*100, 1e-6) {
		t.Errorf("ChangePercent: expected %g, got %g", 1.3/6*100, d.ChangePercent)
	}
	if !approxEqual(p.Strength, d.ChangePercent/100, 1e-12) {
		t.Errorf("Strength should be change/100")
	}
	if !approxEqual(p.Confidence, 1, 1e-9) {
		t.Errorf("Confidence should equal R² = 1, got %g", p.Confidence)
	}
	if !p.Actionable {
		t.Error("increasing trend should be actionable")
	}
}

func TestTrendDeclining(t *testing.T) {
	vals := make([]float64, 10)
	for i := range vals {
		vals[i] = 80 - 2*float64(i)
	}
	p, err := newAnalyzer().Trend(series.Organize(sleepDays(vals...)), series.SleepDuration)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if !strings.HasPrefix(p.Name, "Declining") || p.Strength >= 0 {
		t.Errorf("expected declining trend, got %q strength %g", p.Name, p.Strength)
	}
}

func TestTrendTooFew(t *testing.T) {
	_, err := newAnalyzer().Trend(series.Organize(sleepDays(1, 2, 3, 4, 5, 6)), series.SleepDuration)
	if !errors.Is(err, stats.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestTrendSmallChangeNotPromoted(t *testing.T) {
	vals := make([]float64, 10)
	for i := range vals {
		vals[i] = 100 + 0.1*float64(i) // <1% change
	}
	_, err := newAnalyzer().Trend(series.Organize(sleepDays(vals...)), series.SleepDuration)
	if !errors.Is(err, analyze.ErrNotPromoted) {
		t.Errorf("expected ErrNotPromoted, got %v", err)
	}
}

// ─── Day of week ──────────────────────────────────────────────────────────────

// weekendHistory is 28 days where weekend sleep is 8.5h and weekday sleep 7h,
// with readiness tracking sleep exactly.
func weekendHistory() []model.MetricRecord {
	var records []model.MetricRecord
	for i := 0; i < 28; i++ {
		d := monday.AddDate(0, 0, i)
		sleep := 7.0
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			sleep = 8.5
		}
		records = append(records,
			model.MetricRecord{Date: d, Type: model.TypeSleep, Value: sleep},
			model.MetricRecord{Date: d, Type: model.TypeReadiness, Value: 60 + 8*(sleep-7)},
		)
	}
	return records
}

func TestDayOfWeekWeekendEffect(t *testing.T) {
	p, err := newAnalyzer().DayOfWeek(series.Organize(weekendHistory()), series.SleepDuration)
	if err != nil {
		t.Fatalf("DayOfWeek: %v", err)
	}
	d := p.Details.(pattern.DayOfWeekDetails)
	// Saturday and Sunday tie; the earlier weekday wins.
	if d.BestDay != "Saturday" || d.WorstDay != "Monday" {
		t.Errorf("best/worst: got %s/%s", d.BestDay, d.WorstDay)
	}
	if !approxEqual(d.DifferencePercent, 1.5/7*100, 1e-9) {
		t.Errorf("DifferencePercent: expected %g, got %g", 1.5/7*100, d.DifferencePercent)
	}
	if d.PValue != 0 {
		t.Errorf("zero-spread groups with different means should give p=0, got %g", d.PValue)
	}
	if p.Confidence != 0.8 {
		t.Errorf("Confidence: expected 0.8, got %g", p.Confidence)
	}
	if p.SampleSize != 28 {
		t.Errorf("SampleSize: expected 28, got %d", p.SampleSize)
	}
	if len(d.DayAverages) != 7 {
		t.Errorf("expected 7 day averages, got %d", len(d.DayAverages))
	}
	if p.Name != "Saturday vs Monday: sleep duration" {
		t.Errorf("unexpected name %q", p.Name)
	}
}

func TestDayOfWeekTooFewWeekdays(t *testing.T) {
	// Only Mondays and Tuesdays have two samples each.
	var records []model.MetricRecord
	for _, off := range []int{0, 1, 7, 8} {
		records = append(records, model.MetricRecord{Date: monday.AddDate(0, 0, off), Type: model.TypeSleep, Value: float64(off)})
	}
	_, err := newAnalyzer().DayOfWeek(series.Organize(records), series.SleepDuration)
	if !errors.Is(err, stats.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

// ─── Window change ────────────────────────────────────────────────────────────

func TestWindowChangeImprovement(t *testing.T) {
	vals := []float64{
		6.0, 6.2, 5.9, 6.1, 6.0, 5.8, 6.1,
		7.5, 7.4, 7.6, 7.7, 7.3, 7.5, 7.6,
	}
	p, err := newAnalyzer().WindowChange(series.Organize(sleepDays(vals...)), series.SleepDuration)
	if err != nil {
		t.Fatalf("WindowChange: %v", err)
	}
	if p.Name != "Recent improvement in sleep duration" {
		t.Errorf("unexpected name %q", p.Name)
	}
	d := p.Details.(pattern.WindowDetails)
	if d.WindowSize != 7 || p.SampleSize != 14 {
		t.Errorf("window/sample size: got %d/%d", d.WindowSize, p.SampleSize)
	}
	if d.ChangePercent <= 10 {
		t.Errorf("expected change > 10%%, got %g", d.ChangePercent)
	}
}

func TestWindowChangeTooShort(t *testing.T) {
	_, err := newAnalyzer().WindowChange(series.Organize(sleepDays(1, 2, 3, 4, 5, 6, 7, 8)), series.SleepDuration)
	if !errors.Is(err, stats.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

// ─── AnalyzeAll ───────────────────────────────────────────────────────────────

func TestAnalyzeAllBelowMinDays(t *testing.T) {
	if got := newAnalyzer().AnalyzeAll(sleepDays(1, 2, 3, 4, 5, 6)); got != nil {
		t.Errorf("expected no patterns below min_days, got %d", len(got))
	}
}

func TestAnalyzeAllConstantSeries(t *testing.T) {
	var records []model.MetricRecord
	for i := 0; i < 30; i++ {
		d := monday.AddDate(0, 0, i)
		records = append(records,
			model.MetricRecord{Date: d, Type: model.TypeSleep, Value: 7, Metadata: map[string]float64{model.MetaDeepSleepHours: 1.5}},
			model.MetricRecord{Date: d, Type: model.TypeReadiness, Value: 70},
			model.MetricRecord{Date: d, Type: model.TypeActivity, Value: 300},
		)
	}
	if got := newAnalyzer().AnalyzeAll(records); len(got) != 0 {
		t.Errorf("constant series should yield no patterns, got %d: %+v", len(got), got)
	}
}

func TestAnalyzeAllWeekendHistory(t *testing.T) {
	ps := newAnalyzer().AnalyzeAll(weekendHistory())

	if _, ok := find(ps, pattern.TypeDayOfWeek, series.SleepDuration); !ok {
		t.Error("expected a day-of-week pattern for sleep duration")
	}
	if _, ok := find(ps, pattern.TypeDayOfWeek, series.Readiness); !ok {
		t.Error("expected a day-of-week pattern for readiness")
	}
	corr, ok := find(ps, pattern.TypeCorrelation, series.SleepDuration, series.Readiness)
	if !ok {
		t.Fatal("expected sleep → readiness correlation")
	}
	if corr.Strength < 0.99 {
		t.Errorf("expected near-perfect correlation, got %g", corr.Strength)
	}
	// identical weeks leave nothing for the sliding window to find
	if _, ok := find(ps, pattern.TypeWindowChange, series.SleepDuration); ok {
		t.Error("unexpected window change for repeating weeks")
	}

	seen := make(map[string]bool)
	for i, p := range ps {
		if err := p.Validate(); err != nil {
			t.Errorf("pattern %d invalid: %v", i, err)
		}
		if seen[p.Key()] {
			t.Errorf("duplicate key %s", p.Key())
		}
		seen[p.Key()] = true
		if i > 0 && ps[i-1].Confidence < p.Confidence {
			t.Errorf("patterns not ranked by confidence at %d", i)
		}
	}
}

func TestAnalyzeAllIgnoresNaNRecords(t *testing.T) {
	records := weekendHistory()
	records = append(records, model.MetricRecord{Date: monday.AddDate(0, 0, 40), Type: model.TypeSleep, Value: math.NaN()})
	a := newAnalyzer().AnalyzeAll(weekendHistory())
	b := newAnalyzer().AnalyzeAll(records)
	if len(a) != len(b) {
		t.Errorf("NaN record changed the result: %d vs %d patterns", len(a), len(b))
	}
}
