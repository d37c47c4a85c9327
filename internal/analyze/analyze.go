// Package analyze turns organized daily metrics into ranked pattern claims.
// Four engines run over the same organized view: correlation, trend,
// day-of-week and sliding-window. Each candidate either fully qualifies as a
// pattern or is skipped with a reason; no engine ever fails the whole run.
package analyze

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"

	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/pattern"
	"github.com/derickschaefer/lifeos/internal/series"
	"github.com/derickschaefer/lifeos/internal/stats"
)

// ErrNotPromoted marks a candidate whose statistic was computed but fell short
// of the significance or effect-size thresholds.
var ErrNotPromoted = errors.New("below promotion thresholds")

// ─── Params ───────────────────────────────────────────────────────────────────

// Params holds every detection threshold. The zero value is not useful; start
// from DefaultParams and override fields.
type Params struct {
	MinDays               int     `json:"min_days"`
	MinSamplesCorrelation int     `json:"min_samples_correlation"`
	MinSamplesTrend       int     `json:"min_samples_trend"`
	MinSamplesPerDay      int     `json:"min_samples_per_day"`
	MinWeekdays           int     `json:"min_weekdays"`
	SignificanceLevel     float64 `json:"significance_level"`
	WeakCorrelation       float64 `json:"weak_correlation"`
	ModerateCorrelation   float64 `json:"moderate_correlation"`
	StrongCorrelation     float64 `json:"strong_correlation"`
	MinTrendChangePct     float64 `json:"min_trend_change_pct"`
	MinDayDiffPct         float64 `json:"min_day_diff_pct"`
	WindowSize            int     `json:"window_size"`
	MinWindowChangePct    float64 `json:"min_window_change_pct"`
}

// DefaultParams returns the standard detection thresholds.
func DefaultParams() Params {
	return Params{
		MinDays:               7,
		MinSamplesCorrelation: 7,
		MinSamplesTrend:       7,
		MinSamplesPerDay:      2,
		MinWeekdays:           3,
		SignificanceLevel:     0.05,
		WeakCorrelation:       0.3,
		ModerateCorrelation:   0.5,
		StrongCorrelation:     0.7,
		MinTrendChangePct:     5,
		MinDayDiffPct:         10,
		WindowSize:            7,
		MinWindowChangePct:    10,
	}
}

// Validate checks that the thresholds are usable.
func (p Params) Validate() error {
	switch {
	case p.SignificanceLevel <= 0 || p.SignificanceLevel >= 1:
		return fmt.Errorf("significance_level must be in (0,1), got %g", p.SignificanceLevel)
	case p.MinSamplesCorrelation < 3:
		return fmt.Errorf("min_samples_correlation must be >= 3, got %d", p.MinSamplesCorrelation)
	case p.MinSamplesTrend < 3:
		return fmt.Errorf("min_samples_trend must be >= 3, got %d", p.MinSamplesTrend)
	case p.MinSamplesPerDay < 2:
		return fmt.Errorf("min_samples_per_day must be >= 2, got %d", p.MinSamplesPerDay)
	case p.MinWeekdays < 2 || p.MinWeekdays > 7:
		return fmt.Errorf("min_weekdays must be in [2,7], got %d", p.MinWeekdays)
	case p.WindowSize < 2:
		return fmt.Errorf("window_size must be >= 2, got %d", p.WindowSize)
	case !(p.WeakCorrelation <= p.ModerateCorrelation && p.ModerateCorrelation <= p.StrongCorrelation):
		return fmt.Errorf("correlation bands must be ordered weak <= moderate <= strong")
	}
	return nil
}

// ─── Analyzer ─────────────────────────────────────────────────────────────────

// Analyzer runs the detection engines with a fixed set of thresholds.
// It holds no state between runs and may be shared.
type Analyzer struct {
	params Params
	log    *slog.Logger
}

// New builds an Analyzer. A nil logger discards all output.
func New(params Params, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Analyzer{params: params, log: logger}
}

// Params returns the analyzer's thresholds.
func (a *Analyzer) Params() Params { return a.params }

// AnalyzeAll organizes records and runs every engine. Fewer than MinDays
// distinct dates yields no patterns. The result is deduplicated and ranked.
func (a *Analyzer) AnalyzeAll(records []model.MetricRecord) []pattern.Pattern {
	return a.Analyze(series.Organize(records))
}

// Analyze runs every engine over an already organized view.
func (a *Analyzer) Analyze(o *series.Organized) []pattern.Pattern {
	if o.Len() < a.params.MinDays {
		a.log.Debug("not enough days for analysis", "days", o.Len(), "min_days", a.params.MinDays)
		return nil
	}

	var candidates []pattern.Pattern
	candidates = append(candidates, a.Correlations(o)...)
	candidates = append(candidates, a.Trends(o)...)
	candidates = append(candidates, a.DayOfWeekPatterns(o)...)
	candidates = append(candidates, a.WindowChanges(o)...)

	out := pattern.Dedupe(candidates)
	a.log.Info("analysis complete", "days", o.Len(), "candidates", len(candidates), "patterns", len(out))
	return out
}

// skip logs why a candidate was dropped.
func (a *Analyzer) skip(engine string, vars []string, err error) {
	a.log.Debug("candidate skipped", "engine", engine, "variables", vars, "reason", err)
}

// ─── Labels ───────────────────────────────────────────────────────────────────

var labels = map[string]string{
	series.SleepDuration:   "sleep duration",
	series.DeepSleep:       "deep sleep",
	series.REMSleep:        "REM sleep",
	series.SleepEfficiency: "sleep efficiency",
	series.SleepScore:      "sleep score",
	series.Readiness:       "readiness",
	series.Activity:        "activity",
	series.Energy:          "energy",
}

// correlationLabels name scored variables more fully in correlation text.
var correlationLabels = map[string]string{
	series.Readiness: "readiness score",
	series.Activity:  "activity score",
	series.Energy:    "energy level",
}

// Label returns the human-readable name of a variable.
func Label(name string) string {
	if l, ok := labels[name]; ok {
		return l
	}
	return name
}

// CorrelationLabel is Label with the longer names used in correlation text.
func CorrelationLabel(name string) string {
	if l, ok := correlationLabels[name]; ok {
		return l
	}
	return Label(name)
}

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for one organized variable.
type Summary struct {
	Variable   string  `json:"variable"`
	Count      int     `json:"count"`       // total days
	Missing    int     `json:"missing"`     // absent days
	MissingPct float64 `json:"missing_pct"` // percent absent
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	P25        float64 `json:"p25"`
	Median     float64 `json:"median"`
	P75        float64 `json:"p75"`
	Max        float64 `json:"max"`
	Skew       float64 `json:"skew"`
	First      float64 `json:"first"`      // first present value
	Last       float64 `json:"last"`       // last present value
	Change     float64 `json:"change"`     // Last - First
	ChangePct  float64 `json:"change_pct"` // (Last-First)/First * 100
}

// Summarize computes descriptive statistics over samples. Absent samples are
// counted but excluded from every numeric field. Fields that cannot be
// computed are NaN.
func Summarize(variable string, samples []series.Sample) Summary {
	s := Summary{Variable: variable, Count: len(samples)}
	if len(samples) == 0 {
		return s
	}

	var vals []float64
	for _, smp := range samples {
		if smp.OK {
			vals = append(vals, smp.Value)
		} else {
			s.Missing++
		}
	}
	s.MissingPct = float64(s.Missing) / float64(s.Count) * 100
	if len(vals) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Max = nan, nan, nan, nan
		s.Median, s.P25, s.P75, s.Skew = nan, nan, nan, nan
		s.First, s.Last, s.Change, s.ChangePct = nan, nan, nan, nan
		return s
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = stats.Mean(vals)
	s.Std = stats.StdDev(vals)
	s.Median = percentile(sorted, 50)
	s.P25 = percentile(sorted, 25)
	s.P75 = percentile(sorted, 75)
	s.Skew = skewness(vals, s.Mean, s.Std)

	s.First = vals[0]
	s.Last = vals[len(vals)-1]
	s.Change = s.Last - s.First
	if s.First != 0 {
		s.ChangePct = s.Change / math.Abs(s.First) * 100
	} else {
		s.ChangePct = math.NaN()
	}
	return s
}

// MarshalJSON writes fields that could not be computed as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	num := func(v float64) *float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return json.Marshal(struct {
		Variable   string   `json:"variable"`
		Count      int      `json:"count"`
		Missing    int      `json:"missing"`
		MissingPct *float64 `json:"missing_pct"`
		Mean       *float64 `json:"mean"`
		Std        *float64 `json:"std"`
		Min        *float64 `json:"min"`
		P25        *float64 `json:"p25"`
		Median     *float64 `json:"median"`
		P75        *float64 `json:"p75"`
		Max        *float64 `json:"max"`
		Skew       *float64 `json:"skew"`
		First      *float64 `json:"first"`
		Last       *float64 `json:"last"`
		Change     *float64 `json:"change"`
		ChangePct  *float64 `json:"change_pct"`
	}{
		s.Variable, s.Count, s.Missing, num(s.MissingPct),
		num(s.Mean), num(s.Std), num(s.Min), num(s.P25), num(s.Median), num(s.P75), num(s.Max),
		num(s.Skew), num(s.First), num(s.Last), num(s.Change), num(s.ChangePct),
	})
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func skewness(vals []float64, mean, std float64) float64 {
	n := float64(len(vals))
	if n < 3 || std == 0 {
		return 0
	}
	var s float64
	for _, v := range vals {
		d := (v - mean) / std
		s += d * d * d
	}
	return s * n / ((n - 1) * (n - 2))
}

// percentChange returns (to-from)/from*100, and false when from is not positive.
func percentChange(from, to float64) (float64, bool) {
	if from <= 0 {
		return 0, false
	}
	return (to - from) / from * 100, true
}
