// Package transform implements stateless operators over one organized daily
// variable. Each operator takes date-aligned samples and returns a new slice;
// absent days stay absent. No side effects, no I/O.
package transform

import (
	"fmt"
	"time"

	"github.com/derickschaefer/lifeos/internal/series"
	"github.com/derickschaefer/lifeos/internal/stats"
)

// ─── Difference ───────────────────────────────────────────────────────────────

// Diff computes the day-over-day change v[t]-v[t-1]. The first day, and any
// day whose predecessor is absent, is absent in the output.
func Diff(samples []series.Sample) []series.Sample {
	out := make([]series.Sample, len(samples))
	for i := 1; i < len(samples); i++ {
		if samples[i].OK && samples[i-1].OK {
			out[i] = series.Present(samples[i].Value - samples[i-1].Value)
		}
	}
	return out
}

// ─── Normalize ────────────────────────────────────────────────────────────────

// NormalizeMethod selects the normalization algorithm.
type NormalizeMethod string

const (
	NormalizeZScore NormalizeMethod = "zscore"
	NormalizeMinMax NormalizeMethod = "minmax"
)

// Normalize scales present samples using z-score or min-max normalization.
func Normalize(samples []series.Sample, method NormalizeMethod) ([]series.Sample, error) {
	vals := present(samples)
	if len(vals) == 0 {
		return nil, fmt.Errorf("normalize: no present values")
	}

	var a, b float64 // output = (v - a) / b
	switch method {
	case NormalizeZScore:
		std := stats.StdDev(vals)
		if std == 0 {
			return nil, fmt.Errorf("normalize: standard deviation is zero, cannot z-score")
		}
		a, b = stats.Mean(vals), std
	case NormalizeMinMax:
		mn, mx := minmax(vals)
		if mx == mn {
			return nil, fmt.Errorf("normalize: min == max (%g), cannot min-max normalize", mn)
		}
		a, b = mn, mx-mn
	default:
		return nil, fmt.Errorf("normalize: unknown method %q (use zscore or minmax)", method)
	}

	out := make([]series.Sample, len(samples))
	for i, s := range samples {
		if s.OK {
			out[i] = series.Present((s.Value - a) / b)
		}
	}
	return out, nil
}

// ─── Resample ─────────────────────────────────────────────────────────────────

// ResampleFreq is the target period for resampling.
type ResampleFreq string

const (
	ResampleWeekly  ResampleFreq = "weekly"
	ResampleMonthly ResampleFreq = "monthly"
)

// Resample averages present samples per period. Each output date is the
// period start (Monday for weekly, the 1st for monthly); a period with no
// present day is absent.
func Resample(dates []time.Time, samples []series.Sample, freq ResampleFreq) ([]time.Time, []series.Sample, error) {
	if len(dates) != len(samples) {
		return nil, nil, fmt.Errorf("resample: %d dates but %d samples", len(dates), len(samples))
	}
	if freq != ResampleWeekly && freq != ResampleMonthly {
		return nil, nil, fmt.Errorf("resample: unknown frequency %q (use weekly or monthly)", freq)
	}

	var (
		outDates []time.Time
		groups   [][]float64
	)
	for i, d := range dates {
		start := periodStart(d, freq)
		if len(outDates) == 0 || !outDates[len(outDates)-1].Equal(start) {
			outDates = append(outDates, start)
			groups = append(groups, nil)
		}
		if samples[i].OK {
			groups[len(groups)-1] = append(groups[len(groups)-1], samples[i].Value)
		}
	}

	out := make([]series.Sample, len(groups))
	for i, vals := range groups {
		if len(vals) > 0 {
			out[i] = series.Present(stats.Mean(vals))
		}
	}
	return outDates, out, nil
}

// periodStart returns the first day of the period containing t. dates are
// sorted ascending, so equal starts are always adjacent.
func periodStart(t time.Time, freq ResampleFreq) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if freq == ResampleMonthly {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	back := (int(day.Weekday()) + 6) % 7 // days since Monday
	return day.AddDate(0, 0, -back)
}

// ─── Rolling Window ───────────────────────────────────────────────────────────

// RollStat selects the statistic for rolling window computation.
type RollStat string

const (
	RollMean RollStat = "mean"
	RollStd  RollStat = "std"
	RollMin  RollStat = "min"
	RollMax  RollStat = "max"
)

// Roll computes a rolling window statistic. A window holds the current day and
// the (window-1) preceding days. Absent days are skipped; if fewer than
// minPeriods present values fall in a window, the output day is absent.
func Roll(samples []series.Sample, window, minPeriods int, stat RollStat) ([]series.Sample, error) {
	if window < 1 {
		return nil, fmt.Errorf("roll: window must be >= 1, got %d", window)
	}
	if minPeriods < 1 {
		minPeriods = 1
	}
	if minPeriods > window {
		return nil, fmt.Errorf("roll: min-periods (%d) cannot exceed window (%d)", minPeriods, window)
	}
	switch stat {
	case RollMean, RollStd, RollMin, RollMax:
	default:
		return nil, fmt.Errorf("roll: unknown stat %q (use mean, std, min, max)", stat)
	}

	out := make([]series.Sample, len(samples))
	for i := range samples {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		vals := present(samples[start : i+1])
		if len(vals) < minPeriods {
			continue
		}
		var v float64
		switch stat {
		case RollMean:
			v = stats.Mean(vals)
		case RollStd:
			v = stats.StdDev(vals)
		case RollMin:
			v, _ = minmax(vals)
		case RollMax:
			_, v = minmax(vals)
		}
		out[i] = series.Present(v)
	}
	return out, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func present(samples []series.Sample) []float64 {
	var vals []float64
	for _, s := range samples {
		if s.OK {
			vals = append(vals, s.Value)
		}
	}
	return vals
}

func minmax(vals []float64) (float64, float64) {
	mn, mx := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return mn, mx
}
