package analyze

import (
	"fmt"
	"time"

	"github.com/derickschaefer/lifeos/internal/pattern"
	"github.com/derickschaefer/lifeos/internal/series"
	"github.com/derickschaefer/lifeos/internal/stats"
	"github.com/derickschaefer/lifeos/internal/util"
)

// Confidence values for day-of-week patterns. The engine reports a fixed
// level rather than one derived from the p-value.
const (
	dayConfidenceSignificant = 0.8
	dayConfidenceWeak        = 0.5
)

// DayOfWeekPatterns compares weekday means for every variable.
func (a *Analyzer) DayOfWeekPatterns(o *series.Organized) []pattern.Pattern {
	var out []pattern.Pattern
	for _, name := range series.Variables {
		p, err := a.DayOfWeek(o, name)
		if err != nil {
			a.skip("day_of_week", []string{name}, err)
			continue
		}
		out = append(out, p)
	}
	return out
}

// DayOfWeek finds the best and worst weekday for a variable and tests the
// difference between them. Ties go to the earliest weekday, Monday first.
func (a *Analyzer) DayOfWeek(o *series.Organized, name string) (pattern.Pattern, error) {
	groups := o.ByWeekday(name)

	var (
		qualifying        []time.Weekday
		averages          = make(map[string]float64)
		best, worst       time.Weekday
		bestAvg, worstAvg float64
		sampleSize        int
	)
	for _, wd := range util.Weekdays {
		vals := groups[wd]
		if len(vals) < a.params.MinSamplesPerDay {
			continue
		}
		m := stats.Mean(vals)
		averages[wd.String()] = m
		sampleSize += len(vals)
		if len(qualifying) == 0 || m > bestAvg {
			best, bestAvg = wd, m
		}
		if len(qualifying) == 0 || m < worstAvg {
			worst, worstAvg = wd, m
		}
		qualifying = append(qualifying, wd)
	}
	if len(qualifying) < a.params.MinWeekdays {
		return pattern.Pattern{}, fmt.Errorf("day_of_week: need %d weekdays, got %d: %w",
			a.params.MinWeekdays, len(qualifying), stats.ErrInsufficientData)
	}

	diff, ok := percentChange(worstAvg, bestAvg)
	if !ok {
		return pattern.Pattern{}, fmt.Errorf("worst average %.3f not positive: %w", worstAvg, ErrNotPromoted)
	}

	tt, err := stats.TTestInd(groups[best], groups[worst])
	if err != nil {
		return pattern.Pattern{}, err
	}
	significant := tt.P < a.params.SignificanceLevel
	if !significant || diff < a.params.MinDayDiffPct {
		return pattern.Pattern{}, fmt.Errorf("p=%.4f diff=%.1f%%: %w", tt.P, diff, ErrNotPromoted)
	}

	confidence := dayConfidenceWeak
	if significant {
		confidence = dayConfidenceSignificant
	}

	l := Label(name)
	return pattern.Pattern{
		Name: fmt.Sprintf("%s vs %s: %s", best, worst, l),
		Description: fmt.Sprintf("Your %s is %.0f%% higher on %ss (%.1f) compared to %ss (%.1f)",
			l, diff, best, bestAvg, worst, worstAvg),
		Type:       pattern.TypeDayOfWeek,
		Variables:  []string{name},
		Strength:   util.Clamp(diff/100, 0, 1),
		Confidence: confidence,
		SampleSize: sampleSize,
		Actionable: true,
		Details: pattern.DayOfWeekDetails{
			BestDay:           best.String(),
			WorstDay:          worst.String(),
			BestAvg:           bestAvg,
			WorstAvg:          worstAvg,
			DifferencePercent: diff,
			PValue:            tt.P,
			DayAverages:       averages,
		},
	}, nil
}
