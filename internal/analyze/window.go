package analyze

import (
	"fmt"
	"math"

	"github.com/derickschaefer/lifeos/internal/pattern"
	"github.com/derickschaefer/lifeos/internal/series"
	"github.com/derickschaefer/lifeos/internal/stats"
	"github.com/derickschaefer/lifeos/internal/util"
)

// WindowChanges compares the latest window with the one before it for every
// variable.
func (a *Analyzer) WindowChanges(o *series.Organized) []pattern.Pattern {
	var out []pattern.Pattern
	for _, name := range series.Variables {
		p, err := a.WindowChange(o, name)
		if err != nil {
			a.skip("window_change", []string{name}, err)
			continue
		}
		out = append(out, p)
	}
	return out
}

// WindowChange tests the mean of the last WindowSize present values against
// the WindowSize values immediately preceding them.
func (a *Analyzer) WindowChange(o *series.Organized, name string) (pattern.Pattern, error) {
	w := a.params.WindowSize
	vals := o.Values(name)
	if len(vals) < 2*w {
		return pattern.Pattern{}, fmt.Errorf("window_change: need %d samples, got %d: %w",
			2*w, len(vals), stats.ErrInsufficientData)
	}
	recent := vals[len(vals)-w:]
	previous := vals[len(vals)-2*w : len(vals)-w]
	recentMean, previousMean := stats.Mean(recent), stats.Mean(previous)

	change, ok := percentChange(previousMean, recentMean)
	if !ok {
		return pattern.Pattern{}, fmt.Errorf("previous mean %.3f not positive: %w", previousMean, ErrNotPromoted)
	}
	tt, err := stats.TTestInd(recent, previous)
	if err != nil {
		return pattern.Pattern{}, err
	}
	if tt.P >= a.params.SignificanceLevel || math.Abs(change) < a.params.MinWindowChangePct {
		return pattern.Pattern{}, fmt.Errorf("p=%.4f change=%.1f%%: %w", tt.P, change, ErrNotPromoted)
	}

	l := Label(name)
	var title, desc string
	if change > 0 {
		title = "Recent improvement in " + l
		desc = fmt.Sprintf("Your %s increased %.0f%% in the last %d days", l, change, w)
	} else {
		title = "Recent decline in " + l
		desc = fmt.Sprintf("Your %s decreased %.0f%% in the last %d days", l, math.Abs(change), w)
	}
	desc += fmt.Sprintf(" compared to the previous %d days (p=%.3f)", w, tt.P)

	return pattern.Pattern{
		Name:        title,
		Description: desc,
		Type:        pattern.TypeWindowChange,
		Variables:   []string{name},
		Strength:    util.Clamp(change/100, -1, 1),
		Confidence:  1 - tt.P,
		SampleSize:  2 * w,
		Actionable:  true,
		Details: pattern.WindowDetails{
			RecentMean:    recentMean,
			PreviousMean:  previousMean,
			ChangePercent: change,
			PValue:        tt.P,
			WindowSize:    w,
		},
	}, nil
}
