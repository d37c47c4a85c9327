package analyze

import (
	"fmt"
	"math"

	"github.com/derickschaefer/lifeos/internal/pattern"
	"github.com/derickschaefer/lifeos/internal/series"
	"github.com/derickschaefer/lifeos/internal/stats"
	"github.com/derickschaefer/lifeos/internal/util"
)

// Trend directions.
const (
	DirectionIncreasing = "increasing"
	DirectionDecreasing = "decreasing"
	DirectionStable     = "stable"
)

// Trends fits a line to every variable and returns the promoted trends.
func (a *Analyzer) Trends(o *series.Organized) []pattern.Pattern {
	var out []pattern.Pattern
	for _, name := range series.Variables {
		p, err := a.Trend(o, name)
		if err != nil {
			a.skip("trend", []string{name}, err)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Trend regresses a variable's present values on their index 0..n-1.
func (a *Analyzer) Trend(o *series.Organized, name string) (pattern.Pattern, error) {
	vals := o.Values(name)
	if len(vals) < a.params.MinSamplesTrend {
		return pattern.Pattern{}, fmt.Errorf("trend: need %d samples, got %d: %w",
			a.params.MinSamplesTrend, len(vals), stats.ErrInsufficientData)
	}
	reg, err := stats.IndexRegress(vals)
	if err != nil {
		return pattern.Pattern{}, err
	}

	significant := reg.P < a.params.SignificanceLevel
	direction := DirectionStable
	if significant {
		switch {
		case reg.Slope > 0:
			direction = DirectionIncreasing
		case reg.Slope < 0:
			direction = DirectionDecreasing
		}
	}

	// intercept <= 0 reports no change
	change, _ := percentChange(reg.At(0), reg.At(float64(len(vals)-1)))

	if !significant || math.Abs(change) < a.params.MinTrendChangePct {
		return pattern.Pattern{}, fmt.Errorf("p=%.4f change=%.1f%%: %w", reg.P, change, ErrNotPromoted)
	}

	l := Label(name)
	var title, desc string
	switch direction {
	case DirectionIncreasing:
		title = "Improving " + l
		desc = fmt.Sprintf("Your %s has been increasing by %.1f%% over %d days", l, change, reg.N)
	case DirectionDecreasing:
		title = "Declining " + l
		desc = fmt.Sprintf("Your %s has been decreasing by %.1f%% over %d days", l, math.Abs(change), reg.N)
	default:
		title = "Stable " + l
		desc = fmt.Sprintf("Your %s has been stable over %d days", l, reg.N)
	}
	desc += fmt.Sprintf(" (R²=%.2f)", reg.R2)

	return pattern.Pattern{
		Name:        title,
		Description: desc,
		Type:        pattern.TypeTrend,
		Variables:   []string{name},
		Strength:    util.Clamp(change/100, -1, 1),
		Confidence:  reg.R2,
		SampleSize:  reg.N,
		Actionable:  direction != DirectionStable,
		Details: pattern.TrendDetails{
			Direction:     direction,
			Slope:         reg.Slope,
			RSquared:      reg.R2,
			PValue:        reg.P,
			ChangePercent: change,
		},
	}, nil
}
