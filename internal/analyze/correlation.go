package analyze

import (
	"fmt"
	"math"
	"strings"

	"github.com/derickschaefer/lifeos/internal/pattern"
	"github.com/derickschaefer/lifeos/internal/series"
	"github.com/derickschaefer/lifeos/internal/stats"
)

// Hypothesis is a variable pair worth correlating, with the reason it is.
type Hypothesis struct {
	A, B  string
	Label string
}

// Hypotheses is the fixed list of correlation pairs, tested in order.
var Hypotheses = []Hypothesis{
	{series.SleepDuration, series.Readiness, "Sleep duration affects next-day readiness"},
	{series.SleepDuration, series.Activity, "Sleep duration affects activity levels"},
	{series.DeepSleep, series.Readiness, "Deep sleep quality drives readiness"},
	{series.DeepSleep, series.Energy, "Deep sleep affects perceived energy"},
	{series.SleepEfficiency, series.Readiness, "Sleep efficiency impacts readiness"},
	{series.SleepScore, series.Activity, "Sleep score correlates with activity"},
	{series.Activity, series.SleepScore, "Activity level affects sleep quality"},
	{series.Readiness, series.Activity, "Readiness predicts activity capacity"},
}

// Correlations tests every hypothesis pair and returns the promoted ones.
func (a *Analyzer) Correlations(o *series.Organized) []pattern.Pattern {
	var out []pattern.Pattern
	for _, h := range Hypotheses {
		p, err := a.Correlate(o, h)
		if err != nil {
			a.skip("correlation", []string{h.A, h.B}, err)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Correlate tests one pair over the dates where both variables are present.
func (a *Analyzer) Correlate(o *series.Organized, h Hypothesis) (pattern.Pattern, error) {
	xs, ys := o.Pairs(h.A, h.B)
	c, err := stats.Pearson(xs, ys, a.params.MinSamplesCorrelation)
	if err != nil {
		return pattern.Pattern{}, err
	}
	if c.P >= a.params.SignificanceLevel || math.Abs(c.R) < a.params.WeakCorrelation {
		return pattern.Pattern{}, fmt.Errorf("r=%.3f p=%.4f: %w", c.R, c.P, ErrNotPromoted)
	}

	band := "weak"
	switch abs := math.Abs(c.R); {
	case abs >= a.params.StrongCorrelation:
		band = "strong"
	case abs >= a.params.ModerateCorrelation:
		band = "moderate"
	}
	direction, relation := "positive", "higher"
	if c.R < 0 {
		direction, relation = "negative", "lower"
	}

	la, lb := CorrelationLabel(h.A), CorrelationLabel(h.B)
	return pattern.Pattern{
		Name: fmt.Sprintf("%s %s correlation: %s → %s",
			strings.ToUpper(band[:1])+band[1:], direction, la, lb),
		Description: fmt.Sprintf("Higher %s correlates with %s %s (r=%.2f, p=%.3f, n=%d)",
			la, relation, lb, c.R, c.P, c.N),
		Type:       pattern.TypeCorrelation,
		Variables:  []string{h.A, h.B},
		Strength:   c.R,
		Confidence: 1 - c.P,
		SampleSize: c.N,
		Actionable: true,
		Details: pattern.CorrelationDetails{
			Coefficient: c.R,
			PValue:      c.P,
			Hypothesis:  h.Label,
		},
	}, nil
}
