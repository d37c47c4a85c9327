// Package pattern defines DetectedPattern, the statistically screened claim
// produced by the analysis engines, and the deduplication and ranking applied
// before patterns leave the core.
package pattern

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Type identifies which engine produced a pattern.
type Type string

const (
	TypeCorrelation  Type = "correlation"
	TypeTrend        Type = "trend"
	TypeDayOfWeek    Type = "day_of_week"
	TypeWindowChange Type = "window_change"
)

// Details is the per-type statistics payload. Exactly one concrete type
// exists per pattern Type, plus External for candidates that did not come
// from a statistical engine.
type Details interface {
	detailsType() Type
}

// CorrelationDetails carries the raw Pearson statistics.
type CorrelationDetails struct {
	Coefficient float64 `json:"coefficient"`
	PValue      float64 `json:"p_value"`
	Hypothesis  string  `json:"hypothesis"`
}

// TrendDetails carries the raw regression statistics.
type TrendDetails struct {
	Direction     string  `json:"direction"`
	Slope         float64 `json:"slope"`
	RSquared      float64 `json:"r_squared"`
	PValue        float64 `json:"p_value"`
	ChangePercent float64 `json:"change_percent"`
}

// DayOfWeekDetails carries the weekday comparison.
type DayOfWeekDetails struct {
	BestDay           string             `json:"best_day"`
	WorstDay          string             `json:"worst_day"`
	BestAvg           float64            `json:"best_avg"`
	WorstAvg          float64            `json:"worst_avg"`
	DifferencePercent float64            `json:"difference_percent"`
	PValue            float64            `json:"p_value"`
	DayAverages       map[string]float64 `json:"day_averages"`
}

// WindowDetails carries the recent-vs-previous window comparison.
type WindowDetails struct {
	RecentMean    float64 `json:"recent_mean"`
	PreviousMean  float64 `json:"previous_mean"`
	ChangePercent float64 `json:"change_percent"`
	PValue        float64 `json:"p_value"`
	WindowSize    int     `json:"window_size"`
}

// External marks a candidate from a non-statistical source (for example a
// language-model pattern pass). Its pattern type is carried explicitly.
type External struct {
	Kind   Type   `json:"-"`
	Source string `json:"source"`
}

func (CorrelationDetails) detailsType() Type { return TypeCorrelation }
func (TrendDetails) detailsType() Type       { return TypeTrend }
func (DayOfWeekDetails) detailsType() Type   { return TypeDayOfWeek }
func (WindowDetails) detailsType() Type      { return TypeWindowChange }
func (e External) detailsType() Type         { return e.Kind }

// Pattern is a single detected pattern. Patterns are created fresh on every
// analysis run and never mutated afterwards.
type Pattern struct {
	Name        string
	Description string
	Type        Type
	Variables   []string
	Strength    float64 // [-1, 1]
	Confidence  float64 // [0, 1]
	SampleSize  int
	Actionable  bool
	Details     Details
}

// Key returns the deduplication key: type plus sorted variable names.
func (p Pattern) Key() string {
	vars := append([]string(nil), p.Variables...)
	sort.Strings(vars)
	return string(p.Type) + "|" + strings.Join(vars, ",")
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

type patternJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        Type            `json:"pattern_type"`
	Variables   []string        `json:"variables"`
	Strength    float64         `json:"strength"`
	Confidence  float64         `json:"confidence"`
	SampleSize  int             `json:"sample_size"`
	Actionable  bool            `json:"actionable"`
	Source      string          `json:"source,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
}

// MarshalJSON encodes the pattern with its details under "details" and the
// variant discriminated by "pattern_type".
func (p Pattern) MarshalJSON() ([]byte, error) {
	out := patternJSON{
		Name:        p.Name,
		Description: p.Description,
		Type:        p.Type,
		Variables:   p.Variables,
		Strength:    p.Strength,
		Confidence:  p.Confidence,
		SampleSize:  p.SampleSize,
		Actionable:  p.Actionable,
	}
	if ext, ok := p.Details.(External); ok {
		out.Source = ext.Source
	} else if p.Details != nil {
		raw, err := json.Marshal(p.Details)
		if err != nil {
			return nil, fmt.Errorf("encoding %s details: %w", p.Type, err)
		}
		out.Details = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a pattern, choosing the details variant from
// "pattern_type". A pattern carrying a "source" field decodes as External.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	var in patternJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Pattern{
		Name:        in.Name,
		Description: in.Description,
		Type:        in.Type,
		Variables:   in.Variables,
		Strength:    in.Strength,
		Confidence:  in.Confidence,
		SampleSize:  in.SampleSize,
		Actionable:  in.Actionable,
	}
	if in.Source != "" || len(in.Details) == 0 || string(in.Details) == "null" {
		p.Details = External{Kind: in.Type, Source: in.Source}
		return nil
	}

	var err error
	switch in.Type {
	case TypeCorrelation:
		var d CorrelationDetails
		err = json.Unmarshal(in.Details, &d)
		p.Details = d
	case TypeTrend:
		var d TrendDetails
		err = json.Unmarshal(in.Details, &d)
		p.Details = d
	case TypeDayOfWeek:
		var d DayOfWeekDetails
		err = json.Unmarshal(in.Details, &d)
		p.Details = d
	case TypeWindowChange:
		var d WindowDetails
		err = json.Unmarshal(in.Details, &d)
		p.Details = d
	default:
		return fmt.Errorf("unknown pattern_type %q", in.Type)
	}
	if err != nil {
		return fmt.Errorf("decoding %s details: %w", in.Type, err)
	}
	return nil
}

// Validate reports whether p carries every required field within range.
func (p Pattern) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("pattern: empty name")
	case len(p.Variables) == 0 || len(p.Variables) > 2:
		return fmt.Errorf("pattern %q: expected 1 or 2 variables, got %d", p.Name, len(p.Variables))
	case math.IsNaN(p.Strength) || p.Strength < -1 || p.Strength > 1:
		return fmt.Errorf("pattern %q: strength %g outside [-1,1]", p.Name, p.Strength)
	case math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1:
		return fmt.Errorf("pattern %q: confidence %g outside [0,1]", p.Name, p.Confidence)
	}
	switch p.Type {
	case TypeCorrelation, TypeTrend, TypeDayOfWeek, TypeWindowChange:
	default:
		return fmt.Errorf("pattern %q: unknown type %q", p.Name, p.Type)
	}
	return nil
}

// ─── Dedup & Rank ─────────────────────────────────────────────────────────────

// Dedupe keeps, for every Key, the candidate with the highest confidence.
// On equal confidence the first candidate seen wins. The result is ranked.
func Dedupe(candidates []Pattern) []Pattern {
	best := make(map[string]int, len(candidates))
	var kept []Pattern
	for _, c := range candidates {
		k := c.Key()
		i, seen := best[k]
		if !seen {
			best[k] = len(kept)
			kept = append(kept, c)
			continue
		}
		if c.Confidence > kept[i].Confidence {
			kept[i] = c
		}
	}
	Rank(kept)
	return kept
}

// Rank sorts patterns in place by confidence descending, then by absolute
// strength descending. Equal patterns keep their relative order.
func Rank(ps []Pattern) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Confidence != ps[j].Confidence {
			return ps[i].Confidence > ps[j].Confidence
		}
		return math.Abs(ps[i].Strength) > math.Abs(ps[j].Strength)
	})
}
