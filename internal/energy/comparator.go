package energy

import (
	"fmt"
	"math"
	"time"

	"github.com/derickschaefer/lifeos/internal/stats"
	"github.com/derickschaefer/lifeos/internal/util"
)

// MinPairs is the smallest number of (prediction, actual) pairs an accuracy
// figure is computed from.
const MinPairs = 3

// Winner values for Comparison.
const (
	WinnerML  = "ml"
	WinnerLLM = "llm"
	WinnerTie = "tie"
)

// Actual is an observed energy level on the 1–10 scale.
type Actual struct {
	Date   time.Time `json:"date"`
	Energy float64   `json:"energy"`
}

// Accuracy scores one source against observed actuals.
type Accuracy struct {
	Source      Source    `json:"source"`
	MAE         float64   `json:"mae"`
	RMSE        float64   `json:"rmse"`
	Correlation float64   `json:"correlation"`
	SampleSize  int       `json:"sample_size"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Comparison pits both sources against each other. Winner is empty when
// either source lacks enough matched pairs.
type Comparison struct {
	ML      *Accuracy `json:"ml"`
	LLM     *Accuracy `json:"llm"`
	Winner  string    `json:"winner,omitempty"`
	Summary string    `json:"comparison,omitempty"`
}

// Ledger is a snapshot of everything a Comparator has recorded.
type Ledger struct {
	ML      []Prediction `json:"ml"`
	LLM     []Prediction `json:"llm"`
	Actuals []Actual     `json:"actuals"`
}

// Comparator accumulates forecasts from both sources and the actuals they
// are later scored against. Entries are never deduplicated; repeated
// forecasts for a date all count. It is not safe for concurrent use.
type Comparator struct {
	ml      []Prediction
	llm     []Prediction
	actuals []Actual
}

// NewComparator returns an empty comparator.
func NewComparator() *Comparator {
	return &Comparator{}
}

// RecordModel appends a regression-model forecast.
func (c *Comparator) RecordModel(p Prediction) {
	p.Date = util.Day(p.Date)
	p.Source = SourceML
	c.ml = append(c.ml, p)
}

// RecordAlternative appends a forecast from the alternative source.
func (c *Comparator) RecordAlternative(date time.Time, energy, confidence float64) {
	c.llm = append(c.llm, Prediction{
		Date:            util.Day(date),
		Source:          SourceLLM,
		PredictedEnergy: energy,
		Confidence:      confidence,
	})
}

// RecordActual appends an observed energy level.
func (c *Comparator) RecordActual(date time.Time, energy float64) {
	c.actuals = append(c.actuals, Actual{Date: util.Day(date), Energy: energy})
}

// Ledger returns a copy of the three logs in recording order.
func (c *Comparator) Ledger() Ledger {
	return Ledger{
		ML:      append([]Prediction(nil), c.ml...),
		LLM:     append([]Prediction(nil), c.llm...),
		Actuals: append([]Actual(nil), c.actuals...),
	}
}

// Accuracy matches each forecast of source with the latest actual recorded
// for its date. Fewer than MinPairs matches returns
// stats.ErrInsufficientData.
func (c *Comparator) Accuracy(source Source) (Accuracy, error) {
	var preds []Prediction
	switch source {
	case SourceML:
		preds = c.ml
	case SourceLLM:
		preds = c.llm
	default:
		return Accuracy{}, fmt.Errorf("accuracy: unknown source %q", source)
	}

	latest := make(map[time.Time]float64, len(c.actuals))
	for _, a := range c.actuals {
		latest[a.Date] = a.Energy
	}

	var predicted, actual []float64
	acc := Accuracy{Source: source}
	for _, p := range preds {
		a, ok := latest[p.Date]
		if !ok {
			continue
		}
		predicted = append(predicted, p.PredictedEnergy)
		actual = append(actual, a)
		if acc.PeriodStart.IsZero() || p.Date.Before(acc.PeriodStart) {
			acc.PeriodStart = p.Date
		}
		if p.Date.After(acc.PeriodEnd) {
			acc.PeriodEnd = p.Date
		}
	}
	n := len(predicted)
	if n < MinPairs {
		return Accuracy{}, fmt.Errorf("accuracy %s: need %d matched pairs, got %d: %w",
			source, MinPairs, n, stats.ErrInsufficientData)
	}

	var absSum, sqSum float64
	for i := range predicted {
		d := predicted[i] - actual[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	acc.MAE = absSum / float64(n)
	acc.RMSE = math.Sqrt(sqSum / float64(n))
	acc.SampleSize = n
	if corr, err := stats.Pearson(predicted, actual, MinPairs); err == nil {
		acc.Correlation = corr.R
	}
	return acc, nil
}

// Compare scores both sources. The source with strictly lower MAE wins.
func (c *Comparator) Compare() Comparison {
	var cmp Comparison
	if acc, err := c.Accuracy(SourceML); err == nil {
		cmp.ML = &acc
	}
	if acc, err := c.Accuracy(SourceLLM); err == nil {
		cmp.LLM = &acc
	}
	if cmp.ML == nil || cmp.LLM == nil {
		return cmp
	}

	switch {
	case cmp.ML.MAE < cmp.LLM.MAE:
		cmp.Winner = WinnerML
		cmp.Summary = fmt.Sprintf("ML beats LLM by %.2f MAE", cmp.LLM.MAE-cmp.ML.MAE)
	case cmp.LLM.MAE < cmp.ML.MAE:
		cmp.Winner = WinnerLLM
		cmp.Summary = fmt.Sprintf("LLM beats ML by %.2f MAE", cmp.ML.MAE-cmp.LLM.MAE)
	default:
		cmp.Winner = WinnerTie
		cmp.Summary = "Both sources have equal MAE"
	}
	return cmp
}
