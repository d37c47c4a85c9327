// Package energy forecasts a day's energy level from sleep, readiness and
// calendar load with a standardized linear regression, and scores those
// forecasts against an alternative source once actual energy is known.
package energy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/stats"
	"github.com/derickschaefer/lifeos/internal/util"
)

// Feature names, in model column order.
const (
	FeatureSleepDuration = "sleep_duration"
	FeatureDeepSleep     = "deep_sleep"
	FeatureReadiness     = "readiness_score"
	FeatureDayOfWeek     = "day_of_week"
	FeaturePrevEnergy    = "prev_day_energy"
	FeatureMeetingHours  = "meeting_hours"
)

// FeatureNames is the fixed column order of every feature vector.
var FeatureNames = []string{
	FeatureSleepDuration,
	FeatureDeepSleep,
	FeatureReadiness,
	FeatureDayOfWeek,
	FeaturePrevEnergy,
	FeatureMeetingHours,
}

// Features is one day's raw model input.
type Features struct {
	SleepDuration  float64 `json:"sleep_duration"`
	DeepSleep      float64 `json:"deep_sleep"`
	ReadinessScore float64 `json:"readiness_score"`
	DayOfWeek      int     `json:"day_of_week"` // 0=Monday
	PrevDayEnergy  float64 `json:"prev_day_energy"`
	MeetingHours   float64 `json:"meeting_hours"`
}

// Vector returns the features in FeatureNames order.
func (f Features) Vector() []float64 {
	return []float64{
		f.SleepDuration,
		f.DeepSleep,
		f.ReadinessScore,
		float64(f.DayOfWeek),
		f.PrevDayEnergy,
		f.MeetingHours,
	}
}

// Map returns the features keyed by name.
func (f Features) Map() map[string]float64 {
	vec := f.Vector()
	out := make(map[string]float64, len(vec))
	for i, name := range FeatureNames {
		out[name] = vec[i]
	}
	return out
}

func (f Features) validate() error {
	for i, v := range f.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %s is not finite", FeatureNames[i])
		}
	}
	if f.DayOfWeek < 0 || f.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week must be in [0,6], got %d", f.DayOfWeek)
	}
	return nil
}

// ─── Options ──────────────────────────────────────────────────────────────────

// Options tunes feature preparation.
type Options struct {
	MinTrainingSamples int     `json:"min_training_samples"`
	NeutralEnergy      float64 `json:"neutral_energy"` // prior-day energy when unknown
	JournalScale       float64 `json:"journal_scale"`  // journal 1–5 → model 1–10
}

// DefaultOptions returns the standard training options.
func DefaultOptions() Options {
	return Options{
		MinTrainingSamples: 7,
		NeutralEnergy:      5.0,
		JournalScale:       2.0,
	}
}

// Validate checks that the options are usable.
func (o Options) Validate() error {
	switch {
	case o.MinTrainingSamples < 2:
		return fmt.Errorf("min_training_samples must be >= 2, got %d", o.MinTrainingSamples)
	case o.NeutralEnergy < minEnergy || o.NeutralEnergy > maxEnergy:
		return fmt.Errorf("neutral_energy must be in [%g,%g], got %g", minEnergy, maxEnergy, o.NeutralEnergy)
	case o.JournalScale <= 0:
		return fmt.Errorf("journal_scale must be positive, got %g", o.JournalScale)
	}
	return nil
}

// ─── Training data ────────────────────────────────────────────────────────────

// TrainingData is a labelled feature matrix. Row i belongs to Dates[i]; every
// row has a sleep duration and a readiness score.
type TrainingData struct {
	Features     [][]float64 `json:"features"`
	Targets      []float64   `json:"targets"`
	FeatureNames []string    `json:"feature_names"`
	Dates        []time.Time `json:"dates"`
	SampleCount  int         `json:"sample_count"`
}

// dayInputs collects one day's raw values.
type dayInputs struct {
	sleep, readiness, energy       float64
	hasSleep, hasReadiness, hasEng bool
	deepSleep, meetingHours        float64
}

// PrepareTrainingData joins records with journal energy into a feature
// matrix. A day becomes a row only when it has an energy label, a sleep
// duration and a readiness score. Fewer than MinTrainingSamples rows
// returns stats.ErrInsufficientData.
func (o Options) PrepareTrainingData(records []model.MetricRecord, journal []model.JournalEntry) (*TrainingData, error) {
	byDate := make(map[time.Time]*dayInputs)
	day := func(t time.Time) *dayInputs {
		d := util.Day(t)
		in, ok := byDate[d]
		if !ok {
			in = &dayInputs{}
			byDate[d] = in
		}
		return in
	}

	for _, r := range records {
		if r.Date.IsZero() {
			continue
		}
		// every dated record occupies its day, so a gap day breaks the
		// previous-energy chain even without usable values
		in := day(r.Date)
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		switch r.Type {
		case model.TypeSleep:
			in.sleep, in.hasSleep = r.Value, true
			in.deepSleep, _ = r.Meta(model.MetaDeepSleepHours)
		case model.TypeReadiness:
			in.readiness, in.hasReadiness = r.Value, true
		case model.TypeMeetingDensity:
			in.meetingHours = r.Value
		}
	}
	for _, j := range journal {
		if j.Date.IsZero() || math.IsNaN(j.Energy) || math.IsInf(j.Energy, 0) {
			continue
		}
		in := day(j.Date)
		in.energy, in.hasEng = j.Energy*o.JournalScale, true
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	td := &TrainingData{FeatureNames: append([]string(nil), FeatureNames...)}
	for i, d := range dates {
		in := byDate[d]
		if !in.hasEng || !in.hasSleep || !in.hasReadiness {
			continue
		}
		prev := o.NeutralEnergy
		if i > 0 {
			if p := byDate[dates[i-1]]; p.hasEng {
				prev = p.energy
			}
		}
		f := Features{
			SleepDuration:  in.sleep,
			DeepSleep:      in.deepSleep,
			ReadinessScore: in.readiness,
			DayOfWeek:      util.WeekdayIndex(d),
			PrevDayEnergy:  prev,
			MeetingHours:   in.meetingHours,
		}
		td.Features = append(td.Features, f.Vector())
		td.Targets = append(td.Targets, in.energy)
		td.Dates = append(td.Dates, d)
	}
	td.SampleCount = len(td.Targets)

	if td.SampleCount < o.MinTrainingSamples {
		return nil, fmt.Errorf("training data: need %d labelled days, got %d: %w",
			o.MinTrainingSamples, td.SampleCount, stats.ErrInsufficientData)
	}
	return td, nil
}

// FeaturesFor locates the raw inputs for one date. Sleep duration and
// readiness are required; deep sleep and meeting hours default to 0, and a
// non-positive prevEnergy is replaced by NeutralEnergy.
func (o Options) FeaturesFor(records []model.MetricRecord, date time.Time, prevEnergy float64) (Features, error) {
	target := util.Day(date)
	var (
		f                      Features
		hasSleep, hasReadiness bool
	)
	for _, r := range records {
		if !util.Day(r.Date).Equal(target) || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		switch r.Type {
		case model.TypeSleep:
			f.SleepDuration, hasSleep = r.Value, true
			f.DeepSleep, _ = r.Meta(model.MetaDeepSleepHours)
		case model.TypeReadiness:
			f.ReadinessScore, hasReadiness = r.Value, true
		case model.TypeMeetingDensity:
			f.MeetingHours = r.Value
		}
	}
	if !hasSleep || !hasReadiness {
		return Features{}, fmt.Errorf("no sleep and readiness records for %s: %w",
			util.FormatDate(target), stats.ErrInsufficientData)
	}
	f.DayOfWeek = util.WeekdayIndex(target)
	f.PrevDayEnergy = prevEnergy
	if prevEnergy <= 0 || math.IsNaN(prevEnergy) {
		f.PrevDayEnergy = o.NeutralEnergy
	}
	return f, nil
}
