// Package series reshapes flat metric records into date-aligned variable
// sequences. It performs no statistics: absence is preserved as an explicit
// absent Sample so downstream engines can exclude it deliberately.
package series

import (
	"math"
	"sort"
	"time"

	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/util"
)

// Variable names produced by Organize.
const (
	SleepDuration   = "sleep_duration"
	DeepSleep       = "deep_sleep"
	REMSleep        = "rem_sleep"
	SleepEfficiency = "sleep_efficiency"
	SleepScore      = "sleep_score"
	Readiness       = "readiness"
	Activity        = "activity"
	Energy          = "energy"
)

// Variables lists every tracked variable in the fixed order engines iterate.
var Variables = []string{
	SleepDuration,
	DeepSleep,
	REMSleep,
	SleepEfficiency,
	SleepScore,
	Readiness,
	Activity,
	Energy,
}

// extractor pulls one variable's value out of a day's records.
type extractor struct {
	name    string
	typ     model.MetricType
	metaKey string // empty = use the record value
}

var extractors = []extractor{
	{SleepDuration, model.TypeSleep, ""},
	{DeepSleep, model.TypeSleep, model.MetaDeepSleepHours},
	{REMSleep, model.TypeSleep, model.MetaREMSleepHours},
	{SleepEfficiency, model.TypeSleep, model.MetaEfficiency},
	{SleepScore, model.TypeSleep, model.MetaScore},
	{Readiness, model.TypeReadiness, ""},
	{Activity, model.TypeActivity, ""},
	{Energy, model.TypeEnergy, ""},
}

// Sample is one day's value for a variable; OK is false when the day has no
// observation for it.
type Sample struct {
	Value float64
	OK    bool
}

// Present builds a present sample.
func Present(v float64) Sample { return Sample{Value: v, OK: true} }

// Absent is the missing-day sample.
var Absent = Sample{}

// Organized is the date-aligned view of a record set. Every slice in Series
// has exactly len(Dates) entries, index i belonging to Dates[i].
type Organized struct {
	Dates  []time.Time
	Series map[string][]Sample
	ByDate map[time.Time]map[model.MetricType]model.MetricRecord
}

// Organize groups records by calendar day and builds one aligned sequence per
// tracked variable. Records without a date or type, or with a non-finite
// value, are skipped. When a day has several records of the same type the
// last one wins.
func Organize(records []model.MetricRecord) *Organized {
	byDate := make(map[time.Time]map[model.MetricType]model.MetricRecord)
	for _, r := range records {
		if r.Date.IsZero() || r.Type == "" || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		day := util.Day(r.Date)
		if byDate[day] == nil {
			byDate[day] = make(map[model.MetricType]model.MetricRecord)
		}
		byDate[day][r.Type] = r
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := &Organized{
		Dates:  dates,
		Series: make(map[string][]Sample, len(extractors)),
		ByDate: byDate,
	}
	for _, ex := range extractors {
		out.Series[ex.name] = make([]Sample, len(dates))
	}
	for i, d := range dates {
		day := byDate[d]
		for _, ex := range extractors {
			rec, ok := day[ex.typ]
			if !ok {
				continue // zero Sample is Absent
			}
			if ex.metaKey == "" {
				out.Series[ex.name][i] = Present(rec.Value)
				continue
			}
			if v, ok := rec.Meta(ex.metaKey); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
				out.Series[ex.name][i] = Present(v)
			}
		}
	}
	return out
}

// Len returns the number of distinct dates.
func (o *Organized) Len() int {
	return len(o.Dates)
}

// Values returns the present values of a variable in date order.
func (o *Organized) Values(name string) []float64 {
	samples := o.Series[name]
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.OK {
			out = append(out, s.Value)
		}
	}
	return out
}

// Pairs returns the values of a and b on the dates where both are present.
func (o *Organized) Pairs(a, b string) (xs, ys []float64) {
	sa, sb := o.Series[a], o.Series[b]
	if len(sa) != len(sb) {
		return nil, nil
	}
	for i := range sa {
		if sa[i].OK && sb[i].OK {
			xs = append(xs, sa[i].Value)
			ys = append(ys, sb[i].Value)
		}
	}
	return xs, ys
}

// ByWeekday groups the present values of a variable by weekday.
func (o *Organized) ByWeekday(name string) map[time.Weekday][]float64 {
	out := make(map[time.Weekday][]float64)
	for i, s := range o.Series[name] {
		if s.OK {
			wd := o.Dates[i].Weekday()
			out[wd] = append(out[wd], s.Value)
		}
	}
	return out
}

// Record returns the record of type t on day d, if any.
func (o *Organized) Record(d time.Time, t model.MetricType) (model.MetricRecord, bool) {
	day, ok := o.ByDate[util.Day(d)]
	if !ok {
		return model.MetricRecord{}, false
	}
	r, ok := day[t]
	return r, ok
}

// Since returns the records dated on or after cutoff.
func Since(records []model.MetricRecord, cutoff time.Time) []model.MetricRecord {
	cutoff = util.Day(cutoff)
	out := make([]model.MetricRecord, 0, len(records))
	for _, r := range records {
		if !util.Day(r.Date).Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
