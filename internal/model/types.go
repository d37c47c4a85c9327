// Package model defines the canonical data types used throughout lifeos.
// These types are the boundary contract between the persistence layer and the
// analysis core, plus the result envelope that every command returns.
package model

import (
	"time"
)

// ─── Metric Records ───────────────────────────────────────────────────────────

// MetricType is the fixed vocabulary of daily record types.
type MetricType string

const (
	TypeSleep          MetricType = "sleep"
	TypeReadiness      MetricType = "readiness"
	TypeActivity       MetricType = "activity"
	TypeEnergy         MetricType = "energy"
	TypeMeetingDensity MetricType = "meeting_density"
)

// MetricTypes lists every known record type in display order.
var MetricTypes = []MetricType{
	TypeSleep,
	TypeReadiness,
	TypeActivity,
	TypeEnergy,
	TypeMeetingDensity,
}

// Valid reports whether t is part of the record vocabulary.
func (t MetricType) Valid() bool {
	for _, known := range MetricTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Well-known metadata keys carried on sleep records.
const (
	MetaDeepSleepHours = "deep_sleep_hours"
	MetaREMSleepHours  = "rem_sleep_hours"
	MetaEfficiency     = "efficiency"
	MetaScore          = "score"
)

// MetricRecord is a single dated measurement from an upstream source.
// Date is truncated to a calendar day (UTC midnight). Records are read-only
// once they reach the analysis core.
type MetricRecord struct {
	Date     time.Time          `json:"date"`
	Type     MetricType         `json:"type"`
	Value    float64            `json:"value"`
	Source   string             `json:"source,omitempty"`
	Metadata map[string]float64 `json:"metadata,omitempty"`
}

// Meta returns the metadata value for key and whether it was present.
func (r MetricRecord) Meta(key string) (float64, bool) {
	if r.Metadata == nil {
		return 0, false
	}
	v, ok := r.Metadata[key]
	return v, ok
}

// JournalEntry is a self-reported energy log. Energy is on a 1–5 scale.
type JournalEntry struct {
	Date   time.Time `json:"date"`
	Energy float64   `json:"energy"`
	Notes  string    `json:"notes,omitempty"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance metadata for a command result.
type ResultStats struct {
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindRecords    = "records"
	KindPatterns   = "patterns"
	KindPrediction = "prediction"
	KindTraining   = "training"
	KindAccuracy   = "accuracy"
	KindComparison = "comparison"
	KindLedger     = "ledger"
	KindSummary    = "summary"
	KindRuns       = "pattern_runs"
)
