// Package pipeline reads and writes the JSONL boundary format: metric records
// and journal entries on the way in, records and patterns on the way out.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/pattern"
	"github.com/derickschaefer/lifeos/internal/util"
)

const maxLine = 1024 * 1024

// Input is everything read from one JSONL stream.
type Input struct {
	Records []model.MetricRecord
	Journal []model.JournalEntry
}

// row is the union of the record and journal line shapes. A line with an
// "energy" field and no "type" is a journal entry.
type row struct {
	Date     string             `json:"date"`
	Type     model.MetricType   `json:"type"`
	Value    *float64           `json:"value"`
	Source   string             `json:"source"`
	Metadata map[string]json.RawMessage `json:"metadata"`
	Energy   *float64           `json:"energy"`
	Notes    string             `json:"notes"`
}

// ReadInput reads JSONL records and journal entries from r. Blank lines and
// lines starting with "//" are skipped. Invalid lines are collected into a
// *util.MultiError and reading continues; the valid lines are still returned.
func ReadInput(r io.Reader) (Input, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLine), maxLine)

	var (
		in   Input
		errs util.MultiError
	)
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec row
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			errs.Add(fmt.Errorf("line %d: invalid JSON: %w", lineNum, err))
			continue
		}
		date, err := util.ParseDate(rec.Date)
		if err != nil {
			errs.Add(fmt.Errorf("line %d: %w", lineNum, err))
			continue
		}

		if rec.Type == "" && rec.Energy != nil {
			if e := *rec.Energy; e < 1 || e > 5 {
				errs.Add(fmt.Errorf("line %d: journal energy %g outside 1–5", lineNum, e))
				continue
			}
			in.Journal = append(in.Journal, model.JournalEntry{Date: date, Energy: *rec.Energy, Notes: rec.Notes})
			continue
		}

		if !rec.Type.Valid() {
			errs.Add(fmt.Errorf("line %d: unknown record type %q", lineNum, rec.Type))
			continue
		}
		val := math.NaN()
		if rec.Value != nil {
			val = *rec.Value
		}
		in.Records = append(in.Records, model.MetricRecord{
			Date:     date,
			Type:     rec.Type,
			Value:    val,
			Source:   rec.Source,
			Metadata: numericMetadata(rec.Metadata),
		})
	}
	if err := scanner.Err(); err != nil {
		return in, fmt.Errorf("reading input: %w", err)
	}
	if len(in.Records) == 0 && len(in.Journal) == 0 && len(errs.Errors) == 0 {
		return in, fmt.Errorf("no records read from input (is stdin empty?)")
	}
	return in, errs.Err()
}

// numericMetadata keeps the finite numeric entries of a free-form metadata
// object. Null, string and other values are treated as absent.
func numericMetadata(raw map[string]json.RawMessage) map[string]float64 {
	var out map[string]float64
	for k, v := range raw {
		var f float64
		if err := json.Unmarshal(v, &f); err != nil || string(v) == "null" {
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		if out == nil {
			out = make(map[string]float64, len(raw))
		}
		out[k] = f
	}
	return out
}

// ReadPatterns reads DetectedPattern JSONL, for example candidates produced
// by an external free-text pass.
func ReadPatterns(r io.Reader) ([]pattern.Pattern, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLine), maxLine)

	var out []pattern.Pattern
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var p pattern.Pattern
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		out = append(out, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading patterns: %w", err)
	}
	return out, nil
}

// WriteRecords writes records as JSONL to w. A non-finite value is written
// as null.
func WriteRecords(w io.Writer, records []model.MetricRecord) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		var val interface{}
		if !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0) {
			val = r.Value
		}
		rec := map[string]interface{}{
			"date":  util.FormatDate(r.Date),
			"type":  r.Type,
			"value": val,
		}
		if r.Source != "" {
			rec["source"] = r.Source
		}
		if len(r.Metadata) > 0 {
			rec["metadata"] = r.Metadata
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// WritePatterns writes patterns as JSONL to w.
func WritePatterns(w io.Writer, patterns []pattern.Pattern) error {
	enc := json.NewEncoder(w)
	for _, p := range patterns {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	return nil
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
