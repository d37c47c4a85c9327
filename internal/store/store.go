// Package store provides a thin bbolt wrapper for lifeos's local data store.
//
// The store is the persistence collaborator of the analysis core: it holds
// the metric records and journal entries the engines read, and the patterns,
// model parameters and forecast ledger they produce. Nothing expires; data
// stays until you clear it.
//
// Buckets:
//
//	records           metric records keyed date|type|source (last write wins)
//	journal           journal energy entries keyed by date
//	patterns          detection runs keyed by time-ordered run ID
//	model             trained energy model parameters
//	predictions_ml    model forecasts keyed date|entry ID
//	predictions_llm   alternative forecasts keyed date|entry ID
//	actuals           observed energy keyed date|entry ID
//	_meta             internal: schema version, created_at
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/lifeos/internal/energy"
	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/pattern"
	"github.com/derickschaefer/lifeos/internal/util"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

// Bucket names.
const (
	BucketRecords        = "records"
	BucketJournal        = "journal"
	BucketPatterns       = "patterns"
	BucketModel          = "model"
	BucketPredictionsML  = "predictions_ml"
	BucketPredictionsLLM = "predictions_llm"
	BucketActuals        = "actuals"
	bucketInternal       = "_meta"
)

// AllBuckets lists every user-facing bucket for stats and clear operations.
var AllBuckets = []string{
	BucketRecords,
	BucketJournal,
	BucketPatterns,
	BucketModel,
	BucketPredictionsML,
	BucketPredictionsLLM,
	BucketActuals,
}

const modelKey = "active"

// Store wraps a bbolt database.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

func openDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.path
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range append(AllBuckets, bucketInternal) {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(bucketInternal))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Records ──────────────────────────────────────────────────────────────────

// RecordKey builds the canonical key for a metric record.
// Format: <YYYY-MM-DD>|<type>|<source>. Keys sort by date.
func RecordKey(r model.MetricRecord) string {
	return util.FormatDate(r.Date) + "|" + string(r.Type) + "|" + r.Source
}

// storedRecord is the JSON-safe on-disk form of a record. Value is a
// *float64 so a non-finite value is stored as null rather than breaking
// encoding/json.
type storedRecord struct {
	Date     string             `json:"date"`
	Type     model.MetricType   `json:"type"`
	Value    *float64           `json:"value"` // null = missing
	Source   string             `json:"source,omitempty"`
	Metadata map[string]float64 `json:"metadata,omitempty"`
}

func recordToStored(r model.MetricRecord) storedRecord {
	row := storedRecord{
		Date:   util.FormatDate(r.Date),
		Type:   r.Type,
		Source: r.Source,
	}
	if !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0) {
		v := r.Value
		row.Value = &v
	}
	if len(r.Metadata) > 0 {
		row.Metadata = make(map[string]float64, len(r.Metadata))
		for k, v := range r.Metadata {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				row.Metadata[k] = v
			}
		}
	}
	return row
}

func storedToRecord(row storedRecord) model.MetricRecord {
	t, _ := util.ParseDate(row.Date)
	r := model.MetricRecord{
		Date:     t,
		Type:     row.Type,
		Source:   row.Source,
		Metadata: row.Metadata,
	}
	if row.Value != nil {
		r.Value = *row.Value
	} else {
		r.Value = math.NaN()
	}
	return r
}

// PutRecords upserts records in a single transaction. A record with the same
// date, type and source as a stored one replaces it.
func (s *Store) PutRecords(records []model.MetricRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketRecords))
		for _, r := range records {
			data, err := json.Marshal(recordToStored(r))
			if err != nil {
				return fmt.Errorf("encoding record %s: %w", RecordKey(r), err)
			}
			if err := b.Put([]byte(RecordKey(r)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListRecords returns records dated within [from, to] in key order. A zero
// bound is open.
func (s *Store) ListRecords(from, to time.Time) ([]model.MetricRecord, error) {
	var out []model.MetricRecord
	err := s.scanDates(BucketRecords, from, to, func(v []byte) error {
		var row storedRecord
		if err := json.Unmarshal(v, &row); err != nil {
			return err
		}
		out = append(out, storedToRecord(row))
		return nil
	})
	return out, err
}

// ─── Journal ──────────────────────────────────────────────────────────────────

// PutJournal upserts journal entries keyed by date.
func (s *Store) PutJournal(entries []model.JournalEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketJournal))
		for _, e := range entries {
			e.Date = util.Day(e.Date)
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding journal entry: %w", err)
			}
			if err := b.Put([]byte(util.FormatDate(e.Date)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListJournal returns journal entries dated within [from, to].
func (s *Store) ListJournal(from, to time.Time) ([]model.JournalEntry, error) {
	var out []model.JournalEntry
	err := s.scanDates(BucketJournal, from, to, func(v []byte) error {
		var e model.JournalEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// scanDates walks a date-prefixed bucket between from and to inclusive.
func (s *Store) scanDates(bucket string, from, to time.Time, fn func(v []byte) error) error {
	var lo, hi []byte
	if !from.IsZero() {
		lo = []byte(util.FormatDate(from))
	}
	if !to.IsZero() {
		// "~" sorts after "|" so every key of the last day is included.
		hi = []byte(util.FormatDate(to) + "~")
	}
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		var k, v []byte
		if lo != nil {
			k, v = c.Seek(lo)
		} else {
			k, v = c.First()
		}
		for ; k != nil; k, v = c.Next() {
			if hi != nil && bytes.Compare(k, hi) > 0 {
				break
			}
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Patterns ─────────────────────────────────────────────────────────────────

// PatternRun is one stored detection run. The newest run is the active set.
type PatternRun struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	WindowFrom time.Time         `json:"window_from"`
	WindowTo   time.Time         `json:"window_to"`
	Patterns   []pattern.Pattern `json:"patterns"`
}

// PutPatternRun stores a detection run and returns it with its ID set.
// Storing a run supersedes every earlier one as the active set.
func (s *Store) PutPatternRun(run PatternRun) (PatternRun, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return run, fmt.Errorf("generating run id: %w", err)
	}
	run.ID = id.String()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(run)
	if err != nil {
		return run, fmt.Errorf("encoding pattern run: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketPatterns)).Put([]byte(run.ID), data)
	})
	return run, err
}

// ActivePatternRun returns the most recent run.
// Returns (run, true, nil) if found, (zero, false, nil) if none is stored.
func (s *Store) ActivePatternRun() (PatternRun, bool, error) {
	var run PatternRun
	err := s.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket([]byte(BucketPatterns)).Cursor().Last()
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &run)
	})
	if err != nil {
		return run, false, err
	}
	return run, run.ID != "", nil
}

// ListPatternRuns returns every stored run, oldest first.
func (s *Store) ListPatternRuns() ([]PatternRun, error) {
	var runs []PatternRun
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketPatterns)).ForEach(func(k, v []byte) error {
			var run PatternRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, run)
			return nil
		})
	})
	return runs, err
}

// ─── Model ────────────────────────────────────────────────────────────────────

// PutModelParams replaces the stored energy model.
func (s *Store) PutModelParams(p energy.Params) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding model params: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketModel)).Put([]byte(modelKey), data)
	})
}

// GetModelParams returns the stored energy model.
// Returns (params, true, nil) if found, (zero, false, nil) if not found.
func (s *Store) GetModelParams() (energy.Params, bool, error) {
	var p energy.Params
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(BucketModel)).Get([]byte(modelKey))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &p)
	})
	return p, found && err == nil, err
}

// ─── Forecast ledger ──────────────────────────────────────────────────────────

// ledgerKey builds <YYYY-MM-DD>|<uuid v7>. Entries sort by date, then by the
// order they were recorded.
func ledgerKey(date time.Time) ([]byte, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating ledger id: %w", err)
	}
	return []byte(util.FormatDate(date) + "|" + id.String()), nil
}

func (s *Store) putLedger(bucket string, date time.Time, v any) error {
	key, err := ledgerKey(date)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s entry: %w", bucket, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put(key, data)
	})
}

// PutPrediction appends a forecast to its source's ledger.
func (s *Store) PutPrediction(p energy.Prediction) error {
	switch p.Source {
	case energy.SourceML:
		return s.putLedger(BucketPredictionsML, p.Date, p)
	case energy.SourceLLM:
		return s.putLedger(BucketPredictionsLLM, p.Date, p)
	}
	return fmt.Errorf("unknown prediction source %q", p.Source)
}

// PutActual appends an observed energy level.
func (s *Store) PutActual(a energy.Actual) error {
	return s.putLedger(BucketActuals, a.Date, a)
}

// Ledger reads all three forecast logs.
func (s *Store) Ledger() (energy.Ledger, error) {
	var l energy.Ledger
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, src := range []struct {
			bucket string
			dst    *[]energy.Prediction
		}{
			{BucketPredictionsML, &l.ML},
			{BucketPredictionsLLM, &l.LLM},
		} {
			if err := tx.Bucket([]byte(src.bucket)).ForEach(func(k, v []byte) error {
				var p energy.Prediction
				if err := json.Unmarshal(v, &p); err != nil {
					return err
				}
				*src.dst = append(*src.dst, p)
				return nil
			}); err != nil {
				return err
			}
		}
		return tx.Bucket([]byte(BucketActuals)).ForEach(func(k, v []byte) error {
			var a energy.Actual
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			l.Actuals = append(l.Actuals, a)
			return nil
		})
	})
	return l, err
}

// Comparator replays the stored ledger into a fresh comparator.
func (s *Store) Comparator() (*energy.Comparator, error) {
	l, err := s.Ledger()
	if err != nil {
		return nil, err
	}
	c := energy.NewComparator()
	for _, p := range l.ML {
		c.RecordModel(p)
	}
	for _, p := range l.LLM {
		c.RecordAlternative(p.Date, p.PredictedEnergy, p.Confidence)
	}
	for _, a := range l.Actuals {
		c.RecordActual(a.Date, a.Energy)
	}
	return c, nil
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			var size int64
			if err := b.ForEach(func(k, v []byte) error {
				count++
				size += int64(len(k) + len(v))
				return nil
			}); err != nil {
				return err
			}
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: size})
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	if !knownBucket(name) {
		return fmt.Errorf("unknown bucket %q", name)
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

func knownBucket(name string) bool {
	for _, b := range AllBuckets {
		if b == name {
			return true
		}
	}
	return false
}

// compactTxMaxSize bounds the bytes copied per transaction during Compact.
const compactTxMaxSize = 64 << 20

// Compact rewrites the database into a fresh file and swaps it in place,
// returning the file size before and after. The store stays open.
func (s *Store) Compact() (before, after int64, err error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0, 0, fmt.Errorf("stat db: %w", err)
	}
	before = fi.Size()

	tmp := s.path + ".compact"
	_ = os.Remove(tmp)
	dst, err := bolt.Open(tmp, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return before, 0, fmt.Errorf("opening compaction target: %w", err)
	}
	if err := bolt.Compact(dst, s.db, compactTxMaxSize); err != nil {
		dst.Close()
		os.Remove(tmp)
		return before, 0, fmt.Errorf("copying data: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return before, 0, err
	}
	if err := s.db.Close(); err != nil {
		os.Remove(tmp)
		return before, 0, err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		// reopen the untouched original
		if db, openErr := openDB(s.path); openErr == nil {
			s.db = db
		}
		return before, 0, fmt.Errorf("replacing db file: %w", err)
	}
	db, err := openDB(s.path)
	if err != nil {
		return before, 0, err
	}
	s.db = db

	fi, err = os.Stat(s.path)
	if err != nil {
		return before, 0, fmt.Errorf("stat db: %w", err)
	}
	return before, fi.Size(), nil
}
