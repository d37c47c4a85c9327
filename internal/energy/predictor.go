package energy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/stats"
	"github.com/derickschaefer/lifeos/internal/util"
)

// ErrNotTrained is returned when a prediction or export is attempted before
// the model has been trained or loaded.
var ErrNotTrained = errors.New("energy model is not trained")

// ModelVersion tags every prediction and exported parameter set.
const ModelVersion = "1.1"

const (
	minEnergy = 1.0
	maxEnergy = 10.0

	// stdEpsilon is the floor below which a feature counts as constant.
	stdEpsilon = 1e-12

	minConfidence = 0.2
)

// Source identifies who produced a forecast.
type Source string

const (
	SourceML  Source = "ml"
	SourceLLM Source = "llm"
)

// ParseSource accepts "ml" or "llm".
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceML, SourceLLM:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown prediction source %q: expected ml or llm", s)
}

// Prediction is a single energy forecast on the 1–10 scale.
type Prediction struct {
	Date            time.Time          `json:"date"`
	Source          Source             `json:"source"`
	PredictedEnergy float64            `json:"predicted_energy"`
	Confidence      float64            `json:"confidence"`
	FeaturesUsed    map[string]float64 `json:"features_used,omitempty"`
	ModelVersion    string             `json:"model_version,omitempty"`
}

// FeatureWeight is one entry of the importance ranking.
type FeatureWeight struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"` // |standardized coefficient|
}

// TrainingReport summarizes a completed Train call.
type TrainingReport struct {
	SampleCount       int                `json:"sample_count"`
	RSquared          float64            `json:"r_squared"`
	Intercept         float64            `json:"intercept"`
	Coefficients      map[string]float64 `json:"coefficients"`
	FeatureImportance []FeatureWeight    `json:"feature_importance"`
	Solver            string             `json:"solver"` // "qr" or "pinv"
}

// Params is the complete serializable model state. Loading it into a fresh
// Predictor reproduces the original's predictions exactly.
type Params struct {
	Version      string    `json:"version"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	FeatureMeans []float64 `json:"feature_means"`
	FeatureStds  []float64 `json:"feature_stds"`
	FeatureNames []string  `json:"feature_names"`
	RSquared     float64   `json:"r_squared"`
	SampleCount  int       `json:"sample_count"`
}

// Predictor owns one trained model. It is not safe for concurrent use: Train
// and LoadParams must not run alongside Predict.
type Predictor struct {
	opts Options
	log  *slog.Logger

	trained     bool
	coef        []float64
	intercept   float64
	means       []float64
	stds        []float64
	r2          float64
	sampleCount int
	version     string
}

// NewPredictor returns an untrained predictor. A nil logger discards output.
func NewPredictor(opts Options, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Predictor{opts: opts, log: logger}
}

// Trained reports whether the model can predict.
func (p *Predictor) Trained() bool { return p.trained }

// Options returns the predictor's feature options.
func (p *Predictor) Options() Options { return p.opts }

// PrepareTrainingData builds a feature matrix with the predictor's options.
func (p *Predictor) PrepareTrainingData(records []model.MetricRecord, journal []model.JournalEntry) (*TrainingData, error) {
	return p.opts.PrepareTrainingData(records, journal)
}

// ─── Training ─────────────────────────────────────────────────────────────────

// Train fits the model on td, replacing any previous state. Features are
// standardized with population mean and standard deviation; a constant
// feature keeps a standard deviation of 1. The least-squares system is solved
// by QR, falling back to an SVD pseudo-inverse when QR reports a singular or
// ill-conditioned matrix.
func (p *Predictor) Train(td *TrainingData) (TrainingReport, error) {
	if td == nil || len(td.Features) == 0 {
		return TrainingReport{}, errors.New("train: empty training data")
	}
	n, k := len(td.Features), len(FeatureNames)
	if len(td.Targets) != n {
		return TrainingReport{}, fmt.Errorf("train: %d rows but %d targets", n, len(td.Targets))
	}

	means := make([]float64, k)
	stds := make([]float64, k)
	for j := 0; j < k; j++ {
		col := make([]float64, n)
		for i, row := range td.Features {
			if len(row) != k {
				return TrainingReport{}, fmt.Errorf("train: row %d has %d features, want %d", i, len(row), k)
			}
			col[i] = row[j]
		}
		means[j], stds[j] = stats.Mean(col), stats.PopStdDev(col)
		if stds[j] < stdEpsilon {
			stds[j] = 1
		}
	}

	// design matrix: bias column then standardized features
	x := mat.NewDense(n, k+1, nil)
	for i, row := range td.Features {
		x.Set(i, 0, 1)
		for j, v := range row {
			x.Set(i, j+1, (v-means[j])/stds[j])
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), td.Targets...))

	theta, solver := solveLeastSquares(x, y)
	if solver == "pinv" {
		p.log.Info("least-squares fell back to pseudo-inverse", "rows", n, "cols", k+1)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, theta)
	yMean := stats.Mean(td.Targets)
	var ssRes, ssTot float64
	for i, t := range td.Targets {
		r := t - fitted.AtVec(i)
		ssRes += r * r
		d := t - yMean
		ssTot += d * d
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	p.intercept = theta.AtVec(0)
	p.coef = make([]float64, k)
	for j := range p.coef {
		p.coef[j] = theta.AtVec(j + 1)
	}
	p.means, p.stds = means, stds
	p.r2 = r2
	p.sampleCount = n
	p.version = ModelVersion
	p.trained = true

	report := TrainingReport{
		SampleCount:  n,
		RSquared:     r2,
		Intercept:    p.intercept,
		Coefficients: make(map[string]float64, k),
		Solver:       solver,
	}
	for j, name := range FeatureNames {
		report.Coefficients[name] = p.coef[j]
		report.FeatureImportance = append(report.FeatureImportance, FeatureWeight{Name: name, Weight: math.Abs(p.coef[j])})
	}
	sort.SliceStable(report.FeatureImportance, func(a, b int) bool {
		return report.FeatureImportance[a].Weight > report.FeatureImportance[b].Weight
	})

	p.log.Info("energy model trained", "samples", n, "r_squared", r2, "solver", solver)
	return report, nil
}

// solveLeastSquares minimizes |x·θ - y|. It tries QR first and uses the
// pseudo-inverse when QR is unavailable (fewer rows than columns), fails, or
// yields non-finite coefficients.
func solveLeastSquares(x *mat.Dense, y *mat.VecDense) (*mat.VecDense, string) {
	r, c := x.Dims()
	if r >= c {
		var qr mat.QR
		qr.Factorize(x)
		theta := mat.NewVecDense(c, nil)
		if err := qr.SolveVecTo(theta, false, y); err == nil && finiteVec(theta) {
			return theta, "qr"
		}
	}
	return pinvSolve(x, y), "pinv"
}

// pinvSolve computes θ = V·Σ⁺·Uᵀ·y from a thin SVD, discarding singular
// values below max(m,n)·eps·σmax.
func pinvSolve(x *mat.Dense, y *mat.VecDense) *mat.VecDense {
	r, c := x.Dims()
	theta := mat.NewVecDense(c, nil)

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return theta
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	if len(values) == 0 {
		return theta
	}
	tol := float64(max(r, c)) * 2.220446049250313e-16 * values[0]
	for i, s := range values {
		if s <= tol {
			continue
		}
		var uy float64
		for row := 0; row < r; row++ {
			uy += u.At(row, i) * y.AtVec(row)
		}
		w := uy / s
		for j := 0; j < c; j++ {
			theta.SetVec(j, theta.AtVec(j)+w*v.At(j, i))
		}
	}
	return theta
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if f := v.AtVec(i); math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// ─── Inference ────────────────────────────────────────────────────────────────

// Predict forecasts energy for date from raw features. The output is clamped
// to [1, 10] and confidence is R²·0.8+0.2 clamped to [0.2, 1].
func (p *Predictor) Predict(date time.Time, f Features) (Prediction, error) {
	if !p.trained {
		return Prediction{}, ErrNotTrained
	}
	if err := f.validate(); err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}

	raw := p.intercept
	for j, v := range f.Vector() {
		raw += p.coef[j] * (v - p.means[j]) / p.stds[j]
	}

	return Prediction{
		Date:            util.Day(date),
		Source:          SourceML,
		PredictedEnergy: util.Clamp(raw, minEnergy, maxEnergy),
		Confidence:      util.Clamp(p.r2*0.8+minConfidence, minConfidence, 1),
		FeaturesUsed:    f.Map(),
		ModelVersion:    p.version,
	}, nil
}

// PredictFromData looks up date's sleep and readiness in records and
// forecasts from them. Missing sleep or readiness returns
// stats.ErrInsufficientData; a non-positive prevEnergy uses the neutral level.
func (p *Predictor) PredictFromData(records []model.MetricRecord, date time.Time, prevEnergy float64) (Prediction, error) {
	if !p.trained {
		return Prediction{}, ErrNotTrained
	}
	f, err := p.opts.FeaturesFor(records, date, prevEnergy)
	if err != nil {
		return Prediction{}, err
	}
	return p.Predict(date, f)
}

// ─── Persistence ──────────────────────────────────────────────────────────────

// Params exports the trained model state.
func (p *Predictor) Params() (Params, error) {
	if !p.trained {
		return Params{}, ErrNotTrained
	}
	return Params{
		Version:      p.version,
		Coefficients: append([]float64(nil), p.coef...),
		Intercept:    p.intercept,
		FeatureMeans: append([]float64(nil), p.means...),
		FeatureStds:  append([]float64(nil), p.stds...),
		FeatureNames: append([]string(nil), FeatureNames...),
		RSquared:     p.r2,
		SampleCount:  p.sampleCount,
	}, nil
}

// LoadParams replaces the model state with params after validating it.
// On error the predictor is left unchanged.
func (p *Predictor) LoadParams(params Params) error {
	k := len(FeatureNames)
	switch {
	case len(params.Coefficients) != k:
		return fmt.Errorf("load params: %d coefficients, want %d", len(params.Coefficients), k)
	case len(params.FeatureMeans) != k:
		return fmt.Errorf("load params: %d feature means, want %d", len(params.FeatureMeans), k)
	case len(params.FeatureStds) != k:
		return fmt.Errorf("load params: %d feature stds, want %d", len(params.FeatureStds), k)
	}
	if len(params.FeatureNames) > 0 {
		if len(params.FeatureNames) != k {
			return fmt.Errorf("load params: %d feature names, want %d", len(params.FeatureNames), k)
		}
		for i, name := range params.FeatureNames {
			if name != FeatureNames[i] {
				return fmt.Errorf("load params: feature %d is %q, want %q", i, name, FeatureNames[i])
			}
		}
	}
	for j, s := range params.FeatureStds {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("load params: feature %s has invalid std %g", FeatureNames[j], s)
		}
	}

	p.coef = append([]float64(nil), params.Coefficients...)
	p.intercept = params.Intercept
	p.means = append([]float64(nil), params.FeatureMeans...)
	p.stds = append([]float64(nil), params.FeatureStds...)
	p.r2 = params.RSquared
	p.sampleCount = params.SampleCount
	p.version = params.Version
	if p.version == "" {
		p.version = ModelVersion
	}
	p.trained = true
	return nil
}
