// Package stats holds the numerical routines behind pattern detection and
// forecast scoring: moments, Pearson correlation, simple linear regression
// and the two-sample t-test. Every function is pure and safe for concurrent
// use; none of them keep state between calls.
//
// Failures are reported through two sentinel errors so callers can tell a
// legitimately short series apart from input the statistic cannot describe:
//
//	ErrInsufficientData   fewer samples than the routine needs
//	ErrDegenerate         zero variance or otherwise undefined statistic
package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrDegenerate       = errors.New("degenerate input")
)

// varianceEpsilon is the floor below which a variance is treated as zero.
const varianceEpsilon = 1e-12

// ─── Moments ──────────────────────────────────────────────────────────────────

// Mean returns the arithmetic mean of xs, or NaN for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

// StdDev returns the sample (n-1) standard deviation of xs.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// PopStdDev returns the population (n) standard deviation of xs.
func PopStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := stat.Mean(xs, nil)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// IsConstant reports whether xs has (numerically) zero variance.
func IsConstant(xs []float64) bool {
	if len(xs) < 2 {
		return true
	}
	return stat.Variance(xs, nil) < varianceEpsilon
}

// ─── Correlation ──────────────────────────────────────────────────────────────

// Correlation is a Pearson product-moment correlation with its two-sided
// p-value under the null hypothesis of zero correlation.
type Correlation struct {
	R float64 `json:"r"`
	P float64 `json:"p_value"`
	N int     `json:"n"`
}

// Pearson correlates x and y, which must have equal length. minN is the
// smallest sample the caller accepts; pass 0 for the mathematical minimum of 3.
func Pearson(x, y []float64, minN int) (Correlation, error) {
	if len(x) != len(y) {
		return Correlation{}, fmt.Errorf("pearson: length mismatch %d vs %d", len(x), len(y))
	}
	if minN < 3 {
		minN = 3
	}
	n := len(x)
	if n < minN {
		return Correlation{N: n}, fmt.Errorf("pearson: need %d pairs, got %d: %w", minN, n, ErrInsufficientData)
	}
	if IsConstant(x) || IsConstant(y) {
		return Correlation{N: n}, fmt.Errorf("pearson: constant input: %w", ErrDegenerate)
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return Correlation{N: n}, fmt.Errorf("pearson: undefined coefficient: %w", ErrDegenerate)
	}
	r = math.Max(-1, math.Min(1, r))
	return Correlation{R: r, P: correlationP(r, n), N: n}, nil
}

// correlationP is the two-sided p-value of r with n-2 degrees of freedom.
func correlationP(r float64, n int) float64 {
	df := float64(n - 2)
	den := 1 - r*r
	if den <= 0 {
		return 0
	}
	t := r * math.Sqrt(df/den)
	return twoSidedP(t, df)
}

// ─── Regression ───────────────────────────────────────────────────────────────

// Regression is an ordinary least-squares fit of y = Intercept + Slope·x.
// P is the two-sided p-value for the slope being zero.
type Regression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R         float64 `json:"r"`
	R2        float64 `json:"r2"`
	P         float64 `json:"p_value"`
	N         int     `json:"n"`
}

// At evaluates the fitted line at x.
func (r Regression) At(x float64) float64 {
	return r.Intercept + r.Slope*x
}

// LinRegress fits y against x. At least 3 points are needed for a slope
// p-value; a constant x or y is degenerate.
func LinRegress(x, y []float64) (Regression, error) {
	if len(x) != len(y) {
		return Regression{}, fmt.Errorf("linregress: length mismatch %d vs %d", len(x), len(y))
	}
	n := len(x)
	if n < 3 {
		return Regression{N: n}, fmt.Errorf("linregress: need 3 points, got %d: %w", n, ErrInsufficientData)
	}
	if IsConstant(x) || IsConstant(y) {
		return Regression{N: n}, fmt.Errorf("linregress: constant input: %w", ErrDegenerate)
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r := math.Max(-1, math.Min(1, stat.Correlation(x, y, nil)))
	return Regression{
		Slope:     beta,
		Intercept: alpha,
		R:         r,
		R2:        r * r,
		P:         correlationP(r, n),
		N:         n,
	}, nil
}

// IndexRegress fits ys against their positions 0..n-1.
func IndexRegress(ys []float64) (Regression, error) {
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	return LinRegress(xs, ys)
}

// ─── t-test ───────────────────────────────────────────────────────────────────

// TTest is the result of an independent two-sample t-test.
type TTest struct {
	T  float64 `json:"t"`
	P  float64 `json:"p_value"`
	DF float64 `json:"df"`
}

// TTestInd runs Student's two-sample t-test with pooled variance on a and b.
// Each sample needs at least 2 values. When both samples have zero spread the
// test is only defined if their means differ, in which case p is 0.
func TTestInd(a, b []float64) (TTest, error) {
	n1, n2 := len(a), len(b)
	if n1 < 2 || n2 < 2 {
		return TTest{}, fmt.Errorf("ttest: need 2 values per group, got %d and %d: %w", n1, n2, ErrInsufficientData)
	}
	m1, v1 := stat.MeanVariance(a, nil)
	m2, v2 := stat.MeanVariance(b, nil)
	df := float64(n1 + n2 - 2)
	pooled := ((float64(n1)-1)*v1 + (float64(n2)-1)*v2) / df
	diff := m1 - m2

	if pooled < varianceEpsilon {
		if math.Abs(diff) < varianceEpsilon {
			return TTest{DF: df}, fmt.Errorf("ttest: identical constant groups: %w", ErrDegenerate)
		}
		return TTest{T: math.Copysign(math.Inf(1), diff), P: 0, DF: df}, nil
	}

	t := diff / math.Sqrt(pooled*(1/float64(n1)+1/float64(n2)))
	return TTest{T: t, P: twoSidedP(t, df), DF: df}, nil
}

// ─── Distribution helpers ─────────────────────────────────────────────────────

// twoSidedP returns P(|T| >= |t|) for Student's t with df degrees of freedom.
func twoSidedP(t, df float64) float64 {
	if math.IsInf(t, 0) {
		return 0
	}
	if math.IsNaN(t) || df <= 0 {
		return 1
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	return math.Max(0, math.Min(1, p))
}
