// Package stats provides the descriptive statistics used by the dashboard.
// Every function treats its input as read-only.
package stats

import (
	"errors"
	"math"
	"slices"

	mstats "github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyInput is returned when a statistic is requested over no values
	ErrEmptyInput = errors.New("stats: empty input")

	// ErrInsufficientSamples is returned by SampleStdDev for fewer than two values
	ErrInsufficientSamples = errors.New("stats: at least two samples required")

	// ErrQuantileRange is returned for a quantile outside [0, 1]
	ErrQuantileRange = errors.New("stats: quantile must be within [0, 1]")
)

// Sort returns an ascending copy of values
func Sort(values []float64) []float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return sorted
}

// Max returns the largest value
func Max(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}
	sorted := Sort(values)
	return sorted[len(sorted)-1], nil
}

// Min returns the smallest value
func Min(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}
	return Sort(values)[0], nil
}

// Sum adds values together. The sum of no values is 0.
func Sum(values []float64) float64 {
	total, err := mstats.Sum(values)
	if err != nil {
		return 0
	}
	return total
}

// Mean returns the arithmetic mean
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}
	return mstats.Mean(values)
}

// SampleStdDev returns the sample standard deviation (n-1 denominator)
func SampleStdDev(values []float64) (float64, error) {
	switch len(values) {
	case 0:
		return 0, ErrEmptyInput
	case 1:
		return 0, ErrInsufficientSamples
	}
	return mstats.StandardDeviationSample(values)
}

// Quantile estimates the q-th quantile by linear interpolation between the
// closest ranks of the sorted values (R-7). Quantile(xs, 0) is the minimum
// and Quantile(xs, 1) the maximum.
func Quantile(values []float64, q float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}
	if math.IsNaN(q) || q < 0 || q > 1 {
		return 0, ErrQuantileRange
	}

	sorted := Sort(values)
	pos := float64(len(sorted)-1) * q
	base := int(math.Floor(pos))
	rest := pos - float64(base)

	if base+1 < len(sorted) {
		return sorted[base] + rest*(sorted[base+1]-sorted[base]), nil
	}
	return sorted[base], nil
}

// Ln returns the natural logarithm of x. Non-positive input yields -Inf or NaN.
func Ln(x float64) float64 {
	return math.Log(x)
}

// Round rounds x to the given number of decimal places, half away from zero.
// NaN and infinities are returned unchanged.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	f, _ := decimal.NewFromFloat(x).Round(int32(places)).Float64()
	return f
}

// Format renders x with a fixed number of decimals
func Format(x float64, places int) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return formatSpecial(x)
	}
	return decimal.NewFromFloat(x).StringFixed(int32(places))
}

func formatSpecial(x float64) string {
	switch {
	case math.IsNaN(x):
		return "NaN"
	case math.IsInf(x, 1):
		return "Infinity"
	default:
		return "-Infinity"
	}
}
