package series

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Compact returns the non-missing values of xs in order.
func Compact(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// NanMean is the mean over non-missing values. ok is false when every value
// is missing.
func NanMean(xs []float64) (mean float64, ok bool) {
	valid := Compact(xs)
	if len(valid) == 0 {
		return math.NaN(), false
	}
	return stat.Mean(valid, nil), true
}

// NanMeanStd returns the mean and population standard deviation (ddof 0)
// over non-missing values, together with how many values contributed.
// Both statistics are missing when n is 0.
func NanMeanStd(xs []float64) (mean, std float64, n int) {
	valid := Compact(xs)
	if len(valid) == 0 {
		return math.NaN(), math.NaN(), 0
	}
	if len(valid) == 1 {
		return valid[0], 0, 1
	}
	mean, std = stat.PopMeanStdDev(valid, nil)
	return mean, std, len(valid)
}

// NanArgMin returns the position of the smallest non-missing value, or -1.
func NanArgMin(xs []float64) int {
	idx := -1
	for i, v := range xs {
		if math.IsNaN(v) {
			continue
		}
		if idx < 0 || v < xs[idx] {
			idx = i
		}
	}
	return idx
}

// NanMaxAbs returns the largest absolute non-missing value, or missing.
func NanMaxAbs(xs []float64) float64 {
	best := math.NaN()
	for _, v := range xs {
		if math.IsNaN(v) {
			continue
		}
		if a := math.Abs(v); math.IsNaN(best) || a > best {
			best = a
		}
	}
	return best
}
