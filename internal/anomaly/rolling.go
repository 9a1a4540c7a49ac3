package anomaly

import (
	"fmt"
	"math"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

// RollingMean returns the centered rolling mean of values over window days.
// The window for point i spans [i-window/2, i-window/2+window-1], so odd
// windows are symmetric and even windows hold one more day before i than
// after it. A point's mean is missing unless every value in its window exists
// and is valid.
func RollingMean(values []float64, window int) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 1 || window > n {
		return out
	}

	lead := window / 2
	var sum float64
	var missing int

	// Slide [lo, lo+window) across the series; each full window belongs to
	// the point lead days after its start.
	for j := 0; j < window; j++ {
		if math.IsNaN(values[j]) {
			missing++
		} else {
			sum += values[j]
		}
	}
	for lo := 0; ; lo++ {
		if missing == 0 {
			out[lo+lead] = sum / float64(window)
		}
		hi := lo + window
		if hi >= n {
			break
		}
		if v := values[lo]; math.IsNaN(v) {
			missing--
		} else {
			sum -= v
		}
		if v := values[hi]; math.IsNaN(v) {
			missing++
		} else {
			sum += v
		}
	}
	return out
}

// HighPass subtracts the centered rolling mean from s.
func HighPass(s *series.Series, window int) (*series.Series, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: %d", ErrBadWindow, window)
	}
	trend := RollingMean(s.Values, window)
	out := make([]float64, s.Len())
	for i, v := range s.Values {
		out[i] = v - trend[i]
	}
	return s.WithValues(out), nil
}

// PercentDeviation is 100 * (v - trend) / trend against a centered rolling
// mean of window days.
func PercentDeviation(values []float64, window int) []float64 {
	trend := RollingMean(values, window)
	out := make([]float64, len(values))
	for i, v := range values {
		if trend[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = 100 * (v - trend[i]) / trend[i]
	}
	return out
}
