// Package anomaly turns absolute daily series into zero-centered anomalies.
//
// The standard pipeline (Filter.Apply) is:
//
//  1. values below the validity floor become missing
//  2. percent-centering: 100 * (v - mean) / mean over valid values
//  3. high-pass: subtract a centered rolling mean of Window days
//
// Points closer than half a window to either end have no rolling mean and
// come out missing.
package anomaly

import (
	"errors"
	"fmt"
	"math"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

// DefaultWindow is the high-pass window in days.
const DefaultWindow = 35

var (
	ErrAllMissing = errors.New("anomaly: every value is missing")
	ErrZeroMean   = errors.New("anomaly: mean is zero")
	ErrBadWindow  = errors.New("anomaly: window must be at least 1")
)

// Filter is the floor + percent-center + high-pass pipeline.
type Filter struct {
	Floor  float64
	Window int
}

// DefaultFilter uses a floor of 1 count and a 35-day window.
func DefaultFilter() Filter {
	return Filter{Floor: 1, Window: DefaultWindow}
}

// Apply runs the full pipeline. The output has the same length and dates as s.
func (f Filter) Apply(s *series.Series) (*series.Series, error) {
	if f.Window < 1 {
		return nil, fmt.Errorf("%w: %d", ErrBadWindow, f.Window)
	}
	centered, err := PercentCenter(ApplyFloor(s, f.Floor))
	if err != nil {
		return nil, err
	}
	return HighPass(centered, f.Window)
}

// ApplyFloor returns a copy of s with values below floor set to missing.
func ApplyFloor(s *series.Series, floor float64) *series.Series {
	out := s.Clone()
	for i, v := range out.Values {
		if v < floor {
			out.Values[i] = math.NaN()
		}
	}
	return out
}

func validMean(s *series.Series) (float64, error) {
	mean, ok := series.NanMean(s.Values)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAllMissing, s.Name)
	}
	return mean, nil
}

// PercentCenter expresses each value as percent deviation from the series mean.
func PercentCenter(s *series.Series) (*series.Series, error) {
	mean, err := validMean(s)
	if err != nil {
		return nil, err
	}
	if mean == 0 {
		return nil, fmt.Errorf("%w: %s", ErrZeroMean, s.Name)
	}
	out := make([]float64, s.Len())
	for i, v := range s.Values {
		out[i] = 100 * (v - mean) / mean
	}
	return s.WithValues(out), nil
}

// LongTermAnomaly is the fractional deviation from the series mean.
func LongTermAnomaly(s *series.Series) (*series.Series, error) {
	mean, err := validMean(s)
	if err != nil {
		return nil, err
	}
	if mean == 0 {
		return nil, fmt.Errorf("%w: %s", ErrZeroMean, s.Name)
	}
	out := make([]float64, s.Len())
	for i, v := range s.Values {
		out[i] = (v - mean) / mean
	}
	return s.WithValues(out), nil
}

// Standardize converts values to z-scores using the population std.
// A constant series standardizes to all zeros.
func Standardize(s *series.Series) (*series.Series, error) {
	mean, std, n := series.NanMeanStd(s.Values)
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAllMissing, s.Name)
	}
	out := make([]float64, s.Len())
	for i, v := range s.Values {
		if std == 0 {
			if math.IsNaN(v) {
				out[i] = v
			} else {
				out[i] = 0
			}
			continue
		}
		out[i] = (v - mean) / std
	}
	return s.WithValues(out), nil
}

// MonthlyAnomaly is the fractional deviation of each day from the mean of
// its calendar month, taken over every year in the series. Months without
// valid data or with a zero mean yield missing values.
func MonthlyAnomaly(s *series.Series) (*series.Series, error) {
	if _, err := validMean(s); err != nil {
		return nil, err
	}

	var sums [13]float64
	var counts [13]int
	for i, v := range s.Values {
		if math.IsNaN(v) {
			continue
		}
		m := s.Dates[i].Month()
		sums[m] += v
		counts[m]++
	}

	out := make([]float64, s.Len())
	for i, v := range s.Values {
		m := s.Dates[i].Month()
		if counts[m] == 0 {
			out[i] = math.NaN()
			continue
		}
		mean := sums[m] / float64(counts[m])
		if mean == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (v - mean) / mean
	}
	return s.WithValues(out), nil
}
