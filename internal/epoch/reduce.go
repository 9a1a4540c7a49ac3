package epoch

import (
	"math"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

// Profile is the per-offset cross-event summary of a Matrix.
type Profile struct {
	Offsets []int
	Mean    []float64
	Std     []float64 // population std (ddof 0)
	Count   []int     // non-missing windows contributing at each offset
	Events  int
}

// Reduce averages windows offset by offset, ignoring missing entries. An
// offset where every window is missing yields missing mean and std.
func Reduce(m *Matrix) (*Profile, error) {
	if m == nil || len(m.Windows) == 0 {
		return nil, ErrEmptyMatrix
	}
	p := &Profile{
		Offsets: m.Offsets(),
		Mean:    make([]float64, m.Length),
		Std:     make([]float64, m.Length),
		Count:   make([]int, m.Length),
		Events:  len(m.Windows),
	}
	for j := 0; j < m.Length; j++ {
		p.Mean[j], p.Std[j], p.Count[j] = series.NanMeanStd(m.Column(j))
	}
	return p, nil
}

// NormalizeMaxAbs scales every window by its largest absolute value so that
// events of different amplitude contribute comparably. Windows with no valid
// value, or all zeros, are left untouched.
func (m *Matrix) NormalizeMaxAbs() {
	for k := range m.Windows {
		vals := m.Windows[k].Values
		peak := series.NanMaxAbs(vals)
		if math.IsNaN(peak) || peak == 0 {
			continue
		}
		for j := range vals {
			vals[j] /= peak
		}
	}
}

// PercentFromBackground re-expresses every window as percent change from
// the mean of its first n values. Windows without a usable background
// become entirely missing.
func (m *Matrix) PercentFromBackground(n int) {
	if n > m.Length {
		n = m.Length
	}
	for k := range m.Windows {
		vals := m.Windows[k].Values
		bg, ok := series.NanMean(vals[:n])
		for j := range vals {
			if !ok || bg == 0 {
				vals[j] = math.NaN()
				continue
			}
			vals[j] = 100 * (vals[j] - bg) / bg
		}
	}
}
