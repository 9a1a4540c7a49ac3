// Package montecarlo builds a null distribution for superposed epoch
// profiles by averaging randomly placed windows.
//
// Each iteration draws Events start indices uniformly from [0, N-Length),
// cuts a window at each one (no realignment) and reduces them to a mean
// profile. The per-offset mean and population std over all iterations form
// the Baseline that a real event profile is compared against.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/epoch"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

var (
	ErrSeriesTooShort = errors.New("montecarlo: series not longer than epoch length")
	ErrBadParameters  = errors.New("montecarlo: invalid parameters")
)

// DefaultIterations matches the usual 10k-run baseline.
const DefaultIterations = 10000

// progressBatch is how many iterations pass between progress updates and
// cancellation checks.
const progressBatch = 256

// Progress receives completed iteration counts. *common.Stats satisfies it.
type Progress interface {
	AddIterations(count uint64)
}

// NewRand returns a generator that yields the same draws for the same seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Test configures one significance run.
type Test struct {
	Length     int // L
	Events     int // K windows per iteration
	Iterations int // M
	Rand       *rand.Rand
	Progress   Progress // optional
}

func (t Test) validate(n int) error {
	switch {
	case t.Length < 1:
		return fmt.Errorf("%w: length %d", ErrBadParameters, t.Length)
	case t.Events < 1:
		return fmt.Errorf("%w: events %d", ErrBadParameters, t.Events)
	case t.Iterations < 1:
		return fmt.Errorf("%w: iterations %d", ErrBadParameters, t.Iterations)
	case t.Rand == nil:
		return fmt.Errorf("%w: nil random source", ErrBadParameters)
	case n <= t.Length:
		return fmt.Errorf("%w: %d days for length %d", ErrSeriesTooShort, n, t.Length)
	}
	return nil
}

// Run executes the test against s. ctx is checked between batches of
// iterations.
func (t Test) Run(ctx context.Context, s *series.Series) (*Baseline, error) {
	if err := t.validate(s.Len()); err != nil {
		return nil, err
	}

	span := s.Len() - t.Length
	profiles := make([][]float64, t.Iterations)
	col := make([]float64, t.Events)
	starts := make([]int, t.Events)
	reported := 0

	for it := 0; it < t.Iterations; it++ {
		if it%progressBatch == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if t.Progress != nil && it > reported {
				t.Progress.AddIterations(uint64(it - reported))
				reported = it
			}
		}

		for k := range starts {
			starts[k] = t.Rand.IntN(span)
		}
		prof := make([]float64, t.Length)
		for j := range prof {
			for k, st := range starts {
				col[k] = s.Values[st+j]
			}
			if m, ok := series.NanMean(col); ok {
				prof[j] = m
			} else {
				prof[j] = math.NaN()
			}
		}
		profiles[it] = prof
	}
	if t.Progress != nil {
		t.Progress.AddIterations(uint64(t.Iterations - reported))
	}

	return newBaseline(t.Length, profiles), nil
}

// Baseline is the null expectation for an L-day epoch profile.
type Baseline struct {
	Length     int
	Iterations int
	Mean       []float64
	Std        []float64
	Count      []int       // iterations with a valid mean at each offset
	Profiles   [][]float64 // M iteration means, each of length L
}

func newBaseline(length int, profiles [][]float64) *Baseline {
	b := &Baseline{
		Length:     length,
		Iterations: len(profiles),
		Mean:       make([]float64, length),
		Std:        make([]float64, length),
		Count:      make([]int, length),
		Profiles:   profiles,
	}
	for j := 0; j < length; j++ {
		b.Mean[j], b.Std[j], b.Count[j] = series.NanMeanStd(b.column(j))
	}
	return b
}

func (b *Baseline) column(j int) []float64 {
	col := make([]float64, len(b.Profiles))
	for i, p := range b.Profiles {
		col[i] = p[j]
	}
	return col
}

// Band returns mean - z*std and mean + z*std per offset.
func (b *Baseline) Band(z float64) (lower, upper []float64) {
	lower = append([]float64(nil), b.Mean...)
	upper = append([]float64(nil), b.Mean...)
	floats.AddScaled(lower, -z, b.Std)
	floats.AddScaled(upper, z, b.Std)
	return lower, upper
}

// PercentileBand returns the empirical lo and hi percentiles (0 < p <= 100)
// of the iteration means at each offset. Offsets with no valid iteration
// mean are missing.
func (b *Baseline) PercentileBand(lo, hi float64) (lower, upper []float64, err error) {
	if !(lo > 0 && lo < hi && hi <= 100) {
		return nil, nil, fmt.Errorf("%w: percentiles %g..%g", ErrBadParameters, lo, hi)
	}
	lower = make([]float64, b.Length)
	upper = make([]float64, b.Length)
	for j := 0; j < b.Length; j++ {
		col := stats.Float64Data(series.Compact(b.column(j)))
		if len(col) == 0 {
			lower[j], upper[j] = math.NaN(), math.NaN()
			continue
		}
		if lower[j], err = stats.Percentile(col, lo); err != nil {
			return nil, nil, fmt.Errorf("offset %d lower percentile: %w", j, err)
		}
		if upper[j], err = stats.Percentile(col, hi); err != nil {
			return nil, nil, fmt.Errorf("offset %d upper percentile: %w", j, err)
		}
	}
	return lower, upper, nil
}

// ZForConfidence returns the two-sided normal critical value for a
// confidence level in (0, 1), e.g. 1.96 for 0.95. Out-of-range levels give
// NaN.
func ZForConfidence(level float64) float64 {
	if !(level > 0 && level < 1) {
		return math.NaN()
	}
	return distuv.UnitNormal.Quantile(1 - (1-level)/2)
}

// Compare flags offsets where the profile mean lies strictly outside
// [lower, upper]. Missing means or bounds are never significant.
func Compare(p *epoch.Profile, lower, upper []float64) ([]bool, error) {
	if len(lower) != len(p.Mean) || len(upper) != len(p.Mean) {
		return nil, fmt.Errorf("%w: profile %d, band %d/%d",
			series.ErrLengthMismatch, len(p.Mean), len(lower), len(upper))
	}
	out := make([]bool, len(p.Mean))
	for j, m := range p.Mean {
		if math.IsNaN(m) || math.IsNaN(lower[j]) || math.IsNaN(upper[j]) {
			continue
		}
		out[j] = m < lower[j] || m > upper[j]
	}
	return out, nil
}
