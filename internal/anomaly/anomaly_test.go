package anomaly_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/anomaly"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

var start = time.Date(2002, 1, 1, 0, 0, 0, 0, time.UTC)

func constant(n int, v float64) *series.Series {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = v
	}
	return series.NewDaily("const", start, vals)
}

func TestPercentCenter_ConstantSeriesIsZero(t *testing.T) {
	for _, v := range []float64{1, 10, 6434.125, 1e6} {
		out, err := anomaly.PercentCenter(constant(50, v))
		require.NoError(t, err)
		for i, x := range out.Values {
			assert.Equal(t, 0.0, x, "value %v index %d", v, i)
		}
	}
}

func TestPercentCenter_IgnoresMissing(t *testing.T) {
	s := series.NewDaily("x", start, []float64{90, math.NaN(), 110})
	out, err := anomaly.PercentCenter(s)
	require.NoError(t, err)
	assert.InDelta(t, -10, out.Values[0], 1e-12)
	assert.True(t, math.IsNaN(out.Values[1]))
	assert.InDelta(t, 10, out.Values[2], 1e-12)
}

func TestPercentCenter_AllMissingIsAnError(t *testing.T) {
	s := series.NewDaily("dead", start, []float64{0, 0.5, math.NaN()})
	_, err := anomaly.Filter{Floor: 1, Window: 3}.Apply(s)
	assert.ErrorIs(t, err, anomaly.ErrAllMissing)

	_, err = anomaly.PercentCenter(series.NewDaily("zero", start, []float64{-1, 1}))
	assert.ErrorIs(t, err, anomaly.ErrZeroMean)
}

func TestRollingMean_EdgesAndGaps(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5, 6, 7}

	odd := anomaly.RollingMean(vals, 3)
	assert.True(t, math.IsNaN(odd[0]))
	assert.InDelta(t, 2, odd[1], 1e-12)
	assert.InDelta(t, 6, odd[5], 1e-12)
	assert.True(t, math.IsNaN(odd[6]))

	// Even windows follow the pandas center convention: [i-2, i+1] for w=4.
	even := anomaly.RollingMean(vals, 4)
	assert.True(t, math.IsNaN(even[0]))
	assert.True(t, math.IsNaN(even[1]))
	assert.InDelta(t, 2.5, even[2], 1e-12)
	assert.InDelta(t, 5.5, even[5], 1e-12)
	assert.True(t, math.IsNaN(even[6]))

	gappy := []float64{1, 2, math.NaN(), 4, 5, 6, 7}
	g := anomaly.RollingMean(gappy, 3)
	assert.True(t, math.IsNaN(g[1]))
	assert.True(t, math.IsNaN(g[2]))
	assert.True(t, math.IsNaN(g[3]))
	assert.InDelta(t, 5, g[4], 1e-12)

	tooWide := anomaly.RollingMean(vals, 8)
	for _, v := range tooWide {
		assert.True(t, math.IsNaN(v))
	}
}

func TestRollingMean_NinetyDayEdges(t *testing.T) {
	ramp := make([]float64, 200)
	for i := range ramp {
		ramp[i] = float64(i)
	}
	r := anomaly.RollingMean(ramp, 90)
	assert.True(t, math.IsNaN(r[44]))
	assert.InDelta(t, 44.5, r[45], 1e-9)
	assert.InDelta(t, 154.5, r[155], 1e-9)
	assert.True(t, math.IsNaN(r[156]))
}

func TestFilter_ApplyRemovesTrendAndMarksEdges(t *testing.T) {
	// Linear trend plus a single dip: the high-pass output keeps the dip and
	// stays near zero elsewhere.
	n := 120
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = 6000 + float64(i)
	}
	vals[60] -= 300

	out, err := anomaly.Filter{Floor: 1, Window: 35}.Apply(series.NewDaily("trend", start, vals))
	require.NoError(t, err)
	require.Equal(t, n, out.Len())

	for i := 0; i < 17; i++ {
		assert.True(t, math.IsNaN(out.Values[i]), "leading edge %d", i)
		assert.True(t, math.IsNaN(out.Values[n-1-i]), "trailing edge %d", n-1-i)
	}
	assert.False(t, math.IsNaN(out.Values[17]))

	assert.Equal(t, 60, series.NanArgMin(out.Values))
	assert.Less(t, out.Values[60], -4.0)
	assert.InDelta(t, 0, out.Values[20], 0.2)
}

func TestFilter_BadWindow(t *testing.T) {
	_, err := anomaly.Filter{Floor: 1, Window: 0}.Apply(constant(10, 5))
	assert.ErrorIs(t, err, anomaly.ErrBadWindow)
}

func TestStandardizeAndLongTerm(t *testing.T) {
	s := series.NewDaily("x", start, []float64{2, 4, 4, 4, 5, 5, 7, 9})

	z, err := anomaly.Standardize(s)
	require.NoError(t, err)
	assert.InDelta(t, -1.5, z.Values[0], 1e-12)
	assert.InDelta(t, 2.0, z.Values[7], 1e-12)

	lt, err := anomaly.LongTermAnomaly(s)
	require.NoError(t, err)
	assert.InDelta(t, -0.6, lt.Values[0], 1e-12)

	flat, err := anomaly.Standardize(constant(5, 3))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, flat.Values)
}

func TestMonthlyAnomaly_UsesCalendarMonth(t *testing.T) {
	// Days straddling a year end are compared to their own month only.
	vals := []float64{}
	s0 := time.Date(2002, 12, 30, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		vals = append(vals, float64(10+i))
	}
	s := series.NewDaily("m", s0, vals) // Dec 30, Dec 31, Jan 1, Jan 2

	out, err := anomaly.MonthlyAnomaly(s)
	require.NoError(t, err)
	assert.InDelta(t, (10-10.5)/10.5, out.Values[0], 1e-12)
	assert.InDelta(t, (11-10.5)/10.5, out.Values[1], 1e-12)
	assert.InDelta(t, (12-12.5)/12.5, out.Values[2], 1e-12)
	assert.InDelta(t, (13-12.5)/12.5, out.Values[3], 1e-12)
}
