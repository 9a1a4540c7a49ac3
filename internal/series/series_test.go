package series_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

func date(s string) time.Time {
	t, err := series.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNew_RejectsGapsAndMismatch(t *testing.T) {
	_, err := series.New("x", []time.Time{date("2002-01-01")}, []float64{1, 2})
	assert.ErrorIs(t, err, series.ErrLengthMismatch)

	_, err = series.New("x",
		[]time.Time{date("2002-01-01"), date("2002-01-03")},
		[]float64{1, 2})
	assert.ErrorIs(t, err, series.ErrUnordered)

	s, err := series.New("x",
		[]time.Time{date("2002-01-01"), date("2002-01-02")},
		[]float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestFromPoints_FillsGapsWithMissing(t *testing.T) {
	s, err := series.FromPoints("oulu", []series.Point{
		{Date: date("2002-01-04"), Value: 4},
		{Date: date("2002-01-01"), Value: 1},
		{Date: date("2002-01-02"), Value: 2},
	})
	require.NoError(t, err)

	require.Equal(t, 4, s.Len())
	assert.Equal(t, date("2002-01-01"), s.Start())
	assert.Equal(t, date("2002-01-04"), s.End())
	assert.Equal(t, 1.0, s.Values[0])
	assert.Equal(t, 2.0, s.Values[1])
	assert.True(t, series.IsMissing(s.Values[2]))
	assert.Equal(t, 4.0, s.Values[3])
	assert.Equal(t, 3, s.Valid())

	_, err = series.FromPoints("empty", nil)
	assert.ErrorIs(t, err, series.ErrEmpty)
}

func TestIndexOfAndWindowPadding(t *testing.T) {
	s := series.NewDaily("x", date("2010-06-01"), []float64{0, 1, 2, 3, 4})

	i, ok := s.IndexOf(date("2010-06-03"))
	require.True(t, ok)
	assert.Equal(t, 2, i)

	_, ok = s.IndexOf(date("2010-05-31"))
	assert.False(t, ok)
	_, ok = s.IndexOf(date("2010-06-06"))
	assert.False(t, ok)

	w := s.Window(-2, 4)
	assert.True(t, math.IsNaN(w[0]))
	assert.True(t, math.IsNaN(w[1]))
	assert.Equal(t, []float64{0, 1}, w[2:])

	w = s.Window(3, 4)
	assert.Equal(t, []float64{3, 4}, w[:2])
	assert.True(t, math.IsNaN(w[2]))
	assert.True(t, math.IsNaN(w[3]))
}

func TestSliceClipsToBounds(t *testing.T) {
	s := series.NewDaily("x", date("2010-06-01"), []float64{0, 1, 2, 3, 4})
	sub := s.Slice(date("2010-05-01"), date("2010-06-02"))
	assert.Equal(t, []float64{0, 1}, sub.Values)

	empty := s.Slice(date("2011-01-01"), date("2011-02-01"))
	assert.Equal(t, 0, empty.Len())
}

func TestNanReductions(t *testing.T) {
	nan := math.NaN()

	m, ok := series.NanMean([]float64{1, nan, 3})
	require.True(t, ok)
	assert.Equal(t, 2.0, m)

	_, ok = series.NanMean([]float64{nan, nan})
	assert.False(t, ok)

	mean, std, n := series.NanMeanStd([]float64{2, 4, nan, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 8, n)
	assert.InDelta(t, 5.0, mean, 1e-12)
	assert.InDelta(t, 2.0, std, 1e-12)

	mean, std, n = series.NanMeanStd([]float64{nan})
	assert.Equal(t, 0, n)
	assert.True(t, math.IsNaN(mean))
	assert.True(t, math.IsNaN(std))

	assert.Equal(t, 2, series.NanArgMin([]float64{nan, 3, -1, 0}))
	assert.Equal(t, -1, series.NanArgMin([]float64{nan, nan}))
	assert.Equal(t, 5.0, series.NanMaxAbs([]float64{1, -5, nan, 4}))
}
