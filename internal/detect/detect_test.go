package detect_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/anomaly"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/detect"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

var start = time.Date(2003, 7, 1, 0, 0, 0, 0, time.UTC)

// forbush returns 200 days at 6000 counts with a decrease on day 100 that
// recovers over four days.
func forbush() *series.Series {
	vals := make([]float64, 200)
	for i := range vals {
		vals[i] = 6000
	}
	vals[100], vals[101], vals[102], vals[103] = 5400, 5600, 5800, 5900
	return series.NewDaily("OULU", start, vals)
}

func TestParseStrategy(t *testing.T) {
	s, err := detect.ParseStrategy("raw")
	require.NoError(t, err)
	assert.Equal(t, detect.StrategyRawRollingMean, s)

	s, err = detect.ParseStrategy("Filtered")
	require.NoError(t, err)
	assert.Equal(t, detect.StrategyFilteredAnomaly, s)
	assert.Equal(t, "filtered", s.String())

	_, err = detect.ParseStrategy("median")
	assert.ErrorIs(t, err, detect.ErrUnknownStrategy)
}

func TestDetect_RawRollingMean(t *testing.T) {
	d := detect.NewDetector(detect.StrategyRawRollingMean)
	require.Equal(t, 90, d.Window)

	events, err := d.Detect(forbush())
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, []int{100, 101, 102}, []int{events[0].Index, events[1].Index, events[2].Index})
	assert.Equal(t, start.AddDate(0, 0, 100), events[0].Date)
	assert.InDelta(t, -9.78, events[0].Deviation, 0.01)
	assert.Equal(t, 6000.0, events[0].Background)
	assert.InDelta(t, -10, events[0].Change, 1e-9)
	// Day 100 itself falls inside day 102's background window.
	assert.InDelta(t, (5400+12*6000)/13.0, events[2].Background, 1e-9)
	assert.Less(t, events[2].Change, 0.0)
}

func TestDetect_FilteredAnomaly(t *testing.T) {
	d := detect.NewDetector(detect.StrategyFilteredAnomaly)
	require.Equal(t, anomaly.DefaultWindow, d.Window)

	events, err := d.Detect(forbush())
	require.NoError(t, err)
	require.NotEmpty(t, events)

	deepest := detect.Cluster(events, 7)
	require.Len(t, deepest, 1)
	assert.Equal(t, 100, deepest[0].Index)
	assert.Less(t, deepest[0].Deviation, -9.0)
	assert.InDelta(t, -10, deepest[0].Change, 1e-9)
}

func TestDetect_BothDirections(t *testing.T) {
	s := forbush()
	s.Values[150] = 6600
	d := detect.NewDetector(detect.StrategyRawRollingMean)
	d.DecreaseOnly = false

	events, err := d.Detect(s)
	require.NoError(t, err)

	var sawIncrease bool
	for _, ev := range events {
		if ev.Index == 150 {
			sawIncrease = true
			assert.Greater(t, ev.Deviation, 3.0)
		}
	}
	assert.True(t, sawIncrease)
}

func TestDetect_AllMissing(t *testing.T) {
	s := series.NewDaily("dead", start, []float64{0, 0, 0, 0})
	for _, st := range []detect.Strategy{detect.StrategyRawRollingMean, detect.StrategyFilteredAnomaly} {
		d := detect.NewDetector(st)
		d.Window = 3
		_, err := d.Detect(s)
		assert.ErrorIs(t, err, anomaly.ErrAllMissing, st.String())
	}
}

func TestBackground_Window(t *testing.T) {
	counts := make([]float64, 30)
	for i := range counts {
		counts[i] = float64(i)
	}
	// Days 6..18 relative to event day 20.
	assert.InDelta(t, 12, detect.Background(counts, 20), 1e-12)
	assert.True(t, math.IsNaN(detect.Background(counts, 13)), "clipped by series start")

	counts[10] = math.NaN()
	assert.InDelta(t, (6+7+8+9+11+12+13+14+15+16+17+18)/12.0, detect.Background(counts, 20), 1e-12)
}

func TestFilterByChangeAndCluster(t *testing.T) {
	events, err := detect.NewDetector(detect.StrategyRawRollingMean).Detect(forbush())
	require.NoError(t, err)

	strong := detect.FilterByChange(events, -5)
	require.Len(t, strong, 2)
	assert.Equal(t, 100, strong[0].Index)
	assert.Equal(t, 101, strong[1].Index)

	merged := detect.Cluster(events, 3)
	require.Len(t, merged, 1)
	assert.Equal(t, 100, merged[0].Index)

	apart := detect.Cluster(events, 1)
	assert.Len(t, apart, 3)

	assert.Equal(t, []time.Time{start.AddDate(0, 0, 100)}, detect.Dates(merged))
	assert.Nil(t, detect.Cluster(nil, 3))
}
