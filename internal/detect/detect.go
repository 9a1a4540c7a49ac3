// Package detect finds Forbush decrease candidates in daily neutron counts.
//
// Two detection strategies exist and neither is preferred:
//
//   - StrategyRawRollingMean compares raw counts with their own centered
//     rolling mean (default 90 days) in percent.
//   - StrategyFilteredAnomaly thresholds the high-pass filtered percent
//     anomaly produced by anomaly.Filter (default 35 days).
//
// Either way the reported change for an event is measured against the mean
// count of days -14..-2 before it.
package detect

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/anomaly"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

// Strategy selects how the deviation series is computed.
type Strategy int

const (
	StrategyRawRollingMean Strategy = iota
	StrategyFilteredAnomaly
)

// Background window relative to the event day, inclusive.
const (
	BackgroundFrom = -14
	BackgroundTo   = -2
)

var ErrUnknownStrategy = errors.New("detect: unknown strategy")

func (s Strategy) String() string {
	switch s {
	case StrategyRawRollingMean:
		return "raw"
	case StrategyFilteredAnomaly:
		return "filtered"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy accepts the names printed by Strategy.String.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "raw", "rolling", "raw-rolling-mean":
		return StrategyRawRollingMean, nil
	case "filtered", "anomaly", "filtered-anomaly":
		return StrategyFilteredAnomaly, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Event is one candidate day.
type Event struct {
	Date       time.Time
	Index      int
	Deviation  float64 // percent deviation that triggered detection
	Count      float64 // raw count on the day
	Background float64 // mean count of days -14..-2, missing if unavailable
	Change     float64 // 100 * (Count - Background) / Background
}

// Detector configures a detection run.
type Detector struct {
	Strategy     Strategy
	Window       int     // rolling window in days
	Threshold    float64 // percent
	DecreaseOnly bool
	Floor        float64 // validity floor applied to raw counts
}

// NewDetector returns the defaults for a strategy: 90 days for the raw
// comparison, 35 for the filtered anomaly, 3% decrease-only.
func NewDetector(strategy Strategy) Detector {
	d := Detector{Strategy: strategy, Threshold: 3, DecreaseOnly: true, Floor: 1}
	if strategy == StrategyFilteredAnomaly {
		d.Window = anomaly.DefaultWindow
	} else {
		d.Window = 90
	}
	return d
}

// Deviation computes the percent deviation series the detector thresholds.
func (d Detector) Deviation(counts *series.Series) ([]float64, error) {
	if d.Window < 1 {
		return nil, fmt.Errorf("%w: %d", anomaly.ErrBadWindow, d.Window)
	}
	floored := anomaly.ApplyFloor(counts, d.Floor)
	switch d.Strategy {
	case StrategyRawRollingMean:
		if floored.Valid() == 0 {
			return nil, fmt.Errorf("%w: %s", anomaly.ErrAllMissing, counts.Name)
		}
		return anomaly.PercentDeviation(floored.Values, d.Window), nil
	case StrategyFilteredAnomaly:
		filtered, err := anomaly.Filter{Floor: d.Floor, Window: d.Window}.Apply(counts)
		if err != nil {
			return nil, err
		}
		return filtered.Values, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(d.Strategy))
}

// Candidates returns the indices where deviation crosses the threshold.
func (d Detector) Candidates(deviation []float64) []int {
	var idx []int
	for i, v := range deviation {
		if math.IsNaN(v) {
			continue
		}
		if d.DecreaseOnly {
			if v <= -d.Threshold {
				idx = append(idx, i)
			}
		} else if math.Abs(v) >= d.Threshold {
			idx = append(idx, i)
		}
	}
	return idx
}

// Detect runs the configured strategy over raw counts.
func (d Detector) Detect(counts *series.Series) ([]Event, error) {
	dev, err := d.Deviation(counts)
	if err != nil {
		return nil, err
	}
	floored := anomaly.ApplyFloor(counts, d.Floor)

	idx := d.Candidates(dev)
	events := make([]Event, 0, len(idx))
	for _, i := range idx {
		bg := Background(floored.Values, i)
		ev := Event{
			Date:       counts.Dates[i],
			Index:      i,
			Deviation:  dev[i],
			Count:      floored.Values[i],
			Background: bg,
			Change:     math.NaN(),
		}
		if !math.IsNaN(bg) && bg != 0 {
			ev.Change = 100 * (ev.Count - bg) / bg
		}
		events = append(events, ev)
	}
	return events, nil
}

// Background is the mean of counts on days -14..-2 relative to i, ignoring
// missing values. It is missing when the window runs off the start of the
// series or holds no valid value.
func Background(counts []float64, i int) float64 {
	lo, hi := i+BackgroundFrom, i+BackgroundTo
	if lo < 0 || hi >= len(counts) {
		return math.NaN()
	}
	mean, ok := series.NanMean(counts[lo : hi+1])
	if !ok {
		return math.NaN()
	}
	return mean
}

// FilterByChange keeps events whose change is at or below cutoff percent.
// Events without a background are dropped.
func FilterByChange(events []Event, cutoff float64) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if !math.IsNaN(ev.Change) && ev.Change <= cutoff {
			out = append(out, ev)
		}
	}
	return out
}

// Cluster merges events fewer than gap days apart into a single event,
// keeping the deepest deviation of each run. Input order does not matter;
// output is sorted by date.
func Cluster(events []Event, gap int) []Event {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := []Event{sorted[0]}
	prev := sorted[0].Date
	for _, ev := range sorted[1:] {
		last := &out[len(out)-1]
		if series.DaysBetween(prev, ev.Date) < gap {
			if ev.Deviation < last.Deviation {
				*last = ev
			}
		} else {
			out = append(out, ev)
		}
		prev = ev.Date
	}
	return out
}

// Dates extracts event dates, e.g. for use as epoch anchors.
func Dates(events []Event) []time.Time {
	out := make([]time.Time, len(events))
	for i, ev := range events {
		out[i] = ev.Date
	}
	return out
}
