// Package series provides the daily time series used by every analysis stage.
// A Series has one value per UTC day with no gaps in the date axis. Missing
// readings are stored as NaN rather than dropped, so positional offsets stay
// meaningful after filtering and extraction.
package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the ISO layout used for anchors, caches and reports.
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

var (
	ErrLengthMismatch = errors.New("series: dates and values differ in length")
	ErrUnordered      = errors.New("series: dates are not consecutive days")
	ErrEmpty          = errors.New("series: no points")
)

// Point is a single (date, value) observation before it is placed on the daily axis.
type Point struct {
	Date  time.Time
	Value float64
}

// Series is an ordered, gap-free daily series.
type Series struct {
	Name   string
	Dates  []time.Time
	Values []float64
}

// Missing returns the missing-value sentinel.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO date (YYYY-MM-DD) into a UTC day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// New validates that dates are consecutive days and wraps them with values.
func New(name string, dates []time.Time, values []float64) (*Series, error) {
	if len(dates) != len(values) {
		return nil, fmt.Errorf("%w: %d dates, %d values", ErrLengthMismatch, len(dates), len(values))
	}
	ds := make([]time.Time, len(dates))
	for i, d := range dates {
		ds[i] = Day(d)
		if i > 0 && !ds[i].Equal(ds[i-1].Add(day)) {
			return nil, fmt.Errorf("%w: %s follows %s", ErrUnordered,
				ds[i].Format(DateLayout), ds[i-1].Format(DateLayout))
		}
	}
	vs := make([]float64, len(values))
	copy(vs, values)
	return &Series{Name: name, Dates: ds, Values: vs}, nil
}

// NewDaily builds a series of len(values) days starting at start.
func NewDaily(name string, start time.Time, values []float64) *Series {
	start = Day(start)
	dates := make([]time.Time, len(values))
	for i := range values {
		dates[i] = start.AddDate(0, 0, i)
	}
	vs := make([]float64, len(values))
	copy(vs, values)
	return &Series{Name: name, Dates: dates, Values: vs}
}

// FromPoints places sparse points on a continuous daily axis spanning the
// first to last date. Days without a point become missing; for duplicate
// dates the last point wins.
func FromPoints(name string, points []Point) (*Series, error) {
	if len(points) == 0 {
		return nil, ErrEmpty
	}
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	first := Day(sorted[0].Date)
	last := Day(sorted[len(sorted)-1].Date)
	n := DaysBetween(first, last) + 1

	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	for _, p := range sorted {
		values[DaysBetween(first, Day(p.Date))] = p.Value
	}
	return NewDaily(name, first, values), nil
}

// DaysBetween returns the whole number of days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(Day(b).Sub(Day(a)).Hours() / 24))
}

// Len returns the number of days in the series.
func (s *Series) Len() int { return len(s.Values) }

// Start returns the first date, or the zero time for an empty series.
func (s *Series) Start() time.Time {
	if len(s.Dates) == 0 {
		return time.Time{}
	}
	return s.Dates[0]
}

// End returns the last date, or the zero time for an empty series.
func (s *Series) End() time.Time {
	if len(s.Dates) == 0 {
		return time.Time{}
	}
	return s.Dates[len(s.Dates)-1]
}

// IndexOf returns the position of date on the daily axis.
func (s *Series) IndexOf(date time.Time) (int, bool) {
	if s.Len() == 0 {
		return 0, false
	}
	i := DaysBetween(s.Dates[0], date)
	if i < 0 || i >= s.Len() {
		return 0, false
	}
	return i, true
}

// DateAt returns the date at position i, extrapolating the daily axis when i
// lies outside the series.
func (s *Series) DateAt(i int) time.Time {
	return s.Start().AddDate(0, 0, i)
}

// At returns the value at position i, or missing when i is out of range.
func (s *Series) At(i int) float64 {
	if i < 0 || i >= len(s.Values) {
		return math.NaN()
	}
	return s.Values[i]
}

// Window returns length values starting at position start. Positions that
// fall outside the series are padded with missing at either end.
func (s *Series) Window(start, length int) []float64 {
	out := make([]float64, length)
	for j := range out {
		out[j] = s.At(start + j)
	}
	return out
}

// WithValues returns a copy of s sharing its date axis but carrying values.
func (s *Series) WithValues(values []float64) *Series {
	vs := make([]float64, len(values))
	copy(vs, values)
	return &Series{Name: s.Name, Dates: s.Dates, Values: vs}
}

// Clone returns a deep copy.
func (s *Series) Clone() *Series {
	ds := make([]time.Time, len(s.Dates))
	copy(ds, s.Dates)
	vs := make([]float64, len(s.Values))
	copy(vs, s.Values)
	return &Series{Name: s.Name, Dates: ds, Values: vs}
}

// Slice returns the sub-series between from and to inclusive, clipped to the
// series bounds.
func (s *Series) Slice(from, to time.Time) *Series {
	lo := DaysBetween(s.Start(), from)
	hi := DaysBetween(s.Start(), to)
	if lo < 0 {
		lo = 0
	}
	if hi >= s.Len() {
		hi = s.Len() - 1
	}
	if s.Len() == 0 || hi < lo {
		return &Series{Name: s.Name}
	}
	return &Series{
		Name:   s.Name,
		Dates:  append([]time.Time(nil), s.Dates[lo:hi+1]...),
		Values: append([]float64(nil), s.Values[lo:hi+1]...),
	}
}

// Valid returns the number of non-missing values.
func (s *Series) Valid() int {
	return len(Compact(s.Values))
}
