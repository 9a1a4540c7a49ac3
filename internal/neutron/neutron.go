// Package neutron loads daily neutron monitor counts per station.
//
// Station archives are whitespace-delimited text with the date and the
// corrected count at fixed column positions, e.g.
//
//	2002.01.01 00:00:00 6434.125
//
// Files may be gzip-compressed or pre-converted parquet caches. Counts below
// the validity floor are treated as missing when the series is built.
package neutron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/common"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

var (
	ErrUnknownStation = errors.New("neutron: unknown station")
	ErrNoRecords      = errors.New("neutron: no records")
)

// Record is a single daily station count.
type Record struct {
	Station string    `ch:"station" parquet:"station,dict"`
	Date    time.Time `ch:"date" parquet:"-"`
	Day     string    `ch:"-" parquet:"date"` // YYYY-MM-DD, parquet only
	Count   float64   `ch:"count" parquet:"count"`
}

// Source yields the records for one station.
type Source interface {
	Records(ctx context.Context, station string) ([]Record, error)
	String() string
}

// Resolver turns a configured location string into a Source.
type Resolver func(location string) (Source, error)

// Loader builds daily series from configured station sources.
type Loader struct {
	Stations map[string]string // station code -> location
	Floor    float64
	Resolve  Resolver
	Logger   *common.Logger
}

// NewLoader returns a Loader over cfg.Stations that resolves plain file
// locations only. Callers needing ClickHouse plug in a store.Resolver.
func NewLoader(cfg *common.Config, logger *common.Logger) *Loader {
	return &Loader{
		Stations: cfg.Stations,
		Floor:    cfg.ValidityFloor,
		Resolve:  ResolveFile,
		Logger:   logger,
	}
}

// Load reads a station's records and places them on a daily axis, marking
// readings below the validity floor as missing.
func (l *Loader) Load(ctx context.Context, station string) (*series.Series, error) {
	code := strings.ToUpper(station)
	loc, ok := l.Stations[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s (known: %s)", ErrUnknownStation, station, strings.Join(l.codes(), ", "))
	}

	resolve := l.Resolve
	if resolve == nil {
		resolve = ResolveFile
	}
	src, err := resolve(loc)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", code, err)
	}

	l.Logger.Debugf("Loading %s from %s", code, src)
	recs, err := src.Records(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", code, err)
	}

	s, err := BuildSeries(code, recs, l.Floor)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", code, err)
	}
	l.Logger.Infof("[%s] %d days (%s to %s), %d valid",
		code, s.Len(), s.Start().Format(series.DateLayout), s.End().Format(series.DateLayout), s.Valid())
	return s, nil
}

func (l *Loader) codes() []string {
	out := make([]string, 0, len(l.Stations))
	for c := range l.Stations {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// BuildSeries converts records to a gap-free daily series. Counts below
// floor become missing.
func BuildSeries(name string, recs []Record, floor float64) (*series.Series, error) {
	if len(recs) == 0 {
		return nil, ErrNoRecords
	}
	points := make([]series.Point, len(recs))
	for i, r := range recs {
		v := r.Count
		if v < floor {
			v = series.Missing()
		}
		points[i] = series.Point{Date: r.Date, Value: v}
	}
	return series.FromPoints(name, points)
}
