// Package report writes epoch profiles and their significance bands to
// output sinks.
package report

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/epoch"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

// Report is everything a plot of one superposed epoch run needs.
type Report struct {
	Label       string // e.g. "OULU/izmiran"
	Events      int
	Iterations  int // 0 when no significance test ran
	Offsets     []int
	Mean        []float64
	Std         []float64
	Count       []int
	Lower       []float64 // nil without a band
	Upper       []float64
	Significant []bool
}

// Row is one offset of a Report, flattened for tabular sinks.
type Row struct {
	Label       string  `parquet:"label,dict" ch:"label"`
	Offset      int32   `parquet:"offset" ch:"offset"`
	Mean        float64 `parquet:"mean" ch:"mean"`
	Std         float64 `parquet:"std" ch:"std"`
	Count       int32   `parquet:"count" ch:"count"`
	Lower       float64 `parquet:"lower" ch:"lower"`
	Upper       float64 `parquet:"upper" ch:"upper"`
	Significant bool    `parquet:"significant" ch:"significant"`
}

// Sink consumes finished reports.
type Sink interface {
	Write(r Report) error
}

// New builds a report from a reduced profile.
func New(label string, p *epoch.Profile) Report {
	return Report{
		Label:   label,
		Events:  p.Events,
		Offsets: p.Offsets,
		Mean:    p.Mean,
		Std:     p.Std,
		Count:   p.Count,
	}
}

// WithBand attaches a confidence band and the per-offset significance flags.
func (r Report) WithBand(lower, upper []float64, significant []bool, iterations int) (Report, error) {
	n := len(r.Mean)
	if len(lower) != n || len(upper) != n || len(significant) != n {
		return r, fmt.Errorf("%w: band for %d offsets", series.ErrLengthMismatch, n)
	}
	r.Lower, r.Upper, r.Significant = lower, upper, significant
	r.Iterations = iterations
	return r, nil
}

// Rows flattens r. Missing band values are NaN.
func (r Report) Rows() []Row {
	rows := make([]Row, len(r.Offsets))
	for j, off := range r.Offsets {
		row := Row{
			Label:  r.Label,
			Offset: int32(off),
			Mean:   r.Mean[j],
			Std:    r.Std[j],
			Count:  int32(r.Count[j]),
			Lower:  math.NaN(),
			Upper:  math.NaN(),
		}
		if r.Lower != nil {
			row.Lower, row.Upper = r.Lower[j], r.Upper[j]
			row.Significant = r.Significant[j]
		}
		rows[j] = row
	}
	return rows
}

// SignificantOffsets lists the offsets flagged as significant.
func (r Report) SignificantOffsets() []int {
	var out []int
	for j, sig := range r.Significant {
		if sig {
			out = append(out, r.Offsets[j])
		}
	}
	return out
}

// Multi fans a report out to several sinks, attempting all of them.
type Multi []Sink

func (m Multi) Write(r Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ForPath picks a file sink from the extension: .parquet, otherwise text
// (.gz compressed).
func ForPath(path string) Sink {
	if strings.HasSuffix(path, ".parquet") {
		return &ParquetSink{Path: path}
	}
	return &TextSink{Path: path}
}

// createAtomic opens path.tmp for writing. commit renames it into place,
// abort removes it.
func createAtomic(path string) (f *os.File, commit func() error, abort func(), err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, nil, err
	}
	tmpPath := path + ".tmp"
	f, err = os.Create(tmpPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create file failed: %w", err)
	}
	commit = func() error {
		if err := f.Close(); err != nil {
			os.Remove(tmpPath)
			return err
		}
		if err := os.Rename(tmpPath, path); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("rename failed: %w", err)
		}
		return nil
	}
	abort = func() {
		f.Close()
		os.Remove(tmpPath)
	}
	return f, commit, abort, nil
}
