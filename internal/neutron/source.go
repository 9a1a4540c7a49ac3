package neutron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/common"
)

// FileSource reads a whitespace-delimited station archive (optionally .gz).
type FileSource struct {
	Path   string
	Format Format
	Stats  *common.Stats // optional progress counters
	Logger *common.Logger
}

func (s *FileSource) String() string { return s.Path }

// Records implements Source. The station code is stamped onto every record.
func (s *FileSource) Records(ctx context.Context, station string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, size, err := OpenText(s.Path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var ps ParseStats
	recs, err := s.Format.Parse(rc, station, &ps, s.Logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(s.Path), err)
	}
	if s.Stats != nil {
		s.Stats.AddBytes(uint64(size))
		s.Stats.AddRecords(uint64(ps.Parsed))
	}
	s.Logger.Debugf("[%s] Parsed %d lines (%d failed, %d skipped)",
		filepath.Base(s.Path), ps.Parsed, ps.FailedLines, ps.SkippedLines)
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(s.Path), ErrNoRecords)
	}
	return recs, nil
}

// ParquetSource reads a parquet cache written by WriteParquet.
type ParquetSource struct {
	Path string
}

func (s *ParquetSource) String() string { return s.Path }

// Records implements Source, keeping only rows for station when the cache
// holds several stations.
func (s *ParquetSource) Records(ctx context.Context, station string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, err := ReadParquet(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(s.Path), err)
	}

	out := all[:0]
	for _, r := range all {
		if r.Station == "" || strings.EqualFold(r.Station, station) {
			r.Station = station
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w for %s", filepath.Base(s.Path), ErrNoRecords, station)
	}
	return out, nil
}

// ResolveFile maps a location to a file-backed Source by extension.
func ResolveFile(location string) (Source, error) {
	if strings.Contains(location, "://") {
		return nil, fmt.Errorf("unsupported location %q", location)
	}
	if strings.HasSuffix(location, ".parquet") {
		return &ParquetSource{Path: location}, nil
	}
	return &FileSource{Path: location, Format: DefaultFormat}, nil
}

// FileResolver is ResolveFile with a custom text layout, progress counters
// and logger applied to text sources.
func FileResolver(format Format, stats *common.Stats, logger *common.Logger) Resolver {
	return func(location string) (Source, error) {
		src, err := ResolveFile(location)
		if err != nil {
			return nil, err
		}
		if fs, ok := src.(*FileSource); ok {
			fs.Format, fs.Stats, fs.Logger = format, stats, logger
		}
		return src, nil
	}
}

// WriteParquet writes records as a zstd-compressed parquet file.
func WriteParquet(w io.Writer, recs []Record) error {
	rows := make([]Record, len(recs))
	for i, r := range recs {
		r.Day = r.Date.Format("2006-01-02")
		rows[i] = r
	}

	pw := parquet.NewGenericWriter[Record](w, parquet.Compression(&parquet.Zstd))
	if _, err := pw.Write(rows); err != nil {
		pw.Close()
		return fmt.Errorf("parquet write: %w", err)
	}
	return pw.Close()
}

// ReadParquet reads every record from a parquet file written by WriteParquet.
func ReadParquet(f *os.File) ([]Record, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parquet open: %w", err)
	}

	reader := parquet.NewGenericReader[Record](pf)
	defer reader.Close()

	var out []Record
	buf := make([]Record, 1000)
	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			r := buf[i]
			d, perr := time.Parse("2006-01-02", r.Day)
			if perr != nil {
				return nil, fmt.Errorf("row %d: %w", len(out), perr)
			}
			r.Date = d
			out = append(out, r)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}
