package neutron

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/pgzip"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/common"
)

// Error throttling: don't spam logs with parse errors
const MaxErrorsToLog = 10

// Accepted date layouts in column DateCol.
var dateLayouts = []string{"2006.01.02", "2006-01-02", "2006/01/02"}

// Format describes the fixed column positions of a station archive.
type Format struct {
	DateCol  int
	ValueCol int
}

// DefaultFormat is the NMDB daily export: date, time, corrected count.
var DefaultFormat = Format{DateCol: 0, ValueCol: 2}

// ParseFormat parses "date,value" column indexes, e.g. "0,2".
func ParseFormat(s string) (Format, error) {
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return Format{}, fmt.Errorf("invalid column spec %q: want date,value", s)
	}
	dc, err1 := strconv.Atoi(strings.TrimSpace(a))
	vc, err2 := strconv.Atoi(strings.TrimSpace(b))
	if err1 != nil || err2 != nil || dc < 0 || vc < 0 || dc == vc {
		return Format{}, fmt.Errorf("invalid column spec %q", s)
	}
	return Format{DateCol: dc, ValueCol: vc}, nil
}

// ParseStats holds statistics for a parsing operation.
type ParseStats struct {
	TotalLines   int64
	Parsed       int64
	FailedLines  int64
	SkippedLines int64 // blank and comment lines
}

// ParseLine parses a single archive line.
func (f Format) ParseLine(line string) (time.Time, float64, error) {
	fields := strings.Fields(line)
	need := max(f.DateCol, f.ValueCol) + 1
	if len(fields) < need {
		return time.Time{}, 0, fmt.Errorf("insufficient columns: got %d, need %d", len(fields), need)
	}

	date, err := parseDate(fields[f.DateCol])
	if err != nil {
		return time.Time{}, 0, err
	}

	v, err := strconv.ParseFloat(fields[f.ValueCol], 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid value: %w", err)
	}
	return date, v, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// Parse reads station records from r. Malformed lines are counted and
// skipped; only the first MaxErrorsToLog are logged.
func (f Format) Parse(r io.Reader, station string, stats *ParseStats, logger *common.Logger) ([]Record, error) {
	if stats == nil {
		stats = &ParseStats{}
	}
	scanner := bufio.NewScanner(r)
	var recs []Record
	errorCount := 0

	for scanner.Scan() {
		stats.TotalLines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			stats.SkippedLines++
			continue
		}

		date, v, err := f.ParseLine(line)
		if err != nil {
			stats.FailedLines++
			errorCount++
			if errorCount <= MaxErrorsToLog {
				logger.Warnf("[%s] Parse error (line %d): %v", station, stats.TotalLines, err)
			}
			continue
		}

		stats.Parsed++
		recs = append(recs, Record{
			Station: station,
			Date:    date,
			Day:     date.Format("2006-01-02"),
			Count:   v,
		})
	}

	if errorCount > MaxErrorsToLog {
		logger.Warnf("[%s] ... and %d more parse errors (suppressed)", station, errorCount-MaxErrorsToLog)
	}
	return recs, scanner.Err()
}

// OpenText opens a station archive, transparently decompressing .gz files
// with parallel gzip. The returned closer releases both layers.
func OpenText(path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}

	if !strings.HasSuffix(path, ".gz") {
		return f, info.Size(), nil
	}

	gz, err := pgzip.NewReaderN(f, 256*1024, runtime.NumCPU())
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("gzip: %w", err)
	}
	return &gzipFile{Reader: gz, f: f}, info.Size(), nil
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	gerr := g.Reader.Close()
	ferr := g.f.Close()
	if gerr != nil {
		return gerr
	}
	return ferr
}
