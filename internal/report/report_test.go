package report_test

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/epoch"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/report"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

func sample(t *testing.T) report.Report {
	t.Helper()
	p := &epoch.Profile{
		Offsets: []int{-1, 0, 1},
		Mean:    []float64{0.5, -3.25, math.NaN()},
		Std:     []float64{1, 2, math.NaN()},
		Count:   []int{4, 4, 0},
		Events:  4,
	}
	r, err := report.New("OULU/izmiran", p).WithBand(
		[]float64{-1, -1, -1}, []float64{1, 1, 1}, []bool{false, true, false}, 500)
	require.NoError(t, err)
	return r
}

func TestWithBand_LengthMismatch(t *testing.T) {
	r := sample(t)
	_, err := r.WithBand([]float64{0}, []float64{0}, []bool{false}, 1)
	assert.ErrorIs(t, err, series.ErrLengthMismatch)
}

func TestRowsAndSignificantOffsets(t *testing.T) {
	r := sample(t)
	rows := r.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, int32(-1), rows[0].Offset)
	assert.True(t, rows[1].Significant)
	assert.Equal(t, int32(0), rows[2].Count)
	assert.Equal(t, []int{0}, r.SignificantOffsets())

	bare := report.New("bare", &epoch.Profile{Offsets: []int{0}, Mean: []float64{1}, Std: []float64{0}, Count: []int{1}})
	assert.True(t, math.IsNaN(bare.Rows()[0].Lower))
	assert.Empty(t, bare.SignificantOffsets())
}

func TestWriteText(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, report.WriteText(&sb, sample(t)))

	want := "# label OULU/izmiran\n" +
		"# events 4\n" +
		"# iterations 500\n" +
		"offset\tmean\tstd\tcount\tlower\tupper\tsignificant\n" +
		"-1\t0.5000\t1.0000\t4\t-1.0000\t1.0000\t0\n" +
		"0\t-3.2500\t2.0000\t4\t-1.0000\t1.0000\t1\n" +
		"1\tnan\tnan\t0\t-1.0000\t1.0000\t0\n"
	assert.Equal(t, want, sb.String())
}

func TestTextSink_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "profile.tsv.gz")
	require.NoError(t, report.ForPath(path).Write(sample(t)))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# label OULU/izmiran\n"))
	assert.Contains(t, string(data), "0\t-3.2500\t2.0000\t4")
}

func TestParquetSink_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.parquet")
	r := sample(t)
	require.NoError(t, report.ForPath(path).Write(r))

	rows, err := report.ReadRows(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "OULU/izmiran", rows[0].Label)
	assert.Equal(t, -3.25, rows[1].Mean)
	assert.True(t, rows[1].Significant)
	assert.True(t, math.IsNaN(rows[2].Mean))
}

type failSink struct{ calls *int }

func (f failSink) Write(report.Report) error {
	*f.calls++
	return errors.New("sink down")
}

func TestMulti_AttemptsEverySink(t *testing.T) {
	calls := 0
	path := filepath.Join(t.TempDir(), "p.tsv")
	err := report.Multi{failSink{&calls}, &report.TextSink{Path: path}, failSink{&calls}}.Write(sample(t))
	assert.ErrorContains(t, err, "sink down")
	assert.Equal(t, 2, calls)
	assert.FileExists(t, path)
}
