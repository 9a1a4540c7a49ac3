package report

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// TextSink writes a tab-separated table, gzip-compressed when Path ends in
// .gz.
type TextSink struct {
	Path string
}

func (s *TextSink) Write(r Report) error {
	f, commit, abort, err := createAtomic(s.Path)
	if err != nil {
		return err
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(s.Path, ".gz") {
		gz, err = gzip.NewWriterLevel(f, gzip.BestCompression)
		if err != nil {
			abort()
			return err
		}
		w = gz
	}

	if err := WriteText(w, r); err != nil {
		abort()
		return fmt.Errorf("%s: %w", s.Path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			abort()
			return err
		}
	}
	return commit()
}

// WriteText writes r as a commented header followed by one row per offset:
//
//	# label OULU/izmiran
//	# events 33
//	# iterations 10000
//	offset	mean	std	count	lower	upper	significant
//	-14	0.1203	1.8822	33	-0.9811	0.9702	0
func WriteText(w io.Writer, r Report) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# label %s\n", r.Label)
	fmt.Fprintf(bw, "# events %d\n", r.Events)
	fmt.Fprintf(bw, "# iterations %d\n", r.Iterations)
	fmt.Fprintln(bw, "offset\tmean\tstd\tcount\tlower\tupper\tsignificant")
	for _, row := range r.Rows() {
		sig := 0
		if row.Significant {
			sig = 1
		}
		fmt.Fprintf(bw, "%d\t%s\t%s\t%d\t%s\t%s\t%d\n",
			row.Offset, num(row.Mean), num(row.Std), row.Count, num(row.Lower), num(row.Upper), sig)
	}
	return bw.Flush()
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
