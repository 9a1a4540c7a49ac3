package report

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// ParquetSink writes Rows as a zstd-compressed parquet file.
type ParquetSink struct {
	Path string
}

func (s *ParquetSink) Write(r Report) error {
	f, commit, abort, err := createAtomic(s.Path)
	if err != nil {
		return err
	}

	pw := parquet.NewGenericWriter[Row](f, parquet.Compression(&parquet.Zstd))
	if _, err := pw.Write(r.Rows()); err != nil {
		pw.Close()
		abort()
		return fmt.Errorf("parquet write: %w", err)
	}
	if err := pw.Close(); err != nil {
		abort()
		return fmt.Errorf("parquet close: %w", err)
	}
	return commit()
}

// ReadRows loads every row of a file written by ParquetSink.
func ReadRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parquet open: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var out []Row
	buf := make([]Row, 256)
	for {
		n, err := reader.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
