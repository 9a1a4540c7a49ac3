package epoch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

// SaveAnchors writes one ISO date per line.
func SaveAnchors(w io.Writer, anchors []time.Time) error {
	bw := bufio.NewWriter(w)
	for _, a := range anchors {
		if _, err := fmt.Fprintln(bw, a.Format(series.DateLayout)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadAnchors reads dates written by SaveAnchors. Blank lines and lines
// starting with # are ignored.
func LoadAnchors(r io.Reader) ([]time.Time, error) {
	var out []time.Time
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		d, err := series.ParseDate(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, d)
	}
	return out, scanner.Err()
}

// WriteAnchorFile saves the cache atomically via a temp file and rename.
func WriteAnchorFile(path string, anchors []time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file failed: %w", err)
	}
	if err := SaveAnchors(f, anchors); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
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

// ReadAnchorFile loads a cache written by WriteAnchorFile.
func ReadAnchorFile(path string) ([]time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadAnchors(f)
}
