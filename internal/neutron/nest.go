package neutron

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// NESTBaseURL is the NMDB event search tool endpoint.
const NESTBaseURL = "https://www.nmdb.eu/nest/draw_graph.php"

// NESTQuery builds the ASCII export URL for one station's daily,
// efficiency-corrected counts over [from, to].
func NESTQuery(base, station string, from, to time.Time) string {
	v := url.Values{}
	v.Set("formchk", "1")
	v.Add("stations[]", strings.ToUpper(station))
	v.Set("tabchoice", "revori")
	v.Set("dtype", "corr_for_efficiency")
	v.Set("tresolution", "1440")
	v.Set("force", "1")
	v.Set("yunits", "0")
	v.Set("date_choice", "bydate")
	v.Set("start_year", strconv.Itoa(from.Year()))
	v.Set("start_month", strconv.Itoa(int(from.Month())))
	v.Set("start_day", strconv.Itoa(from.Day()))
	v.Set("start_hour", "0")
	v.Set("start_min", "0")
	v.Set("end_year", strconv.Itoa(to.Year()))
	v.Set("end_month", strconv.Itoa(int(to.Month())))
	v.Set("end_day", strconv.Itoa(to.Day()))
	v.Set("end_hour", "23")
	v.Set("end_min", "59")
	v.Set("output", "ascii")
	return base + "?" + v.Encode()
}

// ArchiveName is the local file name for a station download, e.g.
// OULU_2002_2017.txt.
func ArchiveName(station string, from, to time.Time) string {
	return fmt.Sprintf("%s_%d_%d.txt", strings.ToUpper(station), from.Year(), to.Year())
}

// ConvertNEST rewrites a NEST ASCII export ("2002-01-01 00:00:00;6434.125")
// into the archive layout DefaultFormat reads
// ("2002.01.01 00:00:00 6434.125"). Header lines and null values are
// dropped. It returns the number of rows written.
func ConvertNEST(r io.Reader, w io.Writer) (int, error) {
	scanner := bufio.NewScanner(r)
	bw := bufio.NewWriter(w)
	rows := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		stamp, value, ok := strings.Cut(line, ";")
		if !ok {
			continue
		}
		t, err := time.Parse("2006-01-02 15:04:05", strings.TrimSpace(stamp))
		if err != nil {
			continue
		}
		value = strings.TrimSpace(value)
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			continue
		}
		if _, err := fmt.Fprintf(bw, "%s %s\n", t.Format("2006.01.02 15:04:05"), value); err != nil {
			return rows, err
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return rows, err
	}
	return rows, bw.Flush()
}

// Download fetches a NEST export and stores it converted at destPath via a
// temp file and atomic rename. It returns the number of rows kept.
func Download(ctx context.Context, client *http.Client, rawURL, destPath string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, err
	}
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create file failed: %w", err)
	}

	rows, err := ConvertNEST(resp.Body, f)
	f.Close()
	if err == nil && rows == 0 {
		err = ErrNoRecords
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename failed: %w", err)
	}
	return rows, nil
}
