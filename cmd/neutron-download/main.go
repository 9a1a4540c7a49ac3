// neutron-download - Download daily neutron monitor counts from NMDB NEST
//
// Fetches efficiency-corrected daily counts per station as NEST ASCII
// exports and stores them in the station archive layout
// (<data-dir>/neutron/<STATION>_<from>_<to>.txt) read by the analysis tools.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/neutron-download ./cmd/neutron-download

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/common"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/neutron"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

func main() {
	cfg := common.DefaultConfig()

	destDir := flag.String("dest", cfg.NeutronDataDir(), "Destination directory")
	stations := flag.String("stations", strings.Join(common.DefaultStations, ","), "Comma-separated station codes")
	fromStr := flag.String("from", "2002-01-01", "First day (YYYY-MM-DD)")
	toStr := flag.String("to", "2017-12-31", "Last day (YYYY-MM-DD)")
	baseURL := flag.String("base-url", neutron.NESTBaseURL, "NEST endpoint")
	timeout := flag.Duration("timeout", 120*time.Second, "HTTP timeout per download")
	force := flag.Bool("force", false, "Download even if the file exists")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "neutron-download v%s - NMDB Station Downloader\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Downloads daily corrected neutron monitor counts from NMDB NEST.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	from, err := series.ParseDate(*fromStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: -from: %v\n", err)
		os.Exit(1)
	}
	to, err := series.ParseDate(*toStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: -to: %v\n", err)
		os.Exit(1)
	}
	if to.Before(from) {
		fmt.Fprintf(os.Stderr, "Error: -to before -from\n")
		os.Exit(1)
	}

	fmt.Println("=========================================================")
	fmt.Printf("Neutron Download v%s\n", Version)
	fmt.Println("=========================================================")
	fmt.Printf("Destination: %s\n", *destDir)
	fmt.Printf("Range:       %s to %s\n", from.Format(series.DateLayout), to.Format(series.DateLayout))
	fmt.Printf("Timeout:     %v\n", *timeout)
	fmt.Println()

	if err := os.MkdirAll(*destDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Cannot create directory: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutdown requested...")
		cancel()
	}()

	client := &http.Client{Timeout: *timeout}
	startTime := time.Now()
	downloaded, skipped, failed := 0, 0, 0

	for _, code := range strings.Split(*stations, ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		destPath := filepath.Join(*destDir, neutron.ArchiveName(code, from, to))
		if _, err := os.Stat(destPath); err == nil && !*force {
			fmt.Printf("[%s] Exists, skipping (%s)\n", code, filepath.Base(destPath))
			skipped++
			continue
		}

		url := neutron.NESTQuery(*baseURL, code, from, to)
		fmt.Printf("[%s] Downloading from NEST...\n", code)

		rows, err := neutron.Download(ctx, client, url, destPath)
		if err != nil {
			fmt.Printf("  ERROR: %v\n", err)
			failed++
			continue
		}
		fmt.Printf("  Saved %s (%d days)\n", filepath.Base(destPath), rows)
		downloaded++
	}

	elapsed := time.Since(startTime)

	fmt.Println()
	fmt.Println("=========================================================")
	fmt.Println("Download Summary")
	fmt.Println("=========================================================")
	fmt.Printf("Downloaded: %d stations\n", downloaded)
	fmt.Printf("Skipped:    %d stations\n", skipped)
	fmt.Printf("Failed:     %d stations\n", failed)
	fmt.Printf("Elapsed:    %v\n", elapsed.Round(time.Millisecond))
	fmt.Println("=========================================================")

	if failed > 0 {
		os.Exit(1)
	}
}
