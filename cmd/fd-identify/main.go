// fd-identify - Locate Forbush decrease candidates in daily neutron counts
//
// Flags days whose count deviates from the running mean by at least the
// threshold, measures the change against the 14-day background before each
// candidate, and keeps candidates whose change passes the cutoff.
// Surviving events can be merged into anchors and written as a catalog.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/fd-identify ./cmd/fd-identify

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/catalog"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/common"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/detect"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/epoch"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/neutron"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/store"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

func main() {
	cfg := common.DefaultConfig()

	station := flag.String("station", "CLIM", "Station code")
	stationsFlag := flag.String("stations", "", "Station locations CODE=path|clickhouse://...,... (overrides config)")
	columns := flag.String("columns", "0,2", "Date and value column indexes for text archives")
	strategyName := flag.String("strategy", "raw", "Detector: raw (90-day running mean) or filtered (35-day anomaly)")
	window := flag.Int("window", 0, "Running mean window in days (0 = strategy default)")
	threshold := flag.Float64("threshold", 3, "Deviation threshold in percent")
	both := flag.Bool("both", false, "Flag increases as well as decreases")
	cutoff := flag.Float64("change", -5, "Keep events whose change from background is at most this percent (NaN disables)")
	gap := flag.Int("cluster", 0, "Merge candidates closer than this many days (0 = no merging)")
	fromStr := flag.String("from", "", "First day to analyse (YYYY-MM-DD)")
	toStr := flag.String("to", "", "Last day to analyse (YYYY-MM-DD)")
	catalogOut := flag.String("catalog-out", "", "Write events as a YAML catalog")
	anchorsOut := flag.String("anchors-out", "", "Write event dates as an anchor file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fd-identify v%s - Forbush Decrease Finder\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Lists Forbush decrease candidates for one neutron monitor station.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	strategy, err := detect.ParseStrategy(*strategyName)
	if err != nil {
		log.Fatalf("%v", err)
	}
	format, err := neutron.ParseFormat(*columns)
	if err != nil {
		log.Fatalf("Invalid -columns: %v", err)
	}
	for code, loc := range common.ParseStations(*stationsFlag) {
		cfg.Stations[code] = loc
	}
	logger := common.NewDefaultLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	log.Println("=========================================================")
	log.Printf("FD Identify v%s", Version)
	log.Println("=========================================================")

	resolver := store.NewResolver(cfg)
	resolver.Files = neutron.FileResolver(format, nil, logger)
	defer resolver.Close()

	loader := neutron.NewLoader(cfg, logger)
	loader.Resolve = resolver.Resolve

	startTime := time.Now()
	counts, err := loader.Load(ctx, *station)
	if err != nil {
		log.Fatalf("Load failed: %v", err)
	}
	counts, err = sliceRange(counts, *fromStr, *toStr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	d := detect.NewDetector(strategy)
	d.Threshold = *threshold
	d.DecreaseOnly = !*both
	d.Floor = cfg.ValidityFloor
	if *window > 0 {
		d.Window = *window
	}
	log.Printf("Strategy: %s, window %d days, threshold %.1f%%", d.Strategy, d.Window, d.Threshold)

	candidates, err := d.Detect(counts)
	if err != nil {
		log.Fatalf("Detection failed: %v", err)
	}
	events := candidates
	if !math.IsNaN(*cutoff) {
		events = detect.FilterByChange(events, *cutoff)
	}
	if *gap > 0 {
		events = detect.Cluster(events, *gap)
	}

	fmt.Printf("%-10s  %9s  %9s  %11s  %8s\n", "date", "deviation", "count", "background", "change")
	for _, ev := range events {
		fmt.Printf("%s  %9.2f  %9.1f  %11.1f  %8.2f\n",
			ev.Date.Format(series.DateLayout), ev.Deviation, ev.Count, ev.Background, ev.Change)
	}

	dates := detect.Dates(events)
	if *anchorsOut != "" && len(dates) > 0 {
		if err := epoch.WriteAnchorFile(*anchorsOut, dates); err != nil {
			log.Fatalf("Write anchors failed: %v", err)
		}
		log.Printf("Anchors written to %s", *anchorsOut)
	}
	if *catalogOut != "" && len(dates) > 0 {
		if err := writeCatalog(*catalogOut, *station, d, dates); err != nil {
			log.Fatalf("Write catalog failed: %v", err)
		}
		log.Printf("Catalog written to %s", *catalogOut)
	}

	elapsed := time.Since(startTime)

	log.Println()
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Days:       %d (%d valid)", counts.Len(), counts.Valid())
	log.Printf("Candidates: %d", len(candidates))
	log.Printf("Events:     %d", len(events))
	log.Printf("Elapsed:    %v", elapsed.Round(time.Millisecond))
	log.Println("=========================================================")
}

func sliceRange(s *series.Series, fromStr, toStr string) (*series.Series, error) {
	if fromStr == "" && toStr == "" {
		return s, nil
	}
	from, to := s.Start(), s.End()
	var err error
	if fromStr != "" {
		if from, err = series.ParseDate(fromStr); err != nil {
			return nil, fmt.Errorf("-from: %w", err)
		}
	}
	if toStr != "" {
		if to, err = series.ParseDate(toStr); err != nil {
			return nil, fmt.Errorf("-to: %w", err)
		}
	}
	out := s.Slice(from, to)
	if out.Len() == 0 {
		return nil, fmt.Errorf("no data between %s and %s", from.Format(series.DateLayout), to.Format(series.DateLayout))
	}
	return out, nil
}

func writeCatalog(path, station string, d detect.Detector, dates []time.Time) error {
	desc := fmt.Sprintf("%s %s detector, window %d, threshold %.1f%%", station, d.Strategy, d.Window, d.Threshold)
	c, err := catalog.New(station+"-"+d.Strategy.String(), desc, dates)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
