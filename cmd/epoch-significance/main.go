// epoch-significance - Resampling baseline for superposed epoch profiles
//
// Averages randomly placed windows of the filtered station series many
// times and reports the per-offset mean, spread and confidence band that an
// event-averaged profile of the same length and event count is compared to.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/epoch-significance ./cmd/epoch-significance

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/anomaly"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/common"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/epoch"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/montecarlo"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/neutron"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/report"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/store"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

func main() {
	cfg := common.DefaultConfig()

	station := flag.String("station", "MOSC", "Station code")
	stationsFlag := flag.String("stations", "", "Station locations CODE=path|clickhouse://...,... (overrides config)")
	columns := flag.String("columns", "0,2", "Date and value column indexes for text archives")
	noFilter := flag.Bool("no-filter", false, "Use the series as loaded (already an anomaly)")
	filterWindow := flag.Int("filter-window", anomaly.DefaultWindow, "High-pass running mean window in days")
	length := flag.Int("length", 50, "Epoch length in days")
	pre := flag.Int("pre", 14, "Offset labels: days before the anchor")
	events := flag.Int("events", 33, "Random windows per iteration (33 = IZMIRAN catalog size)")
	iterations := flag.Int("iterations", montecarlo.DefaultIterations, "Resampling iterations")
	seed := flag.Uint64("seed", 0, "Random seed (0 = time based)")
	confidence := flag.Float64("confidence", 0.95, "Confidence level of the normal band")
	out := flag.String("out", "", "Output (.tsv, .tsv.gz, .parquet); default under the report dir")
	quiet := flag.Bool("quiet", false, "No progress output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "epoch-significance v%s - Epoch Significance Baseline\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Builds the random-window baseline and its confidence band for one series.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	format, err := neutron.ParseFormat(*columns)
	if err != nil {
		log.Fatalf("Invalid -columns: %v", err)
	}
	if *pre < 0 || *pre >= *length {
		log.Fatalf("-pre must be within the window")
	}
	z := montecarlo.ZForConfidence(*confidence)
	if math.IsNaN(z) {
		log.Fatalf("-confidence %g outside (0, 1)", *confidence)
	}
	for code, loc := range common.ParseStations(*stationsFlag) {
		cfg.Stations[code] = loc
	}
	logger := common.NewDefaultLogger(cfg)
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

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
	log.Printf("Epoch Significance v%s", Version)
	log.Println("=========================================================")
	log.Printf("Station:    %s", strings.ToUpper(*station))
	log.Printf("Iterations: %d x %d windows of %d days, seed %d", *iterations, *events, *length, *seed)

	stats := common.NewStats()
	stats.SetSilent(*quiet)

	resolver := store.NewResolver(cfg)
	resolver.Files = neutron.FileResolver(format, stats, logger)
	defer resolver.Close()

	loader := neutron.NewLoader(cfg, logger)
	loader.Resolve = resolver.Resolve

	startTime := time.Now()

	s, err := loader.Load(ctx, *station)
	if err != nil {
		log.Fatalf("Load failed: %v", err)
	}
	if !*noFilter {
		if s, err = (anomaly.Filter{Floor: cfg.ValidityFloor, Window: *filterWindow}).Apply(s); err != nil {
			log.Fatalf("Filter failed: %v", err)
		}
	}

	stats.SetTarget(uint64(*iterations))
	stats.StartReporter()
	baseline, err := montecarlo.Test{
		Length:     *length,
		Events:     *events,
		Iterations: *iterations,
		Rand:       montecarlo.NewRand(*seed),
		Progress:   stats,
	}.Run(ctx, s)
	stats.StopReporter()
	if err != nil {
		log.Fatalf("Significance test failed: %v", err)
	}

	lower, upper := baseline.Band(z)
	rep := report.Report{
		Label:      s.Name + "/baseline",
		Events:     *events,
		Iterations: baseline.Iterations,
		Offsets:    epoch.Offsets(*length, *pre),
		Mean:       baseline.Mean,
		Std:        baseline.Std,
		Count:      baseline.Count,
	}
	if rep, err = rep.WithBand(lower, upper, make([]bool, *length), baseline.Iterations); err != nil {
		log.Fatalf("Report: %v", err)
	}

	path := *out
	if path == "" {
		path = filepath.Join(cfg.ReportDir(), fmt.Sprintf("%s_baseline_L%d_K%d.tsv", s.Name, *length, *events))
	}
	if err := report.ForPath(path).Write(rep); err != nil {
		log.Fatalf("Write failed: %v", err)
	}

	elapsed := time.Since(startTime)

	log.Println()
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Iterations: %d", stats.Iterations())
	log.Printf("Output:     %s", path)
	log.Printf("Elapsed:    %v", elapsed.Round(time.Millisecond))
	log.Printf("Rate:       %.0f iterations/sec", float64(stats.Iterations())/elapsed.Seconds())
	log.Println("=========================================================")
}
