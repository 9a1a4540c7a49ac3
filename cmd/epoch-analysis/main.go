// epoch-analysis - Superposed epoch analysis of a daily series around events
//
// Pipeline:
//  1. Load the station series (text, parquet or ClickHouse)
//  2. Filter to a percent anomaly with the 35-day high-pass
//  3. Cut a window around every catalog anchor, optionally realigned on
//     the window minimum
//  4. Average windows offset by offset
//  5. Compare against a resampling baseline of random windows
//  6. Write the profile to text/parquet sinks and optionally ClickHouse
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/epoch-analysis ./cmd/epoch-analysis

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
	"github.com/KI7MT/ki7mt-forbush-lab/internal/catalog"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/common"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/epoch"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/montecarlo"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/neutron"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/report"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/store"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

func applyFilter(name string, s *series.Series, window int, floor float64) (*series.Series, error) {
	switch strings.ToLower(name) {
	case "highpass":
		return anomaly.Filter{Floor: floor, Window: window}.Apply(s)
	case "longterm":
		return anomaly.LongTermAnomaly(anomaly.ApplyFloor(s, floor))
	case "monthly":
		return anomaly.MonthlyAnomaly(anomaly.ApplyFloor(s, floor))
	case "standardize":
		return anomaly.Standardize(anomaly.ApplyFloor(s, floor))
	case "none":
		return s, nil
	}
	return nil, fmt.Errorf("unknown filter %q (highpass, longterm, monthly, standardize, none)", name)
}

// loadAnchors reads an anchor file when one is given, otherwise the catalog.
func loadAnchors(catalogRef, anchorFile string) (*catalog.Catalog, error) {
	if anchorFile != "" {
		anchors, err := epoch.ReadAnchorFile(anchorFile)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(anchorFile), filepath.Ext(anchorFile))
		return catalog.New(name, "anchor file "+anchorFile, anchors)
	}
	c, err := catalog.Resolve(catalogRef)
	if err != nil {
		return nil, err
	}
	if c.Name != catalog.BuiltinIZMIRAN {
		c.Name = strings.TrimSuffix(filepath.Base(c.Name), filepath.Ext(c.Name))
	}
	return c, nil
}

func main() {
	cfg := common.DefaultConfig()

	station := flag.String("station", "OULU", "Station code")
	stationsFlag := flag.String("stations", "", "Station locations CODE=path|clickhouse://...,... (overrides config)")
	columns := flag.String("columns", "0,2", "Date and value column indexes for text archives")
	catalogRef := flag.String("catalog", catalog.BuiltinIZMIRAN, "Event catalog: built-in name or YAML file")
	anchorFile := flag.String("anchors", "", "Anchor file to use instead of -catalog (e.g. a realigned cache)")
	filterName := flag.String("filter", "highpass", "Series filter: highpass, longterm, monthly, standardize, none")
	filterWindow := flag.Int("filter-window", anomaly.DefaultWindow, "High-pass running mean window in days")
	length := flag.Int("length", 50, "Epoch length in days")
	pre := flag.Int("pre", 14, "Days before the anchor included in each window")
	realign := flag.Bool("realign", false, "Shift each anchor onto its window minimum")
	target := flag.Int("target", 0, "Offset the minima are aligned to with -realign")
	normalize := flag.String("normalize", "none", "Per-event scaling: none, maxabs, background")
	bgDays := flag.Int("background-days", 14, "Leading days averaged for -normalize background")
	iterations := flag.Int("iterations", montecarlo.DefaultIterations, "Resampling iterations (0 = skip)")
	events := flag.Int("events", 0, "Random windows per iteration (0 = number of extracted events)")
	seed := flag.Uint64("seed", 0, "Random seed (0 = time based)")
	confidence := flag.Float64("confidence", 0.95, "Confidence level of the band")
	band := flag.String("band", "normal", "Band: normal (mean +/- z*std) or percentile")
	outFlag := flag.String("out", "", "Comma-separated outputs (.tsv, .tsv.gz, .parquet); default under the report dir")
	anchorCache := flag.String("anchor-cache", "", "Write effective anchors to this file")
	toClickHouse := flag.Bool("ch", false, "Also store the profile in ClickHouse")
	chHost := flag.String("ch-host", cfg.ClickHouseAddr(), "ClickHouse address")
	chDB := flag.String("ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", store.DefaultProfileTable, "ClickHouse profile table")
	quiet := flag.Bool("quiet", false, "No progress output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "epoch-analysis v%s - Superposed Epoch Analysis\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Averages a daily series around catalog events and tests the result\n")
		fmt.Fprintf(os.Stderr, "against randomly placed windows.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	format, err := neutron.ParseFormat(*columns)
	if err != nil {
		log.Fatalf("Invalid -columns: %v", err)
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
	log.Printf("Epoch Analysis v%s", Version)
	log.Println("=========================================================")
	log.Printf("Station:  %s", strings.ToUpper(*station))
	log.Printf("Window:   %d days (%d before anchor), realign=%v", *length, *pre, *realign)
	log.Printf("Filter:   %s", *filterName)

	stats := common.NewStats()
	stats.SetSilent(*quiet)

	resolver := store.NewResolver(cfg)
	resolver.Files = neutron.FileResolver(format, stats, logger)
	defer resolver.Close()

	loader := neutron.NewLoader(cfg, logger)
	loader.Resolve = resolver.Resolve

	startTime := time.Now()

	// Stage 1-2: series
	raw, err := loader.Load(ctx, *station)
	if err != nil {
		log.Fatalf("Load failed: %v", err)
	}
	filtered, err := applyFilter(*filterName, raw, *filterWindow, cfg.ValidityFloor)
	if err != nil {
		log.Fatalf("Filter failed: %v", err)
	}

	// Stage 3: epochs
	cat, err := loadAnchors(*catalogRef, *anchorFile)
	if err != nil {
		log.Fatalf("Anchors: %v", err)
	}
	catName := cat.Name
	anchors := cat.Within(raw.Start(), raw.End())
	log.Printf("Catalog:  %s (%d events, %d inside the series)", catName, cat.Len(), len(anchors))
	if len(anchors) == 0 {
		log.Fatalf("No events inside %s (%s to %s)", raw.Name,
			raw.Start().Format(series.DateLayout), raw.End().Format(series.DateLayout))
	}

	ex := epoch.Extractor{Length: *length, PreOffset: *pre, Realign: *realign, Target: *target, Logger: logger}
	m, failures, err := ex.Build(filtered, anchors)
	if err != nil {
		log.Fatalf("Extract failed: %v", err)
	}
	if m.Events() == 0 {
		log.Fatalf("No events inside %s (%s to %s)", raw.Name,
			raw.Start().Format(series.DateLayout), raw.End().Format(series.DateLayout))
	}
	if *anchorCache != "" {
		if err := epoch.WriteAnchorFile(*anchorCache, m.AlignedAnchors()); err != nil {
			log.Fatalf("Anchor cache: %v", err)
		}
		log.Printf("Anchor cache written to %s", *anchorCache)
	}

	switch *normalize {
	case "none":
	case "maxabs":
		m.NormalizeMaxAbs()
	case "background":
		m.PercentFromBackground(*bgDays)
	default:
		log.Fatalf("Unknown -normalize %q", *normalize)
	}

	// Stage 4: reduce
	profile, err := epoch.Reduce(m)
	if err != nil {
		log.Fatalf("Reduce failed: %v", err)
	}
	label := fmt.Sprintf("%s/%s", raw.Name, catName)
	rep := report.New(label, profile)

	// Stage 5: significance
	if *iterations > 0 && *normalize != "none" {
		logger.Warnf("Skipping significance test: random windows are not normalized (-normalize %s)", *normalize)
	} else if *iterations > 0 {
		k := *events
		if k <= 0 {
			k = m.Events()
		}
		log.Printf("Significance: %d iterations x %d windows, seed %d", *iterations, k, *seed)

		stats.SetTarget(uint64(*iterations))
		stats.StartReporter()
		test := montecarlo.Test{
			Length:     *length,
			Events:     k,
			Iterations: *iterations,
			Rand:       montecarlo.NewRand(*seed),
			Progress:   stats,
		}
		baseline, err := test.Run(ctx, filtered)
		stats.StopReporter()
		if err != nil {
			log.Fatalf("Significance test failed: %v", err)
		}

		lower, upper, err := bandFor(baseline, *band, *confidence)
		if err != nil {
			log.Fatalf("Band: %v", err)
		}
		flags, err := montecarlo.Compare(profile, lower, upper)
		if err != nil {
			log.Fatalf("Compare: %v", err)
		}
		if rep, err = rep.WithBand(lower, upper, flags, baseline.Iterations); err != nil {
			log.Fatalf("Report: %v", err)
		}
	}

	// Stage 6: output
	var sinks report.Multi
	outputs := splitList(*outFlag)
	if len(outputs) == 0 {
		outputs = []string{filepath.Join(cfg.ReportDir(), fmt.Sprintf("%s_%s.tsv", raw.Name, catName))}
	}
	for _, out := range outputs {
		sinks = append(sinks, report.ForPath(out))
	}
	if *toClickHouse {
		ins, err := store.Dial(ctx, *chHost, *chDB, cfg.ClickHouseUser, cfg.ClickHousePassword)
		if err != nil {
			log.Fatalf("ClickHouse connection failed: %v", err)
		}
		defer ins.Close()
		sinks = append(sinks, &store.ProfileSink{Ctx: ctx, Inserter: ins, Table: *chTable, RunTime: startTime})
	}
	if err := sinks.Write(rep); err != nil {
		log.Fatalf("Write failed: %v", err)
	}

	printProfile(rep)
	elapsed := time.Since(startTime)

	log.Println()
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Events used:    %d of %d (%d outside the series, %d skipped)",
		m.Events(), cat.Len(), cat.Len()-len(anchors), len(failures))
	log.Printf("Significant:    %v", rep.SignificantOffsets())
	log.Printf("Outputs:        %s", strings.Join(outputs, ", "))
	log.Printf("Elapsed:        %v", elapsed.Round(time.Millisecond))
	log.Println("=========================================================")
}

func bandFor(b *montecarlo.Baseline, kind string, confidence float64) ([]float64, []float64, error) {
	switch kind {
	case "normal":
		z := montecarlo.ZForConfidence(confidence)
		if math.IsNaN(z) {
			return nil, nil, fmt.Errorf("confidence %g outside (0, 1)", confidence)
		}
		lower, upper := b.Band(z)
		return lower, upper, nil
	case "percentile":
		tail := 100 * (1 - confidence) / 2
		return b.PercentileBand(tail, 100-tail)
	}
	return nil, nil, fmt.Errorf("unknown band %q (normal, percentile)", kind)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printProfile(r report.Report) {
	fmt.Printf("%6s  %9s  %8s  %5s  %9s  %9s\n", "offset", "mean", "std", "n", "lower", "upper")
	for _, row := range r.Rows() {
		mark := ""
		if row.Significant {
			mark = " *"
		}
		fmt.Printf("%6d  %9.4f  %8.4f  %5d  %9.4f  %9.4f%s\n",
			row.Offset, row.Mean, row.Std, row.Count, row.Lower, row.Upper, mark)
	}
}
