// neutron-ingest - Neutron monitor station archive ingestion into ClickHouse
//
// Parses whitespace-delimited daily station archives (plain or .gz) named
// <STATION>_<from>_<to>.txt and inserts them into forbush.neutron_daily via
// the native protocol. Optionally writes a parquet cache per station.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/neutron-ingest ./cmd/neutron-ingest

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/common"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/neutron"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/store"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

// stationFromFile derives the station code from OULU_2002_2017.txt(.gz).
func stationFromFile(path string) string {
	base := filepath.Base(path)
	code, _, _ := strings.Cut(base, "_")
	code = strings.TrimSuffix(strings.TrimSuffix(code, ".gz"), ".txt")
	return strings.ToUpper(code)
}

func isArchive(name string) bool {
	return strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".txt.gz")
}

func writeCache(dir, station string, recs []neutron.Record) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, station+".parquet")
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create file failed: %w", err)
	}
	if err := neutron.WriteParquet(f, recs); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename failed: %w", err)
	}
	return path, nil
}

func main() {
	cfg := common.DefaultConfig()

	chHost := flag.String("ch-host", cfg.ClickHouseAddr(), "ClickHouse address")
	chDB := flag.String("ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", store.DefaultRecordTable, "ClickHouse table")
	sourceDir := flag.String("source-dir", cfg.NeutronDataDir(), "Station archive directory")
	columns := flag.String("columns", "0,2", "Date and value column indexes")
	truncate := flag.Bool("truncate", false, "Truncate table before insert")
	replace := flag.Bool("replace", false, "Delete existing rows of each station before insert")
	create := flag.Bool("create", false, "Create tables if missing")
	parquetDir := flag.String("parquet-dir", "", "Also write a parquet cache per station to this directory")
	dryRun := flag.Bool("dry-run", false, "Parse only, no ClickHouse")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "neutron-ingest v%s - Neutron Monitor Ingester\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [files...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Ingests daily station archives (<STATION>_<from>_<to>.txt[.gz]) into ClickHouse.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	format, err := neutron.ParseFormat(*columns)
	if err != nil {
		log.Fatalf("Invalid -columns: %v", err)
	}
	logger := common.NewDefaultLogger(cfg)

	log.Println("=========================================================")
	log.Printf("Neutron Ingest v%s", Version)
	log.Println("=========================================================")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	// Discover files
	var files []string
	if len(flag.Args()) > 0 {
		files = flag.Args()
	} else {
		entries, err := os.ReadDir(*sourceDir)
		if err != nil {
			log.Fatalf("Cannot read source directory: %v", err)
		}
		for _, e := range entries {
			if !e.IsDir() && isArchive(e.Name()) {
				files = append(files, filepath.Join(*sourceDir, e.Name()))
			}
		}
	}
	if len(files) == 0 {
		log.Fatal("No files to process")
	}
	log.Printf("Found %d file(s)", len(files))

	var ins *store.Inserter
	if !*dryRun {
		log.Printf("Connecting to ClickHouse at %s...", *chHost)
		ins, err = store.Dial(ctx, *chHost, *chDB, cfg.ClickHouseUser, cfg.ClickHousePassword)
		if err != nil {
			log.Fatalf("ClickHouse connection failed: %v", err)
		}
		defer ins.Close()
		log.Printf("Table: %s.%s", *chDB, *chTable)

		if *create {
			if err := ins.CreateTables(ctx, *chTable, store.DefaultProfileTable); err != nil {
				log.Fatalf("Create tables failed: %v", err)
			}
		}
		if *truncate {
			log.Printf("Truncating table %s.%s...", *chDB, *chTable)
			if err := ins.Truncate(ctx, *chTable); err != nil {
				log.Printf("Truncate warning: %v", err)
			}
		}
	}

	stats := common.NewStats()
	stats.StartReporter()

	startTime := time.Now()
	totalRecords := 0
	failed := 0

	for _, filePath := range files {
		if ctx.Err() != nil {
			break
		}
		fileName := filepath.Base(filePath)
		station := stationFromFile(filePath)

		src := &neutron.FileSource{Path: filePath, Format: format, Stats: stats, Logger: logger}
		recs, err := src.Records(ctx, station)
		if err != nil {
			log.Printf("[%s] Parse error: %v", fileName, err)
			failed++
			continue
		}
		log.Printf("[%s] Parsed %d records for %s", fileName, len(recs), station)

		if *parquetDir != "" {
			path, err := writeCache(*parquetDir, station, recs)
			if err != nil {
				log.Printf("[%s] Parquet cache error: %v", fileName, err)
			} else {
				log.Printf("[%s] Cached to %s", fileName, path)
			}
		}

		if ins == nil {
			totalRecords += len(recs)
			continue
		}
		if *replace {
			if err := ins.DeleteStation(ctx, *chTable, station); err != nil {
				log.Printf("[%s] Delete warning: %v", fileName, err)
			}
		}
		n, err := ins.InsertRecords(ctx, *chTable, recs, fileName)
		if err != nil {
			log.Printf("[%s] Insert error after %d rows: %v", fileName, n, err)
			failed++
			continue
		}
		totalRecords += n
	}

	stats.StopReporter()
	elapsed := time.Since(startTime)

	log.Println()
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Files:         %d (%d failed)", len(files), failed)
	log.Printf("Total Records: %d", totalRecords)
	log.Printf("Total Size:    %.2f MB", float64(stats.Bytes())/1024/1024)
	log.Printf("Elapsed:       %v", elapsed.Round(time.Millisecond))
	log.Printf("Rate:          %.0f records/sec", float64(totalRecords)/elapsed.Seconds())
	log.Println("=========================================================")

	if failed > 0 {
		os.Exit(1)
	}
}
