// Package common provides shared utilities for the Forbush lab tools.
package common

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultStations are the neutron monitors covered by the 2002-2017 archive.
var DefaultStations = []string{"OULU", "MOSC", "NEWK", "CLIM"}

// Config holds common configuration for all applications.
type Config struct {
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	DataDir            string
	LogLevel           string

	// ValidityFloor marks counts below it as missing.
	ValidityFloor float64

	// Stations maps a station code to its data source location: a text or
	// parquet path, or a clickhouse:// URL.
	Stations map[string]string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	c := &Config{
		ClickHouseHost:     getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:     getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "forbush"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		DataDir:            getEnv("FORBUSH_DATA_DIR", "/var/lib/ki7mt-forbush"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		ValidityFloor:      getEnvFloat("FORBUSH_VALIDITY_FLOOR", 1),
	}

	c.Stations = make(map[string]string, len(DefaultStations))
	for _, code := range DefaultStations {
		c.Stations[code] = filepath.Join(c.NeutronDataDir(), code+"_2002_2017.txt")
	}
	for code, loc := range ParseStations(os.Getenv("FORBUSH_STATIONS")) {
		c.Stations[code] = loc
	}
	return c
}

// NeutronDataDir returns the neutron monitor data directory path.
func (c *Config) NeutronDataDir() string {
	return filepath.Join(c.DataDir, "neutron")
}

// ReportDir returns the directory epoch reports and anchor caches go to.
func (c *Config) ReportDir() string {
	return filepath.Join(c.DataDir, "reports")
}

// ClickHouseAddr returns host:port for the native protocol.
func (c *Config) ClickHouseAddr() string {
	return c.ClickHouseHost + ":" + strconv.Itoa(c.ClickHousePort)
}

// StationCodes returns the configured station codes in sorted order.
func (c *Config) StationCodes() []string {
	codes := make([]string, 0, len(c.Stations))
	for code := range c.Stations {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ParseStations parses "CODE=location,CODE=location". Malformed entries are
// skipped; codes are upper-cased.
func ParseStations(spec string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(spec, ",") {
		code, loc, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		code = strings.ToUpper(strings.TrimSpace(code))
		loc = strings.TrimSpace(loc)
		if code == "" || loc == "" {
			continue
		}
		out[code] = loc
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}
