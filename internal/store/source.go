package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/common"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/neutron"
)

// Source loads one station's records from a ClickHouse table.
type Source struct {
	Conn     driver.Conn
	Location Location
}

func (s *Source) String() string { return s.Location.String() }

func (s *Source) Records(ctx context.Context, station string) ([]neutron.Record, error) {
	var recs []neutron.Record
	query := fmt.Sprintf("SELECT station, date, count FROM %s WHERE station = ? ORDER BY date", s.Location.FQN())
	if err := s.Conn.Select(ctx, &recs, query, station); err != nil {
		return nil, fmt.Errorf("%s: %w", s.Location, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", neutron.ErrNoRecords, station, s.Location)
	}
	// Date columns scan in the server zone; keep the calendar day.
	for i := range recs {
		y, m, d := recs[i].Date.Date()
		recs[i].Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return recs, nil
}

// Open connects to the server named by loc. Credentials in loc take
// precedence over cfg.
func Open(loc Location, cfg *common.Config) (driver.Conn, error) {
	user, pass := cfg.ClickHouseUser, cfg.ClickHousePassword
	if loc.Username != "" {
		user, pass = loc.Username, loc.Password
	}
	return clickhouse.Open(&clickhouse.Options{
		Addr: []string{loc.Addr},
		Auth: clickhouse.Auth{
			Database: loc.Database,
			Username: user,
			Password: pass,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
}

// Resolver resolves station locations, sharing one connection per server.
// Plain paths go to Files, neutron.ResolveFile by default.
type Resolver struct {
	Config *common.Config
	Files  neutron.Resolver
	open   func(Location, *common.Config) (driver.Conn, error)

	mu    sync.Mutex
	conns map[string]driver.Conn
}

func NewResolver(cfg *common.Config) *Resolver {
	return &Resolver{Config: cfg, Files: neutron.ResolveFile, open: Open, conns: make(map[string]driver.Conn)}
}

// Resolve has the neutron.Resolver signature.
func (r *Resolver) Resolve(location string) (neutron.Source, error) {
	if !IsLocation(location) {
		return r.Files(location)
	}
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := loc.Username + "@" + loc.Addr + "/" + loc.Database
	conn, ok := r.conns[key]
	if !ok {
		conn, err = r.open(loc, r.Config)
		if err != nil {
			return nil, fmt.Errorf("clickhouse connection failed: %w", err)
		}
		r.conns[key] = conn
	}
	return &Source{Conn: conn, Location: loc}, nil
}

// Close closes every opened connection.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for key, c := range r.conns {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.conns, key)
	}
	return first
}
