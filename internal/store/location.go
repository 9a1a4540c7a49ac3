// Package store persists and loads station records and epoch profiles in
// ClickHouse.
//
// Inserts go through the native ch-go client with columnar batches; station
// series are read back with clickhouse-go/v2 struct scanning.
package store

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Scheme prefixes ClickHouse station locations.
const Scheme = "clickhouse"

const (
	DefaultRecordTable  = "neutron_daily"
	DefaultProfileTable = "epoch_profiles"
)

var ErrBadLocation = errors.New("store: invalid clickhouse location")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Location addresses a ClickHouse table: clickhouse://[user[:pass]@]host:port/db.table
type Location struct {
	Addr     string
	Database string
	Table    string
	Username string
	Password string
}

// IsLocation reports whether s uses the clickhouse:// scheme.
func IsLocation(s string) bool {
	return strings.HasPrefix(s, Scheme+"://")
}

// ParseLocation parses a clickhouse:// location. The port defaults to 9000.
func ParseLocation(s string) (Location, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrBadLocation, err)
	}
	if u.Scheme != Scheme || u.Host == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrBadLocation, s)
	}

	db, table, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), ".")
	if !ok || !identRe.MatchString(db) || !identRe.MatchString(table) {
		return Location{}, fmt.Errorf("%w: want db.table in %q", ErrBadLocation, s)
	}

	addr := u.Host
	if u.Port() == "" {
		addr += ":9000"
	}
	loc := Location{Addr: addr, Database: db, Table: table}
	if u.User != nil {
		loc.Username = u.User.Username()
		loc.Password, _ = u.User.Password()
	}
	return loc, nil
}

// FQN returns db.table.
func (l Location) FQN() string {
	return l.Database + "." + l.Table
}

func (l Location) String() string {
	return fmt.Sprintf("%s://%s/%s", Scheme, l.Addr, l.FQN())
}

// TableFQN validates and joins a database and table name.
func TableFQN(db, table string) (string, error) {
	if !identRe.MatchString(db) || !identRe.MatchString(table) {
		return "", fmt.Errorf("%w: %s.%s", ErrBadLocation, db, table)
	}
	return db + "." + table, nil
}
