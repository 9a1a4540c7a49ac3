// Package catalog holds named lists of event anchor dates.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

var ErrEmptyCatalog = errors.New("catalog: no events")

// BuiltinIZMIRAN is the name of the built-in catalog.
const BuiltinIZMIRAN = "izmiran"

// Forbush decreases 2002-2011 from the IZMIRAN FD database.
var izmiranDates = []time.Time{
	day(2002, 3, 18), day(2002, 4, 17), day(2002, 5, 23), day(2002, 8, 18), day(2002, 9, 7),
	day(2002, 9, 30), day(2002, 11, 17), day(2003, 5, 29), day(2003, 8, 17), day(2003, 10, 21),
	day(2003, 10, 24), day(2003, 10, 30), day(2003, 11, 20), day(2004, 1, 6), day(2004, 1, 22),
	day(2004, 7, 26), day(2004, 9, 13), day(2004, 11, 7), day(2004, 11, 9), day(2004, 12, 5),
	day(2005, 1, 18), day(2005, 1, 21), day(2005, 5, 8), day(2005, 5, 15), day(2005, 5, 29),
	day(2005, 8, 24), day(2005, 9, 11), day(2006, 12, 14), day(2010, 8, 3), day(2011, 2, 18),
	day(2011, 8, 5), day(2011, 9, 29), day(2011, 10, 24),
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Catalog is a named, date-ordered list of event anchors.
type Catalog struct {
	Name        string
	Description string
	Events      []time.Time
}

type catalogFile struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Events      []string `yaml:"events"`
}

// IZMIRAN returns the built-in catalog.
func IZMIRAN() *Catalog {
	events := append([]time.Time(nil), izmiranDates...)
	return &Catalog{Name: BuiltinIZMIRAN, Description: "IZMIRAN Forbush decreases 2002-2011", Events: events}
}

// New builds a catalog from anchor dates, truncated to the day, sorted and
// de-duplicated.
func New(name, description string, events []time.Time) (*Catalog, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCatalog, name)
	}
	days := make([]time.Time, len(events))
	for i, e := range events {
		days[i] = series.Day(e)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	out := days[:1]
	for _, d := range days[1:] {
		if !d.Equal(out[len(out)-1]) {
			out = append(out, d)
		}
	}
	return &Catalog{Name: name, Description: description, Events: out}, nil
}

func fromStrings(name, description string, dates []string) (*Catalog, error) {
	events := make([]time.Time, 0, len(dates))
	for _, s := range dates {
		d, err := series.ParseDate(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", name, err)
		}
		events = append(events, d)
	}
	return New(name, description, events)
}

// Parse decodes a YAML catalog:
//
//	name: halloween
//	description: October 2003 storms
//	events: [2003-10-29, 2003-10-30]
func Parse(data []byte) (*Catalog, error) {
	var raw catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCatalog
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return fromStrings(raw.Name, raw.Description, raw.Events)
}

// Load reads a YAML catalog file. An unnamed catalog takes the file path as
// its name.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if c.Name == "" {
		c.Name = path
	}
	return c, nil
}

// Resolve returns the built-in catalog for its name, otherwise loads ref
// as a file.
func Resolve(ref string) (*Catalog, error) {
	if strings.EqualFold(ref, BuiltinIZMIRAN) {
		return IZMIRAN(), nil
	}
	return Load(ref)
}

// Write encodes c in the format Parse reads.
func (c *Catalog) Write(w io.Writer) error {
	raw := catalogFile{Name: c.Name, Description: c.Description}
	for _, e := range c.Events {
		raw.Events = append(raw.Events, e.Format(series.DateLayout))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(raw); err != nil {
		return err
	}
	return enc.Close()
}

// Within returns the events in [from, to].
func (c *Catalog) Within(from, to time.Time) []time.Time {
	from, to = series.Day(from), series.Day(to)
	var out []time.Time
	for _, e := range c.Events {
		if !e.Before(from) && !e.After(to) {
			out = append(out, e)
		}
	}
	return out
}

func (c *Catalog) Len() int { return len(c.Events) }
