package catalog_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/catalog"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIZMIRAN(t *testing.T) {
	c := catalog.IZMIRAN()
	require.Equal(t, 33, c.Len())
	assert.Equal(t, day(2002, 3, 18), c.Events[0])
	assert.Equal(t, day(2011, 10, 24), c.Events[32])

	// Callers get their own copy.
	c.Events[0] = day(1999, 1, 1)
	assert.Equal(t, day(2002, 3, 18), catalog.IZMIRAN().Events[0])

	resolved, err := catalog.Resolve("IZMIRAN")
	require.NoError(t, err)
	assert.Equal(t, 33, resolved.Len())
}

func TestParse(t *testing.T) {
	c, err := catalog.Parse([]byte(`
name: halloween
description: October 2003 storms
events:
  - 2003-10-30
  - 2003-10-29
  - 2003-10-30
`))
	require.NoError(t, err)
	assert.Equal(t, "halloween", c.Name)
	assert.Equal(t, "October 2003 storms", c.Description)
	assert.Equal(t, []time.Time{day(2003, 10, 29), day(2003, 10, 30)}, c.Events)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"no events", "name: nothing\nevents: []\n"},
		{"bad date", "events: [29/10/2003]\n"},
		{"unknown field", "name: x\nanchors: [2003-10-29]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}

	_, err := catalog.Parse(nil)
	assert.ErrorIs(t, err, catalog.ErrEmptyCatalog)
}

func TestLoadAndWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.yaml")

	src, err := catalog.New("", "detected", []time.Time{
		time.Date(2005, 1, 18, 13, 0, 0, 0, time.UTC),
		day(2004, 11, 9),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.Write(&buf))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	got, err := catalog.Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, got.Name, "unnamed catalogs take the path")
	assert.Equal(t, []time.Time{day(2004, 11, 9), day(2005, 1, 18)}, got.Events)

	_, err = catalog.Resolve(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWithin(t *testing.T) {
	c := catalog.IZMIRAN()
	got := c.Within(day(2003, 10, 1), day(2003, 10, 30))
	assert.Equal(t, []time.Time{day(2003, 10, 21), day(2003, 10, 24), day(2003, 10, 30)}, got)
	assert.Empty(t, c.Within(day(2007, 1, 1), day(2009, 12, 31)))
}
