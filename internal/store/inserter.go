package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/neutron"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/report"
)

// BatchSize is the number of rows sent per native insert.
const BatchSize = 50000

// RecordsSchema creates the station record table.
const RecordsSchema = `CREATE TABLE IF NOT EXISTS %s (
    station     LowCardinality(String),
    date        Date32,
    count       Float64,
    source_file LowCardinality(String)
) ENGINE = ReplacingMergeTree
ORDER BY (station, date)`

// ProfilesSchema creates the epoch profile table.
const ProfilesSchema = `CREATE TABLE IF NOT EXISTS %s (
    run_time    DateTime,
    label       LowCardinality(String),
    offset      Int32,
    mean        Float64,
    std         Float64,
    count       Int32,
    lower       Float64,
    upper       Float64,
    significant Bool
) ENGINE = MergeTree
ORDER BY (label, run_time, offset)`

// RecordBatch holds column data for native insert of station records.
type RecordBatch struct {
	Station    *proto.ColStr
	Date       *proto.ColDate32
	Count      *proto.ColFloat64
	SourceFile *proto.ColStr
}

func NewRecordBatch() *RecordBatch {
	return &RecordBatch{
		Station:    new(proto.ColStr),
		Date:       new(proto.ColDate32),
		Count:      new(proto.ColFloat64),
		SourceFile: new(proto.ColStr),
	}
}

func (b *RecordBatch) Reset() {
	b.Station.Reset()
	b.Date.Reset()
	b.Count.Reset()
	b.SourceFile.Reset()
}

func (b *RecordBatch) Len() int {
	return b.Date.Rows()
}

func (b *RecordBatch) Input() proto.Input {
	return proto.Input{
		{Name: "station", Data: b.Station},
		{Name: "date", Data: b.Date},
		{Name: "count", Data: b.Count},
		{Name: "source_file", Data: b.SourceFile},
	}
}

func (b *RecordBatch) AddRecord(r neutron.Record, sourceFile string) {
	b.Station.Append(r.Station)
	b.Date.Append(r.Date)
	b.Count.Append(r.Count)
	b.SourceFile.Append(sourceFile)
}

// ProfileBatch holds column data for one or more epoch profiles.
type ProfileBatch struct {
	RunTime     *proto.ColDateTime
	Label       *proto.ColStr
	Offset      *proto.ColInt32
	Mean        *proto.ColFloat64
	Std         *proto.ColFloat64
	Count       *proto.ColInt32
	Lower       *proto.ColFloat64
	Upper       *proto.ColFloat64
	Significant *proto.ColBool
}

func NewProfileBatch() *ProfileBatch {
	return &ProfileBatch{
		RunTime:     new(proto.ColDateTime),
		Label:       new(proto.ColStr),
		Offset:      new(proto.ColInt32),
		Mean:        new(proto.ColFloat64),
		Std:         new(proto.ColFloat64),
		Count:       new(proto.ColInt32),
		Lower:       new(proto.ColFloat64),
		Upper:       new(proto.ColFloat64),
		Significant: new(proto.ColBool),
	}
}

func (b *ProfileBatch) Len() int {
	return b.Offset.Rows()
}

func (b *ProfileBatch) Input() proto.Input {
	return proto.Input{
		{Name: "run_time", Data: b.RunTime},
		{Name: "label", Data: b.Label},
		{Name: "offset", Data: b.Offset},
		{Name: "mean", Data: b.Mean},
		{Name: "std", Data: b.Std},
		{Name: "count", Data: b.Count},
		{Name: "lower", Data: b.Lower},
		{Name: "upper", Data: b.Upper},
		{Name: "significant", Data: b.Significant},
	}
}

func (b *ProfileBatch) AddReport(runTime time.Time, r report.Report) {
	for _, row := range r.Rows() {
		b.RunTime.Append(runTime)
		b.Label.Append(row.Label)
		b.Offset.Append(row.Offset)
		b.Mean.Append(row.Mean)
		b.Std.Append(row.Std)
		b.Count.Append(row.Count)
		b.Lower.Append(row.Lower)
		b.Upper.Append(row.Upper)
		b.Significant.Append(row.Significant)
	}
}

// Inserter writes to ClickHouse over the native protocol.
type Inserter struct {
	conn     *ch.Client
	database string
}

// Dial connects with LZ4 compression.
func Dial(ctx context.Context, addr, database, user, password string) (*Inserter, error) {
	conn, err := ch.Dial(ctx, ch.Options{
		Address:     addr,
		Database:    database,
		User:        user,
		Password:    password,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse dial %s: %w", addr, err)
	}
	return &Inserter{conn: conn, database: database}, nil
}

func (ins *Inserter) Close() error {
	return ins.conn.Close()
}

func (ins *Inserter) fqn(table string) (string, error) {
	return TableFQN(ins.database, table)
}

// CreateTables creates the record and profile tables when missing.
func (ins *Inserter) CreateTables(ctx context.Context, recordTable, profileTable string) error {
	for schema, table := range map[string]string{RecordsSchema: recordTable, ProfilesSchema: profileTable} {
		fqn, err := ins.fqn(table)
		if err != nil {
			return err
		}
		if err := ins.conn.Do(ctx, ch.Query{Body: fmt.Sprintf(schema, fqn)}); err != nil {
			return fmt.Errorf("create %s: %w", fqn, err)
		}
	}
	return nil
}

// Truncate empties a table.
func (ins *Inserter) Truncate(ctx context.Context, table string) error {
	fqn, err := ins.fqn(table)
	if err != nil {
		return err
	}
	return ins.conn.Do(ctx, ch.Query{Body: fmt.Sprintf("TRUNCATE TABLE %s", fqn)})
}

// DeleteStation removes one station's rows so a re-ingest does not mix
// archive versions.
func (ins *Inserter) DeleteStation(ctx context.Context, table, station string) error {
	fqn, err := ins.fqn(table)
	if err != nil {
		return err
	}
	if !identRe.MatchString(station) {
		return fmt.Errorf("%w: station %q", ErrBadLocation, station)
	}
	query := fmt.Sprintf("ALTER TABLE %s DELETE WHERE station = '%s'", fqn, station)
	return ins.conn.Do(ctx, ch.Query{Body: query})
}

// InsertRecords sends recs in BatchSize chunks and returns the number
// inserted.
func (ins *Inserter) InsertRecords(ctx context.Context, table string, recs []neutron.Record, sourceFile string) (int, error) {
	fqn, err := ins.fqn(table)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("INSERT INTO %s (station, date, count, source_file) VALUES", fqn)

	batch := NewRecordBatch()
	sent := 0
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		n := batch.Len()
		if err := ins.conn.Do(ctx, ch.Query{Body: query, Input: batch.Input()}); err != nil {
			return err
		}
		sent += n
		batch.Reset()
		return nil
	}

	for _, r := range recs {
		batch.AddRecord(r, sourceFile)
		if batch.Len() >= BatchSize {
			if err := flush(); err != nil {
				return sent, err
			}
		}
	}
	if err := flush(); err != nil {
		return sent, err
	}
	return sent, nil
}

// InsertReport stores one profile stamped with runTime.
func (ins *Inserter) InsertReport(ctx context.Context, table string, runTime time.Time, r report.Report) error {
	fqn, err := ins.fqn(table)
	if err != nil {
		return err
	}
	batch := NewProfileBatch()
	batch.AddReport(runTime, r)
	if batch.Len() == 0 {
		return nil
	}
	query := fmt.Sprintf("INSERT INTO %s (run_time, label, offset, mean, std, count, lower, upper, significant) VALUES", fqn)
	return ins.conn.Do(ctx, ch.Query{Body: query, Input: batch.Input()})
}

// ProfileSink adapts an Inserter to report.Sink.
type ProfileSink struct {
	Ctx      context.Context
	Inserter *Inserter
	Table    string
	RunTime  time.Time
}

func (s *ProfileSink) Write(r report.Report) error {
	return s.Inserter.InsertReport(s.Ctx, s.Table, s.RunTime, r)
}
