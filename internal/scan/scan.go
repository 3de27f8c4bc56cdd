package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/geoyogesh/csvscan/internal/csvformat"
	"github.com/geoyogesh/csvscan/internal/record"
	"github.com/geoyogesh/csvscan/internal/source"
)

var ErrPartitionOutOfRange = errors.New("scan: partition out of range")

// RecordReader is a pull-based batch source. Next returns io.EOF when done.
type RecordReader interface {
	Schema() *arrow.Schema
	Next() (arrow.Record, error)
}

// Operator is a partitioned scan. Schema is known before any partition is opened.
type Operator interface {
	Schema() *arrow.Schema
	NumPartitions() int
	Open(ctx context.Context, partition int) (RecordReader, error)
}

var (
	_ Operator     = (*CSVScan)(nil)
	_ RecordReader = (*csvformat.Stream)(nil)
	_ RecordReader = (*groupReader)(nil)
)

// Config describes a CSV scan. Each file group is one partition.
type Config struct {
	Options    csvformat.Options
	FileSchema record.Schema
	Projection []int
	FileGroups [][]string
	BatchSize  int
	Allocator  memory.Allocator
}

type CSVScan struct {
	cfg     Config
	fetcher source.Fetcher
	schema  *arrow.Schema
}

func NewCSVScan(cfg Config, fetcher source.Fetcher) (*CSVScan, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("scan: nil fetcher")
	}
	if cfg.BatchSize > 0 {
		cfg.Options.BatchSize = cfg.BatchSize
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	projected, err := cfg.FileSchema.Project(cfg.Projection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", csvformat.ErrInvalidProjection, err)
	}
	return &CSVScan{cfg: cfg, fetcher: fetcher, schema: projected.ToArrow()}, nil
}

func (s *CSVScan) Schema() *arrow.Schema { return s.schema }

func (s *CSVScan) NumPartitions() int { return len(s.cfg.FileGroups) }

func (s *CSVScan) String() string {
	return fmt.Sprintf("CSVScan: file_groups={count=%d}", len(s.cfg.FileGroups))
}

// Open returns a reader over the partition's files, read one after another.
// ctx governs the fetches; parsing itself never blocks.
func (s *CSVScan) Open(ctx context.Context, partition int) (RecordReader, error) {
	if partition < 0 || partition >= len(s.cfg.FileGroups) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPartitionOutOfRange, partition, len(s.cfg.FileGroups))
	}
	return &groupReader{
		ctx:   ctx,
		scan:  s,
		files: s.cfg.FileGroups[partition],
	}, nil
}

// groupReader chains one Stream per file. A file is fetched in full before any
// of it is parsed, and only after the previous file is exhausted.
type groupReader struct {
	ctx   context.Context
	scan  *CSVScan
	files []string
	next  int
	cur   *csvformat.Stream
	err   error
}

func (g *groupReader) Schema() *arrow.Schema { return g.scan.schema }

func (g *groupReader) Next() (arrow.Record, error) {
	if g.err != nil {
		return nil, g.err
	}
	for {
		if g.cur == nil {
			if g.next >= len(g.files) {
				return nil, io.EOF
			}
			if err := g.open(g.files[g.next]); err != nil {
				g.err = err
				return nil, err
			}
			g.next++
		}

		rec, err := g.cur.Next()
		if errors.Is(err, io.EOF) {
			g.cur = nil
			continue
		}
		if err != nil {
			g.err = err
			return nil, err
		}
		return rec, nil
	}
}

func (g *groupReader) open(location string) error {
	data, err := g.scan.fetcher.Fetch(g.ctx, location)
	if err != nil {
		return err
	}
	slog.Debug("scan: file fetched", "location", location, "bytes", len(data))

	st, err := csvformat.NewStream(data, csvformat.StreamConfig{
		Options:    g.scan.cfg.Options,
		Schema:     g.scan.cfg.FileSchema,
		Projection: g.scan.cfg.Projection,
		Allocator:  g.scan.cfg.Allocator,
	})
	if err != nil {
		return err
	}
	g.cur = st
	return nil
}

// InferSchema infers from the first location only; an empty list yields an empty schema.
func InferSchema(ctx context.Context, fetcher source.Fetcher, locations []string, opts csvformat.Options) (record.Schema, error) {
	if len(locations) == 0 {
		return record.Schema{}, nil
	}
	data, err := fetcher.Fetch(ctx, locations[0])
	if err != nil {
		return record.Schema{}, err
	}
	return csvformat.Infer(data, opts)
}
