package csvformat

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/geoyogesh/csvscan/internal/record"
)

// StreamConfig is everything a Stream needs besides the bytes.
type StreamConfig struct {
	Options Options
	// Schema is the full file schema; Projection indexes into it.
	Schema record.Schema
	// Projection selects and orders output columns. nil means all columns;
	// an empty non-nil slice produces zero-column batches that still carry row counts.
	Projection []int
	// BatchSize overrides Options.BatchSize when > 0.
	BatchSize int
	Allocator memory.Allocator
}

// Stream reads a buffered input as a finite sequence of Arrow records.
// It is single-pass and not safe for concurrent use.
type Stream struct {
	tok        *tokenizer
	mem        memory.Allocator
	fileSchema record.Schema
	indices    []int
	outSchema  *arrow.Schema
	batchSize  int
	skipHeader bool

	buf      [][]string
	finished bool
	err      error
	rows     int64
}

// NewStream validates cfg and positions a reader at the start of data.
// The Stream takes ownership of data; callers must not modify it afterwards.
func NewStream(data []byte, cfg StreamConfig) (*Stream, error) {
	if cfg.BatchSize > 0 {
		cfg.Options.BatchSize = cfg.BatchSize
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}

	indices := cfg.Projection
	if indices == nil {
		indices = make([]int, cfg.Schema.NumCols())
		for i := range indices {
			indices[i] = i
		}
	}
	projected, err := cfg.Schema.Project(indices)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProjection, err)
	}

	mem := cfg.Allocator
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	return &Stream{
		tok:        newTokenizer(data, cfg.Options.Delimiter),
		mem:        mem,
		fileSchema: cfg.Schema,
		indices:    indices,
		outSchema:  projected.ToArrow(),
		batchSize:  cfg.Options.BatchSize,
		skipHeader: cfg.Options.HasHeader,
		buf:        make([][]string, 0, min(cfg.Options.BatchSize, 1024)),
	}, nil
}

// Schema is the output schema: the projected columns, in projection order.
func (s *Stream) Schema() *arrow.Schema { return s.outSchema }

// RowsRead is the number of data rows emitted so far.
func (s *Stream) RowsRead() int64 { return s.rows }

// Next returns the next batch, or io.EOF once the input is exhausted.
// A tokenizing failure is terminal: it is returned by this and every later call.
// The caller owns the returned record and must Release it.
func (s *Stream) Next() (arrow.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.finished {
		return nil, io.EOF
	}

	if s.skipHeader {
		s.skipHeader = false
		if _, err := s.tok.next(); err != nil {
			return nil, s.fail(err)
		}
	}

	clear(s.buf)
	s.buf = s.buf[:0]
	for len(s.buf) < s.batchSize {
		rec, err := s.tok.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.finished = true
				break
			}
			return nil, s.fail(err)
		}
		s.buf = append(s.buf, rec)
	}

	if len(s.buf) == 0 {
		return nil, io.EOF
	}

	batch, err := s.assemble(s.buf)
	if err != nil {
		s.finished = true
		s.err = err
		return nil, err
	}
	s.rows += batch.NumRows()
	slog.Debug("csvformat: batch assembled", "rows", batch.NumRows(), "cols", batch.NumCols())
	return batch, nil
}

func (s *Stream) fail(err error) error {
	s.finished = true
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	s.err = err
	return err
}

func (s *Stream) assemble(rows [][]string) (arrow.Record, error) {
	n := int64(len(rows))
	if len(s.indices) == 0 {
		return array.NewRecord(s.outSchema, nil, n), nil
	}

	cols := make([]arrow.Array, 0, len(s.indices))
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	for pos, idx := range s.indices {
		col := s.fileSchema.Cols[idx]
		arr := buildColumn(s.mem, col.Type, rows, idx)
		cols = append(cols, arr)

		if int64(arr.Len()) != n {
			return nil, &BatchAssemblyError{
				Column: col.Name,
				Reason: fmt.Sprintf("built %d values for %d rows", arr.Len(), n),
			}
		}
		if want := s.outSchema.Field(pos).Type; !arrow.TypeEqual(arr.DataType(), want) {
			return nil, &BatchAssemblyError{
				Column: col.Name,
				Reason: fmt.Sprintf("built %s array for %s field", arr.DataType(), want),
			}
		}
	}

	// NewRecord retains every column; the deferred release drops our references.
	return array.NewRecord(s.outSchema, cols, n), nil
}
