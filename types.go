// Package csvscan reads delimited text into typed Apache Arrow record batches,
// inferring the schema by sampling when none is given.
package csvscan

import (
	"github.com/geoyogesh/csvscan/internal/csvformat"
	"github.com/geoyogesh/csvscan/internal/record"
)

type (
	Schema     = record.Schema
	Column     = record.Column
	ColumnType = record.ColumnType

	Options      = csvformat.Options
	Reader       = csvformat.Stream
	ReaderConfig = csvformat.StreamConfig

	HeaderReadError    = csvformat.HeaderReadError
	RecordParseError   = csvformat.RecordParseError
	BatchAssemblyError = csvformat.BatchAssemblyError
)

const (
	Utf8    = record.ColText
	Int64   = record.ColInt64
	Float64 = record.ColFloat64
	Boolean = record.ColBool
)

func DefaultOptions() Options { return csvformat.DefaultOptions() }

// InferSchema samples data and returns the column schema.
func InferSchema(data []byte, opts Options) (Schema, error) {
	return csvformat.Infer(data, opts)
}

// NewReader returns a batch reader over data. See ReaderConfig for projection rules.
func NewReader(data []byte, cfg ReaderConfig) (*Reader, error) {
	return csvformat.NewStream(data, cfg)
}
