package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

type recordWriter interface {
	Write(rec arrow.Record) error
	Close() error
}

var (
	_ recordWriter = (*ipc.Writer)(nil)
	_ recordWriter = (*pqarrow.FileWriter)(nil)
)

func (a *app) ipcWriter(w io.Writer, schema *arrow.Schema) (recordWriter, error) {
	return ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(a.mem)), nil
}

func (a *app) parquetWriter(w io.Writer, schema *arrow.Schema, codec compress.Compression) (recordWriter, error) {
	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithCreatedBy("csvscan"),
		parquet.WithAllocator(a.mem),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(a.mem))
	return pqarrow.NewFileWriter(schema, w, props, arrowProps)
}

func parseCompression(s string) (compress.Compression, error) {
	switch strings.ToLower(s) {
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "none", "uncompressed", "":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("export: unknown compression %q", s)
	}
}
