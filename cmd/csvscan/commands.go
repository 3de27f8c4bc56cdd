package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"

	"github.com/geoyogesh/csvscan/internal/record"
	"github.com/geoyogesh/csvscan/internal/scan"
)

func (a *app) infer(ctx context.Context, args []string) error {
	flags, cfgPath, schemaPath := newFlagSet("infer")
	flags.SetOutput(a.stderr)
	if err := flags.Parse(args); err != nil {
		return err
	}
	in, err := a.loadInput(ctx, flags, *cfgPath, *schemaPath)
	if err != nil {
		return err
	}
	return record.WriteSchemaYAML(a.stdout, in.schema)
}

func (a *app) cat(ctx context.Context, args []string) error {
	flags, cfgPath, schemaPath := newFlagSet("cat")
	flags.SetOutput(a.stderr)
	columns := flags.StringSlice("columns", nil, "comma separated columns to print (default all)")
	limit := flags.Int64("limit", -1, "print at most this many rows")
	if err := flags.Parse(args); err != nil {
		return err
	}
	in, err := a.loadInput(ctx, flags, *cfgPath, *schemaPath)
	if err != nil {
		return err
	}
	projection, err := projectionFor(in.schema, *columns)
	if err != nil {
		return err
	}
	op, err := a.operator(in, projection)
	if err != nil {
		return err
	}

	w := csv.NewWriter(a.stdout, op.Schema(),
		csv.WithComma(rune(in.opts.Delimiter)),
		csv.WithHeader(true),
		csv.WithNullWriter(""),
	)
	remaining := *limit
	wrote := false
	err = eachRecord(ctx, op, func(rec arrow.Record) (bool, error) {
		wrote = true
		if remaining >= 0 && rec.NumRows() > remaining {
			part := rec.NewSlice(0, remaining)
			defer part.Release()
			rec = part
		}
		if err := w.Write(rec); err != nil {
			return false, err
		}
		if remaining >= 0 {
			remaining -= rec.NumRows()
			return remaining > 0, nil
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if !wrote {
		// header only
		empty := a.emptyRecord(op.Schema())
		defer empty.Release()
		if err := w.Write(empty); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (a *app) emptyRecord(schema *arrow.Schema) arrow.Record {
	cols := make([]arrow.Array, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = array.MakeArrayOfNull(a.mem, f.Type, 0)
	}
	rec := array.NewRecord(schema, cols, 0)
	for _, c := range cols {
		c.Release()
	}
	return rec
}

func (a *app) count(ctx context.Context, args []string) error {
	flags, cfgPath, schemaPath := newFlagSet("count")
	flags.SetOutput(a.stderr)
	perFile := flags.Bool("per-file", false, "print one count per input file")
	parallelism := flags.Int("parallelism", 0, "files counted at once (0 = all at once)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	in, err := a.loadInput(ctx, flags, *cfgPath, *schemaPath)
	if err != nil {
		return err
	}
	op, err := a.operator(in, []int{})
	if err != nil {
		return err
	}
	counts, err := scan.CountRows(ctx, op, *parallelism)
	if err != nil {
		return err
	}

	var total int64
	for i, n := range counts {
		total += n
		if *perFile {
			fmt.Fprintf(a.stdout, "%d\t%s\n", n, in.files[i])
		}
	}
	if *perFile {
		fmt.Fprintf(a.stdout, "%d\ttotal\n", total)
		return nil
	}
	fmt.Fprintln(a.stdout, total)
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	flags, cfgPath, schemaPath := newFlagSet("export")
	flags.SetOutput(a.stderr)
	format := flags.String("format", "arrow", "output format: arrow (IPC stream) or parquet")
	output := flags.StringP("output", "o", "", "output file (required)")
	codec := flags.String("compression", "snappy", "parquet compression: snappy, zstd or none")
	columns := flags.StringSlice("columns", nil, "comma separated columns to export (default all)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *output == "" {
		return fmt.Errorf("export: --output is required")
	}

	var open func(io.Writer, *arrow.Schema) (recordWriter, error)
	switch strings.ToLower(*format) {
	case "arrow", "ipc":
		open = a.ipcWriter
	case "parquet":
		c, err := parseCompression(*codec)
		if err != nil {
			return err
		}
		open = func(w io.Writer, schema *arrow.Schema) (recordWriter, error) {
			return a.parquetWriter(w, schema, c)
		}
	default:
		return fmt.Errorf("export: unknown format %q", *format)
	}

	in, err := a.loadInput(ctx, flags, *cfgPath, *schemaPath)
	if err != nil {
		return err
	}
	projection, err := projectionFor(in.schema, *columns)
	if err != nil {
		return err
	}
	op, err := a.operator(in, projection)
	if err != nil {
		return err
	}

	f, err := a.fs.Create(*output)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer func() { _ = f.Close() }()

	// bufio hides Close from the parquet writer; the file is closed here.
	buf := bufio.NewWriter(f)
	rw, err := open(buf, op.Schema())
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	var rows int64
	err = eachRecord(ctx, op, func(rec arrow.Record) (bool, error) {
		rows += rec.NumRows()
		return true, rw.Write(rec)
	})
	if cerr := rw.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = buf.Flush()
	}
	if err == nil {
		err = f.Close()
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Fprintf(a.stderr, "wrote %d rows to %s\n", rows, *output)
	return nil
}

// eachRecord feeds every batch of every partition, in order, to fn until fn
// returns false. Batches are released after fn returns.
func eachRecord(ctx context.Context, op scan.Operator, fn func(arrow.Record) (bool, error)) error {
	for p := 0; p < op.NumPartitions(); p++ {
		r, err := op.Open(ctx, p)
		if err != nil {
			return err
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			more, err := fn(rec)
			rec.Release()
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
	}
	return nil
}
