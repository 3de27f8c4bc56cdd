package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/geoyogesh/csvscan/internal"
	"github.com/geoyogesh/csvscan/internal/csvformat"
	"github.com/geoyogesh/csvscan/internal/logging"
	"github.com/geoyogesh/csvscan/internal/record"
	"github.com/geoyogesh/csvscan/internal/scan"
	"github.com/geoyogesh/csvscan/internal/source"
)

// input is what every command resolves before reading: the options, the
// expanded file list and the file schema.
type input struct {
	opts   csvformat.Options
	reg    *source.Registry
	files  []string
	schema record.Schema
}

// newFlagSet declares the flags shared by every command. Their names match
// the keys internal.LoadConfig binds.
func newFlagSet(name string) (*pflag.FlagSet, *string, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to a YAML config file")
	schemaPath := fs.String("schema", "", "YAML schema file; skips inference")
	fs.Bool("no-header", false, "the first record is data, not column names")
	fs.String("delimiter", ",", `field delimiter: a single character, "tab", "pipe", "semicolon"`)
	fs.Int("infer-max", csvformat.DefaultSchemaInferMaxRec, "records sampled for inference (0 = default)")
	fs.Int("batch-size", csvformat.DefaultBatchSize, "rows per record batch")
	fs.String("root", "", "directory relative paths are resolved against")
	fs.String("log-level", "info", "debug, info, warn or error")
	return fs, cfgPath, schemaPath
}

func (a *app) loadInput(ctx context.Context, flags *pflag.FlagSet, cfgPath, schemaPath string) (*input, error) {
	if flags.NArg() == 0 {
		return nil, fmt.Errorf("no input files")
	}

	cfg, err := internal.LoadConfigFS(a.fs, cfgPath, flags)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logging.New(a.stderr, cfg.Log.Level, cfg.Log.Format))

	reg, err := source.BuildRegistry(source.RegistryConfig{
		Schemes:      cfg.Source.Schemes,
		FS:           a.fs,
		Root:         cfg.Source.Root,
		HTTPTimeout:  cfg.Source.HTTPTimeout,
		HTTPMaxBytes: cfg.Source.HTTPMaxBytes,
	})
	if err != nil {
		return nil, err
	}

	in := &input{opts: cfg.Format, reg: reg}
	for _, arg := range flags.Args() {
		opts := in.opts
		if ext := csvformat.DetectExtension(arg); ext != "" {
			opts.FileExtension = ext
		}
		metas, err := reg.List(ctx, arg, opts.ExtensionWithDot())
		if err != nil {
			return nil, err
		}
		for _, m := range metas {
			in.files = append(in.files, m.Location)
		}
	}

	if schemaPath != "" {
		f, err := a.fs.Open(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("open schema: %w", err)
		}
		defer func() { _ = f.Close() }()
		in.schema, err = record.ReadSchemaYAML(f)
		if err != nil {
			return nil, err
		}
		return in, nil
	}

	in.schema, err = scan.InferSchema(ctx, reg, in.files, in.opts)
	if err != nil {
		return nil, err
	}
	return in, nil
}

// operator builds a scan with one partition per file.
func (a *app) operator(in *input, projection []int) (*scan.CSVScan, error) {
	groups := make([][]string, len(in.files))
	for i, f := range in.files {
		groups[i] = []string{f}
	}
	return scan.NewCSVScan(scan.Config{
		Options:    in.opts,
		FileSchema: in.schema,
		Projection: projection,
		FileGroups: groups,
		Allocator:  a.mem,
	}, in.reg)
}

func projectionFor(schema record.Schema, names []string) ([]int, error) {
	if len(names) == 0 {
		return nil, nil
	}
	idx := make([]int, 0, len(names))
	for _, n := range names {
		i := schema.IndexOf(n)
		if i < 0 {
			return nil, fmt.Errorf("unknown column %q (have %v)", n, schema.Names())
		}
		idx = append(idx, i)
	}
	return idx, nil
}
