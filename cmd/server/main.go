package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/geoyogesh/csvscan"
	"github.com/geoyogesh/csvscan/internal"
	"github.com/geoyogesh/csvscan/internal/logging"
	"github.com/geoyogesh/csvscan/internal/source"
	"github.com/geoyogesh/csvscan/server/csvwire"
)

func main() {
	flags := pflag.NewFlagSet("csvscan-server", pflag.ExitOnError)
	cfgPath := flags.String("config", "", "path to a YAML config file")
	flags.String("addr", "", "listen address")
	flags.String("catalog", "", "file the table catalog is persisted to")
	flags.String("root", "", "directory relative locations are resolved against")
	flags.Duration("http-timeout", 0, "timeout for fetching http(s) locations")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "text or json")
	_ = flags.Parse(os.Args[1:])

	cfg, err := internal.LoadConfig(*cfgPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *internal.CsvScanConfig) error {
	reg, err := source.BuildRegistry(source.RegistryConfig{
		Schemes:      cfg.Source.Schemes,
		FS:           afero.NewOsFs(),
		Root:         cfg.Source.Root,
		HTTPTimeout:  cfg.Source.HTTPTimeout,
		HTTPMaxBytes: cfg.Source.HTTPMaxBytes,
	})
	if err != nil {
		return err
	}

	cat := csvscan.NewCatalog(reg, cfg.Server.SchemaCacheSize)
	if cfg.Server.CatalogFile != "" {
		if err := cat.Persist(afero.NewOsFs(), cfg.Server.CatalogFile); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return csvwire.Run(ctx, csvwire.ServerConfig{
		Addr:        cfg.Server.Addr,
		Catalog:     cat,
		Defaults:    cfg.Format,
		IdleTimeout: cfg.Server.IdleTimeout,
	})
}
