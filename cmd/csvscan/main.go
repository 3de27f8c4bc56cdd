// Command csvscan infers schemas of CSV files and converts them to Arrow
// without a server.
//
//	csvscan infer  [flags] FILE...
//	csvscan cat    [flags] FILE...
//	csvscan count  [flags] FILE...
//	csvscan export [flags] -o OUT FILE...
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

const usage = `usage: csvscan <command> [flags] FILE...

commands:
  infer    print the inferred schema as YAML
  cat      print rows as CSV
  count    count rows
  export   write an Arrow IPC stream or a Parquet file

run "csvscan <command> --help" for the flags of a command`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		fs:     afero.NewOsFs(),
		stdout: os.Stdout,
		stderr: os.Stderr,
		mem:    memory.DefaultAllocator,
	}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "csvscan: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
	mem    memory.Allocator
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.stderr, usage)
		return fmt.Errorf("missing command")
	}

	var err error
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "infer":
		err = a.infer(ctx, rest)
	case "cat":
		err = a.cat(ctx, rest)
	case "count":
		err = a.count(ctx, rest)
	case "export":
		err = a.export(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprintln(a.stdout, usage)
	default:
		fmt.Fprintln(a.stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}
