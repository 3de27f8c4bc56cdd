package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/geoyogesh/csvscan/csvclient"
	"github.com/geoyogesh/csvscan/server/csvwire"
)

const prompt = "csvscan> "

func printError(err error) {
	var se *csvclient.ServerError
	if errors.As(err, &se) && se.Kind != "" && se.Kind != csvwire.KindOther {
		fmt.Printf("error (%s): %s\n", se.Kind, se.Message)
		return
	}
	fmt.Printf("error: %v\n", err)
}

func main() {
	var (
		addr       = pflag.String("addr", "127.0.0.1:5454", "server address")
		timeout    = pflag.Duration("timeout", 3*time.Second, "dial timeout")
		rwTimeout  = pflag.Duration("rw-timeout", 0, "per-statement read/write timeout (0 = none)")
		histPath   = pflag.String("history", defaultHistoryPath(), "history file path")
		histMax    = pflag.Int("history-max", 2000, "max history statements loaded into memory")
		oneShotSQL = pflag.StringP("command", "c", "", "execute one statement and exit (must end with ';')")
	)
	pflag.Parse()

	cli, err := csvclient.Dial(*addr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = cli.Close() }()
	cli.SetRWTimeout(*rwTimeout)

	// one-shot mode
	if strings.TrimSpace(*oneShotSQL) != "" {
		res, err := cli.Exec(*oneShotSQL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printResult(os.Stdout, res)
		return
	}

	h := NewHistory(afero.NewOsFs(), *histPath)
	_ = h.Load(*histMax)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	// preload history into readline so up-arrow works immediately
	for _, line := range h.Recall() {
		_ = rl.SaveHistory(line)
	}

	var buf strings.Builder

	fmt.Printf("connected to %s\n", *addr)
	fmt.Println("type \\help for help")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			// Ctrl+C clears current buffer
			if buf.Len() > 0 {
				buf.Reset()
				rl.SetPrompt(prompt)
				continue
			}
			fmt.Println("^C")
			continue
		}
		if err != nil {
			// EOF
			fmt.Println()
			return
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" && buf.Len() == 0 {
			continue
		}

		// meta commands
		if buf.Len() == 0 && isMetaCommand(trimmed) {
			line = trimmed
			if stmt, ok := metaStatement(line); ok {
				res, err := cli.Exec(stmt)
				if err != nil {
					printError(err)
					continue
				}
				printResult(os.Stdout, res)
				continue
			}
			switch line {
			case "\\q", "quit", "exit":
				return
			case "\\help":
				fmt.Println(`meta commands:
  \q | quit | exit       quit
  \dt                    list tables
  \d <table>             describe a table
  \history               print history
  \help                  show help

statements:
  CREATE EXTERNAL TABLE t [(col TYPE, ...)] STORED AS CSV
      [WITH HEADER ROW | WITHOUT HEADER ROW] [DELIMITER 'c']
      [SCHEMA INFER MAX n] [BATCH SIZE n] LOCATION 'path-or-url';
  SELECT * | col, ... | COUNT(*) FROM t [LIMIT n];
  DESCRIBE t;  SHOW TABLES;  DROP TABLE t;

  end statement with ';'
  multiline is supported (CLI will wait until ';')`)
			case "\\history":
				h.Print(os.Stdout, 50)
			default:
				fmt.Printf("unknown command: %s\n", line)
			}
			continue
		}

		// accumulate statement, keeping its line breaks
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(strings.TrimRight(line, " \t\r"))

		if !statementComplete(buf.String()) {
			rl.SetPrompt("...> ")
			continue
		}

		stmt := strings.TrimSpace(buf.String())
		buf.Reset()
		rl.SetPrompt(prompt)

		// persist history by executed statement, as typed
		_ = h.Append(stmt)
		_ = rl.SaveHistory(compactOneLine(stmt))

		res, err := cli.Exec(stmt)
		if err != nil {
			printError(err)
			continue
		}
		printResult(os.Stdout, res)
	}
}
