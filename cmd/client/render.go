package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/geoyogesh/csvscan/internal/sql/executor"
)

// statementComplete checks if we have a terminating ';' outside single quotes.
func statementComplete(buf string) bool {
	return statementEnd(buf) >= 0
}

// statementEnd returns the index of the first ';' outside single quotes, or -1.
// A doubled quote inside a string literal toggles twice and stays quoted.
func statementEnd(s string) int {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				return i
			}
		}
	}
	return -1
}

func isMetaCommand(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "\\") ||
		line == "quit" || line == "exit"
}

// metaStatement expands the psql-style shortcuts \dt and \d <table>.
func metaStatement(line string) (string, bool) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 1 && fields[0] == "\\dt":
		return "SHOW TABLES;", true
	case len(fields) == 2 && fields[0] == "\\d":
		return "DESCRIBE " + fields[1] + ";", true
	}
	return "", false
}

func cellString(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func printResult(w io.Writer, res *executor.Result) {
	if len(res.Columns) == 0 {
		// CREATE/DROP
		fmt.Fprintf(w, "OK (%d affected)\n", res.AffectedRows)
		return
	}

	cols := res.Columns
	rows := res.Rows

	// 1) compute widths
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = utf8.RuneCountInString(c)
	}
	for _, row := range rows {
		for i := range cols {
			var s string
			if i < len(row) {
				s = cellString(row[i])
			} else {
				s = "NULL"
			}
			if n := utf8.RuneCountInString(s); n > widths[i] {
				widths[i] = n
			}
		}
	}

	// helper to print a row
	printRow := func(values []string) {
		for i := range cols {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprint(w, padRight(values[i], widths[i]))
		}
		fmt.Fprintln(w)
	}

	// 2) header
	printRow(cols)

	// 3) separator ----+----
	for i := range cols {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)

	// 4) rows
	for _, row := range rows {
		out := make([]string, len(cols))
		for i := range cols {
			if i < len(row) {
				out[i] = cellString(row[i])
			} else {
				out[i] = "NULL"
			}
		}
		printRow(out)
	}

	fmt.Fprintf(w, "(%d rows)\n", len(rows))
}

func padRight(s string, w int) string {
	n := utf8.RuneCountInString(s)
	if n >= w {
		return s
	}
	return s + strings.Repeat(" ", w-n)
}
