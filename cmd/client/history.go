package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// History keeps the statements sent from the REPL, oldest first.
//
// The file holds each statement as it was typed, up to and including the ';'
// that ended it, so multi-line statements come back whole. Meta commands are
// not recorded.
type History struct {
	fs      afero.Fs
	path    string
	entries []string
}

func NewHistory(fs afero.Fs, path string) *History {
	return &History{fs: fs, path: path}
}

// Load reads the history file, keeping at most the last max statements
// (max <= 0 keeps all). A missing file is an empty history.
func (h *History) Load(max int) error {
	if h.path == "" {
		return nil
	}
	b, err := afero.ReadFile(h.fs, h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	h.entries = append(h.entries, splitStatements(string(b))...)
	if max > 0 && len(h.entries) > max {
		h.entries = h.entries[len(h.entries)-max:]
	}
	return nil
}

// Append records the complete statements in stmt. A statement equal to the
// previous entry is not recorded again.
func (h *History) Append(stmt string) error {
	if h.path == "" {
		return nil
	}
	last := ""
	if len(h.entries) > 0 {
		last = h.entries[len(h.entries)-1]
	}
	var add []string
	for _, s := range splitStatements(stmt) {
		if s != last {
			add = append(add, s)
			last = s
		}
	}
	if len(add) == 0 {
		return nil
	}

	if err := h.fs.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	f, err := h.fs.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for _, s := range add {
		if _, err := fmt.Fprintln(f, s); err != nil {
			return err
		}
		h.entries = append(h.entries, s)
	}
	return nil
}

// Recall returns the entries flattened to one line each, for line editors.
func (h *History) Recall() []string {
	out := make([]string, len(h.entries))
	for i, s := range h.entries {
		out[i] = compactOneLine(s)
	}
	return out
}

// Print writes the last n entries (all when n <= 0), numbered. Continuation
// lines of a multi-line statement are indented under its first line.
func (h *History) Print(w io.Writer, last int) {
	if last <= 0 || last > len(h.entries) {
		last = len(h.entries)
	}
	for i := len(h.entries) - last; i < len(h.entries); i++ {
		lines := strings.Split(h.entries[i], "\n")
		fmt.Fprintf(w, "%5d  %s\n", i+1, lines[0])
		for _, l := range lines[1:] {
			fmt.Fprintf(w, "%7s%s\n", "", l)
		}
	}
}

// splitStatements cuts s after every ';' outside single quotes. Text after the
// last terminator is an unfinished statement and is dropped.
func splitStatements(s string) []string {
	var out []string
	for {
		end := statementEnd(s)
		if end < 0 {
			return out
		}
		if stmt := strings.TrimSpace(s[:end+1]); stmt != ";" {
			out = append(out, stmt)
		}
		s = s[end+1:]
	}
}

func compactOneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".csvscan_history"
	}
	return filepath.Join(home, ".csvscan_history")
}
