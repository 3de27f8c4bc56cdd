package csvformat

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// maxRawLen bounds the raw row text carried by a RecordParseError.
const maxRawLen = 1024

// tokenizer splits a fully buffered input into records. It owns its cursor;
// nothing else reads from data while it is alive.
//
// A quote inside an unquoted field is a literal (12" pipe). A field that
// opens with a quote must close it, followed by a delimiter or line end.
type tokenizer struct {
	data  []byte
	delim byte
	r     *csv.Reader
}

func newTokenizer(data []byte, delim byte) *tokenizer {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = rune(delim)
	r.FieldsPerRecord = -1 // ragged rows are allowed; missing trailing fields read as absent
	r.LazyQuotes = true

	return &tokenizer{data: data, delim: delim, r: r}
}

// next returns the next record, io.EOF at end of input, or a *RecordParseError.
// The returned slice is never reused by later calls.
func (t *tokenizer) next() ([]string, error) {
	start := t.r.InputOffset()
	rec, err := t.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, &RecordParseError{
				StartLine: pe.StartLine,
				Line:      pe.Line,
				Column:    pe.Column,
				Raw:       t.rawLines(pe.StartLine, pe.Line),
				Err:       pe.Err,
			}
		}
		return nil, &RecordParseError{Err: err}
	}

	if err := t.checkQuotes(start, t.r.InputOffset()); err != nil {
		return nil, err
	}

	for i, f := range rec {
		if !utf8.ValidString(f) {
			line, col := t.r.FieldPos(i)
			return nil, &RecordParseError{
				StartLine: line,
				Line:      line,
				Column:    col,
				Raw:       t.rawLines(line, line),
				Err:       ErrInvalidUTF8,
			}
		}
	}
	return rec, nil
}

// checkQuotes validates the quoted fields of the record stored in data[start:end].
func (t *tokenizer) checkQuotes(start, end int64) error {
	raw := t.data[start:end]
	if bytes.IndexByte(raw, '"') < 0 {
		return nil
	}
	// the reader skips blank lines before a record
	for len(raw) > 0 && (raw[0] == '\n' || (raw[0] == '\r' && len(raw) > 1 && raw[1] == '\n')) {
		if raw[0] == '\r' {
			raw = raw[1:]
		}
		raw = raw[1:]
	}

	off := badQuoteOffset(raw, t.delim)
	if off < 0 {
		return nil
	}
	startLine, _ := t.r.FieldPos(0)
	line := startLine + bytes.Count(raw[:off], []byte{'\n'})
	col := off + 1
	if nl := bytes.LastIndexByte(raw[:off], '\n'); nl >= 0 {
		col = off - nl
	}
	return &RecordParseError{
		StartLine: startLine,
		Line:      line,
		Column:    col,
		Raw:       t.rawLines(startLine, line),
		Err:       csv.ErrQuote,
	}
}

// badQuoteOffset returns the offset in raw of the first malformed quoted
// field of one record, or -1 when every quoted field is well formed.
func badQuoteOffset(raw []byte, delim byte) int {
	i := 0
	for i < len(raw) {
		if raw[i] != '"' {
			// unquoted: quotes are literal, the field ends at a delimiter or line end
			for i < len(raw) && raw[i] != delim && raw[i] != '\n' {
				i++
			}
			if i == len(raw) || raw[i] == '\n' {
				return -1
			}
			i++
			continue
		}

		open := i
		i++
		for {
			j := bytes.IndexByte(raw[i:], '"')
			if j < 0 {
				return open
			}
			i += j + 1
			if i < len(raw) && raw[i] == '"' {
				i++
				continue
			}
			break
		}

		switch {
		case i == len(raw), raw[i] == '\n':
			return -1
		case raw[i] == '\r' && (i+1 == len(raw) || raw[i+1] == '\n'):
			return -1
		case raw[i] == delim:
			i++
		default:
			return i
		}
	}
	return -1
}

// rawLines returns input lines [start, end] (1-based) without the trailing line break.
func (t *tokenizer) rawLines(start, end int) string {
	if start <= 0 || end < start {
		return ""
	}

	begin := -1
	line := 1
	if start == 1 {
		begin = 0
	}
	stop := len(t.data)
	for i, b := range t.data {
		if b != '\n' {
			continue
		}
		if line == end {
			stop = i
			break
		}
		line++
		if line == start {
			begin = i + 1
		}
	}
	if begin < 0 || begin > stop {
		return ""
	}

	raw := bytes.TrimRight(t.data[begin:stop], "\r")
	if len(raw) > maxRawLen {
		raw = raw[:maxRawLen]
	}
	return string(raw)
}
