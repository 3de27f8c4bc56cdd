package csvformat

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/geoyogesh/csvscan/internal/record"
)

var errEmptyInput = errors.New("input has no rows")

// Infer derives a schema from a sample of the input. It only fails when the
// row that names the columns cannot be read; malformed sample rows are skipped.
//
// Without a header the first record supplies the column count and is also sampled.
func Infer(data []byte, opts Options) (record.Schema, error) {
	if err := opts.Validate(); err != nil {
		return record.Schema{}, err
	}

	tok := newTokenizer(data, opts.Delimiter)
	first, err := tok.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errEmptyInput
		}
		return record.Schema{}, &HeaderReadError{Err: err}
	}

	limit := opts.inferLimit()
	sample := make([][]string, 0, min(limit, 256))

	var names []string
	if opts.HasHeader {
		names = first
	} else {
		names = make([]string, len(first))
		for i := range first {
			names[i] = fmt.Sprintf("column_%d", i)
		}
		if limit > 0 {
			sample = append(sample, first)
		}
	}

	skipped := 0
	for attempts := len(sample); attempts < limit; attempts++ {
		rec, err := tok.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			slog.Debug("csvformat: skipping malformed row during inference", "err", err)
			continue
		}
		sample = append(sample, rec)
	}

	scan := sample[:min(len(sample), maxTypeScanRecords)]
	cols := make([]record.Column, len(names))
	for i, name := range names {
		var st columnStats
		for _, rec := range scan {
			if i < len(rec) {
				st.observe(rec[i])
			}
		}
		cols[i] = record.Column{Name: name, Type: st.decide(), Nullable: true}
	}

	slog.Debug("csvformat: schema inferred",
		"columns", len(cols),
		"sampled", len(sample),
		"skipped", skipped,
	)
	return record.Schema{Cols: cols}, nil
}

// columnStats accumulates what one column's sampled values looked like.
type columnStats struct {
	total    int
	sawBool  bool
	sawInt   bool
	sawFloat bool
}

func (c *columnStats) observe(raw string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	c.total++

	if _, ok := parseBool(v); ok {
		c.sawBool = true
		return
	}
	if _, ok := parseFloat64(v); ok {
		if strings.Contains(v, ".") {
			c.sawFloat = true
		} else {
			c.sawInt = true
		}
	}
}

// decide applies the priority order: pure boolean, float, int, then text.
// Values that are neither numeric nor boolean do not vote; they read back as null.
func (c columnStats) decide() record.ColumnType {
	switch {
	case c.total == 0:
		return record.ColText
	case c.sawBool && !c.sawInt && !c.sawFloat:
		return record.ColBool
	case c.sawFloat:
		return record.ColFloat64
	case c.sawInt:
		return record.ColInt64
	default:
		return record.ColText
	}
}
