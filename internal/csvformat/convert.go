package csvformat

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/geoyogesh/csvscan/internal/record"
)

// cell returns field idx of row, or false when the row is too short.
func cell(row []string, idx int) (string, bool) {
	if idx < len(row) {
		return row[idx], true
	}
	return "", false
}

// buildColumn converts column idx of rows into a typed array. Values that do
// not parse as the column type become nulls.
func buildColumn(mem memory.Allocator, typ record.ColumnType, rows [][]string, idx int) arrow.Array {
	switch typ {
	case record.ColInt64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		b.Reserve(len(rows))
		for _, row := range rows {
			v, ok := cell(row, idx)
			if !ok {
				b.AppendNull()
				continue
			}
			if n, ok := parseInt64(v); ok {
				b.Append(n)
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()

	case record.ColFloat64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		b.Reserve(len(rows))
		for _, row := range rows {
			v, ok := cell(row, idx)
			if !ok {
				b.AppendNull()
				continue
			}
			if f, ok := parseFloat64(v); ok {
				b.Append(f)
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()

	case record.ColBool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.Reserve(len(rows))
		for _, row := range rows {
			v, ok := cell(row, idx)
			if !ok {
				b.AppendNull()
				continue
			}
			if t, ok := parseBool(v); ok {
				b.Append(t)
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()

	default:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.Reserve(len(rows))
		for _, row := range rows {
			if v, ok := cell(row, idx); ok {
				b.Append(v)
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()
	}
}
