package record

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// ColumnType is the primitive type tag of a column. The zero value is ColText.
type ColumnType uint8

const (
	ColText ColumnType = iota // UTF-8
	ColInt64
	ColFloat64
	ColBool
)

func (t ColumnType) String() string {
	switch t {
	case ColText:
		return "utf8"
	case ColInt64:
		return "int64"
	case ColFloat64:
		return "float64"
	case ColBool:
		return "boolean"
	default:
		return fmt.Sprintf("ColumnType(%d)", uint8(t))
	}
}

// ParseColumnType accepts the names produced by String plus a few common aliases.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "utf8", "string", "text":
		return ColText, nil
	case "int64", "int", "integer", "bigint":
		return ColInt64, nil
	case "float64", "float", "double":
		return ColFloat64, nil
	case "boolean", "bool":
		return ColBool, nil
	default:
		return 0, fmt.Errorf("record: unsupported column type %q", s)
	}
}

func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ColumnType) UnmarshalText(b []byte) error {
	ct, err := ParseColumnType(string(b))
	if err != nil {
		return err
	}
	*t = ct
	return nil
}

// ArrowType maps the tag onto its Arrow data type. Unknown tags map to utf8.
func (t ColumnType) ArrowType() arrow.DataType {
	switch t {
	case ColInt64:
		return arrow.PrimitiveTypes.Int64
	case ColFloat64:
		return arrow.PrimitiveTypes.Float64
	case ColBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

type Column struct {
	Name     string     `json:"name" yaml:"name"`
	Type     ColumnType `json:"type" yaml:"type"`
	Nullable bool       `json:"nullable" yaml:"nullable"`
}

type Schema struct {
	Cols []Column `json:"columns" yaml:"columns"`
}

func (s Schema) NumCols() int { return len(s.Cols) }

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Cols))
	for i, c := range s.Cols {
		out[i] = c.Name
	}
	return out
}

// IndexOf returns the position of the named column, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s.Cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Project returns the schema reduced to the given indices, in that order.
// A nil projection returns the full schema; an empty one returns an empty schema.
func (s Schema) Project(indices []int) (Schema, error) {
	if indices == nil {
		return s, nil
	}
	cols := make([]Column, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(s.Cols) {
			return Schema{}, fmt.Errorf("record: projection index %d out of range [0,%d)", idx, len(s.Cols))
		}
		cols = append(cols, s.Cols[idx])
	}
	return Schema{Cols: cols}, nil
}

// Equal reports whether both schemas have the same columns in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s.Cols) != len(o.Cols) {
		return false
	}
	for i := range s.Cols {
		if s.Cols[i] != o.Cols[i] {
			return false
		}
	}
	return true
}

// ToArrow converts the schema into an Arrow schema.
func (s Schema) ToArrow() *arrow.Schema {
	fields := make([]arrow.Field, len(s.Cols))
	for i, c := range s.Cols {
		fields[i] = arrow.Field{Name: c.Name, Type: c.Type.ArrowType(), Nullable: c.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

// FromArrow converts an Arrow schema. Types outside the four supported tags are read as utf8.
func FromArrow(as *arrow.Schema) Schema {
	if as == nil {
		return Schema{}
	}
	cols := make([]Column, 0, as.NumFields())
	for _, f := range as.Fields() {
		var ct ColumnType
		switch f.Type.ID() {
		case arrow.STRING, arrow.LARGE_STRING:
			ct = ColText
		case arrow.INT64:
			ct = ColInt64
		case arrow.FLOAT64:
			ct = ColFloat64
		case arrow.BOOL:
			ct = ColBool
		default:
			slog.Warn("record: unsupported arrow type, reading as utf8", "field", f.Name, "type", f.Type.String())
			ct = ColText
		}
		cols = append(cols, Column{Name: f.Name, Type: ct, Nullable: f.Nullable})
	}
	return Schema{Cols: cols}
}
