package csvformat

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/geoyogesh/csvscan/internal/record"
)

func newTestStream(t *testing.T, mem memory.Allocator, data string, cfg StreamConfig) *Stream {
	t.Helper()
	cfg.Allocator = mem
	if cfg.Options == (Options{}) {
		cfg.Options = DefaultOptions()
	}
	if cfg.Schema.NumCols() == 0 {
		s, err := Infer([]byte(data), cfg.Options)
		require.NoError(t, err)
		cfg.Schema = s
	}
	s, err := NewStream([]byte(data), cfg)
	require.NoError(t, err)
	return s
}

// drain pulls every batch; the caller releases them.
func drain(t *testing.T, s *Stream) []arrow.Record {
	t.Helper()
	var out []arrow.Record
	for {
		rec, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func releaseAll(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}

func TestStream_FullReadExample(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	s := newTestStream(t, mem, "name,age,city\nAlice,30,NYC\nBob,25,LA", StreamConfig{BatchSize: 2})
	recs := drain(t, s)
	defer releaseAll(recs)

	require.Len(t, recs, 1)
	rec := recs[0]
	require.EqualValues(t, 2, rec.NumRows())
	require.EqualValues(t, 3, rec.NumCols())
	require.Equal(t, "name", rec.ColumnName(0))

	names := rec.Column(0).(*array.String)
	ages := rec.Column(1).(*array.Int64)
	cities := rec.Column(2).(*array.String)
	require.Equal(t, "Alice", names.Value(0))
	require.Equal(t, "Bob", names.Value(1))
	require.Equal(t, int64(30), ages.Value(0))
	require.Equal(t, int64(25), ages.Value(1))
	require.Equal(t, "NYC", cities.Value(0))
	require.Equal(t, "LA", cities.Value(1))
	require.EqualValues(t, 2, s.RowsRead())
}

func TestStream_NullDegradation(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	s := newTestStream(t, mem, "a,b\n1,2.5\n2,x", StreamConfig{})
	recs := drain(t, s)
	defer releaseAll(recs)

	require.Len(t, recs, 1)
	rec := recs[0]
	require.EqualValues(t, 2, rec.NumRows())

	b := rec.Column(1).(*array.Float64)
	require.False(t, b.IsNull(0))
	require.InDelta(t, 2.5, b.Value(0), 1e-12)
	require.True(t, b.IsNull(1))
}

func TestStream_CellConversion(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema := record.Schema{Cols: []record.Column{
		{Name: "s", Type: record.ColText, Nullable: true},
		{Name: "i", Type: record.ColInt64, Nullable: true},
		{Name: "f", Type: record.ColFloat64, Nullable: true},
		{Name: "b", Type: record.ColBool, Nullable: true},
	}}
	data := "s,i,f,b\n" +
		"x, 7 ,1e3,TRUE\n" +
		",,,\n" +
		"y,1.5,abc,yes\n" +
		"z\n"

	s := newTestStream(t, mem, data, StreamConfig{Schema: schema})
	recs := drain(t, s)
	defer releaseAll(recs)
	require.Len(t, recs, 1)
	rec := recs[0]
	require.EqualValues(t, 4, rec.NumRows())

	str := rec.Column(0).(*array.String)
	require.Equal(t, "x", str.Value(0))
	require.False(t, str.IsNull(1), "empty string stays a value")
	require.Equal(t, "", str.Value(1))
	require.Equal(t, "z", str.Value(3))

	ints := rec.Column(1).(*array.Int64)
	require.Equal(t, int64(7), ints.Value(0))
	require.True(t, ints.IsNull(1))
	require.True(t, ints.IsNull(2), "1.5 is not an int64")
	require.True(t, ints.IsNull(3), "short row")

	floats := rec.Column(2).(*array.Float64)
	require.InDelta(t, 1000.0, floats.Value(0), 1e-9)
	require.True(t, floats.IsNull(1))
	require.True(t, floats.IsNull(2))
	require.True(t, floats.IsNull(3))

	bools := rec.Column(3).(*array.Boolean)
	require.True(t, bools.Value(0))
	require.True(t, bools.IsNull(1))
	require.True(t, bools.IsNull(2))
	require.True(t, bools.IsNull(3))
}

func TestStream_BatchSizeLaw(t *testing.T) {
	for _, rows := range []int{0, 1, 5, 6, 7, 20} {
		for _, size := range []int{1, 3, 6, 100} {
			t.Run(fmt.Sprintf("rows=%d/batch=%d", rows, size), func(t *testing.T) {
				mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
				defer mem.AssertSize(t, 0)

				var b strings.Builder
				b.WriteString("id\n")
				for i := 0; i < rows; i++ {
					fmt.Fprintf(&b, "%d\n", i)
				}

				schema := record.Schema{Cols: []record.Column{{Name: "id", Type: record.ColInt64, Nullable: true}}}
				s := newTestStream(t, mem, b.String(), StreamConfig{Schema: schema, BatchSize: size})
				recs := drain(t, s)
				defer releaseAll(recs)

				want := (rows + size - 1) / size
				require.Len(t, recs, want)

				total := int64(0)
				for i, r := range recs {
					if i < len(recs)-1 {
						require.EqualValues(t, size, r.NumRows())
					}
					total += r.NumRows()
				}
				require.EqualValues(t, rows, total)
				if rows > 0 {
					last := rows % size
					if last == 0 {
						last = size
					}
					require.EqualValues(t, last, recs[len(recs)-1].NumRows())
				}
			})
		}
	}
}

func TestStream_ProjectionLaw(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	data := "a,b,c\n1,x,true\n2,y,false\n3,z,true\n"

	full := newTestStream(t, mem, data, StreamConfig{BatchSize: 2})
	fullRecs := drain(t, full)
	defer releaseAll(fullRecs)

	proj := newTestStream(t, mem, data, StreamConfig{BatchSize: 2, Projection: []int{2, 0}})
	require.Equal(t, []string{"c", "a"}, fieldNames(proj.Schema()))
	projRecs := drain(t, proj)
	defer releaseAll(projRecs)

	require.Len(t, projRecs, len(fullRecs))
	for i := range projRecs {
		require.EqualValues(t, 2, projRecs[i].NumCols())
		require.Equal(t, "c", projRecs[i].ColumnName(0))
		require.Equal(t, "a", projRecs[i].ColumnName(1))
		require.True(t, array.Equal(fullRecs[i].Column(2), projRecs[i].Column(0)))
		require.True(t, array.Equal(fullRecs[i].Column(0), projRecs[i].Column(1)))
	}
}

func fieldNames(s *arrow.Schema) []string {
	out := make([]string, 0, s.NumFields())
	for _, f := range s.Fields() {
		out = append(out, f.Name)
	}
	return out
}

func TestStream_EmptyProjectionCountsRows(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	data := "a,b\n1,2\n3,4\n5,6\n7,8\n9,10\n"
	s := newTestStream(t, mem, data, StreamConfig{BatchSize: 2, Projection: []int{}})
	require.Equal(t, 0, s.Schema().NumFields())

	recs := drain(t, s)
	defer releaseAll(recs)

	total := int64(0)
	for _, r := range recs {
		require.EqualValues(t, 0, r.NumCols())
		total += r.NumRows()
	}
	require.Len(t, recs, 3)
	require.EqualValues(t, 5, total)
}

func TestStream_SchemaAvailableBeforePull(t *testing.T) {
	s := newTestStream(t, memory.NewGoAllocator(), "a,b\n1,x\n", StreamConfig{Projection: []int{1}})
	require.Equal(t, []string{"b"}, fieldNames(s.Schema()))
	require.Equal(t, arrow.STRING, s.Schema().Field(0).Type.ID())
}

func TestStream_EndOfStreamIsIdempotent(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	s := newTestStream(t, mem, "a\n1\n", StreamConfig{})
	recs := drain(t, s)
	releaseAll(recs)
	require.Len(t, recs, 1)

	for i := 0; i < 3; i++ {
		rec, err := s.Next()
		require.Nil(t, rec)
		require.ErrorIs(t, err, io.EOF)
	}
}

func TestStream_HeaderOnlyAndEmptyInput(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{{Name: "a", Type: record.ColText, Nullable: true}}}

	for _, data := range []string{"a\n", ""} {
		s, err := NewStream([]byte(data), StreamConfig{Options: DefaultOptions(), Schema: schema})
		require.NoError(t, err)
		_, err = s.Next()
		require.ErrorIs(t, err, io.EOF)
		_, err = s.Next()
		require.ErrorIs(t, err, io.EOF)
	}
}

func TestStream_NoHeaderReadsFirstRecordAsData(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	opts := DefaultOptions().WithHasHeader(false)
	s := newTestStream(t, mem, "1,a\n2,b\n", StreamConfig{Options: opts})
	recs := drain(t, s)
	defer releaseAll(recs)

	require.Len(t, recs, 1)
	require.EqualValues(t, 2, recs[0].NumRows())
	require.Equal(t, "column_0", recs[0].ColumnName(0))
	require.Equal(t, int64(1), recs[0].Column(0).(*array.Int64).Value(0))
}

func TestStream_ParseErrorIsTerminal(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema := record.Schema{Cols: []record.Column{
		{Name: "a", Type: record.ColInt64, Nullable: true},
		{Name: "b", Type: record.ColText, Nullable: true},
	}}
	data := "a,b\n1,x\n2,y\n3,\"bad\"quote\n4,z\n"
	s := newTestStream(t, mem, data, StreamConfig{Schema: schema, BatchSize: 2})

	rec, err := s.Next()
	require.NoError(t, err)
	require.EqualValues(t, 2, rec.NumRows())
	rec.Release()

	_, err = s.Next()
	require.Error(t, err)

	var pe *RecordParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, 4, pe.Line)
	require.Equal(t, 8, pe.Column)
	require.Equal(t, `3,"bad"quote`, pe.Raw)
	require.Equal(t, KindRecordParse, KindOf(err))
	require.Contains(t, err.Error(), "line 4")

	// sticky
	_, again := s.Next()
	require.Same(t, err, again)
}

func TestStream_BareQuoteInUnquotedFieldIsLiteral(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema := record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt64, Nullable: true},
		{Name: "size", Type: record.ColText, Nullable: true},
	}}
	s := newTestStream(t, mem, "id,size\n1,12\" pipe\n2,3 ft\n", StreamConfig{Schema: schema})

	rec, err := s.Next()
	require.NoError(t, err)
	defer rec.Release()
	require.EqualValues(t, 2, rec.NumRows())

	size := rec.Column(1).(*array.String)
	require.Equal(t, `12" pipe`, size.Value(0))
	require.Equal(t, "3 ft", size.Value(1))

	_, err = s.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestStream_UnterminatedQuoteIsParseError(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{{Name: "a", Type: record.ColText, Nullable: true}}}
	s, err := NewStream([]byte("a\nok\n\"open\nmore\n"), StreamConfig{Options: DefaultOptions(), Schema: schema})
	require.NoError(t, err)

	_, err = s.Next()
	var pe *RecordParseError
	require.True(t, errors.As(err, &pe), "got %v", err)
	require.Equal(t, 3, pe.StartLine)
	require.Equal(t, 1, pe.Column)
}

func TestStream_InvalidUTF8IsParseError(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{{Name: "a", Type: record.ColText, Nullable: true}}}
	s, err := NewStream([]byte("a\nok\n\xff\xfe\n"), StreamConfig{Options: DefaultOptions(), Schema: schema})
	require.NoError(t, err)

	_, err = s.Next()
	require.ErrorIs(t, err, ErrInvalidUTF8)

	var pe *RecordParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, 3, pe.Line)
}

func TestStream_MalformedHeaderFailsFirstPull(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{{Name: "a", Type: record.ColText, Nullable: true}}}
	s, err := NewStream([]byte("\"a\"b,c\n1,2\n"), StreamConfig{Options: DefaultOptions(), Schema: schema})
	require.NoError(t, err)

	_, err = s.Next()
	require.Equal(t, KindRecordParse, KindOf(err))
}

func TestNewStream_RejectsBadConfig(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{{Name: "a", Type: record.ColText, Nullable: true}}}

	_, err := NewStream(nil, StreamConfig{Options: DefaultOptions(), Schema: schema, Projection: []int{1}})
	require.ErrorIs(t, err, ErrInvalidProjection)

	_, err = NewStream(nil, StreamConfig{Options: DefaultOptions().WithBatchSize(0), Schema: schema})
	require.ErrorIs(t, err, ErrInvalidOptions)

	// an explicit batch size overrides an unusable one in the options
	_, err = NewStream(nil, StreamConfig{Options: DefaultOptions().WithBatchSize(0), Schema: schema, BatchSize: 4})
	require.NoError(t, err)
}

func TestStream_UnknownTypeReadsAsText(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema := record.Schema{Cols: []record.Column{{Name: "a", Type: record.ColumnType(42), Nullable: true}}}
	s := newTestStream(t, mem, "a\nhello\n", StreamConfig{Schema: schema})
	recs := drain(t, s)
	defer releaseAll(recs)

	require.Len(t, recs, 1)
	require.Equal(t, "hello", recs[0].Column(0).(*array.String).Value(0))
}

func TestStream_QuotedFieldsAndCRLF(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	data := "id,note\r\n1,\"hello, world\"\r\n2,\"multi\nline\"\r\n3,\"say \"\"hi\"\"\"\r\n"
	s := newTestStream(t, mem, data, StreamConfig{})
	recs := drain(t, s)
	defer releaseAll(recs)

	require.Len(t, recs, 1)
	notes := recs[0].Column(1).(*array.String)
	require.Equal(t, "hello, world", notes.Value(0))
	require.Equal(t, "multi\nline", notes.Value(1))
	require.Equal(t, `say "hi"`, notes.Value(2))
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindOther, KindOf(nil))
	require.Equal(t, KindOther, KindOf(errors.New("x")))
	require.Equal(t, KindBatchAssembly, KindOf(fmt.Errorf("wrap: %w", &BatchAssemblyError{Reason: "r"})))
	require.Equal(t, KindAcquisition, KindOf(fakeAcquisitionErr{}))
	require.Equal(t, "record_parse", KindRecordParse.String())
}

// ---- fakes ----

type fakeAcquisitionErr struct{}

func (fakeAcquisitionErr) Error() string     { return "fetch failed" }
func (fakeAcquisitionErr) Acquisition() bool { return true }
