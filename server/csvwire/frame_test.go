package csvwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geoyogesh/csvscan/internal/csvformat"
	"github.com/geoyogesh/csvscan/internal/source"
	"github.com/geoyogesh/csvscan/internal/sql/executor"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := ExecuteResponse{
		ID: 7,
		Result: &executor.Result{
			Columns: []string{"a"},
			Types:   []string{"int64"},
			Rows:    [][]any{{int64(1)}, {nil}},
		},
	}
	require.NoError(t, WriteFrame(&buf, in))
	require.NoError(t, WriteFrame(&buf, ExecuteRequest{ID: 8, SQL: "SHOW TABLES;"}))

	var out ExecuteResponse
	require.NoError(t, ReadFrame(&buf, &out))
	require.EqualValues(t, 7, out.ID)
	require.Equal(t, []string{"a"}, out.Result.Columns)
	// JSON numbers decode as float64
	require.Equal(t, [][]any{{float64(1)}, {nil}}, out.Result.Rows)

	var req ExecuteRequest
	require.NoError(t, ReadFrame(&buf, &req))
	require.Equal(t, ExecuteRequest{ID: 8, SQL: "SHOW TABLES;"}, req)

	require.ErrorIs(t, ReadFrame(&buf, &req), io.EOF)
}

func TestWriteFrame_CellsAreNotHTMLEscaped(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, ExecuteRequest{ID: 1, SQL: "SELECT * FROM t; -- <a&b>"}))

	body := buf.Bytes()[headerSize:]
	require.EqualValues(t, len(body), binary.BigEndian.Uint32(buf.Bytes()[:headerSize]))
	require.Contains(t, string(body), "<a&b>")
	require.NotEqual(t, byte('\n'), body[len(body)-1])
}

func TestReadFrame_Rejects(t *testing.T) {
	var hdr [headerSize]byte
	var v ExecuteRequest

	// empty
	require.ErrorIs(t, ReadFrame(bytes.NewReader(hdr[:]), &v), ErrEmptyFrame)

	// bad json
	body := []byte("{nope")
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	require.ErrorContains(t, ReadFrame(bytes.NewReader(append(hdr[:], body...)), &v), "bad json")

	// truncated body
	binary.BigEndian.PutUint32(hdr[:], 10)
	require.ErrorIs(t, ReadFrame(bytes.NewReader(append(hdr[:], 'x')), &v), io.ErrUnexpectedEOF)

	// header only
	require.ErrorIs(t, ReadFrame(bytes.NewReader(hdr[:]), &v), io.ErrUnexpectedEOF)
}

func TestReadFrame_OversizedBodyIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
	buf.Write(hdr[:])
	buf.Write(make([]byte, MaxFrameSize+1))
	require.NoError(t, WriteFrame(&buf, ExecuteRequest{ID: 2, SQL: "SHOW TABLES;"}))

	var req ExecuteRequest
	err := ReadFrame(&buf, &req)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	var fse *FrameSizeError
	require.True(t, errors.As(err, &fse))
	require.Equal(t, MaxFrameSize+1, fse.Size)
	require.Equal(t, MaxFrameSize, fse.Max)

	// the next frame is still readable
	require.NoError(t, ReadFrame(&buf, &req))
	require.EqualValues(t, 2, req.ID)
}

func TestReadFrame_OversizedBodyTruncated(t *testing.T) {
	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
	var v ExecuteRequest
	require.ErrorIs(t, ReadFrame(bytes.NewReader(append(hdr[:], "abc"...)), &v), io.ErrUnexpectedEOF)
}

func TestWriteFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, ExecuteRequest{SQL: strings.Repeat("x", MaxFrameSize)})
	require.ErrorIs(t, err, ErrFrameTooLarge)
	var fse *FrameSizeError
	require.True(t, errors.As(err, &fse))
	require.Greater(t, fse.Size, MaxFrameSize)
	require.Zero(t, buf.Len())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"acquisition", &source.AcquisitionError{Location: "x.csv", Err: io.EOF}, KindAcquisition},
		{"header", &csvformat.HeaderReadError{Err: io.EOF}, KindHeaderRead},
		{"parse", fmt.Errorf("scan: %w", &csvformat.RecordParseError{Line: 3, Err: errors.New("bad")}), KindRecordParse},
		{"assembly", &csvformat.BatchAssemblyError{Reason: "length mismatch"}, KindBatchAssembly},
		{"result too large", fmt.Errorf("result of 9 rows: %w", &FrameSizeError{Size: 10, Max: 5}), KindResultTooLarge},
		{"other", errors.New("syntax error"), KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, KindOf(tt.err))

			resp := errorResponse(4, tt.err)
			require.EqualValues(t, 4, resp.ID)
			require.Equal(t, tt.err.Error(), resp.Error)
			require.Equal(t, tt.want, resp.ErrorKind)
		})
	}
}
