package csvwire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	headerSize = 4

	// MaxFrameSize bounds one frame body, requests and results alike.
	MaxFrameSize = 8 << 20 // 8 MiB
)

var (
	ErrEmptyFrame    = errors.New("csvwire: empty frame")
	ErrFrameTooLarge = errors.New("csvwire: frame too large")
)

// FrameSizeError reports a frame body over Max bytes. It matches
// ErrFrameTooLarge with errors.Is.
type FrameSizeError struct {
	Size int
	Max  int
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("csvwire: frame too large: %d > %d bytes", e.Size, e.Max)
}

func (e *FrameSizeError) Is(target error) bool { return target == ErrFrameTooLarge }

// ReadFrame reads one length-prefixed JSON frame into v.
//
// An oversized body is discarded rather than buffered, so the stream stays
// aligned on the next frame and the caller decides whether to go on.
func ReadFrame(r io.Reader, v any) error {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	switch {
	case n == 0:
		return ErrEmptyFrame
	case n > MaxFrameSize:
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return fmt.Errorf("csvwire: discard oversized frame: %w", noEOF(err))
		}
		return &FrameSizeError{Size: int(n), Max: MaxFrameSize}
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return noEOF(err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("csvwire: bad json: %w", err)
	}
	return nil
}

// WriteFrame encodes v and sends header and body in a single Write. Nothing
// is written when v fails to encode or its body exceeds MaxFrameSize.
func WriteFrame(w io.Writer, v any) error {
	var buf bytes.Buffer
	buf.Write(make([]byte, headerSize))

	enc := json.NewEncoder(&buf)
	// cell values go out as they were read
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("csvwire: encode: %w", err)
	}
	buf.Truncate(buf.Len() - 1) // trailing newline from Encode

	b := buf.Bytes()
	size := len(b) - headerSize
	if size > MaxFrameSize {
		return &FrameSizeError{Size: size, Max: MaxFrameSize}
	}
	binary.BigEndian.PutUint32(b[:headerSize], uint32(size))

	_, err := w.Write(b)
	return err
}

// noEOF turns a clean EOF after a header into ErrUnexpectedEOF.
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
