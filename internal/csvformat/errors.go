package csvformat

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOptions    = errors.New("csvformat: invalid options")
	ErrInvalidProjection = errors.New("csvformat: invalid projection")
	ErrInvalidUTF8       = errors.New("csvformat: invalid UTF-8 in record")
)

// HeaderReadError means Infer could not obtain the row that names the columns.
type HeaderReadError struct {
	Err error
}

func (e *HeaderReadError) Error() string {
	return fmt.Sprintf("csvformat: cannot read header row: %v", e.Err)
}

func (e *HeaderReadError) Unwrap() error { return e.Err }

// RecordParseError means a row could not be tokenized. Lines are 1-based.
type RecordParseError struct {
	StartLine int
	Line      int
	Column    int
	// Raw holds the offending row as it appears in the input, when it could be recovered.
	Raw string
	Err error
}

func (e *RecordParseError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("csvformat: parse error on line %d, column %d: %v (row: %q)", e.Line, e.Column, e.Err, e.Raw)
	}
	return fmt.Sprintf("csvformat: parse error on line %d, column %d: %v", e.Line, e.Column, e.Err)
}

func (e *RecordParseError) Unwrap() error { return e.Err }

// BatchAssemblyError is an internal invariant violation while building a batch.
type BatchAssemblyError struct {
	Column string
	Reason string
}

func (e *BatchAssemblyError) Error() string {
	if e.Column == "" {
		return "csvformat: batch assembly: " + e.Reason
	}
	return fmt.Sprintf("csvformat: batch assembly: column %q: %s", e.Column, e.Reason)
}

// Kind classifies an error returned anywhere along the read path.
type Kind uint8

const (
	KindOther Kind = iota
	KindAcquisition
	KindHeaderRead
	KindRecordParse
	KindBatchAssembly
)

func (k Kind) String() string {
	switch k {
	case KindAcquisition:
		return "acquisition"
	case KindHeaderRead:
		return "header_read"
	case KindRecordParse:
		return "record_parse"
	case KindBatchAssembly:
		return "batch_assembly"
	default:
		return "other"
	}
}

// acquisitionError is implemented by byte-source errors.
type acquisitionError interface {
	Acquisition() bool
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	var (
		hre *HeaderReadError
		rpe *RecordParseError
		bae *BatchAssemblyError
		acq acquisitionError
	)
	switch {
	case errors.As(err, &hre):
		return KindHeaderRead
	case errors.As(err, &rpe):
		return KindRecordParse
	case errors.As(err, &bae):
		return KindBatchAssembly
	case errors.As(err, &acq) && acq.Acquisition():
		return KindAcquisition
	}
	return KindOther
}
