package csvwire

import (
	"errors"

	"github.com/geoyogesh/csvscan/internal/csvformat"
	"github.com/geoyogesh/csvscan/internal/sql/executor"
)

// ErrorKind classifies a failed statement for the client.
type ErrorKind string

const (
	KindAcquisition   ErrorKind = "acquisition"
	KindHeaderRead    ErrorKind = "header_read"
	KindRecordParse   ErrorKind = "record_parse"
	KindBatchAssembly ErrorKind = "batch_assembly"
	KindOther         ErrorKind = "other"

	// KindResultTooLarge means the statement ran but its result does not fit
	// in one frame. Adding a LIMIT or projecting fewer columns helps.
	KindResultTooLarge ErrorKind = "result_too_large"
)

// ExecuteRequest is a single statement request.
type ExecuteRequest struct {
	ID  uint64 `json:"id"`
	SQL string `json:"sql"`
}

// ExecuteResponse is the response for a request ID.
type ExecuteResponse struct {
	ID        uint64           `json:"id"`
	Result    *executor.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind ErrorKind        `json:"error_kind,omitempty"`
}

// KindOf maps a statement error to the kind reported on the wire.
func KindOf(err error) ErrorKind {
	if errors.Is(err, ErrFrameTooLarge) {
		return KindResultTooLarge
	}
	switch csvformat.KindOf(err) {
	case csvformat.KindAcquisition:
		return KindAcquisition
	case csvformat.KindHeaderRead:
		return KindHeaderRead
	case csvformat.KindRecordParse:
		return KindRecordParse
	case csvformat.KindBatchAssembly:
		return KindBatchAssembly
	default:
		return KindOther
	}
}

func errorResponse(id uint64, err error) ExecuteResponse {
	return ExecuteResponse{ID: id, Error: err.Error(), ErrorKind: KindOf(err)}
}
