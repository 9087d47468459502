package jsongraph

import (
	"errors"
)

// Error atom codes.
const (
	CodeNotFound          = "not_found"
	CodeNotImplemented    = "not_implemented"
	CodeBackendError      = "backend_error"
	CodeInvalidIdentifier = "invalid_identifier"
	CodeMissingValue      = "missing_value"
	CodeInternalError     = "internal_error"
)

// ErrorAtom is a data-level error placed at a graph path in lieu of a value.
type ErrorAtom struct {
	Message string `json:"message" msgpack:"message"`
	Code    string `json:"code,omitempty" msgpack:"code,omitempty"`
}

func (e *ErrorAtom) Error() string {
	return e.Message
}

func (e *ErrorAtom) ErrorCode() string {
	return e.Code
}

// Coder is implemented by errors that know which error atom code they map to.
type Coder interface {
	ErrorCode() string
}

// ErrorFrom converts err into an error atom. The code is taken from the first error in
// the chain implementing Coder, or CodeInternalError when there is none.
func ErrorFrom(err error) *ErrorAtom {
	if err == nil {
		return nil
	}

	code := CodeInternalError
	var coder Coder
	if errors.As(err, &coder) && coder.ErrorCode() != "" {
		code = coder.ErrorCode()
	}

	return &ErrorAtom{Message: err.Error(), Code: code}
}

// Ref is a reference value pointing at another location of the graph.
type Ref Path

// Entry is a value or an error destined for one location of the response graph.
type Entry struct {
	Path  Path
	Value any
	Err   *ErrorAtom
}

// NewValue returns an entry holding value at path.
func NewValue(path Path, value any) Entry {
	return Entry{Path: path, Value: value}
}

// NewError returns an entry holding the error atom for err at path.
func NewError(path Path, err error) Entry {
	return Entry{Path: path, Err: ErrorFrom(err)}
}

// IsError reports whether e carries an error atom.
func (e Entry) IsError() bool {
	return e.Err != nil
}
