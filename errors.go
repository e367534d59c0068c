package lumen

import (
	"fmt"

	"github.com/lumenfn/lumen-go/wire"
)

// Error codes produced by the engine itself. Remote application errors carry
// whatever code the worker returned.
const (
	CodeBlockedMethod = "BLOCKED_METHOD"
	CodeDisposed      = "ENGINE_DISPOSED"
	CodeTransport     = "TRANSPORT_ERROR"
	CodeProtocol      = "PROTOCOL_ERROR"
	CodeApplication   = "APPLICATION_ERROR"
	CodeFieldNotFound = "FIELD_NOT_FOUND"
)

// Error is the typed error surfaced for every failed call. FailedAt names the
// pipeline operation that failed, when the remote side reported one.
type Error struct {
	Code     string
	Message  string
	FailedAt string
	cause    error
}

func (e *Error) Error() string {
	if e.FailedAt != "" {
		return fmt.Sprintf("lumen: %s (code=%s, failed_at=%s)", e.Message, e.Code, e.FailedAt)
	}
	return fmt.Sprintf("lumen: %s (code=%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches two engine errors by code, so errors.Is(err, ErrDisposed) works
// across distinct instances.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ErrDisposed is returned by every operation on a disposed engine, and
// delivered to any call still queued at disposal time.
var ErrDisposed = &Error{Code: CodeDisposed, Message: "engine disposed"}

func newBlockedMethodError(method string) *Error {
	return &Error{
		Code:    CodeBlockedMethod,
		Message: fmt.Sprintf("method %q is blocked", method),
	}
}

func newTransportError(err error) *Error {
	return &Error{
		Code:    CodeTransport,
		Message: fmt.Sprintf("transport: %v", err),
		cause:   err,
	}
}

func newProtocolError(msg string) *Error {
	return &Error{Code: CodeProtocol, Message: msg}
}

// newAppError maps a remote error envelope onto a typed error, preserving the
// worker's own code and failure position.
func newAppError(resp *wire.Response) *Error {
	code := resp.Code
	if code == "" {
		code = CodeApplication
	}
	return &Error{
		Code:     code,
		Message:  resp.Error,
		FailedAt: resp.FailedAt,
	}
}

func newFieldNotFoundError(field, detail string) *Error {
	return &Error{
		Code:    CodeFieldNotFound,
		Message: fmt.Sprintf("field %q %s", field, detail),
	}
}
