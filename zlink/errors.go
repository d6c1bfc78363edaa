package zlink

import (
	"fmt"
)

// ErrorCode classifies facade failures. Negative values are failures;
// zero is success. The code is stable API: hosts branch on it across
// the boundary instead of parsing messages.
type ErrorCode int32

const (
	// CodeSuccess indicates the operation completed successfully.
	CodeSuccess ErrorCode = 0

	// CodeInvalidKey indicates a malformed key expression, rejected
	// before the substrate was contacted.
	CodeInvalidKey ErrorCode = -1

	// CodeOpenFailed indicates the session could not be established.
	CodeOpenFailed ErrorCode = -2

	// CodeConfigParse indicates a configuration blob or file could not
	// be parsed.
	CodeConfigParse ErrorCode = -3

	// CodeDeclareFailed indicates a resource could not be registered;
	// the session remains valid.
	CodeDeclareFailed ErrorCode = -4

	// CodePutFailed indicates a put could not be forwarded.
	CodePutFailed ErrorCode = -5

	// CodeDeleteFailed indicates a delete could not be forwarded.
	CodeDeleteFailed ErrorCode = -6

	// CodeGetDispatchFailed indicates a query could not be issued.
	CodeGetDispatchFailed ErrorCode = -7

	// CodeSessionClosed indicates the session is closed.
	CodeSessionClosed ErrorCode = -8

	// CodeAllocFailed indicates local resource exhaustion.
	CodeAllocFailed ErrorCode = -9

	// CodeReleased indicates a second release of an owned buffer.
	CodeReleased ErrorCode = -10

	// CodeQueryFinalized indicates a reply issued after its query
	// concluded.
	CodeQueryFinalized ErrorCode = -11

	// CodeUnknown indicates an unclassified error.
	CodeUnknown ErrorCode = -100
)

// ZError is a structured facade error carrying an ErrorCode.
type ZError struct {
	code ErrorCode
	msg  string
}

// Error implements the error interface.
func (e ZError) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.msg, e.code)
}

// Code returns the error code.
func (e ZError) Code() ErrorCode {
	return e.code
}

// Message returns the error message without the code.
func (e ZError) Message() string {
	return e.msg
}

// NewZError creates a ZError with the given code and message.
func NewZError(code ErrorCode, msg string) ZError {
	return ZError{code: code, msg: msg}
}

// Is reports whether target matches this error by comparing codes,
// enabling errors.Is support. Uses direct type assertion (not
// errors.As) to avoid recursive chain walking.
func (e ZError) Is(target error) bool {
	t, ok := target.(ZError)
	if ok {
		return e.code == t.code
	}
	return false
}

// Sentinel errors for the failure taxonomy. Match with errors.Is; the
// comparison is by code, so a wrapped ZError with the same code matches
// regardless of message.
var (
	ErrInvalidKey        = NewZError(CodeInvalidKey, "invalid key expression")
	ErrOpenFailed        = NewZError(CodeOpenFailed, "failed to open session")
	ErrConfigParse       = NewZError(CodeConfigParse, "failed to parse configuration")
	ErrDeclareFailed     = NewZError(CodeDeclareFailed, "failed to declare resource")
	ErrPutFailed         = NewZError(CodePutFailed, "put failed")
	ErrDeleteFailed      = NewZError(CodeDeleteFailed, "delete failed")
	ErrGetDispatchFailed = NewZError(CodeGetDispatchFailed, "failed to dispatch query")
	ErrSessionClosed     = NewZError(CodeSessionClosed, "session is closed")
	ErrAllocFailed       = NewZError(CodeAllocFailed, "allocation failed")
	ErrReleased          = NewZError(CodeReleased, "buffer already released")
	ErrQueryFinalized    = NewZError(CodeQueryFinalized, "query already finalized")
)
