package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced across the API boundary. Every fatal pipeline or
// persistence failure maps onto one of these before it reaches a handler.
const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeFailedPrecondition = "FAILED_PRECONDITION"
	CodeInternal           = "INTERNAL"
	CodeResourceExhausted  = "RESOURCE_EXHAUSTED"
	CodeUnavailable        = "UNAVAILABLE"
	CodeDeadlineExceeded   = "DEADLINE_EXCEEDED"
	CodePermissionDenied   = "PERMISSION_DENIED"
)

type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

func Newf(code string, format string, args ...interface{}) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

func Unauthenticated(err error) *Error    { return New(CodeUnauthenticated, err) }
func InvalidArgument(err error) *Error    { return New(CodeInvalidArgument, err) }
func FailedPrecondition(err error) *Error { return New(CodeFailedPrecondition, err) }
func Internal(err error) *Error           { return New(CodeInternal, err) }

// CodeOf extracts the symbolic code from any error in the chain,
// defaulting to INTERNAL for untagged failures.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return CodeInternal
}

func HTTPStatus(code string) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case CodeResourceExhausted:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case CodePermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
