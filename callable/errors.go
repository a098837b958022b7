package callable

import (
	"errors"
	"fmt"
	"net/http"

	rpccode "google.golang.org/genproto/googleapis/rpc/code"
	"google.golang.org/grpc/codes"
)

// Error is a failure reported to the client with a canonical status. Cause
// stays server-side.
type Error struct {
	Code    codes.Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Status(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Status(), e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status is the canonical name sent on the wire, e.g. PERMISSION_DENIED.
func (e *Error) Status() string {
	return rpccode.Code(int32(e.Code)).String()
}

// HTTPStatus is the response status for e.Code.
func (e *Error) HTTPStatus() int {
	return httpStatus(e.Code)
}

func PermissionDenied(msg string) *Error {
	return &Error{Code: codes.PermissionDenied, Message: msg}
}

func InvalidArgument(msg string) *Error {
	return &Error{Code: codes.InvalidArgument, Message: msg}
}

func Unauthenticated(msg string) *Error {
	return &Error{Code: codes.Unauthenticated, Message: msg}
}

// Internal hides cause behind the generic INTERNAL message.
func Internal(cause error) *Error {
	return &Error{Code: codes.Internal, Message: "INTERNAL", Cause: cause}
}

// AsError returns err as an *Error. Anything that is not already one
// becomes INTERNAL.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return Internal(err)
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return 499
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
