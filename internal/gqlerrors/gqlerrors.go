// Package gqlerrors builds protocol errors and maps GraphQL results to HTTP
// response metadata.
//
// Errors travel as *gqlerror.Error values. A protocol error may carry an
// "http" extension of the form {"status": 401, "headers": {"WWW-Authenticate": "..."}}
// which decides the HTTP status and headers of the response carrying it. The
// extension is removed by Finalize before a result is serialized.
package gqlerrors

import (
	"errors"
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	httpKey     = "http"
	statusKey   = "status"
	headersKey  = "headers"
	originalKey = "originalError"
	codeKey     = "code"
)

// MaskedMessage replaces the message of errors that wrap a Go error.
const MaskedMessage = "Unexpected error."

// New returns a protocol error with an HTTP status hint. A zero status leaves
// the status undecided; headers may be nil.
func New(message string, status int, headers map[string]string) *gqlerror.Error {
	return WithHTTP(&gqlerror.Error{Message: message}, status, headers)
}

// Newf is New with a formatted message and no headers.
func Newf(status int, format string, args ...any) *gqlerror.Error {
	return New(fmt.Sprintf(format, args...), status, nil)
}

// WithCode sets extensions.code on err and returns it.
func WithCode(err *gqlerror.Error, code string) *gqlerror.Error {
	if err.Extensions == nil {
		err.Extensions = map[string]any{}
	}
	err.Extensions[codeKey] = code
	return err
}

// WithHTTP attaches an http extension to err and returns it. Existing headers
// are kept unless overwritten.
func WithHTTP(err *gqlerror.Error, status int, headers map[string]string) *gqlerror.Error {
	if status == 0 && len(headers) == 0 {
		return err
	}
	if err.Extensions == nil {
		err.Extensions = map[string]any{}
	}
	ext, _ := err.Extensions[httpKey].(map[string]any)
	if ext == nil {
		ext = map[string]any{}
	}
	if status != 0 {
		ext[statusKey] = status
	}
	if len(headers) > 0 {
		hs, _ := ext[headersKey].(map[string]any)
		if hs == nil {
			hs = map[string]any{}
		}
		for k, v := range headers {
			hs[k] = v
		}
		ext[headersKey] = hs
	}
	err.Extensions[httpKey] = ext
	return err
}

// HTTPStatus returns the status hint carried by err.
func HTTPStatus(err *gqlerror.Error) (int, bool) {
	if err == nil {
		return 0, false
	}
	ext, _ := err.Extensions[httpKey].(map[string]any)
	switch v := ext[statusKey].(type) {
	case int:
		return v, v != 0
	case int64:
		return int(v), v != 0
	case float64:
		return int(v), v != 0
	}
	return 0, false
}

// httpHeaders returns the header hints carried by err in no particular order.
func httpHeaders(err *gqlerror.Error) map[string]string {
	ext, _ := err.Extensions[httpKey].(map[string]any)
	out := map[string]string{}
	switch hs := ext[headersKey].(type) {
	case map[string]any:
		for k, v := range hs {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		for k, v := range hs {
			out[k] = v
		}
	}
	return out
}

// internalError marks a failure raised by the transport or an extension
// outside of field resolution. It always maps to 500 unless a status hint
// is present on another error of the same result.
type internalError struct{ err error }

func (e *internalError) Error() string { return e.err.Error() }
func (e *internalError) Unwrap() error { return e.err }

// FromError converts err to a GraphQL error. GraphQL errors found in the chain
// are returned as they are; anything else becomes an internal error.
func FromError(err error) *gqlerror.Error {
	var gerr *gqlerror.Error
	if errors.As(err, &gerr) {
		return gerr
	}
	return &gqlerror.Error{Message: err.Error(), Err: &internalError{err: err}}
}

// IsInternal reports whether err was produced by FromError from a non-GraphQL
// error.
func IsInternal(err *gqlerror.Error) bool {
	var ie *internalError
	return err != nil && errors.As(err.Err, &ie)
}

// Original returns the Go error wrapped by a GraphQL error, or nil for
// protocol errors.
func Original(err *gqlerror.Error) error {
	var ie *internalError
	if errors.As(err.Err, &ie) {
		return ie.err
	}
	return err.Err
}
