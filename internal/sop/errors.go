package sop

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures across the pipeline.
type ErrorKind string

const (
	// KindDecode: the input video could not be opened or has no duration.
	// Fatal to the request.
	KindDecode ErrorKind = "decode"

	// KindTransient: network or service hiccup on the model call. Retried a
	// bounded number of times before being surfaced.
	KindTransient ErrorKind = "transient"

	// KindRequest: explicit API rejection (bad key, content policy, invalid
	// payload). Never retried.
	KindRequest ErrorKind = "request"

	// KindRender: a single diagram failed to render. Localized; never aborts
	// document generation.
	KindRender ErrorKind = "render"
)

// Error is the pipeline's kinded error. HTTPStatus is set for errors that
// came back from the model endpoint.
type Error struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err (or anything it wraps) is a pipeline error of
// the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// DecodeErrorf builds a fatal input-decode error.
func DecodeErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindDecode, Message: fmt.Sprintf(format, args...)}
}

// TransientErrorf builds a retryable service error.
func TransientErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...), Retryable: true}
}

// RequestErrorf builds a non-retryable API rejection.
func RequestErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindRequest, Message: fmt.Sprintf(format, args...)}
}

// RenderErrorf builds a localized per-diagram render error.
func RenderErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindRender, Message: fmt.Sprintf(format, args...)}
}
