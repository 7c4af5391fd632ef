package services

import (
	"errors"
	"net/http"
)

type ErrorKind string

const (
	InvalidRequest      ErrorKind = "InvalidRequest"
	UpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	UpstreamError       ErrorKind = "UpstreamError"
)

// Error is the only error type that leaves the proxy layer. Message is safe to
// show to the caller; Err keeps the full cause for logs.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidRequest(message string, fields map[string]string, err error) *Error {
	return &Error{Kind: InvalidRequest, Status: http.StatusUnprocessableEntity, Message: message, Fields: fields, Err: err}
}

func upstreamUnavailable(message string, err error) *Error {
	return &Error{Kind: UpstreamUnavailable, Status: http.StatusInternalServerError, Message: message, Err: err}
}

func upstreamError(status int, message string, err error) *Error {
	return &Error{Kind: UpstreamError, Status: status, Message: message, Err: err}
}

// AsError converts any error into an *Error, treating unknown errors as
// upstream failures.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return upstreamError(http.StatusInternalServerError, "AI service call failed", err)
}
