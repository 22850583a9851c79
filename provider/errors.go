package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure into a small set of categories
// suitable for retry and UX decisions.
type ErrorKind string

const (
	ErrorKindAuth           ErrorKind = "auth"
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
	ErrorKindRateLimited    ErrorKind = "rate_limited"
	ErrorKindUnavailable    ErrorKind = "unavailable"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// Error describes a failure returned by a model provider. It crosses
// package boundaries so the turn loop and callers can make stable,
// structured retry/backoff decisions without depending on any vendor SDK's
// error types.
type Error struct {
	Provider   string
	Operation  string
	HTTPStatus int
	Kind       ErrorKind
	Code       string
	Message    string
	RequestID  string
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	op := e.Operation
	if op == "" {
		op = "request"
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	return fmt.Sprintf("%s %s (%s): %s", e.Provider, e.Kind, op, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// AsError returns the first *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
