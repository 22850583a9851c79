package tools

import (
	"errors"
	"fmt"
)

// Kind classifies a tool failure so the turn loop can react without string
// matching. ModelRetry is distinguished from the other kinds because it is
// surfaced as an error tool result so the model can self-correct, rather
// than treated as an infrastructure failure.
type Kind string

const (
	// KindNotFound indicates the requested tool name is not registered.
	KindNotFound Kind = "not_found"
	// KindInvalidInput indicates the call payload failed to deserialize or
	// failed schema validation.
	KindInvalidInput Kind = "invalid_input"
	// KindPermissionDenied indicates a PermissionMiddleware denied or asked
	// about the call and the answer was not Allow.
	KindPermissionDenied Kind = "permission_denied"
	// KindExecutionFailed indicates the tool handler itself returned an
	// error unrelated to input shape or permission.
	KindExecutionFailed Kind = "execution_failed"
	// KindModelRetry indicates the failure is agent-correctable: the model
	// should adjust its arguments and try again.
	KindModelRetry Kind = "model_retry"
	// KindTimeout indicates the call exceeded its per-tool timeout.
	KindTimeout Kind = "timeout"
)

// Error is a structured tool failure. It preserves a causal chain so
// errors.Is/As keep working across wrapping, mirroring the error-chain
// shape used throughout the tool pipeline's ancestry.
type Error struct {
	Kind    Kind
	Message string
	Hint    string // populated for KindModelRetry: guidance for the model
	Cause   error
}

// NewError constructs a tool Error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorWithCause constructs a tool Error wrapping an underlying error.
func NewErrorWithCause(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Errorf formats a message and returns it as a KindExecutionFailed Error.
func Errorf(format string, args ...any) *Error {
	return NewError(KindExecutionFailed, fmt.Sprintf(format, args...))
}

// ModelRetry constructs a KindModelRetry Error carrying a correction hint
// for the model.
func ModelRetry(hint string) *Error {
	return &Error{Kind: KindModelRetry, Message: hint, Hint: hint}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped cause to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// AsToolError extracts the Kind and message of err if it is or wraps a
// tool Error, defaulting to KindExecutionFailed for opaque errors.
func AsToolError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: KindExecutionFailed, Message: err.Error(), Cause: err}
}
