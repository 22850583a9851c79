package loop

import "fmt"

// Error wraps a terminal loop failure in a Go error, mirroring ExitReason so
// callers that prefer `if err != nil` over inspecting AgentResult.ExitReason
// still get a structured, errors.Is/As-friendly value. Run returns a
// non-nil Error only for failures that are not representable as a
// successful AgentResult (e.g. provider/context errors); MaxTurns,
// LimitExceeded, Cancelled, and ObserverHalt are reported via
// AgentResult.ExitReason with a nil error, since they are expected,
// classified terminations rather than failures.
type Error struct {
	Reason ExitReason
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("loop: %s: %v", e.Reason.Kind, e.Cause)
	}
	return fmt.Sprintf("loop: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind ExitKind, cause error) *Error {
	return &Error{Reason: ExitReason{Kind: kind, Err: cause}, Cause: cause}
}
