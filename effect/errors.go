package effect

import "errors"

// These sentinel errors classify Orchestrator failures. Callers should use
// errors.Is rather than string matching.
var (
	// ErrAgentNotFound indicates Dispatch/Delegate named an agent that has
	// no registered handle.
	ErrAgentNotFound = errors.New("effect: agent not found")
	// ErrWorkflowNotFound indicates Signal/Query named a workflow with no
	// active registration. The Local orchestrator returns this rather than
	// silently accepting signals to unknown workflows (see DESIGN.md Open
	// Question (b)).
	ErrWorkflowNotFound = errors.New("effect: workflow not found")
	// ErrDispatchFailed wraps an underlying failure from running an agent.
	ErrDispatchFailed = errors.New("effect: dispatch failed")
	// ErrSignalFailed wraps an underlying failure from delivering a signal.
	ErrSignalFailed = errors.New("effect: signal failed")
	// ErrNoStateStore indicates a WriteMemory/DeleteMemory effect was
	// interpreted with no StateStore configured.
	ErrNoStateStore = errors.New("effect: no state store configured")
)
