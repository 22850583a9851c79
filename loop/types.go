// Package loop implements the Turn Loop: the ReAct-style state machine that
// drives one agent through repeated model calls, tool execution, and
// context compaction until a terminal ExitReason fires (spec §4.3). It is
// the package every other core package (message, tools, compact, hooks,
// effect, provider) is assembled into; loop itself is a leaf with respect to
// orchestrator, which only consumes loop's output types.
package loop

import (
	"github.com/loopkit/agentcore/effect"
	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/provider"
)

// State names the turn loop's current position in its state machine. It
// exists purely for introspection and telemetry; the actual transitions are
// the control flow of Loop.Run, not a dispatch table over State.
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingModel  State = "awaiting_model"
	StateDecodingResp   State = "decoding_response"
	StateExecutingTools State = "executing_tools"
	StateCompacting     State = "compacting"
	StateComplete       State = "complete"
	StateFailed         State = "failed"
)

// UsageLimits bounds a single run. A zero value for any field means that
// limit is not enforced. Counts are monotonic for the lifetime of a Run
// (spec §4.3 Usage-limit enforcement).
type UsageLimits struct {
	MaxRequests     int
	MaxToolCalls    int
	MaxInputTokens  int
	MaxOutputTokens int
}

// LoopConfig configures one Loop instance, mirroring spec.md §3's
// LoopConfig(system_prompt, max_turns?, parallel_tool_execution,
// usage_limits?).
type LoopConfig struct {
	SystemPrompt          string
	Model                 string
	MaxTurns              int // 0 means unlimited
	ParallelToolExecution bool
	MaxTokens             int
	Temperature           float32
	UsageLimits           *UsageLimits
	Retry                 RetryPolicy
}

// ExitKind classifies why a run terminated (spec §7 Loop errors).
type ExitKind string

const (
	ExitEndTurn       ExitKind = "end_turn"
	ExitStopSequence  ExitKind = "stop_sequence"
	ExitMaxTokens     ExitKind = "max_tokens"
	ExitContentFilter ExitKind = "content_filter"
	ExitMaxTurns      ExitKind = "max_turns"
	ExitLimitExceeded ExitKind = "limit_exceeded"
	ExitCancelled     ExitKind = "cancelled"
	ExitObserverHalt  ExitKind = "observer_halt"
	ExitProviderError ExitKind = "provider_error"
	ExitContextError  ExitKind = "context_error"
)

// LimitKind names which UsageLimits field was exceeded when ExitReason.Kind
// is ExitLimitExceeded.
type LimitKind string

const (
	LimitMaxRequests     LimitKind = "max_requests"
	LimitMaxToolCalls    LimitKind = "max_tool_calls"
	LimitMaxInputTokens  LimitKind = "max_input_tokens"
	LimitMaxOutputTokens LimitKind = "max_output_tokens"
)

// ExitReason records why a run terminated, together with enough detail to
// classify the termination without string matching.
type ExitReason struct {
	Kind  ExitKind
	Limit LimitKind // populated when Kind is ExitLimitExceeded
	Halt  string    // populated when Kind is ExitObserverHalt: the observer's reason
	Err   error     // populated when Kind is ExitProviderError or ExitContextError
}

func (r ExitReason) String() string {
	switch r.Kind {
	case ExitLimitExceeded:
		return string(r.Kind) + ":" + string(r.Limit)
	case ExitObserverHalt:
		return string(r.Kind) + ":" + r.Halt
	case ExitProviderError, ExitContextError:
		if r.Err != nil {
			return string(r.Kind) + ":" + r.Err.Error()
		}
		return string(r.Kind)
	default:
		return string(r.Kind)
	}
}

// AgentResult is returned on termination (spec §4.3 AgentResult), extended
// with Effects: every declarative side-effect a tool call emitted over the
// run's lifetime, collected but never interpreted by loop itself (spec
// §4.4) — the caller hands these to orchestrator.Apply.
type AgentResult struct {
	ResponseText string
	Turns        int
	Usage        provider.TokenUsage
	ExitReason   ExitReason
	FinalMessage *message.Message
	Effects      []effect.Effect
}

// Metadata is free-form per-turn bookkeeping carried in a TurnOutput,
// intentionally untyped so callers can stash orchestrator-specific detail
// without the loop package depending on it.
type Metadata map[string]any

// TurnOutput is what one Run produces for the Orchestrator layer to
// interpret: a message, the reason the turn loop stopped, free-form
// metadata, and the declarative effects the turn wants applied. loop never
// executes Effects itself (spec §4.4); it only emits them.
type TurnOutput struct {
	Message    message.Message
	ExitReason ExitReason
	Metadata   Metadata
	Effects    []effect.Effect
}

// TurnOutput projects an AgentResult into the narrower shape the
// Orchestrator layer consumes: FinalMessage (or the zero Message if the run
// never produced one), ExitReason, and the Effects accumulated over the
// run. Metadata is left empty; callers that want to carry orchestrator-
// specific bookkeeping alongside a result should populate it themselves
// after calling this.
func (r AgentResult) TurnOutput() TurnOutput {
	var msg message.Message
	if r.FinalMessage != nil {
		msg = *r.FinalMessage
	}
	return TurnOutput{
		Message:    msg,
		ExitReason: r.ExitReason,
		Effects:    r.Effects,
	}
}
