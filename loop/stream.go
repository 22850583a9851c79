package loop

import (
	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/provider"
)

// StreamEventType discriminates a StreamEvent (spec §3 Data Model). Events
// for different tool_use ids may interleave; ToolUseID is the demux key for
// the ToolUse* variants.
type StreamEventType string

const (
	StreamTextDelta        StreamEventType = "text_delta"
	StreamThinkingDelta    StreamEventType = "thinking_delta"
	StreamSignatureDelta   StreamEventType = "signature_delta"
	StreamToolUseStart     StreamEventType = "tool_use_start"
	StreamToolUseInputDiff StreamEventType = "tool_use_input_delta"
	StreamToolUseEnd       StreamEventType = "tool_use_end"
	StreamMessageComplete  StreamEventType = "message_complete"
	StreamUsage            StreamEventType = "usage"
	StreamErrorEvent       StreamEventType = "error"
)

// StreamError carries a streaming failure, distinguishing whether the
// caller may retry the stream.
type StreamError struct {
	Message     string
	IsRetryable bool
}

func (e StreamError) Error() string { return e.Message }

// StreamEvent is one incremental event surfaced while a turn's model call is
// in progress. Run calls Provider.Complete and never produces these; this
// package defines the event shape only and has no streaming run path.
type StreamEvent struct {
	Type       StreamEventType
	Text       string // StreamTextDelta, StreamThinkingDelta
	Signature  string // StreamSignatureDelta
	ToolUseID  string // StreamToolUseStart, StreamToolUseInputDiff, StreamToolUseEnd
	ToolName   string // StreamToolUseStart
	InputDelta string // StreamToolUseInputDiff
	Message    *message.Message
	Usage      *provider.TokenUsage
	Err        *StreamError
}
