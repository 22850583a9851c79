// Package provider defines the model-provider contract the turn loop
// depends on, plus the request/response types every vendor adapter
// translates to and from (spec §4.6). Core packages depend only on this
// package, never on a concrete adapter (provider/anthropic, provider/openai,
// provider/bedrock), so swapping vendors never touches loop/tools/compact.
package provider

import (
	"context"

	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/tools"
)

// ToolChoiceMode controls how a Request asks the model to use tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ToolChoice optionally constrains how the model uses tools for a Request.
// A nil ToolChoice on Request means the provider's own default (typically
// ToolChoiceAuto).
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string // required when Mode is ToolChoiceTool
}

// ThinkingOptions configures provider reasoning behavior.
type ThinkingOptions struct {
	Enable       bool
	BudgetTokens int
}

// TokenUsage tracks token counts for a single model call. Usage is
// monotonic across a run per spec invariant P2: the loop's accumulator
// only ever adds Usage from successive calls, never rewinds it.
type TokenUsage struct {
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Request captures the inputs for one model invocation.
type Request struct {
	Model       string
	Messages    []message.Message
	Tools       []tools.Definition
	ToolChoice  *ToolChoice
	Temperature float32
	MaxTokens   int
	Thinking    *ThinkingOptions
	System      string
}

// StopReason records why generation stopped.
type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopToolUse       StopReason = "tool_use"
	StopMaxTokens     StopReason = "max_tokens"
	StopContentFilter StopReason = "content_filter"
	StopSequence      StopReason = "stop_sequence"
	StopCompaction    StopReason = "compaction"
)

// Response is the result of a non-streaming Complete call.
type Response struct {
	Message    message.Message
	Usage      TokenUsage
	StopReason StopReason
}

// ChunkType classifies a streaming Chunk.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkToolUse  ChunkType = "tool_use"
	ChunkThinking ChunkType = "thinking"
	ChunkUsage    ChunkType = "usage"
	ChunkStop     ChunkType = "stop"
)

// Chunk is one streaming event from a model.
type Chunk struct {
	Type       ChunkType
	Block      message.Block
	UsageDelta *TokenUsage
	StopReason StopReason
}

// Streamer delivers incremental model output. Callers must drain Recv
// until it returns a non-nil error (io.EOF on normal completion), then call
// Close.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
}

// Provider is the contract every vendor adapter implements.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (Streamer, error)
}

// ProviderSummarizer adapts a full Provider to compact.Summarizer, the
// one-method subset the context engine actually depends on.
type ProviderSummarizer struct {
	Provider Provider
	Model    string
}

// Summarize asks the wrapped Provider to produce a single summary string
// for msgs, satisfying compact.Summarizer.
func (s ProviderSummarizer) Summarize(msgs []message.Message) (string, error) {
	req := &Request{
		Model:    s.Model,
		Messages: msgs,
		System:   "Summarize the preceding conversation concisely, preserving any decisions, open questions, and unresolved tool results.",
	}
	resp, err := s.Provider.Complete(context.Background(), req)
	if err != nil {
		return "", err
	}
	return resp.Message.Text(), nil
}
