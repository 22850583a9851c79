package tools

import (
	"context"
	"encoding/json"

	"github.com/loopkit/agentcore/effect"
)

type (
	// Annotations describes side-effect hints a model or policy engine can
	// use to decide whether a tool is safe to call without confirmation.
	Annotations struct {
		ReadOnly    bool
		Destructive bool
		Idempotent  bool
	}

	// Definition describes a tool as seen by the model and by the registry.
	// Names are unique within a Registry.
	Definition struct {
		Name         Name
		Description  string
		InputSchema  json.RawMessage
		OutputSchema json.RawMessage
		Annotations  Annotations
	}

	// ToolContext is the per-invocation capability bundle passed to every
	// tool call. It is cheaply cloneable/shareable so the same ToolContext
	// can back concurrently executing siblings in a parallel batch.
	ToolContext struct {
		Cwd              string
		SessionID        string
		Environment      map[string]string
		CancellationCtx  context.Context
		ProgressReporter ProgressReporter
	}

	// ProgressReporter lets a long-running tool call report incremental
	// progress. Implementations must be non-blocking.
	ProgressReporter interface {
		Report(ctx context.Context, message string, fraction float64)
	}

	// Call is a single tool invocation as requested by the model.
	Call struct {
		ID    string
		Name  Name
		Input json.RawMessage
	}

	// Output is what a tool execution produces: the (possibly empty) content
	// returned to the model plus an optional structured payload and an
	// error flag. IsError distinguishes an error tool result (the model may
	// retry) from a pipeline-level failure (returned as a Go error instead).
	Output struct {
		Content           []OutputItem
		StructuredContent json.RawMessage
		IsError           bool
		// Effects are declarative side-effects this call wants applied —
		// e.g. a "remember" tool returning an effect.WriteMemory instead of
		// writing to the StateStore itself. The tool never executes these;
		// loop.Run only collects and forwards them into AgentResult.Effects
		// for the Orchestrator layer to interpret (spec §4.4).
		Effects []effect.Effect
	}

	// OutputItem is a single unit of tool output content.
	OutputItem struct {
		Kind OutputItemKind
		Text string
		JSON json.RawMessage
	}

	// OutputItemKind discriminates OutputItem payloads.
	OutputItemKind string
)

const (
	// OutputItemText marks an OutputItem carrying plain text.
	OutputItemText OutputItemKind = "text"
	// OutputItemJSON marks an OutputItem carrying a JSON-compatible value.
	OutputItemJSON OutputItemKind = "json"
)

// TextOutput builds a successful Output containing a single text item.
func TextOutput(text string) Output {
	return Output{Content: []OutputItem{{Kind: OutputItemText, Text: text}}}
}

// ErrorOutput builds an error Output containing a single text item, used by
// middleware (e.g. PermissionMiddleware) that must fabricate a tool result
// without invoking the underlying tool.
func ErrorOutput(text string) Output {
	return Output{Content: []OutputItem{{Kind: OutputItemText, Text: text}}, IsError: true}
}
