package main

import (
	"context"
	"time"

	"github.com/loopkit/agentcore/effect"
	"github.com/loopkit/agentcore/tools"
)

// echoTool, currentTimeTool and rememberTool are the CLI's demonstration tools,
// registered unconditionally; an agentcli.yaml tool_allowlist narrows what
// the loop is allowed to dispatch via the allowlistMiddleware below.

type echoArgs struct {
	Text string `json:"text"`
}

type echoTool struct{}

func (echoTool) Definition() tools.Definition {
	return tools.Definition{Name: "echo", Description: "returns the given text unchanged"}
}

func (echoTool) Call(_ context.Context, a echoArgs, _ tools.ToolContext) (tools.Output, error) {
	return tools.TextOutput(a.Text), nil
}

type currentTimeArgs struct{}

type currentTimeTool struct{}

func (currentTimeTool) Definition() tools.Definition {
	return tools.Definition{Name: "current_time", Description: "returns the current UTC time in RFC3339"}
}

func (currentTimeTool) Call(_ context.Context, _ currentTimeArgs, _ tools.ToolContext) (tools.Output, error) {
	return tools.TextOutput(time.Now().UTC().Format(time.RFC3339)), nil
}

type rememberArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type rememberTool struct{}

func (rememberTool) Definition() tools.Definition {
	return tools.Definition{Name: "remember", Description: "persists a key/value note to the agent's memory store"}
}

// Call never touches the StateStore itself — it declares a WriteMemory
// effect for the orchestrator to interpret after the run completes (spec
// §4.4), keeping the tool and the store it writes to independently testable.
func (rememberTool) Call(_ context.Context, a rememberArgs, _ tools.ToolContext) (tools.Output, error) {
	out := tools.TextOutput("remembered " + a.Key)
	out.Effects = []effect.Effect{
		effect.WriteMemory{Scope: effect.Scope{Namespace: "agentcli", Key: a.Key}, Value: a.Value},
	}
	return out, nil
}

// allowlistMiddleware rejects any tool call whose name is not in allowlist
// (an empty allowlist permits everything), fabricating a permission-denied
// tool result rather than aborting the run.
func allowlistMiddleware(allowlist []string) tools.Middleware {
	return func(ctx context.Context, call tools.Call, tc tools.ToolContext, next tools.Next) (tools.Output, error) {
		if !allowed(allowlist, string(call.Name)) {
			return tools.Output{}, tools.NewError(tools.KindPermissionDenied, "tool not in allowlist: "+string(call.Name))
		}
		return next(ctx, call, tc)
	}
}
