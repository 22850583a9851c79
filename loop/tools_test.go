package loop_test

import (
	"context"
	"time"

	"github.com/loopkit/agentcore/effect"
	"github.com/loopkit/agentcore/tools"
)

// calcArgs/calcTool is a trivial deterministic tool used across scenarios.
type calcArgs struct {
	Expression string `json:"expression"`
}

type calcTool struct{}

func (calcTool) Definition() tools.Definition {
	return tools.Definition{Name: "calc", Description: "evaluates a fixed expression"}
}

func (calcTool) Call(_ context.Context, _ calcArgs, _ tools.ToolContext) (tools.Output, error) {
	return tools.TextOutput("4"), nil
}

// sleepArgs/sleepTool sleeps for a configured duration, observing
// cancellation, to exercise parallel-ordering and cancellation scenarios.
type sleepArgs struct{}

type sleepTool struct {
	name  tools.Name
	delay time.Duration
}

func (t sleepTool) Definition() tools.Definition {
	return tools.Definition{Name: t.name, Description: "sleeps then returns its name"}
}

func (t sleepTool) Call(ctx context.Context, _ sleepArgs, _ tools.ToolContext) (tools.Output, error) {
	select {
	case <-time.After(t.delay):
		return tools.TextOutput(string(t.name)), nil
	case <-ctx.Done():
		return tools.Output{}, ctx.Err()
	}
}

// bashTool simulates a tool a permission middleware denies.
type bashArgs struct {
	Command string `json:"command"`
}

type bashTool struct{}

func (bashTool) Definition() tools.Definition {
	return tools.Definition{Name: "bash", Description: "runs a shell command"}
}

func (bashTool) Call(_ context.Context, a bashArgs, _ tools.ToolContext) (tools.Output, error) {
	return tools.TextOutput("ran: " + a.Command), nil
}

// rememberArgs/rememberTool declares a WriteMemory effect instead of writing
// to a store itself, exercising the tool-Output-Effects pathway into
// AgentResult.Effects.
type rememberArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type rememberTool struct{}

func (rememberTool) Definition() tools.Definition {
	return tools.Definition{Name: "remember", Description: "declares a memory write effect"}
}

func (rememberTool) Call(_ context.Context, a rememberArgs, _ tools.ToolContext) (tools.Output, error) {
	out := tools.TextOutput("remembered " + a.Key)
	out.Effects = []effect.Effect{
		effect.WriteMemory{Scope: effect.Scope{Namespace: "agent", Key: a.Key}, Value: a.Value},
	}
	return out, nil
}

func denyBash(ctx context.Context, call tools.Call, tc tools.ToolContext, next tools.Next) (tools.Output, error) {
	if call.Name == "bash" {
		return tools.Output{}, tools.NewError(tools.KindPermissionDenied, "bash is not allowed")
	}
	return next(ctx, call, tc)
}
