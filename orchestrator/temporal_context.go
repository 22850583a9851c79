package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/provider"
	"github.com/loopkit/agentcore/tools"
)

// TemporalDurableContext adapts a Temporal workflow.Context into
// DurableContext: every LLM call and tool call becomes a journaled
// activity, sleeps become replay-safe timers, and WaitForSignal reads a
// named signal channel. It is the durable counterpart to
// PassthroughContext — same interface, same call sites in loop.Loop, no
// special-casing required by the turn loop itself.
type TemporalDurableContext struct {
	ctx              workflow.Context
	defaultTimeout   time.Duration
	maxHistoryEvents int
}

// NewTemporalDurableContext wraps a workflow.Context. defaultTimeout bounds
// every activity's StartToCloseTimeout when a CallOptions.Timeout is not
// given; maxHistoryEvents, when non-zero, is consulted by
// ShouldContinueAsNew.
func NewTemporalDurableContext(ctx workflow.Context, defaultTimeout time.Duration, maxHistoryEvents int) *TemporalDurableContext {
	if defaultTimeout <= 0 {
		defaultTimeout = time.Minute
	}
	return &TemporalDurableContext{ctx: ctx, defaultTimeout: defaultTimeout, maxHistoryEvents: maxHistoryEvents}
}

func (t *TemporalDurableContext) activityOptions(opts CallOptions) workflow.ActivityOptions {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = t.defaultTimeout
	}
	var retry *temporal.RetryPolicy
	if opts.MaxAttempts > 0 {
		retry = &temporal.RetryPolicy{MaximumAttempts: int32(opts.MaxAttempts)}
	}
	return workflow.ActivityOptions{
		ScheduleToStartTimeout: timeout,
		StartToCloseTimeout:    timeout,
		RetryPolicy:            retry,
	}
}

// llmCallActivity and toolCallActivity are the activity function names
// registered on the worker; the actual implementations live alongside the
// worker setup (outside this package) since they must close over a live
// provider.Provider / tools.Registry, which are not part of replay-safe
// workflow state.
const (
	llmCallActivity  = "agentcore.ExecuteLLMCall"
	toolCallActivity = "agentcore.ExecuteTool"
)

// llmCallActivityInput/toolCallActivityInput are the JSON-serializable
// payloads passed to the corresponding activity, since Temporal activity
// arguments must be serializable.
type llmCallActivityInput struct {
	Request *provider.Request
}

type toolCallActivityInput struct {
	Name  tools.Name
	Input json.RawMessage
	TC    tools.ToolContext
}

func (t *TemporalDurableContext) ExecuteLLMCall(ctx context.Context, req *provider.Request, opts CallOptions) (*provider.Response, error) {
	actx := workflow.WithActivityOptions(t.ctx, t.activityOptions(opts))
	future := workflow.ExecuteActivity(actx, llmCallActivity, llmCallActivityInput{Request: req})
	var resp *provider.Response
	if err := future.Get(actx, &resp); err != nil {
		return nil, normalizeError(err)
	}
	return resp, nil
}

func (t *TemporalDurableContext) ExecuteTool(ctx context.Context, name tools.Name, input []byte, tc tools.ToolContext, opts CallOptions) (tools.Output, error) {
	actx := workflow.WithActivityOptions(t.ctx, t.activityOptions(opts))
	future := workflow.ExecuteActivity(actx, toolCallActivity, toolCallActivityInput{Name: name, Input: input, TC: tc})
	var out tools.Output
	if err := future.Get(actx, &out); err != nil {
		return tools.Output{}, normalizeError(err)
	}
	return out, nil
}

func (t *TemporalDurableContext) WaitForSignal(ctx context.Context, name string, timeout time.Duration) (message.Message, bool, error) {
	ch := workflow.GetSignalChannel(t.ctx, name)
	if timeout <= 0 {
		var msg message.Message
		ch.Receive(t.ctx, &msg)
		return msg, true, nil
	}

	var (
		msg      message.Message
		got      bool
		timedOut bool
	)
	timerCtx, cancel := workflow.WithCancel(t.ctx)
	defer cancel()
	timer := workflow.NewTimer(timerCtx, timeout)
	sel := workflow.NewSelector(t.ctx)
	sel.AddReceive(ch, func(c workflow.ReceiveChannel, _ bool) {
		c.Receive(t.ctx, &msg)
		got = true
	})
	sel.AddFuture(timer, func(workflow.Future) {
		timedOut = true
	})
	sel.Select(t.ctx)
	if got {
		return msg, true, nil
	}
	if timedOut {
		return message.Message{}, false, nil
	}
	return message.Message{}, false, nil
}

// ShouldContinueAsNew reports whether the workflow's event history is
// approaching maxHistoryEvents, a standard Temporal signal that the
// workflow should persist its state and restart fresh to bound history
// size. Returns false when maxHistoryEvents is unset.
func (t *TemporalDurableContext) ShouldContinueAsNew() bool {
	if t.maxHistoryEvents <= 0 {
		return false
	}
	info := workflow.GetInfo(t.ctx)
	return int(info.GetCurrentHistoryLength()) >= t.maxHistoryEvents
}

// ContinueAsNew restarts the current workflow with state as its new input.
// Like workflow.NewContinueAsNewError, this must be returned as the
// workflow function's error so Temporal can restart deterministically; it
// is surfaced here as a returned error for that reason.
func (t *TemporalDurableContext) ContinueAsNew(state any) error {
	return workflow.NewContinueAsNewError(t.ctx, workflow.GetInfo(t.ctx).WorkflowType.Name, state)
}

func (t *TemporalDurableContext) Sleep(ctx context.Context, d time.Duration) error {
	return normalizeError(workflow.Sleep(t.ctx, d))
}

func (t *TemporalDurableContext) Now() time.Time {
	return workflow.Now(t.ctx)
}

// normalizeError translates Temporal cancellation errors to context.Canceled
// so callers can classify cancellation uniformly across orchestrator
// backends without depending on Temporal SDK error types.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if temporal.IsCanceledError(err) {
		return context.Canceled
	}
	return err
}
