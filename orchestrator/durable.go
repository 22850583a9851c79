package orchestrator

import (
	"context"
	"time"

	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/provider"
	"github.com/loopkit/agentcore/tools"
)

// DurableContext is the contract a Turn uses when it wants its suspension
// points journaled rather than executed directly. A local implementation
// is a thin passthrough to the underlying provider/registry; a durable
// implementation wraps each call as a journaled activity (spec §4.4).
type DurableContext interface {
	ExecuteLLMCall(ctx context.Context, req *provider.Request, opts CallOptions) (*provider.Response, error)
	ExecuteTool(ctx context.Context, name tools.Name, input []byte, tc tools.ToolContext, opts CallOptions) (tools.Output, error)
	WaitForSignal(ctx context.Context, name string, timeout time.Duration) (message.Message, bool, error)
	ShouldContinueAsNew() bool
	ContinueAsNew(state any) error
	Sleep(ctx context.Context, d time.Duration) error
	Now() time.Time
}

// CallOptions carries per-call overrides (timeout, retry attempts) merged
// against engine-level defaults by the concrete DurableContext
// implementation, mirroring the teacher's ActivityOptions merge.
type CallOptions struct {
	Timeout     time.Duration
	MaxAttempts int
}

// PassthroughContext is the local, non-journaling DurableContext: every
// call executes immediately against the wrapped provider/registry, and
// ContinueAsNew/ShouldContinueAsNew are no-ops since a local run has no
// history-size limit to manage.
type PassthroughContext struct {
	Provider provider.Provider
	Registry *tools.Registry
	signals  map[string]chan message.Message
}

// NewPassthroughContext constructs a PassthroughContext over p and r.
func NewPassthroughContext(p provider.Provider, r *tools.Registry) *PassthroughContext {
	return &PassthroughContext{Provider: p, Registry: r, signals: make(map[string]chan message.Message)}
}

func (p *PassthroughContext) ExecuteLLMCall(ctx context.Context, req *provider.Request, _ CallOptions) (*provider.Response, error) {
	return p.Provider.Complete(ctx, req)
}

func (p *PassthroughContext) ExecuteTool(ctx context.Context, name tools.Name, input []byte, tc tools.ToolContext, _ CallOptions) (tools.Output, error) {
	return p.Registry.Execute(ctx, tools.Call{Name: name, Input: input}, tc)
}

// Signal delivers a message to a pending WaitForSignal call registered
// under name. It is intended for process-local test doubles and simple
// in-memory drivers; it is not used when DurableContext is backed by
// Temporal, which receives signals through the workflow's own channel.
func (p *PassthroughContext) Signal(name string, msg message.Message) {
	if ch, ok := p.signals[name]; ok {
		ch <- msg
	}
}

func (p *PassthroughContext) WaitForSignal(ctx context.Context, name string, timeout time.Duration) (message.Message, bool, error) {
	ch, ok := p.signals[name]
	if !ok {
		ch = make(chan message.Message, 1)
		p.signals[name] = ch
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case msg := <-ch:
		return msg, true, nil
	case <-timer:
		return message.Message{}, false, nil
	case <-ctx.Done():
		return message.Message{}, false, ctx.Err()
	}
}

func (p *PassthroughContext) ShouldContinueAsNew() bool { return false }
func (p *PassthroughContext) ContinueAsNew(_ any) error { return nil }

func (p *PassthroughContext) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PassthroughContext) Now() time.Time { return time.Now() }
