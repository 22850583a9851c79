package loop_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopkit/agentcore/compact"
	"github.com/loopkit/agentcore/effect"
	"github.com/loopkit/agentcore/hooks"
	"github.com/loopkit/agentcore/loop"
	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/provider"
	"github.com/loopkit/agentcore/tools"
)

func alwaysEndTurn(text string) *provider.Response {
	return &provider.Response{Message: message.NewText(message.RoleAssistant, text), StopReason: provider.StopEndTurn}
}

func TestMaxTurnsTerminatesBeforeSecondModelCall(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{Message: assistantToolUse("t1", "calc", json.RawMessage(`{"expression":"1+1"}`)), StopReason: provider.StopToolUse},
		alwaysEndTurn("unreachable"),
	}}
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[calcArgs, tools.Output](registry, calcTool{}))
	l := loop.New(loop.LoopConfig{Model: "test-model", MaxTurns: 1}, prov, registry)

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.NoError(t, err)
	assert.Equal(t, loop.ExitMaxTurns, result.ExitReason.Kind)
	assert.Equal(t, 2, result.Turns)
	assert.Equal(t, 1, prov.callCount())
}

func TestMaxRequestsLimitExceeded(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{Message: assistantToolUse("t1", "calc", json.RawMessage(`{}`)), StopReason: provider.StopToolUse},
		alwaysEndTurn("unreachable"),
	}}
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[calcArgs, tools.Output](registry, calcTool{}))
	l := loop.New(loop.LoopConfig{Model: "test-model", UsageLimits: &loop.UsageLimits{MaxRequests: 1}}, prov, registry)

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.NoError(t, err)
	assert.Equal(t, loop.ExitLimitExceeded, result.ExitReason.Kind)
	assert.Equal(t, loop.LimitMaxRequests, result.ExitReason.Limit)
	assert.Equal(t, 1, prov.callCount())
}

func TestMaxToolCallsLimitExceededDiscardsPartialRound(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{
			Message: assistantMultiToolUse(
				message.ToolUseBlock{ID: "a", Name: "a", Input: json.RawMessage(`{}`)},
				message.ToolUseBlock{ID: "b", Name: "b", Input: json.RawMessage(`{}`)},
			),
			StopReason: provider.StopToolUse,
		},
		alwaysEndTurn("unreachable"),
	}}
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[sleepArgs, tools.Output](registry, sleepTool{name: "a", delay: time.Millisecond}))
	require.NoError(t, tools.Register[sleepArgs, tools.Output](registry, sleepTool{name: "b", delay: time.Millisecond}))
	l := loop.New(loop.LoopConfig{Model: "test-model", UsageLimits: &loop.UsageLimits{MaxToolCalls: 1}}, prov, registry)

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "go")})
	require.NoError(t, err)
	assert.Equal(t, loop.ExitLimitExceeded, result.ExitReason.Kind)
	assert.Equal(t, loop.LimitMaxToolCalls, result.ExitReason.Limit)

	transcript := l.Transcript()
	// The turn terminated before the synthesized user message was appended,
	// so the transcript ends with the unanswered Assistant tool_use message.
	assert.Equal(t, message.RoleAssistant, transcript[len(transcript)-1].Role)
}

func TestObserverHaltStopsLoop(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{alwaysEndTurn("unreachable")}}
	registry := tools.NewRegistry()
	var chain hooks.Chain
	chain.Add(hooks.ObserverFunc(func(_ context.Context, hc hooks.Context) (hooks.Action, error) {
		if hc.Point == hooks.PointPreLlmCall {
			return hooks.HaltAction{Reason: "budget policy"}, nil
		}
		return hooks.Continue, nil
	}))
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry, loop.WithHooks(&chain))

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.NoError(t, err)
	assert.Equal(t, loop.ExitObserverHalt, result.ExitReason.Kind)
	assert.Equal(t, "budget policy", result.ExitReason.Halt)
	assert.Equal(t, 0, prov.callCount())
}

func TestSkipToolActionFabricatesErrorResultWithoutDispatching(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{Message: assistantToolUse("t1", "calc", json.RawMessage(`{"expression":"1+1"}`)), StopReason: provider.StopToolUse},
		alwaysEndTurn("done"),
	}}
	registry := tools.NewRegistry()
	var dispatched bool
	require.NoError(t, tools.Register[calcArgs, tools.Output](registry, calcTool{}))
	registry.AddMiddleware(func(ctx context.Context, call tools.Call, tc tools.ToolContext, next tools.Next) (tools.Output, error) {
		dispatched = true
		return next(ctx, call, tc)
	})
	var chain hooks.Chain
	chain.Add(hooks.ObserverFunc(func(_ context.Context, hc hooks.Context) (hooks.Action, error) {
		if hc.Point == hooks.PointPreToolUse {
			return hooks.SkipToolAction{Reason: "not allowed in this session"}, nil
		}
		return hooks.Continue, nil
	}))
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry, loop.WithHooks(&chain))

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.NoError(t, err)
	assert.Equal(t, "done", result.ResponseText)
	assert.False(t, dispatched, "skipped tool must never reach the registry")

	results := l.Transcript()[2].ToolResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content[0].Text, "not allowed in this session")
}

func TestModifyToolInputActionReplacesInputBeforeExecution(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{Message: assistantToolUse("t1", "calc", json.RawMessage(`{"expression":"bad"}`)), StopReason: provider.StopToolUse},
		alwaysEndTurn("done"),
	}}
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[calcArgs, tools.Output](registry, calcTool{}))
	var seenInput string
	registry.AddMiddleware(func(ctx context.Context, call tools.Call, tc tools.ToolContext, next tools.Next) (tools.Output, error) {
		seenInput = string(call.Input)
		return next(ctx, call, tc)
	})
	var chain hooks.Chain
	chain.Add(hooks.ObserverFunc(func(_ context.Context, hc hooks.Context) (hooks.Action, error) {
		if hc.Point == hooks.PointPreToolUse {
			return hooks.ModifyToolInputAction{NewInput: []byte(`{"expression":"2+2"}`)}, nil
		}
		return hooks.Continue, nil
	}))
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry, loop.WithHooks(&chain))

	_, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"expression":"2+2"}`, seenInput)
}

func TestContextStrategyCompactsBeforeModelCall(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		alwaysEndTurn("done"),
	}}
	registry := tools.NewRegistry()
	strategy := compact.SlidingWindow{KeepLast: 1, MaxTokens: 0} // MaxTokens 0 => always compact
	l := loop.New(loop.LoopConfig{Model: "test-model", MaxTurns: 1}, prov, registry, loop.WithStrategy(strategy))

	initial := []message.Message{
		message.NewText(message.RoleSystem, "system prompt"),
		message.NewText(message.RoleUser, "first"),
		message.NewText(message.RoleUser, "second"),
	}
	result, err := l.Run(context.Background(), initial)
	require.NoError(t, err)
	assert.Equal(t, loop.ExitEndTurn, result.ExitReason.Kind)
	assert.Equal(t, 1, result.Turns)
}

// Open Question (a), decided in DESIGN.md: a Compaction stop-reason still
// consumes a turn, so it counts toward max_turns rather than being free.
func TestCompactionStopReasonCountsTowardMaxTurns(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{
			Message:    message.Message{Role: message.RoleAssistant, Blocks: []message.Block{message.CompactionBlock{Content: "summary"}}},
			StopReason: provider.StopCompaction,
		},
		alwaysEndTurn("unreachable"),
	}}
	registry := tools.NewRegistry()
	l := loop.New(loop.LoopConfig{Model: "test-model", MaxTurns: 1}, prov, registry)

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.NoError(t, err)
	assert.Equal(t, loop.ExitMaxTurns, result.ExitReason.Kind)
	assert.Equal(t, 2, result.Turns)
	assert.Equal(t, 1, prov.callCount())
}

// P2: cumulative token usage only ever increases across turns.
func TestMonotonicTokenUsageAccumulatesAcrossTurns(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{
			Message:    assistantToolUse("t1", "calc", json.RawMessage(`{"expression":"1+1"}`)),
			StopReason: provider.StopToolUse,
			Usage:      provider.TokenUsage{InputTokens: 10, OutputTokens: 5},
		},
		{
			Message:    message.NewText(message.RoleAssistant, "done"),
			StopReason: provider.StopEndTurn,
			Usage:      provider.TokenUsage{InputTokens: 20, OutputTokens: 8},
		},
	}}
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[calcArgs, tools.Output](registry, calcTool{}))
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry)

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.NoError(t, err)
	assert.Equal(t, 30, result.Usage.InputTokens)
	assert.Equal(t, 13, result.Usage.OutputTokens)
}

// P1: every ToolUse is matched by exactly one ToolResult, in order, in the
// very next transcript message.
func TestPairingInvariantHoldsAfterToolExecution(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{
			Message: assistantMultiToolUse(
				message.ToolUseBlock{ID: "x", Name: "calc", Input: json.RawMessage(`{"expression":"1"}`)},
				message.ToolUseBlock{ID: "y", Name: "calc", Input: json.RawMessage(`{"expression":"2"}`)},
			),
			StopReason: provider.StopToolUse,
		},
		alwaysEndTurn("done"),
	}}
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[calcArgs, tools.Output](registry, calcTool{}))
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry)

	_, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.NoError(t, err)

	transcript := l.Transcript()
	require.NoError(t, message.ValidatePairing(transcript[1], transcript[2]))
}

func TestToolEffectsAreCollectedIntoAgentResult(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{Message: assistantToolUse("t1", "remember", json.RawMessage(`{"key":"k","value":"v"}`)), StopReason: provider.StopToolUse},
		alwaysEndTurn("done"),
	}}
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[rememberArgs, tools.Output](registry, rememberTool{}))
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry)

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.NoError(t, err)

	require.Len(t, result.Effects, 1)
	write, ok := result.Effects[0].(effect.WriteMemory)
	require.True(t, ok)
	assert.Equal(t, effect.Scope{Namespace: "agent", Key: "k"}, write.Scope)
	assert.Equal(t, "v", write.Value)

	out := result.TurnOutput()
	assert.Equal(t, result.Effects, out.Effects)
	assert.Equal(t, result.ExitReason, out.ExitReason)
}

func TestToolEffectsResetBetweenRuns(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[rememberArgs, tools.Output](registry, rememberTool{}))
	prov := &scriptedProvider{responses: []*provider.Response{
		{Message: assistantToolUse("t1", "remember", json.RawMessage(`{"key":"k","value":"v"}`)), StopReason: provider.StopToolUse},
		alwaysEndTurn("done"),
		alwaysEndTurn("no tools this time"),
	}}
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry)
	first, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.NoError(t, err)
	require.Len(t, first.Effects, 1)

	second, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi again")})
	require.NoError(t, err)
	assert.Empty(t, second.Effects)
}

func TestProviderErrorSurfacesAsLoopError(t *testing.T) {
	prov := &scriptedProvider{
		responses: []*provider.Response{nil},
		errs:      []error{&provider.Error{Provider: "fake", Kind: provider.ErrorKindInvalidRequest, Retryable: false}},
	}
	registry := tools.NewRegistry()
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry)

	_, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.Error(t, err)
	var loopErr *loop.Error
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, loop.ExitProviderError, loopErr.Reason.Kind)
}

func TestRetryableProviderErrorIsRetried(t *testing.T) {
	prov := &scriptedProvider{
		responses: []*provider.Response{nil, alwaysEndTurn("recovered")},
		errs:      []error{&provider.Error{Provider: "fake", Kind: provider.ErrorKindRateLimited, Retryable: true}},
	}
	registry := tools.NewRegistry()
	l := loop.New(loop.LoopConfig{
		Model: "test-model",
		Retry: loop.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}, prov, registry)

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "hi")})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.ResponseText)
	assert.Equal(t, 2, prov.callCount())
}
