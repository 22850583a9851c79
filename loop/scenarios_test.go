package loop_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopkit/agentcore/loop"
	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/provider"
	"github.com/loopkit/agentcore/tools"
)

func assistantToolUse(id, name string, input json.RawMessage) message.Message {
	return message.Message{
		Role:   message.RoleAssistant,
		Blocks: []message.Block{message.ToolUseBlock{ID: id, Name: name, Input: input}},
	}
}

func assistantMultiToolUse(uses ...message.ToolUseBlock) message.Message {
	blocks := make([]message.Block, len(uses))
	for i, u := range uses {
		blocks[i] = u
	}
	return message.Message{Role: message.RoleAssistant, Blocks: blocks}
}

// Scenario 1: plain text.
func TestScenarioPlainText(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{Message: message.NewText(message.RoleAssistant, "hi"), StopReason: provider.StopEndTurn},
	}}
	registry := tools.NewRegistry()
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry)

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "Hello")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Turns)
	assert.Equal(t, "hi", result.ResponseText)
	assert.Equal(t, loop.ExitEndTurn, result.ExitReason.Kind)
}

// Scenario 2: single tool call.
func TestScenarioSingleToolCall(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{Message: assistantToolUse("t1", "calc", json.RawMessage(`{"expression":"2+2"}`)), StopReason: provider.StopToolUse},
		{Message: message.NewText(message.RoleAssistant, "The answer is 4"), StopReason: provider.StopEndTurn},
	}}
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[calcArgs, tools.Output](registry, calcTool{}))
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry)

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "what is 2+2?")})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4", result.ResponseText)

	transcript := l.Transcript()
	require.Len(t, transcript, 4)
	assert.Equal(t, message.RoleUser, transcript[0].Role)
	assert.Equal(t, message.RoleAssistant, transcript[1].Role)
	assert.Equal(t, message.RoleUser, transcript[2].Role)
	assert.Equal(t, message.RoleAssistant, transcript[3].Role)

	results := transcript[2].ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].ToolUseID)
	assert.False(t, results[0].IsError)
}

// Scenario 3: parallel tools preserve order and run concurrently.
func TestScenarioParallelToolsPreserveOrderAndRunConcurrently(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{
			Message: assistantMultiToolUse(
				message.ToolUseBlock{ID: "a", Name: "a", Input: json.RawMessage(`{}`)},
				message.ToolUseBlock{ID: "b", Name: "b", Input: json.RawMessage(`{}`)},
			),
			StopReason: provider.StopToolUse,
		},
		{Message: message.NewText(message.RoleAssistant, "done"), StopReason: provider.StopEndTurn},
	}}
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[sleepArgs, tools.Output](registry, sleepTool{name: "a", delay: 200 * time.Millisecond}))
	require.NoError(t, tools.Register[sleepArgs, tools.Output](registry, sleepTool{name: "b", delay: 100 * time.Millisecond}))
	l := loop.New(loop.LoopConfig{Model: "test-model", ParallelToolExecution: true}, prov, registry)

	start := time.Now()
	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "go")})
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, "done", result.ResponseText)
	assert.Less(t, elapsed, 290*time.Millisecond, "parallel execution should take ~200ms, not 300ms")

	transcript := l.Transcript()
	results := transcript[2].ToolResults()
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ToolUseID)
	assert.Equal(t, "b", results[1].ToolUseID)
}

// alwaysToolUseProvider scripts a Provider that forever requests the same
// long-running tool, used to exercise cancellation (scenario 4, P6).
type alwaysToolUseProvider struct {
	calls int
}

func (p *alwaysToolUseProvider) Complete(_ context.Context, _ *provider.Request) (*provider.Response, error) {
	p.calls++
	return &provider.Response{
		Message:    assistantToolUse("t", "slow", json.RawMessage(`{}`)),
		StopReason: provider.StopToolUse,
	}, nil
}

func (p *alwaysToolUseProvider) Stream(context.Context, *provider.Request) (provider.Streamer, error) {
	return nil, nil
}

// Scenario 4 / P6: cancellation terminates the loop and no further calls
// occur once the context is observed cancelled.
func TestScenarioCancellationTerminatesLoop(t *testing.T) {
	prov := &alwaysToolUseProvider{}
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[sleepArgs, tools.Output](registry, sleepTool{name: "slow", delay: time.Second}))
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := l.Run(ctx, []message.Message{message.NewText(message.RoleUser, "go")})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, loop.ExitCancelled, result.ExitReason.Kind)
	assert.Less(t, elapsed, 2*time.Second, "loop must not wait out the full tool sleep after cancellation")

	callsAtReturn := prov.calls
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, callsAtReturn, prov.calls, "no further model calls after cancellation is observed")
}

// Scenario 6: permission deny. The tool middleware denies "bash"; the loop
// continues with an error tool result rather than aborting.
func TestScenarioPermissionDenyContinuesLoop(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.Response{
		{Message: assistantToolUse("b1", "bash", json.RawMessage(`{"command":"ls"}`)), StopReason: provider.StopToolUse},
		{Message: message.NewText(message.RoleAssistant, "done"), StopReason: provider.StopEndTurn},
	}}
	registry := tools.NewRegistry()
	require.NoError(t, tools.Register[bashArgs, tools.Output](registry, bashTool{}))
	registry.AddMiddleware(denyBash)
	l := loop.New(loop.LoopConfig{Model: "test-model"}, prov, registry)

	result, err := l.Run(context.Background(), []message.Message{message.NewText(message.RoleUser, "run ls")})
	require.NoError(t, err)
	assert.Equal(t, "done", result.ResponseText)
	assert.Equal(t, 2, result.Turns)

	transcript := l.Transcript()
	results := transcript[2].ToolResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
}
