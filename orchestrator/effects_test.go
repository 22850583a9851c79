package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopkit/agentcore/effect"
	"github.com/loopkit/agentcore/orchestrator"
	"github.com/loopkit/agentcore/statestore/inmem"
	"github.com/loopkit/agentcore/telemetry"
)

// capturingLogger records every call made to it, for asserting Log effect
// interpretation without pulling in a real logging backend.
type capturingLogger struct {
	calls []loggedCall
}

type loggedCall struct {
	level   string
	message string
}

func (l *capturingLogger) Debug(_ context.Context, msg string, _ ...any) {
	l.calls = append(l.calls, loggedCall{"debug", msg})
}
func (l *capturingLogger) Info(_ context.Context, msg string, _ ...any) {
	l.calls = append(l.calls, loggedCall{"info", msg})
}
func (l *capturingLogger) Warn(_ context.Context, msg string, _ ...any) {
	l.calls = append(l.calls, loggedCall{"warn", msg})
}
func (l *capturingLogger) Error(_ context.Context, msg string, _ ...any) {
	l.calls = append(l.calls, loggedCall{"error", msg})
}

func TestApplyWriteMemoryWritesToStore(t *testing.T) {
	store := inmem.New()
	effects := []effect.Effect{
		effect.WriteMemory{Scope: effect.Scope{Namespace: "ns", Key: "k"}, Value: map[string]any{"a": 1.0}},
	}

	err := orchestrator.Apply(context.Background(), effects, store, nil, nil)
	require.NoError(t, err)

	raw, err := store.Read(context.Background(), "ns", "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}

func TestApplyWriteMemoryWithNoStoreFails(t *testing.T) {
	effects := []effect.Effect{
		effect.WriteMemory{Scope: effect.Scope{Namespace: "ns", Key: "k"}, Value: "v"},
	}
	err := orchestrator.Apply(context.Background(), effects, nil, nil, nil)
	assert.ErrorIs(t, err, effect.ErrNoStateStore)
}

func TestApplyDeleteMemoryRemovesFromStore(t *testing.T) {
	store := inmem.New()
	require.NoError(t, store.Write(context.Background(), "ns", "k", []byte(`"v"`)))

	effects := []effect.Effect{
		effect.DeleteMemory{Scope: effect.Scope{Namespace: "ns", Key: "k"}},
	}
	err := orchestrator.Apply(context.Background(), effects, store, nil, nil)
	require.NoError(t, err)

	_, err = store.Read(context.Background(), "ns", "k")
	assert.Error(t, err)
}

func TestApplyDeleteMemoryWithNoStoreFails(t *testing.T) {
	effects := []effect.Effect{
		effect.DeleteMemory{Scope: effect.Scope{Namespace: "ns", Key: "k"}},
	}
	err := orchestrator.Apply(context.Background(), effects, nil, nil, nil)
	assert.ErrorIs(t, err, effect.ErrNoStateStore)
}

func TestApplySignalDeliversToRegisteredWorkflow(t *testing.T) {
	o := orchestrator.NewLocal()
	o.RegisterWorkflow("run-1")

	effects := []effect.Effect{
		effect.Signal{Workflow: "run-1", Payload: "hi"},
	}
	err := orchestrator.Apply(context.Background(), effects, nil, o, nil)
	require.NoError(t, err)

	out, err := o.Query(context.Background(), "run-1", nil)
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestApplySignalWithNoOrchestratorFails(t *testing.T) {
	effects := []effect.Effect{effect.Signal{Workflow: "run-1", Payload: "hi"}}
	err := orchestrator.Apply(context.Background(), effects, nil, nil, nil)
	assert.ErrorIs(t, err, effect.ErrSignalFailed)
}

func TestApplySignalWrapsUnderlyingFailure(t *testing.T) {
	o := orchestrator.NewLocal()
	effects := []effect.Effect{effect.Signal{Workflow: "missing", Payload: nil}}
	err := orchestrator.Apply(context.Background(), effects, nil, o, nil)
	assert.ErrorIs(t, err, effect.ErrSignalFailed)
	assert.ErrorIs(t, err, effect.ErrWorkflowNotFound)
}

func TestApplyDelegateDispatchesRegisteredAgent(t *testing.T) {
	o := orchestrator.NewLocal()
	var sawInput any
	o.RegisterAgent("sub-agent", func(_ context.Context, input any) (any, error) {
		sawInput = input
		return "done", nil
	})

	effects := []effect.Effect{effect.Delegate{Agent: "sub-agent", Input: "task"}}
	err := orchestrator.Apply(context.Background(), effects, nil, o, nil)
	require.NoError(t, err)
	assert.Equal(t, "task", sawInput)
}

func TestApplyDelegateWithNoOrchestratorFails(t *testing.T) {
	effects := []effect.Effect{effect.Delegate{Agent: "sub-agent", Input: nil}}
	err := orchestrator.Apply(context.Background(), effects, nil, nil, nil)
	assert.ErrorIs(t, err, effect.ErrDispatchFailed)
}

func TestApplyDelegateWrapsUnderlyingFailure(t *testing.T) {
	o := orchestrator.NewLocal()
	effects := []effect.Effect{effect.Delegate{Agent: "missing", Input: nil}}
	err := orchestrator.Apply(context.Background(), effects, nil, o, nil)
	assert.ErrorIs(t, err, effect.ErrDispatchFailed)
	assert.ErrorIs(t, err, effect.ErrAgentNotFound)
}

func TestApplyHandoffDispatchesRegisteredAgent(t *testing.T) {
	o := orchestrator.NewLocal()
	o.RegisterAgent("closer", func(_ context.Context, input any) (any, error) {
		return input, nil
	})

	effects := []effect.Effect{effect.Handoff{Agent: "closer", Input: "ctx"}}
	err := orchestrator.Apply(context.Background(), effects, nil, o, nil)
	assert.NoError(t, err)
}

func TestApplyHandoffWithNoOrchestratorFails(t *testing.T) {
	effects := []effect.Effect{effect.Handoff{Agent: "closer", Input: nil}}
	err := orchestrator.Apply(context.Background(), effects, nil, nil, nil)
	assert.ErrorIs(t, err, effect.ErrDispatchFailed)
}

func TestApplyLogDispatchesToLevelMethod(t *testing.T) {
	logger := &capturingLogger{}
	effects := []effect.Effect{
		effect.Log{Level: "debug", Message: "m1"},
		effect.Log{Level: "warn", Message: "m2"},
		effect.Log{Level: "error", Message: "m3"},
		effect.Log{Level: "", Message: "m4"},
	}
	err := orchestrator.Apply(context.Background(), effects, nil, nil, logger)
	require.NoError(t, err)

	require.Len(t, logger.calls, 4)
	assert.Equal(t, loggedCall{"debug", "m1"}, logger.calls[0])
	assert.Equal(t, loggedCall{"warn", "m2"}, logger.calls[1])
	assert.Equal(t, loggedCall{"error", "m3"}, logger.calls[2])
	assert.Equal(t, loggedCall{"info", "m4"}, logger.calls[3])
}

func TestApplyLogWithNilLoggerIsNoop(t *testing.T) {
	effects := []effect.Effect{effect.Log{Level: "info", Message: "m"}}
	err := orchestrator.Apply(context.Background(), effects, nil, nil, nil)
	assert.NoError(t, err)
}

func TestApplyCustomIsNoop(t *testing.T) {
	effects := []effect.Effect{effect.Custom{Kind: "whatever", Payload: 42}}
	err := orchestrator.Apply(context.Background(), effects, nil, nil, nil)
	assert.NoError(t, err)
}

func TestApplyStopsOnFirstError(t *testing.T) {
	logger := &capturingLogger{}
	effects := []effect.Effect{
		effect.Log{Level: "info", Message: "before"},
		effect.WriteMemory{Scope: effect.Scope{Namespace: "ns", Key: "k"}},
		effect.Log{Level: "info", Message: "after"},
	}
	err := orchestrator.Apply(context.Background(), effects, nil, nil, logger)
	assert.ErrorIs(t, err, effect.ErrNoStateStore)
	assert.Len(t, logger.calls, 1, "the third effect must not run once the second fails")
}

// Apply's default branch (an Effect value of some type outside the seven
// built-in cases) is intentionally untestable from outside package effect:
// Effect's isEffect method is unexported, so effect.Effect is a closed union
// no other package can add a case to.

var _ telemetry.Logger = (*capturingLogger)(nil)
