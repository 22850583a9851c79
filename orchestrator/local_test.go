package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopkit/agentcore/effect"
	"github.com/loopkit/agentcore/orchestrator"
)

func TestLocalDispatchRunsRegisteredAgent(t *testing.T) {
	l := orchestrator.NewLocal()
	l.RegisterAgent("echo", func(ctx context.Context, input any) (any, error) {
		return input, nil
	})

	out, err := l.Dispatch(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestLocalDispatchUnknownAgentFails(t *testing.T) {
	l := orchestrator.NewLocal()
	_, err := l.Dispatch(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, effect.ErrAgentNotFound)
}

func TestLocalDispatchManyPreservesOrderDespiteVaryingLatency(t *testing.T) {
	l := orchestrator.NewLocal()
	delays := map[string]time.Duration{
		"slow":   30 * time.Millisecond,
		"medium": 15 * time.Millisecond,
		"fast":   0,
	}
	for name, d := range delays {
		d := d
		name := name
		l.RegisterAgent(name, func(ctx context.Context, input any) (any, error) {
			time.Sleep(d)
			return name, nil
		})
	}

	tasks := []orchestrator.Task{
		{Agent: "slow", Input: nil},
		{Agent: "medium", Input: nil},
		{Agent: "fast", Input: nil},
	}
	results := l.DispatchMany(context.Background(), tasks)

	require.Len(t, results, 3)
	assert.Equal(t, "slow", results[0].Output)
	assert.Equal(t, "medium", results[1].Output)
	assert.Equal(t, "fast", results[2].Output)
}

func TestLocalDispatchManyFailureIsIndependent(t *testing.T) {
	l := orchestrator.NewLocal()
	l.RegisterAgent("ok", func(ctx context.Context, input any) (any, error) {
		return "done", nil
	})

	tasks := []orchestrator.Task{
		{Agent: "missing", Input: nil},
		{Agent: "ok", Input: nil},
	}
	results := l.DispatchMany(context.Background(), tasks)

	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, effect.ErrAgentNotFound)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, "done", results[1].Output)
}

func TestLocalSignalAndQueryRequireRegisteredWorkflow(t *testing.T) {
	l := orchestrator.NewLocal()

	err := l.Signal(context.Background(), "unregistered", "payload")
	assert.ErrorIs(t, err, effect.ErrWorkflowNotFound)

	_, err = l.Query(context.Background(), "unregistered", nil)
	assert.ErrorIs(t, err, effect.ErrWorkflowNotFound)
}

func TestLocalSignalAccumulatesAgainstRegisteredWorkflow(t *testing.T) {
	l := orchestrator.NewLocal()
	l.RegisterWorkflow("run-1")

	require.NoError(t, l.Signal(context.Background(), "run-1", "first"))
	require.NoError(t, l.Signal(context.Background(), "run-1", "second"))

	out, err := l.Query(context.Background(), "run-1", nil)
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestLocalDispatchManyWithZeroTasksReturnsEmpty(t *testing.T) {
	l := orchestrator.NewLocal()
	results := l.DispatchMany(context.Background(), nil)
	assert.Empty(t, results)
}

func TestLocalConcurrentRegistrationIsSafe(t *testing.T) {
	l := orchestrator.NewLocal()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.RegisterAgent("concurrent", func(ctx context.Context, input any) (any, error) {
				return i, nil
			})
		}(i)
	}
	wg.Wait()
	_, err := l.Dispatch(context.Background(), "concurrent", nil)
	require.NoError(t, err)
}

func TestLocalDispatchPropagatesHandleError(t *testing.T) {
	l := orchestrator.NewLocal()
	boom := errors.New("boom")
	l.RegisterAgent("failing", func(ctx context.Context, input any) (any, error) {
		return nil, boom
	})
	_, err := l.Dispatch(context.Background(), "failing", nil)
	assert.ErrorIs(t, err, boom)
}
