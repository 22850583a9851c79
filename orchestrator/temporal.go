package orchestrator

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/loopkit/agentcore/effect"
)

// Temporal is the durable Orchestrator backend: dispatch starts (or signals)
// a Temporal workflow by name and awaits its result; signals and queries go
// through the Temporal client directly. Every call here is what the
// teacher's workflowHandle/Engine.SignalByID do outside of a workflow
// context — the durable journaling for calls made *inside* a running
// workflow is TemporalDurableContext's job, not this type's.
type Temporal struct {
	Client    client.Client
	TaskQueue string
	// WorkflowFor maps an agent name to the Temporal workflow function name
	// registered on the worker.
	WorkflowFor map[string]string
}

// NewTemporal constructs a Temporal orchestrator over an already-connected
// SDK client.
func NewTemporal(c client.Client, taskQueue string) *Temporal {
	return &Temporal{Client: c, TaskQueue: taskQueue, WorkflowFor: make(map[string]string)}
}

// Dispatch starts agent's workflow and blocks for its result.
func (t *Temporal) Dispatch(ctx context.Context, agent string, input any) (any, error) {
	workflowName, ok := t.WorkflowFor[agent]
	if !ok {
		return nil, effect.ErrAgentNotFound
	}
	opts := client.StartWorkflowOptions{TaskQueue: t.TaskQueue}
	run, err := t.Client.ExecuteWorkflow(ctx, opts, workflowName, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", effect.ErrDispatchFailed, err)
	}
	var out any
	if err := run.Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", effect.ErrDispatchFailed, err)
	}
	return out, nil
}

// DispatchMany starts every task's workflow concurrently and waits for all
// results, preserving input order regardless of completion order. A task's
// failure never cancels the others.
func (t *Temporal) DispatchMany(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	done := make(chan struct{}, len(tasks))
	for i, task := range tasks {
		go func(i int, task Task) {
			defer func() { done <- struct{}{} }()
			out, err := t.Dispatch(ctx, task.Agent, task.Input)
			results[i] = Result{Output: out, Err: err}
		}(i, task)
	}
	for range tasks {
		<-done
	}
	return results
}

// Signal sends a named signal to a running workflow by ID (runID is left
// empty to target the workflow's current run, matching the teacher's
// SignalByID when no explicit runID is pinned).
func (t *Temporal) Signal(ctx context.Context, workflow string, payload any) error {
	if err := t.Client.SignalWorkflow(ctx, workflow, "", signalName, payload); err != nil {
		return fmt.Errorf("%w: %v", effect.ErrSignalFailed, err)
	}
	return nil
}

// signalName is the single channel every Temporal-backed effect.Signal is
// delivered on; the payload itself carries the logical signal name/body so
// Temporal's per-workflow signal channel set does not need to grow with the
// application's signal vocabulary.
const signalName = "agentcore.signal"

// Query runs a named query against a running workflow and decodes its
// result.
func (t *Temporal) Query(ctx context.Context, workflow string, payload any) (any, error) {
	resp, err := t.Client.QueryWorkflow(ctx, workflow, "", queryName, payload)
	if err != nil {
		return nil, fmt.Errorf("effect: query failed: %w", err)
	}
	var out any
	if err := resp.Get(&out); err != nil {
		return nil, fmt.Errorf("effect: decode query result: %w", err)
	}
	return out, nil
}

const queryName = "agentcore.query"
