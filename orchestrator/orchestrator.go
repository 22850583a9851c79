// Package orchestrator implements the contract that executes the Effects a
// Turn declares (spec §4.4): dispatching agent runs, delivering signals,
// answering queries, and — for durable backends — journaling the turn's
// suspension points as activities.
package orchestrator

import "context"

// Task is one unit of work submitted to DispatchMany.
type Task struct {
	Agent string
	Input any
}

// Result is the outcome of dispatching a single Task. Err is set
// independently per task: one task's failure never cancels its siblings.
type Result struct {
	Output any
	Err    error
}

// Orchestrator executes the side-effects a Turn declares. Dispatch starts
// or resumes a named agent; DispatchMany fans a batch of tasks out and
// preserves input order in its results regardless of completion order;
// Signal asynchronously notifies a running workflow; Query reads workflow
// metadata without mutating it.
type Orchestrator interface {
	Dispatch(ctx context.Context, agent string, input any) (any, error)
	DispatchMany(ctx context.Context, tasks []Task) []Result
	Signal(ctx context.Context, workflow string, payload any) error
	Query(ctx context.Context, workflow string, payload any) (any, error)
}
