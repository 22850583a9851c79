package orchestrator

import (
	"context"
	"sync"

	"github.com/loopkit/agentcore/effect"
)

// AgentHandle runs one agent to completion given an input. It is the
// process-local stand-in for a workflow invocation: Loop.Run adapted to
// this signature is a typical handle.
type AgentHandle func(ctx context.Context, input any) (any, error)

// workflowState tracks what the Local orchestrator remembers about a named
// workflow for Signal/Query purposes: signal count and the payload of the
// last signal received, per spec §4.4's "queries over workflow metadata".
type workflowState struct {
	signalCount int
	lastSignal  any
}

// Local is an in-process Orchestrator: effects are interpreted immediately
// in the calling goroutine (or a spawned one for DispatchMany), with no
// journaling. It maintains an agent_id -> handle registry and workflow
// metadata for Signal/Query.
type Local struct {
	mu        sync.RWMutex
	agents    map[string]AgentHandle
	workflows map[string]*workflowState
}

// NewLocal constructs an empty Local orchestrator.
func NewLocal() *Local {
	return &Local{
		agents:    make(map[string]AgentHandle),
		workflows: make(map[string]*workflowState),
	}
}

// RegisterAgent adds or replaces the handle for agent.
func (l *Local) RegisterAgent(agent string, h AgentHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.agents[agent] = h
}

// RegisterWorkflow declares workflow as a valid Signal/Query target with no
// prior signal history. Agents dispatched via Dispatch/DispatchMany are not
// automatically registered as workflows; callers that want a dispatched
// agent to also be signalable must call this explicitly.
func (l *Local) RegisterWorkflow(workflow string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.workflows[workflow]; !ok {
		l.workflows[workflow] = &workflowState{}
	}
}

// Dispatch runs agent's handle synchronously in the caller's goroutine.
func (l *Local) Dispatch(ctx context.Context, agent string, input any) (any, error) {
	l.mu.RLock()
	h, ok := l.agents[agent]
	l.mu.RUnlock()
	if !ok {
		return nil, effect.ErrAgentNotFound
	}
	return h(ctx, input)
}

// DispatchMany runs every task concurrently (one goroutine per task) and
// returns results in the same order as tasks, regardless of completion
// order. A task's failure is captured in its own Result and never cancels
// the others.
func (l *Local) DispatchMany(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, task := range tasks {
		go func(i int, task Task) {
			defer wg.Done()
			out, err := l.Dispatch(ctx, task.Agent, task.Input)
			results[i] = Result{Output: out, Err: err}
		}(i, task)
	}
	wg.Wait()
	return results
}

// Signal records payload against workflow's metadata. Per DESIGN.md Open
// Question (b), an unregistered workflow returns ErrWorkflowNotFound
// rather than silently accepting the signal.
func (l *Local) Signal(ctx context.Context, workflow string, payload any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.workflows[workflow]
	if !ok {
		return effect.ErrWorkflowNotFound
	}
	st.signalCount++
	st.lastSignal = payload
	return nil
}

// queryResult is the payload Query returns for the built-in metadata query.
type queryResult struct {
	SignalCount int `json:"signal_count"`
	LastSignal  any `json:"last_signal"`
}

// Query returns workflow metadata (signal count, last signal payload). The
// payload argument is currently unused by the Local implementation — it is
// part of the contract for parity with orchestrators that support
// arbitrary named queries. Unknown workflows return ErrWorkflowNotFound.
func (l *Local) Query(ctx context.Context, workflow string, payload any) (any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.workflows[workflow]
	if !ok {
		return nil, effect.ErrWorkflowNotFound
	}
	return queryResult{SignalCount: st.signalCount, LastSignal: st.lastSignal}, nil
}
