package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

type (
	// DynTool is the type-erased tool interface. Any TypedTool automatically
	// satisfies it through typedToDyn, so the registry only ever stores
	// DynTool handles internally.
	DynTool interface {
		Name() Name
		Definition() Definition
		CallDyn(ctx context.Context, input json.RawMessage, tc ToolContext) (Output, error)
	}

	// TypedTool is the strongly typed tool interface most handlers implement
	// directly. Args and Out must be JSON-(de)serializable.
	TypedTool[Args, Out any] interface {
		Definition() Definition
		Call(ctx context.Context, args Args, tc ToolContext) (Out, error)
	}

	// Next invokes the remainder of a middleware chain, terminating in the
	// tool's own CallDyn.
	Next func(ctx context.Context, call Call, tc ToolContext) (Output, error)

	// Middleware wraps a tool invocation. It may inspect or mutate the call,
	// short-circuit by not invoking next, or post-process the result.
	Middleware func(ctx context.Context, call Call, tc ToolContext, next Next) (Output, error)

	registeredTool struct {
		handle  DynTool
		schema  *compiledSchema
		perTool []Middleware
	}

	// Registry maps tool names to type-erased handles plus a global and a
	// per-tool middleware chain. It is safe for concurrent use: registration
	// typically happens at startup, execution happens concurrently for the
	// lifetime of the process.
	Registry struct {
		mu     sync.RWMutex
		tools  map[Name]*registeredTool
		global []Middleware
	}
)

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[Name]*registeredTool)}
}

// ErrAlreadyRegistered is returned by RegisterDyn when a tool name is reused.
var ErrAlreadyRegistered = errors.New("tools: name already registered")

// Register adapts a TypedTool to DynTool via JSON (de)serialization and adds
// it to the registry. A deserialization failure on the wrapped Args is
// surfaced as KindInvalidInput, matching spec §4.1.
func Register[Args, Out any](r *Registry, t TypedTool[Args, Out]) error {
	def := t.Definition()
	return r.RegisterDyn(&typedToDyn[Args, Out]{def: def, tool: t})
}

// RegisterDyn adds a pre-erased tool handle to the registry. Returns
// ErrAlreadyRegistered if the name is already present.
func (r *Registry) RegisterDyn(h DynTool) error {
	name := h.Name()
	if name == "" {
		return errors.New("tools: tool name is required")
	}
	schema, err := compileSchema(name, h.Definition().InputSchema)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.tools[name] = &registeredTool{handle: h, schema: schema}
	return nil
}

// Get returns the registered handle for name, if any.
func (r *Registry) Get(name Name) (DynTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.handle, true
}

// Definitions returns the Definition of every registered tool. Order is not
// guaranteed; callers that need a stable order should sort by Name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, rt.handle.Definition())
	}
	return out
}

// AddMiddleware appends m to the global middleware chain, run before any
// per-tool middleware for every tool in the registry.
func (r *Registry) AddMiddleware(m Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = append(r.global, m)
}

// AddToolMiddleware appends m to the per-tool chain for name. Returns an
// error if name is not registered.
func (r *Registry) AddToolMiddleware(name Name, m Middleware) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("tools: %w: %s", ErrNotFound, name)
	}
	rt.perTool = append(rt.perTool, m)
	return nil
}

// ErrNotFound is returned by Execute when the requested tool is not
// registered.
var ErrNotFound = errors.New("tool not found")

// Execute runs the middleware chain ([global...] then [perTool...] then the
// tool itself, in that order) for a single call. Input is validated against
// the tool's compiled JSON Schema, if any, before the chain runs.
func (r *Registry) Execute(ctx context.Context, call Call, tc ToolContext) (Output, error) {
	r.mu.RLock()
	rt, ok := r.tools[call.Name]
	var global []Middleware
	if ok {
		global = append(global, r.global...)
	}
	r.mu.RUnlock()
	if !ok {
		return Output{}, NewError(KindNotFound, fmt.Sprintf("tool %s: %v", call.Name, ErrNotFound))
	}
	if err := rt.schema.Validate(call.Name, call.Input); err != nil {
		return Output{}, err
	}

	chain := append(global, rt.perTool...)
	terminal := Next(func(ctx context.Context, call Call, tc ToolContext) (Output, error) {
		return rt.handle.CallDyn(ctx, call.Input, tc)
	})
	next := terminal
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i]
		prevNext := next
		next = func(ctx context.Context, call Call, tc ToolContext) (Output, error) {
			return mw(ctx, call, tc, prevNext)
		}
	}
	return next(ctx, call, tc)
}

// typedToDyn adapts a TypedTool to DynTool by deserializing the input,
// invoking the typed Call, and serializing the result. A deserialize
// failure becomes a KindInvalidInput error without invoking the tool.
type typedToDyn[Args, Out any] struct {
	def  Definition
	tool TypedTool[Args, Out]
}

func (t *typedToDyn[Args, Out]) Name() Name             { return t.def.Name }
func (t *typedToDyn[Args, Out]) Definition() Definition { return t.def }

func (t *typedToDyn[Args, Out]) CallDyn(ctx context.Context, input json.RawMessage, tc ToolContext) (Output, error) {
	var args Args
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return Output{}, NewErrorWithCause(KindInvalidInput, fmt.Sprintf("tool %s: decode args", t.def.Name), err)
		}
	}
	out, err := t.tool.Call(ctx, args, tc)
	if err != nil {
		return Output{}, err
	}
	return toOutput(out)
}

// toOutput converts an arbitrary typed result into the wire Output shape.
// A result that is already an Output is passed through unchanged so tools
// that need fine control over Content/IsError can return it directly.
func toOutput[Out any](out Out) (Output, error) {
	if o, ok := any(out).(Output); ok {
		return o, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return Output{}, fmt.Errorf("encode tool output: %w", err)
	}
	return Output{
		Content:           []OutputItem{{Kind: OutputItemJSON, JSON: data}},
		StructuredContent: data,
	}, nil
}
