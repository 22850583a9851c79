package loop

import (
	"context"
	"fmt"

	"github.com/loopkit/agentcore/compact"
	"github.com/loopkit/agentcore/effect"
	"github.com/loopkit/agentcore/hooks"
	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/provider"
	"github.com/loopkit/agentcore/telemetry"
	"github.com/loopkit/agentcore/tools"
)

// Loop drives one agent through repeated model calls, tool execution, and
// context compaction (spec §4.3). A Loop owns its transcript and usage
// accumulator exclusively; it is never shared across concurrent runs (spec
// §5 resource policy) — construct one Loop per run via New.
type Loop struct {
	provider provider.Provider
	registry *tools.Registry
	strategy compact.Strategy
	injector *compact.SystemInjector
	hooks    *hooks.Chain
	bus      hooks.Bus
	logger   telemetry.Logger
	config   LoopConfig

	cwd         string
	sessionID   string
	environment map[string]string

	transcript []message.Message
	caps       *capsState
	turn       int
	state      State
	effects    []effect.Effect
}

// Option configures optional Loop collaborators at construction time.
type Option func(*Loop)

// WithStrategy installs a compact.Strategy. Without one, compaction never
// triggers.
func WithStrategy(s compact.Strategy) Option {
	return func(l *Loop) { l.strategy = s }
}

// WithSystemInjector installs a compact.SystemInjector for per-turn
// reminder content.
func WithSystemInjector(i *compact.SystemInjector) Option {
	return func(l *Loop) { l.injector = i }
}

// WithHooks installs the hook chain invoked at every hooks.Point.
func WithHooks(c *hooks.Chain) Option {
	return func(l *Loop) { l.hooks = c }
}

// WithBus installs the advisory event bus. Without one, events are dropped.
func WithBus(b hooks.Bus) Option {
	return func(l *Loop) { l.bus = b }
}

// WithLogger installs a telemetry.Logger. Defaults to telemetry.NewNoopLogger.
func WithLogger(logger telemetry.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithToolContext sets the cwd/session/environment fields copied into every
// ToolContext built for this run.
func WithToolContext(cwd, sessionID string, environment map[string]string) Option {
	return func(l *Loop) {
		l.cwd = cwd
		l.sessionID = sessionID
		l.environment = environment
	}
}

// New constructs a Loop ready to Run once.
func New(cfg LoopConfig, prov provider.Provider, registry *tools.Registry, opts ...Option) *Loop {
	l := &Loop{
		provider: prov,
		registry: registry,
		config:   cfg,
		caps:     newCapsState(cfg.UsageLimits),
		logger:   telemetry.NewNoopLogger(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Transcript returns a copy of the current transcript. Safe to call after
// Run returns; calling it concurrently with Run is not supported (spec §5:
// the transcript has a single owner).
func (l *Loop) Transcript() []message.Message {
	out := make([]message.Message, len(l.transcript))
	copy(out, l.transcript)
	return out
}

// Run drives the turn loop to completion starting from initial, implementing
// the state machine of spec §4.3. It returns a non-nil error only for
// failures that are not a classified, expected termination (provider or
// context errors); MaxTurns, LimitExceeded, Cancelled, and ObserverHalt are
// reported through AgentResult.ExitReason with a nil error.
func (l *Loop) Run(ctx context.Context, initial []message.Message) (AgentResult, error) {
	l.transcript = append([]message.Message(nil), initial...)
	l.effects = nil
	l.publish(ctx, hooks.Event{Type: hooks.EventRunStarted})

	for {
		reason, err := l.iterate(ctx)
		if err != nil {
			l.state = StateFailed
			return l.result(reason), err
		}
		if reason != nil {
			if reason.Kind == ExitEndTurn || reason.Kind == ExitStopSequence ||
				reason.Kind == ExitMaxTokens || reason.Kind == ExitContentFilter {
				l.state = StateComplete
			} else {
				l.state = StateFailed
			}
			l.publish(ctx, hooks.Event{Type: hooks.EventRunFinished})
			return l.result(reason), nil
		}
	}
}

// iterate runs exactly one turn. A nil, nil return means the loop should
// continue to the next turn (e.g. after a Compaction stop-reason or a
// successful tool-execution round). A non-nil ExitReason means the loop is
// done; a non-nil error means the turn failed in a way Run should surface
// as a Go error rather than a classified exit.
func (l *Loop) iterate(ctx context.Context) (*ExitReason, error) {
	l.turn++
	l.state = StateAwaitingModel

	if l.config.MaxTurns > 0 && l.turn > l.config.MaxTurns {
		return &ExitReason{Kind: ExitMaxTurns}, nil
	}
	if limit, exceeded := l.caps.checkRequest(); exceeded {
		return &ExitReason{Kind: ExitLimitExceeded, Limit: limit}, nil
	}

	if action, err := l.invokeHook(ctx, hooks.Context{Point: hooks.PointLoopIteration, Turn: l.turn}); err != nil {
		l.logger.Warn(ctx, "loop_iteration hook error", "error", err)
	} else if halt, ok := action.(hooks.HaltAction); ok {
		return &ExitReason{Kind: ExitObserverHalt, Halt: halt.Reason}, nil
	}
	if action, err := l.invokeHook(ctx, hooks.Context{Point: hooks.PointExitCheck, Turn: l.turn}); err != nil {
		l.logger.Warn(ctx, "exit_check hook error", "error", err)
	} else if halt, ok := action.(hooks.HaltAction); ok {
		return &ExitReason{Kind: ExitObserverHalt, Halt: halt.Reason}, nil
	}

	if ctx.Err() != nil {
		return &ExitReason{Kind: ExitCancelled}, nil
	}

	tokenEstimate := l.estimateTokens()
	if l.strategy != nil && l.strategy.ShouldCompact(l.transcript, tokenEstimate) {
		l.state = StateCompacting
		old := tokenEstimate
		l.transcript = l.strategy.Compact(l.transcript)
		tokenEstimate = l.estimateTokens()
		l.publish(ctx, hooks.Event{
			Type:    hooks.EventContextCompaction,
			Compact: &hooks.CompactionEvent{OldTokens: old, NewTokens: tokenEstimate},
		})
	}

	system := l.config.SystemPrompt
	if l.injector != nil {
		for _, reminder := range l.injector.Check(l.turn, tokenEstimate) {
			system += "\n\n" + reminder
		}
	}

	if action, err := l.invokeHook(ctx, hooks.Context{Point: hooks.PointPreLlmCall, Turn: l.turn}); err != nil {
		l.logger.Warn(ctx, "pre_llm_call hook error", "error", err)
	} else if halt, ok := action.(hooks.HaltAction); ok {
		return &ExitReason{Kind: ExitObserverHalt, Halt: halt.Reason}, nil
	}

	if ctx.Err() != nil {
		return &ExitReason{Kind: ExitCancelled}, nil
	}

	req := &provider.Request{
		Model:       l.config.Model,
		Messages:    l.transcript,
		Tools:       l.registry.Definitions(),
		Temperature: l.config.Temperature,
		MaxTokens:   l.config.MaxTokens,
		System:      system,
	}

	l.caps.recordRequest()
	resp, err := withRetry(ctx, l.config.Retry, func() (*provider.Response, error) {
		return l.provider.Complete(ctx, req)
	})
	if err != nil {
		if ctx.Err() != nil {
			return &ExitReason{Kind: ExitCancelled}, nil
		}
		return nil, newError(ExitProviderError, err)
	}

	l.state = StateDecodingResp
	tokensUsed := resp.Usage.TotalTokens
	if tokensUsed == 0 {
		tokensUsed = resp.Usage.InputTokens + resp.Usage.OutputTokens
	}
	if action, err := l.invokeHook(ctx, hooks.Context{Point: hooks.PointPostLlmCall, Turn: l.turn, TokensUsed: tokensUsed}); err != nil {
		l.logger.Warn(ctx, "post_llm_call hook error", "error", err)
	} else if halt, ok := action.(hooks.HaltAction); ok {
		return &ExitReason{Kind: ExitObserverHalt, Halt: halt.Reason}, nil
	}

	if limit, exceeded := l.caps.recordUsage(resp.Usage); exceeded {
		l.transcript = append(l.transcript, resp.Message)
		return &ExitReason{Kind: ExitLimitExceeded, Limit: limit}, nil
	}

	l.transcript = append(l.transcript, resp.Message)

	switch resp.StopReason {
	case provider.StopEndTurn:
		return &ExitReason{Kind: ExitEndTurn}, nil
	case provider.StopSequence:
		return &ExitReason{Kind: ExitStopSequence}, nil
	case provider.StopMaxTokens:
		return &ExitReason{Kind: ExitMaxTokens}, nil
	case provider.StopContentFilter:
		return &ExitReason{Kind: ExitContentFilter}, nil
	case provider.StopCompaction:
		// Per decided Open Question (a), a Compaction stop-reason still
		// consumed a turn above; simply continue to the next iteration
		// without executing tools.
		return nil, nil
	case provider.StopToolUse:
		return l.executeTools(ctx, resp.Message)
	default:
		return &ExitReason{Kind: ExitEndTurn}, nil
	}
}

// executeTools runs step 8-9 of spec §4.3 for the ToolUse blocks in
// assistantMsg, appending the synthesized User message to the transcript on
// success. It returns a non-nil ExitReason if an observer halts or a usage
// limit is hit; both terminate before the User message is assembled, so the
// transcript never ends up with partially answered ToolUse blocks (P1).
func (l *Loop) executeTools(ctx context.Context, assistantMsg message.Message) (*ExitReason, error) {
	l.state = StateExecutingTools
	uses := assistantMsg.ToolUses()

	type prepared struct {
		call    tools.Call
		skipped *message.ToolResultBlock
	}

	tc := tools.ToolContext{
		Cwd:             l.cwd,
		SessionID:       l.sessionID,
		Environment:     l.environment,
		CancellationCtx: ctx,
	}

	preparedCalls := make([]prepared, 0, len(uses))
	for _, use := range uses {
		if ctx.Err() != nil {
			return &ExitReason{Kind: ExitCancelled}, nil
		}

		hc := hooks.Context{Point: hooks.PointPreToolUse, Turn: l.turn, ToolName: use.Name, ToolInput: use.Input}
		action, err := l.invokeHook(ctx, hc)
		if err != nil {
			l.logger.Warn(ctx, "pre_tool_use hook error", "error", err)
		}
		if halt, ok := action.(hooks.HaltAction); ok {
			return &ExitReason{Kind: ExitObserverHalt, Halt: halt.Reason}, nil
		}

		input := use.Input
		if skip, ok := action.(hooks.SkipToolAction); ok {
			preparedCalls = append(preparedCalls, prepared{
				call: tools.Call{ID: use.ID, Name: tools.Name(use.Name), Input: input},
				skipped: &message.ToolResultBlock{
					ToolUseID: use.ID,
					Content:   []message.ContentItem{{Kind: message.ContentItemText, Text: fmt.Sprintf("skipped by policy: %s", skip.Reason)}},
					IsError:   true,
				},
			})
			continue
		}
		if mod, ok := action.(hooks.ModifyToolInputAction); ok {
			input = mod.NewInput
		}

		if limit, exceeded := l.caps.checkToolCall(); exceeded {
			return &ExitReason{Kind: ExitLimitExceeded, Limit: limit}, nil
		}
		l.caps.recordToolCall()
		l.publish(ctx, hooks.Event{Type: hooks.EventToolScheduled, Context: hooks.Context{Point: hooks.PointPreToolUse, Turn: l.turn, ToolName: use.Name, ToolInput: input}})
		preparedCalls = append(preparedCalls, prepared{call: tools.Call{ID: use.ID, Name: tools.Name(use.Name), Input: input}})
	}

	dispatch := make([]tools.Call, 0, len(preparedCalls))
	dispatchIdx := make([]int, 0, len(preparedCalls))
	for i, p := range preparedCalls {
		if p.skipped == nil {
			dispatch = append(dispatch, p.call)
			dispatchIdx = append(dispatchIdx, i)
		}
	}

	outcomes := tools.ExecuteBatch(ctx, l.registry, dispatch, tc, l.config.ParallelToolExecution)

	results := make([]message.ToolResultBlock, len(preparedCalls))
	for i, p := range preparedCalls {
		if p.skipped != nil {
			results[i] = *p.skipped
		}
	}
	for j, outcome := range outcomes {
		i := dispatchIdx[j]
		block := outcomeToBlock(outcome)
		if outcome.Err == nil && len(outcome.Output.Effects) > 0 {
			l.effects = append(l.effects, outcome.Output.Effects...)
		}

		hc := hooks.Context{
			Point:      hooks.PointPostToolUse,
			Turn:       l.turn,
			ToolName:   string(outcome.Call.Name),
			ToolInput:  outcome.Call.Input,
			ToolOutput: blockContentJSON(block),
		}
		action, err := l.invokeHook(ctx, hc)
		if err != nil {
			l.logger.Warn(ctx, "post_tool_use hook error", "error", err)
		}
		if halt, ok := action.(hooks.HaltAction); ok {
			return &ExitReason{Kind: ExitObserverHalt, Halt: halt.Reason}, nil
		}
		if mod, ok := action.(hooks.ModifyToolOutputAction); ok {
			block = message.ToolResultBlock{
				ToolUseID: outcome.Call.ID,
				Content:   []message.ContentItem{{Kind: message.ContentItemText, Text: string(mod.NewOutput)}},
				IsError:   block.IsError,
			}
		}
		results[i] = block

		l.publish(ctx, hooks.Event{Type: hooks.EventToolCompleted, Context: hc})
	}

	blocks := make([]message.Block, len(results))
	for i, r := range results {
		blocks[i] = r
	}
	userMsg := message.Message{Role: message.RoleUser, Blocks: blocks}

	if err := message.ValidatePairing(assistantMsg, userMsg); err != nil {
		return nil, newError(ExitContextError, err)
	}

	l.transcript = append(l.transcript, userMsg)
	return nil, nil
}

// outcomeToBlock converts a tools.Outcome into the ToolResultBlock fed back
// to the model, collapsing a pipeline-level error into an error result
// rather than aborting the turn (spec §7 propagation policy).
func outcomeToBlock(o tools.Outcome) message.ToolResultBlock {
	if o.Err != nil {
		te := tools.AsToolError(o.Err)
		return message.ToolResultBlock{
			ToolUseID: o.Call.ID,
			Content:   []message.ContentItem{{Kind: message.ContentItemText, Text: te.Error()}},
			IsError:   true,
		}
	}
	items := make([]message.ContentItem, 0, len(o.Output.Content))
	for _, item := range o.Output.Content {
		switch item.Kind {
		case tools.OutputItemJSON:
			items = append(items, message.ContentItem{Kind: message.ContentItemJSON, JSON: item.JSON})
		default:
			items = append(items, message.ContentItem{Kind: message.ContentItemText, Text: item.Text})
		}
	}
	return message.ToolResultBlock{ToolUseID: o.Call.ID, Content: items, IsError: o.Output.IsError}
}

// blockContentJSON renders a ToolResultBlock's text content for the
// HookContext.ToolOutput snapshot; hooks only observe a byte view, never the
// structured block itself.
func blockContentJSON(b message.ToolResultBlock) []byte {
	var out []byte
	for _, item := range b.Content {
		out = append(out, []byte(item.Text)...)
	}
	return out
}

func (l *Loop) invokeHook(ctx context.Context, hc hooks.Context) (hooks.Action, error) {
	if l.hooks == nil {
		return hooks.Continue, nil
	}
	return l.hooks.Invoke(ctx, hc)
}

func (l *Loop) publish(ctx context.Context, event hooks.Event) {
	if l.bus == nil {
		return
	}
	if err := l.bus.Publish(ctx, event); err != nil {
		l.logger.Warn(ctx, "event publish error", "error", err)
	}
}

func (l *Loop) estimateTokens() int {
	if l.strategy == nil {
		return 0
	}
	return l.strategy.TokenEstimate(l.transcript)
}

func (l *Loop) result(reason *ExitReason) AgentResult {
	var final *message.Message
	var text string
	for i := len(l.transcript) - 1; i >= 0; i-- {
		if l.transcript[i].Role == message.RoleAssistant {
			m := l.transcript[i]
			final = &m
			text = m.Text()
			break
		}
	}
	r := ExitReason{Kind: ExitCancelled}
	if reason != nil {
		r = *reason
	}
	return AgentResult{
		ResponseText: text,
		Turns:        l.turn,
		Usage:        l.caps.usage,
		ExitReason:   r,
		FinalMessage: final,
		Effects:      append([]effect.Effect(nil), l.effects...),
	}
}
