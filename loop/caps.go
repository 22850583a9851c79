package loop

import "github.com/loopkit/agentcore/provider"

// capsState tracks the monotonic counters spec §4.3's three usage-limit
// checkpoints enforce against: pre-request (request count), post-response
// (cumulative token totals), and pre-tool-call (tool invocation count). It
// is owned exclusively by one Loop, never shared (spec §5).
type capsState struct {
	limits    *UsageLimits
	requests  int
	toolCalls int
	usage     provider.TokenUsage
}

func newCapsState(limits *UsageLimits) *capsState {
	return &capsState{limits: limits}
}

// checkRequest enforces max_requests before a model call is issued.
func (c *capsState) checkRequest() (LimitKind, bool) {
	if c.limits == nil || c.limits.MaxRequests <= 0 {
		return "", false
	}
	if c.requests+1 > c.limits.MaxRequests {
		return LimitMaxRequests, true
	}
	return "", false
}

// recordRequest increments the monotonic request counter.
func (c *capsState) recordRequest() { c.requests++ }

// recordUsage folds u into the cumulative total (P2: monotonic) and reports
// whether the cumulative total now exceeds a configured token limit.
func (c *capsState) recordUsage(u provider.TokenUsage) (LimitKind, bool) {
	c.usage.InputTokens += u.InputTokens
	c.usage.OutputTokens += u.OutputTokens
	c.usage.TotalTokens += u.TotalTokens
	c.usage.CacheReadTokens += u.CacheReadTokens
	c.usage.CacheWriteTokens += u.CacheWriteTokens

	if c.limits == nil {
		return "", false
	}
	if c.limits.MaxInputTokens > 0 && c.usage.InputTokens > c.limits.MaxInputTokens {
		return LimitMaxInputTokens, true
	}
	if c.limits.MaxOutputTokens > 0 && c.usage.OutputTokens > c.limits.MaxOutputTokens {
		return LimitMaxOutputTokens, true
	}
	return "", false
}

// checkToolCall enforces max_tool_calls before dispatching the next tool
// invocation.
func (c *capsState) checkToolCall() (LimitKind, bool) {
	if c.limits == nil || c.limits.MaxToolCalls <= 0 {
		return "", false
	}
	if c.toolCalls+1 > c.limits.MaxToolCalls {
		return LimitMaxToolCalls, true
	}
	return "", false
}

func (c *capsState) recordToolCall() { c.toolCalls++ }
