package compact

import "github.com/loopkit/agentcore/message"

// Strategy decides when and how to shrink a transcript's token footprint.
// Compact must be idempotent on already-compacted input: running it twice
// in a row produces no further change beyond the first pass.
type Strategy interface {
	// ShouldCompact reports whether tokenEstimate, the caller-supplied
	// current estimate for msgs, warrants compaction.
	ShouldCompact(msgs []message.Message, tokenEstimate int) bool
	// Compact returns a new transcript with the strategy's reduction
	// applied. It must never remove System messages and must never break
	// tool-use/tool-result pairing (P5).
	Compact(msgs []message.Message) []message.Message
	// TokenEstimate reports a deterministic token estimate for msgs (P7).
	TokenEstimate(msgs []message.Message) int
}

// SlidingWindow retains every System message unchanged and keeps only the
// last KeepLast non-System messages, triggering when the counter's estimate
// exceeds MaxTokens. When the first kept message carries tool results, the
// message before it is kept too, so no tool result loses its tool use.
type SlidingWindow struct {
	KeepLast  int
	MaxTokens int
	Counter   TokenCounter
}

func (s SlidingWindow) counter() TokenCounter {
	if s.Counter != nil {
		return s.Counter
	}
	return CharRatioCounter{}
}

func (s SlidingWindow) ShouldCompact(msgs []message.Message, tokenEstimate int) bool {
	return tokenEstimate > s.MaxTokens
}

func (s SlidingWindow) TokenEstimate(msgs []message.Message) int {
	return s.counter().Estimate(msgs)
}

func (s SlidingWindow) Compact(msgs []message.Message) []message.Message {
	var system []message.Message
	var rest []message.Message
	for _, m := range msgs {
		if m.Role == message.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	if s.KeepLast > 0 && len(rest) > s.KeepLast {
		start := len(rest) - s.KeepLast
		if len(rest[start].ToolResults()) > 0 {
			start--
		}
		rest = rest[start:]
	}
	out := make([]message.Message, 0, len(system)+len(rest))
	out = append(out, system...)
	out = append(out, rest...)
	return out
}

// ToolResultClearing replaces the text of all but the last KeepLastK
// tool-result blocks (scanned in transcript order) with a fixed placeholder,
// preserving ToolUseID so pairing (P1) is never broken.
type ToolResultClearing struct {
	KeepLastK int
	MaxTokens int
	Counter   TokenCounter
}

const clearedPlaceholder = "[tool result cleared]"

func (c ToolResultClearing) counter() TokenCounter {
	if c.Counter != nil {
		return c.Counter
	}
	return CharRatioCounter{}
}

func (c ToolResultClearing) ShouldCompact(msgs []message.Message, tokenEstimate int) bool {
	return tokenEstimate > c.MaxTokens
}

func (c ToolResultClearing) TokenEstimate(msgs []message.Message) int {
	return c.counter().Estimate(msgs)
}

func (c ToolResultClearing) Compact(msgs []message.Message) []message.Message {
	total := 0
	for _, m := range msgs {
		total += len(m.ToolResults())
	}
	cutoff := total - c.KeepLastK
	if cutoff <= 0 {
		return msgs
	}

	out := make([]message.Message, len(msgs))
	seen := 0
	for i, m := range msgs {
		if len(m.ToolResults()) == 0 {
			out[i] = m
			continue
		}
		blocks := make([]message.Block, len(m.Blocks))
		for j, b := range m.Blocks {
			r, ok := b.(message.ToolResultBlock)
			if !ok {
				blocks[j] = b
				continue
			}
			seen++
			if seen <= cutoff {
				blocks[j] = message.ToolResultBlock{
					ToolUseID: r.ToolUseID,
					Content:   []message.ContentItem{{Kind: message.ContentItemText, Text: clearedPlaceholder}},
					IsError:   r.IsError,
				}
				continue
			}
			blocks[j] = b
		}
		out[i] = message.Message{Role: m.Role, Blocks: blocks, Meta: m.Meta}
	}
	return out
}

// Summarizer is the one-method subset of provider.Provider that Summarization
// needs: turn a prefix of the transcript into a single summary string.
type Summarizer interface {
	Summarize(msgs []message.Message) (string, error)
}

// Summarization delegates the prefix preceding the last KeepLastK messages to
// an external Summarizer and replaces that prefix with a single synthetic
// System message. System messages within the prefix are preserved ahead of
// the synthetic summary, and when the first kept message carries tool
// results the message before it is kept as well, so P5 holds.
type Summarization struct {
	Summarizer Summarizer
	KeepLastK  int
	MaxTokens  int
	Counter    TokenCounter
}

func (s Summarization) counter() TokenCounter {
	if s.Counter != nil {
		return s.Counter
	}
	return CharRatioCounter{}
}

func (s Summarization) ShouldCompact(msgs []message.Message, tokenEstimate int) bool {
	return tokenEstimate > s.MaxTokens
}

func (s Summarization) TokenEstimate(msgs []message.Message) int {
	return s.counter().Estimate(msgs)
}

func (s Summarization) Compact(msgs []message.Message) []message.Message {
	if s.KeepLastK <= 0 || len(msgs) <= s.KeepLastK {
		return msgs
	}
	cut := len(msgs) - s.KeepLastK
	if len(msgs[cut].ToolResults()) > 0 {
		cut--
	}
	prefix, kept := msgs[:cut], msgs[cut:]

	var system []message.Message
	var summarizable []message.Message
	for _, m := range prefix {
		if m.Role == message.RoleSystem {
			system = append(system, m)
		} else {
			summarizable = append(summarizable, m)
		}
	}
	if len(summarizable) == 0 {
		return msgs
	}

	summary := "[summary unavailable]"
	if s.Summarizer != nil {
		if text, err := s.Summarizer.Summarize(summarizable); err == nil && text != "" {
			summary = text
		}
	}

	out := make([]message.Message, 0, len(system)+1+len(kept))
	out = append(out, system...)
	out = append(out, message.Message{
		Role:   message.RoleSystem,
		Blocks: []message.Block{message.CompactionBlock{Content: summary}},
	})
	out = append(out, kept...)
	return out
}

// Composite applies a sequence of strategies in order, each operating on the
// previous strategy's output, short-circuiting once the running estimate
// drops to Limit or below (spec: "Composite(s1, s2, …, limit): applies
// strategies sequentially, short-circuiting when estimate <= limit").
// ShouldCompact reports true if any member would trigger; TokenEstimate
// delegates to the first member (estimates should agree across members
// using the same counter).
type Composite struct {
	Strategies []Strategy
	Limit      int
}

func (c Composite) ShouldCompact(msgs []message.Message, tokenEstimate int) bool {
	for _, s := range c.Strategies {
		if s.ShouldCompact(msgs, tokenEstimate) {
			return true
		}
	}
	return false
}

func (c Composite) TokenEstimate(msgs []message.Message) int {
	if len(c.Strategies) == 0 {
		return CharRatioCounter{}.Estimate(msgs)
	}
	return c.Strategies[0].TokenEstimate(msgs)
}

func (c Composite) Compact(msgs []message.Message) []message.Message {
	out := msgs
	for _, s := range c.Strategies {
		if c.Limit > 0 && s.TokenEstimate(out) <= c.Limit {
			break
		}
		out = s.Compact(out)
	}
	return out
}
