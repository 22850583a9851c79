// Package compact implements the context engine: token estimation,
// compaction strategies, the system-reminder injector, and the persistent
// context section renderer.
package compact

import "github.com/loopkit/agentcore/message"

// TokenCounter estimates the token footprint of a transcript. Estimates need
// not match a provider's actual tokenizer; callers that need exact counts
// should prefer the Response.Usage reported by the provider after a real
// call and treat TokenCounter as a pre-call budget check only.
type TokenCounter interface {
	Estimate(msgs []message.Message) int
}

// CharRatioCounter estimates tokens as a fixed character-per-token ratio,
// with flat costs for blocks whose textual size is not representative of
// their token cost (images, documents). It is deliberately
// provider-agnostic: exact tokenization is provider-specific and out of
// scope (spec §1 Non-goals).
type CharRatioCounter struct {
	// CharsPerToken is the divisor applied to textual content. Zero means
	// use the default of 4.0.
	CharsPerToken float64
	// ImageTokens is the flat per-image-block cost. Zero means use the
	// default of 300.
	ImageTokens int
	// DocumentTokens is the flat per-document-block cost. Zero means use
	// the default of 500.
	DocumentTokens int
}

const (
	defaultCharsPerToken  = 4.0
	defaultImageTokens    = 300
	defaultDocumentTokens = 500
)

// Estimate sums block-level costs over every message: text by
// character-ratio, images and documents by a fixed cost, tool calls/results
// by the character ratio applied to their JSON payload. The result is
// deterministic for identical input, satisfying P7.
func (c CharRatioCounter) Estimate(msgs []message.Message) int {
	ratio := c.CharsPerToken
	if ratio <= 0 {
		ratio = defaultCharsPerToken
	}
	imageTokens := c.ImageTokens
	if imageTokens <= 0 {
		imageTokens = defaultImageTokens
	}
	docTokens := c.DocumentTokens
	if docTokens <= 0 {
		docTokens = defaultDocumentTokens
	}

	total := 0
	for _, m := range msgs {
		for _, b := range m.Blocks {
			total += blockTokens(b, ratio, imageTokens, docTokens)
		}
	}
	return total
}

func blockTokens(b message.Block, ratio float64, imageTokens, docTokens int) int {
	switch blk := b.(type) {
	case message.TextBlock:
		return charTokens(blk.Text, ratio)
	case message.ThinkingBlock:
		return charTokens(blk.Thinking, ratio)
	case message.RedactedThinkingBlock:
		return charTokens(string(blk.Data), ratio)
	case message.ToolUseBlock:
		return charTokens(blk.Name, ratio) + charTokens(string(blk.Input), ratio)
	case message.ToolResultBlock:
		n := 0
		for _, item := range blk.Content {
			n += charTokens(item.Text, ratio) + charTokens(string(item.JSON), ratio)
		}
		return n
	case message.ImageBlock:
		return imageTokens
	case message.DocumentBlock:
		return docTokens
	case message.CompactionBlock:
		return charTokens(blk.Content, ratio)
	default:
		return 0
	}
}

func charTokens(s string, ratio float64) int {
	if s == "" {
		return 0
	}
	n := float64(len(s)) / ratio
	return int(n) + 1
}
