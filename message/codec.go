package message

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes a Message while preserving the concrete Block types
// stored in Blocks via an explicit Kind discriminator, so a round trip
// through JSON never loses type information (spec P8).
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role   Role           `json:"role"`
		Blocks []any          `json:"blocks,omitempty"`
		Meta   map[string]any `json:"meta,omitempty"`
	}
	if len(m.Blocks) == 0 {
		return json.Marshal(alias{Role: m.Role, Meta: m.Meta})
	}
	blocks := make([]any, 0, len(m.Blocks))
	for i, b := range m.Blocks {
		enc, err := encodeBlock(b)
		if err != nil {
			return nil, fmt.Errorf("encode blocks[%d]: %w", i, err)
		}
		blocks = append(blocks, enc)
	}
	return json.Marshal(alias{Role: m.Role, Blocks: blocks, Meta: m.Meta})
}

// UnmarshalJSON decodes a Message, materializing concrete Block
// implementations from the Kind discriminator.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role   Role              `json:"role"`
		Blocks []json.RawMessage `json:"blocks,omitempty"`
		Meta   map[string]any    `json:"meta,omitempty"`
	}
	var tmp alias
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	m.Role = tmp.Role
	m.Meta = tmp.Meta
	if len(tmp.Blocks) == 0 {
		m.Blocks = nil
		return nil
	}
	m.Blocks = make([]Block, 0, len(tmp.Blocks))
	for i, raw := range tmp.Blocks {
		b, err := decodeBlock(raw)
		if err != nil {
			return fmt.Errorf("decode blocks[%d]: %w", i, err)
		}
		m.Blocks = append(m.Blocks, b)
	}
	return nil
}

func encodeBlock(b Block) (any, error) {
	switch v := b.(type) {
	case TextBlock:
		return struct {
			Kind string `json:"kind"`
			TextBlock
		}{"text", v}, nil
	case ThinkingBlock:
		return struct {
			Kind string `json:"kind"`
			ThinkingBlock
		}{"thinking", v}, nil
	case RedactedThinkingBlock:
		return struct {
			Kind string `json:"kind"`
			Data string `json:"data"`
		}{"redacted_thinking", base64.StdEncoding.EncodeToString(v.Data)}, nil
	case ToolUseBlock:
		return struct {
			Kind string `json:"kind"`
			ToolUseBlock
		}{"tool_use", v}, nil
	case ToolResultBlock:
		return struct {
			Kind string `json:"kind"`
			ToolResultBlock
		}{"tool_result", v}, nil
	case ImageBlock:
		return struct {
			Kind string `json:"kind"`
			ImageBlock
		}{"image", v}, nil
	case DocumentBlock:
		return struct {
			Kind string `json:"kind"`
			DocumentBlock
		}{"document", v}, nil
	case CompactionBlock:
		return struct {
			Kind string `json:"kind"`
			CompactionBlock
		}{"compaction", v}, nil
	default:
		return nil, fmt.Errorf("unknown block type %T", b)
	}
}

func decodeBlock(raw json.RawMessage) (Block, error) {
	var disc struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &disc); err != nil {
		return nil, fmt.Errorf("decode kind: %w", err)
	}
	switch disc.Kind {
	case "text":
		var b TextBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "thinking":
		var b ThinkingBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "redacted_thinking":
		var tmp struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(raw, &tmp); err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(tmp.Data)
		if err != nil {
			return nil, fmt.Errorf("decode redacted thinking data: %w", err)
		}
		return RedactedThinkingBlock{Data: data}, nil
	case "tool_use":
		var b ToolUseBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		if b.ID == "" {
			return nil, fmt.Errorf("tool_use block requires id")
		}
		return b, nil
	case "tool_result":
		var b ToolResultBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		if b.ToolUseID == "" {
			return nil, fmt.Errorf("tool_result block requires tool_use_id")
		}
		return b, nil
	case "image":
		var b ImageBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "document":
		var b DocumentBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "compaction":
		var b CompactionBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown block kind %q", disc.Kind)
	}
}
