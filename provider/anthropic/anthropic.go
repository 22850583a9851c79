// Package anthropic adapts provider.Provider onto the Anthropic Messages
// API via anthropic-sdk-go. It is a reference adapter only: core packages
// (loop, compact, tools) never import it, they depend on provider.Provider.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/provider"
)

// Client implements provider.Provider on top of the Anthropic Messages API.
type Client struct {
	api          anthropic.Client
	defaultModel anthropic.Model
}

// New constructs a Client. apiKey is passed to the SDK via option.WithAPIKey;
// defaultModel is used for requests that leave provider.Request.Model empty.
func New(apiKey string, defaultModel anthropic.Model) *Client {
	return &Client{
		api:          anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

func (c *Client) model(req *provider.Request) anthropic.Model {
	if req.Model != "" {
		return anthropic.Model(req.Model)
	}
	return c.defaultModel
}

// Complete performs a non-streaming Messages API call.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	params, err := toMessageParams(c.model(req), req)
	if err != nil {
		return nil, err
	}
	msg, err := c.api.Messages.New(ctx, *params)
	if err != nil {
		return nil, translateError(err)
	}
	return fromMessage(msg), nil
}

// Stream performs a streaming Messages API call.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (provider.Streamer, error) {
	params, err := toMessageParams(c.model(req), req)
	if err != nil {
		return nil, err
	}
	stream := c.api.Messages.NewStreaming(ctx, *params)
	return &streamer{stream: stream}, nil
}

type streamer struct {
	stream *anthropic.MessageStream
	acc    anthropic.Message
}

func (s *streamer) Recv() (provider.Chunk, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return provider.Chunk{}, translateError(err)
		}
		return provider.Chunk{Type: provider.ChunkStop, StopReason: stopReason(s.acc.StopReason)}, errStreamDone
	}
	event := s.stream.Current()
	if err := s.acc.Accumulate(event); err != nil {
		return provider.Chunk{}, err
	}
	return fromStreamEvent(event), nil
}

func (s *streamer) Close() error { return s.stream.Close() }

var errStreamDone = io.EOF

func toMessageParams(model anthropic.Model, req *provider.Request) (*anthropic.MessageNewParams, error) {
	params := &anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: int64(req.MaxTokens),
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = 4096
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	for _, m := range req.Messages {
		am, err := toAnthropicMessage(m)
		if err != nil {
			return nil, err
		}
		params.Messages = append(params.Messages, am)
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: toInputSchema(t.InputSchema),
			},
		})
	}
	if req.ToolChoice != nil {
		params.ToolChoice = toToolChoice(*req.ToolChoice)
	}
	if req.Thinking != nil && req.Thinking.Enable {
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: int64(req.Thinking.BudgetTokens)},
		}
	}
	return params, nil
}

func toInputSchema(raw json.RawMessage) anthropic.ToolInputSchemaParam {
	if len(raw) == 0 {
		return anthropic.ToolInputSchemaParam{}
	}
	var v map[string]any
	_ = json.Unmarshal(raw, &v)
	return anthropic.ToolInputSchemaParam{Properties: v["properties"]}
}

func toToolChoice(tc provider.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch tc.Mode {
	case provider.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case provider.ToolChoiceAny:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case provider.ToolChoiceTool:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: tc.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func toAnthropicMessage(m message.Message) (anthropic.MessageParam, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, b := range m.Blocks {
		switch blk := b.(type) {
		case message.TextBlock:
			blocks = append(blocks, anthropic.NewTextBlock(blk.Text))
		case message.ToolUseBlock:
			var input any
			_ = json.Unmarshal(blk.Input, &input)
			blocks = append(blocks, anthropic.NewToolUseBlock(blk.ID, input, blk.Name))
		case message.ToolResultBlock:
			var content []anthropic.ToolResultBlockParamContentUnion
			for _, item := range blk.Content {
				content = append(content, anthropic.ToolResultBlockParamContentUnion{
					OfText: &anthropic.TextBlockParam{Text: item.Text},
				})
			}
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: blk.ToolUseID,
					Content:   content,
					IsError:   anthropic.Bool(blk.IsError),
				},
			})
		case message.ImageBlock:
			blocks = append(blocks, anthropic.NewImageBlockBase64(blk.Source.MediaType, encodeBase64(blk.Source.Bytes)))
		}
	}
	role := anthropic.MessageParamRoleUser
	if m.Role == message.RoleAssistant {
		role = anthropic.MessageParamRoleAssistant
	}
	return anthropic.MessageParam{Role: role, Content: blocks}, nil
}

func fromMessage(msg *anthropic.Message) *provider.Response {
	var blocks []message.Block
	for _, b := range msg.Content {
		switch variant := b.AsAny().(type) {
		case anthropic.TextBlock:
			blocks = append(blocks, message.TextBlock{Text: variant.Text})
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(variant.Input)
			blocks = append(blocks, message.ToolUseBlock{ID: variant.ID, Name: variant.Name, Input: input})
		case anthropic.ThinkingBlock:
			blocks = append(blocks, message.ThinkingBlock{Thinking: variant.Thinking, Signature: variant.Signature})
		}
	}
	return &provider.Response{
		Message: message.Message{Role: message.RoleAssistant, Blocks: blocks},
		Usage: provider.TokenUsage{
			InputTokens:      int(msg.Usage.InputTokens),
			OutputTokens:     int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
			CacheReadTokens:  int(msg.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(msg.Usage.CacheCreationInputTokens),
		},
		StopReason: stopReason(msg.StopReason),
	}
}

func fromStreamEvent(event anthropic.MessageStreamEventUnion) provider.Chunk {
	switch variant := event.AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok {
			return provider.Chunk{Type: provider.ChunkText, Block: message.TextBlock{Text: delta.Text}}
		}
	case anthropic.MessageDeltaEvent:
		return provider.Chunk{
			Type: provider.ChunkUsage,
			UsageDelta: &provider.TokenUsage{
				OutputTokens: int(variant.Usage.OutputTokens),
			},
		}
	}
	return provider.Chunk{Type: provider.ChunkText}
}

func stopReason(r anthropic.StopReason) provider.StopReason {
	switch r {
	case anthropic.StopReasonToolUse:
		return provider.StopToolUse
	case anthropic.StopReasonMaxTokens:
		return provider.StopMaxTokens
	case anthropic.StopReasonStopSequence:
		return provider.StopSequence
	default:
		return provider.StopEndTurn
	}
}

func translateError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &provider.Error{
			Provider:   "anthropic",
			HTTPStatus: apiErr.StatusCode,
			Kind:       classifyStatus(apiErr.StatusCode),
			Message:    apiErr.Message,
			Retryable:  apiErr.StatusCode == 429 || apiErr.StatusCode >= 500,
			Cause:      err,
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}

func classifyStatus(status int) provider.ErrorKind {
	switch {
	case status == 401 || status == 403:
		return provider.ErrorKindAuth
	case status == 429:
		return provider.ErrorKindRateLimited
	case status == 400:
		return provider.ErrorKindInvalidRequest
	case status >= 500:
		return provider.ErrorKindUnavailable
	default:
		return provider.ErrorKindUnknown
	}
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
