// Package openai adapts provider.Provider onto the OpenAI Chat Completions
// API via openai-go. Reference adapter only; core packages depend solely on
// provider.Provider.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/provider"
)

// Client implements provider.Provider over the OpenAI Chat Completions API.
type Client struct {
	api          openai.Client
	defaultModel shared.ChatModel
}

// New constructs a Client from an API key and default model identifier.
func New(apiKey string, defaultModel shared.ChatModel) *Client {
	return &Client{
		api:          openai.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

func (c *Client) model(req *provider.Request) shared.ChatModel {
	if req.Model != "" {
		return shared.ChatModel(req.Model)
	}
	return c.defaultModel
}

func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	params := toParams(c.model(req), req)
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	return fromCompletion(resp), nil
}

func (c *Client) Stream(ctx context.Context, req *provider.Request) (provider.Streamer, error) {
	params := toParams(c.model(req), req)
	stream := c.api.Chat.Completions.NewStreaming(ctx, params)
	return &streamer{stream: stream}, nil
}

type streamer struct {
	stream *openai.ChatCompletionStreamer
}

func (s *streamer) Recv() (provider.Chunk, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return provider.Chunk{}, translateError(err)
		}
		return provider.Chunk{Type: provider.ChunkStop, StopReason: provider.StopEndTurn}, errStreamDone
	}
	chunk := s.stream.Current()
	if len(chunk.Choices) == 0 {
		return provider.Chunk{Type: provider.ChunkText}, nil
	}
	delta := chunk.Choices[0].Delta
	if delta.Content != "" {
		return provider.Chunk{Type: provider.ChunkText, Block: message.TextBlock{Text: delta.Content}}, nil
	}
	return provider.Chunk{Type: provider.ChunkText}, nil
}

func (s *streamer) Close() error { return s.stream.Close() }

var errStreamDone = io.EOF

func toParams(model shared.ChatModel, req *provider.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{Model: model}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, toOpenAIMessages(m)...)
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        string(t.Name),
				Description: openai.String(t.Description),
				Parameters:  toParameters(t.InputSchema),
			},
		})
	}
	return params
}

func toParameters(raw json.RawMessage) shared.FunctionParameters {
	if len(raw) == 0 {
		return nil
	}
	var v map[string]any
	_ = json.Unmarshal(raw, &v)
	return shared.FunctionParameters(v)
}

func toOpenAIMessages(m message.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, b := range m.Blocks {
		switch blk := b.(type) {
		case message.TextBlock:
			if m.Role == message.RoleAssistant {
				out = append(out, openai.AssistantMessage(blk.Text))
			} else {
				out = append(out, openai.UserMessage(blk.Text))
			}
		case message.ToolUseBlock:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
						ID: blk.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      blk.Name,
							Arguments: string(blk.Input),
						},
					}},
				},
			})
		case message.ToolResultBlock:
			var text string
			for _, item := range blk.Content {
				text += item.Text
			}
			out = append(out, openai.ToolMessage(text, blk.ToolUseID))
		}
	}
	return out
}

func fromCompletion(resp *openai.ChatCompletion) *provider.Response {
	var blocks []message.Block
	stop := provider.StopEndTurn
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message.Content != "" {
			blocks = append(blocks, message.TextBlock{Text: choice.Message.Content})
		}
		for _, tc := range choice.Message.ToolCalls {
			blocks = append(blocks, message.ToolUseBlock{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: json.RawMessage(tc.Function.Arguments),
			})
		}
		if len(choice.Message.ToolCalls) > 0 {
			stop = provider.StopToolUse
		}
		switch choice.FinishReason {
		case "length":
			stop = provider.StopMaxTokens
		case "content_filter":
			stop = provider.StopContentFilter
		}
	}
	return &provider.Response{
		Message: message.Message{Role: message.RoleAssistant, Blocks: blocks},
		Usage: provider.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		StopReason: stop,
	}
}

func translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &provider.Error{
			Provider:   "openai",
			HTTPStatus: apiErr.StatusCode,
			Kind:       classifyStatus(apiErr.StatusCode),
			Message:    apiErr.Message,
			Retryable:  apiErr.StatusCode == 429 || apiErr.StatusCode >= 500,
			Cause:      err,
		}
	}
	return fmt.Errorf("openai: %w", err)
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
