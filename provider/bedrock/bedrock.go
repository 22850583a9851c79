// Package bedrock adapts provider.Provider onto the AWS Bedrock Converse
// API. It mirrors the teacher's request pipeline: split system vs.
// conversational messages, encode tool schemas into Bedrock's
// ToolConfiguration, translate Converse responses (text + tool_use blocks)
// back into the generic provider types. Reference adapter only.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/provider"
)

// RuntimeClient is the subset of *bedrockruntime.Client the adapter needs,
// matched so tests can substitute a fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements provider.Provider on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	maxTokens    int
}

// New constructs a Client. defaultModel is used when a Request leaves Model
// empty; maxTokens bounds Request.MaxTokens when the caller omits it.
func New(runtime RuntimeClient, defaultModel string, maxTokens int) *Client {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{runtime: runtime, defaultModel: defaultModel, maxTokens: maxTokens}
}

func (c *Client) model(req *provider.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.defaultModel
}

func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	input, err := c.toConverseInput(req)
	if err != nil {
		return nil, err
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, translateError(err)
	}
	return fromConverseOutput(out)
}

// Stream is not implemented over Converse (ConverseStream requires a
// separate event-stream reader loop); Bedrock is wired as a Complete-only
// reference adapter, matching the teacher's note that streaming support is
// adapter-specific and optional on the Provider contract.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (provider.Streamer, error) {
	return nil, errors.New("bedrock: streaming not implemented in this adapter")
}

func (c *Client) toConverseInput(req *provider.Request) (*bedrockruntime.ConverseInput, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model(req)),
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)),
		},
	}
	if req.Temperature > 0 {
		input.InferenceConfig.Temperature = aws.Float32(req.Temperature)
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}
	for _, m := range req.Messages {
		msg, err := toConverseMessage(m)
		if err != nil {
			return nil, err
		}
		input.Messages = append(input.Messages, msg)
	}
	if len(req.Tools) > 0 {
		tc := &brtypes.ToolConfiguration{}
		for _, t := range req.Tools {
			tc.Tools = append(tc.Tools, &brtypes.ToolMemberToolSpec{
				Value: brtypes.ToolSpecification{
					Name:        aws.String(string(t.Name)),
					Description: aws.String(t.Description),
					InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(t.InputSchema)},
				},
			})
		}
		input.ToolConfig = tc
	}
	return input, nil
}

func toDocument(raw json.RawMessage) document.Interface {
	if len(raw) == 0 {
		return document.NewLazyDocument(map[string]any{})
	}
	var v any
	_ = json.Unmarshal(raw, &v)
	return document.NewLazyDocument(v)
}

func toConverseMessage(m message.Message) (brtypes.Message, error) {
	role := brtypes.ConversationRoleUser
	if m.Role == message.RoleAssistant {
		role = brtypes.ConversationRoleAssistant
	}
	var content []brtypes.ContentBlock
	for _, b := range m.Blocks {
		switch blk := b.(type) {
		case message.TextBlock:
			content = append(content, &brtypes.ContentBlockMemberText{Value: blk.Text})
		case message.ToolUseBlock:
			var input any
			_ = json.Unmarshal(blk.Input, &input)
			content = append(content, &brtypes.ContentBlockMemberToolUse{
				Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(blk.ID),
					Name:      aws.String(blk.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		case message.ToolResultBlock:
			var parts []brtypes.ToolResultContentBlock
			for _, item := range blk.Content {
				parts = append(parts, &brtypes.ToolResultContentBlockMemberText{Value: item.Text})
			}
			status := brtypes.ToolResultStatusSuccess
			if blk.IsError {
				status = brtypes.ToolResultStatusError
			}
			content = append(content, &brtypes.ContentBlockMemberToolResult{
				Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(blk.ToolUseID),
					Content:   parts,
					Status:    status,
				},
			})
		}
	}
	return brtypes.Message{Role: role, Content: content}, nil
}

func fromConverseOutput(out *bedrockruntime.ConverseOutput) (*provider.Response, error) {
	member, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, errors.New("bedrock: unexpected converse output shape")
	}
	var blocks []message.Block
	for _, b := range member.Value.Content {
		switch variant := b.(type) {
		case *brtypes.ContentBlockMemberText:
			blocks = append(blocks, message.TextBlock{Text: variant.Value})
		case *brtypes.ContentBlockMemberToolUse:
			input, _ := variant.Value.Input.MarshalSmithyDocument()
			blocks = append(blocks, message.ToolUseBlock{
				ID:    aws.ToString(variant.Value.ToolUseId),
				Name:  aws.ToString(variant.Value.Name),
				Input: input,
			})
		}
	}
	usage := provider.TokenUsage{}
	if out.Usage != nil {
		usage.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		usage.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
		usage.TotalTokens = int(aws.ToInt32(out.Usage.TotalTokens))
	}
	return &provider.Response{
		Message:    message.Message{Role: message.RoleAssistant, Blocks: blocks},
		Usage:      usage,
		StopReason: stopReason(out.StopReason),
	}, nil
}

func stopReason(r brtypes.StopReason) provider.StopReason {
	switch r {
	case brtypes.StopReasonToolUse:
		return provider.StopToolUse
	case brtypes.StopReasonMaxTokens:
		return provider.StopMaxTokens
	case brtypes.StopReasonContentFiltered:
		return provider.StopContentFilter
	default:
		return provider.StopEndTurn
	}
}

func translateError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &provider.Error{
			Provider:  "bedrock",
			Code:      apiErr.ErrorCode(),
			Message:   apiErr.ErrorMessage(),
			Kind:      classifyCode(apiErr.ErrorCode()),
			Retryable: apiErr.ErrorFault() == smithy.FaultServer,
			Cause:     err,
		}
	}
	return fmt.Errorf("bedrock: %w", err)
}

func classifyCode(code string) provider.ErrorKind {
	switch code {
	case "ThrottlingException":
		return provider.ErrorKindRateLimited
	case "AccessDeniedException", "UnauthorizedException":
		return provider.ErrorKindAuth
	case "ValidationException":
		return provider.ErrorKindInvalidRequest
	case "ServiceUnavailableException", "InternalServerException":
		return provider.ErrorKindUnavailable
	default:
		return provider.ErrorKindUnknown
	}
}
