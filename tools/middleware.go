package tools

import (
	"context"
	"fmt"
)

// Decision is the outcome of a PermissionPolicy check.
type Decision int

const (
	// Allow permits the call to proceed unmodified.
	Allow Decision = iota
	// Deny fails the call with KindPermissionDenied and the given reason.
	Deny
	// Ask also fails the call with KindPermissionDenied; it exists as a
	// distinct value so policies can log/telemetry-tag the two cases
	// differently even though both currently fail the call the same way
	// (spec §4.1: "Deny and Ask both fail the call with PermissionDenied").
	Ask
)

// PermissionPolicy decides whether a tool call may proceed.
type PermissionPolicy func(name Name, input []byte) (Decision, string)

// PermissionMiddleware consults policy before invoking the tool. Deny and
// Ask both short-circuit with a KindPermissionDenied error; Allow invokes
// next unchanged.
func PermissionMiddleware(policy PermissionPolicy) Middleware {
	return func(ctx context.Context, call Call, tc ToolContext, next Next) (Output, error) {
		decision, reason := policy(call.Name, call.Input)
		switch decision {
		case Deny, Ask:
			if reason == "" {
				reason = "denied by policy"
			}
			return Output{}, NewError(KindPermissionDenied, fmt.Sprintf("tool %s: %s", call.Name, reason))
		default:
			return next(ctx, call, tc)
		}
	}
}

// OutputTruncationMiddleware truncates text output items exceeding maxChars,
// appending a marker noting the original length. Non-text items and
// structured content pass through unmodified.
func OutputTruncationMiddleware(maxChars int) Middleware {
	return func(ctx context.Context, call Call, tc ToolContext, next Next) (Output, error) {
		out, err := next(ctx, call, tc)
		if err != nil || maxChars <= 0 {
			return out, err
		}
		for i, item := range out.Content {
			if item.Kind != OutputItemText || len(item.Text) <= maxChars {
				continue
			}
			out.Content[i].Text = fmt.Sprintf("%s\n[truncated, %d chars total]", item.Text[:maxChars], len(item.Text))
		}
		return out, nil
	}
}
