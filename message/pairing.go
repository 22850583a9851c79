package message

import "fmt"

// ValidatePairing checks the invariant from spec §3: every ToolUseBlock in
// an Assistant message must be matched by exactly one ToolResultBlock with
// the same ID in the very next User message. It is used by the turn loop
// after assembling the synthesized user message and by context strategies
// that must not break pairing (spec P1, P5).
func ValidatePairing(assistant, user Message) error {
	uses := assistant.ToolUses()
	if len(uses) == 0 {
		return nil
	}
	results := user.ToolResults()
	if len(results) != len(uses) {
		return fmt.Errorf("message: expected %d tool results, got %d", len(uses), len(results))
	}
	for i, u := range uses {
		if results[i].ToolUseID != u.ID {
			return fmt.Errorf("message: tool result %d has id %q, want %q matching tool_use order", i, results[i].ToolUseID, u.ID)
		}
	}
	return nil
}
