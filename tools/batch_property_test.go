package tools_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/loopkit/agentcore/tools"
)

// TestExecuteBatchParallelOrderingProperty verifies P3: parallel tool
// execution preserves input-to-output positional order, for randomly
// permuted batches of differently-delayed tools (rather than the two fixed
// delays in TestExecuteBatchPreservesOrderInParallelMode).
func TestExecuteBatchParallelOrderingProperty(t *testing.T) {
	reg := tools.NewRegistry()
	names := []tools.Name{"a", "b", "c", "d", "e"}
	delays := map[tools.Name]time.Duration{
		"a": 30 * time.Millisecond,
		"b": 5 * time.Millisecond,
		"c": 20 * time.Millisecond,
		"d": 0,
		"e": 12 * time.Millisecond,
	}
	for _, n := range names {
		require.NoError(t, tools.Register[map[string]any, tools.Output](reg, sleepyTool{name: n, delay: delays[n]}))
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("outcomes preserve call order regardless of completion order", prop.ForAll(
		func(order []int) bool {
			calls := make([]tools.Call, len(order))
			for i, idx := range order {
				calls[i] = tools.Call{ID: fmt.Sprintf("call-%d", i), Name: names[idx], Input: json.RawMessage(`{}`)}
			}
			outcomes := tools.ExecuteBatch(context.Background(), reg, calls, tools.ToolContext{}, true)
			if len(outcomes) != len(calls) {
				return false
			}
			for i, out := range outcomes {
				if out.Err != nil || len(out.Output.Content) != 1 {
					return false
				}
				if out.Output.Content[0].Text != string(calls[i].Name) {
					return false
				}
			}
			return true
		},
		genCallOrder(len(names)),
	))

	properties.TestingRun(t)
}

// genCallOrder generates a random-length slice of indices into [0, n), each
// selecting which registered tool a given batch position calls — a
// permutation-with-repetition over tool identities, not just tool count.
func genCallOrder(n int) gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, n-1))
}
