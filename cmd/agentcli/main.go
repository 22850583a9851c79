// Command agentcli is the reference CLI for agentcore: it wires a provider,
// a small tool registry, and a compaction strategy into a loop.Loop, runs
// one prompt to completion, and prints the assistant's final response.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/openai/openai-go/shared"

	"github.com/loopkit/agentcore/compact"
	"github.com/loopkit/agentcore/loop"
	"github.com/loopkit/agentcore/message"
	"github.com/loopkit/agentcore/orchestrator"
	"github.com/loopkit/agentcore/provider"
	"github.com/loopkit/agentcore/provider/anthropic"
	"github.com/loopkit/agentcore/provider/bedrock"
	"github.com/loopkit/agentcore/provider/openai"
	"github.com/loopkit/agentcore/statestore/inmem"
	"github.com/loopkit/agentcore/telemetry"
	"github.com/loopkit/agentcore/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		providerF = flag.String("provider", "anthropic", "model provider: anthropic, openai, or bedrock")
		modelF    = flag.String("model", "", "model id (overrides agentcli.yaml, uses provider default if empty)")
		maxTurnsF = flag.Int("max-turns", 0, "maximum turns (overrides agentcli.yaml, 0 uses file or default of 25)")
		parallelF = flag.Bool("parallel-tools", true, "execute independent tool calls concurrently")
		configF   = flag.String("config", "agentcli.yaml", "optional YAML config file")
	)
	flag.Parse()

	fcfg, err := loadConfig(*configF)
	if err != nil {
		return err
	}

	model := *modelF
	if model == "" {
		model = fcfg.Model
	}
	maxTurns := *maxTurnsF
	if maxTurns == 0 {
		maxTurns = fcfg.MaxTurns
	}
	if maxTurns == 0 {
		maxTurns = 25
	}

	prompt, err := readPrompt()
	if err != nil {
		return err
	}

	ctx := context.Background()
	prov, err := buildProvider(ctx, *providerF, model)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	if err := tools.Register[echoArgs, tools.Output](registry, echoTool{}); err != nil {
		return err
	}
	if err := tools.Register[currentTimeArgs, tools.Output](registry, currentTimeTool{}); err != nil {
		return err
	}
	if err := tools.Register[rememberArgs, tools.Output](registry, rememberTool{}); err != nil {
		return err
	}
	registry.AddMiddleware(allowlistMiddleware(fcfg.ToolAllowlist))

	strategy := compact.Composite{
		Strategies: []compact.Strategy{
			compact.ToolResultClearing{KeepLastK: 3, MaxTokens: 8000},
			compact.SlidingWindow{KeepLast: 40, MaxTokens: 12000},
		},
		Limit: 8000,
	}

	logger := telemetry.NewNoopLogger()
	l := loop.New(
		loop.LoopConfig{
			Model:                 model,
			MaxTurns:              maxTurns,
			ParallelToolExecution: *parallelF,
		},
		prov,
		registry,
		loop.WithStrategy(strategy),
		loop.WithSystemInjector(compact.NewSystemInjector()),
		loop.WithLogger(logger),
	)

	result, err := l.Run(ctx, []message.Message{message.NewText(message.RoleUser, prompt)})
	if err != nil {
		return err
	}
	if result.ExitReason.Err != nil {
		return result.ExitReason.Err
	}

	// The loop only declares effects (e.g. the remember tool's WriteMemory);
	// applying them against a real store and orchestrator happens here, at
	// the boundary between the loop and the rest of the process (spec §4.4).
	store := inmem.New()
	local := orchestrator.NewLocal()
	if err := orchestrator.Apply(ctx, result.Effects, store, local, logger); err != nil {
		return fmt.Errorf("applying effects: %w", err)
	}

	fmt.Println(result.ResponseText)
	return nil
}

// readPrompt joins every non-flag argument with spaces into the prompt,
// falling back to stdin when none is given.
func readPrompt() (string, error) {
	if flag.NArg() > 0 {
		return strings.Join(flag.Args(), " "), nil
	}
	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) != 0 {
		return "", errors.New("no prompt given: pass it as an argument or pipe it on stdin")
	}
	data, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func buildProvider(ctx context.Context, name, model string) (provider.Provider, error) {
	switch name {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is not set")
		}
		if model == "" {
			model = "claude-sonnet-4-5"
		}
		return anthropic.New(apiKey, anthropicsdk.Model(model)), nil
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		if model == "" {
			model = "gpt-4o"
		}
		return openai.New(apiKey, shared.ChatModel(model)), nil
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		if model == "" {
			model = "anthropic.claude-3-5-sonnet-20241022-v2:0"
		}
		return bedrock.New(client, model, 4096), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic, openai, or bedrock)", name)
	}
}
