package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/basedagent/basedagent/pkg/logger"
	"github.com/basedagent/basedagent/pkg/providers"
)

const (
	repeatLimit       = 3 // identical batches of calls before stopping
	driftCallLimit    = 8 // calls to one tool before checking its variety
	driftVarietyFloor = 2 // distinct argument sets at or under which drift trips

	stopRepeated = "I’m stopping tool execution because I detected a repeated tool-call loop. If you still want this action, restate it with a narrower scope."
	stopDrift    = "I’m stopping tool execution because one tool kept being called repeatedly. If you still want this action, restate it with a narrower scope."
	stopBudget   = "I paused because I reached the maximum number of consecutive actions (%d) allowed in a single turn. Let me know if you would like me to continue."
)

var defaultLLMOptions = map[string]any{
	"max_tokens":  4096,
	"temperature": 0.7,
}

// ToolLoopConfig configures the tool execution loop.
type ToolLoopConfig struct {
	Provider      providers.LLMProvider
	Model         string
	Tools         *ToolRegistry
	MaxIterations int
	LLMOptions    map[string]any
}

// ToolLoopResult contains the result of running the tool loop.
type ToolLoopResult struct {
	// Content is the model's final answer, not the intermediate chatter.
	Content    string
	Iterations int
	ToolCalls  int
}

// RunToolLoop alternates model calls and tool executions until the model
// answers without calling a tool, a loop guard trips, or the iteration
// budget runs out. Only provider failures and cancellation are errors.
func RunToolLoop(ctx context.Context, cfg ToolLoopConfig, messages []providers.Message, userID string) (*ToolLoopResult, error) {
	ctx = WithUser(ctx, userID)
	opts := cfg.LLMOptions
	if opts == nil {
		opts = defaultLLMOptions
	}
	var defs []providers.ToolDefinition
	if cfg.Tools != nil {
		defs = cfg.Tools.Definitions()
	}

	res := &ToolLoopResult{}
	guard := newLoopGuard()

	for res.Iterations < cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("tool loop interrupted: %w", err)
		}
		res.Iterations++

		resp, err := cfg.Provider.Chat(ctx, messages, defs, cfg.Model, opts)
		if err != nil {
			logger.ErrorCF("toolloop", "LLM call failed",
				map[string]any{"iteration": res.Iterations, "error": err.Error()})
			return nil, fmt.Errorf("LLM call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			logger.DebugCF("toolloop", "Model answered",
				map[string]any{"iteration": res.Iterations, "content_chars": len(resp.Content)})
			res.Content = resp.Content
			return res, nil
		}

		if stop := guard.observe(resp.ToolCalls); stop != "" {
			logger.WarnCF("toolloop", "Loop guard tripped",
				map[string]any{"iteration": res.Iterations, "tools": callNames(resp.ToolCalls)})
			res.Content = stop
			return res, nil
		}

		logger.InfoCF("toolloop", "Model requested tools",
			map[string]any{"iteration": res.Iterations, "tools": callNames(resp.ToolCalls)})

		messages = append(messages, assistantTurn(resp))
		for _, call := range resp.ToolCalls {
			res.ToolCalls++
			result := ErrorResult("No tools available")
			if cfg.Tools != nil {
				result = cfg.Tools.Run(ctx, call.Name, call.Arguments)
			}
			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    result.modelText(),
				ToolCallID: call.ID,
			})
		}
	}

	res.Content = fmt.Sprintf(stopBudget, cfg.MaxIterations)
	return res, nil
}

// assistantTurn echoes the model's tool calls back in wire form so the
// following tool messages have something to answer.
func assistantTurn(resp *providers.LLMResponse) providers.Message {
	msg := providers.Message{Role: "assistant", Content: resp.Content}
	for _, call := range resp.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, providers.ToolCall{
			ID:   call.ID,
			Type: "function",
			Function: &providers.FunctionCall{
				Name:      call.Name,
				Arguments: argsKey(call.Arguments),
			},
		})
	}
	return msg
}

func callNames(calls []providers.ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}

// argsKey is the canonical JSON of a call's arguments. encoding/json sorts
// map keys, so equal arguments give equal keys.
func argsKey(args map[string]interface{}) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// loopGuard stops a turn that keeps making the same calls, either as an
// identical batch or as one tool cycling through a couple of argument sets.
type loopGuard struct {
	batches  map[string]int
	perTool  map[string]int
	variants map[string]map[string]struct{}
}

func newLoopGuard() *loopGuard {
	return &loopGuard{
		batches:  map[string]int{},
		perTool:  map[string]int{},
		variants: map[string]map[string]struct{}{},
	}
}

// observe records one batch of calls and returns a stop message when the
// turn should end.
func (g *loopGuard) observe(calls []providers.ToolCall) string {
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.Name + ":" + argsKey(c.Arguments)
	}
	batch := strings.Join(parts, "|")
	g.batches[batch]++
	if g.batches[batch] >= repeatLimit {
		return stopRepeated
	}

	for _, c := range calls {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = "(unknown)"
		}
		g.perTool[name]++
		if g.variants[name] == nil {
			g.variants[name] = map[string]struct{}{}
		}
		g.variants[name][argsKey(c.Arguments)] = struct{}{}
		if g.perTool[name] >= driftCallLimit && len(g.variants[name]) <= driftVarietyFloor {
			return stopDrift
		}
	}
	return ""
}
