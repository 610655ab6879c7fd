// Package agent runs one model-driven turn for a user: it binds the user's
// wallet to the wallet tools, replays the transcript and returns the model's
// final reply.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/basedagent/basedagent/pkg/config"
	"github.com/basedagent/basedagent/pkg/logger"
	"github.com/basedagent/basedagent/pkg/providers"
	"github.com/basedagent/basedagent/pkg/session"
	"github.com/basedagent/basedagent/pkg/tools"
	"github.com/basedagent/basedagent/pkg/wallet"
)

var ErrEmptyTranscript = errors.New("agent: transcript has no user turn")

// Invocation is the input of a single agent turn. Transcript ends with the
// new user prompt.
type Invocation struct {
	UserID     string
	Wallet     wallet.Blob
	Transcript []session.Turn
}

type Agent struct {
	provider      providers.LLMProvider
	wallets       tools.WalletOperator
	model         string
	maxIterations int
	llmOptions    map[string]any
}

// NewAgent builds an agent. wallets may be nil, in which case no wallet tools
// are offered to the model.
func NewAgent(cfg config.AgentConfig, provider providers.LLMProvider, wallets tools.WalletOperator) *Agent {
	model := strings.TrimSpace(cfg.Model)
	if model == "" && provider != nil {
		model = provider.GetDefaultModel()
	}
	maxIterations := cfg.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = config.DefaultConfig().Agent.MaxToolIterations
	}
	opts := map[string]any{"temperature": cfg.Temperature}
	if cfg.MaxTokens > 0 {
		opts["max_tokens"] = cfg.MaxTokens
	}
	return &Agent{
		provider:      provider,
		wallets:       wallets,
		model:         model,
		maxIterations: maxIterations,
		llmOptions:    opts,
	}
}

func (a *Agent) Model() string { return a.model }

// Invoke runs the tool loop for inv and returns the final assistant text.
func (a *Agent) Invoke(ctx context.Context, inv Invocation) (string, error) {
	if a.provider == nil {
		return "", fmt.Errorf("agent: no LLM provider configured")
	}

	registry := tools.NewToolRegistry()
	data := a.bindWallet(registry, inv)

	cb := NewContextBuilder(registry)
	messages := cb.BuildMessages(inv.Transcript, data)
	if len(messages) < 2 {
		return "", ErrEmptyTranscript
	}
	logger.DebugCF("agent", "Provider request",
		map[string]interface{}{
			"user":     inv.UserID,
			"model":    a.model,
			"messages": formatMessagesForLog(messages),
		})

	start := time.Now()
	result, err := tools.RunToolLoop(ctx, tools.ToolLoopConfig{
		Provider:      a.provider,
		Model:         a.model,
		Tools:         registry,
		MaxIterations: a.maxIterations,
		LLMOptions:    a.llmOptions,
	}, messages, inv.UserID)
	if err != nil {
		logger.ErrorCF("agent", "Agent turn failed",
			map[string]interface{}{
				"user":        inv.UserID,
				"error":       err.Error(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
		return "", fmt.Errorf("agent turn: %w", err)
	}

	logger.InfoCF("agent", "Agent turn completed",
		map[string]interface{}{
			"user":        inv.UserID,
			"iterations":  result.Iterations,
			"tool_calls":  result.ToolCalls,
			"reply_chars": len(result.Content),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	return result.Content, nil
}

// bindWallet registers the wallet tools when inv carries a usable wallet and
// returns its decoded data, or nil.
func (a *Agent) bindWallet(registry *tools.ToolRegistry, inv Invocation) *wallet.Data {
	if inv.Wallet.Empty() || a.wallets == nil {
		return nil
	}
	d, err := wallet.Decode(inv.Wallet)
	if err != nil {
		logger.WarnCF("agent", "Stored wallet could not be decoded; continuing without wallet tools",
			map[string]interface{}{
				"user":  inv.UserID,
				"error": err.Error(),
			})
		return nil
	}
	tools.RegisterWalletTools(registry, a.wallets, d)
	return &d
}
