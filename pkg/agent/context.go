package agent

import (
	"fmt"
	"strings"

	"github.com/basedagent/basedagent/pkg/logger"
	"github.com/basedagent/basedagent/pkg/providers"
	"github.com/basedagent/basedagent/pkg/session"
	"github.com/basedagent/basedagent/pkg/tools"
	"github.com/basedagent/basedagent/pkg/wallet"
)

const identity = `You are a helpful DeFi agent named 'BasedAgent' that can interact onchain using your wallet tools.
Be concise and helpful with your responses. Refrain from restating your tools' descriptions unless it is explicitly requested.
You only accept ETH and USDC. If the user requests other assets, you should politely decline.
USDC transfers are free. There's no transfer fee. For ETH you need to pay the gas fee.

## INSTRUCTIONS:
- Use ` + "`request_funds_on_mainnet`" + ` when you need funds on mainnet and place the link on a new line without explanation or mention of the link
- Always send fund request links directly to the user in case of insufficient funds. Don't say "Ohh I need funds. Would you like me to request funds?"
- Always confirm with the user once before any transfers
- Keep responses clear and brief
- Always respond in plain text only. Even links should be in plain text and not markdown
- Maintain a casual and friendly tone with occasional DeFi slang
- Never request testnet or faucet funds

Personality: Helpful and knowledgeable about DeFi, with a slight degen-friendly tone while remaining professional.`

const walletUnavailable = `## Wallet
Your wallet is unavailable for this conversation. You have no onchain tools right now.
If the user asks for balances, transfers or funding links, tell them the wallet could not be loaded and to try again shortly. Do not invent balances, addresses or transaction hashes.`

// ContextBuilder assembles the provider messages for one agent turn.
type ContextBuilder struct {
	tools *tools.ToolRegistry
}

func NewContextBuilder(registry *tools.ToolRegistry) *ContextBuilder {
	return &ContextBuilder{tools: registry}
}

func (cb *ContextBuilder) walletSection(d *wallet.Data) string {
	if d == nil {
		return walletUnavailable
	}
	return fmt.Sprintf("## Wallet\nNetwork: %s\nAddress: %s", valueOr(d.NetworkID, "unknown"), valueOr(d.DefaultAddressID, "unknown"))
}

func (cb *ContextBuilder) buildToolsSection() string {
	if cb.tools == nil {
		return ""
	}

	summaries := cb.tools.Summaries()
	if len(summaries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Available Tools\n\n")
	sb.WriteString("Use tools for every onchain action. Never pretend a transfer or balance check happened.\n\n")
	for _, s := range summaries {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return sb.String()
}

// BuildSystemPrompt returns the persona, the wallet section and, when any
// tools are registered, their summaries. d is nil when the user has no usable
// wallet.
func (cb *ContextBuilder) BuildSystemPrompt(d *wallet.Data) string {
	parts := []string{identity, cb.walletSection(d)}
	if toolsSection := cb.buildToolsSection(); toolsSection != "" {
		parts = append(parts, toolsSection)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// BuildMessages converts the stored transcript into provider messages behind
// the system prompt. The transcript already ends with the new user turn.
func (cb *ContextBuilder) BuildMessages(transcript []session.Turn, d *wallet.Data) []providers.Message {
	systemPrompt := cb.BuildSystemPrompt(d)
	logger.DebugCF("agent", "System prompt built",
		map[string]interface{}{
			"total_chars":   len(systemPrompt),
			"section_count": strings.Count(systemPrompt, "\n\n---\n\n") + 1,
		})

	// Providers expect the conversation to open with a user message.
	for len(transcript) > 0 && transcript[0].Role != session.RoleUser {
		logger.DebugCF("agent", "Dropping leading non-user turn from transcript",
			map[string]interface{}{"role": transcript[0].Role})
		transcript = transcript[1:]
	}

	messages := make([]providers.Message, 0, len(transcript)+1)
	messages = append(messages, providers.Message{Role: "system", Content: systemPrompt})
	for _, turn := range transcript {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		role := turn.Role
		if role != session.RoleAssistant {
			role = session.RoleUser
		}
		messages = append(messages, providers.Message{Role: role, Content: turn.Content})
	}
	return messages
}

// formatMessagesForLog formats messages for debug logging.
func formatMessagesForLog(messages []providers.Message) string {
	if len(messages) == 0 {
		return "[]"
	}

	var sb strings.Builder
	sb.WriteString("[\n")
	for i, msg := range messages {
		fmt.Fprintf(&sb, "  [%d] Role: %s\n", i, msg.Role)
		if msg.Content != "" {
			fmt.Fprintf(&sb, "  Content: %s\n", truncate(msg.Content, 200))
		}
	}
	sb.WriteString("]")
	return sb.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
