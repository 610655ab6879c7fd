package providers

import "github.com/basedagent/basedagent/pkg/config"

const (
	defaultOpenRouterAPIBase = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "openai/gpt-4o-mini"
)

// newOpenRouterProvider reuses the chat completions client; OpenRouter speaks
// the same wire format.
func newOpenRouterProvider(pc config.ProviderConfig) (LLMProvider, error) {
	return newChatCompletionsProvider(ProviderOpenRouter, valueOr(pc.APIBase, defaultOpenRouterAPIBase), defaultOpenRouterModel, pc.APIKey)
}
