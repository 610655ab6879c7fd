package providers

import "strings"

func augmentProviderError(providerName, message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return msg
	}

	lower := strings.ToLower(msg)
	providerName = NormalizeProviderName(providerName)

	switch providerName {
	case ProviderOpenAI:
		if strings.Contains(lower, "incorrect api key provided") {
			return msg + " Hint: provider openai expects a Platform API key in OPENAI_API_KEY. For an OpenRouter key, set agent.provider to openrouter."
		}
	case ProviderOpenRouter:
		if strings.Contains(lower, "no auth credentials found") || strings.Contains(lower, "user not found") {
			return msg + " Hint: check OPENROUTER_API_KEY."
		}
	case ProviderAnthropic:
		if strings.Contains(lower, "invalid x-api-key") {
			return msg + " Hint: check ANTHROPIC_API_KEY."
		}
		if strings.Contains(lower, "overloaded") {
			return msg + " Hint: the model is overloaded; requests are not retried, so try again shortly."
		}
	}

	return msg
}
