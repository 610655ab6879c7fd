package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/basedagent/basedagent/pkg/config"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
)

// backend describes one LLM vendor the agent can talk to.
type backend struct {
	label  string
	keyEnv string
	creds  func(*config.ProvidersConfig) config.ProviderConfig
	build  func(config.ProviderConfig) (LLMProvider, error)
}

var backends = map[string]backend{
	ProviderOpenAI: {
		label:  "OpenAI",
		keyEnv: "OPENAI_API_KEY",
		creds:  func(p *config.ProvidersConfig) config.ProviderConfig { return p.OpenAI },
		build:  newOpenAIProvider,
	},
	ProviderOpenRouter: {
		label:  "OpenRouter",
		keyEnv: "OPENROUTER_API_KEY",
		creds:  func(p *config.ProvidersConfig) config.ProviderConfig { return p.OpenRouter },
		build:  newOpenRouterProvider,
	},
	ProviderAnthropic: {
		label:  "Anthropic",
		keyEnv: "ANTHROPIC_API_KEY",
		creds:  func(p *config.ProvidersConfig) config.ProviderConfig { return p.Anthropic },
		build:  newAnthropicProvider,
	},
}

// SupportedProviders lists the accepted agent.provider values, sorted.
func SupportedProviders() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeProviderName lowercases name; blank selects OpenAI.
func NormalizeProviderName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ProviderOpenAI
	}
	return name
}

func ActiveProviderName(cfg *config.Config) string {
	if cfg == nil {
		return ProviderOpenAI
	}
	return NormalizeProviderName(cfg.Agent.Provider)
}

// ValidateProviderConfig reports a missing API key for the active provider.
func ValidateProviderConfig(cfg *config.Config) error {
	_, _, err := activeCreds(cfg)
	return err
}

// ProviderCredentialStatus reports whether the active provider has a key.
// err is set only for an unknown provider.
func ProviderCredentialStatus(cfg *config.Config) (provider string, configured bool, mode string, err error) {
	name := ActiveProviderName(cfg)
	b, ok := backends[name]
	if !ok {
		return "", false, "", unsupported(name)
	}
	if cfg == nil || strings.TrimSpace(b.creds(&cfg.Providers).APIKey) == "" {
		return name, false, "", nil
	}
	return name, true, authModeAPIKey, nil
}

// CreateProvider builds the client for agent.provider.
func CreateProvider(cfg *config.Config) (LLMProvider, error) {
	b, pc, err := activeCreds(cfg)
	if err != nil {
		return nil, err
	}
	return b.build(pc)
}

func activeCreds(cfg *config.Config) (backend, config.ProviderConfig, error) {
	name := ActiveProviderName(cfg)
	b, ok := backends[name]
	if !ok {
		return backend{}, config.ProviderConfig{}, unsupported(name)
	}
	if cfg == nil {
		return b, config.ProviderConfig{}, fmt.Errorf("config is required")
	}
	pc := b.creds(&cfg.Providers)
	pc.APIKey = strings.TrimSpace(pc.APIKey)
	pc.APIBase = strings.TrimRight(strings.TrimSpace(pc.APIBase), "/")
	if pc.APIKey == "" {
		return b, pc, fmt.Errorf("%s API key is required (set providers.%s.api_key or %s)", b.label, name, b.keyEnv)
	}
	return b, pc, nil
}

func unsupported(name string) error {
	return fmt.Errorf("unsupported provider %q: supported providers are %s", name, strings.Join(SupportedProviders(), ", "))
}
