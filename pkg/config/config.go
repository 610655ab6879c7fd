package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	WalletWriteGuarded = "guarded"
	WalletWriteAtomic  = "atomic"

	// DefaultHistoryTTLSeconds is the chat transcript retention window (7 days).
	DefaultHistoryTTLSeconds = 604800
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Store     StoreConfig     `json:"store"`
	Agent     AgentConfig     `json:"agent"`
	Providers ProvidersConfig `json:"providers"`
	Wallet    WalletConfig    `json:"wallet"`
	Log       LogConfig       `json:"log"`
	mu        sync.RWMutex
}

type ServerConfig struct {
	Host                  string `json:"host" env:"BASEDAGENT_SERVER_HOST"`
	Port                  int    `json:"port" env:"BASEDAGENT_SERVER_PORT"`
	APIKey                string `json:"api_key" env:"API_KEY"`
	RequireAPIKey         bool   `json:"require_api_key" env:"BASEDAGENT_SERVER_REQUIRE_API_KEY"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" env:"BASEDAGENT_SERVER_REQUEST_TIMEOUT_SECONDS"`
}

type StoreConfig struct {
	WalletURL         string `json:"wallet_url" env:"WALLET_REDIS_URL"`
	ChatURL           string `json:"chat_url" env:"CHAT_HISTORY_REDIS_URL"`
	HistoryTTLSeconds int    `json:"history_ttl_seconds" env:"BASEDAGENT_STORE_HISTORY_TTL_SECONDS"`
	WalletWriteMode   string `json:"wallet_write_mode" env:"BASEDAGENT_STORE_WALLET_WRITE_MODE"`
	// SweepSchedule is a cron expression for purging expired rows from
	// stores without native expiry (sqlite).
	SweepSchedule string `json:"sweep_schedule" env:"BASEDAGENT_STORE_SWEEP_SCHEDULE"`
}

type AgentConfig struct {
	Provider          string  `json:"provider" env:"BASEDAGENT_AGENT_PROVIDER"`
	Model             string  `json:"model" env:"BASEDAGENT_AGENT_MODEL"`
	MaxTokens         int     `json:"max_tokens" env:"BASEDAGENT_AGENT_MAX_TOKENS"`
	Temperature       float64 `json:"temperature" env:"BASEDAGENT_AGENT_TEMPERATURE"`
	MaxToolIterations int     `json:"max_tool_iterations" env:"BASEDAGENT_AGENT_MAX_TOOL_ITERATIONS"`
	SerializePerUser  bool    `json:"serialize_per_user" env:"BASEDAGENT_AGENT_SERIALIZE_PER_USER"`
}

type ProvidersConfig struct {
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	Anthropic  ProviderConfig `json:"anthropic"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
}

type WalletConfig struct {
	APIBase          string `json:"api_base" env:"BASEDAGENT_WALLET_API_BASE"`
	APIKeyName       string `json:"api_key_name" env:"CDP_API_KEY_NAME"`
	APIKeyPrivateKey string `json:"api_key_private_key" env:"CDP_API_KEY_PRIVATE_KEY"`
	NetworkID        string `json:"network_id" env:"NETWORK_ID"`
	RPCURL           string `json:"rpc_url" env:"BASEDAGENT_WALLET_RPC_URL"`
	USDCContract     string `json:"usdc_contract" env:"BASEDAGENT_WALLET_USDC_CONTRACT"`
	PaymentLinkBase  string `json:"payment_link_base" env:"BASEDAGENT_WALLET_PAYMENT_LINK_BASE"`
}

type LogConfig struct {
	Level  string `json:"level" env:"BASEDAGENT_LOG_LEVEL"`
	Format string `json:"format" env:"BASEDAGENT_LOG_FORMAT"`
}

// providerEnv holds provider credentials that live under their conventional
// variable names rather than the BASEDAGENT_ prefix.
type providerEnv struct {
	OpenAIKey      string `env:"OPENAI_API_KEY"`
	OpenAIBase     string `env:"OPENAI_BASE_URL"`
	OpenRouterKey  string `env:"OPENROUTER_API_KEY"`
	OpenRouterBase string `env:"OPENROUTER_BASE_URL"`
	AnthropicKey   string `env:"ANTHROPIC_API_KEY"`
	AnthropicBase  string `env:"ANTHROPIC_BASE_URL"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                  "0.0.0.0",
			Port:                  8000,
			RequestTimeoutSeconds: 120,
		},
		Store: StoreConfig{
			WalletURL:         "redis://localhost:6379/0",
			ChatURL:           "redis://localhost:6379/1",
			HistoryTTLSeconds: DefaultHistoryTTLSeconds,
			WalletWriteMode:   WalletWriteGuarded,
			SweepSchedule:     "*/10 * * * *",
		},
		Agent: AgentConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			MaxTokens:         4096,
			Temperature:       0.7,
			MaxToolIterations: 10,
			SerializePerUser:  true,
		},
		Wallet: WalletConfig{
			APIBase:         "https://api.cdp.coinbase.com/platform",
			NetworkID:       "base-sepolia",
			RPCURL:          "https://sepolia.base.org",
			USDCContract:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			PaymentLinkBase: "https://frameskit.vercel.app/payment",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig layers defaults, an optional .env file, an optional JSON file at
// path, and finally the process environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	var pe providerEnv
	if err := env.Parse(&pe); err != nil {
		return nil, err
	}
	applyProviderEnv(cfg, pe)

	return cfg, nil
}

func applyProviderEnv(cfg *Config, pe providerEnv) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Providers.OpenAI.APIKey, pe.OpenAIKey)
	set(&cfg.Providers.OpenAI.APIBase, pe.OpenAIBase)
	set(&cfg.Providers.OpenRouter.APIKey, pe.OpenRouterKey)
	set(&cfg.Providers.OpenRouter.APIBase, pe.OpenRouterBase)
	set(&cfg.Providers.Anthropic.APIKey, pe.AnthropicKey)
	set(&cfg.Providers.Anthropic.APIBase, pe.AnthropicBase)
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks the settings that must be right before the server starts.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Server.RequireAPIKey && strings.TrimSpace(c.Server.APIKey) == "" {
		return fmt.Errorf("API_KEY is required when server.require_api_key is set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	for name, raw := range map[string]string{"store.wallet_url": c.Store.WalletURL, "store.chat_url": c.Store.ChatURL} {
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Store.HistoryTTLSeconds <= 0 {
		return fmt.Errorf("store.history_ttl_seconds must be positive")
	}
	switch c.Store.WalletWriteMode {
	case WalletWriteGuarded, WalletWriteAtomic:
	default:
		return fmt.Errorf("store.wallet_write_mode must be %q or %q, got %q", WalletWriteGuarded, WalletWriteAtomic, c.Store.WalletWriteMode)
	}
	switch c.Agent.Provider {
	case "openai", "openrouter", "anthropic":
	default:
		return fmt.Errorf("agent.provider %q is not supported", c.Agent.Provider)
	}
	if c.Agent.MaxToolIterations <= 0 {
		return fmt.Errorf("agent.max_tool_iterations must be positive")
	}
	return nil
}

// APIKeyEnforced reports whether /chat requires the X-API-Key header.
func (c *Config) APIKeyEnforced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strings.TrimSpace(c.Server.APIKey) != ""
}

func (c *Config) ListenAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
