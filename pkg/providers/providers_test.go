package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/basedagent/basedagent/pkg/config"
)

func TestCreateProvider_OpenAI_DefaultSelection(t *testing.T) {
	var seenAuth string
	var seenPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		seenPath = r.URL.Path
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if got := req["model"]; got != defaultOpenAIModel {
			t.Fatalf("expected default model %q, got %v", defaultOpenAIModel, got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "sk-test"
	cfg.Providers.OpenAI.APIBase = server.URL
	cfg.Agent.Provider = ""

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	resp, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("expected response content ok, got %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 4 {
		t.Fatalf("expected usage total 4, got %+v", resp.Usage)
	}
	if seenAuth != "Bearer sk-test" {
		t.Fatalf("expected bearer auth, got %q", seenAuth)
	}
	if seenPath != "/chat/completions" {
		t.Fatalf("expected /chat/completions path, got %q", seenPath)
	}
}

func TestOpenAIProvider_ToolCallsRoundTrip(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c2","object":"chat.completion","created":1,"model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_balance","arguments":"{\"asset_id\":\"eth\"}"}}]},"finish_reason":"tool_calls"}]}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "sk-test"
	cfg.Providers.OpenAI.APIBase = server.URL + "/"

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	tools := []ToolDefinition{{
		Type: "function",
		Function: ToolFunctionDefinition{
			Name:        "get_balance",
			Description: "Get balance",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"asset_id": map[string]interface{}{"type": "string"}},
				"required":   []string{"asset_id"},
			},
		},
	}}
	history := []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "send 1 usdc"},
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "call_0", Type: "function", Function: &FunctionCall{Name: "get_wallet_details", Arguments: "{}"}}}},
		{Role: "tool", Content: "wallet ok", ToolCallID: "call_0"},
	}

	resp, err := provider.Chat(context.Background(), history, tools, "gpt-4o", map[string]interface{}{"max_tokens": 512, "temperature": 0.2})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if got := body["model"]; got != "gpt-4o" {
		t.Fatalf("expected model override gpt-4o, got %v", got)
	}
	if got := body["max_tokens"]; got != float64(512) {
		t.Fatalf("expected max_tokens 512, got %v", got)
	}
	if _, ok := body["tools"]; !ok {
		t.Fatalf("expected tools in request")
	}
	msgs, _ := body["messages"].([]interface{})
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	toolMsg, _ := msgs[3].(map[string]interface{})
	if toolMsg["role"] != "tool" || toolMsg["tool_call_id"] != "call_0" {
		t.Fatalf("unexpected tool message: %v", toolMsg)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "get_balance" || tc.Arguments["asset_id"] != "eth" {
		t.Fatalf("unexpected tool call: %+v", tc)
	}
	if resp.FinishReason != "tool_calls" {
		t.Fatalf("expected finish reason tool_calls, got %q", resp.FinishReason)
	}
}

func TestOpenAIProvider_APIErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "sk-test"
	cfg.Providers.OpenAI.APIBase = server.URL

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	_, err = provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status=500") {
		t.Fatalf("expected status in error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls.Load())
	}
}

func TestCreateProvider_OpenRouter(t *testing.T) {
	var seenAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c3","object":"chat.completion","created":1,"model":"x","choices":[{"index":0,"message":{"role":"assistant","content":"routed"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Agent.Provider = "OpenRouter"
	cfg.Providers.OpenRouter.APIKey = "or-key"
	cfg.Providers.OpenRouter.APIBase = server.URL

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	if provider.GetDefaultModel() != defaultOpenRouterModel {
		t.Fatalf("expected default model %q, got %q", defaultOpenRouterModel, provider.GetDefaultModel())
	}
	resp, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "routed" {
		t.Fatalf("expected routed, got %q", resp.Content)
	}
	if seenAuth != "Bearer or-key" {
		t.Fatalf("expected openrouter bearer, got %q", seenAuth)
	}
}

func TestCreateProvider_Anthropic(t *testing.T) {
	var seenKey, seenPath string
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKey = r.Header.Get("X-Api-Key")
		seenPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[{"type":"text","text":"checking"},{"type":"tool_use","id":"tu_1","name":"get_balance","input":{"asset_id":"usdc"}}],"stop_reason":"tool_use","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Agent.Provider = "anthropic"
	cfg.Providers.Anthropic.APIKey = "ant-key"
	cfg.Providers.Anthropic.APIBase = server.URL

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	history := []Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "balance?"},
		{Role: "assistant", ToolCalls: []ToolCall{
			{ID: "tu_0", Name: "get_wallet_details", Arguments: map[string]interface{}{}},
			{ID: "tu_9", Name: "get_balance", Arguments: map[string]interface{}{"asset_id": "eth"}},
		}},
		{Role: "tool", Content: "details", ToolCallID: "tu_0"},
		{Role: "tool", Content: "1 ETH", ToolCallID: "tu_9"},
	}
	tools := []ToolDefinition{{
		Type: "function",
		Function: ToolFunctionDefinition{
			Name:        "get_balance",
			Description: "Get balance",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"asset_id": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"asset_id"},
			},
		},
	}}

	resp, err := provider.Chat(context.Background(), history, tools, "", map[string]interface{}{"max_tokens": 256})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if seenKey != "ant-key" {
		t.Fatalf("expected x-api-key header, got %q", seenKey)
	}
	if seenPath != "/v1/messages" {
		t.Fatalf("expected /v1/messages, got %q", seenPath)
	}
	if got := body["max_tokens"]; got != float64(256) {
		t.Fatalf("expected max_tokens 256, got %v", got)
	}
	msgs, _ := body["messages"].([]interface{})
	// user, assistant(tool_use x2), user(tool_result x2)
	if len(msgs) != 3 {
		t.Fatalf("expected tool results folded into 3 messages, got %d", len(msgs))
	}
	last, _ := msgs[2].(map[string]interface{})
	if parts, _ := last["content"].([]interface{}); len(parts) != 2 {
		t.Fatalf("expected 2 tool_result blocks, got %v", last["content"])
	}
	if sys, _ := body["system"].([]interface{}); len(sys) != 1 {
		t.Fatalf("expected system prompt block, got %v", body["system"])
	}

	if resp.Content != "checking" {
		t.Fatalf("expected text content, got %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "get_balance" || resp.ToolCalls[0].Arguments["asset_id"] != "usdc" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.FinishReason != "tool_use" {
		t.Fatalf("expected tool_use stop reason, got %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestCreateProvider_MissingCredentials(t *testing.T) {
	for _, name := range []string{ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic} {
		cfg := config.DefaultConfig()
		cfg.Agent.Provider = name
		if _, err := CreateProvider(cfg); err == nil {
			t.Fatalf("%s: expected missing credential error", name)
		}
		if err := ValidateProviderConfig(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		_, configured, _, err := ProviderCredentialStatus(cfg)
		if err != nil || configured {
			t.Fatalf("%s: expected unconfigured status, got configured=%v err=%v", name, configured, err)
		}
	}
}

func TestCreateProvider_Unsupported(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agent.Provider = "vertex"
	_, err := CreateProvider(cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported provider") {
		t.Fatalf("expected unsupported provider error, got %v", err)
	}
}

func TestSupportedProviders(t *testing.T) {
	got := strings.Join(SupportedProviders(), ",")
	if got != "anthropic,openai,openrouter" {
		t.Fatalf("unexpected providers: %s", got)
	}
}

func TestDecodeArguments(t *testing.T) {
	if got := decodeArguments(""); len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
	if got := decodeArguments("{bad"); got["raw"] != "{bad" {
		t.Fatalf("expected raw fallback, got %v", got)
	}
	if got := decodeArguments(`{"amount":"1"}`); got["amount"] != "1" {
		t.Fatalf("unexpected args: %v", got)
	}
}

func TestValidateProviderConfig_NamesEnvVar(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agent.Provider = " OpenRouter "
	err := ValidateProviderConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "OPENROUTER_API_KEY") {
		t.Fatalf("expected env var hint, got %v", err)
	}

	cfg.Providers.OpenRouter.APIKey = "  sk-or  "
	name, configured, mode, err := ProviderCredentialStatus(cfg)
	if err != nil || name != ProviderOpenRouter || !configured || mode != authModeAPIKey {
		t.Fatalf("unexpected status: %s %v %s %v", name, configured, mode, err)
	}
}
