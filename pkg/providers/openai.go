package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/basedagent/basedagent/pkg/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultOpenAIAPIBase = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

func newOpenAIProvider(pc config.ProviderConfig) (LLMProvider, error) {
	return newChatCompletionsProvider(ProviderOpenAI, valueOr(pc.APIBase, defaultOpenAIAPIBase), defaultOpenAIModel, pc.APIKey)
}

// chatCompletionsProvider speaks the OpenAI chat completions API through the
// official SDK. OpenRouter reuses it with a different base URL.
type chatCompletionsProvider struct {
	providerName string
	defaultModel string
	client       *openai.Client
}

func newChatCompletionsProvider(providerName, apiBase, defaultModel, apiKey string) (*chatCompletionsProvider, error) {
	providerName = strings.TrimSpace(strings.ToLower(providerName))
	if providerName == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		return nil, fmt.Errorf("%s API base not configured", providerName)
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		// The SDK joins paths relative to the base, so it needs the trailing slash.
		option.WithBaseURL(apiBase+"/"),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(defaultHTTPTimeout),
	)

	return &chatCompletionsProvider{
		providerName: providerName,
		defaultModel: strings.TrimSpace(defaultModel),
		client:       client,
	}, nil
}

func (p *chatCompletionsProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider not initialized")
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = p.GetDefaultModel()
	}

	params := openai.ChatCompletionNewParams{
		Messages: openai.F(toOpenAIMessages(messages)),
		Model:    openai.F(model),
	}
	if len(tools) > 0 {
		params.Tools = openai.F(toOpenAITools(tools))
	}
	if maxTokens, ok := optionAsInt(options, "max_tokens"); ok {
		params.MaxTokens = openai.F(int64(maxTokens))
	}
	if temperature, ok := optionAsFloat(options, "temperature"); ok {
		params.Temperature = openai.F(temperature)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg := augmentProviderError(p.providerName, apiErr.Error())
			return nil, fmt.Errorf("%s API request failed: status=%d error=%s", p.providerName, apiErr.StatusCode, msg)
		}
		return nil, fmt.Errorf("send %s request: %w", p.providerName, err)
	}

	return parseChatCompletion(completion), nil
}

func (p *chatCompletionsProvider) GetDefaultModel() string {
	if p == nil {
		return ""
	}
	return p.defaultModel
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			var msg openai.ChatCompletionAssistantMessageParam
			if m.Content != "" {
				msg = openai.AssistantMessage(m.Content)
			} else {
				msg = openai.ChatCompletionAssistantMessageParam{
					Role: openai.F(openai.ChatCompletionAssistantMessageParamRoleAssistant),
				}
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   openai.F(tc.ID),
					Type: openai.F(openai.ChatCompletionMessageToolCallTypeFunction),
					Function: openai.F(openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      openai.F(toolCallName(tc)),
						Arguments: openai.F(toolCallArguments(tc)),
					}),
				})
			}
			msg.ToolCalls = openai.F(calls)
			out = append(out, msg)
		case "tool":
			out = append(out, openai.ChatCompletionToolMessageParam{
				Role:       openai.F(openai.ChatCompletionToolMessageParamRoleTool),
				Content:    openai.F([]openai.ChatCompletionContentPartTextParam{{Text: openai.F(m.Content)}}),
				ToolCallID: openai.F(m.ToolCallID),
			})
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Type: openai.F(openai.ChatCompletionToolTypeFunction),
			Function: openai.F(openai.FunctionDefinitionParam{
				Name:        openai.F(t.Function.Name),
				Description: openai.F(t.Function.Description),
				Parameters:  openai.F(openai.FunctionParameters(t.Function.Parameters)),
			}),
		})
	}
	return out
}

func parseChatCompletion(completion *openai.ChatCompletion) *LLMResponse {
	if completion == nil || len(completion.Choices) == 0 {
		return &LLMResponse{Content: "", FinishReason: "stop"}
	}

	choice := completion.Choices[0]
	toolCalls := make([]ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Type:      "function",
			Name:      tc.Function.Name,
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}

	return &LLMResponse{
		Content:      choice.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: string(choice.FinishReason),
		Usage: &UsageInfo{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
}
