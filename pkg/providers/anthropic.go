package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/basedagent/basedagent/pkg/config"
)

const (
	defaultAnthropicAPIBase = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-sonnet-4-5"
)

func newAnthropicProvider(pc config.ProviderConfig) (LLMProvider, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(pc.APIKey),
		option.WithBaseURL(valueOr(pc.APIBase, defaultAnthropicAPIBase)+"/"),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(defaultHTTPTimeout),
	)
	return &anthropicProvider{client: client, defaultModel: defaultAnthropicModel}, nil
}

type anthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

func (p *anthropicProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	if p == nil {
		return nil, fmt.Errorf("provider not initialized")
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = p.GetDefaultModel()
	}
	maxTokens, ok := optionAsInt(options, "max_tokens")
	if !ok || maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	system, turns := toAnthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  turns,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}
	if temperature, ok := optionAsFloat(options, "temperature"); ok {
		params.Temperature = anthropic.Float(temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			msg := augmentProviderError(ProviderAnthropic, apiErr.Error())
			return nil, fmt.Errorf("anthropic API request failed: status=%d error=%s", apiErr.StatusCode, msg)
		}
		return nil, fmt.Errorf("send anthropic request: %w", err)
	}

	return parseAnthropicMessage(resp), nil
}

func (p *anthropicProvider) GetDefaultModel() string {
	if p == nil {
		return ""
	}
	return p.defaultModel
}

// toAnthropicMessages lifts system prompts out of the conversation and folds
// consecutive tool results into a single user turn.
func toAnthropicMessages(messages []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))
	var pendingResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "tool":
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case "assistant":
			flush()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(toolCallArguments(tc)), toolCallName(tc)))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flush()
	return system, out
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Properties: t.Function.Parameters["properties"],
		}
		switch req := t.Function.Parameters["required"].(type) {
		case []string:
			schema.Required = req
		case []interface{}:
			for _, r := range req {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Function.Name,
				Description: anthropic.String(t.Function.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

func parseAnthropicMessage(resp *anthropic.Message) *LLMResponse {
	if resp == nil {
		return &LLMResponse{FinishReason: "stop"}
	}

	var content strings.Builder
	var toolCalls []ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, ToolCall{
				ID:        block.ID,
				Type:      "function",
				Name:      block.Name,
				Arguments: decodeArguments(string(block.Input)),
			})
		}
	}

	return &LLMResponse{
		Content:      content.String(),
		ToolCalls:    toolCalls,
		FinishReason: string(resp.StopReason),
		Usage: &UsageInfo{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}
