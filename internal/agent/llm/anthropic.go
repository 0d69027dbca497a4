package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/chative-core/agentbuilder/internal/agent/model"
)

// NewAnthropicClient creates an Anthropic client.
func NewAnthropicClient(apiKey string) *anthropic.Client {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &client
}

// AnthropicChatModel adapts the Messages API to eino's BaseChatModel.
type AnthropicChatModel struct {
	client *anthropic.Client
	cfg    model.LLMConfig
}

func NewAnthropicChatModel(client *anthropic.Client, cfg model.LLMConfig) *AnthropicChatModel {
	return &AnthropicChatModel{client: client, cfg: cfg}
}

func (m *AnthropicChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	options := resolveOptions(m.cfg, opts...)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(*options.Model),
		MaxTokens:   int64(*options.MaxTokens),
		Temperature: anthropic.Float(float64(*options.Temperature)),
	}
	for _, msg := range input {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.System:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case schema.Assistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	out := schema.AssistantMessage(text.String(), nil)
	out.ResponseMeta = &schema.ResponseMeta{
		FinishReason: string(resp.StopReason),
		Usage: &schema.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
	return out, nil
}

func (m *AnthropicChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return streamFromGenerate(ctx, m, input, opts...)
}

func (m *AnthropicChatModel) GetType() string { return "Anthropic" }

var _ einomodel.BaseChatModel = (*AnthropicChatModel)(nil)
