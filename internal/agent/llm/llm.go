// Package llm builds the chat models and embedders the agent talks to.
// Gemini goes through eino-ext; OpenAI and Anthropic are adapted to eino's
// BaseChatModel here.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Providers bundles the chat model and embedder selected by configuration.
type Providers struct {
	ChatModel einomodel.BaseChatModel
	ModelName string
	Embedder  embedding.Embedder
}

// NewProviders picks the chat model and embedder named by cfg.
func NewProviders(ctx context.Context, llmCfg model.LLMConfig, embCfg model.EmbeddingConfig, keys model.ProviderKeys) (*Providers, error) {
	var shared *genai.Client
	geminiClient := func() (*genai.Client, error) {
		if shared != nil {
			return shared, nil
		}
		c, err := NewGeminiClient(ctx, keys.GeminiAPIKey, keys.GeminiBaseURL)
		if err != nil {
			return nil, err
		}
		shared = c
		return c, nil
	}

	p := &Providers{ModelName: llmCfg.Model}

	switch strings.ToLower(llmCfg.Provider) {
	case ProviderGemini:
		client, err := geminiClient()
		if err != nil {
			return nil, err
		}
		cm, err := NewGeminiChatModel(ctx, client, llmCfg)
		if err != nil {
			return nil, err
		}
		p.ChatModel = cm
	case ProviderOpenAI:
		p.ChatModel = NewOpenAIChatModel(NewOpenAIClient(keys.OpenAIAPIKey, keys.OpenAIBaseURL), llmCfg)
	case ProviderAnthropic:
		p.ChatModel = NewAnthropicChatModel(NewAnthropicClient(keys.AnthropicAPIKey), llmCfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", llmCfg.Provider)
	}

	switch strings.ToLower(embCfg.Provider) {
	case ProviderGemini:
		client, err := geminiClient()
		if err != nil {
			return nil, err
		}
		p.Embedder = NewGeminiEmbedder(client, embCfg.Model)
	case ProviderOpenAI:
		p.Embedder = NewOpenAIEmbedder(NewOpenAIClient(keys.OpenAIAPIKey, keys.OpenAIBaseURL), embCfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", embCfg.Provider)
	}

	logx.Debug().
		Str("llm_provider", llmCfg.Provider).
		Str("llm_model", llmCfg.Model).
		Str("embedding_provider", embCfg.Provider).
		Str("embedding_model", embCfg.Model).
		Msg("providers initialized")
	return p, nil
}

// resolveOptions applies per-call eino options over the configured defaults.
func resolveOptions(cfg model.LLMConfig, opts ...einomodel.Option) *einomodel.Options {
	modelName := cfg.Model
	temperature := cfg.Temperature
	maxTokens := cfg.MaxTokens
	return einomodel.GetCommonOptions(&einomodel.Options{
		Model:       &modelName,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}, opts...)
}

// streamFromGenerate serves Stream with a single chunk from Generate.
func streamFromGenerate(ctx context.Context, m einomodel.BaseChatModel, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
